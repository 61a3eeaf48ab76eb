package config

import "testing"

func setValidEnv(t *testing.T) {
	t.Helper()
	t.Setenv("VENUE_A_API_KEY", "key")
	t.Setenv("VENUE_A_API_SECRET", "secret")
	t.Setenv("VENUE_B_SIGNING_KEY", "0xdeadbeef")
	t.Setenv("VENUE_B_ACCOUNT_ADDRESS", "0xaccount")
	t.Setenv("ENCRYPTION_KEY", "01234567890123456789012345678901")
}

func TestLoadValid(t *testing.T) {
	setValidEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.VenueA.APIKey != "key" {
		t.Errorf("VenueA.APIKey = %q, want %q", cfg.VenueA.APIKey, "key")
	}
	if cfg.Mode.TimeoutMinutes != 240 {
		t.Errorf("default TimeoutMinutes = %d, want 240", cfg.Mode.TimeoutMinutes)
	}
}

func TestLoadMissingVenueACredentials(t *testing.T) {
	setValidEnv(t)
	t.Setenv("VENUE_A_API_KEY", "")
	if _, err := Load(); err == nil {
		t.Error("expected error when VENUE_A_API_KEY is missing")
	}
}

func TestLoadMissingVenueBCredentials(t *testing.T) {
	setValidEnv(t)
	t.Setenv("VENUE_B_SIGNING_KEY", "")
	if _, err := Load(); err == nil {
		t.Error("expected error when VENUE_B_SIGNING_KEY is missing")
	}
}

func TestLoadRejectsShortEncryptionKey(t *testing.T) {
	setValidEnv(t)
	t.Setenv("ENCRYPTION_KEY", "too-short")
	if _, err := Load(); err == nil {
		t.Error("expected error for non-32-byte ENCRYPTION_KEY")
	}
}

func TestLoadRejectsTakeProfitAboveEntryThreshold(t *testing.T) {
	setValidEnv(t)
	t.Setenv("MODE_ENTRY_THRESHOLD_PCT", "0.3")
	t.Setenv("MODE_TAKE_PROFIT_SPREAD_PCT", "0.5")
	if _, err := Load(); err == nil {
		t.Error("expected error when take-profit spread is not below entry threshold")
	}
}

func TestLoadRejectsNonPositiveStopLossWidening(t *testing.T) {
	setValidEnv(t)
	t.Setenv("MODE_STOP_LOSS_WIDENING_PCT", "0")
	if _, err := Load(); err == nil {
		t.Error("expected error when stop-loss widening is not positive")
	}
}
