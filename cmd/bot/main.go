package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"deltaneutral/internal/adminapi"
	"deltaneutral/internal/bot"
	"deltaneutral/internal/config"
	"deltaneutral/internal/exchangeclient"
	"deltaneutral/internal/httpclient"
	"deltaneutral/internal/position"
	"deltaneutral/internal/spread"
	gateiovenue "deltaneutral/internal/venue/gateio"
	hlvenue "deltaneutral/internal/venue/hyperliquid"
	"deltaneutral/internal/venueio"
	"deltaneutral/pkg/crypto"
	"deltaneutral/pkg/utils"
)

func main() {
	// Загрузка конфигурации
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := utils.InitLogger(utils.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("engine_failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *utils.Logger) error {
	encKey := []byte(cfg.Security.EncryptionKey)
	if err := crypto.ValidateKey(encKey); err != nil {
		return fmt.Errorf("encryption key: %w", err)
	}

	httpClient := httpclient.New(httpclient.DefaultConfig())

	restA := gateiovenue.NewClient(cfg.VenueA.APIKey, cfg.VenueA.APISecret, httpClient)
	restB, err := hlvenue.NewClient(cfg.VenueB.SigningKey, cfg.VenueB.AccountAddress, cfg.VenueB.IsCross, httpClient)
	if err != nil {
		return fmt.Errorf("venue_b client: %w", err)
	}

	// Клиенты держат свои копии ключей; plaintext в Config после этого
	// момента не нужен - шифруем на месте, чтобы дамп памяти процесса
	// не отдавал секреты из конфигурационной структуры.
	if err := sealSecrets(cfg, encKey); err != nil {
		return fmt.Errorf("seal secrets: %w", err)
	}

	reconnect := venueio.ReconnectConfig{
		InitialDelay:   cfg.Bot.WSReconnectInitial,
		MaxDelay:       cfg.Bot.WSReconnectMax,
		ConnectTimeout: 10 * time.Second,
		PingInterval:   cfg.Bot.WSPingInterval,
		PongTimeout:    cfg.Bot.WSReadTimeout,
	}

	clientA := exchangeclient.NewGateioClient(restA, exchangeclient.GateioConfig{
		MetadataRefreshInterval: cfg.Bot.MetadataRefreshInterval,
		LeverageCacheTTL:        cfg.Bot.LeverageCacheTTL,
		RESTSnapshotMaxAttempts: cfg.Bot.RESTSnapshotMaxAttempts,
		WorkerPoolSize:          cfg.Bot.RESTWorkerPoolSize,
		SlippageFactor:          cfg.Mode.FillPriceSlippageFactor,
		ReconnectConfig:         reconnect,
		RequireDualMode:         cfg.VenueA.DualMode,
	}, logger.WithVenue("venue_a"))

	clientB := exchangeclient.NewHyperliquidClient(restB, exchangeclient.HyperliquidConfig{
		MetadataRefreshInterval: cfg.Bot.MetadataRefreshInterval,
		LeverageCacheTTL:        cfg.Bot.LeverageCacheTTL,
		WorkerPoolSize:          cfg.Bot.RESTWorkerPoolSize,
		SlippageFactor:          cfg.Mode.FillPriceSlippageFactor,
		ReconnectConfig:         reconnect,
	}, logger.WithVenue("venue_b"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Режим позиций выставляется один раз на старте, до любых ордеров.
	if err := clientA.EnsureDualMode(ctx, cfg.VenueA.DualMode); err != nil {
		return fmt.Errorf("venue_a dual mode: %w", err)
	}

	mode := position.MinSpread{
		EntryThresholdPct:    cfg.Mode.EntryThresholdPct,
		USDSizePerPosition:   cfg.Mode.USDSizePerPosition,
		TakeProfitSpreadPct:  cfg.Mode.TakeProfitSpreadPct,
		StopLossWideningPct:  cfg.Mode.StopLossWideningPct,
		Timeout:              time.Duration(cfg.Mode.TimeoutMinutes) * time.Minute,
		Min24hQuoteVolumeUSD: cfg.Mode.Min24hQuoteVolumeUSD,
	}

	finder := spread.NewFinder(clientA, clientB, cfg.Fees.VenueATakerFee, cfg.Fees.VenueBTakerFee)
	manager := position.NewManager(clientA, clientB, mode, cfg.Bot.CloseMonitorTick, logger.WithComponent("position-manager"))

	engine := bot.New(clientA, clientB, finder, manager, bot.Config{
		Mode:                  mode,
		ScanInterval:          cfg.Bot.ScanInterval,
		VolumeRefreshInterval: cfg.Bot.VolumeRefreshInterval,
		VerifyInterval:        time.Minute,
		MonitorReadyTimeout:   cfg.Bot.MonitorReadyTimeout,
	}, logger)

	if err := engine.Start(ctx); err != nil {
		return err
	}

	admin := adminapi.New(engine, fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port), logger)
	admin.Start()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	logger.Info("shutdown_signal", zap.String("signal", sig.String()))

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := admin.Stop(shutdownCtx); err != nil {
		logger.Warn("adminapi_stop_failed", zap.Error(err))
	}
	engine.Stop()
	return nil
}

// sealSecrets шифрует plaintext-копии учётных данных внутри Config
// после того, как клиенты венью забрали свои копии.
func sealSecrets(cfg *config.Config, key []byte) error {
	sealed, err := crypto.Encrypt(cfg.VenueA.APISecret, key)
	if err != nil {
		return err
	}
	cfg.VenueA.APISecret = sealed
	sealed, err = crypto.Encrypt(cfg.VenueB.SigningKey, key)
	if err != nil {
		return err
	}
	cfg.VenueB.SigningKey = sealed
	return nil
}
