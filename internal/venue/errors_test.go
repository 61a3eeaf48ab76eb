package venue

import (
	"errors"
	"testing"
)

func TestOrderErrorIsExchangeError(t *testing.T) {
	err := NewOrderError(VenueA, "insufficient margin", errors.New("margin check failed"))
	if !errors.Is(err, ErrExchange) {
		t.Error("expected OrderError to satisfy errors.Is(err, ErrExchange)")
	}
	if errors.Unwrap(err) == nil {
		t.Error("expected Unwrap to return the wrapped cause")
	}
}
