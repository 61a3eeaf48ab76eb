package pricemonitor

import (
	"time"

	"deltaneutral/internal/venueio"
)

func testReconnectConfig() venueio.ReconnectConfig {
	return venueio.ReconnectConfig{
		InitialDelay:   10 * time.Millisecond,
		MaxDelay:       100 * time.Millisecond,
		ConnectTimeout: time.Second,
		PingInterval:   time.Second,
		PongTimeout:    time.Second,
	}
}
