// Command emergency - внеполосная утилита аварийного закрытия:
// независимо строит обоих venue-клиентов, перечисляет все живые позиции
// на обеих площадках и закрывает каждую реверсивным маркет-ордером с
// экспоненциальным backoff до 5 попыток. Выходит с кодом 0 только если
// закрылось всё.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"go.uber.org/zap"

	"deltaneutral/internal/config"
	"deltaneutral/internal/decimal"
	"deltaneutral/internal/httpclient"
	"deltaneutral/internal/venue"
	gateiovenue "deltaneutral/internal/venue/gateio"
	hlvenue "deltaneutral/internal/venue/hyperliquid"
	"deltaneutral/pkg/retry"
	"deltaneutral/pkg/utils"
)

const closeAttempts = 5

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger := utils.InitLogger(utils.LogConfig{Level: cfg.Logging.Level, Format: "text"}).WithComponent("emergency")
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	httpClient := httpclient.New(httpclient.DefaultConfig())
	restA := gateiovenue.NewClient(cfg.VenueA.APIKey, cfg.VenueA.APISecret, httpClient)
	restB, err := hlvenue.NewClient(cfg.VenueB.SigningKey, cfg.VenueB.AccountAddress, cfg.VenueB.IsCross, httpClient)
	if err != nil {
		logger.Fatal("venue_b_client_failed", zap.Error(err))
	}

	failures := 0
	failures += closeAllVenueA(ctx, restA, logger)
	failures += closeAllVenueB(ctx, restB, logger)

	if failures > 0 {
		logger.Error("emergency_close_incomplete", zap.Int("failed", failures))
		os.Exit(1)
	}
	logger.Info("emergency_close_complete")
}

func closeAllVenueA(ctx context.Context, rest *gateiovenue.Client, logger *utils.Logger) int {
	positions, err := rest.GetPositions(ctx)
	if err != nil {
		logger.Error("venue_a_list_positions_failed", zap.Error(err))
		return 1
	}
	failures := 0
	for _, p := range positions {
		p := p
		err := retry.RetryN(ctx, func() error {
			var err error
			if p.Side == venue.SideLong {
				_, err = rest.SellMarket(ctx, p.Symbol, p.Size)
			} else {
				_, err = rest.BuyMarket(ctx, p.Symbol, p.Size)
			}
			return err
		}, closeAttempts)
		if err != nil {
			failures++
			logger.Error("venue_a_close_failed", zap.String("symbol", p.Symbol), zap.Error(err))
			continue
		}
		logger.Info("venue_a_position_closed", zap.String("symbol", p.Symbol), zap.String("size", p.Size.String()))
	}
	return failures
}

func closeAllVenueB(ctx context.Context, rest *hlvenue.Client, logger *utils.Logger) int {
	positions, err := rest.GetPositions(ctx)
	if err != nil {
		logger.Error("venue_b_list_positions_failed", zap.Error(err))
		return 1
	}
	if len(positions) == 0 {
		return 0
	}
	universe, err := rest.GetUniverse(ctx)
	if err != nil {
		logger.Error("venue_b_universe_failed", zap.Error(err))
		return len(positions)
	}
	szDecimals := make(map[string]int, len(universe))
	for _, info := range universe {
		szDecimals[info.Symbol] = info.SzDecimals
	}

	failures := 0
	for _, p := range positions {
		p := p
		err := retry.RetryN(ctx, func() error {
			refPrice, err := midPrice(ctx, rest, p.Symbol)
			if err != nil {
				return err
			}
			if p.Side == venue.SideLong {
				_, err = rest.SellMarket(ctx, p.Symbol, p.Size, refPrice, szDecimals[p.Symbol])
			} else {
				_, err = rest.BuyMarket(ctx, p.Symbol, p.Size, refPrice, szDecimals[p.Symbol])
			}
			return err
		}, closeAttempts)
		if err != nil {
			failures++
			logger.Error("venue_b_close_failed", zap.String("symbol", p.Symbol), zap.Error(err))
			continue
		}
		logger.Info("venue_b_position_closed", zap.String("symbol", p.Symbol), zap.String("size", p.Size.String()))
	}
	return failures
}

func midPrice(ctx context.Context, rest *hlvenue.Client, symbol string) (decimal.Decimal, error) {
	ob, err := rest.GetOrderbookSnapshot(ctx, symbol)
	if err != nil {
		return decimal.Zero, err
	}
	bid, hasBid := ob.BestBid()
	ask, hasAsk := ob.BestAsk()
	if !hasBid || !hasAsk {
		return decimal.Zero, fmt.Errorf("emergency: one-sided book for %s", symbol)
	}
	return bid.Price.Add(ask.Price).Div(decimal.New(2, 0)), nil
}
