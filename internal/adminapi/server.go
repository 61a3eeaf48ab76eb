// Package adminapi - read-only HTTP API для оператора: текущие спреды,
// открытые позиции, балансы и последние ошибки по символам. Только
// наблюдение: движок управляется конфигурацией, а не HTTP-вызовами.
package adminapi

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"deltaneutral/internal/bot"
	"deltaneutral/pkg/utils"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Server оборачивает http.Server с маршрутами admin API.
type Server struct {
	bot  *bot.Bot
	log  *utils.Logger
	http *http.Server
}

func New(b *bot.Bot, addr string, log *utils.Logger) *Server {
	s := &Server{bot: b, log: log.WithComponent("adminapi")}

	router := mux.NewRouter()
	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/positions", s.handlePositions).Methods(http.MethodGet)
	api.HandleFunc("/balances", s.handleBalances).Methods(http.MethodGet)
	api.HandleFunc("/spreads/{symbol}", s.handleSpread).Methods(http.MethodGet)
	api.HandleFunc("/errors", s.handleErrors).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.Handler())

	s.http = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	return s
}

// Start запускает сервер в фоне; ошибки listen логируются, но не
// роняют движок - admin API вспомогательный.
func (s *Server) Start() {
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Error("adminapi_listen_failed", zap.Error(err))
		}
	}()
	s.log.Info("adminapi_started", zap.String("addr", s.http.Addr))
}

func (s *Server) Stop(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusResponse struct {
	Symbols       []string `json:"symbols"`
	OpenPositions int      `json:"open_positions"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Symbols:       s.bot.Symbols(),
		OpenPositions: len(s.bot.Positions()),
	})
}

type positionResponse struct {
	ID             string `json:"id"`
	Symbol         string `json:"symbol"`
	Direction      string `json:"direction"`
	EntrySpreadPct string `json:"entry_spread_pct"`
	SizeA          string `json:"size_a"`
	SizeB          string `json:"size_b"`
	EntryPriceA    string `json:"entry_price_a"`
	EntryPriceB    string `json:"entry_price_b"`
	OpenTime       string `json:"open_time"`
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions := s.bot.Positions()
	out := make([]positionResponse, 0, len(positions))
	for _, p := range positions {
		out = append(out, positionResponse{
			ID:             p.ID,
			Symbol:         p.Symbol,
			Direction:      p.Direction.String(),
			EntrySpreadPct: p.EntrySpreadPct.String(),
			SizeA:          p.LegA.Size.String(),
			SizeB:          p.LegB.Size.String(),
			EntryPriceA:    p.LegA.FillPrice.String(),
			EntryPriceB:    p.LegB.FillPrice.String(),
			OpenTime:       p.OpenTime.UTC().Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, out)
}

type balancesResponse struct {
	VenueA string `json:"venue_a_available"`
	VenueB string `json:"venue_b_available"`
}

func (s *Server) handleBalances(w http.ResponseWriter, r *http.Request) {
	balA, balB := s.bot.Balances()
	writeJSON(w, http.StatusOK, balancesResponse{VenueA: balA.String(), VenueB: balB.String()})
}

type spreadResponse struct {
	Symbol    string `json:"symbol"`
	SpreadPct string `json:"spread_pct"`
	Direction string `json:"direction"`
	PriceA    string `json:"price_a"`
	PriceB    string `json:"price_b"`
}

func (s *Server) handleSpread(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]
	raw, ok := s.bot.Spread(symbol)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no price pair for " + symbol})
		return
	}
	writeJSON(w, http.StatusOK, spreadResponse{
		Symbol:    symbol,
		SpreadPct: raw.SpreadPct.String(),
		Direction: raw.Direction.String(),
		PriceA:    raw.PriceA.String(),
		PriceB:    raw.PriceB.String(),
	})
}

func (s *Server) handleErrors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.bot.LastErrors())
}
