package handler

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/efreitasn/marketsim/internal/service"
)

// NewRouter creates a chi router with the read-only observer routes and
// request logging middleware.
func NewRouter(
	marketSvc *service.MarketService,
	participantSvc *service.ParticipantService,
	sim *service.Simulation,
	feed *Feed,
	logger *slog.Logger,
) chi.Router {
	r := chi.NewRouter()

	r.Use(requestLogging(logger))

	marketH := NewMarketHandler(marketSvc)
	participantH := NewParticipantHandler(participantSvc)
	simH := NewSimulationHandler(sim)

	// Health check.
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/status", simH.Status)
	r.Get("/forum", simH.Forum)

	// Instrument routes.
	r.Get("/instruments", marketH.ListInstruments)
	r.Get("/instruments/{symbol}", marketH.GetInstrument)
	r.Get("/instruments/{symbol}/book", marketH.GetBook)
	r.Get("/instruments/{symbol}/trades", marketH.GetTrades)

	// Participant routes.
	r.Get("/participants", participantH.List)
	r.Get("/participants/{id}", participantH.Get)

	r.Get("/ws", feed.ServeHTTP)

	return r
}

// requestLogging returns middleware that logs each request's method, path,
// status code, and duration using slog.
func requestLogging(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.status),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (w *statusWriter) WriteHeader(code int) {
	if !w.wroteHeader {
		w.status = code
		w.wroteHeader = true
	}
	w.ResponseWriter.WriteHeader(code)
}

// Hijack lets the websocket upgrade take over the connection.
func (w *statusWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.status = http.StatusSwitchingProtocols
	return hj.Hijack()
}
