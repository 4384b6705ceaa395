// Package httpapi exposes the forecast pipeline over HTTP.
package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/rs/zerolog/log"

	"StockPulse/internal/model"
	"StockPulse/internal/pipeline"
	"StockPulse/internal/recorder"
)

// Service is the pipeline surface served over HTTP.
type Service interface {
	Run(ctx context.Context, ticker string) (*pipeline.Result, error)
	Refresh(ctx context.Context, ticker string) (*pipeline.RefreshResult, error)
	History(ctx context.Context, ticker string, limit int) ([]recorder.RunRecord, error)
	Monthly(ticker string, year, month int) (*model.MonthlyStats, error)
	Periods(ticker string) ([]model.Period, error)
}

// Server routes HTTP requests to the pipeline.
type Server struct {
	svc     Service
	tickers []string
	metrics http.Handler
	timeout time.Duration
}

// NewServer builds a Server. metricsHandler may be nil.
func NewServer(svc Service, tickers []string, metricsHandler http.Handler, timeout time.Duration) *Server {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Server{svc: svc, tickers: tickers, metrics: metricsHandler, timeout: timeout}
}

// Routes returns the HTTP handler.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(middleware.Timeout(s.timeout))

		r.Get("/tickers", s.listTickers)
		r.Route("/tickers/{ticker}", func(r chi.Router) {
			r.Post("/forecast", s.forecast)
			r.Post("/refresh", s.refresh)
			r.Get("/runs", s.runs)
			r.Get("/monthly", s.monthly)
			r.Get("/periods", s.periods)
		})
	})
	return r
}

func (s *Server) listTickers(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, map[string][]string{"tickers": s.tickers})
}

func (s *Server) forecast(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Run(r.Context(), chi.URLParam(r, "ticker"))
	if err != nil {
		_ = render.Render(w, r, errorFor(err))
		return
	}
	render.JSON(w, r, res)
}

func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	res, err := s.svc.Refresh(r.Context(), chi.URLParam(r, "ticker"))
	if err != nil {
		_ = render.Render(w, r, errorFor(err))
		return
	}
	render.JSON(w, r, res)
}

func (s *Server) runs(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 500 {
			_ = render.Render(w, r, badRequest("limit must be an integer between 1 and 500"))
			return
		}
		limit = n
	}
	runs, err := s.svc.History(r.Context(), chi.URLParam(r, "ticker"), limit)
	if err != nil {
		_ = render.Render(w, r, errorFor(err))
		return
	}
	if runs == nil {
		runs = []recorder.RunRecord{}
	}
	render.JSON(w, r, runs)
}

func (s *Server) monthly(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	year, err := strconv.Atoi(q.Get("year"))
	if err != nil {
		_ = render.Render(w, r, badRequest("year is required"))
		return
	}
	month, err := strconv.Atoi(q.Get("month"))
	if err != nil {
		_ = render.Render(w, r, badRequest("month is required"))
		return
	}
	st, err := s.svc.Monthly(chi.URLParam(r, "ticker"), year, month)
	if err != nil {
		_ = render.Render(w, r, errorFor(err))
		return
	}
	render.JSON(w, r, st)
}

func (s *Server) periods(w http.ResponseWriter, r *http.Request) {
	periods, err := s.svc.Periods(chi.URLParam(r, "ticker"))
	if err != nil {
		_ = render.Render(w, r, errorFor(err))
		return
	}
	render.JSON(w, r, periods)
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		log.Info().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}
