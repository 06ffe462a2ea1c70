// Package health serves the liveness endpoints: "/" answers "<name> is
// running!" for uptime pingers and "/healthz" reports every bot as JSON.
package health

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"delaybot/internal/scheduler"
	rtsup "delaybot/internal/runtime/supervisor"
	logx "delaybot/pkg/logx"
)

type Config struct {
	Name  string
	Addr  string
	Pprof bool

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// BotStatus is one front end in the /healthz document.
type BotStatus struct {
	Name      string             `json:"name"`
	FrontEnd  string             `json:"front_end"`
	Pending   int                `json:"pending"`
	Scheduler scheduler.Snapshot `json:"scheduler"`
	Error     string             `json:"error,omitempty"`
}

type Status struct {
	Name    string      `json:"name"`
	OK      bool        `json:"ok"`
	Started time.Time   `json:"started"`
	Uptime  string      `json:"uptime"`
	Bots    []BotStatus `json:"bots"`
	Error   string      `json:"error,omitempty"`
}

// StatusFunc collects the current status; the server fills Name, Started and Uptime.
type StatusFunc func(ctx context.Context) Status

type Server struct {
	cfg     Config
	status  StatusFunc
	log     logx.Logger
	started time.Time

	mu  sync.Mutex
	sup *rtsup.Supervisor
	srv *http.Server
}

func New(cfg Config, status StatusFunc, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	if strings.TrimSpace(cfg.Name) == "" {
		cfg.Name = "delaybot"
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = 10 * time.Second
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 30 * time.Second
	}
	if status == nil {
		status = func(context.Context) Status { return Status{OK: true} }
	}
	return &Server{cfg: cfg, status: status, log: log.With(logx.String("comp", "health")), started: time.Now()}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP, middleware.Recoverer, s.requestLog)

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(s.cfg.Name + " is running!"))
	})
	r.Get("/healthz", s.handleHealthz)

	if s.cfg.Pprof {
		if isLoopbackAddr(s.cfg.Addr) {
			r.Mount("/debug", middleware.Profiler())
		} else {
			s.log.Warn("pprof not mounted: health addr is not loopback", logx.String("addr", s.cfg.Addr))
		}
	}
	return r
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()
	st := s.status(ctx)
	st.Name = s.cfg.Name
	st.Started = s.started.UTC()
	st.Uptime = time.Since(s.started).Truncate(time.Second).String()

	w.Header().Set("Content-Type", "application/json")
	if !st.OK {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	_ = enc.Encode(st)
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug("http request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Int("status", ww.Status()),
			logx.Duration("took", time.Since(start)),
		)
	})
}

// Start serves in the background under a restart loop. Idempotent.
func (s *Server) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return
	}
	s.sup = rtsup.NewSupervisor(ctx,
		rtsup.WithLogger(s.log),
		// health is observability; a failing listener never stops the bots.
		rtsup.WithCancelOnError(false),
	)
	s.sup.GoRestart("http.serve", s.serveOnce,
		rtsup.WithPublishFirstError(true),
		rtsup.WithRestartBackoff(500*time.Millisecond, 10*time.Second),
	)
}

// Supervisor exposes the serve loop for status reporting (nil before Start).
func (s *Server) Supervisor() *rtsup.Supervisor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sup
}

func (s *Server) serveOnce(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		s.log.Error("health listen failed", logx.String("addr", s.cfg.Addr), logx.Err(err))
		if ctx.Err() != nil {
			return context.Canceled
		}
		return err
	}
	srv := &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		cctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = srv.Shutdown(cctx)
		cancel()
	}()

	s.log.Info("health server started", logx.String("addr", ln.Addr().String()))
	err = srv.Serve(ln)
	if ctx.Err() != nil {
		return context.Canceled
	}
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return errors.New("health server exited unexpectedly")
	}
	return err
}

// Stop shuts the server down gracefully within ctx.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	sup, srv := s.sup, s.srv
	s.sup, s.srv = nil, nil
	s.mu.Unlock()
	if sup == nil {
		return nil
	}
	if srv != nil {
		_ = srv.Shutdown(ctx)
	}
	sup.Cancel()
	err := sup.Wait(ctx)
	s.log.Info("health server stopped")
	return err
}

func isLoopbackAddr(addr string) bool {
	h, _, err := net.SplitHostPort(addr)
	if err != nil {
		return false
	}
	h = strings.TrimSpace(h)
	if h == "" {
		return false
	}
	if strings.EqualFold(h, "localhost") {
		return true
	}
	ip := net.ParseIP(h)
	return ip != nil && ip.IsLoopback()
}
