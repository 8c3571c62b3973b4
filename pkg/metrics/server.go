package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/arzzra/sofsip/pkg/logging"
)

// NewHandler возвращает роутер с /metrics и /healthz
func NewHandler(c *Collector) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(c.Registry(), promhttp.HandlerOpts{}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		state := c.State()
		if state == "terminated" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		fmt.Fprintf(w, "%s\n", state)
	})
	return r
}

// Server HTTP сервер метрик
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger logging.Logger
	done   chan struct{}
}

// Start начинает обслуживание на addr в отдельной горутине
func Start(addr string, c *Collector, logger logging.Logger) (*Server, error) {
	if logger == nil {
		logger = logging.Default()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("ошибка запуска сервера метрик на %s: %w", addr, err)
	}
	s := &Server{
		srv: &http.Server{
			Handler:           NewHandler(c),
			ReadHeaderTimeout: 5 * time.Second,
		},
		ln:     ln,
		logger: logger,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.LogError(err, "сервер метрик остановлен с ошибкой")
		}
	}()
	logger.Info("сервер метрик запущен", logging.String("addr", ln.Addr().String()))
	return s, nil
}

// Addr фактический адрес сервера
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Shutdown останавливает сервер
func (s *Server) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	err := s.srv.Shutdown(ctx)
	<-s.done
	return err
}
