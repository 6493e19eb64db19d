package admin

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/danmuck/rpclink/internal/observability"
	"github.com/danmuck/rpclink/internal/protocol/message"
	"github.com/danmuck/rpclink/internal/transport"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

var trustedProxies = []string{"127.0.0.1", "::1"}

// Server exposes health, queue state and metrics for one transport.
type Server struct {
	tr      *transport.Transport
	router  *gin.Engine
	started time.Time
}

func New(tr *transport.Transport) *Server {
	observability.RegisterMetrics()
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(observability.RequestLogger(log.Logger))
	r.Use(observability.RequestMetricsMiddleware(tr.Name()))
	if err := r.SetTrustedProxies(trustedProxies); err != nil {
		log.Warn().Err(err).Strs("proxies", trustedProxies).Msg("admin trusted proxies rejected")
	}

	s := &Server{
		tr:      tr,
		router:  r,
		started: time.Now(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) HTTPRouter() *gin.Engine {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/health", func(c *gin.Context) {
		status := "ok"
		code := http.StatusOK
		if s.tr.Stopped() {
			status = "stopped"
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":    status,
			"uptime":    time.Since(s.started).String(),
			"transport": s.tr.Name(),
		})
	})

	s.router.GET("/queues", func(c *gin.Context) {
		depths := gin.H{}
		for kind, n := range s.tr.Queues().Depths() {
			depths[kind.String()] = n
		}
		stats := s.tr.Statistics()
		body := gin.H{
			"transport":      s.tr.Name(),
			"depths":         depths,
			"reader_stopped": s.tr.ReaderStopped(),
			"writer_stopped": s.tr.WriterStopped(),
			"read":           stats.ReadCount,
			"written":        stats.WrittenCount,
			"discarded":      stats.DiscardedCount,
		}
		if err := s.tr.Err(); err != nil {
			body["error"] = err.Error()
		}
		c.JSON(http.StatusOK, body)
	})

	metrics := promhttp.Handler()
	s.router.GET("/metrics", func(c *gin.Context) {
		for _, kind := range message.Kinds() {
			observability.SetQueueDepth(s.tr.Name(), kind.String(), s.tr.Queues().Len(kind))
		}
		metrics.ServeHTTP(c.Writer, c.Request)
	})
}

// ListenAndServe serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Str("transport", s.tr.Name()).Msg("admin listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	}
}
