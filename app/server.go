package app

import (
	"context"
	"net"
	stdhttp "net/http"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/searchktools/maya/config"
	"github.com/searchktools/maya/core"
	"github.com/searchktools/maya/core/http"
	"github.com/searchktools/maya/core/middleware"
	"github.com/searchktools/maya/core/observability"
)

// NewMonitor returns a metrics monitor when a metrics address is configured,
// nil otherwise.
func NewMonitor(cfg *config.Config) *observability.Monitor {
	if cfg.MetricsAddr == "" {
		return nil
	}
	return observability.NewMonitor()
}

// NewEngine builds the engine from cfg.
func NewEngine(cfg *config.Config, logger *zap.Logger, monitor *observability.Monitor) *core.Engine {
	opts := []core.Option{
		core.WithLogger(logger),
		core.WithBodyParse(cfg.BodyParse),
		core.WithStaticDir(cfg.StaticDir),
		core.WithReadTimeout(cfg.ReadTimeout),
		core.WithMaxConnections(cfg.MaxConnections),
		core.WithMaxRequestBytes(cfg.MaxRequestBytes),
		core.WithReusePort(cfg.ReusePort),
		core.WithMonitor(monitor),
	}

	if cfg.CacheSize > 0 {
		opts = append(opts, core.WithCache(http.NewResponseCache(
			http.WithTTL(cfg.CacheTTL),
			http.WithCapacity(cfg.CacheSize),
		)))
	} else {
		opts = append(opts, core.WithCache(nil))
	}

	if cfg.CORSEnabled {
		opts = append(opts, core.WithCORS(middleware.WithAllowedOrigins(cfg.CORSOrigins...)))
	}

	return core.NewEngine(opts...)
}

// Server owns the listeners of a running application.
type Server struct {
	cfg     *config.Config
	engine  *core.Engine
	monitor *observability.Monitor
	logger  *zap.Logger

	mu          sync.Mutex
	addr        net.Addr
	metrics     *stdhttp.Server
	metricsAddr net.Addr
	served      chan struct{}
}

func NewServer(cfg *config.Config, engine *core.Engine, monitor *observability.Monitor, logger *zap.Logger) *Server {
	return &Server{
		cfg:     cfg,
		engine:  engine,
		monitor: monitor,
		logger:  logger.Named("server"),
	}
}

// Addr is the engine's listen address once started.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// MetricsAddr is the metrics listen address, nil when metrics are disabled.
func (s *Server) MetricsAddr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metricsAddr
}

// Start binds the listeners and serves in the background. Bind errors are
// returned; serve errors are logged.
func (s *Server) Start(ctx context.Context) error {
	ln, err := s.engine.Listen(ctx, s.cfg.Addr())
	if err != nil {
		return err
	}

	if s.cfg.MetricsAddr != "" && s.monitor != nil {
		mln, err := net.Listen("tcp", s.cfg.MetricsAddr)
		if err != nil {
			_ = ln.Close()
			return errors.Wrapf(err, "listening for metrics on %s", s.cfg.MetricsAddr)
		}
		mux := stdhttp.NewServeMux()
		mux.Handle("/metrics", s.monitor.Handler())
		srv := &stdhttp.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

		s.mu.Lock()
		s.metrics = srv
		s.metricsAddr = mln.Addr()
		s.mu.Unlock()

		go func() {
			if err := srv.Serve(mln); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
				s.logger.Error("metrics server error", zap.Error(err))
			}
		}()
		s.logger.Info("serving metrics", zap.Stringer("addr", mln.Addr()))
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.served = make(chan struct{})
	served := s.served
	s.mu.Unlock()

	s.logger.Info("starting server",
		zap.Stringer("addr", ln.Addr()),
		zap.String("env", s.cfg.Env),
		zap.Bool("body_parse", s.cfg.BodyParse),
	)
	go func() {
		defer close(served)
		if err := s.engine.Serve(context.Background(), ln); err != nil && !errors.Is(err, core.ErrServerClosed) {
			s.logger.Error("server error", zap.Error(err))
		}
	}()
	return nil
}

// Stop shuts the engine down, waiting for in-flight requests no longer than
// the configured shutdown timeout or ctx, whichever ends first.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("stopping server")

	if s.cfg.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.ShutdownTimeout)
		defer cancel()
	}

	err := s.engine.Shutdown(ctx)

	s.mu.Lock()
	metrics, served := s.metrics, s.served
	s.mu.Unlock()

	if metrics != nil {
		err = errors.CombineErrors(err, metrics.Shutdown(ctx))
	}
	if served != nil {
		<-served
	}
	return err
}

func startServerHook(lc fx.Lifecycle, s *Server) {
	lc.Append(fx.Hook{
		OnStart: s.Start,
		OnStop:  s.Stop,
	})
}
