package app

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"

	"github.com/searchktools/maya/config"
)

// App is the application instance: configuration, logging, metrics and the
// engine, wired with fx.
type App struct {
	app *fx.App
}

// AppConfig holds configuration for the app.
type AppConfig struct {
	// Config replaces loading from the environment when set.
	Config    *config.Config
	FxOptions []fx.Option
}

// Option configures the App.
type Option func(*AppConfig)

// WithConfig uses cfg instead of the MAYA_* environment.
func WithConfig(cfg *config.Config) Option {
	return func(c *AppConfig) { c.Config = cfg }
}

// WithFx adds fx options, e.g. providers for handler dependencies.
func WithFx(fxOpts ...fx.Option) Option {
	return func(c *AppConfig) { c.FxOptions = append(c.FxOptions, fxOpts...) }
}

// Options returns the fx options New is built from. routing is invoked with
// its dependencies before the engine starts and must take *core.Engine to
// register routes:
//
//	app.Options(func(e *core.Engine) {
//	    e.GET("/", handleIndex)
//	})
func Options(routing any, opts ...Option) fx.Option {
	var cfg AppConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	configProvider := fx.Provide(config.New)
	if cfg.Config != nil {
		configProvider = fx.Supply(cfg.Config)
	}

	return fx.Options(
		configProvider,
		fx.Provide(NewLogger),
		fx.Provide(NewMonitor),
		fx.Provide(NewEngine),
		fx.Provide(NewServer),
		fx.Options(cfg.FxOptions...),
		fx.Invoke(routing),
		fx.Invoke(startServerHook),
	)
}

// New creates an application. fx lifecycle events are logged through the
// application logger.
func New(routing any, opts ...Option) *App {
	return &App{
		app: fx.New(
			Options(routing, opts...),
			fx.WithLogger(func(l *zap.Logger) fxevent.Logger {
				return &fxevent.ZapLogger{Logger: l.Named("fx")}
			}),
		),
	}
}

// Err reports a failure to build the dependency graph.
func (a *App) Err() error { return a.app.Err() }

// Run starts the application and blocks until SIGINT or SIGTERM, then shuts
// down gracefully.
func (a *App) Run() {
	a.app.Run()
}

// Start runs the application until ctx is cancelled.
func (a *App) Start(ctx context.Context) error {
	if err := a.app.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), a.app.StopTimeout())
	defer cancel()

	return a.app.Stop(stopCtx)
}
