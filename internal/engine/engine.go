// Package engine wires configuration, integrations, the notification hub,
// the registrar and the dispatcher into one running instance.
//
// New performs every startup step in order and fails with a *StartupError
// before anything is dispatched:
//
//  1. configuration: locate and load the config file, load custom
//     integration types, build one integration per notify alias
//  2. registration: discover tests, bind their notification targets and run
//     their setup functions
//
// Start then launches one goroutine per stream and returns. Shutdown stops
// the streams, drains every integration queue and calls OnCompleted.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"sync"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/streamwatch/streamwatch/internal/config"
	"github.com/streamwatch/streamwatch/internal/discovery"
	"github.com/streamwatch/streamwatch/internal/dispatch"
	"github.com/streamwatch/streamwatch/internal/integration"
	"github.com/streamwatch/streamwatch/internal/metrics"
	"github.com/streamwatch/streamwatch/internal/notify"
	"github.com/streamwatch/streamwatch/internal/registrar"
	"github.com/streamwatch/streamwatch/internal/store"
	"github.com/streamwatch/streamwatch/pkg/check"
)

// Options controls how New assembles the engine.
type Options struct {
	// TestPath is a test plugin file or a directory of them. The config file
	// is looked up next to it unless ConfigPath is set.
	TestPath string
	// ConfigPath overrides config file lookup.
	ConfigPath string
	// ConfigName is the file name looked up next to TestPath.
	// Defaults to config.DefaultFileName.
	ConfigName string

	// Tests, when non-nil, are registered instead of discovering plugins
	// under TestPath.
	Tests []*check.Test

	// Registry holds the known integration types. Defaults to
	// integration.Default().
	Registry *integration.Registry
	// Resolver loads custom integration modules. Defaults to a
	// PluginResolver rooted at the config file's directory.
	Resolver integration.Resolver
	// Discover opens test plugins. Defaults to plugin.Open.
	Discover discovery.Opener

	Metrics *metrics.Metrics
}

// Engine is one configured, registered set of tests.
type Engine struct {
	configPath string
	cfg        *config.Config
	decls      []config.Declaration
	types      *integration.Registry
	instances  integration.Instances

	hub      *notify.Hub
	history  *store.Store
	registry *registrar.Registry
	units    []*dispatch.Unit
	metrics  *metrics.Metrics
	health   *health.Server

	mu     sync.RWMutex
	group  *dispatch.Group
	cancel context.CancelFunc
}

// New loads configuration and registers tests. Any failure is a
// *StartupError naming the phase.
func New(opts Options) (*Engine, error) {
	e := &Engine{
		types:   opts.Registry,
		metrics: opts.Metrics,
		health:  health.NewServer(),
	}
	if e.types == nil {
		e.types = integration.Default()
	}
	e.health.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)

	if err := e.configure(opts); err != nil {
		return nil, configErr(err)
	}
	if err := e.register(opts); err != nil {
		return nil, registrationErr(err)
	}
	return e, nil
}

func (e *Engine) configure(opts Options) error {
	path := opts.ConfigPath
	if path == "" {
		p, err := config.Locate(opts.TestPath, opts.ConfigName)
		if err != nil {
			return err
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	e.configPath = path
	e.cfg = cfg

	res := opts.Resolver
	if res == nil {
		res = integration.PluginResolver{Dir: filepath.Dir(path)}
	}
	if err := e.types.LoadCustom(cfg.CustomIntegrations, res); err != nil {
		return err
	}

	decls, err := cfg.Declarations()
	if err != nil {
		return err
	}
	instances, err := e.types.Build(decls)
	if err != nil {
		return err
	}
	e.decls = decls
	e.instances = instances

	slog.Info("engine: configuration loaded",
		"path", path,
		"integrations", instances.Aliases(),
	)
	return nil
}

func (e *Engine) register(opts Options) error {
	tests := opts.Tests
	if tests == nil {
		ts, err := discovery.New(opts.Discover).Load(opts.TestPath)
		if err != nil {
			return err
		}
		tests = ts
	}

	e.history = store.New(e.cfg.History.TTL)
	e.hub = notify.New(e.instances,
		notify.WithRecorder(e.history),
		notify.WithMetrics(e.metrics),
	)

	reg, err := registrar.New(e.hub, registrar.WithMetrics(e.metrics)).Register(tests...)
	if err != nil {
		e.hub.Discard()
		return err
	}
	e.registry = reg
	e.units = dispatch.Build(reg)
	return nil
}

// Start launches every stream and returns immediately. Streams stop when ctx
// is cancelled or Shutdown is called.
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.group != nil {
		return fmt.Errorf("engine already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	go e.history.Run(ctx)

	for _, u := range e.units {
		e.health.SetServingStatus(u.Name, healthpb.HealthCheckResponse_SERVING)
	}
	e.group = dispatch.Launch(ctx, e.units,
		dispatch.WithMetrics(e.metrics),
		dispatch.OnDone(func(name string, _ error) {
			e.health.SetServingStatus(name, healthpb.HealthCheckResponse_NOT_SERVING)
		}),
	)
	e.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return nil
}

// Done is closed once every stream has ended. It is nil before Start.
func (e *Engine) Done() <-chan struct{} {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.group == nil {
		return nil
	}
	return e.group.Done()
}

// Shutdown stops the streams, waits for them to end and closes the
// notification hub, delivering everything still queued.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.mu.RLock()
	group, cancel := e.group, e.cancel
	e.mu.RUnlock()

	e.health.Shutdown()
	if cancel != nil {
		cancel()
		select {
		case <-group.Done():
		case <-ctx.Done():
			return fmt.Errorf("waiting for streams: %w", ctx.Err())
		}
	}
	return e.hub.Close(ctx)
}

// ConfigPath returns the path of the loaded config file.
func (e *Engine) ConfigPath() string { return e.configPath }

// Config returns the loaded configuration.
func (e *Engine) Config() *config.Config { return e.cfg }

// History returns the notification history.
func (e *Engine) History() *store.Store { return e.history }

// Health returns the gRPC health server tracking the engine and each stream.
func (e *Engine) Health() *health.Server { return e.health }

// Tests returns the registered tests.
func (e *Engine) Tests() []registrar.TestInfo { return e.registry.Tests() }

// Streams returns the state of each stream; all are reported running before
// Start.
func (e *Engine) Streams() []dispatch.Status {
	e.mu.RLock()
	group := e.group
	e.mu.RUnlock()
	if group != nil {
		return group.Statuses()
	}
	out := make([]dispatch.Status, 0, len(e.units))
	for _, u := range e.units {
		out = append(out, dispatch.Status{Name: u.Name, State: dispatch.StateRunning})
	}
	return out
}

// Integrations describes every declared integration.
func (e *Engine) Integrations() []integration.Info {
	out := make([]integration.Info, 0, len(e.decls))
	for _, d := range e.decls {
		info := integration.Info{Alias: d.Alias, Type: d.Type}
		if ep, ok := e.hub.Endpoint(d.Alias); ok {
			info.Bound = true
			info.Pending = ep.Pending()
		}
		if ws, ok := e.instances[d.Alias].(*integration.WebSocket); ok {
			info.Clients = ws.Count()
			info.Endpoint = "/ws/" + d.Alias
		}
		out = append(out, info)
	}
	return out
}

// Sockets returns every integration that serves HTTP, keyed by alias.
func (e *Engine) Sockets() map[string]http.Handler {
	out := make(map[string]http.Handler)
	for alias, inst := range e.instances {
		if h, ok := inst.(http.Handler); ok {
			out[alias] = h
		}
	}
	return out
}
