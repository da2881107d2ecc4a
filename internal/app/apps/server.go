package apps

import (
	"context"
	"os/signal"
	"syscall"

	"syncpad/internal"
	"syncpad/internal/pkg/document"
	"syncpad/internal/pkg/engine"
	"syncpad/internal/pkg/registry"
	"syncpad/internal/pkg/server"
	"syncpad/internal/pkg/session"
	"syncpad/internal/pkg/validate"

	"github.com/pkg/errors"
)

// ServerAppCfg configures a ServerApp.
type ServerAppCfg interface {
	ApplyServerApp(*ServerApp) error
}

// ServerApp is the sync server application.
type ServerApp struct {
	ListenAddr string `validate:"required"`
	DataDir    string `validate:"required"`
}

// NewServerApp creates a new ServerApp.
func NewServerApp(cfgs ...ServerAppCfg) (*ServerApp, error) {
	app := &ServerApp{}
	for _, cfg := range cfgs {
		if err := cfg.ApplyServerApp(app); err != nil {
			return nil, errors.Wrap(err, "apply ServerApp cfg failed")
		}
	}
	if app.ListenAddr == "" {
		app.ListenAddr = internal.ListenAddr
	}
	if app.DataDir == "" {
		app.DataDir = internal.DataDir
	}
	if err := validate.Validate().Struct(app); err != nil {
		return nil, errors.Wrap(err, "validate ServerApp failed")
	}
	return app, nil
}

// Run loads the persisted documents, wires the engine, registry and
// websocket surface together, and serves until interrupted.
func (app *ServerApp) Run(ctx context.Context, _ []string) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fs, err := document.NewFSStore(app.DataDir)
	if err != nil {
		return errors.Wrap(err, "create document store failed")
	}
	store, err := document.NewStore(document.WithPersistence(fs))
	if err != nil {
		return errors.Wrap(err, "load document store failed")
	}
	eng, err := engine.NewEngine(engine.WithStore(store))
	if err != nil {
		return errors.Wrap(err, "create engine failed")
	}

	// The eviction handler runs the same cleanup as a disconnect so a
	// silently dead client does not linger in the active-editor sets.
	var reg *registry.Registry
	reg, err = registry.NewRegistry(
		registry.WithEvictHandler(func(username string) {
			session.Cleanup(eng, reg, username)
		}),
	)
	if err != nil {
		return errors.Wrap(err, "create registry failed")
	}

	srv, err := server.NewServer(
		server.WithListenAddr(app.ListenAddr),
		server.WithEngine(eng),
		server.WithRegistry(reg),
	)
	if err != nil {
		return errors.Wrap(err, "create server failed")
	}
	return errors.Wrap(srv.Run(ctx), "run server failed")
}
