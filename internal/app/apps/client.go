package apps

import (
	"context"
	"os"

	"syncpad/internal"
	"syncpad/internal/pkg/client"
	"syncpad/internal/pkg/validate"

	"github.com/pkg/errors"
)

// ClientAppCfg configures a ClientApp.
type ClientAppCfg interface {
	ApplyClientApp(*ClientApp) error
}

// ClientApp is the terminal client application.
type ClientApp struct {
	ServerURL string `validate:"required"`
	Username  string `validate:"required"`
}

// NewClientApp creates a new ClientApp.
func NewClientApp(cfgs ...ClientAppCfg) (*ClientApp, error) {
	app := &ClientApp{}
	for _, cfg := range cfgs {
		if err := cfg.ApplyClientApp(app); err != nil {
			return nil, errors.Wrap(err, "apply ClientApp cfg failed")
		}
	}
	if app.ServerURL == "" {
		app.ServerURL = internal.ServerURL
	}
	if app.Username == "" {
		app.Username = internal.Username
	}
	if err := validate.Validate().Struct(app); err != nil {
		return nil, errors.Wrap(err, "validate ClientApp failed")
	}
	return app, nil
}

// Run connects, registers and drives the interactive loop on stdin.
func (app *ClientApp) Run(ctx context.Context, _ []string) error {
	c, err := client.NewClient(
		client.WithServerURL(app.ServerURL),
		client.WithUsername(app.Username),
	)
	if err != nil {
		return errors.Wrap(err, "create client failed")
	}
	if err := c.Connect(ctx); err != nil {
		return errors.Wrap(err, "connect client failed")
	}
	defer func() {
		_ = c.Close()
	}()
	return errors.Wrap(c.Run(ctx, os.Stdin), "run client failed")
}
