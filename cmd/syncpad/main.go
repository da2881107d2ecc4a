// Package main is the syncpad application entrypoint.
package main

import (
	"context"
	"fmt"

	"syncpad/internal"
	"syncpad/internal/app/apps"
	"syncpad/internal/app/cfg"
	"syncpad/internal/pkg/log"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// CLI command definitions.
var (
	logger logrus.FieldLogger = logrus.StandardLogger()

	rootCmd = &cobra.Command{
		Use:   "syncpad",
		Short: "Real-time multi-user plain-text document synchronization.",
		RunE: func(*cobra.Command, []string) error {
			return nil
		},
	}

	serverCmd = &cobra.Command{
		Use:   "server",
		Short: "Starts a syncpad server.",
		RunE:  runCmd,
	}

	clientCmd = &cobra.Command{
		Use:   "client",
		Short: "Starts an interactive syncpad client.",
		RunE:  runCmd,
	}
)

func newApp(_ context.Context, cmd *cobra.Command) (apps.App, error) {
	switch cmd.Name() {
	case "server":
		app, err := apps.NewServerApp(cfg.ListenAddrFromEnv(), cfg.DataDirFromEnv())
		if err != nil {
			return nil, errors.Wrap(err, "new server app failed")
		}
		return app, nil
	case "client":
		app, err := apps.NewClientApp(cfg.ServerURLFromEnv(), cfg.UsernameFromEnv())
		if err != nil {
			return nil, errors.Wrap(err, "new client app failed")
		}
		return app, nil
	default:
		return nil, fmt.Errorf("unknown command: %s", cmd.Name())
	}
}

func runCmd(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	if err := chainedCheck(
		ctx,
		envCheck,
	); err != nil {
		return errors.Wrap(err, "chained check failed")
	}
	app, err := newApp(ctx, cmd)
	if err != nil {
		return errors.Wrapf(err, "new %s app failed", cmd.Name())
	}
	return errors.Wrap(app.Run(ctx, args), "run app failed")
}

func envCheck(context.Context) error {
	if err := internal.ValidateEnv(); err != nil {
		return errors.Wrap(err, "validate env failed")
	}
	log.SetLogger(internal.LogLevel)
	return nil
}

func chainedCheck(ctx context.Context, checks ...func(context.Context) error) error {
	for _, check := range checks {
		if err := check(ctx); err != nil {
			return err
		}
	}
	return nil
}

func init() {
	err := internal.RegisterCommandFlags(rootCmd, []*internal.Flag{
		&internal.LogLevelFlag,
	})
	if err != nil {
		logger.Fatalln(err)
	}

	err = internal.RegisterCommandFlags(serverCmd, []*internal.Flag{
		&internal.ListenAddrFlag,
		&internal.DataDirFlag,
	})
	if err != nil {
		logger.Fatalln(err)
	}

	err = internal.RegisterCommandFlags(clientCmd, []*internal.Flag{
		&internal.ServerURLFlag,
		&internal.UsernameFlag,
	})
	if err != nil {
		logger.Fatalln(err)
	}

	rootCmd.AddCommand(
		serverCmd,
		clientCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		logger.Fatal(errors.Wrap(err, "execute root command failed"))
	}
}
