// Package internal holds the runtime settings shared by the commands,
// resolved from flags and environment variables.
package internal

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Settings resolved by ValidateEnv. Precedence: flag, then environment
// variable, then default.
var (
	LogLevel   string
	ListenAddr string
	DataDir    string
	ServerURL  string
	Username   string
)

// Flag binds one command flag to an environment variable and a settings
// target.
type Flag struct {
	Name    string
	Env     string
	Default string
	Usage   string
	Target  *string
}

// The flags supported by the commands.
var (
	LogLevelFlag = Flag{
		Name:    "log-level",
		Env:     "SYNCPAD_LOG_LEVEL",
		Default: "info",
		Usage:   "log level (trace|debug|info|warn|error)",
		Target:  &LogLevel,
	}
	ListenAddrFlag = Flag{
		Name:    "addr",
		Env:     "SYNCPAD_ADDR",
		Default: "localhost:8750",
		Usage:   "address the server listens on",
		Target:  &ListenAddr,
	}
	DataDirFlag = Flag{
		Name:    "data-dir",
		Env:     "SYNCPAD_DATA_DIR",
		Default: "documents",
		Usage:   "directory documents are persisted under",
		Target:  &DataDir,
	}
	ServerURLFlag = Flag{
		Name:    "server-url",
		Env:     "SYNCPAD_SERVER_URL",
		Default: "ws://localhost:8750/ws",
		Usage:   "websocket URL of the server",
		Target:  &ServerURL,
	}
	UsernameFlag = Flag{
		Name:    "username",
		Env:     "SYNCPAD_USERNAME",
		Default: "",
		Usage:   "username to register with",
		Target:  &Username,
	}
)

var registered []*Flag

// RegisterCommandFlags declares the given flags on a command and binds
// each to its environment variable.
func RegisterCommandFlags(cmd *cobra.Command, flags []*Flag) error {
	for _, f := range flags {
		cmd.PersistentFlags().StringVar(f.Target, f.Name, f.Default, f.Usage)
		if err := viper.BindPFlag(f.Name, cmd.PersistentFlags().Lookup(f.Name)); err != nil {
			return errors.Wrapf(err, "bind flag %s failed", f.Name)
		}
		if err := viper.BindEnv(f.Name, f.Env); err != nil {
			return errors.Wrapf(err, "bind env %s failed", f.Env)
		}
		registered = append(registered, f)
	}
	return nil
}

// ValidateEnv resolves every registered flag and checks the values.
func ValidateEnv() error {
	for _, f := range registered {
		if value := viper.GetString(f.Name); value != "" {
			*f.Target = value
		}
	}
	switch strings.ToLower(LogLevel) {
	case "trace", "debug", "info", "warn", "error":
	default:
		return errors.Errorf("invalid log level %q", LogLevel)
	}
	return nil
}
