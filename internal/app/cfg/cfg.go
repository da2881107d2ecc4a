// Package cfg implements functionality to configure an app.
//
// The configuration objects defined here need only be implemented once,
// but can be applied to multiple types. In order to add support for a
// new type, the configuration need only implement an ApplyX method.
package cfg

import (
	"syncpad/internal"
	"syncpad/internal/app/apps"
)

// ListenAddrCfg is configuration for the server listen address.
type ListenAddrCfg struct {
	addr string
}

// NewListenAddrCfg creates a new ListenAddrCfg from the given address.
func NewListenAddrCfg(addr string) *ListenAddrCfg {
	return &ListenAddrCfg{addr: addr}
}

// ListenAddrFromEnv creates a new ListenAddrCfg from the current environment.
func ListenAddrFromEnv() *ListenAddrCfg {
	return &ListenAddrCfg{addr: internal.ListenAddr}
}

// ApplyServerApp applies the ListenAddrCfg to a ServerApp.
func (cfg ListenAddrCfg) ApplyServerApp(app *apps.ServerApp) error {
	app.ListenAddr = cfg.addr
	return nil
}

// DataDirCfg is configuration for the document persistence root.
type DataDirCfg struct {
	dir string
}

// NewDataDirCfg creates a new DataDirCfg from the given directory.
func NewDataDirCfg(dir string) *DataDirCfg {
	return &DataDirCfg{dir: dir}
}

// DataDirFromEnv creates a new DataDirCfg from the current environment.
func DataDirFromEnv() *DataDirCfg {
	return &DataDirCfg{dir: internal.DataDir}
}

// ApplyServerApp applies the DataDirCfg to a ServerApp.
func (cfg DataDirCfg) ApplyServerApp(app *apps.ServerApp) error {
	app.DataDir = cfg.dir
	return nil
}

// ServerURLCfg is configuration for the server URL a client dials.
type ServerURLCfg struct {
	url string
}

// NewServerURLCfg creates a new ServerURLCfg from the given URL.
func NewServerURLCfg(url string) *ServerURLCfg {
	return &ServerURLCfg{url: url}
}

// ServerURLFromEnv creates a new ServerURLCfg from the current environment.
func ServerURLFromEnv() *ServerURLCfg {
	return &ServerURLCfg{url: internal.ServerURL}
}

// ApplyClientApp applies the ServerURLCfg to a ClientApp.
func (cfg ServerURLCfg) ApplyClientApp(app *apps.ClientApp) error {
	app.ServerURL = cfg.url
	return nil
}

// UsernameCfg is configuration for the username a client registers with.
type UsernameCfg struct {
	username string
}

// NewUsernameCfg creates a new UsernameCfg from the given username.
func NewUsernameCfg(username string) *UsernameCfg {
	return &UsernameCfg{username: username}
}

// UsernameFromEnv creates a new UsernameCfg from the current environment.
func UsernameFromEnv() *UsernameCfg {
	return &UsernameCfg{username: internal.Username}
}

// ApplyClientApp applies the UsernameCfg to a ClientApp.
func (cfg UsernameCfg) ApplyClientApp(app *apps.ClientApp) error {
	app.Username = cfg.username
	return nil
}
