// Package cliconfig loads the small TOML configuration file shared by the
// cmd/ front-ends: host, port, network magic, optional local-socket path,
// and log level. This is the ambient config layer spec.md is silent on;
// the pack carries no CLI framework, so flags are parsed with the standard
// library, matching talek/frontend/main.go and talek/replica/main.go.
package cliconfig

import (
	"github.com/BurntSushi/toml"
)

// Config is decoded from a TOML file and may be overridden by flags.
type Config struct {
	Host         string `toml:"host"`
	Port         uint16 `toml:"port"`
	NetworkMagic uint32 `toml:"network_magic"`
	SocketPath   string `toml:"socket_path"`
	LogLevel     string `toml:"log_level"`
}

// Default returns the mainnet-shaped defaults used when no config file is
// given and no flags override them.
func Default() Config {
	return Config{
		Host:         "localhost",
		Port:         3001,
		NetworkMagic: 764824073,
		LogLevel:     "info",
	}
}

// Load reads path as TOML over top of Default. An empty path returns the
// defaults unchanged.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
