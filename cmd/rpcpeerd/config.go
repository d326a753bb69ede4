package main

import (
	"os"

	"github.com/BurntSushi/toml"
)

// Config is rpcpeerd's runtime configuration. Fields are bound twice:
// mapstructure tags let viper populate a Config from a TOML file, env
// vars, or flags; toml tags let BurntSushi/toml write one back out for
// the init-config command.
type Config struct {
	ListenAddr            string   `toml:"listen_addr" mapstructure:"listen_addr"`
	MaxConcurrentHandlers int64    `toml:"max_concurrent_handlers" mapstructure:"max_concurrent_handlers"`
	AllowedOrigins        []string `toml:"allowed_origins" mapstructure:"allowed_origins"`
}

func defaultConfig() Config {
	return Config{
		ListenAddr:            ":8787",
		MaxConcurrentHandlers: 32,
		AllowedOrigins:        []string{"*"},
	}
}

// writeDefaultConfig writes a commented-free starting point config to
// path, for `rpcpeerd init-config`.
func writeDefaultConfig(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(defaultConfig())
}
