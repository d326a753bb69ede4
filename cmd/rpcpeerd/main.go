// Command rpcpeerd is a minimal demo server: it accepts websocket
// connections, attaches each to a rpc.Peer, and answers Ping and
// OpenBuffer requests. It exists to exercise the rpc/transport/schema
// packages end to end, not as a production service.
package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	root := &cobra.Command{
		Use:   "rpcpeerd",
		Short: "Demo websocket server for the rpc peer multiplexer",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config file")

	root.AddCommand(newServeCmd(&configPath))
	root.AddCommand(newInitConfigCmd())

	return root
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			logger := log.NewLogfmtLogger(os.Stderr)
			logger = log.With(logger, "ts", log.DefaultTimestampUTC, "caller", log.DefaultCaller)

			srv := newServer(cfg, logger)
			level.Info(logger).Log("msg", "listening", "addr", cfg.ListenAddr)
			return http.ListenAndServe(cfg.ListenAddr, srv.handler(cfg.AllowedOrigins))
		},
	}
}

func newInitConfigCmd() *cobra.Command {
	var out string
	cmd := &cobra.Command{
		Use:   "init-config",
		Short: "Write a starting-point TOML config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return writeDefaultConfig(out)
		},
	}
	cmd.Flags().StringVar(&out, "out", "rpcpeerd.toml", "path to write")
	return cmd
}

// loadConfig binds defaults, an optional TOML file, and
// RPCPEERD_-prefixed environment variables, in that order of
// increasing precedence, via viper, then decodes into Config with
// mapstructure.
func loadConfig(path string) (Config, error) {
	v := viper.New()
	def := defaultConfig()
	v.SetDefault("listen_addr", def.ListenAddr)
	v.SetDefault("max_concurrent_handlers", def.MaxConcurrentHandlers)
	v.SetDefault("allowed_origins", def.AllowedOrigins)

	v.SetEnvPrefix("RPCPEERD")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("toml")
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
