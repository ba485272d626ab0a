package main

import (
	"fmt"
	"io"
	"log"
	"os"

	"github.com/spf13/cobra"

	"socialsim/server/internal/config"
	"socialsim/server/internal/storage"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "socialsim",
		Short:        "Social skills conversation simulator",
		SilenceUsage: true,
	}
	root.PersistentFlags().String("config", "", "config file path (yaml)")
	root.AddCommand(newServeCommand(), newProgressCommand())
	return root
}

// loadConfig 读取 --config 指定的配置，未指定时尝试 SOCIALSIM_CONFIG。
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = os.Getenv("SOCIALSIM_CONFIG")
	}
	return config.Load(path)
}

// newLogger 按 logging.output 创建日志输出。
func newLogger(cfg *config.Config) (*log.Logger, io.Closer, error) {
	switch cfg.Logging.Output {
	case "", "stderr":
		return log.New(os.Stderr, "", log.LstdFlags), io.NopCloser(nil), nil
	case "stdout":
		return log.New(os.Stdout, "", log.LstdFlags), io.NopCloser(nil), nil
	default:
		f, err := os.OpenFile(cfg.Logging.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		return log.New(f, "", log.LstdFlags), f, nil
	}
}

func openStorage(cfg *config.Config, logger *log.Logger) (*storage.Gateway, error) {
	kv, err := storage.Open(storage.Options{
		Backend:       cfg.Storage.Backend,
		Path:          cfg.Storage.Path,
		RedisAddr:     cfg.Storage.Redis.Addr,
		RedisPassword: cfg.Storage.Redis.Password,
		RedisDB:       cfg.Storage.Redis.DB,
		RedisPrefix:   cfg.Storage.Redis.Prefix,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Backend, err)
	}
	return storage.NewGateway(kv, logger), nil
}
