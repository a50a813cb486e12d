package cmd

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"promptpilot/internal/blob"
	"promptpilot/internal/config"
	"promptpilot/internal/conversation"
	"promptpilot/internal/credentials"
	"promptpilot/internal/enrich"
	"promptpilot/internal/extract"
	"promptpilot/internal/filestore"
	"promptpilot/internal/provider"
	providerfactory "promptpilot/internal/provider/factory"
	"promptpilot/internal/router"
	"promptpilot/internal/server"
)

const extractTimeout = 2 * time.Minute

const serveUsage = `Usage:
  promptpilot serve --config <path> [--port <port>]

Flags:
  --config string   Path to YAML configuration file (required)
  --port   int      Override server port from configuration`

func serve(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprintln(os.Stderr, serveUsage)
	}

	var cfgPath string
	var overridePort int
	fs.StringVar(&cfgPath, "config", "", "path to configuration file")
	fs.IntVar(&overridePort, "port", 0, "override server port")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return nil
		}
		return fmt.Errorf("parse serve flags: %w", err)
	}

	if cfgPath == "" {
		return errors.New("serve command requires --config <path>")
	}

	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}

	if overridePort != 0 {
		if overridePort < 0 || overridePort > 65535 {
			return fmt.Errorf("port override %d must be a valid TCP port", overridePort)
		}
		cfg.Server.Port = overridePort
	}

	files, closeStore, err := openConversations(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	extractor, err := extract.New(cfg.Extract, providerfactory.NewHTTPClient(extractTimeout))
	if err != nil {
		return err
	}

	registry := provider.NewRegistry()
	if err := providerfactory.RegisterConfiguredProviders(cfg, registry); err != nil {
		return err
	}

	rt := router.New(
		registry,
		credentials.New(cfg.Routing, cfg.Providers),
		enrich.New(extractor),
		cfg.Routing,
	)

	srv, err := server.New(cfg, rt, files)
	if err != nil {
		return err
	}

	return srv.Run(ctx)
}

// loadConfig reads the configuration and installs the default logger.
func loadConfig(path string) (config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, err
	}

	logger, err := newLogger(cfg.Log, os.Stderr)
	if err != nil {
		return config.Config{}, err
	}
	slog.SetDefault(logger)
	return cfg, nil
}

func openConversations(ctx context.Context, cfg config.Config) (*conversation.Service, func(), error) {
	store, err := filestore.Open(ctx, cfg.Store)
	if err != nil {
		return nil, nil, err
	}
	closeStore := func() {
		if err := store.Close(); err != nil {
			slog.Warn("close file store", "err", err)
		}
	}

	var blobs blob.Deleter = blob.Noop{}
	if cfg.Blob.Enabled() {
		cld, err := blob.NewCloudinary(cfg.Blob)
		if err != nil {
			closeStore()
			return nil, nil, err
		}
		blobs = cld
	} else {
		slog.Warn("blob storage credentials missing, remote file deletion disabled")
	}

	slog.Info("file store ready", "driver", cfg.Store.Driver)
	return conversation.New(store, blobs), closeStore, nil
}
