// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/bureau-foundation/devicehub/lib/blobstore"
	"github.com/bureau-foundation/devicehub/lib/clock"
	"github.com/bureau-foundation/devicehub/lib/config"
	"github.com/bureau-foundation/devicehub/lib/metrics"
	"github.com/bureau-foundation/devicehub/lib/process"
	"github.com/bureau-foundation/devicehub/lib/registry"
	"github.com/bureau-foundation/devicehub/lib/secret"
	"github.com/bureau-foundation/devicehub/lib/service"
	"github.com/bureau-foundation/devicehub/lib/session"
	"github.com/bureau-foundation/devicehub/lib/store"
	"github.com/bureau-foundation/devicehub/lib/version"
)

const usage = `Usage: devicehub-server [port] [flags]

`

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		process.UsageError(err, usage)
	}
	if opts.showVersion {
		version.Print("devicehub-server")
		return
	}
	if err := run(opts); err != nil {
		process.Fatal(err)
	}
}

// options are the parsed command line. Empty strings mean "not given";
// overrides only apply what was given.
type options struct {
	configPath   string
	port         int
	dataDir      string
	listenHost   string
	allowList    string
	allowAll     bool
	metrics      string
	importLegacy string
	legacyOwner  string
	showVersion  bool
}

func parseFlags(args []string) (*options, error) {
	opts := &options{port: -1}
	flagSet := pflag.NewFlagSet("devicehub-server", pflag.ContinueOnError)
	flagSet.StringVar(&opts.configPath, "config", "", "configuration file (default: $"+config.EnvVar+", else built-in defaults)")
	flagSet.StringVar(&opts.dataDir, "data", "", "data directory (overrides paths.data)")
	flagSet.StringVar(&opts.listenHost, "listen", "", "interface to bind (overrides listen.host)")
	flagSet.StringVar(&opts.allowList, "allow-list", "", "file of accepted \"name,size\" programs (overrides integrity.allow_list_file)")
	flagSet.BoolVar(&opts.allowAll, "allow-all", false, "accept every device program (development only)")
	flagSet.StringVar(&opts.metrics, "metrics", "", "serve Prometheus metrics on this address (overrides metrics.listen)")
	flagSet.StringVar(&opts.importLegacy, "import-legacy", "", "seed an empty data directory from users.txt and devices.txt in this directory")
	flagSet.StringVar(&opts.legacyOwner, "legacy-owner", "", "user that owns every imported device and domain")
	flagSet.BoolVar(&opts.showVersion, "version", false, "print version information and exit")
	flagSet.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flagSet.PrintDefaults()
	}

	if err := flagSet.Parse(args); err != nil {
		return nil, err
	}

	switch positional := flagSet.Args(); len(positional) {
	case 0:
	case 1:
		port, err := strconv.Atoi(positional[0])
		if err != nil || port < 0 || port > 65535 {
			return nil, fmt.Errorf("invalid port %q", positional[0])
		}
		opts.port = port
	default:
		return nil, fmt.Errorf("unexpected argument: %s", positional[1])
	}

	if (opts.importLegacy == "") != (opts.legacyOwner == "") {
		return nil, errors.New("--import-legacy and --legacy-owner must be given together")
	}
	return opts, nil
}

// loadConfig reads the configuration file, if any, applies the
// command-line overrides and validates the result.
func loadConfig(opts *options) (*config.Config, error) {
	var cfg *config.Config
	var err error
	switch {
	case opts.configPath != "":
		cfg, err = config.LoadFile(opts.configPath)
	case os.Getenv(config.EnvVar) != "":
		cfg, err = config.Load()
	default:
		cfg = config.Default()
	}
	if err != nil {
		return nil, err
	}

	if opts.port >= 0 {
		cfg.Listen.Port = opts.port
	}
	if opts.dataDir != "" {
		cfg.Paths.Data = opts.dataDir
	}
	if opts.listenHost != "" {
		cfg.Listen.Host = opts.listenHost
	}
	if opts.allowList != "" {
		cfg.Integrity.AllowListFile = opts.allowList
	}
	if opts.allowAll {
		cfg.Integrity.AllowAll = true
	}
	if opts.metrics != "" {
		cfg.Metrics.Listen = opts.metrics
	}
	cfg.ExpandVariables()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger. Auto format picks text for a
// terminal and JSON otherwise.
func newLogger(logConfig config.LogConfig, output io.Writer, terminal bool) (*slog.Logger, error) {
	level, err := logConfig.SlogLevel()
	if err != nil {
		return nil, err
	}
	options := &slog.HandlerOptions{Level: level}

	format := logConfig.Format
	if format == config.LogFormatAuto {
		format = config.LogFormatJSON
		if terminal {
			format = config.LogFormatText
		}
	}
	var handler slog.Handler
	if format == config.LogFormatText {
		handler = slog.NewTextHandler(output, options)
	} else {
		handler = slog.NewJSONHandler(output, options)
	}
	return slog.New(handler), nil
}

func run(opts *options) error {
	cfg, err := loadConfig(opts)
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log, os.Stderr, term.IsTerminal(int(os.Stderr.Fd())))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, opts, logger, nil)
}

// serve opens the store, builds the registry and runs the device
// listener (and the metrics endpoint, when configured) until ctx is
// cancelled. When ready is non-nil it receives the device listener's
// address once bound.
func serve(ctx context.Context, cfg *config.Config, opts *options, logger *slog.Logger, ready chan<- net.Addr) error {
	compression, err := blobstore.ParseCompression(cfg.Store.Compression)
	if err != nil {
		return err
	}
	st, err := store.Open(store.Config{
		DataDir:     cfg.Paths.Data,
		Synchronous: cfg.StoreSynchronous(),
		Compression: compression,
		Logger:      logger,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("closing store", "error", err)
		}
	}()

	realClock := clock.Real()
	hasher := secret.NewHasher(cfg.Registry.BcryptCost)

	if opts != nil && opts.importLegacy != "" {
		report, err := st.ImportLegacy(ctx, store.LegacyImport{
			Dir:    opts.importLegacy,
			Owner:  opts.legacyOwner,
			Hasher: hasher,
			Now:    realClock.Now(),
		})
		if err != nil {
			return fmt.Errorf("importing legacy data: %w", err)
		}
		logger.Info("legacy data imported",
			"dir", opts.importLegacy,
			"owner", opts.legacyOwner,
			"users", report.Users,
			"domains", report.Domains,
			"members", report.Members,
			"skipped", report.Skipped,
		)
	}

	snapshot, err := st.Load(ctx)
	if err != nil {
		return err
	}

	serverMetrics := metrics.New()
	policy, err := registry.ParseImagePolicy(cfg.Registry.ImageReadPolicy)
	if err != nil {
		return err
	}
	reg, err := registry.New(registry.Config{
		Store:         st,
		Hasher:        hasher,
		Clock:         realClock,
		ImagePolicy:   policy,
		DefaultDomain: cfg.Registry.DefaultDomain,
		Metrics:       serverMetrics,
		Logger:        logger,
	}, snapshot)
	if err != nil {
		return err
	}
	stats := reg.Stats()
	logger.Info("state loaded",
		"data", cfg.Paths.Data,
		"users", stats.Users,
		"domains", stats.Domains,
		"samples", stats.Samples,
		"images", stats.Images,
	)

	oracle, err := cfg.Oracle(logger)
	if err != nil {
		return err
	}
	handler, err := session.NewHandler(session.Config{
		Registry:        reg,
		Oracle:          oracle,
		MaxImageBytes:   cfg.Session.MaxImageBytes,
		MaxCommandBytes: cfg.Session.MaxCommandBytes,
		Metrics:         serverMetrics,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	// A failure of either server cancels the other.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var metricsDone chan error
	if cfg.Metrics.Listen != "" {
		mux := http.NewServeMux()
		mux.Handle("GET /metrics", serverMetrics.Handler())
		metricsServer := service.NewHTTPServer(service.HTTPServerConfig{
			Address: cfg.Metrics.Listen,
			Handler: mux,
			Logger:  logger,
		})
		metricsDone = make(chan error, 1)
		go func() {
			err := metricsServer.Serve(ctx)
			if err != nil {
				cancel()
			}
			metricsDone <- err
		}()
	}

	streamServer := service.NewStreamServer(service.StreamServerConfig{
		Address: cfg.Listen.Address(),
		Handler: handler.HandleConnection,
		Logger:  logger,
	})
	if ready != nil {
		go func() {
			select {
			case <-streamServer.Ready():
				ready <- streamServer.Addr()
			case <-ctx.Done():
			}
		}()
	}

	logger.Info("devicehub server starting",
		"version", version.Info(),
		"address", cfg.Listen.Address(),
		"image_read_policy", policy,
	)
	streamErr := streamServer.Serve(ctx)
	cancel()

	var metricsErr error
	if metricsDone != nil {
		metricsErr = <-metricsDone
	}
	if streamErr != nil || metricsErr != nil {
		return errors.Join(streamErr, metricsErr)
	}
	logger.Info("devicehub server stopped")
	return nil
}
