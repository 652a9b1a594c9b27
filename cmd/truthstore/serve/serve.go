// Package servecmder provides the serve command, which runs the API server
// with the MCP endpoint mounted at /mcp.
package servecmder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/truthstore/api"
	"github.com/papercomputeco/truthstore/api/mcp"
	"github.com/papercomputeco/truthstore/pkg/config"
	"github.com/papercomputeco/truthstore/pkg/dotdir"
	"github.com/papercomputeco/truthstore/pkg/eventstream"
	"github.com/papercomputeco/truthstore/pkg/eventstream/kafka"
	"github.com/papercomputeco/truthstore/pkg/eventstream/nop"
	"github.com/papercomputeco/truthstore/pkg/ledger"
	"github.com/papercomputeco/truthstore/pkg/logger"
	"github.com/papercomputeco/truthstore/pkg/schema"
	"github.com/papercomputeco/truthstore/pkg/storage"
	"github.com/papercomputeco/truthstore/pkg/storage/inmemory"
	"github.com/papercomputeco/truthstore/pkg/storage/postgres"
	"github.com/papercomputeco/truthstore/pkg/storage/sqlite"
)

type ServeCommander struct {
	cfg       *config.Config
	configDir string
	debug     bool
	logger    *slog.Logger

	// Flag targets. The effective values are read back through viper so
	// env vars and config.toml apply when a flag is not set.
	listen        string
	storageDriver string
	sqlitePath    string
	postgresDSN   string
	async         bool
	workers       uint
	queueSize     uint
	eventProvider string
	eventBrokers  string
	eventTopic    string
	schemaDir     string
	schemaWatch   bool

	logFile string
}

var serveFlags = []string{
	config.FlagListen,
	config.FlagStorageDriver,
	config.FlagSQLite,
	config.FlagPostgresDSN,
	config.FlagAsync,
	config.FlagWorkers,
	config.FlagQueueSize,
	config.FlagEventProvider,
	config.FlagEventBrokers,
	config.FlagEventTopic,
	config.FlagSchemaDir,
	config.FlagSchemaWatch,
}

const serveLongDesc string = `Run the truthstore server.

Serves the HTTP API under /v1, Prometheus metrics under /metrics and the MCP
endpoint under /mcp. Settings come from flags, TRUTHSTORE_ environment
variables and config.toml, in that order of precedence.

Examples:
  truthstore serve
  truthstore serve --storage-driver memory --listen :9000
  truthstore serve --storage-driver postgres --postgres-dsn postgres://...
  truthstore serve --schema-dir ./schemas --schema-watch
  truthstore serve --log-file server.log`

const serveShortDesc string = "Run the truthstore server"

func NewServeCmd() *cobra.Command {
	cmder := &ServeCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.Flags, serveFlags)

			cmder.cfg = config.FromViper(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}
			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.Flags, config.FlagListen, &cmder.listen)
	config.AddStringFlag(cmd, config.Flags, config.FlagStorageDriver, &cmder.storageDriver)
	config.AddStringFlag(cmd, config.Flags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.Flags, config.FlagPostgresDSN, &cmder.postgresDSN)
	config.AddBoolFlag(cmd, config.Flags, config.FlagAsync, &cmder.async)
	config.AddUintFlag(cmd, config.Flags, config.FlagWorkers, &cmder.workers)
	config.AddUintFlag(cmd, config.Flags, config.FlagQueueSize, &cmder.queueSize)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventProvider, &cmder.eventProvider)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventBrokers, &cmder.eventBrokers)
	config.AddStringFlag(cmd, config.Flags, config.FlagEventTopic, &cmder.eventTopic)
	config.AddStringFlag(cmd, config.Flags, config.FlagSchemaDir, &cmder.schemaDir)
	config.AddBoolFlag(cmd, config.Flags, config.FlagSchemaWatch, &cmder.schemaWatch)
	cmd.Flags().StringVar(&cmder.logFile, "log-file", "", "Also write JSON logs to this file (relative to the .truthstore/ dir)")

	return cmd
}

func (c *ServeCommander) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	closeLog, err := c.initLogger()
	if err != nil {
		return err
	}
	defer closeLog()

	driver, err := c.newStorageDriver(ctx)
	if err != nil {
		return err
	}
	defer driver.Close()

	publisher, err := c.newPublisher()
	if err != nil {
		return err
	}
	defer publisher.Close()

	l, err := ledger.New(&ledger.Config{
		Driver:     driver,
		Publisher:  publisher,
		Logger:     c.logger,
		Async:      c.cfg.Recompute.Async,
		NumWorkers: c.cfg.Recompute.Workers,
		QueueSize:  c.cfg.Recompute.QueueSize,
	})
	if err != nil {
		return fmt.Errorf("creating ledger: %w", err)
	}
	defer l.Close()

	// Channel to capture errors from goroutines
	errChan := make(chan error, 2)

	if err := c.loadSchemas(ctx, l.Registry(), errChan); err != nil {
		return err
	}

	mcpServer, err := mcp.NewServer(mcp.Config{
		Ledger: l,
		Logger: c.logger,
	})
	if err != nil {
		return fmt.Errorf("creating MCP server: %w", err)
	}

	apiServer, err := api.NewServer(api.Config{
		ListenAddr: c.cfg.API.Listen,
		MCPHandler: mcpServer.Handler(),
	}, l, c.logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	go func() {
		if err := apiServer.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		_ = apiServer.Shutdown()
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", "signal", sig.String())
	case <-ctx.Done():
	}

	if err := apiServer.Shutdown(); err != nil {
		c.logger.Warn("API server shutdown failed", "error", err)
	}
	return nil
}

// initLogger logs pretty output to stderr and, with --log-file, JSON to
// that file as well.
func (c *ServeCommander) initLogger() (func(), error) {
	pretty := logger.New(
		logger.WithDebug(c.debug),
		logger.WithPretty(true),
		logger.WithWriter(os.Stderr),
	)
	if c.logFile == "" {
		c.logger = pretty
		return func() {}, nil
	}

	path, err := dotdir.NewManager().Resolve(c.configDir, c.logFile)
	if err != nil {
		return nil, fmt.Errorf("resolving log file path: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("opening log file: %w", err)
	}

	c.logger = logger.Multi(pretty, logger.New(
		logger.WithDebug(c.debug),
		logger.WithJSON(true),
		logger.WithWriter(f),
	))
	return func() { _ = f.Close() }, nil
}

// newStorageDriver opens the configured backend.
func (c *ServeCommander) newStorageDriver(ctx context.Context) (storage.Driver, error) {
	switch c.cfg.Storage.Driver {
	case config.DriverMemory:
		c.logger.Info("using in-memory storage")
		return inmemory.NewDriver(), nil

	case config.DriverSQLite:
		path, err := dotdir.NewManager().Resolve(c.configDir, c.cfg.Storage.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("resolving SQLite path: %w", err)
		}
		driver, err := sqlite.NewDriver(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite driver: %w", err)
		}
		c.logger.Info("using SQLite storage", "path", path)
		return driver, nil

	case config.DriverPostgres:
		if c.cfg.Storage.PostgresDSN == "" {
			return nil, errors.New("storage.postgres_dsn is required for the postgres driver")
		}
		driver, err := postgres.NewDriver(ctx, c.cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create PostgreSQL driver: %w", err)
		}
		c.logger.Info("using PostgreSQL storage")
		return driver, nil
	}

	return nil, fmt.Errorf("unknown storage driver %q", c.cfg.Storage.Driver)
}

// newPublisher builds the event stream publisher.
func (c *ServeCommander) newPublisher() (eventstream.Publisher, error) {
	switch c.cfg.EventStream.Provider {
	case "", config.ProviderNone:
		return nop.NewPublisher(), nil

	case config.ProviderKafka:
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers:  c.cfg.EventStream.Brokers,
			Topic:    c.cfg.EventStream.Topic,
			ClientID: "truthstore",
		}, c.logger)
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		c.logger.Info("publishing events to kafka",
			"brokers", c.cfg.EventStream.Brokers,
			"topic", c.cfg.EventStream.Topic,
		)
		return p, nil
	}

	return nil, fmt.Errorf("unknown eventstream provider %q", c.cfg.EventStream.Provider)
}

// loadSchemas applies the schema directory and starts the watcher when
// configured. Watcher failures are reported on errChan.
func (c *ServeCommander) loadSchemas(ctx context.Context, registry *schema.Registry, errChan chan<- error) error {
	if c.cfg.Schema.Dir == "" {
		return nil
	}

	applied, err := registry.ApplyDir(ctx, c.cfg.Schema.Dir)
	if err != nil {
		return fmt.Errorf("applying schema dir: %w", err)
	}
	c.logger.Info("applied schema dir",
		"dir", c.cfg.Schema.Dir,
		"definitions", len(applied),
	)

	if !c.cfg.Schema.Watch {
		return nil
	}

	w := schema.NewWatcher(registry, c.cfg.Schema.Dir, c.logger, nil)
	go func() {
		if err := w.Run(ctx); err != nil {
			errChan <- fmt.Errorf("schema watcher error: %w", err)
		}
	}()
	return nil
}
