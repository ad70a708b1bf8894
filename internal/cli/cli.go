package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/linkage/pkg/buildinfo"
	"github.com/matzehuels/linkage/pkg/cache"
	"github.com/matzehuels/linkage/pkg/config"
	"github.com/matzehuels/linkage/pkg/model"
	"github.com/matzehuels/linkage/pkg/pipeline"
	"github.com/matzehuels/linkage/pkg/runstore"
)

// =============================================================================
// Constants
// =============================================================================

// appName is the application name used for directories and display.
const appName = config.AppName

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger
	Config config.Config

	configPath string
	verbose    bool
}

// New creates a new CLI instance with a default logger and configuration.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{
		Logger: newLogger(w, level),
		Config: config.Default(),
	}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           appName,
		Short:         "Linkage solves, analyzes and sweeps planar mechanisms",
		Long:          `Linkage is a headless solver for 2D mechanism sketches. It computes consistent point positions from geometric constraints, steps drivers through a range and derives quasi-static joint loads.`,
		Version:       buildinfo.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if c.verbose {
				c.SetLogLevel(LogDebug)
			}
			cfg, err := config.Load(c.configPath)
			if err != nil {
				return err
			}
			c.Config = cfg
			cmd.SetContext(withLogger(cmd.Context(), c.Logger))
			return nil
		},
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable verbose logging")
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/linkage/config.toml)")

	root.AddCommand(c.solveCommand())
	root.AddCommand(c.checkCommand())
	root.AddCommand(c.loadsCommand())
	root.AddCommand(c.driveCommand())
	root.AddCommand(c.sweepCommand())
	root.AddCommand(c.optimizeCommand())
	root.AddCommand(c.jogCommand())
	root.AddCommand(c.convertCommand())
	root.AddCommand(c.paramsCommand())
	root.AddCommand(c.runsCommand())
	root.AddCommand(c.cacheCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Runner Factory
// =============================================================================

// newRunner creates a pipeline runner from the configuration. The store is
// opened only when withStore is set.
func (c *CLI) newRunner(ctx context.Context, noCache, withStore bool) (*pipeline.Runner, error) {
	ch, err := c.newCache(ctx, noCache)
	if err != nil {
		return nil, err
	}
	runner := pipeline.NewRunner(ch, nil, loggerFromContext(ctx))
	runner.TTL = c.Config.Cache.TTL.Duration
	if withStore {
		store, err := c.newStore(ctx)
		if err != nil {
			ch.Close()
			return nil, err
		}
		runner.Store = store
	}
	return runner, nil
}

// newCache opens the configured cache backend. An unreachable redis
// degrades to no caching.
func (c *CLI) newCache(ctx context.Context, noCache bool) (cache.Cache, error) {
	cfg := c.Config.Cache
	if noCache || cfg.Backend == config.CacheNone {
		return cache.NewNullCache(), nil
	}
	if cfg.Backend == config.CacheRedis {
		rc, err := cache.NewRedisCache(ctx, cache.RedisOptions{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			c.Logger.Warn("redis unavailable, caching disabled", "addr", cfg.RedisAddr, "err", err)
			return cache.NewNullCache(), nil
		}
		return rc, nil
	}
	dir, err := c.Config.CacheDir()
	if err != nil {
		return cache.NewNullCache(), nil
	}
	return cache.NewFileCache(dir)
}

// newStore opens the configured run store.
func (c *CLI) newStore(ctx context.Context) (runstore.Store, error) {
	cfg := c.Config.Store
	if cfg.Backend == config.StoreMongo {
		return runstore.NewMongoStore(ctx, runstore.MongoOptions{
			URI:        cfg.URI,
			Database:   cfg.Database,
			Collection: cfg.Collection,
		})
	}
	dir, err := c.Config.DataDir()
	if err != nil {
		return nil, fmt.Errorf("get data dir: %w", err)
	}
	return runstore.NewFileStore(dir)
}

// =============================================================================
// Paths
// =============================================================================

// cacheDir returns the default cache directory (~/.cache/linkage/).
func cacheDir() (string, error) {
	return config.Default().CacheDir()
}

// =============================================================================
// Model I/O
// =============================================================================

// loadModel reads a project file.
func loadModel(path string) (*model.Model, error) {
	m, err := model.ImportJSON(path)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return m, nil
}

// saveModel writes m to path when path is set.
func saveModel(path string, m *model.Model) error {
	if path == "" {
		return nil
	}
	if err := model.ExportJSON(path, m); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	printFile(path)
	return nil
}
