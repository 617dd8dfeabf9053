package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/webstalk/webstalk/internal/config"
	"github.com/webstalk/webstalk/internal/downloader"
	"github.com/webstalk/webstalk/internal/frontier"
	"github.com/webstalk/webstalk/internal/observability"
	"github.com/webstalk/webstalk/internal/pipeline"
	"github.com/webstalk/webstalk/internal/rpcwire"
	"github.com/webstalk/webstalk/internal/schedclient"
	"github.com/webstalk/webstalk/internal/scheduler"
	"github.com/webstalk/webstalk/internal/seeder"
)

var (
	cfgFile string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "webstalk",
		Short: "webstalk — distributed social-media crawler",
		Long: `webstalk is a distributed web crawler split into three
cooperating processes: a Scheduler holding the shared Frontier and
resource pools, a pool of Downloader workers leasing identities,
proxies, and cookies from it, and a Pipeline that extracts records and
resubmits discovered links. A Seeder periodically injects starting
URLs so the Frontier never runs dry.`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(schedulerCmd())
	rootCmd.AddCommand(downloaderCmd())
	rootCmd.AddCommand(seederCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(configCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setupLogger creates a structured logger.
func setupLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(handler)
}

// loadConfig loads and validates configuration from cfgFile.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// shutdownContext returns a context canceled on SIGINT/SIGTERM, per
// spec.md §7's "SIGINT/SIGTERM is not an error; it flips cooperative
// flags and joins child workers."
func shutdownContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// schedulerCmd runs the Scheduler process: Frontier, resource pools,
// RPC server, proxy refresher, and both seeders in one process.
func schedulerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "scheduler",
		Short: "Run the Scheduler process",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			store, err := newFrontierStore(cfg, logger)
			if err != nil {
				return fmt.Errorf("create frontier store: %w", err)
			}

			identities := make([]rpcwire.UserIdentity, 0, len(cfg.Scheduler.UserIdentity))
			for _, id := range cfg.Scheduler.UserIdentity {
				identities = append(identities, rpcwire.UserIdentity{Name: id.Name, Pwd: id.Pwd})
			}
			state := scheduler.NewState(store, identities)
			metrics := observability.NewMetrics(logger)
			addr := fmt.Sprintf("%s:%d", cfg.Scheduler.Addr, cfg.Scheduler.Port)
			srv := scheduler.NewServer(addr, state, metrics, logger)

			ctx, cancel := shutdownContext()
			defer cancel()

			var wg sync.WaitGroup

			if cfg.Scheduler.ProxyProvider != "" {
				refresher := scheduler.NewProxyRefresher(cfg.Scheduler.ProxyProvider, cfg.Scheduler.ProxyInterval, state.Proxies, logger)
				wg.Add(1)
				go func() { defer wg.Done(); refresher.Run(ctx) }()
			}

			schedAddr := fmt.Sprintf("127.0.0.1:%d", cfg.Scheduler.Port)
			if cfg.Scheduler.HotWeiboSeederInterval > 0 {
				client := schedclient.NewClient(schedAddr)
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := client.Open(); err != nil {
						logger.Error("hot weibo seeder: scheduler client open failed", "error", err)
						return
					}
					defer client.Close()
					seeder.NewHotWeiboSeeder(cfg.Scheduler.HotWeiboSeederInterval, client, logger).Run(ctx)
				}()
			}
			if len(cfg.Scheduler.TopicUserIDs) > 0 && cfg.Scheduler.TopicSeederInterval > 0 {
				client := schedclient.NewClient(schedAddr)
				wg.Add(1)
				go func() {
					defer wg.Done()
					if err := client.Open(); err != nil {
						logger.Error("topic seeder: scheduler client open failed", "error", err)
						return
					}
					defer client.Close()
					seeder.NewTopicSeeder(cfg.Scheduler.TopicSeederInterval, cfg.Scheduler.TopicUserIDs, cfg.Scheduler.TopicSeederPages, client, logger).Run(ctx)
				}()
			}

			if cfg.Metrics.Enabled {
				if err := metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
					logger.Warn("failed to start metrics server", "error", err)
				}
			}

			logger.Info("scheduler starting", "addr", addr)
			err = srv.Serve(ctx)
			wg.Wait()
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("scheduler serve: %w", err)
			}
			logger.Info("scheduler stopped")
			return nil
		},
	}
}

func newFrontierStore(cfg *config.Config, logger *slog.Logger) (*frontier.Store, error) {
	if cfg.Pipeline.MongoURI == "" {
		return frontier.NewStore(frontier.NewMemoryPersister()), nil
	}
	mongoStore, err := frontier.NewMongoStore(frontier.MongoStoreConfig{
		URI:               cfg.Pipeline.MongoURI,
		Database:          cfg.Pipeline.MongoDatabase,
		LevelDBMaxRetries: cfg.Pipeline.LeveldbMaxRetries,
		LevelDBRetryDelay: cfg.Pipeline.LeveldbRetryDelay,
	}, logger)
	if err != nil {
		return nil, err
	}
	store := frontier.NewStore(mongoStore)
	if err := store.Recover(context.Background()); err != nil {
		return nil, fmt.Errorf("recover frontier: %w", err)
	}
	return store, nil
}

// downloaderCmd runs a pool of downloader workers plus the pipeline
// that consumes their responses.
func downloaderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "downloader",
		Short: "Run a pool of downloader workers and the pipeline",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			var sink pipeline.Sink
			if cfg.Pipeline.MongoURI != "" {
				sink, err = pipeline.NewMongoSink(cfg.Pipeline.MongoURI, cfg.Pipeline.MongoDatabase, cfg.Pipeline.MongoCollection, logger)
				if err != nil {
					return fmt.Errorf("create mongo sink: %w", err)
				}
			} else {
				sink = pipeline.NewMemorySink()
			}
			defer sink.Close()

			submitClient := schedclient.NewClient(cfg.Downloader.SchedulerAddr)
			if err := submitClient.Open(); err != nil {
				return fmt.Errorf("pipeline scheduler client open: %w", err)
			}
			defer submitClient.Close()

			metrics := observability.NewMetrics(logger)
			if cfg.Metrics.Enabled {
				if err := metrics.StartServer(cfg.Metrics.Port, cfg.Metrics.Path); err != nil {
					logger.Warn("failed to start metrics server", "error", err)
				}
			}

			extractor := &pipeline.Extractor{XPathRule: cfg.Pipeline.XPathRule}
			pipe := pipeline.New(pipeline.Config{EnginePoolSize: cfg.Pipeline.EnginePoolSize}, extractor, sink, submitClient, metrics, logger)
			pipe.Use(&pipeline.TrimMiddleware{})
			pipe.Use(pipeline.NewHTMLSanitizeMiddleware())
			pipe.Use(pipeline.NewDedupMiddleware())

			ctx, cancel := shutdownContext()
			defer cancel()

			var wg sync.WaitGroup
			wg.Add(1)
			go func() { defer wg.Done(); pipe.Run(ctx) }()

			fetchCfg := downloader.FetchConfig{Timeout: cfg.Downloader.RequestsTimeout}
			total := cfg.Downloader.NumDownloaders + cfg.Downloader.NumTopicDownloaders
			for i := 0; i < total; i++ {
				class := rpcwire.ClassLink
				if i >= cfg.Downloader.NumDownloaders {
					class = rpcwire.ClassTopicLink
				}
				name := fmt.Sprintf("%s-%d", cfg.Downloader.NamePrefix, i)

				client := schedclient.NewClient(cfg.Downloader.SchedulerAddr)
				proxies := downloader.NewProxyCache(name, cfg.Scheduler.ProxyPoolSize, client, metrics, logger)

				var fetcher downloader.Fetcher
				if cfg.Downloader.UseBrowser {
					bf, err := downloader.NewBrowserFetcher(proxies.Pick(), cfg.Downloader.StealthBrowser, 0, cfg.Downloader.RequestsTimeout, logger)
					if err != nil {
						return fmt.Errorf("launch browser fetcher for %s: %w", name, err)
					}
					defer bf.Close()
					fetcher = bf
				} else {
					fetcher = downloader.NewFetcher(fetchCfg, logger)
				}

				wc := downloader.WorkerConfig{
					Name:                   name,
					Class:                  class,
					LinkBatchSize:          cfg.Downloader.LinkBatchSize,
					ClientFailoverInterval: cfg.Scheduler.ClientFailoverInterval,
					InterRequestDelay:      time.Second,
					ProxyPoolSize:          cfg.Scheduler.ProxyPoolSize,
					ProxyInterval:          cfg.Downloader.ProxyInterval,
				}
				worker := downloader.NewWorker(wc, client, fetcher, proxies, pipe, downloader.NoopLoginer{}, metrics, logger)

				wg.Add(1)
				go func() { defer wg.Done(); worker.Run(ctx) }()
			}

			logger.Info("downloader pool started", "workers", total, "use_browser", cfg.Downloader.UseBrowser)
			<-ctx.Done()
			wg.Wait()
			logger.Info("downloader pool stopped")
			return nil
		},
	}
}

// seederCmd runs the hot-weibo and topic seeders standalone, for
// deployments that split the Seeder out of the Scheduler process.
func seederCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "seeder",
		Short: "Run the seed-link daemons standalone",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := setupLogger()
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			ctx, cancel := shutdownContext()
			defer cancel()

			var wg sync.WaitGroup
			if cfg.Scheduler.HotWeiboSeederInterval > 0 {
				client := schedclient.NewClient(cfg.Downloader.SchedulerAddr)
				if err := client.Open(); err != nil {
					return fmt.Errorf("hot weibo seeder client open: %w", err)
				}
				defer client.Close()
				wg.Add(1)
				go func() {
					defer wg.Done()
					seeder.NewHotWeiboSeeder(cfg.Scheduler.HotWeiboSeederInterval, client, logger).Run(ctx)
				}()
			}
			if len(cfg.Scheduler.TopicUserIDs) > 0 {
				client := schedclient.NewClient(cfg.Downloader.SchedulerAddr)
				if err := client.Open(); err != nil {
					return fmt.Errorf("topic seeder client open: %w", err)
				}
				defer client.Close()
				wg.Add(1)
				go func() {
					defer wg.Done()
					seeder.NewTopicSeeder(cfg.Scheduler.TopicSeederInterval, cfg.Scheduler.TopicUserIDs, cfg.Scheduler.TopicSeederPages, client, logger).Run(ctx)
				}()
			}

			wg.Wait()
			return nil
		},
	}
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("webstalk %s\n", config.Version)
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Scheduler:\n")
			fmt.Printf("  Addr:                     %s:%d\n", cfg.Scheduler.Addr, cfg.Scheduler.Port)
			fmt.Printf("  Identities configured:    %d\n", len(cfg.Scheduler.UserIdentity))
			fmt.Printf("  Proxy pool size:          %d\n", cfg.Scheduler.ProxyPoolSize)
			fmt.Printf("  Hot weibo seeder interval: %s\n", cfg.Scheduler.HotWeiboSeederInterval)
			fmt.Printf("  Topic seeder interval:    %s\n", cfg.Scheduler.TopicSeederInterval)
			fmt.Printf("\nDownloader:\n")
			fmt.Printf("  Num downloaders:          %d\n", cfg.Downloader.NumDownloaders)
			fmt.Printf("  Num topic downloaders:    %d\n", cfg.Downloader.NumTopicDownloaders)
			fmt.Printf("  Link batch size:          %d\n", cfg.Downloader.LinkBatchSize)
			fmt.Printf("  Scheduler addr:           %s\n", cfg.Downloader.SchedulerAddr)
			fmt.Printf("\nPipeline:\n")
			fmt.Printf("  Engine pool size:         %d\n", cfg.Pipeline.EnginePoolSize)
			fmt.Printf("  Mongo database:           %s\n", cfg.Pipeline.MongoDatabase)
			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:                  %v\n", cfg.Metrics.Enabled)
			fmt.Printf("  Port:                     %d\n", cfg.Metrics.Port)
			return nil
		},
	}
}
