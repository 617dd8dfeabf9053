package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file and environment.
// Priority (highest to lowest): env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	// Set defaults from struct
	setDefaults(v, cfg)

	// Environment variable support
	v.SetEnvPrefix("WEBSTALK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Search default locations
		v.SetConfigName("webstalk")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".webstalk"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok && configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is okay if not explicitly specified
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// LoadFromFile reads configuration from a specific file path.
func LoadFromFile(path string) (*Config, error) {
	return Load(path)
}

// setDefaults registers default values in viper.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("scheduler.addr", cfg.Scheduler.Addr)
	v.SetDefault("scheduler.port", cfg.Scheduler.Port)
	v.SetDefault("scheduler.proxy_pool_size", cfg.Scheduler.ProxyPoolSize)
	v.SetDefault("scheduler.proxy_interval", cfg.Scheduler.ProxyInterval)
	v.SetDefault("scheduler.server_failover_interval", cfg.Scheduler.ServerFailoverInterval)
	v.SetDefault("scheduler.client_failover_interval", cfg.Scheduler.ClientFailoverInterval)
	v.SetDefault("scheduler.hot_weibo_seeder_interval", cfg.Scheduler.HotWeiboSeederInterval)
	v.SetDefault("scheduler.topic_seeder_interval", cfg.Scheduler.TopicSeederInterval)
	v.SetDefault("scheduler.topic_seeder_pages", cfg.Scheduler.TopicSeederPages)
	v.SetDefault("scheduler.database_dir", cfg.Scheduler.DatabaseDir)

	v.SetDefault("downloader.num_downloaders", cfg.Downloader.NumDownloaders)
	v.SetDefault("downloader.num_topic_downloaders", cfg.Downloader.NumTopicDownloaders)
	v.SetDefault("downloader.link_batch_size", cfg.Downloader.LinkBatchSize)
	v.SetDefault("downloader.requests_timeout", cfg.Downloader.RequestsTimeout)
	v.SetDefault("downloader.cookie_update_interval", cfg.Downloader.CookieUpdateInterval)
	v.SetDefault("downloader.name_prefix", cfg.Downloader.NamePrefix)
	v.SetDefault("downloader.proxy_interval", cfg.Downloader.ProxyInterval)
	v.SetDefault("downloader.scheduler_addr", cfg.Downloader.SchedulerAddr)
	v.SetDefault("downloader.use_browser", cfg.Downloader.UseBrowser)
	v.SetDefault("downloader.stealth_browser", cfg.Downloader.StealthBrowser)

	v.SetDefault("pipeline.engine_pool_size", cfg.Pipeline.EnginePoolSize)
	v.SetDefault("pipeline.link_max_retries", cfg.Pipeline.LinkMaxRetries)
	v.SetDefault("pipeline.leveldb_max_retries", cfg.Pipeline.LeveldbMaxRetries)
	v.SetDefault("pipeline.leveldb_retry_delay", cfg.Pipeline.LeveldbRetryDelay)
	v.SetDefault("pipeline.mongo_database", cfg.Pipeline.MongoDatabase)
	v.SetDefault("pipeline.mongo_collection", cfg.Pipeline.MongoCollection)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)
	v.SetDefault("logging.output", cfg.Logging.Output)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
