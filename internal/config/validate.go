package config

import (
	"fmt"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Scheduler.Port < 1 || cfg.Scheduler.Port > 65535 {
		return fmt.Errorf("scheduler.port must be 1-65535, got %d", cfg.Scheduler.Port)
	}
	if cfg.Scheduler.ProxyPoolSize < 0 {
		return fmt.Errorf("scheduler.proxy_pool_size must be >= 0, got %d", cfg.Scheduler.ProxyPoolSize)
	}
	if cfg.Scheduler.ServerFailoverInterval <= 0 {
		return fmt.Errorf("scheduler.server_failover_interval must be > 0")
	}
	if cfg.Scheduler.ClientFailoverInterval <= 0 {
		return fmt.Errorf("scheduler.client_failover_interval must be > 0")
	}
	if cfg.Scheduler.HotWeiboSeederInterval <= 0 {
		return fmt.Errorf("scheduler.hot_weibo_seeder_interval must be > 0")
	}
	if cfg.Scheduler.TopicSeederInterval <= 0 {
		return fmt.Errorf("scheduler.topic_seeder_interval must be > 0")
	}
	if cfg.Scheduler.TopicSeederPages < 1 {
		return fmt.Errorf("scheduler.topic_seeder_pages must be >= 1, got %d", cfg.Scheduler.TopicSeederPages)
	}
	for _, id := range cfg.Scheduler.UserIdentity {
		if id.Name == "" {
			return fmt.Errorf("scheduler.user_identity entries must have a non-empty name")
		}
	}

	if cfg.Downloader.NumDownloaders < 0 {
		return fmt.Errorf("downloader.num_downloaders must be >= 0, got %d", cfg.Downloader.NumDownloaders)
	}
	if cfg.Downloader.NumTopicDownloaders < 0 {
		return fmt.Errorf("downloader.num_topic_downloaders must be >= 0, got %d", cfg.Downloader.NumTopicDownloaders)
	}
	if cfg.Downloader.NumDownloaders+cfg.Downloader.NumTopicDownloaders < 1 {
		return fmt.Errorf("downloader.num_downloaders + downloader.num_topic_downloaders must be >= 1")
	}
	if cfg.Downloader.LinkBatchSize < 1 {
		return fmt.Errorf("downloader.link_batch_size must be >= 1, got %d", cfg.Downloader.LinkBatchSize)
	}
	if cfg.Downloader.RequestsTimeout <= 0 {
		return fmt.Errorf("downloader.requests_timeout must be > 0")
	}
	if cfg.Downloader.NamePrefix == "" {
		return fmt.Errorf("downloader.name_prefix must be non-empty")
	}
	if cfg.Downloader.SchedulerAddr == "" {
		return fmt.Errorf("downloader.scheduler_addr must be non-empty")
	}

	if cfg.Pipeline.EnginePoolSize < 1 {
		return fmt.Errorf("pipeline.engine_pool_size must be >= 1, got %d", cfg.Pipeline.EnginePoolSize)
	}
	if cfg.Pipeline.LinkMaxRetries < 0 {
		return fmt.Errorf("pipeline.link_max_retries must be >= 0, got %d", cfg.Pipeline.LinkMaxRetries)
	}
	if cfg.Pipeline.LeveldbMaxRetries < 0 {
		return fmt.Errorf("pipeline.leveldb_max_retries must be >= 0, got %d", cfg.Pipeline.LeveldbMaxRetries)
	}
	if cfg.Pipeline.LeveldbRetryDelay < 0 {
		return fmt.Errorf("pipeline.leveldb_retry_delay must be >= 0")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}
