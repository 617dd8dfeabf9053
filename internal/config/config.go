package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for webstalk, holding the three
// process configs spec.md §6 enumerates: Scheduler, Downloader, and
// Pipeline. Grounded on the teacher's internal/config/config.go
// top-level Config struct shape.
type Config struct {
	Scheduler  SchedulerConfig  `mapstructure:"scheduler"  yaml:"scheduler"`
	Downloader DownloaderConfig `mapstructure:"downloader" yaml:"downloader"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"   yaml:"pipeline"`
	Logging    LoggingConfig    `mapstructure:"logging"    yaml:"logging"`
	Metrics    MetricsConfig    `mapstructure:"metrics"    yaml:"metrics"`
}

// UserIdentity is one statically-configured login the Scheduler leases
// out exclusively to downloaders (spec.md §4.2).
type UserIdentity struct {
	Name string `mapstructure:"name" yaml:"name"`
	Pwd  string `mapstructure:"pwd"  yaml:"pwd"`
}

// SchedulerConfig matches spec.md §6's SCHEDULER_CONFIG.* keys.
type SchedulerConfig struct {
	Addr                   string         `mapstructure:"addr"                     yaml:"addr"`
	Port                   int            `mapstructure:"port"                     yaml:"port"`
	UserIdentity           []UserIdentity `mapstructure:"user_identity"             yaml:"user_identity"`
	ProxyProvider          string         `mapstructure:"proxy_provider"            yaml:"proxy_provider"`
	ProxyPoolSize          int            `mapstructure:"proxy_pool_size"           yaml:"proxy_pool_size"`
	ProxyInterval          time.Duration  `mapstructure:"proxy_interval"            yaml:"proxy_interval"`
	ServerFailoverInterval time.Duration  `mapstructure:"server_failover_interval"  yaml:"server_failover_interval"`
	ClientFailoverInterval time.Duration  `mapstructure:"client_failover_interval"  yaml:"client_failover_interval"`
	HotWeiboSeederInterval time.Duration  `mapstructure:"hot_weibo_seeder_interval" yaml:"hot_weibo_seeder_interval"`
	TopicSeederInterval    time.Duration  `mapstructure:"topic_seeder_interval"     yaml:"topic_seeder_interval"`
	TopicUserIDs           []string       `mapstructure:"topic_user_ids"            yaml:"topic_user_ids"`
	TopicSeederPages       int            `mapstructure:"topic_seeder_pages"        yaml:"topic_seeder_pages"`
	DatabaseDir            string         `mapstructure:"database_dir"              yaml:"database_dir"`
}

// DownloaderConfig matches spec.md §6's DOWNLOADER_CONFIG.* keys.
type DownloaderConfig struct {
	NumDownloaders       int           `mapstructure:"num_downloaders"        yaml:"num_downloaders"`
	NumTopicDownloaders  int           `mapstructure:"num_topic_downloaders"  yaml:"num_topic_downloaders"`
	LinkBatchSize        int           `mapstructure:"link_batch_size"        yaml:"link_batch_size"`
	RequestsTimeout      time.Duration `mapstructure:"requests_timeout"       yaml:"requests_timeout"`
	CookieUpdateInterval time.Duration `mapstructure:"cookie_update_interval" yaml:"cookie_update_interval"`
	NamePrefix           string        `mapstructure:"name_prefix"            yaml:"name_prefix"`
	ProxyInterval        time.Duration `mapstructure:"proxy_interval"         yaml:"proxy_interval"`
	SchedulerAddr        string        `mapstructure:"scheduler_addr"         yaml:"scheduler_addr"`
	UseBrowser           bool          `mapstructure:"use_browser"            yaml:"use_browser"`
	StealthBrowser       bool          `mapstructure:"stealth_browser"        yaml:"stealth_browser"`
}

// PipelineConfig matches spec.md §6's PIPELINE_CONFIG.* keys.
type PipelineConfig struct {
	EnginePoolSize    int           `mapstructure:"engine_pool_size"    yaml:"engine_pool_size"`
	LinkMaxRetries    int           `mapstructure:"link_max_retries"    yaml:"link_max_retries"`
	LeveldbMaxRetries int           `mapstructure:"leveldb_max_retries" yaml:"leveldb_max_retries"`
	LeveldbRetryDelay time.Duration `mapstructure:"leveldb_retry_delay" yaml:"leveldb_retry_delay"`
	UserTweetsDate    string        `mapstructure:"user_tweets_date"    yaml:"user_tweets_date"`
	MongoURI          string        `mapstructure:"mongo_uri"           yaml:"mongo_uri"`
	MongoDatabase     string        `mapstructure:"mongo_database"      yaml:"mongo_database"`
	MongoCollection   string        `mapstructure:"mongo_collection"    yaml:"mongo_collection"`
	XPathRule         string        `mapstructure:"xpath_rule"          yaml:"xpath_rule"`
}

// LoggingConfig controls logging behavior, ambient across every
// process (scheduler/downloader/seeder) per the teacher's convention.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig controls the metrics HTTP endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults, mirroring the
// teacher's DefaultConfig but populated from spec.md's enumerated
// keys instead of the teacher's generic crawler knobs.
func DefaultConfig() *Config {
	return &Config{
		Scheduler: SchedulerConfig{
			Addr:                   "0.0.0.0",
			Port:                   9000,
			ProxyPoolSize:          50,
			ProxyInterval:          10 * time.Minute,
			ServerFailoverInterval: 2 * time.Second,
			ClientFailoverInterval: 2 * time.Second,
			HotWeiboSeederInterval: 2 * time.Second,
			TopicSeederInterval:    5 * time.Minute,
			TopicSeederPages:       5,
			DatabaseDir:            "./database",
		},
		Downloader: DownloaderConfig{
			NumDownloaders:       4,
			NumTopicDownloaders:  2,
			LinkBatchSize:        20,
			RequestsTimeout:      30 * time.Second,
			CookieUpdateInterval: 10 * time.Minute,
			NamePrefix:           "downloader",
			ProxyInterval:        10 * time.Minute,
			SchedulerAddr:        "127.0.0.1:9000",
		},
		Pipeline: PipelineConfig{
			EnginePoolSize:    4,
			LinkMaxRetries:    3,
			LeveldbMaxRetries: 3,
			LeveldbRetryDelay: 500 * time.Millisecond,
			MongoDatabase:     "webstalk",
			MongoCollection:   "records",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}
