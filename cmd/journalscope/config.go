package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tinytelemetry/journalscope/internal/model"
)

const (
	defaultBindHost           = "127.0.0.1"
	defaultAPIPort            = 3000
	defaultMaxConcurrentReads = 8
	defaultBackupInterval     = 6 * time.Hour
	defaultBackupKeepLast     = 24
)

// appConfig is internal runtime configuration.
// It is package-private to keep defaults and shape local to the CLI entrypoint.
type appConfig struct {
	DBPath              string        `mapstructure:"db-path"`
	APIEnabled          bool          `mapstructure:"api-enabled"`
	APIPort             int           `mapstructure:"api-port"`
	APIAddr             string        `mapstructure:"api-addr"`
	QueryTimeout        time.Duration `mapstructure:"query-timeout"`
	MaxConcurrentReads  int           `mapstructure:"max-concurrent-queries"`
	InsertBatchSize     int           `mapstructure:"insert-batch-size"`
	InsertFlushInterval time.Duration `mapstructure:"insert-flush-interval"`
	InsertFlushQueue    int           `mapstructure:"insert-flush-queue-size"`
	SpoolEnabled        bool          `mapstructure:"spool-enabled"`
	SpoolPath           string        `mapstructure:"spool-path"`
	RetentionDays       int           `mapstructure:"retention-days"`
	WatchDir            string        `mapstructure:"watch-dir"`
	WatchPattern        string        `mapstructure:"watch-pattern"`
	WatchDebounce       time.Duration `mapstructure:"watch-debounce"`
	DecodeWorkers       int           `mapstructure:"decode-workers"`
	MaxLineSize         int           `mapstructure:"max-line-size"`
	BackupEnabled       bool          `mapstructure:"backup-enabled"`
	BackupInterval      time.Duration `mapstructure:"backup-interval"`
	BackupDir           string        `mapstructure:"backup-dir"`
	BackupKeepLast      int           `mapstructure:"backup-keep-last"`
	CloudWatchGroup     string        `mapstructure:"cloudwatch-log-group"`
	CloudWatchStream    string        `mapstructure:"cloudwatch-log-stream"`
	CloudWatchRegion    string        `mapstructure:"cloudwatch-region"`
	AWSProfile          string        `mapstructure:"aws-profile"`
	LogFile             string        `mapstructure:"log-file"`
	ConfigPath          string        `mapstructure:"-"` // not from config file
}

// newViper returns a viper instance with every default set. Command flags
// are bound into it before loadConfig runs.
func newViper(home string) *viper.Viper {
	dataDir := filepath.Join(home, ".local", "share", "journalscope")

	v := viper.New()
	v.SetEnvPrefix("JOURNALSCOPE")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	v.SetDefault("db-path", filepath.Join(dataDir, "journalscope.duckdb"))
	v.SetDefault("api-enabled", true)
	v.SetDefault("api-port", defaultAPIPort)
	v.SetDefault("query-timeout", model.DefaultQueryTimeout)
	v.SetDefault("max-concurrent-queries", defaultMaxConcurrentReads)
	v.SetDefault("insert-batch-size", model.DefaultInsertBatch)
	v.SetDefault("insert-flush-interval", model.DefaultFlushInterval)
	v.SetDefault("insert-flush-queue-size", model.DefaultFlushQueueSize)
	v.SetDefault("spool-enabled", true)
	v.SetDefault("spool-path", filepath.Join(dataDir, "ingest.spool"))
	v.SetDefault("retention-days", model.DefaultRetentionDays)
	v.SetDefault("watch-dir", "")
	v.SetDefault("watch-pattern", model.DefaultWatchPattern)
	v.SetDefault("watch-debounce", model.DefaultWatchDebounce)
	v.SetDefault("decode-workers", model.DefaultDecodeWorkers)
	v.SetDefault("max-line-size", model.DefaultMaxLineSize)
	v.SetDefault("backup-enabled", false)
	v.SetDefault("backup-interval", defaultBackupInterval)
	v.SetDefault("backup-dir", filepath.Join(dataDir, "backups"))
	v.SetDefault("backup-keep-last", defaultBackupKeepLast)
	v.SetDefault("cloudwatch-log-group", "")
	v.SetDefault("cloudwatch-log-stream", "")
	v.SetDefault("cloudwatch-region", "")
	v.SetDefault("aws-profile", "")
	v.SetDefault("log-file", filepath.Join(home, ".local", "state", "journalscope", "journalscope.log"))
	return v
}

func loadConfig(v *viper.Viper, configPath string) (appConfig, error) {
	var cfg appConfig

	home, err := os.UserHomeDir()
	if err != nil {
		return cfg, fmt.Errorf("finding home directory: %w", err)
	}

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigFile(filepath.Join(home, ".config", "journalscope", "config.yml"))
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFound) && !os.IsNotExist(err) {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	if _, err := os.Stat(v.ConfigFileUsed()); err == nil {
		cfg.ConfigPath = v.ConfigFileUsed()
	}

	if cfg.APIPort <= 0 || cfg.APIPort > 65535 {
		return cfg, fmt.Errorf("invalid api-port: %d", cfg.APIPort)
	}
	if cfg.DecodeWorkers <= 0 {
		return cfg, fmt.Errorf("invalid decode-workers: %d", cfg.DecodeWorkers)
	}
	if cfg.MaxLineSize <= 0 {
		return cfg, fmt.Errorf("invalid max-line-size: %d", cfg.MaxLineSize)
	}
	if cfg.InsertBatchSize <= 0 {
		return cfg, fmt.Errorf("invalid insert-batch-size: %d", cfg.InsertBatchSize)
	}

	cfg.DBPath = expandHome(home, cfg.DBPath)
	cfg.SpoolPath = expandHome(home, cfg.SpoolPath)
	cfg.WatchDir = expandHome(home, cfg.WatchDir)
	cfg.BackupDir = expandHome(home, cfg.BackupDir)
	cfg.LogFile = expandHome(home, cfg.LogFile)

	if cfg.APIAddr == "" {
		cfg.APIAddr = net.JoinHostPort(defaultBindHost, strconv.Itoa(cfg.APIPort))
	}

	return cfg, nil
}

func expandHome(home, path string) string {
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}

// bindFlag lets an explicitly set flag override the config file and
// environment for key.
func bindFlag(v *viper.Viper, flag *pflag.Flag, key string) {
	if flag == nil {
		panic("journalscope: binding unknown flag for " + key)
	}
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}
