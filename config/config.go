package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/confidence"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/database"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/graph"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/kafka"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/locks"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/matching"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/reconcile"
	"github.com/nikolamitar1994/pugna-mma-backend-sub000/pkg/tracing"
)

type Config struct {
	AppName            string `mapstructure:"app_name"`
	LogLevel           string `mapstructure:"log_level"`
	PrettyLogs         bool   `mapstructure:"pretty_logs"`
	StartupMaxAttempts int    `mapstructure:"startup_max_attempts"`
	MetricsAddr        string `mapstructure:"metrics_addr"`

	HealthCheckTimeout time.Duration `mapstructure:"health_check_timeout"`

	// PostgreSQL (canonical store)
	DatabaseHost                  string        `mapstructure:"db_host"`
	DatabasePort                  string        `mapstructure:"db_port"`
	DatabaseUserName              string        `mapstructure:"db_user_name"`
	DatabasePassword              string        `mapstructure:"db_password"`
	DatabaseName                  string        `mapstructure:"db_name"`
	DatabaseSSLMode               string        `mapstructure:"db_ssl_mode"`
	DatabaseMaxOpenConns          int           `mapstructure:"db_max_open_conns"`
	DatabaseMaxIdleConns          int           `mapstructure:"db_max_idle_conns"`
	DatabaseConnMaxLifetime       time.Duration `mapstructure:"db_conn_max_lifetime"`
	DatabaseMigrationFolderPath   string        `mapstructure:"db_migration_folder_path"`
	DatabaseMigrationVersion      uint          `mapstructure:"db_migration_version"`
	DatabaseMigrationForce        int           `mapstructure:"db_migration_force"`
	DatabaseMigrationAutoRollback bool          `mapstructure:"db_migration_auto_rollback"`

	// Graph projection (Memgraph / Neo4j)
	GraphEnabled    bool   `mapstructure:"graph_enabled"`
	GraphDBHost     string `mapstructure:"graph_db_host"`
	GraphDBPort     int    `mapstructure:"graph_db_port"`
	GraphDBUser     string `mapstructure:"graph_db_user"`
	GraphDBPassword string `mapstructure:"graph_db_password"`
	GraphDBName     string `mapstructure:"graph_db_name"`

	// Redis (cross-process entity locks)
	RedisEnabled   bool          `mapstructure:"redis_enabled"`
	RedisHost      string        `mapstructure:"redis_host"`
	RedisPort      int           `mapstructure:"redis_port"`
	RedisPassword  string        `mapstructure:"redis_password"`
	RedisDB        int           `mapstructure:"redis_db"`
	RedisLockTTL   time.Duration `mapstructure:"redis_lock_ttl"`
	RedisKeyPrefix string        `mapstructure:"redis_key_prefix"`

	// Kafka consumer (raw records in)
	KafkaBrokers       []string      `mapstructure:"kafka_brokers"`
	KafkaInputTopic    string        `mapstructure:"kafka_input_topic"`
	KafkaConsumerGroup string        `mapstructure:"kafka_consumer_group"`
	KafkaConsumerBatch int           `mapstructure:"kafka_consumer_batch"`
	KafkaFlushInterval time.Duration `mapstructure:"kafka_flush_interval"`
	KafkaEventsEnabled bool          `mapstructure:"kafka_events_enabled"`
	KafkaOutputTopic   string        `mapstructure:"kafka_output_topic"`
	KafkaBatchSize     int           `mapstructure:"kafka_batch_size"`
	KafkaBatchTimeout  time.Duration `mapstructure:"kafka_batch_timeout"`
	KafkaRequiredAcks  int           `mapstructure:"kafka_required_acks"`
	KafkaCompression   string        `mapstructure:"kafka_compression"`

	// Tracing
	TracingExporter string `mapstructure:"tracing_exporter"`
	TracingEndpoint string `mapstructure:"tracing_endpoint"`
	TracingProtocol string `mapstructure:"tracing_protocol"`
	TracingInsecure bool   `mapstructure:"tracing_insecure"`

	// Reconciliation
	Workers              int           `mapstructure:"workers"`
	MaxRetries           uint          `mapstructure:"max_retries"`
	RetryInitialInterval time.Duration `mapstructure:"retry_initial_interval"`
	RetryMaxInterval     time.Duration `mapstructure:"retry_max_interval"`
	LockWait             time.Duration `mapstructure:"lock_wait"`
	HighThreshold        float64       `mapstructure:"high_threshold"`
	MediumThreshold      float64       `mapstructure:"medium_threshold"`
	LowThreshold         float64       `mapstructure:"low_threshold"`
	MinGap               float64       `mapstructure:"min_gap"`
	MinScore             float64       `mapstructure:"min_score"`
	TopK                 int           `mapstructure:"top_k"`
	SearchFactor         int           `mapstructure:"search_factor"`
	OpponentMatchMin     float64       `mapstructure:"opponent_match_min"`
	TemporalNameMin      float64       `mapstructure:"temporal_name_min"`
	WeightName           float64       `mapstructure:"weight_name"`
	WeightEvent          float64       `mapstructure:"weight_event"`
	WeightDate           float64       `mapstructure:"weight_date"`
	WeightLocation       float64       `mapstructure:"weight_location"`
	DateTolerance        time.Duration `mapstructure:"date_tolerance"`
	SingleNames          []string      `mapstructure:"single_names"`
}

func setDefaults(v *viper.Viper) {
	rc := reconcile.DefaultConfig()

	defaults := map[string]any{
		"app_name":             "pugna",
		"log_level":            "info",
		"pretty_logs":          false,
		"startup_max_attempts": 5,
		"metrics_addr":         ":9102",
		"health_check_timeout": 2 * time.Second,

		"db_host":                    "",
		"db_port":                    "5432",
		"db_user_name":               "",
		"db_password":                "",
		"db_name":                    "pugna",
		"db_ssl_mode":                "disable",
		"db_max_open_conns":          25,
		"db_max_idle_conns":          10,
		"db_conn_max_lifetime":       10 * time.Second,
		"db_migration_folder_path":   "db/pg",
		"db_migration_version":       0,
		"db_migration_force":         0,
		"db_migration_auto_rollback": true,

		"graph_enabled":     false,
		"graph_db_host":     "localhost",
		"graph_db_port":     7687,
		"graph_db_user":     "",
		"graph_db_password": "",
		"graph_db_name":     "",

		"redis_enabled":    false,
		"redis_host":       "localhost",
		"redis_port":       6379,
		"redis_password":   "",
		"redis_db":         0,
		"redis_lock_ttl":   30 * time.Second,
		"redis_key_prefix": "pugna:lock:",

		"kafka_brokers":        []string{"localhost:9092"},
		"kafka_input_topic":    "raw-fight-records",
		"kafka_consumer_group": "pugna-reconciler",
		"kafka_consumer_batch": 100,
		"kafka_flush_interval": 2 * time.Second,
		"kafka_events_enabled": false,
		"kafka_output_topic":   "pugna-events",
		"kafka_batch_size":     100,
		"kafka_batch_timeout":  100 * time.Millisecond,
		"kafka_required_acks":  1,
		"kafka_compression":    "snappy",

		"tracing_exporter": "none",
		"tracing_endpoint": "localhost:4317",
		"tracing_protocol": "grpc",
		"tracing_insecure": true,

		"workers":                rc.Workers,
		"max_retries":            rc.MaxRetries,
		"retry_initial_interval": rc.RetryInitialInterval,
		"retry_max_interval":     rc.RetryMaxInterval,
		"lock_wait":              rc.LockWait,
		"high_threshold":         rc.Thresholds.High,
		"medium_threshold":       rc.Thresholds.Medium,
		"low_threshold":          rc.Thresholds.Low,
		"min_gap":                rc.Thresholds.MinGap,
		"min_score":              rc.Matching.MinScore,
		"top_k":                  rc.Matching.TopK,
		"search_factor":          rc.Matching.SearchFactor,
		"opponent_match_min":     rc.Matching.OpponentMatchMin,
		"temporal_name_min":      rc.Matching.TemporalNameMin,
		"weight_name":            rc.Matching.Weights.Name,
		"weight_event":           rc.Matching.Weights.Event,
		"weight_date":            rc.Matching.Weights.Date,
		"weight_location":        rc.Matching.Weights.Location,
		"date_tolerance":         rc.Matching.Weights.DateTolerance,
		"single_names":           []string{},
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

// Load reads .env, then the optional pugna.yaml, then the environment.
// Environment variables use the upper-cased key (DB_HOST, KAFKA_BROKERS).
// An empty configFile searches the working directory for pugna.yaml.
func Load(configFile string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("pugna")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	cfg.KafkaBrokers = splitList(cfg.KafkaBrokers)
	cfg.SingleNames = splitList(cfg.SingleNames)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

// splitList accepts both a yaml list and a comma-separated env value
func splitList(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (c *Config) Validate() error {
	if c.StartupMaxAttempts < 1 {
		return fmt.Errorf("startup_max_attempts must be at least 1")
	}
	if c.RedisEnabled && c.RedisLockTTL <= c.LockWait {
		return fmt.Errorf("redis_lock_ttl (%s) must exceed lock_wait (%s)", c.RedisLockTTL, c.LockWait)
	}
	if c.KafkaEventsEnabled && c.KafkaOutputTopic == "" {
		return fmt.Errorf("kafka_output_topic must be set when kafka events are enabled")
	}
	return c.Reconcile().Validate()
}

// Reconcile builds the engine configuration
func (c *Config) Reconcile() reconcile.Config {
	return reconcile.Config{
		Thresholds: confidence.Thresholds{
			High:   c.HighThreshold,
			Medium: c.MediumThreshold,
			Low:    c.LowThreshold,
			MinGap: c.MinGap,
		},
		Matching: matching.Config{
			MinScore:         c.MinScore,
			TopK:             c.TopK,
			SearchFactor:     c.SearchFactor,
			OpponentMatchMin: c.OpponentMatchMin,
			TemporalNameMin:  c.TemporalNameMin,
			Weights: matching.Weights{
				Name:          c.WeightName,
				Event:         c.WeightEvent,
				Date:          c.WeightDate,
				Location:      c.WeightLocation,
				DateTolerance: c.DateTolerance,
			},
		},
		Workers:              c.Workers,
		MaxRetries:           c.MaxRetries,
		RetryInitialInterval: c.RetryInitialInterval,
		RetryMaxInterval:     c.RetryMaxInterval,
		LockWait:             c.LockWait,
		SingleNames:          c.SingleNames,
	}
}

func (c *Config) Database() database.ConnectionConfig {
	return database.ConnectionConfig{
		Host:            c.DatabaseHost,
		Port:            c.DatabasePort,
		User:            c.DatabaseUserName,
		Password:        c.DatabasePassword,
		Name:            c.DatabaseName,
		SSLMode:         c.DatabaseSSLMode,
		MaxOpenConns:    c.DatabaseMaxOpenConns,
		MaxIdleConns:    c.DatabaseMaxIdleConns,
		ConnMaxLifetime: c.DatabaseConnMaxLifetime,
	}
}

func (c *Config) Migration() *database.MigrationConfig {
	return &database.MigrationConfig{
		MigrationFolderPath: c.DatabaseMigrationFolderPath,
		Version:             c.DatabaseMigrationVersion,
		Force:               c.DatabaseMigrationForce,
		AutoRollback:        c.DatabaseMigrationAutoRollback,
	}
}

func (c *Config) Graph() graph.Config {
	return graph.Config{
		Host:     c.GraphDBHost,
		Port:     c.GraphDBPort,
		Username: c.GraphDBUser,
		Password: c.GraphDBPassword,
		Database: c.GraphDBName,
	}
}

func (c *Config) Redis() locks.RedisConfig {
	return locks.RedisConfig{
		Host:     c.RedisHost,
		Port:     c.RedisPort,
		Password: c.RedisPassword,
		DB:       c.RedisDB,
	}
}

func (c *Config) Consumer() kafka.ConsumerConfig {
	return kafka.ConsumerConfig{
		Brokers:       c.KafkaBrokers,
		Topic:         c.KafkaInputTopic,
		ConsumerGroup: c.KafkaConsumerGroup,
		BatchSize:     c.KafkaConsumerBatch,
		FlushInterval: c.KafkaFlushInterval,
	}
}

func (c *Config) Producer() kafka.ProducerConfig {
	return kafka.ProducerConfig{
		Brokers:      c.KafkaBrokers,
		Topic:        c.KafkaOutputTopic,
		BatchSize:    c.KafkaBatchSize,
		BatchTimeout: c.KafkaBatchTimeout,
		RequiredAcks: c.KafkaRequiredAcks,
		Compression:  c.KafkaCompression,
	}
}

func (c *Config) Tracing() tracing.ProviderConfig {
	return tracing.ProviderConfig{
		ServiceName: c.AppName,
		Exporter:    c.TracingExporter,
		Endpoint:    c.TracingEndpoint,
		Protocol:    c.TracingProtocol,
		Insecure:    c.TracingInsecure,
	}
}
