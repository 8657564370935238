package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

const EnvPrefix = "MARKET_ATLAS"

type ServerConfig struct {
	Host            string        `mapstructure:"host" validate:"required"`
	Port            int           `mapstructure:"port" validate:"required,min=1,max=65535"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DBConfig struct {
	Path    string `mapstructure:"path" validate:"required"`
	Threads int    `mapstructure:"threads"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json console"`
}

type CollectorConfig struct {
	AdapterTimeout time.Duration `mapstructure:"adapter_timeout" validate:"gt=0"`
	MaxParallel    int           `mapstructure:"max_parallel" validate:"min=1"`
}

type WorkflowConfig struct {
	MaxCompetitors int `mapstructure:"max_competitors" validate:"min=0"`
	MaxAttempts    int `mapstructure:"max_attempts" validate:"min=1"`
	Workers        int `mapstructure:"workers" validate:"min=1"`
}

type QueueConfig struct {
	Driver   string `mapstructure:"driver" validate:"oneof=memory amqp"`
	AMQPURL  string `mapstructure:"amqp_url" validate:"required_if=Driver amqp"`
	Exchange string `mapstructure:"exchange"`
	Queue    string `mapstructure:"queue"`
	Prefetch int    `mapstructure:"prefetch"`
}

type RenderConfig struct {
	Sink     string `mapstructure:"sink" validate:"oneof=file s3"`
	Dir      string `mapstructure:"dir" validate:"required_if=Sink file"`
	S3Bucket string `mapstructure:"s3_bucket" validate:"required_if=Sink s3"`
	S3Prefix string `mapstructure:"s3_prefix"`
	S3Region string `mapstructure:"s3_region"`
}

type SummaryConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Model    string        `mapstructure:"model"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type RefreshConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"required_if=Enabled true"`
}

type ProvidersConfig struct {
	Profiles string `mapstructure:"profiles"`
}

type OAuthConfig struct {
	GoogleClientID     string `mapstructure:"google_client_id"`
	GoogleClientSecret string `mapstructure:"google_client_secret"`
	MetaClientID       string `mapstructure:"meta_client_id"`
	MetaClientSecret   string `mapstructure:"meta_client_secret"`
}

// App is the process configuration shared by the web server and the CLI.
type App struct {
	Server    ServerConfig    `mapstructure:"server"`
	DB        DBConfig        `mapstructure:"db"`
	Log       LogConfig       `mapstructure:"log"`
	Collector CollectorConfig `mapstructure:"collector"`
	Workflow  WorkflowConfig  `mapstructure:"workflow"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Render    RenderConfig    `mapstructure:"render"`
	Summary   SummaryConfig   `mapstructure:"summary"`
	Refresh   RefreshConfig   `mapstructure:"refresh"`
	Providers ProvidersConfig `mapstructure:"providers"`
	OAuth     OAuthConfig     `mapstructure:"oauth"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("db.path", "market-atlas.db")
	v.SetDefault("db.threads", 4)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("collector.adapter_timeout", 15*time.Second)
	v.SetDefault("collector.max_parallel", 4)

	v.SetDefault("workflow.max_competitors", 2)
	v.SetDefault("workflow.max_attempts", 3)
	v.SetDefault("workflow.workers", 8)

	v.SetDefault("queue.driver", "memory")
	v.SetDefault("queue.amqp_url", "")
	v.SetDefault("queue.exchange", "market-atlas")
	v.SetDefault("queue.queue", "market-atlas.tasks")
	v.SetDefault("queue.prefetch", 8)

	v.SetDefault("render.sink", "file")
	v.SetDefault("render.dir", "artifacts")
	v.SetDefault("render.s3_bucket", "")
	v.SetDefault("render.s3_prefix", "")
	v.SetDefault("render.s3_region", "")

	v.SetDefault("summary.endpoint", "")
	v.SetDefault("summary.model", "")
	v.SetDefault("summary.api_key", "")
	v.SetDefault("summary.timeout", 30*time.Second)

	v.SetDefault("refresh.enabled", false)
	v.SetDefault("refresh.schedule", "0 3 * * 1")

	v.SetDefault("providers.profiles", "")

	v.SetDefault("oauth.google_client_id", "")
	v.SetDefault("oauth.google_client_secret", "")
	v.SetDefault("oauth.meta_client_id", "")
	v.SetDefault("oauth.meta_client_secret", "")
}

// Load reads the optional YAML file at path, then applies MARKET_ATLAS_* environment overrides.
func Load(path string) (*App, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg App
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}
