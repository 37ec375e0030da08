package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BearBump/SellerFlow/internal/logger"
	"github.com/pkg/errors"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	Logger      logger.Config     `yaml:"logger"`
	Database    DatabaseConfig    `yaml:"database"`
	Kafka       KafkaConfig       `yaml:"kafka"`
	Redis       RedisConfig       `yaml:"redis"`
	Marketplace MarketplaceConfig `yaml:"marketplace"`
	Telegram    TelegramConfig    `yaml:"telegram"`
	Flow        FlowConfig        `yaml:"flow"`
	Aggregation AggregationConfig `yaml:"aggregation"`
	Documents   DocumentsConfig   `yaml:"documents"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                 string `yaml:"host"`
	Port                 int    `yaml:"port"`
	JobFinishedTopicName string `yaml:"job_finished_topic_name"`
}

type RedisConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

type MarketplaceConfig struct {
	Mode               string `yaml:"mode"` // "http" | "fake"
	BaseURL            string `yaml:"base_url"`
	SandboxBaseURL     string `yaml:"sandbox_base_url"`
	TimeoutSeconds     int    `yaml:"timeout_seconds"`
	RateLimitPerMinute int    `yaml:"rate_limit_per_minute"`
	// Префикс поставок демо-клиента в режиме fake.
	FakeSupplyPrefix string `yaml:"fake_supply_prefix"`
}

// TelegramConfig: без токена документы только логируются.
type TelegramConfig struct {
	BotToken       string `yaml:"bot_token"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

type FlowConfig struct {
	QueueSchema       string `yaml:"queue_schema"`
	CombinedQueueName string `yaml:"combined_queue_name"`
	WaitingQueueName  string `yaml:"waiting_queue_name"`

	HTTPAddr           string `yaml:"http_addr"`
	WorkerHTTPAddr     string `yaml:"worker_http_addr"`
	KafkaConsumerGroup string `yaml:"kafka_consumer_group"`

	WorkerPollIntervalSeconds  int `yaml:"worker_poll_interval_seconds"`
	WorkerConcurrency          int `yaml:"worker_concurrency"`
	WorkerBatchSize            int `yaml:"worker_batch_size"`
	JobExpireSeconds           int `yaml:"job_expire_seconds"`
	JobRetentionSeconds        int `yaml:"job_retention_seconds"`
	MaintenanceIntervalSeconds int `yaml:"maintenance_interval_seconds"`
	SnapshotCacheTTLSeconds    int `yaml:"snapshot_cache_ttl_seconds"`
}

type AggregationConfig struct {
	SupplyPageSize    int    `yaml:"supply_page_size"`
	LatestCount       int    `yaml:"latest_count"`
	WaitingCount      int    `yaml:"waiting_count"`
	OrderLookbackDays int    `yaml:"order_lookback_days"`
	OrderPageSize     int    `yaml:"order_page_size"`
	StatusBatch       int    `yaml:"status_batch"`
	StickerBatch      int    `yaml:"sticker_batch"`
	MaxPages          int    `yaml:"max_pages"`
	Timezone          string `yaml:"timezone"`
}

type DocumentsConfig struct {
	FontPath             string `yaml:"font_path"`
	ImageRetries         int    `yaml:"image_retries"`
	ImageCacheTTLSeconds int    `yaml:"image_cache_ttl_seconds"`
	ImageMaxPx           int    `yaml:"image_max_px"`
	JPEGQuality          int    `yaml:"jpeg_quality"`
	ImageTimeoutSeconds  int    `yaml:"image_timeout_seconds"`
	RenderConcurrency    int    `yaml:"render_concurrency"`
	DisableNormalization bool   `yaml:"disable_normalization"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal YAML")
	}
	config.ApplyDefaults()

	return &config, nil
}

// ApplyDefaults заполняет незаданные (<= 0 или пустые) значения.
func (c *Config) ApplyDefaults() {
	setString(&c.Logger.Level, "info")
	setString(&c.Logger.Format, "json")
	setString(&c.Logger.Output, "stdout")

	setString(&c.Database.SSLMode, "disable")
	setString(&c.Kafka.JobFinishedTopicName, "combined.job.finished")
	setString(&c.Redis.KeyPrefix, "sf:")

	setString(&c.Marketplace.Mode, "http")
	setString(&c.Marketplace.BaseURL, "https://marketplace-api.wildberries.ru")
	setString(&c.Marketplace.SandboxBaseURL, "https://marketplace-api-sandbox.wildberries.ru")
	setInt(&c.Marketplace.TimeoutSeconds, 30)
	setInt(&c.Marketplace.RateLimitPerMinute, 240)
	setString(&c.Marketplace.FakeSupplyPrefix, "SF")

	setString(&c.Telegram.BaseURL, "https://api.telegram.org")
	setInt(&c.Telegram.TimeoutSeconds, 60)

	setString(&c.Flow.QueueSchema, "flowqueue")
	setString(&c.Flow.CombinedQueueName, "combined-pdf")
	setString(&c.Flow.WaitingQueueName, "waiting-pdf")
	setString(&c.Flow.HTTPAddr, ":8080")
	setString(&c.Flow.WorkerHTTPAddr, ":8082")
	setString(&c.Flow.KafkaConsumerGroup, "flow-api")
	setInt(&c.Flow.WorkerPollIntervalSeconds, 2)
	setInt(&c.Flow.WorkerConcurrency, 1)
	setInt(&c.Flow.WorkerBatchSize, 1)
	setInt(&c.Flow.JobExpireSeconds, 3600)
	setInt(&c.Flow.JobRetentionSeconds, 1800)
	setInt(&c.Flow.MaintenanceIntervalSeconds, 60)
	setInt(&c.Flow.SnapshotCacheTTLSeconds, 1800)

	setInt(&c.Aggregation.SupplyPageSize, 1000)
	setInt(&c.Aggregation.LatestCount, 1)
	setInt(&c.Aggregation.WaitingCount, 6)
	setInt(&c.Aggregation.OrderLookbackDays, 30)
	setInt(&c.Aggregation.OrderPageSize, 1000)
	setInt(&c.Aggregation.StatusBatch, 1000)
	setInt(&c.Aggregation.StickerBatch, 100)
	setInt(&c.Aggregation.MaxPages, 500)
	setString(&c.Aggregation.Timezone, "Europe/Moscow")

	setInt(&c.Documents.ImageRetries, 2)
	setInt(&c.Documents.ImageCacheTTLSeconds, 86400)
	setInt(&c.Documents.ImageMaxPx, 400)
	setInt(&c.Documents.JPEGQuality, 80)
	setInt(&c.Documents.ImageTimeoutSeconds, 10)
	setInt(&c.Documents.RenderConcurrency, 4)
}

func setString(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

func setInt(v *int, def int) {
	if *v <= 0 {
		*v = def
	}
}

func (d DatabaseConfig) ConnString() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
}

func (k KafkaConfig) Brokers() []string {
	return []string{fmt.Sprintf("%s:%d", k.Host, k.Port)}
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func seconds(n int) time.Duration { return time.Duration(n) * time.Second }

func (m MarketplaceConfig) Timeout() time.Duration { return seconds(m.TimeoutSeconds) }
func (t TelegramConfig) Timeout() time.Duration    { return seconds(t.TimeoutSeconds) }

func (f FlowConfig) PollInterval() time.Duration        { return seconds(f.WorkerPollIntervalSeconds) }
func (f FlowConfig) JobExpire() time.Duration           { return seconds(f.JobExpireSeconds) }
func (f FlowConfig) JobRetention() time.Duration        { return seconds(f.JobRetentionSeconds) }
func (f FlowConfig) MaintenanceInterval() time.Duration { return seconds(f.MaintenanceIntervalSeconds) }
func (f FlowConfig) SnapshotCacheTTL() time.Duration    { return seconds(f.SnapshotCacheTTLSeconds) }

func (a AggregationConfig) OrderLookback() time.Duration {
	return time.Duration(a.OrderLookbackDays) * 24 * time.Hour
}

// Location: часовой пояс для имён файлов. Неизвестная зона даёт ошибку.
func (a AggregationConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(a.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "load timezone %q", a.Timezone)
	}
	return loc, nil
}

func (d DocumentsConfig) ImageCacheTTL() time.Duration { return seconds(d.ImageCacheTTLSeconds) }
func (d DocumentsConfig) ImageTimeout() time.Duration  { return seconds(d.ImageTimeoutSeconds) }
