package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	LiveTrack LiveTrackConfig `yaml:"livetrack"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port" validate:"gte=0,lte=65535"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode" validate:"omitempty,oneof=disable allow prefer require verify-ca verify-full"`
}

type KafkaConfig struct {
	Host                    string `yaml:"host"`
	Port                    int    `yaml:"port" validate:"gte=0,lte=65535"`
	TrackingEventsTopicName string `yaml:"tracking_events_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port" validate:"gte=0,lte=65535"`
}

type LiveTrackConfig struct {
	HTTPAddr      string `yaml:"http_addr"`
	StorageDriver string `yaml:"storage_driver" validate:"omitempty,oneof=postgres memory"` // "postgres" | "memory"
	InstanceID    string `yaml:"instance_id"`

	OrdersBaseURL string `yaml:"orders_base_url" validate:"omitempty,url"`
	OrdersAPIKey  string `yaml:"orders_api_key"`

	JWTSecret          string `yaml:"jwt_secret"`
	AllowGuestTracking bool   `yaml:"allow_guest_tracking"`

	KafkaConsumerGroup     string `yaml:"kafka_consumer_group"`
	CurrentStateTTLSeconds int    `yaml:"current_state_ttl_seconds" validate:"gte=0"`

	WSSendBuffer                     int `yaml:"ws_send_buffer" validate:"gte=0"`
	WSWriteTimeoutSeconds            int `yaml:"ws_write_timeout_seconds" validate:"gte=0"`
	WSPongWaitSeconds                int `yaml:"ws_pong_wait_seconds" validate:"gte=0"`
	DriverLocationRateLimitPerMinute int `yaml:"driver_location_rate_limit_per_minute" validate:"gte=0"`

	WorkerHTTPAddr                string  `yaml:"worker_http_addr"`
	WorkerPollIntervalSeconds     int     `yaml:"worker_poll_interval_seconds" validate:"gte=0"`
	WorkerBatchSize               int     `yaml:"worker_batch_size" validate:"gte=0"`
	WorkerConcurrency             int     `yaml:"worker_concurrency" validate:"gte=0"`
	WorkerStationaryWindowSeconds int     `yaml:"worker_stationary_window_seconds" validate:"gte=0"`
	WorkerStationaryRadiusMeters  float64 `yaml:"worker_stationary_radius_meters" validate:"gte=0"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	if err := validator.New().Struct(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// PostgresDSN собирает строку подключения; ssl_mode по умолчанию "disable".
func (c DatabaseConfig) PostgresDSN() string {
	sslMode := c.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Username, c.Password, c.Host, c.Port, c.DBName, sslMode)
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c KafkaConfig) Brokers() []string {
	return []string{fmt.Sprintf("%s:%d", c.Host, c.Port)}
}
