package conf

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// 配置加载（数据库、redis、kafka、行情源等）

type Db struct {
	// mysql 或 memory（本地调试，不落盘）
	Driver   string `yaml:"driver"`
	DbName   string `yaml:"dbname"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	FileName   string `yaml:"file-name"`
	TimeFormat string `yaml:"time-format"`
	MaxSize    int    `yaml:"max-size"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAge     int    `yaml:"max-age"`
	Compress   bool   `yaml:"compress"`
	LocalTime  bool   `yaml:"local-time"`
	Console    bool   `yaml:"console"`
}

// RedisConfig is used to configure redis
type RedisConfig struct {
	Addr         string `yaml:"address"`
	Password     string `yaml:"password"`
	Db           int    `yaml:"db"`
	PoolSize     int    `yaml:"pool-size"`
	MinIdleConns int    `yaml:"min-idle-conns"`
	IdleTimeout  int    `yaml:"idle-timeout"`
}

type KafkaConfig struct {
	Broker string `yaml:"broker"`
	// 消费组
	GroupID string `yaml:"group-id"`
	// 单条消息的存活时间，过期未消费的消息进入死信队列
	MessageTTL time.Duration `yaml:"message-ttl"`
	// 同一条消息最多投递次数（断线重连后的重复投递也计入）
	MaxDeliveries int `yaml:"max-deliveries"`
	// 重连参数：初始间隔、最大间隔、最大尝试次数
	ReconnectBaseDelay time.Duration `yaml:"reconnect-base-delay"`
	ReconnectMaxDelay  time.Duration `yaml:"reconnect-max-delay"`
	ReconnectAttempts  int           `yaml:"reconnect-attempts"`
	// 消费端空闲超过该时间时探测一次 broker，探测失败进入重连
	HealthInterval time.Duration `yaml:"health-interval"`
}

type StreamConfig struct {
	// 行情 websocket 地址，例如 wss://stream.binance.com:9443
	BaseURL string `yaml:"base-url"`
	// REST 行情地址，用于 /crypto/prices
	RestURL string `yaml:"rest-url"`
	// 单个连接最多订阅的币种数
	ChunkSize      int           `yaml:"chunk-size"`
	ReconnectDelay time.Duration `yaml:"reconnect-delay"`
	// 超过该时间没有收到任何数据帧或控制帧，视为连接已失效
	ReadTimeout time.Duration `yaml:"read-timeout"`
	// 每秒最多新建的连接数
	DialRate float64 `yaml:"dial-rate"`
}

type AlertConfig struct {
	BatchSize           int           `yaml:"batch-size"`
	ExpireCheckInterval time.Duration `yaml:"expire-check-interval"`
	StoreTimeout        time.Duration `yaml:"store-timeout"`
	// 价格反向穿越后是否重新激活 ONE_DAY / CONTINUOUS 提醒
	RearmOnRecross bool `yaml:"rearm-on-recross"`
}

type CacheConfig struct {
	// memory 或 redis
	Backend string        `yaml:"backend"`
	TTL     time.Duration `yaml:"ttl"`
	Prefix  string        `yaml:"prefix"`
}

type Config struct {
	AppName      string `yaml:"app_name"`
	Listen       string `yaml:"listen"`
	Mode         string `yaml:"mode"`
	Language     string `yaml:"language"`
	MaxPingCount int    `yaml:"max-ping-count"`

	Db     `yaml:"database"`
	Log    LogConfig    `yaml:"log"`
	Redis  RedisConfig  `yaml:"redis"`
	Kafka  KafkaConfig  `yaml:"kafka"`
	Stream StreamConfig `yaml:"stream"`
	Alert  AlertConfig  `yaml:"alert"`
	Cache  CacheConfig  `yaml:"cache"`
}

// Default 返回各项的默认值，配置文件中出现的字段会覆盖它们
func Default() Config {
	return Config{
		AppName:      "pricewatch",
		Listen:       ":12180",
		Mode:         "release",
		Language:     "en",
		MaxPingCount: 10,
		Db: Db{
			Driver: "mysql",
			Host:   "127.0.0.1",
			Port:   "3306",
			DbName: "pricewatch",
		},
		Log: LogConfig{
			Level:      "info",
			FileName:   "logs/pricewatch.log",
			TimeFormat: "2006-01-02 15:04:05.000",
			MaxSize:    100,
			MaxBackups: 7,
			MaxAge:     30,
			Console:    true,
		},
		Kafka: KafkaConfig{
			Broker:             "127.0.0.1:9092",
			GroupID:            "pricewatch",
			MessageTTL:         30 * time.Second,
			MaxDeliveries:      3,
			ReconnectBaseDelay: time.Second,
			ReconnectMaxDelay:  30 * time.Second,
			ReconnectAttempts:  5,
			HealthInterval:     10 * time.Second,
		},
		Stream: StreamConfig{
			BaseURL:        "wss://stream.binance.com:9443",
			RestURL:        "https://api.binance.com",
			ChunkSize:      200,
			ReconnectDelay: 5 * time.Second,
			ReadTimeout:    time.Minute,
			DialRate:       5,
		},
		Alert: AlertConfig{
			BatchSize:           100,
			ExpireCheckInterval: time.Hour,
			StoreTimeout:        10 * time.Second,
		},
		Cache: CacheConfig{
			Backend: "memory",
			TTL:     time.Minute,
			Prefix:  "pricewatch:",
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("Read config file error %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("Unmarshal config yaml error: %w", err)
	}
	cfg.ApplyEnv(os.Getenv)
	return &cfg, nil
}

// ApplyEnv 环境变量优先于配置文件（容器部署时使用）
func (c *Config) ApplyEnv(getenv func(string) string) {
	dbUser := getenv("DB_USER")
	dbPass := getenv("DB_PASSWORD")
	dbHost := getenv("DB_HOST")
	if dbUser != "" && dbPass != "" && dbHost != "" {
		c.Username = dbUser
		c.Db.Password = dbPass
		c.Host = dbHost
		if v := getenv("DB_PORT"); v != "" {
			c.Port = v
		}
		if v := getenv("DB_NAME"); v != "" {
			c.DbName = v
		}
	}

	redisHost := getenv("REDIS_HOST")
	redisPort := getenv("REDIS_PORT")
	if redisHost != "" && redisPort != "" {
		c.Redis.Addr = fmt.Sprintf("%s:%s", redisHost, redisPort)
	}
	if v := getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}

	if v := getenv("KAFKA_BROKER"); v != "" {
		c.Kafka.Broker = v
	}
	if v := getenv("STREAM_BASE_URL"); v != "" {
		c.Stream.BaseURL = strings.TrimRight(v, "/")
	}
}
