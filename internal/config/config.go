package config

import (
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	StaticPath string        `mapstructure:"static_path"`
	Secret     string        `mapstructure:"secret"`
	PingPeriod time.Duration `mapstructure:"ping_period"`

	Media MediaConfig `mapstructure:"media"`
	Store StoreConfig `mapstructure:"store"`
	Rooms RoomsConfig `mapstructure:"rooms"`
	TURN  TURNConfig  `mapstructure:"turn"`
}

// MediaConfig mirrors the media engine worker settings: a fixed worker
// pool sized to host parallelism and a UDP port range shared across it.
type MediaConfig struct {
	NumWorkers     int    `mapstructure:"num_workers"`
	ListenIP       string `mapstructure:"listen_ip"`
	AnnouncedIP    string `mapstructure:"announced_ip"`
	RTCMinPort     uint16 `mapstructure:"rtc_min_port"`
	RTCMaxPort     uint16 `mapstructure:"rtc_max_port"`
	InitialBitrate int    `mapstructure:"initial_bitrate"`
	MinimumBitrate int    `mapstructure:"minimum_bitrate"`
}

type StoreConfig struct {
	Backend string      `mapstructure:"backend"` // memory | redis | mongo
	Redis   RedisConfig `mapstructure:"redis"`
	Mongo   MongoConfig `mapstructure:"mongo"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MongoConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type RoomsConfig struct {
	RoomTTL          time.Duration `mapstructure:"room_ttl"`
	SignalTTL        time.Duration `mapstructure:"signal_ttl"`
	ChatRateInterval time.Duration `mapstructure:"chat_rate_interval"`
	ChatHistoryLimit int           `mapstructure:"chat_history_limit"`
}

type TURNConfig struct {
	ProviderURL string   `mapstructure:"provider_url"`
	STUNURLs    []string `mapstructure:"stun_urls"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 4000)
	v.SetDefault("static_path", "./web")
	v.SetDefault("ping_period", "54s")

	v.SetDefault("media.num_workers", runtime.NumCPU())
	v.SetDefault("media.listen_ip", "0.0.0.0")
	v.SetDefault("media.announced_ip", "127.0.0.1")
	v.SetDefault("media.rtc_min_port", 10000)
	v.SetDefault("media.rtc_max_port", 10100)
	v.SetDefault("media.initial_bitrate", 1000000)
	v.SetDefault("media.minimum_bitrate", 600000)

	v.SetDefault("store.backend", "memory")
	v.SetDefault("store.redis.addr", "localhost:6379")
	v.SetDefault("store.redis.db", 0)
	v.SetDefault("store.mongo.uri", "mongodb://localhost:27017")
	v.SetDefault("store.mongo.database", "iftar")

	v.SetDefault("rooms.room_ttl", "6h")
	v.SetDefault("rooms.signal_ttl", "60s")
	v.SetDefault("rooms.chat_rate_interval", "1s")
	v.SetDefault("rooms.chat_history_limit", 100)

	v.SetDefault("turn.stun_urls", []string{
		"stun:stun.l.google.com:19302",
		"stun:stun1.l.google.com:19302",
	})

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
