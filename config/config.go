package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config 应用配置，按 config.yaml + 环境变量（GEOFEED_ 前缀）加载
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Redis        RedisConfig        `mapstructure:"redis"`
	JWT          JWTConfig          `mapstructure:"jwt"`
	Ranking      RankingConfig      `mapstructure:"ranking"`
	Tile         TileConfig         `mapstructure:"tile"`
	Distribution DistributionConfig `mapstructure:"distribution"`
	Sentry       SentryConfig       `mapstructure:"sentry"`
	Tracing      TracingConfig      `mapstructure:"tracing"`
}

type ServerConfig struct {
	Addr     string `mapstructure:"addr"`
	Mode     string `mapstructure:"mode"` // debug / release
	LogLevel string `mapstructure:"log_level"`
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // postgres / sqlite
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret    string `mapstructure:"secret"`
	ExpireHrs int    `mapstructure:"expire_hrs"`
}

// RankingConfig 热度与时效窗口参数
type RankingConfig struct {
	LikeWeight          float64 `mapstructure:"like_weight"`
	TimeDivisor         float64 `mapstructure:"time_divisor"`
	PeopleBoostDays     int     `mapstructure:"people_boost_days"`
	PlaceBoostDays      int     `mapstructure:"place_boost_days"`
	UTCOffsetHours      int     `mapstructure:"utc_offset_hours"`
}

type TileConfig struct {
	Zoom         int `mapstructure:"zoom"`          // 存储用统一 zoom
	MaxSpanTiles int `mapstructure:"max_span_tiles"` // 区域查询每轴最大 tile 数
}

// DistributionConfig 扇出与回填并发/上限
type DistributionConfig struct {
	FanoutWidth      int `mapstructure:"fanout_width"`
	BackfillPlace    int `mapstructure:"backfill_place"`
	BackfillUser     int `mapstructure:"backfill_user"`
	OutboxWorkers    int `mapstructure:"outbox_workers"`
	OutboxClaimLimit int `mapstructure:"outbox_claim_limit"`
	RepairQueueSize  int `mapstructure:"repair_queue_size"`
	PushRatePerSec   int `mapstructure:"push_rate_per_sec"`
}

type SentryConfig struct {
	DSN string `mapstructure:"dsn"`
}

type TracingConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

// Load 读取配置；文件缺失时仅用默认值+环境变量
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("GEOFEED")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "geofeed.db")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("jwt.secret", "dev-secret")
	v.SetDefault("jwt.expire_hrs", 72)
	v.SetDefault("ranking.like_weight", 100.0)
	v.SetDefault("ranking.time_divisor", 3600000.0)
	v.SetDefault("ranking.people_boost_days", 30)
	v.SetDefault("ranking.place_boost_days", 7)
	v.SetDefault("ranking.utc_offset_hours", -5)
	v.SetDefault("tile.zoom", 16)
	v.SetDefault("tile.max_span_tiles", 8)
	v.SetDefault("distribution.fanout_width", 16)
	v.SetDefault("distribution.backfill_place", 3)
	v.SetDefault("distribution.backfill_user", 20)
	v.SetDefault("distribution.outbox_workers", 4)
	v.SetDefault("distribution.outbox_claim_limit", 64)
	v.SetDefault("distribution.repair_queue_size", 10000)
	v.SetDefault("distribution.push_rate_per_sec", 50)
	v.SetDefault("tracing.enabled", false)
}
