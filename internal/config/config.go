package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/spf13/viper"
)

// Config 保存应用程序配置。
type Config struct {
	App      AppConfig      `json:"app"`
	MySQL    MySQLConfig    `json:"mysql"`
	Redis    RedisConfig    `json:"redis"`
	Resolver ResolverConfig `json:"resolver"`
}

// AppConfig 应用程序基础配置。
type AppConfig struct {
	Env         string `json:"env"`          // 运行环境: local / prod
	LogLevel    string `json:"log_level"`    // 日志级别: debug / info / warn / error
	HTTPAddr    string `json:"http_addr"`    // 查询 API 监听地址
	MetricsAddr string `json:"metrics_addr"` // 解析器 metrics 监听地址
}

// MySQLConfig MySQL 数据库配置。
type MySQLConfig struct {
	DSN string `json:"dsn"` // 数据库连接字符串
}

// RedisConfig Redis 缓存配置。
type RedisConfig struct {
	Addr     string        `json:"addr"`      // Redis 地址 (host:port)，为空表示不启用缓存
	Password string        `json:"password"`  // Redis 密码
	CacheTTL time.Duration `json:"cache_ttl"` // 查询结果缓存时长
}

// ResolverConfig 解析器（商品归并引擎）配置。
type ResolverConfig struct {
	Driver         string        `json:"driver"`           // 存储驱动: mysql / sqlite
	SQLitePath     string        `json:"sqlite_path"`      // sqlite 数据库文件路径
	BatchSize      int           `json:"batch_size"`       // 每轮处理的 unresolved 行数上限
	CommitEvery    int           `json:"commit_every"`     // 大批次下每 N 行做一次中间提交，-1 表示整批单事务
	FuzzyThreshold float64       `json:"fuzzy_threshold"`  // 模糊匹配相似度阈值（0-1）
	PriceRatioMin  float64       `json:"price_ratio_min"`  // 价格合理性下限：低价/高价 >= 该值才允许归并
	LoopInterval   time.Duration `json:"loop_interval"`    // -loop 模式下两轮解析之间的间隔
}

// Load 从 JSON 文件加载配置。
//
// 它会尝试读取 configs/config.json 文件，如果不存在则使用默认值。
//
// 参数:
//
//	configPath: 配置文件路径（如果为空则使用默认路径 "configs/config.json"）
//
// 返回值:
//
//	*Config: 加载完成的配置对象
//	error: 加载失败返回错误
func Load(configPath ...string) (*Config, error) {
	path := "configs/config.json"
	if len(configPath) > 0 && configPath[0] != "" {
		path = configPath[0]
	}

	// 如果配置文件不存在，使用默认配置
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg := getDefaultConfig()
		// 即使没有配置文件，也允许环境变量覆盖默认值
		applyEnvOverrides(cfg)
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	applyDefaults(cfg)
	applyEnvOverrides(cfg)

	return cfg, nil
}

// getDefaultConfig 返回默认配置。
func getDefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Env:         "local",
			LogLevel:    "info",
			HTTPAddr:    ":8081",
			MetricsAddr: ":2112",
		},
		MySQL: MySQLConfig{
			DSN: "root:password@tcp(localhost:3306)/tooltally?parseTime=true&loc=Local",
		},
		Redis: RedisConfig{
			Addr:     "",
			Password: "",
			CacheTTL: 5 * time.Minute,
		},
		Resolver: ResolverConfig{
			Driver:         "mysql",
			SQLitePath:     "data/tooltally.db",
			BatchSize:      2000,
			CommitEvery:    500,
			FuzzyThreshold: 0.90,
			PriceRatioMin:  0.20,
			LoopInterval:   10 * time.Minute,
		},
	}
}

// applyDefaults 对未设置的字段应用默认值。
func applyDefaults(cfg *Config) {
	defaults := getDefaultConfig()

	if cfg.App.Env == "" {
		cfg.App.Env = defaults.App.Env
	}
	if cfg.App.LogLevel == "" {
		cfg.App.LogLevel = defaults.App.LogLevel
	}
	if cfg.App.HTTPAddr == "" {
		cfg.App.HTTPAddr = defaults.App.HTTPAddr
	}
	if cfg.App.MetricsAddr == "" {
		cfg.App.MetricsAddr = defaults.App.MetricsAddr
	}
	if cfg.MySQL.DSN == "" {
		cfg.MySQL.DSN = defaults.MySQL.DSN
	}
	if cfg.Redis.CacheTTL == 0 {
		cfg.Redis.CacheTTL = defaults.Redis.CacheTTL
	}
	if cfg.Resolver.Driver == "" {
		cfg.Resolver.Driver = defaults.Resolver.Driver
	}
	if cfg.Resolver.SQLitePath == "" {
		cfg.Resolver.SQLitePath = defaults.Resolver.SQLitePath
	}
	if cfg.Resolver.BatchSize == 0 {
		cfg.Resolver.BatchSize = defaults.Resolver.BatchSize
	}
	if cfg.Resolver.CommitEvery == 0 {
		cfg.Resolver.CommitEvery = defaults.Resolver.CommitEvery
	}
	if cfg.Resolver.FuzzyThreshold == 0 {
		cfg.Resolver.FuzzyThreshold = defaults.Resolver.FuzzyThreshold
	}
	if cfg.Resolver.PriceRatioMin == 0 {
		cfg.Resolver.PriceRatioMin = defaults.Resolver.PriceRatioMin
	}
	if cfg.Resolver.LoopInterval == 0 {
		cfg.Resolver.LoopInterval = defaults.Resolver.LoopInterval
	}
}

func applyEnvOverrides(cfg *Config) {
	viper.AutomaticEnv()

	_ = viper.BindEnv("db_host", "DB_HOST")
	_ = viper.BindEnv("db_password", "DB_PASSWORD")
	_ = viper.BindEnv("redis_addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis_password", "REDIS_PASSWORD")

	if v := os.Getenv("APP_ENV"); v != "" {
		cfg.App.Env = v
	}
	if v := os.Getenv("APP_LOG_LEVEL"); v != "" {
		cfg.App.LogLevel = v
	}
	if v := os.Getenv("APP_HTTP_ADDR"); v != "" {
		cfg.App.HTTPAddr = v
	}
	if v := os.Getenv("APP_METRICS_ADDR"); v != "" {
		cfg.App.MetricsAddr = v
	}
	if v := os.Getenv("RESOLVER_DRIVER"); v != "" {
		cfg.Resolver.Driver = strings.ToLower(strings.TrimSpace(v))
	}
	if v := os.Getenv("DB_PATH"); v != "" {
		cfg.Resolver.SQLitePath = v
	}
	if v := os.Getenv("RESOLVER_BATCH_SIZE"); v != "" {
		if i, err := strconv.Atoi(v); err == nil && i > 0 {
			cfg.Resolver.BatchSize = i
		}
	}
	if v := os.Getenv("RESOLVER_COMMIT_EVERY"); v != "" {
		// -1 关闭中间提交，0 视为未设置
		if i, err := strconv.Atoi(v); err == nil && i != 0 {
			cfg.Resolver.CommitEvery = i
		}
	}
	if v := os.Getenv("RESOLVER_FUZZY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f <= 1 {
			cfg.Resolver.FuzzyThreshold = f
		}
	}
	if v := os.Getenv("RESOLVER_PRICE_RATIO_MIN"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			cfg.Resolver.PriceRatioMin = f
		}
	}
	if v := os.Getenv("RESOLVER_LOOP_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Resolver.LoopInterval = d
		}
	}

	if v := os.Getenv("DB_DSN"); v != "" {
		cfg.MySQL.DSN = v
	} else if hasAnyEnv("DB_HOST", "DB_PORT", "DB_USER", "DB_PASSWORD", "DB_NAME") || viper.GetString("db_host") != "" || viper.GetString("db_password") != "" {
		parsed := parseMySQLDSN(cfg.MySQL.DSN)
		if v := viper.GetString("db_host"); v != "" {
			host := v
			port := getenvDefault("DB_PORT", parsed.Addr, "3306")
			parsed.Addr = host + ":" + port
		} else if v := os.Getenv("DB_PORT"); v != "" {
			host := parsed.Addr
			if strings.Contains(host, ":") {
				host = strings.Split(host, ":")[0]
			}
			parsed.Addr = host + ":" + v
		}
		if v := os.Getenv("DB_USER"); v != "" {
			parsed.User = v
		}
		if v := viper.GetString("db_password"); v != "" {
			parsed.Passwd = v
		}
		if v := os.Getenv("DB_NAME"); v != "" {
			parsed.DBName = v
		}
		cfg.MySQL.DSN = parsed.FormatDSN()
	}

	if v := viper.GetString("redis_addr"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := viper.GetString("redis_password"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("REDIS_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Redis.CacheTTL = d
		}
	}
}

func hasAnyEnv(keys ...string) bool {
	for _, key := range keys {
		if os.Getenv(key) != "" {
			return true
		}
	}
	return false
}

func getenvDefault(envKey, fallbackAddr, defaultValue string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if fallbackAddr == "" {
		return defaultValue
	}
	if strings.Contains(fallbackAddr, ":") {
		parts := strings.Split(fallbackAddr, ":")
		if len(parts) == 2 && parts[1] != "" {
			return parts[1]
		}
	}
	return defaultValue
}

func parseMySQLDSN(dsn string) *mysql.Config {
	fallback := &mysql.Config{
		User:   "root",
		Passwd: "",
		Net:    "tcp",
		Addr:   "localhost:3306",
		DBName: "tooltally",
		Params: map[string]string{
			"parseTime": "true",
			"loc":       "Local",
		},
	}
	if dsn == "" {
		return fallback
	}
	parsed, err := mysql.ParseDSN(dsn)
	if err != nil {
		return fallback
	}
	return parsed
}

// UnmarshalJSON 自定义 JSON 解析，支持时间 Duration 字符串。
func (r *ResolverConfig) UnmarshalJSON(data []byte) error {
	type Alias ResolverConfig
	aux := &struct {
		LoopInterval string `json:"loop_interval"`
		*Alias
	}{
		Alias: (*Alias)(r),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.LoopInterval != "" {
		duration, err := time.ParseDuration(aux.LoopInterval)
		if err != nil {
			return fmt.Errorf("invalid loop_interval format: %w", err)
		}
		r.LoopInterval = duration
	}

	return nil
}

// UnmarshalJSON 自定义 JSON 解析，支持时间 Duration 字符串。
func (r *RedisConfig) UnmarshalJSON(data []byte) error {
	type Alias RedisConfig
	aux := &struct {
		CacheTTL string `json:"cache_ttl"`
		*Alias
	}{
		Alias: (*Alias)(r),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}

	if aux.CacheTTL != "" {
		duration, err := time.ParseDuration(aux.CacheTTL)
		if err != nil {
			return fmt.Errorf("invalid cache_ttl format: %w", err)
		}
		r.CacheTTL = duration
	}

	return nil
}
