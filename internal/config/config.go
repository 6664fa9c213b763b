package config

import (
	"errors"
	"fmt"
	"lyricsync/internal/lyrics"
	"lyricsync/internal/store"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSocketPath    = "/tmp/lyrics_app.sock"
	DefaultOutputFile    = "/tmp/lyrics"
	DefaultCheckInterval = 5 * time.Second
	DefaultLeadTime      = 100 * time.Millisecond
	DefaultI3BlockSignal = 21
)

func getDefaultCacheDir() string {
	// 优先使用 XDG_CACHE_HOME 环境变量
	if cacheHome := os.Getenv("XDG_CACHE_HOME"); cacheHome != "" {
		return filepath.Join(cacheHome, "lyrics")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "lyrics_cache"
	}
	return filepath.Join(homeDir, ".cache", "lyrics")
}

// TomlConfig TOML配置文件结构
type TomlConfig struct {
	App struct {
		SocketPath    string `toml:"socket_path"`
		OutputFile    string `toml:"output_file"`
		CheckInterval string `toml:"check_interval"`
		LeadTime      string `toml:"lead_time"`
		CacheDir      string `toml:"cache_dir"`
		LogLevel      string `toml:"log_level"`
		Player        string `toml:"player"`
	} `toml:"app"`

	AI struct {
		ModuleName string `toml:"module_name"`
		APIKey     string `toml:"api_key"`
		BaseURL    string `toml:"base_url"` // for OpenAI
	} `toml:"ai"`

	Music struct {
		Providers []string `toml:"providers"`
	} `toml:"music"`

	Store struct {
		Backend   string `toml:"backend"`
		FilePath  string `toml:"file_path"`
		KeyPrefix string `toml:"key_prefix"`
	} `toml:"store"`

	Redis struct {
		Addr     string `toml:"addr"`
		Password string `toml:"password"`
		DB       int    `toml:"db"`
	} `toml:"redis"`

	Lyrics struct {
		LeadingPlaceholders  *int     `toml:"leading_placeholders"`
		TrailingPlaceholders *int     `toml:"trailing_placeholders"`
		TrailingStart        *float64 `toml:"trailing_start"`
	} `toml:"lyrics"`

	I3Blocks struct {
		Enabled bool `toml:"enabled"`
		Signal  int  `toml:"signal"`
	} `toml:"i3blocks"`
}

// AppConfig 应用配置
type AppConfig struct {
	SocketPath    string
	OutputFile    string
	CheckInterval time.Duration
	LeadTime      time.Duration // 提前多久显示下一句
	CacheDir      string
	LogLevel      string
	Player        string
}

// AIConfig AI配置，APIKey 为空时不使用 AI
type AIConfig struct {
	ModuleName string
	APIKey     string
	BaseURL    string
}

type MusicConfig struct {
	Providers []string
}

type I3BlocksConfig struct {
	Enabled bool
	Signal  int
}

// Config 主配置结构
type Config struct {
	App      AppConfig
	AI       AIConfig
	Music    MusicConfig
	Store    store.Config
	Lyrics   lyrics.Options
	I3Blocks I3BlocksConfig
}

// getConfigDir 获取配置目录
func getConfigDir() string {
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "lyrics")
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		log.Warn().Err(err).Msg("Cannot get user home directory")
		return "."
	}
	return filepath.Join(homeDir, ".config", "lyrics")
}

// Path 默认配置文件路径
func Path() string {
	return filepath.Join(getConfigDir(), "config.toml")
}

// Default 不读取任何文件时的配置
func Default() *Config {
	cacheDir := getDefaultCacheDir()
	return &Config{
		App: AppConfig{
			SocketPath:    DefaultSocketPath,
			OutputFile:    DefaultOutputFile,
			CheckInterval: DefaultCheckInterval,
			LeadTime:      DefaultLeadTime,
			CacheDir:      cacheDir,
			LogLevel:      "info",
		},
		AI: AIConfig{
			ModuleName: "gemini",
		},
		Store: store.Config{
			Backend:  store.BackendFile,
			FilePath: filepath.Join(cacheDir, "store.list"),
			Redis:    store.RedisOptions{Addr: "localhost:6379"},
		},
		Lyrics: lyrics.DefaultOptions(),
		I3Blocks: I3BlocksConfig{
			Signal: DefaultI3BlockSignal,
		},
	}
}

// Load 从默认位置加载配置，出错时记录日志并使用默认值
func Load() *Config {
	cfg, err := LoadFrom(Path())
	if err != nil {
		log.Error().Err(err).Msg("Failed to load config file, using defaults")
		cfg = Default()
		applyEnv(cfg)
	}

	if cfg.AI.APIKey == "" {
		log.Warn().Str("config", Path()).Msg("No AI API key configured, song titles will be split as 'artist - title'")
	}
	return cfg
}

// LoadFrom 加载指定的配置文件；同目录下的 .env 会先被载入环境变量。
// 文件不存在时返回默认配置。
func LoadFrom(path string) (*Config, error) {
	envPath := filepath.Join(filepath.Dir(path), ".env")
	if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warn().Err(err).Str("path", envPath).Msg("Failed to load .env")
	}

	cfg := Default()

	var tc TomlConfig
	if _, err := toml.DecodeFile(path, &tc); err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to decode %s: %w", path, err)
		}
		log.Info().Str("path", path).Msg("Config file not found, using defaults")
	} else {
		log.Info().Str("path", path).Msg("Loaded config")
		if err := apply(cfg, &tc); err != nil {
			return nil, err
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// apply 用 TOML 中的非零值覆盖默认值
func apply(cfg *Config, tc *TomlConfig) error {
	if tc.App.SocketPath != "" {
		cfg.App.SocketPath = tc.App.SocketPath
	}
	if tc.App.OutputFile != "" {
		cfg.App.OutputFile = tc.App.OutputFile
	}
	if tc.App.CheckInterval != "" {
		d, err := time.ParseDuration(tc.App.CheckInterval)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid app.check_interval %q: %w", tc.App.CheckInterval, err)
		}
		cfg.App.CheckInterval = d
	}
	if tc.App.LeadTime != "" {
		d, err := time.ParseDuration(tc.App.LeadTime)
		if err != nil {
			return fmt.Errorf("invalid app.lead_time %q: %w", tc.App.LeadTime, err)
		}
		cfg.App.LeadTime = d
	}
	if tc.App.CacheDir != "" {
		cfg.App.CacheDir = tc.App.CacheDir
		cfg.Store.FilePath = filepath.Join(tc.App.CacheDir, "store.list")
	}
	if tc.App.LogLevel != "" {
		cfg.App.LogLevel = tc.App.LogLevel
	}
	if tc.App.Player != "" {
		cfg.App.Player = tc.App.Player
	}

	if tc.AI.ModuleName != "" {
		cfg.AI.ModuleName = tc.AI.ModuleName
	}
	if tc.AI.BaseURL != "" {
		cfg.AI.BaseURL = tc.AI.BaseURL
	}
	if tc.AI.APIKey != "" {
		cfg.AI.APIKey = tc.AI.APIKey
	}

	if len(tc.Music.Providers) > 0 {
		cfg.Music.Providers = tc.Music.Providers
	}

	switch tc.Store.Backend {
	case "":
	case store.BackendMemory, store.BackendFile, store.BackendRedis:
		cfg.Store.Backend = tc.Store.Backend
	default:
		return fmt.Errorf("invalid store.backend %q", tc.Store.Backend)
	}
	if tc.Store.FilePath != "" {
		cfg.Store.FilePath = tc.Store.FilePath
	}
	if tc.Store.KeyPrefix != "" {
		cfg.Store.KeyPrefix = tc.Store.KeyPrefix
	}

	if tc.Redis.Addr != "" {
		cfg.Store.Redis.Addr = tc.Redis.Addr
	}
	if tc.Redis.Password != "" {
		cfg.Store.Redis.Password = tc.Redis.Password
	}
	if tc.Redis.DB != 0 {
		cfg.Store.Redis.DB = tc.Redis.DB
	}

	if tc.Lyrics.LeadingPlaceholders != nil {
		cfg.Lyrics.LeadingPlaceholders = *tc.Lyrics.LeadingPlaceholders
	}
	if tc.Lyrics.TrailingPlaceholders != nil {
		cfg.Lyrics.TrailingPlaceholders = *tc.Lyrics.TrailingPlaceholders
	}
	if tc.Lyrics.TrailingStart != nil {
		cfg.Lyrics.TrailingStart = *tc.Lyrics.TrailingStart
	}
	if cfg.Lyrics.LeadingPlaceholders < 0 || cfg.Lyrics.TrailingPlaceholders < 0 {
		return errors.New("lyrics placeholder counts must not be negative")
	}

	cfg.I3Blocks.Enabled = tc.I3Blocks.Enabled
	if tc.I3Blocks.Signal != 0 {
		cfg.I3Blocks.Signal = tc.I3Blocks.Signal
	}
	return nil
}

// applyEnv 环境变量中的密钥优先于配置文件
func applyEnv(cfg *Config) {
	if v := os.Getenv("LYRICS_AI_API_KEY"); v != "" {
		cfg.AI.APIKey = v
	}
	if v := os.Getenv("LYRICS_REDIS_PASSWORD"); v != "" {
		cfg.Store.Redis.Password = v
	}
}
