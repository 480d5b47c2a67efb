package internal

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 整個應用的配置
type Config struct {
	Server struct {
		Port         int           `yaml:"port"`
		ReadTimeout  time.Duration `yaml:"read_timeout"`
		WriteTimeout time.Duration `yaml:"write_timeout"`
		IdleTimeout  time.Duration `yaml:"idle_timeout"`
	} `yaml:"server"`

	Game struct {
		// TickRate 物理模擬頻率（每秒 tick 數）
		TickRate int `yaml:"tick_rate"`
		// BroadcastInterval 狀態廣播節流間隔。
		// 與 TickRate 在數值上剛好一致（60 Hz / 16ms），但兩者是
		// 獨立的概念：加大廣播間隔只影響網路流量，不影響模擬。
		BroadcastInterval time.Duration `yaml:"broadcast_interval"`
		// WinScore 先達到此分數者獲勝
		WinScore int `yaml:"win_score"`
		// MatchTimeout 比賽閒置超過此時間視為異常終止
		MatchTimeout time.Duration `yaml:"match_timeout"`
		// SweepInterval 閒置比賽掃描間隔
		SweepInterval time.Duration `yaml:"sweep_interval"`
		// MaxInputBuffer 每玩家輸入緩衝上限（超出丟棄最舊的）
		MaxInputBuffer int `yaml:"max_input_buffer"`
	} `yaml:"game"`

	NATS struct {
		// URL 為空時停用比賽結果上報
		URL     string `yaml:"url"`
		Subject string `yaml:"subject"`
	} `yaml:"nats"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// DefaultConfig 返回預設配置
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Server.Port = 3004
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 15 * time.Second
	cfg.Server.IdleTimeout = 60 * time.Second
	cfg.Game.TickRate = 60
	cfg.Game.BroadcastInterval = 16 * time.Millisecond
	cfg.Game.WinScore = 5
	cfg.Game.MatchTimeout = 5 * time.Minute
	cfg.Game.SweepInterval = 1 * time.Minute
	cfg.Game.MaxInputBuffer = 10
	cfg.NATS.Subject = "pong.match.results"
	cfg.Log.Level = "info"
	cfg.Log.Format = "text"
	return cfg
}

// LoadConfig 載入配置檔案，path 為空時使用預設值。
// 環境變數 PORT 與 NATS_URL 可覆蓋檔案設定（生產環境常用）。
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path) // #nosec G304 - path 來自命令行參數
		if err != nil {
			return nil, fmt.Errorf("讀取配置檔案失敗: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("解析配置檔案失敗: %w", err)
		}
	}

	// 環境變數覆蓋
	if port := os.Getenv("PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return nil, fmt.Errorf("無效的 PORT 環境變數: %q", port)
		}
		cfg.Server.Port = p
	}
	if url := os.Getenv("NATS_URL"); url != "" {
		cfg.NATS.URL = url
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 驗證配置
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("無效的端口: %d", c.Server.Port)
	}
	if c.Game.TickRate <= 0 || c.Game.TickRate > 240 {
		return fmt.Errorf("tick_rate 必須在 1-240 之間: %d", c.Game.TickRate)
	}
	if c.Game.BroadcastInterval <= 0 {
		return fmt.Errorf("broadcast_interval 必須為正值")
	}
	if c.Game.WinScore <= 0 {
		return fmt.Errorf("win_score 必須為正值")
	}
	if c.Game.MatchTimeout <= 0 || c.Game.SweepInterval <= 0 {
		return fmt.Errorf("match_timeout 與 sweep_interval 必須為正值")
	}
	if c.Game.MaxInputBuffer <= 0 {
		return fmt.Errorf("max_input_buffer 必須為正值")
	}
	return nil
}

// TickInterval 物理 tick 間隔
func (c *Config) TickInterval() time.Duration {
	return time.Second / time.Duration(c.Game.TickRate)
}
