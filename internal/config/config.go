package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds application configuration
// アプリケーション設定を保持
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	API       APIConfig       `yaml:"api"`
	Inventory InventoryConfig `yaml:"inventory"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatabaseConfig holds database configuration
// データベース設定を保持
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
}

// APIConfig holds API server configuration
// APIサーバー設定を保持
type APIConfig struct {
	Port          int           `yaml:"port"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	IdleTimeout   time.Duration `yaml:"idle_timeout"`
	EnableCORS    bool          `yaml:"enable_cors"`
	EnableMetrics bool          `yaml:"enable_metrics"`
}

// InventoryConfig holds stock ledger and alerting configuration
// 在庫元帳・アラートの設定を保持
type InventoryConfig struct {
	DefaultCurrency    string `yaml:"default_currency"`
	MaxConflictRetries int    `yaml:"max_conflict_retries"`
	AutoReorderEnabled bool   `yaml:"auto_reorder_enabled"`
	ExpiryWarningDays  int    `yaml:"expiry_warning_days"`
	ExpiryCriticalDays int    `yaml:"expiry_critical_days"`
	SweepSchedule      string `yaml:"sweep_schedule"` // cron形式
	SweepPageSize      int    `yaml:"sweep_page_size"`
}

// LoggingConfig holds logging configuration
// ログ設定を保持
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json, console
	Output string `yaml:"output"` // stdout, file
}

// Load loads configuration from environment variables
// 環境変数から設定を読み込み
func Load() (*Config, error) {
	cfg := &Config{
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvAsInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "makiba"),
			Password: getEnv("DB_PASSWORD", "password"),
			DBName:   getEnv("DB_NAME", "makiba_stock"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		API: APIConfig{
			Port:          getEnvAsInt("API_PORT", 8080),
			ReadTimeout:   getEnvAsDuration("API_READ_TIMEOUT", 30*time.Second),
			WriteTimeout:  getEnvAsDuration("API_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:   getEnvAsDuration("API_IDLE_TIMEOUT", 60*time.Second),
			EnableCORS:    getEnvAsBool("API_ENABLE_CORS", true),
			EnableMetrics: getEnvAsBool("API_ENABLE_METRICS", true),
		},
		Inventory: InventoryConfig{
			DefaultCurrency:    getEnv("INVENTORY_DEFAULT_CURRENCY", "JPY"),
			MaxConflictRetries: getEnvAsInt("INVENTORY_MAX_CONFLICT_RETRIES", 3),
			AutoReorderEnabled: getEnvAsBool("INVENTORY_AUTO_REORDER_ENABLED", true),
			ExpiryWarningDays:  getEnvAsInt("INVENTORY_EXPIRY_WARNING_DAYS", 30),
			ExpiryCriticalDays: getEnvAsInt("INVENTORY_EXPIRY_CRITICAL_DAYS", 7),
			SweepSchedule:      getEnv("INVENTORY_SWEEP_SCHEDULE", "0 * * * *"),
			SweepPageSize:      getEnvAsInt("INVENTORY_SWEEP_PAGE_SIZE", 200),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
			Output: getEnv("LOG_OUTPUT", "stdout"),
		},
	}

	// バリデーション
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定バリデーションに失敗しました: %w", err)
	}

	return cfg, nil
}

// Validate validates the configuration
// 設定をバリデーション
func (c *Config) Validate() error {
	// データベース設定チェック
	if c.Database.Host == "" {
		return fmt.Errorf("データベースホストが指定されていません")
	}
	if c.Database.Port <= 0 || c.Database.Port > 65535 {
		return fmt.Errorf("無効なデータベースポート: %d", c.Database.Port)
	}
	if c.Database.User == "" {
		return fmt.Errorf("データベースユーザーが指定されていません")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("データベース名が指定されていません")
	}

	// API設定チェック
	if c.API.Port <= 0 || c.API.Port > 65535 {
		return fmt.Errorf("無効なAPIポート: %d", c.API.Port)
	}

	// 在庫設定チェック
	if c.Inventory.DefaultCurrency == "" {
		return fmt.Errorf("既定通貨が指定されていません")
	}
	if c.Inventory.MaxConflictRetries < 0 {
		return fmt.Errorf("競合リトライ回数は0以上である必要があります")
	}
	if c.Inventory.ExpiryWarningDays <= 0 {
		return fmt.Errorf("期限警告日数は正の値である必要があります")
	}
	if c.Inventory.ExpiryCriticalDays <= 0 || c.Inventory.ExpiryCriticalDays > c.Inventory.ExpiryWarningDays {
		return fmt.Errorf("期限緊急日数は1以上かつ警告日数以下である必要があります")
	}
	if c.Inventory.SweepSchedule == "" {
		return fmt.Errorf("スイープスケジュールが指定されていません")
	}

	// ログ設定チェック
	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true, "fatal": true,
	}
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("無効なログレベル: %s", c.Logging.Level)
	}

	validLogFormats := map[string]bool{
		"json": true, "console": true,
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("無効なログフォーマット: %s", c.Logging.Format)
	}

	return nil
}

// DSN generates PostgreSQL Data Source Name
// PostgreSQLデータソース名を生成
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.DBName,
		c.Database.SSLMode,
	)
}

// ヘルパー関数

// getEnv gets environment variable with default value
// デフォルト値付きで環境変数を取得
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets environment variable as integer with default value
// デフォルト値付きで環境変数を整数として取得
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvAsBool gets environment variable as boolean with default value
// デフォルト値付きで環境変数をbooleanとして取得
func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

// getEnvAsDuration gets environment variable as duration with default value
// デフォルト値付きで環境変数をdurationとして取得
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
