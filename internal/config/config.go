package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"feishu-digest-bot/internal/models"
)

// Config holds all configuration for the application
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Feishu   FeishuConfig   `mapstructure:"feishu"`
	Bot      BotConfig      `mapstructure:"bot"`
	Digest   DigestConfig   `mapstructure:"digest"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Database DatabaseConfig `mapstructure:"database"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port         string        `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// FeishuConfig holds the open platform app credentials
type FeishuConfig struct {
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`
	BaseURL   string `mapstructure:"base_url"`
}

// BotConfig holds the answering bot's settings
type BotConfig struct {
	Name             string `mapstructure:"name"`
	MaxEventAgeSecs  int    `mapstructure:"max_event_age_seconds"`
	ProcessedLogPath string `mapstructure:"processed_log_path"`
}

// DigestConfig holds the weekly digest settings
type DigestConfig struct {
	Schedule        string   `mapstructure:"schedule"`
	WindowDays      int      `mapstructure:"window_days"`
	Title           string   `mapstructure:"title"`
	TemplateID      string   `mapstructure:"template_id"`
	TemplateVersion string   `mapstructure:"template_version"`
	DefaultImageKey string   `mapstructure:"default_image_key"`
	TargetChatIDs   []string `mapstructure:"target_chat_ids"`

	DocToken         string `mapstructure:"doc_token"`
	SpreadsheetToken string `mapstructure:"spreadsheet_token"`
	SheetID          string `mapstructure:"sheet_id"`
	AppToken         string `mapstructure:"app_token"`
	TableID          string `mapstructure:"table_id"`

	StaticItems []StaticItem `mapstructure:"static_items"`
}

// StaticItem is a digest entry used when the dynamic build fails.
type StaticItem struct {
	Name      string   `mapstructure:"name"`
	Desc      string   `mapstructure:"desc"`
	ImageKeys []string `mapstructure:"image_keys"`
	URL       string   `mapstructure:"url"`
}

// LLMConfig holds the answer-generation model settings
type LLMConfig struct {
	BaseURL      string  `mapstructure:"base_url"`
	APIKey       string  `mapstructure:"api_key"`
	Model        string  `mapstructure:"model"`
	MaxTokens    int     `mapstructure:"max_tokens"`
	Temperature  float64 `mapstructure:"temperature"`
	TopP         float64 `mapstructure:"top_p"`
	SystemPrompt string  `mapstructure:"system_prompt"`
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
}

// LoadConfig loads configuration from environment variables and config file
func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Environment variables override config file
	viper.AutomaticEnv()
	bindEnvVars()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")

	viper.SetDefault("feishu.base_url", "https://open.feishu.cn")

	viper.SetDefault("bot.max_event_age_seconds", 300)
	viper.SetDefault("bot.processed_log_path", "/tmp/processed_messages.json")

	// Monday 10:00, seconds field first
	viper.SetDefault("digest.schedule", "0 0 10 * * 1")
	viper.SetDefault("digest.window_days", 7)
	viper.SetDefault("digest.title", "本周AI动态速览")

	viper.SetDefault("llm.base_url", "https://ark.cn-beijing.volces.com/api/v3")
	viper.SetDefault("llm.max_tokens", 4096)
	viper.SetDefault("llm.temperature", 1.0)
	viper.SetDefault("llm.top_p", 0.7)

	viper.SetDefault("database.enabled", false)
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 3306)
}

// bindEnvVars binds environment variables to configuration keys
func bindEnvVars() {
	viper.BindEnv("server.port", "SERVER_PORT")

	viper.BindEnv("feishu.app_id", "APP_ID")
	viper.BindEnv("feishu.app_secret", "APP_SECRET")
	viper.BindEnv("feishu.base_url", "FEISHU_BASE_URL")

	viper.BindEnv("bot.name", "BOT_NAME")
	viper.BindEnv("bot.max_event_age_seconds", "MAX_MESSAGE_AGE")
	viper.BindEnv("bot.processed_log_path", "PROCESSED_MESSAGES_FILE")

	viper.BindEnv("digest.schedule", "DIGEST_SCHEDULE")
	viper.BindEnv("digest.window_days", "DIGEST_WINDOW_DAYS")
	viper.BindEnv("digest.template_id", "CARD_TEMPLATE_ID")
	viper.BindEnv("digest.template_version", "CARD_TEMPLATE_VERSION")
	viper.BindEnv("digest.doc_token", "DOC_TOKEN")
	viper.BindEnv("digest.spreadsheet_token", "SPREADSHEET_TOKEN")
	viper.BindEnv("digest.sheet_id", "SHEET_ID")
	viper.BindEnv("digest.app_token", "BITABLE_TOKEN")
	viper.BindEnv("digest.table_id", "TABLE_ID")

	viper.BindEnv("llm.api_key", "ARK_API_KEY")
	viper.BindEnv("llm.base_url", "ARK_BASE_URL")
	viper.BindEnv("llm.model", "ARK_MODEL")

	viper.BindEnv("database.enabled", "DB_ENABLED")
	viper.BindEnv("database.host", "DB_HOST")
	viper.BindEnv("database.port", "DB_PORT")
	viper.BindEnv("database.user", "DB_USER")
	viper.BindEnv("database.password", "DB_PASSWORD")
	viper.BindEnv("database.dbname", "DB_NAME")
}

// GetDSN returns the database connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// Source builds the digest source descriptor. Variant precedence:
// table > spreadsheet > document.
func (c *DigestConfig) Source() models.DigestSource {
	return models.DigestSource{
		DocToken:         c.DocToken,
		SpreadsheetToken: c.SpreadsheetToken,
		SheetID:          c.SheetID,
		AppToken:         c.AppToken,
		TableID:          c.TableID,
	}
}

// StaticDigestItems converts the configured fallback entries to the
// normalized item shape.
func (c *DigestConfig) StaticDigestItems() []models.DigestItem {
	var items []models.DigestItem
	for _, s := range c.StaticItems {
		item := models.DigestItem{
			Name: s.Name,
			Desc: s.Desc,
			URL: models.ItemLink{
				URL:        s.URL,
				PCURL:      s.URL,
				AndroidURL: s.URL,
				IOSURL:     s.URL,
			},
		}
		for _, key := range s.ImageKeys {
			item.Pictures = append(item.Pictures, models.ResolvedImage{
				ImgKey:     key,
				I18nImgKey: map[string]string{"zh_cn": key},
			})
		}
		items = append(items, item)
	}
	return items
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}

	if c.Feishu.AppID == "" || c.Feishu.AppSecret == "" {
		return fmt.Errorf("feishu app_id and app_secret are required")
	}

	if c.Bot.Name == "" {
		return fmt.Errorf("bot name is required")
	}

	if c.Bot.MaxEventAgeSecs <= 0 {
		return fmt.Errorf("max event age must be greater than 0")
	}

	if c.Digest.WindowDays <= 0 {
		return fmt.Errorf("digest window must be greater than 0")
	}

	if c.Database.Enabled {
		if c.Database.Host == "" || c.Database.User == "" || c.Database.DBName == "" {
			return fmt.Errorf("database host, user, and dbname are required when database is enabled")
		}
	}

	return nil
}
