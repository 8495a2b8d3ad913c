package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	// Datenbank: "postgres" (Produktion) oder "sqlite" (lokal)
	DBDriver     string `envconfig:"DB_DRIVER" default:"postgres"`
	DBHost       string `envconfig:"DB_HOST" default:"localhost"`
	DBPort       int    `envconfig:"DB_PORT" default:"5432"`
	DBUser       string `envconfig:"DB_USER" default:"postgres"`
	DBPassword   string `envconfig:"DB_PASSWORD"`
	DBName       string `envconfig:"DB_NAME" default:"newsfaces"`
	SQLitePath   string `envconfig:"SQLITE_PATH" default:"./newsfaces.db"`
	AutoMigrate  bool   `envconfig:"DB_AUTO_MIGRATE" default:"true"`
	DebugEnabled bool   `envconfig:"DEBUG_ENDPOINTS" default:"false"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"8000"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`
	CORSOrigins  string `envconfig:"CORS_ORIGINS" default:"http://localhost:5173"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`
	LogFile   string `envconfig:"LOG_FILE"`

	// News-Quelle (NewsAPI top-headlines)
	NewsAPIKey      string        `envconfig:"NEWS_API_KEY" required:"true"`
	NewsAPIBaseURL  string        `envconfig:"NEWS_API_BASE_URL" default:"https://newsapi.org/v2"`
	NewsCountry     string        `envconfig:"NEWS_COUNTRY" default:"us"`
	NewsLanguage    string        `envconfig:"NEWS_LANGUAGE" default:"en"`
	NewsPageSize    int           `envconfig:"NEWS_PAGE_SIZE" default:"100"`
	NewsHTTPTimeout time.Duration `envconfig:"NEWS_HTTP_TIMEOUT" default:"20s"`

	// Entity-Extraktion über eine OpenAI-kompatible API (Groq)
	GroqAPIKey     string        `envconfig:"GROQ_API_KEY" required:"true"`
	LLMBaseURL     string        `envconfig:"LLM_BASE_URL" default:"https://api.groq.com/openai/v1"`
	LLMModel       string        `envconfig:"LLM_MODEL" default:"llama-3.1-8b-instant"`
	LLMTemperature float32       `envconfig:"LLM_TEMPERATURE" default:"0.3"`
	LLMTimeout     time.Duration `envconfig:"LLM_TIMEOUT" default:"30s"`
	LLMMaxRetries  uint64        `envconfig:"LLM_MAX_RETRIES" default:"2"`
	TitleMaxWords  int           `envconfig:"TITLE_MAX_WORDS" default:"5"`

	// Bildquellen (Wikimedia)
	WikipediaAPIURL    string        `envconfig:"WIKIPEDIA_API_URL" default:"https://en.wikipedia.org/w/api.php"`
	CommonsAPIURL      string        `envconfig:"COMMONS_API_URL" default:"https://commons.wikimedia.org/w/api.php"`
	WikimediaUserAgent string        `envconfig:"WIKIMEDIA_USER_AGENT" default:"PeopleNewsBot/1.0 (newsfaces backend)"`
	WikimediaRPS       float64       `envconfig:"WIKIMEDIA_RPS" default:"5"`
	ImageHTTPTimeout   time.Duration `envconfig:"IMAGE_HTTP_TIMEOUT" default:"20s"`
	ImageThumbWidth    int           `envconfig:"IMAGE_THUMB_WIDTH" default:"600"`
	AvatarBaseURL      string        `envconfig:"AVATAR_BASE_URL" default:"https://ui-avatars.com/api/"`
	ImageCacheTTL      time.Duration `envconfig:"IMAGE_CACHE_TTL" default:"168h"`
	ImageCacheBackend  string        `envconfig:"IMAGE_CACHE_BACKEND" default:"memory"`

	// Namens-Filter (kommagetrennt); leer = Standardliste
	BannedNameTerms string `envconfig:"BANNED_NAME_TERMS"`

	// Scheduling und Run-Lock
	RefreshInterval time.Duration `envconfig:"REFRESH_INTERVAL" default:"30m"`
	StartupDelay    time.Duration `envconfig:"STARTUP_DELAY" default:"5s"`
	RunLockBackend  string        `envconfig:"RUN_LOCK_BACKEND" default:"local"`
	RunLockTTL      time.Duration `envconfig:"RUN_LOCK_TTL" default:"30m"`

	// Redis für verteilten Lock und Bild-Cache
	RedisAddr     string `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`

	// Push-Benachrichtigungen
	SubscriberBuffer  int           `envconfig:"SUBSCRIBER_BUFFER" default:"16"`
	HeartbeatInterval time.Duration `envconfig:"HEARTBEAT_INTERVAL" default:"15s"`

	// Bild-Hosting (S3-kompatibel)
	ImageHostingEnabled bool   `envconfig:"IMAGE_HOSTING_ENABLED" default:"false"`
	S3Key               string `envconfig:"S3_KEY"`
	S3Secret            string `envconfig:"S3_SECRET"`
	S3URL               string `envconfig:"S3_URL"`
	S3Region            string `envconfig:"S3_REGION" default:"us-east-1"`
	S3Bucket            string `envconfig:"S3_BUCKET"`
	S3KeyPrefix         string `envconfig:"S3_KEY_PREFIX" default:"people"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// Origins liefert die erlaubten CORS-Origins als Liste.
func (c *Config) Origins() []string {
	return SplitList(c.CORSOrigins)
}

// BannedTerms liefert die konfigurierten Sperrbegriffe; nil bedeutet Standardliste.
func (c *Config) BannedTerms() []string {
	return SplitList(c.BannedNameTerms)
}

// Validate prüft Kombinationen, die envconfig allein nicht abdecken kann.
func (c *Config) Validate() error {
	if c.ImageHostingEnabled {
		var missing []string
		for name, val := range map[string]string{
			"S3_KEY": c.S3Key, "S3_SECRET": c.S3Secret, "S3_URL": c.S3URL, "S3_BUCKET": c.S3Bucket,
		} {
			if val == "" {
				missing = append(missing, name)
			}
		}
		if len(missing) > 0 {
			return fmt.Errorf("image hosting enabled but missing env var(s): %s", strings.Join(missing, ", "))
		}
	}
	switch c.DBDriver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}
	switch c.RunLockBackend {
	case "local", "redis":
	default:
		return fmt.Errorf("unsupported RUN_LOCK_BACKEND %q", c.RunLockBackend)
	}
	switch c.ImageCacheBackend {
	case "memory", "redis":
	default:
		return fmt.Errorf("unsupported IMAGE_CACHE_BACKEND %q", c.ImageCacheBackend)
	}
	if c.RefreshInterval < time.Second {
		return fmt.Errorf("REFRESH_INTERVAL must be at least 1s, got %s", c.RefreshInterval)
	}
	return nil
}

// SplitList trennt eine kommagetrennte Liste und verwirft leere Einträge.
func SplitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}
