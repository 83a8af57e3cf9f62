package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath     string
	RawMailDir string
	VectorDir  string
	OutputDir  string

	ExtractAPIBaseURL   string
	ExtractAPIToken     string
	ExtractModel        string
	ExtractRateLimitRPS int
	ExtractTimeoutMs    int

	EmbedAPIBaseURL string
	EmbedAPIToken   string
	EmbedModel      string
	EmbedTimeoutMs  int

	SemanticThreshold float64
	SemanticLimit     int
	MatchTopN         int

	DefaultDailyQuota int

	GmailClientID     string
	GmailClientSecret string
	GmailRedirectURI  string
	GmailRefreshToken string

	IMAPHost     string
	IMAPPort     int
	IMAPSecure   bool
	IMAPUser     string
	IMAPPassword string
	IMAPMarkSeen bool

	MailListenerProvider     string
	MailListenerLabel        string
	MailListenerIntervalSec  int
	MailListenerFetchMax     int
	MailListenerProcessBatch int
	MailListenerAutoExport   bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:     getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),
		RawMailDir: getEnv("MAIL_RAW_DIR", filepath.Join(cwd, "data", "raw")),
		VectorDir:  getEnv("VECTOR_DIR", filepath.Join(cwd, "data", "vectors")),
		OutputDir:  getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		ExtractAPIBaseURL:   getEnv("EXTRACT_API_BASE_URL", "https://api.extraction.example/v1"),
		ExtractAPIToken:     getEnv("EXTRACT_API_TOKEN", ""),
		ExtractModel:        getEnv("EXTRACT_MODEL", "doc-extract-large"),
		ExtractRateLimitRPS: getEnvInt("EXTRACT_RATE_LIMIT_RPS", 5),
		ExtractTimeoutMs:    getEnvInt("EXTRACT_TIMEOUT_MS", 60000),

		EmbedAPIBaseURL: getEnv("EMBED_API_BASE_URL", "https://api.extraction.example/v1"),
		EmbedAPIToken:   getEnv("EMBED_API_TOKEN", ""),
		EmbedModel:      getEnv("EMBED_MODEL", "text-embed-small"),
		EmbedTimeoutMs:  getEnvInt("EMBED_TIMEOUT_MS", 15000),

		SemanticThreshold: getEnvFloat("SEMANTIC_THRESHOLD", 0.70),
		SemanticLimit:     getEnvInt("SEMANTIC_LIMIT", 5),
		MatchTopN:         getEnvInt("MATCH_TOP_N", 5),

		DefaultDailyQuota: getEnvInt("DEFAULT_DAILY_QUOTA", 100),

		GmailClientID:     getEnv("GMAIL_CLIENT_ID", ""),
		GmailClientSecret: getEnv("GMAIL_CLIENT_SECRET", ""),
		GmailRedirectURI:  getEnv("GMAIL_REDIRECT_URI", "https://developers.google.com/oauthplayground"),
		GmailRefreshToken: getEnv("GMAIL_REFRESH_TOKEN", ""),

		IMAPHost:     getEnv("IMAP_HOST", ""),
		IMAPPort:     getEnvInt("IMAP_PORT", 993),
		IMAPSecure:   getEnvBool("IMAP_SECURE", true),
		IMAPUser:     getEnv("IMAP_USER", ""),
		IMAPPassword: getEnv("IMAP_PASSWORD", ""),
		IMAPMarkSeen: getEnvBool("IMAP_MARK_SEEN", false),

		MailListenerProvider:     getEnv("MAIL_LISTENER_PROVIDER", "gmail"),
		MailListenerLabel:        getEnv("MAIL_LISTENER_LABEL", "INBOX"),
		MailListenerIntervalSec:  getEnvInt("MAIL_LISTENER_INTERVAL_SEC", 30),
		MailListenerFetchMax:     getEnvInt("MAIL_LISTENER_FETCH_MAX", 20),
		MailListenerProcessBatch: getEnvInt("MAIL_LISTENER_PROCESS_BATCH", 20),
		MailListenerAutoExport:   getEnvBool("MAIL_LISTENER_AUTO_EXPORT", true),
	}

	return cfg, nil
}

func (c Config) Require(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("missing required env var: %s", name)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvFloat(key string, fallback float64) float64 {
	value := getEnv(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvBool(key string, fallback bool) bool {
	value := strings.ToLower(strings.TrimSpace(getEnv(key, "")))
	if value == "" {
		return fallback
	}
	if value == "1" || value == "true" || value == "yes" || value == "on" {
		return true
	}
	if value == "0" || value == "false" || value == "no" || value == "off" {
		return false
	}
	return fallback
}
