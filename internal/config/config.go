package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DBPath    string
	RawDir    string
	InboxDir  string
	OutputDir string

	LogLevel  string
	LogFormat string

	OCREnabled        bool
	OCRLanguages      string
	TesseractBin      string
	OCRDocumentBudget time.Duration
	OCRMinConfidence  float64
	OCRMaxImages      int
	MinTextLayerChars int

	ProfilesPath   string
	ProcessWorkers int

	CatalogAPIBaseURL       string
	CatalogAPIToken         string
	CatalogRateLimitRPS     int
	CatalogTimeoutMs        int
	CatalogIncrementalHours int
	CatalogIncrementalDays  int

	MatchAutoThreshold    float64
	MatchSuggestThreshold float64
	MatchGapThreshold     float64

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

	ListenerSource       string
	ListenerLabel        string
	ListenerIntervalSec  int
	ListenerFetchMax     int
	ListenerProcessBatch int
	ListenerAutoExport   bool
}

func Load() (Config, error) {
	_ = godotenv.Load()

	cwd, err := os.Getwd()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		DBPath:    getEnv("DB_PATH", filepath.Join(cwd, "data", "app.db")),
		RawDir:    getEnv("RAW_DIR", filepath.Join(cwd, "data", "raw")),
		InboxDir:  getEnv("INBOX_DIR", filepath.Join(cwd, "data", "inbox")),
		OutputDir: getEnv("OUTPUT_DIR", filepath.Join(cwd, "out")),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "text"),

		OCREnabled:        getEnvBool("OCR_ENABLED", true),
		OCRLanguages:      getEnv("OCR_LANGUAGES", "rus+eng"),
		TesseractBin:      getEnv("TESSERACT_BIN", "tesseract"),
		OCRDocumentBudget: getEnvDuration("OCR_DOCUMENT_BUDGET", 2*time.Minute),
		OCRMinConfidence:  getEnvFloat("OCR_MIN_CONFIDENCE", 0.5),
		OCRMaxImages:      getEnvInt("OCR_MAX_IMAGES", 50),
		MinTextLayerChars: getEnvInt("MIN_TEXT_LAYER_CHARS", 50),

		ProfilesPath:   getEnv("PROFILES_PATH", ""),
		ProcessWorkers: getEnvInt("PROCESS_WORKERS", 2),

		CatalogAPIBaseURL:       getEnv("CATALOG_API_BASE_URL", ""),
		CatalogAPIToken:         getEnv("CATALOG_API_TOKEN", ""),
		CatalogRateLimitRPS:     getEnvInt("CATALOG_RATE_LIMIT_RPS", 5),
		CatalogTimeoutMs:        getEnvInt("CATALOG_TIMEOUT_MS", 30000),
		CatalogIncrementalHours: getEnvInt("CATALOG_INCREMENTAL_HOURS", 24),
		CatalogIncrementalDays:  getEnvInt("CATALOG_INCREMENTAL_DAYS", 2),

		MatchAutoThreshold:    getEnvFloat("MATCH_AUTO_THRESHOLD", 0.90),
		MatchSuggestThreshold: getEnvFloat("MATCH_SUGGEST_THRESHOLD", 0.70),
		MatchGapThreshold:     getEnvFloat("MATCH_GAP_THRESHOLD", 0.08),

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

		ListenerSource:       getEnv("LISTENER_SOURCE", "inbox"),
		ListenerLabel:        getEnv("LISTENER_LABEL", "INBOX"),
		ListenerIntervalSec:  getEnvInt("LISTENER_INTERVAL_SEC", 30),
		ListenerFetchMax:     getEnvInt("LISTENER_FETCH_MAX", 20),
		ListenerProcessBatch: getEnvInt("LISTENER_PROCESS_BATCH", 20),
		ListenerAutoExport:   getEnvBool("LISTENER_AUTO_EXPORT", true),
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

// getEnvDuration accepts Go durations ("90s", "2m") or plain seconds.
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value := strings.TrimSpace(getEnv(key, ""))
	if value == "" {
		return fallback
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(value); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}
