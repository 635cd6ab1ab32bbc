// Package config defines the configuration contract and handles loading and validating environment configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	// Canonical environment variable keys.
	KeyTelegramToken          = "TELEGRAM_TOKEN"
	KeyDatamallAccountKey     = "DATAMALL_ACCOUNT_KEY"
	KeyDatamallUserID         = "DATAMALL_USER_ID"
	KeyDatamallURL            = "DATAMALL_URL"
	KeyStoreBackend           = "STORE_BACKEND"
	KeyMongoURI               = "MONGO_URI"
	KeyMongoDB                = "MONGO_DB"
	KeyStateCollection        = "STATE_COLLECTION"
	KeyMessageCacheCollection = "MESSAGE_CACHE_COLLECTION"
	KeyHistoryEnabled         = "HISTORY_ENABLED"
	KeyWebhookPath            = "WEBHOOK_PATH"
	KeyAppEnv                 = "APP_ENV"
	KeyLogLevel               = "LOG_LEVEL"
	KeyHTTPPort               = "HTTP_PORT"

	// Allowed environment values.
	EnvDevelopment = "development"
	EnvProduction  = "production"

	// Allowed store backends.
	BackendMongo  = "mongo"
	BackendMemory = "memory"

	// Defaults for optional settings.
	DefaultAppEnv                 = EnvProduction
	DefaultLogLevel               = "info"
	DefaultHTTPPort               = 8080
	DefaultStoreBackend           = BackendMongo
	DefaultDatamallURL            = "http://datamall2.mytransport.sg/ltaodataservice/"
	DefaultStateCollection        = "state"
	DefaultMessageCacheCollection = "message_cache"
	DefaultWebhookPath            = "/webhook"

	// Recommended database names by environment.
	DefaultMongoDBProd = "bus_eta_bot"
	DefaultMongoDBDev  = "bus_eta_bot_dev"
)

// VarSpec describes a single configuration key.
type VarSpec struct {
	Key         string // environment variable name
	Example     string // human-friendly sample value
	Required    bool   // whether the bot must refuse to start without this value
	Default     string // default when unset (empty when required)
	Description string // what the variable controls
	Notes       string // extra guidance or policies
}

// Contract enumerates the authoritative configuration keys for the bot.
// .env loading is only permitted when APP_ENV=development; production must rely
// on environment variables supplied by the runtime.
var Contract = []VarSpec{
	{
		Key:         KeyTelegramToken,
		Example:     "123:ABC",
		Required:    true,
		Description: "Telegram Bot Token issued by BotFather.",
	},
	{
		Key:         KeyDatamallAccountKey,
		Example:     "abcdEFGH1234",
		Required:    true,
		Description: "LTA Datamall API account key sent as the AccountKey header.",
	},
	{
		Key:         KeyDatamallUserID,
		Example:     "00000000-0000-0000-0000-000000000000",
		Description: "LTA Datamall unique user id sent as the UniqueUserId header.",
	},
	{
		Key:         KeyDatamallURL,
		Example:     DefaultDatamallURL,
		Default:     DefaultDatamallURL,
		Description: "Base URL of the Datamall OData service.",
	},
	{
		Key:         KeyStoreBackend,
		Example:     BackendMongo + " / " + BackendMemory,
		Default:     DefaultStoreBackend,
		Description: "Where conversation state and the reply cache are kept.",
		Notes:       "The memory backend does not survive restarts; use it for local runs only.",
	},
	{
		Key:         KeyMongoURI,
		Example:     "mongodb://localhost:27017",
		Description: "MongoDB connection string.",
		Notes:       "Required when " + KeyStoreBackend + "=" + BackendMongo + ".",
	},
	{
		Key:         KeyMongoDB,
		Example:     DefaultMongoDBProd + " / " + DefaultMongoDBDev,
		Description: "MongoDB database name.",
		Notes:       "Required when " + KeyStoreBackend + "=" + BackendMongo + ". Recommended: production=" + DefaultMongoDBProd + ", development=" + DefaultMongoDBDev + ".",
	},
	{
		Key:         KeyStateCollection,
		Example:     DefaultStateCollection,
		Default:     DefaultStateCollection,
		Description: "Collection holding pending commands and redial records.",
	},
	{
		Key:         KeyMessageCacheCollection,
		Example:     DefaultMessageCacheCollection,
		Default:     DefaultMessageCacheCollection,
		Description: "Collection holding cached replies for refresh and dismiss.",
	},
	{
		Key:         KeyHistoryEnabled,
		Example:     "true / false",
		Default:     "false",
		Description: "Record inbound messages into the message_history collection.",
	},
	{
		Key:         KeyWebhookPath,
		Example:     DefaultWebhookPath,
		Default:     DefaultWebhookPath,
		Description: "HTTP path Telegram posts updates to.",
	},
	{
		Key:         KeyAppEnv,
		Example:     EnvDevelopment + " / " + EnvProduction,
		Default:     DefaultAppEnv,
		Description: "Runtime environment; controls log format and dotenv usage.",
		Notes:       "Load .env files only when APP_ENV=" + EnvDevelopment + ".",
	},
	{
		Key:         KeyLogLevel,
		Example:     DefaultLogLevel,
		Default:     DefaultLogLevel,
		Description: "Overrides default log level.",
	},
	{
		Key:         KeyHTTPPort,
		Example:     strconv.Itoa(DefaultHTTPPort),
		Default:     strconv.Itoa(DefaultHTTPPort),
		Description: "HTTP port for the webhook and health endpoints.",
	},
}

// Config mirrors resolved configuration values after loading.
type Config struct {
	TelegramToken          string
	DatamallAccountKey     string
	DatamallUserID         string
	DatamallURL            string
	StoreBackend           string
	MongoURI               string
	MongoDB                string
	StateCollection        string
	MessageCacheCollection string
	HistoryEnabled         bool
	WebhookPath            string
	AppEnv                 string
	LogLevel               string
	HTTPPort               int
}

// Load resolves configuration from the environment (with optional dotenv in development).
func Load() (Config, error) {
	appEnv, err := resolveAppEnv()
	if err != nil {
		return Config{}, err
	}

	if err := loadDotEnv(appEnv); err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppEnv:                 firstNonEmpty(normalizeEnv(os.Getenv(KeyAppEnv)), appEnv),
		TelegramToken:          strings.TrimSpace(os.Getenv(KeyTelegramToken)),
		DatamallAccountKey:     strings.TrimSpace(os.Getenv(KeyDatamallAccountKey)),
		DatamallUserID:         strings.TrimSpace(os.Getenv(KeyDatamallUserID)),
		DatamallURL:            firstNonEmpty(os.Getenv(KeyDatamallURL), DefaultDatamallURL),
		StoreBackend:           firstNonEmpty(normalizeEnv(os.Getenv(KeyStoreBackend)), DefaultStoreBackend),
		MongoURI:               strings.TrimSpace(os.Getenv(KeyMongoURI)),
		MongoDB:                strings.TrimSpace(os.Getenv(KeyMongoDB)),
		StateCollection:        firstNonEmpty(os.Getenv(KeyStateCollection), DefaultStateCollection),
		MessageCacheCollection: firstNonEmpty(os.Getenv(KeyMessageCacheCollection), DefaultMessageCacheCollection),
		WebhookPath:            firstNonEmpty(os.Getenv(KeyWebhookPath), DefaultWebhookPath),
		LogLevel:               firstNonEmpty(strings.TrimSpace(os.Getenv(KeyLogLevel)), DefaultLogLevel),
		HTTPPort:               DefaultHTTPPort,
	}

	if err := validateAppEnv(cfg.AppEnv); err != nil {
		return Config{}, err
	}

	if cfg.StoreBackend != BackendMongo && cfg.StoreBackend != BackendMemory {
		return Config{}, fmt.Errorf("invalid %s: must be %q or %q", KeyStoreBackend, BackendMongo, BackendMemory)
	}

	missing := make([]string, 0)

	if cfg.TelegramToken == "" {
		missing = append(missing, KeyTelegramToken)
	}

	if cfg.DatamallAccountKey == "" {
		missing = append(missing, KeyDatamallAccountKey)
	}

	if cfg.StoreBackend == BackendMongo {
		if cfg.MongoURI == "" {
			missing = append(missing, KeyMongoURI)
		}
		if cfg.MongoDB == "" {
			missing = append(missing, KeyMongoDB)
		}
	}

	if len(missing) > 0 {
		return Config{}, fmt.Errorf("missing required environment variable(s): %s", strings.Join(missing, ", "))
	}

	if cfg.MongoURI != "" {
		if err := validateMongoURI(cfg.MongoURI); err != nil {
			return Config{}, err
		}
	}

	if _, err := url.ParseRequestURI(cfg.DatamallURL); err != nil {
		return Config{}, fmt.Errorf("invalid %s: %w", KeyDatamallURL, err)
	}

	if !strings.HasPrefix(cfg.WebhookPath, "/") {
		return Config{}, fmt.Errorf("%s must start with /", KeyWebhookPath)
	}

	historyRaw := strings.TrimSpace(os.Getenv(KeyHistoryEnabled))
	if historyRaw != "" {
		enabled, parseErr := strconv.ParseBool(historyRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyHistoryEnabled, parseErr)
		}
		cfg.HistoryEnabled = enabled
	}

	httpPortRaw := strings.TrimSpace(os.Getenv(KeyHTTPPort))
	if httpPortRaw != "" {
		port, parseErr := strconv.Atoi(httpPortRaw)
		if parseErr != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", KeyHTTPPort, parseErr)
		}
		if port <= 0 {
			return Config{}, fmt.Errorf("%s must be greater than 0", KeyHTTPPort)
		}
		cfg.HTTPPort = port
	}

	return cfg, nil
}

// IsDevelopment reports if APP_ENV is development.
func (c Config) IsDevelopment() bool {
	return c.AppEnv == EnvDevelopment
}

// UsesMongo reports whether state and cache are persisted in MongoDB.
func (c Config) UsesMongo() bool {
	return c.StoreBackend == BackendMongo
}

// FormatRedacted renders the configuration for diagnostics with secrets masked.
func FormatRedacted(cfg Config) string {
	lines := []string{
		"telegram_token: " + maskSecret(cfg.TelegramToken),
		"datamall_account_key: " + maskSecret(cfg.DatamallAccountKey),
		"datamall_user_id: " + cfg.DatamallUserID,
		"datamall_url: " + cfg.DatamallURL,
		"store_backend: " + cfg.StoreBackend,
		"mongo_uri: " + redactMongoURI(cfg.MongoURI),
		"mongo_db: " + cfg.MongoDB,
		"state_collection: " + cfg.StateCollection,
		"message_cache_collection: " + cfg.MessageCacheCollection,
		"history_enabled: " + strconv.FormatBool(cfg.HistoryEnabled),
		"webhook_path: " + cfg.WebhookPath,
		"app_env: " + cfg.AppEnv,
		"log_level: " + cfg.LogLevel,
		"http_port: " + strconv.Itoa(cfg.HTTPPort),
	}

	return strings.Join(lines, "\n")
}

func maskSecret(value string) string {
	if value == "" {
		return ""
	}
	if len(value) <= 4 {
		return "...redacted"
	}
	return value[:4] + "...redacted"
}

func redactMongoURI(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "...redacted"
	}
	parsed.User = nil

	return parsed.String()
}

func validateMongoURI(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", KeyMongoURI, err)
	}
	if parsed.Scheme != "mongodb" && parsed.Scheme != "mongodb+srv" {
		return fmt.Errorf("invalid %s: scheme must be mongodb or mongodb+srv", KeyMongoURI)
	}
	if parsed.Host == "" {
		return fmt.Errorf("invalid %s: host is required", KeyMongoURI)
	}

	return nil
}

func resolveAppEnv() (string, error) {
	if explicit := normalizeEnv(os.Getenv(KeyAppEnv)); explicit != "" {
		return explicit, nil
	}

	dotEnvValues, err := godotenv.Read()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultAppEnv, nil
		}
		return "", fmt.Errorf("read .env: %w", err)
	}

	if envFromFile := normalizeEnv(dotEnvValues[KeyAppEnv]); envFromFile != "" {
		return envFromFile, nil
	}

	return DefaultAppEnv, nil
}

func loadDotEnv(appEnv string) error {
	if appEnv != EnvDevelopment {
		return nil
	}

	if err := godotenv.Load(); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load .env: %w", err)
	}

	return nil
}

func validateAppEnv(appEnv string) error {
	if appEnv == EnvDevelopment || appEnv == EnvProduction {
		return nil
	}

	return fmt.Errorf("invalid %s: must be %q or %q", KeyAppEnv, EnvDevelopment, EnvProduction)
}

func normalizeEnv(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func firstNonEmpty(values ...string) string {
	for _, val := range values {
		if strings.TrimSpace(val) != "" {
			return strings.TrimSpace(val)
		}
	}
	return ""
}
