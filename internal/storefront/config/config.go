package config

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	defaultEnvFile        = ".env"
	defaultAddress        = ":8080"
	defaultBackendURL     = "https://uemfoodbackend-production.up.railway.app"
	defaultEnvironment    = "development"
	defaultTokenCookie    = "authToken"
	defaultTokenTTL       = 7 * 24 * time.Hour
	defaultFlashCookie    = "storefront_flash"
	defaultCSRFCookie     = "storefront_csrf"
	defaultCSRFHeader     = "X-CSRF-Token"
	defaultMaxUploadBytes = 5 << 20
	defaultLogLevel       = "info"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Backend BackendConfig `yaml:"backend"`
	Session SessionConfig `yaml:"session"`
	Admin   AdminConfig   `yaml:"admin"`
	Upload  UploadConfig  `yaml:"upload"`
	Log     LogConfig     `yaml:"log"`
}

// ServerConfig configures the HTTP listener.
type ServerConfig struct {
	Address     string `yaml:"address"`
	Environment string `yaml:"environment"`
}

// BackendConfig points at the remote food backend.
type BackendConfig struct {
	BaseURL string `yaml:"baseURL"`
}

// SessionConfig controls the credential cookie and its codecs.
type SessionConfig struct {
	TokenCookie  string        `yaml:"tokenCookie"`
	TokenTTL     time.Duration `yaml:"tokenTTL"`
	FlashCookie  string        `yaml:"flashCookie"`
	CSRFCookie   string        `yaml:"csrfCookie"`
	CSRFHeader   string        `yaml:"csrfHeader"`
	HashKey      []byte        `yaml:"-"`
	BlockKey     []byte        `yaml:"-"`
	CookieSecure bool          `yaml:"cookieSecure"`
}

// AdminConfig lists the UI hints used to unlock the catalog management pages.
type AdminConfig struct {
	Phones         []string `yaml:"phones"`
	PassphraseHash string   `yaml:"passphraseHash"`
}

// UploadConfig bounds multipart form uploads relayed to the backend.
type UploadConfig struct {
	MaxBytes int64 `yaml:"maxBytes"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level string `yaml:"level"`
}

// IsProduction reports whether the storefront runs with production hardening.
func (c Config) IsProduction() bool {
	switch strings.ToLower(strings.TrimSpace(c.Server.Environment)) {
	case "prod", "production":
		return true
	default:
		return false
	}
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	configFile   string
	envMap       map[string]string
	useSystemEnv bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithConfigFile loads a YAML file underneath the environment.
func WithConfigFile(path string) Option {
	return func(o *loaderOptions) {
		o.configFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from os.Getenv, relying only on provided maps and files.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// Load assembles the storefront configuration by layering defaults, an optional YAML file,
// .env overrides, environment variables, and explicit test maps.
func Load(_ context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	cfg := defaults()

	configFile := options.configFile
	dotEnv, err := readDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}

	lookup := func(key string) (string, bool) {
		if options.envMap != nil {
			if value, ok := options.envMap[key]; ok {
				return value, true
			}
		}
		if options.useSystemEnv {
			if value, ok := os.LookupEnv(key); ok {
				return value, true
			}
		}
		if value, ok := dotEnv[key]; ok {
			return value, true
		}
		return "", false
	}

	if configFile == "" {
		if v, ok := lookup("STOREFRONT_CONFIG_FILE"); ok {
			configFile = strings.TrimSpace(v)
		}
	}
	if configFile != "" {
		if err := readYAML(configFile, &cfg); err != nil {
			return Config{}, err
		}
	}

	var invalid []string
	str := func(key string, target *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*target = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, target *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			invalid = append(invalid, key)
			return
		}
		*target = parsed
	}
	duration := func(key string, target *time.Duration) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil || parsed <= 0 {
			invalid = append(invalid, key)
			return
		}
		*target = parsed
	}
	key := func(name string, target *[]byte) {
		v, ok := lookup(name)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		decoded, err := decodeKey(strings.TrimSpace(v))
		if err != nil {
			invalid = append(invalid, name)
			return
		}
		*target = decoded
	}

	str("STOREFRONT_ADDR", &cfg.Server.Address)
	if v, ok := lookup("PORT"); ok && strings.TrimSpace(v) != "" {
		if _, set := lookup("STOREFRONT_ADDR"); !set {
			cfg.Server.Address = ":" + strings.TrimSpace(v)
		}
	}
	str("STOREFRONT_ENV", &cfg.Server.Environment)
	str("STOREFRONT_BACKEND_URL", &cfg.Backend.BaseURL)
	str("STOREFRONT_TOKEN_COOKIE", &cfg.Session.TokenCookie)
	duration("STOREFRONT_SESSION_TTL", &cfg.Session.TokenTTL)
	boolean("STOREFRONT_COOKIE_SECURE", &cfg.Session.CookieSecure)
	key("STOREFRONT_SESSION_HASH_KEY", &cfg.Session.HashKey)
	key("STOREFRONT_SESSION_BLOCK_KEY", &cfg.Session.BlockKey)
	if v, ok := lookup("STOREFRONT_ADMIN_PHONES"); ok {
		cfg.Admin.Phones = splitList(v)
	}
	str("STOREFRONT_ADMIN_PASSPHRASE_HASH", &cfg.Admin.PassphraseHash)
	if v, ok := lookup("STOREFRONT_MAX_UPLOAD_BYTES"); ok && strings.TrimSpace(v) != "" {
		parsed, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil || parsed <= 0 {
			invalid = append(invalid, "STOREFRONT_MAX_UPLOAD_BYTES")
		} else {
			cfg.Upload.MaxBytes = parsed
		}
	}
	str("LOG_LEVEL", &cfg.Log.Level)

	if cfg.IsProduction() {
		cfg.Session.CookieSecure = true
	}

	invalid = append(invalid, validate(cfg)...)
	if len(invalid) > 0 {
		return Config{}, &ValidationError{fields: invalid}
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Address:     defaultAddress,
			Environment: defaultEnvironment,
		},
		Backend: BackendConfig{BaseURL: defaultBackendURL},
		Session: SessionConfig{
			TokenCookie: defaultTokenCookie,
			TokenTTL:    defaultTokenTTL,
			FlashCookie: defaultFlashCookie,
			CSRFCookie:  defaultCSRFCookie,
			CSRFHeader:  defaultCSRFHeader,
		},
		Upload: UploadConfig{MaxBytes: defaultMaxUploadBytes},
		Log:    LogConfig{Level: defaultLogLevel},
	}
}

func validate(cfg Config) []string {
	var fields []string
	if u, err := url.Parse(cfg.Backend.BaseURL); err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		fields = append(fields, "STOREFRONT_BACKEND_URL")
	}
	if strings.TrimSpace(cfg.Session.TokenCookie) == "" {
		fields = append(fields, "STOREFRONT_TOKEN_COOKIE")
	}
	if cfg.IsProduction() && len(cfg.Session.HashKey) < 32 {
		fields = append(fields, "STOREFRONT_SESSION_HASH_KEY")
	}
	switch len(cfg.Session.BlockKey) {
	case 0, 16, 24, 32:
	default:
		fields = append(fields, "STOREFRONT_SESSION_BLOCK_KEY")
	}
	return fields
}

func readDotEnv(path string) (map[string]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return values, nil
}

func readYAML(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("config: parse %s: %w", path, err)
	}
	return nil
}

// decodeKey accepts "base64:"-prefixed keys and otherwise uses the raw bytes.
func decodeKey(value string) ([]byte, error) {
	key := []byte(value)
	if encoded, ok := strings.CutPrefix(value, "base64:"); ok {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			return nil, err
		}
		key = decoded
	}
	if len(key) < 16 {
		return nil, errors.New("key too short")
	}
	return key, nil
}

func splitList(raw string) []string {
	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == ' '
	})
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
