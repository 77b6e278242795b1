package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"
)

// LookupFunc resolves an environment variable, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load reads configuration from environment variables.
// It applies defaults for unset values and validates the result.
// Returns an error if required values are missing or validation fails.
func Load() (*Config, error) {
	return LoadFrom(os.LookupEnv)
}

// LoadFrom is Load with a custom variable source.
func LoadFrom(lookup LookupFunc) (*Config, error) {
	cfg := &Config{}

	if err := loadStruct(reflect.ValueOf(cfg).Elem(), lookup); err != nil {
		return nil, fmt.Errorf("config load: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// loadStruct recursively populates struct fields from environment variables.
func loadStruct(v reflect.Value, lookup LookupFunc) error {
	t := v.Type()

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		fieldVal := v.Field(i)

		if !fieldVal.CanSet() {
			continue
		}

		if field.Type.Kind() == reflect.Struct && field.Type != reflect.TypeOf(time.Time{}) {
			if err := loadStruct(fieldVal, lookup); err != nil {
				return err
			}
			continue
		}

		envName := field.Tag.Get("env")
		if envName == "" {
			continue
		}

		value := lookupValue(lookup, envName, field.Tag.Get("envAlt"))
		if value == "" {
			if field.Tag.Get("required") == "true" {
				return fmt.Errorf("required environment variable %s is not set", envName)
			}
			value = field.Tag.Get("default")
		}
		if value == "" {
			continue
		}

		if err := setField(fieldVal, value); err != nil {
			return fmt.Errorf("invalid value for %s=%q: %w", envName, value, err)
		}
	}

	return nil
}

// lookupValue tries the primary name, then the alternate.
func lookupValue(lookup LookupFunc, name, alt string) string {
	if v, ok := lookup(name); ok && v != "" {
		return v
	}
	if alt != "" {
		if v, ok := lookup(alt); ok {
			return v
		}
	}
	return ""
}

// setField sets a reflect.Value from a string based on its type.
func setField(field reflect.Value, value string) error {
	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int64:
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
			d, err := time.ParseDuration(value)
			if err != nil {
				return fmt.Errorf("invalid duration: %w", err)
			}
			field.Set(reflect.ValueOf(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer: %w", err)
			}
			field.SetInt(i)
		}

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("invalid boolean: %w", err)
		}
		field.SetBool(b)

	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice type: %s", field.Type().Elem().Kind())
		}
		parts := strings.Split(value, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				result = append(result, p)
			}
		}
		field.Set(reflect.ValueOf(result))

	default:
		return fmt.Errorf("unsupported field type: %s", field.Kind())
	}

	return nil
}

// problems collects validation failures so all of them are reported at once.
type problems []string

func (p *problems) check(ok bool, format string, args ...any) {
	if !ok {
		*p = append(*p, fmt.Sprintf(format, args...))
	}
}

// Validate reports every invalid setting in a single error.
func (c *Config) Validate() error {
	var p problems
	c.Server.validate(&p)
	c.Database.validate(&p)
	c.Session.validate(&p)
	c.Storage.validate(&p)
	c.Sweep.validate(&p)
	c.Rate.validate(&p)
	c.Security.validate(&p)
	c.Logging.validate(&p)

	if len(p) > 0 {
		return fmt.Errorf("validation failed:\n  - %s", strings.Join(p, "\n  - "))
	}
	return nil
}

func (s *ServerConfig) validate(p *problems) {
	p.check(s.Port > 0 && s.Port <= 65535, "SERVER_PORT (%d) must be 1-65535", s.Port)
	p.check(s.ReadTimeout >= 0, "SERVER_READ_TIMEOUT must be non-negative")
	p.check(s.ShutdownTimeout > 0, "SERVER_SHUTDOWN_TIMEOUT must be positive")
}

// Pool sizes only matter when PostgreSQL is selected.
func (d *DatabaseConfig) validate(p *problems) {
	if !d.UsePostgres() {
		return
	}
	p.check(d.MaxConns > 0, "DB_MAX_CONNS must be positive")
	p.check(d.MaxConns >= d.MinConns, "DB_MAX_CONNS (%d) must be >= DB_MIN_CONNS (%d)", d.MaxConns, d.MinConns)
}

func (s *SessionConfig) validate(p *problems) {
	p.check(s.HistoryCapacity > 0, "SESSION_HISTORY_CAPACITY must be positive")
	p.check(s.BulkDeleteThreshold >= 0, "SESSION_BULK_DELETE_THRESHOLD must be non-negative")
	p.check(s.CookieName != "", "SESSION_COOKIE_NAME must not be empty")
	p.check(s.MaxLoads > 0, "SESSION_MAX_LOADS must be positive")
	p.check(s.LoadWait > 0, "SESSION_LOAD_WAIT must be positive")
	p.check(s.MaxUploadSize > 0, "SESSION_MAX_UPLOAD_SIZE must be positive")
}

func (s *StorageConfig) validate(p *problems) {
	switch strings.ToLower(s.BlobBackend) {
	case "fs":
		p.check(s.BlobDir != "", "STORAGE_BLOB_DIR is required for the fs backend")
	case "s3":
		p.check(s.S3Bucket != "", "STORAGE_S3_BUCKET is required for the s3 backend")
	default:
		p.check(false, "STORAGE_BLOB_BACKEND (%q) must be one of: fs, s3", s.BlobBackend)
	}
	p.check(s.SQLitePath != "", "STORAGE_SQLITE_PATH must not be empty")
}

func (s *SweepConfig) validate(p *problems) {
	p.check(s.Retention > 0, "SWEEP_RETENTION must be positive")
	p.check(s.Interval > 0, "SWEEP_INTERVAL must be positive")
}

func (r *RateLimitConfig) validate(p *problems) {
	if !r.Enabled {
		return
	}
	p.check(r.RequestsPerMinute > 0, "RATE_LIMIT_REQUESTS_PER_MINUTE must be positive when rate limiting is enabled")
	p.check(r.LoadLimit > 0, "RATE_LIMIT_LOAD must be positive when rate limiting is enabled")
}

func (s *SecurityConfig) validate(p *problems) {
	p.check(!s.RequireAPIKey || len(s.APIKeys) > 0,
		"REQUIRE_API_KEY is true but API_KEYS is empty; configure at least one API key or disable auth")
}

func (l *LoggingConfig) validate(p *problems) {
	switch strings.ToLower(l.Level) {
	case "debug", "info", "warn", "error":
	default:
		p.check(false, "LOG_LEVEL (%q) must be one of: debug, info, warn, error", l.Level)
	}
	switch strings.ToLower(l.Format) {
	case "text", "json":
	default:
		p.check(false, "LOG_FORMAT (%q) must be one of: text, json", l.Format)
	}
}

// String returns a safe string representation of the config for logging.
// Database URLs and API keys are masked.
func (c *Config) String() string {
	dbURL := "[UNSET]"
	if c.Database.UsePostgres() {
		dbURL = "[MASKED]"
	}

	var b strings.Builder
	b.WriteString("Config{")
	fmt.Fprintf(&b, "Server: {Host: %q, Port: %d}, ", c.Server.Host, c.Server.Port)
	fmt.Fprintf(&b, "Database: {URL: %s, MaxConns: %d}, ", dbURL, c.Database.MaxConns)
	fmt.Fprintf(&b, "Session: {HistoryCapacity: %d, BulkDeleteThreshold: %d, MaxLoads: %d}, ",
		c.Session.HistoryCapacity, c.Session.BulkDeleteThreshold, c.Session.MaxLoads)
	fmt.Fprintf(&b, "Storage: {BlobBackend: %q, SQLitePath: %q}, ", c.Storage.BlobBackend, c.Storage.SQLitePath)
	fmt.Fprintf(&b, "Sweep: {Retention: %s, Interval: %s}, ", c.Sweep.Retention, c.Sweep.Interval)
	fmt.Fprintf(&b, "Security: {RequireAPIKey: %v, APIKeys: %d configured}, ",
		c.Security.RequireAPIKey, len(c.Security.APIKeys))
	fmt.Fprintf(&b, "Logging: {Level: %q, Format: %q}", c.Logging.Level, c.Logging.Format)
	b.WriteString("}")
	return b.String()
}
