package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configs/config.yaml (optional), a .env file (optional) and the
// environment, in increasing order of precedence.
func Load() (*Config, error) {
	// A missing .env is the normal case in containers.
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")
	v.AddConfigPath("/app/configs")

	setDefaults(v)

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Allow common env vars without APP_ prefix for Docker/VM deploys
	v.BindEnv("http.port", "PORT", "HTTP_PORT", "APP_HTTP_PORT")
	v.BindEnv("redis.url", "REDIS_URL", "APP_REDIS_URL")
	v.BindEnv("database.url", "DATABASE_URL", "APP_DATABASE_URL")
	v.BindEnv("gemini.api_key", "GEMINI_API_KEY", "APP_GEMINI_API_KEY")
	v.BindEnv("gemini.model", "GEMINI_MODEL", "APP_GEMINI_MODEL")
	v.BindEnv("vault.address", "VAULT_ADDR", "APP_VAULT_ADDRESS")
	v.BindEnv("vault.token", "VAULT_TOKEN", "APP_VAULT_TOKEN")
	v.BindEnv("skill.application_ids", "ALEXA_SKILL_ID", "APP_SKILL_APPLICATION_IDS")
	v.BindEnv("admin.api_key", "ADMIN_API_KEY", "APP_ADMIN_API_KEY")
	v.BindEnv("reports.sendgrid_api_key", "SENDGRID_API_KEY", "APP_REPORTS_SENDGRID_API_KEY")
	v.BindEnv("app.environment", "APP_ENVIRONMENT")
	v.BindEnv("logging.level", "LOG_LEVEL")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Env lists arrive as one comma separated string.
	cfg.Skill.ApplicationIDs = splitList(cfg.Skill.ApplicationIDs)
	cfg.Skill.InvocationPhrases = splitList(cfg.Skill.InvocationPhrases)
	cfg.CORS.AllowedOrigins = splitList(cfg.CORS.AllowedOrigins)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "asistente-gemini")
	v.SetDefault("app.version", "v1.0.0")
	v.SetDefault("app.environment", "development")

	v.SetDefault("http.port", 3000)
	v.SetDefault("http.body_limit", 256*1024)
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 10*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)

	v.SetDefault("grpc.enabled", false)
	v.SetDefault("grpc.port", 9090)
	v.SetDefault("grpc.sync_interval", 10*time.Second)

	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.base_url", "https://generativelanguage.googleapis.com")
	v.SetDefault("gemini.timeout", 6*time.Second)
	v.SetDefault("gemini.system_instruction",
		"Responde en español, de forma breve y clara, en texto plano apto para ser leído en voz alta.")
	v.SetDefault("gemini.max_output_tokens", 512)

	v.SetDefault("vault.secret_path", "secret/data/gemini")

	v.SetDefault("skill.verify_signature", false)
	v.SetDefault("skill.timestamp_tolerance", 150*time.Second)

	v.SetDefault("session.store", "memory")
	v.SetDefault("session.ttl", 30*time.Minute)
	v.SetDefault("session.cleanup_interval", time.Minute)

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("queue.subject", "assistant.interactions")

	v.SetDefault("opentelemetry.service_name", "asistente-gemini")
	v.SetDefault("opentelemetry.jaeger.endpoint", "http://jaeger:14268/api/traces")
	v.SetDefault("opentelemetry.jaeger.sampler_param", 1.0)

	v.SetDefault("prometheus.enabled", true)
	v.SetDefault("prometheus.path", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("rate_limiting.enabled", true)
	v.SetDefault("rate_limiting.max_requests", 120)
	v.SetDefault("rate_limiting.window", time.Minute)

	v.SetDefault("circuit_breaker.enabled", true)
	v.SetDefault("circuit_breaker.max_requests", 3)
	v.SetDefault("circuit_breaker.interval", time.Minute)
	v.SetDefault("circuit_breaker.timeout", 30*time.Second)
	v.SetDefault("circuit_breaker.failure_threshold", 0.6)
	v.SetDefault("circuit_breaker.min_requests", 5)

	v.SetDefault("cors.enabled", false)

	v.SetDefault("reports.email_enabled", false)
	v.SetDefault("reports.from_email", "noreply@asistente-gemini.local")
	v.SetDefault("reports.from_name", "Asistente Gemini")
	v.SetDefault("reports.interval", 24*time.Hour)
}

// Validate checks settings that have no usable default.
func (c *Config) Validate() error {
	if c.Gemini.APIKey == "" && !c.Vault.Enabled {
		return errors.New("config: gemini.api_key (GEMINI_API_KEY) is required unless vault is enabled")
	}
	if c.Vault.Enabled && c.Vault.Address == "" {
		return errors.New("config: vault.address is required when vault is enabled")
	}
	switch c.Session.Store {
	case "memory", "redis":
	default:
		return fmt.Errorf("config: unknown session.store %q", c.Session.Store)
	}
	if c.Session.Store == "redis" && c.Redis.URL == "" {
		return errors.New("config: redis.url is required for the redis session store")
	}
	if c.Database.Enabled && c.Database.URL == "" {
		return errors.New("config: database.url (DATABASE_URL) is required when the database is enabled")
	}
	if c.Reports.EmailEnabled {
		if !c.Database.Enabled {
			return errors.New("config: reports.email_enabled requires the database")
		}
		if c.Reports.SendGridAPIKey == "" || len(c.Reports.Recipients) == 0 {
			return errors.New("config: reports need sendgrid_api_key (SENDGRID_API_KEY) and recipients")
		}
	}
	if c.GRPC.Enabled && c.GRPC.Port == c.HTTP.Port {
		return fmt.Errorf("config: grpc.port %d collides with http.port", c.GRPC.Port)
	}
	switch c.Queue.Driver {
	case "", "nats", "rabbitmq":
	default:
		return fmt.Errorf("config: unknown queue.driver %q", c.Queue.Driver)
	}
	if c.Queue.Driver != "" && c.Queue.URL == "" {
		return fmt.Errorf("config: queue.url is required for driver %q", c.Queue.Driver)
	}
	if c.Gemini.Timeout <= 0 {
		return errors.New("config: gemini.timeout must be positive")
	}
	return nil
}

func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
