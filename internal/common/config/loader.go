package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // environment overlay is optional

	return finish(v)
}

func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	overrideFromEnv(&cfg)
	applyDefaults(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func loadEnvFile() {
	possiblePaths := []string{".env", "../.env", "../../.env", "../../../.env"}
	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			// Unset variables expand to empty so optional services stay off.
			if expanded := os.ExpandEnv(strVal); expanded != strVal {
				v.Set(key, expanded)
			}
		}
	}
}

// overrideFromEnv fills secrets that deployments pass as flat env vars.
func overrideFromEnv(cfg *Config) {
	set := func(dst *string, name string) {
		if *dst == "" {
			if val := os.Getenv(name); val != "" {
				*dst = val
			}
		}
	}

	set(&cfg.HTTP.CronSecret, "CRON_SECRET")
	set(&cfg.Notifications.SMS.SMSAPI.Token, "SMSAPI_TOKEN")
	set(&cfg.Notifications.AdminEmails, "ADMIN_EMAIL")
	set(&cfg.Notifications.AdminPhone, "ADMIN_PHONE")
	set(&cfg.Notifications.PublicURL, "PUBLIC_URL")
	set(&cfg.Database.Postgres.User, "DB_USER")
	set(&cfg.Database.Postgres.Password, "DB_PASSWORD")
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "adr-workers"
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}

	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	n := &cfg.Notifications
	if n.CompletionPath == "" {
		n.CompletionPath = "uzupelnij-dane"
	}
	if n.SMS.Provider == "" {
		n.SMS.Provider = "smsapi"
	}
	if n.SMS.SMSAPI.URL == "" {
		n.SMS.SMSAPI.URL = "https://api.smsapi.pl"
	}
	if n.SMS.SMSAPI.Timeout == 0 {
		n.SMS.SMSAPI.Timeout = 10000
	}
	if n.Email.Provider == "" {
		n.Email.Provider = "smtp"
	}
	if n.Email.SMTP.Port == 0 {
		n.Email.SMTP.Port = 587
	}
	if n.Email.SMTP.Timeout == 0 {
		n.Email.SMTP.Timeout = 15000
	}
	if n.AWS.Region == "" {
		n.AWS.Region = "eu-central-1"
	}

	if cfg.Templates.CacheTTL == 0 {
		cfg.Templates.CacheTTL = 5 * time.Minute
	}

	if cfg.Reminders.Timezone == "" {
		cfg.Reminders.Timezone = "Europe/Warsaw"
	}
	if cfg.Reminders.CourseLeadDays == 0 {
		cfg.Reminders.CourseLeadDays = 1
	}
	if cfg.Reminders.CourseMarkerTTL == 0 {
		cfg.Reminders.CourseMarkerTTL = 72 * time.Hour
	}

	if cfg.Scheduler.CertificateCron == "" {
		cfg.Scheduler.CertificateCron = "0 10 * * *"
	}
	if cfg.Scheduler.CourseCron == "" {
		cfg.Scheduler.CourseCron = "0 20 * * *"
	}

	if cfg.Tokens.TTL == 0 {
		cfg.Tokens.TTL = 7 * 24 * time.Hour
	}

	if cfg.Events.Kafka.Topic == "" {
		cfg.Events.Kafka.Topic = "adr.live-events"
	}
	if cfg.Ledger.Search.Index == "" {
		cfg.Ledger.Search.Index = "delivery-log"
	}

	if cfg.Workers == nil {
		cfg.Workers = map[string]WorkerConfig{}
	}
	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 30000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Camunda.Enabled && cfg.Camunda.BrokerAddress == "" {
		return fmt.Errorf("camunda.broker_address is required when camunda is enabled")
	}

	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if cfg.HTTP.CronSecret == "" {
		return fmt.Errorf("http.cron_secret is required")
	}
	if cfg.Notifications.PublicURL == "" {
		return fmt.Errorf("notifications.public_url is required")
	}

	switch cfg.Notifications.SMS.Provider {
	case "sns":
	case "smsapi":
		if cfg.Notifications.SMS.Enabled && cfg.Notifications.SMS.SMSAPI.Token == "" {
			return fmt.Errorf("notifications.sms.smsapi.token is required for the smsapi provider")
		}
	default:
		return fmt.Errorf("notifications.sms.provider must be sns or smsapi, got %q", cfg.Notifications.SMS.Provider)
	}

	switch cfg.Notifications.Email.Provider {
	case "ses":
	case "smtp":
		if cfg.Notifications.Email.Enabled && cfg.Notifications.Email.SMTP.Host == "" {
			return fmt.Errorf("notifications.email.smtp.host is required for the smtp provider")
		}
	default:
		return fmt.Errorf("notifications.email.provider must be ses or smtp, got %q", cfg.Notifications.Email.Provider)
	}

	if cfg.Ledger.Search.Enabled && len(cfg.Database.Elasticsearch.Addresses) == 0 {
		return fmt.Errorf("database.elasticsearch.addresses is required when ledger.search is enabled")
	}
	if cfg.Events.Kafka.Enabled && len(cfg.Events.Kafka.Brokers) == 0 {
		return fmt.Errorf("events.kafka.brokers is required when kafka events are enabled")
	}
	return nil
}

func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}
	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       30000,
		MaxRetries:    3,
	}
}

func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
