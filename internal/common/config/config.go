package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

type Config struct {
	App           AppConfig               `mapstructure:"app"`
	Camunda       CamundaConfig           `mapstructure:"camunda"`
	Database      DatabaseConfig          `mapstructure:"database"`
	Workers       map[string]WorkerConfig `mapstructure:"workers"`
	HTTP          HTTPConfig              `mapstructure:"http"`
	Logging       LoggingConfig           `mapstructure:"logging"`
	Notifications NotificationConfig      `mapstructure:"notifications"`
	Templates     TemplateConfig          `mapstructure:"templates"`
	Reminders     RemindersConfig         `mapstructure:"reminders"`
	Scheduler     SchedulerConfig         `mapstructure:"scheduler"`
	Tokens        TokenConfig             `mapstructure:"tokens"`
	Events        EventsConfig            `mapstructure:"events"`
	Ledger        LedgerConfig            `mapstructure:"ledger"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type CamundaConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
	AutoMigrate    bool   `mapstructure:"auto_migrate"`
}

func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// GetURL returns the postgres:// form expected by the migration driver.
func (p PostgresConfig) GetURL() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(p.User, p.Password),
		Host:     fmt.Sprintf("%s:%d", p.Host, p.Port),
		Path:     "/" + p.Database,
		RawQuery: "sslmode=" + p.SSLMode,
	}
	return u.String()
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Configured reports whether a Redis server was given at all.
func (c RedisConfig) Configured() bool {
	return c.URL != "" || c.Address != ""
}

type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

type HTTPConfig struct {
	Addr       string `mapstructure:"addr"`
	CronSecret string `mapstructure:"cron_secret"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type NotificationConfig struct {
	AdminEmails    string      `mapstructure:"admin_emails"` // comma separated
	AdminPhone     string      `mapstructure:"admin_phone"`
	PublicURL      string      `mapstructure:"public_url"`
	CompletionPath string      `mapstructure:"completion_path"`
	SMS            SMSConfig   `mapstructure:"sms"`
	Email          EmailConfig `mapstructure:"email"`
	AWS            AWSConfig   `mapstructure:"aws"`
}

// AdminEmailList splits AdminEmails, dropping blanks.
func (n NotificationConfig) AdminEmailList() []string {
	var out []string
	for _, e := range strings.Split(n.AdminEmails, ",") {
		if e = strings.TrimSpace(e); e != "" {
			out = append(out, e)
		}
	}
	return out
}

type SMSConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Provider string `mapstructure:"provider"` // sns | smsapi
	SMSAPI   struct {
		URL     string `mapstructure:"url"`
		Token   string `mapstructure:"token"`
		Sender  string `mapstructure:"sender"`
		Timeout int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"smsapi"`
	SNS struct {
		SenderID string `mapstructure:"sender_id"`
	} `mapstructure:"sns"`
}

type EmailConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Provider    string `mapstructure:"provider"` // ses | smtp
	FromAddress string `mapstructure:"from_address"`
	FromName    string `mapstructure:"from_name"`
	SMTP        struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		Username string `mapstructure:"username"`
		Password string `mapstructure:"password"`
		UseTLS   bool   `mapstructure:"use_tls"`
		Timeout  int    `mapstructure:"timeout"` // milliseconds
	} `mapstructure:"smtp"`
}

type AWSConfig struct {
	Region string `mapstructure:"region"`
}

type TemplateConfig struct {
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type RemindersConfig struct {
	Timezone        string        `mapstructure:"timezone"`
	CourseLeadDays  int           `mapstructure:"course_lead_days"`
	CourseMarkerTTL time.Duration `mapstructure:"course_marker_ttl"`
}

// Location resolves Timezone, falling back to UTC for unknown names.
func (r RemindersConfig) Location() *time.Location {
	loc, err := time.LoadLocation(r.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type SchedulerConfig struct {
	Enabled         bool   `mapstructure:"enabled"`
	CertificateCron string `mapstructure:"certificate_cron"`
	CourseCron      string `mapstructure:"course_cron"`
}

type TokenConfig struct {
	TTL time.Duration `mapstructure:"ttl"`
}

type EventsConfig struct {
	Kafka KafkaConfig `mapstructure:"kafka"`
}

type KafkaConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

type LedgerConfig struct {
	Search struct {
		Enabled bool   `mapstructure:"enabled"`
		Index   string `mapstructure:"index"`
	} `mapstructure:"search"`
}
