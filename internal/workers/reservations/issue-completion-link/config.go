package issuecompletionlink

import "time"

type Config struct {
	Timeout time.Duration
	// DefaultSendVia applies when the process does not set sendVia.
	DefaultSendVia string
}

func LoadConfig() *Config {
	return &Config{
		Timeout:        30 * time.Second,
		DefaultSendVia: "sms",
	}
}
