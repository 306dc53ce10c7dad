package evaluatereminders

import "time"

type Config struct {
	Timeout time.Duration
	// MaxDetails caps the per-recipient details copied into process variables.
	MaxDetails int
}

func LoadConfig() *Config {
	return &Config{
		Timeout:    5 * time.Minute,
		MaxDetails: 50,
	}
}
