package main

import (
	"context"
	"fmt"
	"time"

	"adr-workers/internal/common/aws"
	"adr-workers/internal/common/channels"
	"adr-workers/internal/common/config"
	"adr-workers/internal/common/database"
	commonhttp "adr-workers/internal/common/http"

	awssdk "github.com/aws/aws-sdk-go-v2/aws"
	"go.uber.org/zap"
)

// retryWithBackoff attempts to execute a function with exponential backoff
func retryWithBackoff(operation func() error, maxRetries int, initialDelay time.Duration, log *zap.Logger, operationName string) error {
	var err error
	delay := initialDelay

	for i := 0; i < maxRetries; i++ {
		err = operation()
		if err == nil {
			return nil
		}

		if i < maxRetries-1 {
			log.Warn(fmt.Sprintf("%s failed, retrying...", operationName),
				zap.Error(err),
				zap.Int("attempt", i+1),
				zap.Int("maxRetries", maxRetries),
				zap.Duration("nextRetryIn", delay),
			)
			time.Sleep(delay)
			delay *= 2
		}
	}

	return fmt.Errorf("%s failed after %d attempts: %w", operationName, maxRetries, err)
}

func connectPostgres(ctx context.Context, cfg config.PostgresConfig, log *zap.Logger) (*database.PostgresClient, error) {
	var pg *database.PostgresClient
	err := retryWithBackoff(func() error {
		var err error
		pg, err = database.NewPostgres(cfg)
		if err != nil {
			return err
		}
		if err := pg.Ping(ctx); err != nil {
			_ = pg.Close()
			return err
		}
		return nil
	}, 10, 2*time.Second, log, "PostgreSQL connection")
	return pg, err
}

// connectRedis returns nil when Redis is not configured.
func connectRedis(ctx context.Context, cfg config.RedisConfig, log *zap.Logger) (*database.RedisClient, error) {
	if !cfg.Configured() {
		log.Info("redis not configured, template cache and course markers disabled")
		return nil, nil
	}
	var rdb *database.RedisClient
	err := retryWithBackoff(func() error {
		var err error
		rdb, err = database.NewRedis(cfg)
		if err != nil {
			return err
		}
		return rdb.Ping(ctx)
	}, 10, 2*time.Second, log, "Redis connection")
	return rdb, err
}

func connectElasticsearch(ctx context.Context, cfg config.ElasticsearchConfig, log *zap.Logger) (*database.ElasticsearchClient, error) {
	var es *database.ElasticsearchClient
	err := retryWithBackoff(func() error {
		var err error
		es, err = database.NewElasticsearch(cfg)
		if err != nil {
			return err
		}
		return es.Ping(ctx)
	}, 15, 2*time.Second, log, "Elasticsearch connection")
	return es, err
}

// buildSenders returns the configured transports. A disabled channel is a
// nil interface so the dispatcher reports it as skipped.
func buildSenders(ctx context.Context, cfg config.NotificationConfig, log *zap.Logger) (channels.SMSSender, channels.EmailSender, error) {
	var (
		sms   channels.SMSSender
		email channels.EmailSender
	)

	var awsCfg awssdk.Config
	if (cfg.SMS.Enabled && cfg.SMS.Provider == "sns") || (cfg.Email.Enabled && cfg.Email.Provider == "ses") {
		var err error
		if awsCfg, err = aws.LoadConfig(ctx, cfg.AWS.Region); err != nil {
			return nil, nil, fmt.Errorf("load AWS config: %w", err)
		}
	}

	if cfg.SMS.Enabled {
		switch cfg.SMS.Provider {
		case "sns":
			sms = channels.NewSNSSender(aws.NewSNSClient(awsCfg), cfg.SMS.SNS.SenderID)
		default:
			sms = channels.NewSMSAPISender(channels.SMSAPIConfig{
				BaseURL: cfg.SMS.SMSAPI.URL,
				Token:   cfg.SMS.SMSAPI.Token,
				Sender:  cfg.SMS.SMSAPI.Sender,
			}, commonhttp.NewClient(config.GetDuration(cfg.SMS.SMSAPI.Timeout)))
		}
		log.Info("sms channel enabled", zap.String("provider", cfg.SMS.Provider))
	}

	if cfg.Email.Enabled {
		switch cfg.Email.Provider {
		case "ses":
			email = channels.NewSESSender(aws.NewSESClient(awsCfg), cfg.Email.FromAddress)
		default:
			email = channels.NewSMTPSender(channels.SMTPConfig{
				Host:     cfg.Email.SMTP.Host,
				Port:     cfg.Email.SMTP.Port,
				Username: cfg.Email.SMTP.Username,
				Password: cfg.Email.SMTP.Password,
				UseTLS:   cfg.Email.SMTP.UseTLS,
				FromAddr: cfg.Email.FromAddress,
				FromName: cfg.Email.FromName,
				Timeout:  config.GetDuration(cfg.Email.SMTP.Timeout),
			})
		}
		log.Info("email channel enabled", zap.String("provider", cfg.Email.Provider))
	}
	return sms, email, nil
}
