package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	appconfig "github.com/ubva/crm-scheduler/internal/config"
	"github.com/ubva/crm-scheduler/internal/eligibility"
	"github.com/ubva/crm-scheduler/internal/notify"
	"github.com/ubva/crm-scheduler/internal/settings"
	"github.com/ubva/crm-scheduler/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildPostgresPool connects to DATABASE_URL, or returns nil when unset.
func BuildPostgresPool(ctx context.Context, cfg *appconfig.Config) (*pgxpool.Pool, error) {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// BaseRules applies the configured timezone and lead time to the default
// business hours.
func BaseRules(cfg *appconfig.Config) eligibility.Rules {
	rules := eligibility.DefaultRules()
	if cfg == nil {
		return rules
	}
	rules.Location = eligibility.LoadLocation(cfg.ScheduleTimezone)
	if cfg.ScheduleLeadTime > 0 {
		rules.LeadTime = cfg.ScheduleLeadTime
	}
	return rules
}

// BuildSettingsStore returns the Redis-backed store when Redis is available
// and an in-process one otherwise.
func BuildSettingsStore(cfg *appconfig.Config, redisClient *redis.Client) settings.Store {
	var tz string
	defaults := settings.Defaults("")
	if cfg != nil {
		tz = cfg.ScheduleTimezone
		defaults = settings.Defaults(tz)
		if cfg.ScheduleLeadTime > 0 {
			defaults.LeadTimeMinutes = int(cfg.ScheduleLeadTime / time.Minute)
		}
	}
	if redisClient == nil {
		return settings.NewMemoryStore(defaults)
	}
	return settings.NewRedisStore(redisClient, defaults)
}

// BuildSESClient creates the SES v2 client, honouring AWS_ENDPOINT_OVERRIDE.
func BuildSESClient(awsCfg aws.Config, cfg *appconfig.Config) *sesv2.Client {
	return sesv2.NewFromConfig(awsCfg, func(o *sesv2.Options) {
		if cfg != nil && strings.TrimSpace(cfg.AWSEndpointOverride) != "" {
			o.BaseEndpoint = aws.String(cfg.AWSEndpointOverride)
		}
	})
}

// BuildEmailSender picks the provider named by EMAIL_PROVIDER. Anything that
// cannot be configured falls back to the logging stub.
func BuildEmailSender(cfg *appconfig.Config, ses notify.SESAPI, logger *logging.Logger) notify.EmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg == nil {
		return notify.NewStubEmailSender(logger)
	}
	from := notify.Sender{Email: cfg.SendGridFromEmail, Name: cfg.SendGridFromName}
	switch cfg.EmailProvider {
	case "ses":
		if ses != nil && from.Email != "" {
			return notify.NewSESSender(ses, notify.SESConfig{From: from, ConfigurationSet: cfg.SESConfigurationSet}, logger)
		}
		logger.Warn("ses email provider selected but not configured")
	case "sendgrid":
		if cfg.SendGridAPIKey != "" && from.Email != "" {
			return notify.NewSendGridSender(notify.SendGridConfig{APIKey: cfg.SendGridAPIKey, From: from}, logger)
		}
	}
	return notify.NewStubEmailSender(logger)
}
