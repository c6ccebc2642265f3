package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appconfig "github.com/ubva/crm-scheduler/internal/config"
	"github.com/ubva/crm-scheduler/internal/notify"
	"github.com/ubva/crm-scheduler/internal/settings"
	"github.com/ubva/crm-scheduler/pkg/logging"
)

func TestBuildRedisClientDisabled(t *testing.T) {
	assert.Nil(t, BuildRedisClient(context.Background(), &appconfig.Config{}, nil, true))
	assert.Nil(t, BuildRedisClient(context.Background(), nil, nil, true))
}

func TestBuildRedisClientVerifies(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{RedisAddr: mr.Addr()}

	client := BuildRedisClient(context.Background(), cfg, logging.Default(), true)
	require.NotNil(t, client)
	t.Cleanup(func() { _ = client.Close() })

	mr.Close()
	assert.Nil(t, BuildRedisClient(context.Background(), cfg, logging.Default(), true))
}

func TestBuildPostgresPoolDisabled(t *testing.T) {
	pool, err := BuildPostgresPool(context.Background(), &appconfig.Config{})
	require.NoError(t, err)
	assert.Nil(t, pool)
}

func TestBuildPostgresPoolRejectsBadURL(t *testing.T) {
	_, err := BuildPostgresPool(context.Background(), &appconfig.Config{DatabaseURL: "postgres://%zz"})
	assert.Error(t, err)
}

func TestBaseRulesUsesConfig(t *testing.T) {
	rules := BaseRules(&appconfig.Config{ScheduleTimezone: "America/Manaus", ScheduleLeadTime: 2 * time.Hour})
	assert.Equal(t, "America/Manaus", rules.Location.String())
	assert.Equal(t, 2*time.Hour, rules.LeadTime)
}

func TestBuildSettingsStore(t *testing.T) {
	cfg := &appconfig.Config{ScheduleTimezone: "America/Sao_Paulo", ScheduleLeadTime: 90 * time.Minute}

	mem := BuildSettingsStore(cfg, nil)
	assert.IsType(t, &settings.MemoryStore{}, mem)
	got, err := mem.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 90, got.LeadTimeMinutes)

	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, nil, false)
	t.Cleanup(func() { _ = client.Close() })
	assert.IsType(t, &settings.RedisStore{}, BuildSettingsStore(cfg, client))
}

func TestBuildEmailSender(t *testing.T) {
	logger := logging.Default()

	stub := BuildEmailSender(&appconfig.Config{EmailProvider: "sendgrid"}, nil, logger)
	assert.IsType(t, &notify.StubEmailSender{}, stub)

	sg := BuildEmailSender(&appconfig.Config{
		EmailProvider:     "sendgrid",
		SendGridAPIKey:    "SG.key",
		SendGridFromEmail: "agenda@example.com",
	}, nil, logger)
	assert.IsType(t, &notify.SendGridSender{}, sg)

	noClient := BuildEmailSender(&appconfig.Config{EmailProvider: "ses", SendGridFromEmail: "agenda@example.com"}, nil, logger)
	assert.IsType(t, &notify.StubEmailSender{}, noClient)
}
