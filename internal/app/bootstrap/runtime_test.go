package bootstrap

import (
	"bytes"
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/autoflowlabs/consultancy-crm/internal/appointments"
	"github.com/autoflowlabs/consultancy-crm/internal/billing"
	"github.com/autoflowlabs/consultancy-crm/internal/chat"
	appconfig "github.com/autoflowlabs/consultancy-crm/internal/config"
	"github.com/autoflowlabs/consultancy-crm/internal/dashboard"
	"github.com/autoflowlabs/consultancy-crm/internal/events"
	"github.com/autoflowlabs/consultancy-crm/internal/notify"
	"github.com/autoflowlabs/consultancy-crm/internal/scheduling"
	"github.com/autoflowlabs/consultancy-crm/pkg/logging"
)

func quietLogger() *logging.Logger {
	return logging.NewWithOptions(logging.Options{Level: "error", Output: &bytes.Buffer{}})
}

func TestBuildRedisClient(t *testing.T) {
	ctx := context.Background()
	assert.Nil(t, BuildRedisClient(ctx, nil, quietLogger(), true))
	assert.Nil(t, BuildRedisClient(ctx, &appconfig.Config{}, quietLogger(), true))

	mr := miniredis.RunT(t)
	client := BuildRedisClient(ctx, &appconfig.Config{RedisAddr: mr.Addr()}, quietLogger(), true)
	require.NotNil(t, client)
	defer client.Close()
	require.NoError(t, client.Ping(ctx).Err())

	addr := mr.Addr()
	mr.Close()
	assert.Nil(t, BuildRedisClient(ctx, &appconfig.Config{RedisAddr: addr}, quietLogger(), true))
	unverified := BuildRedisClient(ctx, &appconfig.Config{RedisAddr: addr}, quietLogger(), false)
	require.NotNil(t, unverified)
	_ = unverified.Close()
}

func TestConnectPostgresEmptyURL(t *testing.T) {
	pool, err := ConnectPostgres(context.Background(), "  ", quietLogger())
	require.NoError(t, err)
	assert.Nil(t, pool)
	assert.Nil(t, SQLFromPool(nil))
}

func TestSchedulingDefaults(t *testing.T) {
	assert.Equal(t, scheduling.DefaultSettings(), SchedulingDefaults(nil))

	got := SchedulingDefaults(&appconfig.Config{BusinessTimezone: "Europe/London", SlotGranularityMinutes: 15, MaxRecommendations: 8})
	assert.Equal(t, "Europe/London", got.Timezone)
	assert.Equal(t, 15, got.GranularityMinutes)
	assert.Equal(t, 8, got.MaxRecommendations)
	assert.Equal(t, scheduling.WeekdayHours(), got.BusinessHours)
	require.NoError(t, got.Validate())
}

func TestBuildSessionCreator(t *testing.T) {
	creator, fake := BuildSessionCreator(&appconfig.Config{StripeSecretKey: "sk_test_123"}, quietLogger())
	assert.False(t, fake)
	assert.NotNil(t, creator)

	creator, fake = BuildSessionCreator(&appconfig.Config{PublicBaseURL: "https://crm.autoflow.example"}, quietLogger())
	assert.True(t, fake)
	assert.Equal(t, billing.FakeSessionCreator{BaseURL: "https://crm.autoflow.example"}, creator)
}

func TestBuildEmailSender(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		cfg  appconfig.Config
		want any
	}{
		{name: "default stub", cfg: appconfig.Config{}, want: &notify.StubEmailSender{}},
		{name: "sendgrid", cfg: appconfig.Config{EmailProvider: "sendgrid", SendGridAPIKey: "SG.key", EmailFrom: "hello@autoflow.example"}, want: &notify.SendGridSender{}},
		{name: "sendgrid without key", cfg: appconfig.Config{EmailProvider: "sendgrid"}, want: &notify.StubEmailSender{}},
		{name: "ses without from", cfg: appconfig.Config{EmailProvider: "ses", AWSRegion: "us-east-1"}, want: &notify.StubEmailSender{}},
		{name: "ses", cfg: appconfig.Config{
			EmailProvider: "ses", EmailFrom: "hello@autoflow.example", AWSRegion: "us-east-1",
			AWSAccessKeyID: "test", AWSSecretAccessKey: "test", AWSEndpointOverride: "http://localhost:4566",
		}, want: &notify.SESSender{}},
		{name: "unknown", cfg: appconfig.Config{EmailProvider: "carrier-pigeon"}, want: &notify.StubEmailSender{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			sender := BuildEmailSender(ctx, &tc.cfg, quietLogger())
			require.NotNil(t, sender)
			assert.IsType(t, tc.want, sender)
		})
	}
}

func TestBuildArchiveStore(t *testing.T) {
	ctx := context.Background()
	store, err := BuildArchiveStore(ctx, &appconfig.Config{}, quietLogger())
	require.NoError(t, err)
	assert.Nil(t, store)

	store, err = BuildArchiveStore(ctx, &appconfig.Config{
		ChatArchiveBucket:   "chat-archive",
		AWSRegion:           "us-east-1",
		AWSAccessKeyID:      "test",
		AWSSecretAccessKey:  "test",
		AWSEndpointOverride: "http://localhost:4566",
	}, quietLogger())
	require.NoError(t, err)
	require.NotNil(t, store)
	assert.True(t, store.Enabled())
}

func TestBuildStoresInMemory(t *testing.T) {
	s := BuildStores(nil, nil, nil, scheduling.DefaultSettings())
	assert.IsType(t, &appointments.InMemoryRepository{}, s.Appointments)
	assert.IsType(t, &billing.InMemoryRepository{}, s.Payments)
	assert.IsType(t, &events.MemoryProcessedStore{}, s.Processed)
	assert.IsType(t, &dashboard.RepositorySource{}, s.Dashboard)
	assert.IsType(t, &scheduling.MemorySettingsStore{}, s.Settings)
	assert.IsType(t, &chat.MemoryStore{}, s.Chat)
	assert.Nil(t, s.Outbox)

	bus := events.NewBus(quietLogger())
	assert.Same(t, bus, s.Publisher(bus))
}

func TestBuildStoresWithRedis(t *testing.T) {
	mr := miniredis.RunT(t)
	client := BuildRedisClient(context.Background(), &appconfig.Config{RedisAddr: mr.Addr()}, quietLogger(), false)
	defer client.Close()

	s := BuildStores(nil, nil, client, scheduling.DefaultSettings())
	assert.IsType(t, &scheduling.RedisSettingsStore{}, s.Settings)
	assert.IsType(t, &chat.RedisStore{}, s.Chat)

	settings, err := s.Settings.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, scheduling.DefaultTimezone, settings.Timezone)
}
