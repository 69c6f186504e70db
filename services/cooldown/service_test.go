package cooldown

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Lekbanken/economy/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestService(t *testing.T) *Service {
	t.Helper()

	db := testutil.NewTestDB(t, &Record{})
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)
	return NewService(ServiceParams{DB: db, Node: node})
}

func at(s string) time.Time {
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return ts
}

func TestEvaluate(t *testing.T) {
	cases := []struct {
		name     string
		rec      *Record
		key      Key
		now      time.Time
		eligible bool
	}{
		{
			name:     "no record is always eligible",
			rec:      nil,
			key:      Key{Type: TypeOnce},
			now:      at("2026-03-02T10:00:00Z"),
			eligible: true,
		},
		{
			name:     "none never blocks",
			rec:      &Record{TriggerCount: 5, LastTriggeredAt: at("2026-03-02T10:00:00Z")},
			key:      Key{Type: TypeNone},
			now:      at("2026-03-02T10:00:01Z"),
			eligible: true,
		},
		{
			name:     "daily blocks same utc day",
			rec:      &Record{TriggerCount: 1, LastTriggeredAt: at("2026-03-02T01:00:00Z")},
			key:      Key{Type: TypeDaily},
			now:      at("2026-03-02T23:59:59Z"),
			eligible: false,
		},
		{
			name:     "daily resets at utc midnight",
			rec:      &Record{TriggerCount: 1, LastTriggeredAt: at("2026-03-02T23:59:59Z")},
			key:      Key{Type: TypeDaily},
			now:      at("2026-03-03T00:00:00Z"),
			eligible: true,
		},
		{
			name:     "weekly blocks same iso week",
			rec:      &Record{TriggerCount: 1, LastTriggeredAt: at("2026-03-02T10:00:00Z")}, // Monday
			key:      Key{Type: TypeWeekly},
			now:      at("2026-03-08T10:00:00Z"), // Sunday, same ISO week
			eligible: false,
		},
		{
			name:     "weekly resets on next iso week",
			rec:      &Record{TriggerCount: 1, LastTriggeredAt: at("2026-03-08T10:00:00Z")}, // Sunday
			key:      Key{Type: TypeWeekly},
			now:      at("2026-03-09T00:00:00Z"), // Monday, next ISO week
			eligible: true,
		},
		{
			name:     "once blocks forever",
			rec:      &Record{TriggerCount: 1, LastTriggeredAt: at("2020-01-01T00:00:00Z")},
			key:      Key{Type: TypeOnce},
			now:      at("2026-03-02T10:00:00Z"),
			eligible: false,
		},
		{
			name:     "once_per_streak blocks same streak",
			rec:      &Record{TriggerCount: 1, StreakID: "streak-1"},
			key:      Key{Type: TypeOncePerStreak, StreakID: "streak-1"},
			now:      at("2026-03-02T10:00:00Z"),
			eligible: false,
		},
		{
			name:     "once_per_streak resets on new streak",
			rec:      &Record{TriggerCount: 1, StreakID: "streak-1"},
			key:      Key{Type: TypeOncePerStreak, StreakID: "streak-2"},
			now:      at("2026-03-02T10:00:00Z"),
			eligible: true,
		},
		{
			name:     "interval blocks before elapsed",
			rec:      &Record{TriggerCount: 1, LastTriggeredAt: at("2026-03-02T10:00:00Z")},
			key:      Key{Type: TypeInterval, Interval: time.Hour},
			now:      at("2026-03-02T10:59:59Z"),
			eligible: false,
		},
		{
			name:     "interval allows after elapsed",
			rec:      &Record{TriggerCount: 1, LastTriggeredAt: at("2026-03-02T10:00:00Z")},
			key:      Key{Type: TypeInterval, Interval: time.Hour},
			now:      at("2026-03-02T11:00:00Z"),
			eligible: true,
		},
		{
			name:     "count_per_day blocks at limit",
			rec:      &Record{TriggerCount: 3, DayBucket: "2026-03-02", DayCount: 3},
			key:      Key{Type: TypeCountPerDay, MaxPerDay: 3},
			now:      at("2026-03-02T15:00:00Z"),
			eligible: false,
		},
		{
			name:     "count_per_day resets next day",
			rec:      &Record{TriggerCount: 3, DayBucket: "2026-03-02", DayCount: 3},
			key:      Key{Type: TypeCountPerDay, MaxPerDay: 3},
			now:      at("2026-03-03T00:00:00Z"),
			eligible: true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status := evaluate(tc.rec, tc.key, tc.now)
			require.Equal(t, tc.eligible, status.Eligible)
			if !tc.eligible {
				require.NotEmpty(t, status.Reason)
			}
		})
	}
}

func TestRecordTrigger_RoundTrip(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	key := Key{TenantID: "t1", UserID: "u1", EventType: "daily_login", Type: TypeDaily}

	status, err := svc.IsEligible(ctx, key)
	require.NoError(t, err)
	require.True(t, status.Eligible)

	require.NoError(t, svc.RecordTrigger(ctx, key))

	status, err = svc.IsEligible(ctx, key)
	require.NoError(t, err)
	require.False(t, status.Eligible)
}

func TestRecordTrigger_CountsAccumulate(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	key := Key{TenantID: "t1", UserID: "u1", EventType: "quiz", Type: TypeCountPerDay, MaxPerDay: 2}

	for i := 0; i < 2; i++ {
		status, err := svc.IsEligible(ctx, key)
		require.NoError(t, err)
		require.True(t, status.Eligible)
		require.NoError(t, svc.RecordTrigger(ctx, key))
	}

	status, err := svc.IsEligible(ctx, key)
	require.NoError(t, err)
	require.False(t, status.Eligible)

	rec, err := svc.find(ctx, key)
	require.NoError(t, err)
	require.Equal(t, int64(2), rec.TriggerCount)
	require.Equal(t, int64(2), rec.DayCount)
	require.False(t, rec.FirstTriggeredAt.IsZero())
}

func TestRecordTrigger_StreakMoves(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	key := Key{TenantID: "t1", UserID: "u1", EventType: "streak_milestone", Type: TypeOncePerStreak, StreakID: "s1"}
	require.NoError(t, svc.RecordTrigger(ctx, key))

	status, err := svc.IsEligible(ctx, key)
	require.NoError(t, err)
	require.False(t, status.Eligible)

	key.StreakID = "s2"
	status, err = svc.IsEligible(ctx, key)
	require.NoError(t, err)
	require.True(t, status.Eligible)

	require.NoError(t, svc.RecordTrigger(ctx, key))
	status, err = svc.IsEligible(ctx, key)
	require.NoError(t, err)
	require.False(t, status.Eligible)
}

func TestRecordTrigger_ScopesAreIndependent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	key := Key{TenantID: "t1", UserID: "u1", EventType: "daily_login", Type: TypeDaily}
	require.NoError(t, svc.RecordTrigger(ctx, key))

	other := Key{TenantID: "t1", UserID: "u2", EventType: "daily_login", Type: TypeDaily}
	status, err := svc.IsEligible(ctx, other)
	require.NoError(t, err)
	require.True(t, status.Eligible)

	otherTenant := Key{TenantID: "t2", UserID: "u1", EventType: "daily_login", Type: TypeDaily}
	status, err = svc.IsEligible(ctx, otherTenant)
	require.NoError(t, err)
	require.True(t, status.Eligible)
}
