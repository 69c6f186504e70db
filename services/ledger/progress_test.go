package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestApplyXPTransaction_LevelsUp(t *testing.T) {
	svc, _ := newTestService(t)

	res, err := svc.ApplyXPTransaction(context.Background(), ApplyParams{
		TenantID: "t1", UserID: "u1", Amount: 600,
		Type: TypeEarn, IdempotencyKey: "xp-1",
	})
	require.NoError(t, err)
	require.Equal(t, int64(1), res.Progress.Level)
	require.Equal(t, int64(600), res.Progress.CurrentXP)
	require.False(t, res.LeveledUp)

	res, err = svc.ApplyXPTransaction(context.Background(), ApplyParams{
		TenantID: "t1", UserID: "u1", Amount: 500,
		Type: TypeEarn, IdempotencyKey: "xp-2",
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), res.Progress.Level)
	require.Equal(t, int64(1100), res.Progress.CurrentXP)
	require.Equal(t, int64(2000), res.Progress.NextLevelXP)
	require.True(t, res.LeveledUp)
}

func TestApplyXPTransaction_MultiLevelJump(t *testing.T) {
	svc, _ := newTestService(t)

	// Level thresholds sit at level*1000 cumulative xp, so 3500 xp walks
	// through levels 2, 3 and 4 in one grant.
	res, err := svc.ApplyXPTransaction(context.Background(), ApplyParams{
		TenantID: "t1", UserID: "u1", Amount: 3500,
		Type: TypeEarn, IdempotencyKey: "xp-1",
	})
	require.NoError(t, err)
	require.Equal(t, int64(4), res.Progress.Level)
	require.Equal(t, int64(4000), res.Progress.NextLevelXP)
	require.True(t, res.LeveledUp)
}

func TestApplyXPTransaction_IdempotentReplay(t *testing.T) {
	svc, _ := newTestService(t)

	first, err := svc.ApplyXPTransaction(context.Background(), ApplyParams{
		TenantID: "t1", UserID: "u1", Amount: 1200,
		Type: TypeEarn, IdempotencyKey: "xp-1",
	})
	require.NoError(t, err)
	require.Equal(t, int64(2), first.Progress.Level)

	replay, err := svc.ApplyXPTransaction(context.Background(), ApplyParams{
		TenantID: "t1", UserID: "u1", Amount: 1200,
		Type: TypeEarn, IdempotencyKey: "xp-1",
	})
	require.NoError(t, err)
	require.True(t, replay.Apply.Duplicate)
	require.Equal(t, int64(2), replay.Progress.Level)
	require.Equal(t, int64(1200), replay.Progress.CurrentXP)
}

func TestGetProgress_DefaultsToLevelOne(t *testing.T) {
	svc, _ := newTestService(t)

	progress, err := svc.GetProgress(context.Background(), "t1", "nobody")
	require.NoError(t, err)
	require.Equal(t, int64(1), progress.Level)
	require.Equal(t, int64(0), progress.CurrentXP)
	require.Equal(t, XPPerLevel, progress.NextLevelXP)
}

func TestUserProgress_AdvanceXP(t *testing.T) {
	cases := []struct {
		name      string
		start     UserProgress
		gain      int64
		wantLevel int64
		wantNext  int64
	}{
		{"fresh below threshold", UserProgress{Level: 1}, 999, 1, 1000},
		{"exact threshold", UserProgress{Level: 1}, 1000, 2, 2000},
		{"multi level", UserProgress{Level: 1}, 3000, 4, 4000},
		{"mid level", UserProgress{Level: 2, CurrentXP: 1500}, 400, 2, 2000},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := tc.start
			p.AdvanceXP(tc.gain)
			require.Equal(t, tc.wantLevel, p.Level)
			require.Equal(t, tc.wantNext, p.NextLevelXP)
		})
	}
}
