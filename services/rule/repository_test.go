package rule

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Lekbanken/economy/services/cooldown"
	"github.com/Lekbanken/economy/services/testutil"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func newTestRepository(t *testing.T) Repository {
	t.Helper()
	return NewRepository(testutil.NewTestDB(t, &AutomationRule{}))
}

func seedRule(t *testing.T, repo Repository, r AutomationRule) AutomationRule {
	t.Helper()
	if r.BaseMultiplier == 0 {
		r.BaseMultiplier = 1
	}
	r.IsActive = true
	r.CreatedAt = time.Now().UTC()
	r.UpdatedAt = r.CreatedAt
	require.NoError(t, repo.Create(context.Background(), &r))
	return r
}

func TestResolve_TenantShadowsGlobal(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	seedRule(t, repo, AutomationRule{
		ID: "g1", TenantID: "", EventType: "lesson_completed",
		Name: "Global lesson", RewardAmount: 25, XPAmount: 50,
	})
	seedRule(t, repo, AutomationRule{
		ID: "t1-r1", TenantID: "t1", EventType: "lesson_completed",
		Name: "Tenant lesson", RewardAmount: 40, XPAmount: 80,
	})

	rules, err := repo.Resolve(ctx, "t1", "lesson_completed")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.Equal(t, "t1-r1", rules[0].ID)

	// A tenant without its own rule falls back to the global one.
	rules, err = repo.Resolve(ctx, "t2", "lesson_completed")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.Equal(t, "g1", rules[0].ID)
}

func TestResolve_FallsBackToBuiltin(t *testing.T) {
	repo := newTestRepository(t)

	rules, err := repo.Resolve(context.Background(), "t1", "daily_login")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.Equal(t, "builtin:daily_login", rules[0].ID)
	require.Equal(t, int64(10), rules[0].RewardAmount)
	require.Equal(t, cooldown.TypeDaily, rules[0].CooldownType)
}

func TestResolve_UnknownEventYieldsNothing(t *testing.T) {
	repo := newTestRepository(t)

	rules, err := repo.Resolve(context.Background(), "t1", "unknown_event")
	require.NoError(t, err)
	require.Empty(t, rules)
}

func TestResolve_IgnoresInactiveRules(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	inactive := AutomationRule{
		ID: "t1-off", TenantID: "t1", EventType: "daily_login",
		Name: "Disabled override", RewardAmount: 999, BaseMultiplier: 1,
		IsActive: false,
	}
	require.NoError(t, repo.Create(ctx, &inactive))

	// The inactive tenant rule does not shadow the built-in.
	rules, err := repo.Resolve(ctx, "t1", "daily_login")
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.Equal(t, "builtin:daily_login", rules[0].ID)
}

func TestList_Filters(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	seedRule(t, repo, AutomationRule{ID: "r1", TenantID: "t1", EventType: "daily_login", Name: "A", RewardAmount: 1})
	seedRule(t, repo, AutomationRule{ID: "r2", TenantID: "t1", EventType: "quiz_perfect", Name: "B", RewardAmount: 2})
	inactive := AutomationRule{ID: "r3", TenantID: "t1", EventType: "quiz_perfect", Name: "C", BaseMultiplier: 1}
	require.NoError(t, repo.Create(ctx, &inactive))

	rules, err := repo.List(ctx, "t1", ListParams{})
	require.NoError(t, err)
	require.Len(t, rules, 2)

	rules, err = repo.List(ctx, "t1", ListParams{EventType: "quiz_perfect"})
	require.NoError(t, err)
	require.Len(t, rules, 1)
	require.Equal(t, "r2", rules[0].ID)

	rules, err = repo.List(ctx, "t1", ListParams{IncludeInactive: true})
	require.NoError(t, err)
	require.Len(t, rules, 3)
}

func TestUpdateAndDelete(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	r := seedRule(t, repo, AutomationRule{
		ID: "r1", TenantID: "t1", EventType: "daily_login",
		Name: "Login", RewardAmount: 10,
	})

	r.RewardAmount = 15
	r.UpdatedAt = time.Now().UTC()
	require.NoError(t, repo.Update(ctx, &r))

	got, err := repo.GetByID(ctx, "t1", "r1")
	require.NoError(t, err)
	require.Equal(t, int64(15), got.RewardAmount)

	// Wrong tenant cannot touch the rule.
	other := r
	other.TenantID = "t2"
	require.ErrorIs(t, repo.Update(ctx, &other), gorm.ErrRecordNotFound)
	require.ErrorIs(t, repo.Delete(ctx, "t2", "r1"), gorm.ErrRecordNotFound)

	require.NoError(t, repo.Delete(ctx, "t1", "r1"))
	_, err = repo.GetByID(ctx, "t1", "r1")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
