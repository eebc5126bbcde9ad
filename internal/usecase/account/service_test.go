package account

import (
	"bytes"
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	domain "accounts/backend/internal/domain/auth"
	"accounts/backend/internal/domain/recovery"
	"accounts/backend/internal/infrastructure/password"
)

type fixture struct {
	svc      *Service
	store    *memStore
	notifier *recordingNotifier
	hasher   *password.BcryptHasher
	logs     *test.Hook
	now      time.Time
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	store := newMemStore()
	notifier := &recordingNotifier{}
	hasher := password.NewBcryptHasher(bcrypt.MinCost)
	logger, hook := test.NewNullLogger()

	f := &fixture{store: store, notifier: notifier, hasher: hasher, logs: hook, now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	f.svc = NewService(memUsers{store}, store, hasher, notifier, opts, logger)
	f.svc.nowFunc = func() time.Time { return f.now }
	return f
}

func (f *fixture) register(t *testing.T, email, pw string) int64 {
	t.Helper()
	id, err := f.svc.Register(context.Background(), RegisterInput{Email: email, Password: pw, Name: "Test"})
	require.NoError(t, err)
	return id
}

func (f *fixture) passwordMatches(t *testing.T, email, pw string) bool {
	t.Helper()
	u, err := memUsers{f.store}.GetByEmail(context.Background(), email)
	require.NoError(t, err)
	ok, err := f.hasher.Compare(u.PasswordHash, pw)
	require.NoError(t, err)
	return ok
}

func TestRegisterThenGet(t *testing.T) {
	f := newFixture(t, Options{})

	id := f.register(t, "A@X.com", "p1")
	assert.Positive(t, id)

	u, err := f.svc.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", u.Email)
	assert.Equal(t, domain.RoleUser, u.Role)
	assert.Empty(t, u.PasswordHash)
}

func TestRegisterValidation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{Password: "p"})
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	_, err = f.svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "  "})
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))

	_, err = f.svc.Register(ctx, RegisterInput{Email: "a@x.com", Password: "p", Role: "root"})
	assert.ErrorIs(t, err, domain.ErrInvalidRole)
}

func TestRegisterDuplicateEmailIgnoresCase(t *testing.T) {
	f := newFixture(t, Options{})
	f.register(t, "a@x.com", "p1")

	_, err := f.svc.Register(context.Background(), RegisterInput{Email: "A@X.COM", Password: "p2"})
	assert.ErrorIs(t, err, domain.ErrEmailExists)
	assert.Equal(t, domain.KindConflict, domain.KindOf(err))
}

func TestGetMissing(t *testing.T) {
	f := newFixture(t, Options{})

	_, err := f.svc.Get(context.Background(), 99)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)

	_, err = f.svc.Get(context.Background(), 0)
	assert.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestListPageWalksDataset(t *testing.T) {
	f := newFixture(t, Options{})
	for i := 0; i < 25; i++ {
		f.register(t, fmt.Sprintf("user%02d@x.com", i), "p")
	}

	sizes := []int{10, 10, 5, 0}
	var seen []int64
	for idx, want := range sizes {
		page, err := f.svc.ListPage(context.Background(), idx, 10)
		require.NoError(t, err)
		assert.Len(t, page.Items, want, "page %d", idx)
		assert.Equal(t, 25, page.TotalCount)
		assert.NotNil(t, page.Items)
		for _, u := range page.Items {
			assert.Empty(t, u.PasswordHash)
			seen = append(seen, u.ID)
		}
	}
	assert.IsIncreasing(t, seen)
}

func TestListPageFarPastTheEndIsEmpty(t *testing.T) {
	f := newFixture(t, Options{})
	for i := 0; i < 3; i++ {
		f.register(t, fmt.Sprintf("user%d@x.com", i), "p")
	}

	for _, idx := range []int{3, math.MaxInt/10 + 1, math.MaxInt} {
		page, err := f.svc.ListPage(context.Background(), idx, 10)
		require.NoError(t, err, "index %d", idx)
		assert.Empty(t, page.Items)
		assert.Equal(t, 3, page.TotalCount)
		assert.False(t, page.HasNextPage())
	}
	assert.Zero(t, f.store.lists())
}

func TestListPageRejectsBadArguments(t *testing.T) {
	f := newFixture(t, Options{MaxPageSize: 50})
	ctx := context.Background()

	for _, tc := range []struct{ index, size int }{{-1, 10}, {0, 0}, {0, -3}, {0, 51}} {
		_, err := f.svc.ListPage(ctx, tc.index, tc.size)
		assert.ErrorIs(t, err, domain.ErrInvalidArgument, "index=%d size=%d", tc.index, tc.size)
	}
}

func TestUpdateOwnProfile(t *testing.T) {
	f := newFixture(t, Options{})
	id := f.register(t, "a@x.com", "p")

	name, email := "  Ada  ", "Ada@X.com"
	u, err := f.svc.Update(context.Background(), id, id, UpdateInput{Name: &name, Email: &email})
	require.NoError(t, err)
	assert.Equal(t, "Ada", u.Name)
	assert.Equal(t, "ada@x.com", u.Email)
	assert.Equal(t, f.now, u.UpdatedAt)
}

func TestUpdateOtherAccountForbidden(t *testing.T) {
	f := newFixture(t, Options{})
	a := f.register(t, "a@x.com", "p")
	b := f.register(t, "b@x.com", "p")

	name := "hijack"
	_, err := f.svc.Update(context.Background(), b, a, UpdateInput{Name: &name})
	assert.ErrorIs(t, err, domain.ErrForbidden)

	_, err = f.svc.Update(context.Background(), b, 0, UpdateInput{Name: &name})
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
}

func TestUpdateEmailConflict(t *testing.T) {
	f := newFixture(t, Options{})
	a := f.register(t, "a@x.com", "p")
	f.register(t, "b@x.com", "p")

	email := "B@x.com"
	_, err := f.svc.Update(context.Background(), a, a, UpdateInput{Email: &email})
	assert.ErrorIs(t, err, domain.ErrEmailExists)
}

func TestDelete(t *testing.T) {
	f := newFixture(t, Options{})
	id := f.register(t, "a@x.com", "p")

	require.NoError(t, f.svc.Delete(context.Background(), id))
	assert.ErrorIs(t, f.svc.Delete(context.Background(), id), domain.ErrUserNotFound)
}

func TestAnalytics(t *testing.T) {
	f := newFixture(t, Options{})

	stats, err := f.svc.Analytics(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, stats)
	assert.Empty(t, stats)

	f.register(t, "a@x.com", "p")
	f.register(t, "b@x.com", "p")
	_, err = f.svc.Register(context.Background(), RegisterInput{Email: "c@x.com", Password: "p", Role: "admin"})
	require.NoError(t, err)

	stats, err = f.svc.Analytics(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []domain.RoleAnalytics{{Role: domain.RoleAdmin, Count: 1}, {Role: domain.RoleUser, Count: 2}}, stats)
}

func TestRequestResetUnknownEmail(t *testing.T) {
	f := newFixture(t, Options{})

	err := f.svc.RequestReset(context.Background(), "unknown@x.com")
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
	assert.Zero(t, f.notifier.count())
}

func TestRequestResetConcealsUnknownEmail(t *testing.T) {
	f := newFixture(t, Options{ConcealUnknownEmail: true})

	require.NoError(t, f.svc.RequestReset(context.Background(), "unknown@x.com"))
	assert.Zero(t, f.notifier.count())
}

func TestRequestResetIssuesOneTokenAndOneDispatch(t *testing.T) {
	f := newFixture(t, Options{})
	f.register(t, "a@x.com", "p")

	require.NoError(t, f.svc.RequestReset(context.Background(), "A@x.com"))
	assert.Equal(t, 1, f.store.actionableTokens("a@x.com", f.now))
	require.Equal(t, 1, f.notifier.count())

	sent := f.notifier.last()
	assert.Equal(t, "a@x.com", sent.Email)
	assert.Len(t, sent.Token, 2*tokenBytes)
	assert.NotEqual(t, sent.Token, f.store.tokens[0].TokenHash)
	assert.Equal(t, recovery.HashValue(sent.Token), f.store.tokens[0].TokenHash)
	assert.Equal(t, f.now.Add(DefaultTokenTTL), f.store.tokens[0].ExpiresAt)
}

func TestRequestResetRevokesEarlierToken(t *testing.T) {
	f := newFixture(t, Options{})
	f.register(t, "a@x.com", "p")
	ctx := context.Background()

	require.NoError(t, f.svc.RequestReset(ctx, "a@x.com"))
	first := f.notifier.last().Token
	require.NoError(t, f.svc.RequestReset(ctx, "a@x.com"))

	assert.Equal(t, 1, f.store.actionableTokens("a@x.com", f.now))
	err := f.svc.ConsumePasswordChange(ctx, ChangePasswordInput{Token: first, NewPassword: "p2"})
	assert.ErrorIs(t, err, recovery.ErrInvalidToken)
}

func TestRequestResetDispatchFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, Options{})
	f.register(t, "a@x.com", "p")
	f.notifier.fail = errBoom

	require.NoError(t, f.svc.RequestReset(context.Background(), "a@x.com"))
	assert.Equal(t, 1, f.store.actionableTokens("a@x.com", f.now))
	require.NotNil(t, f.logs.LastEntry())
	assert.Equal(t, logrus.WarnLevel, f.logs.LastEntry().Level)
}

func TestRequestResetRandomFailure(t *testing.T) {
	f := newFixture(t, Options{})
	f.register(t, "a@x.com", "p")
	f.svc.random = bytes.NewReader(nil)

	err := f.svc.RequestReset(context.Background(), "a@x.com")
	assert.Error(t, err)
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
	assert.Zero(t, f.notifier.count())
}

func TestResetChangesPassword(t *testing.T) {
	f := newFixture(t, Options{})
	f.register(t, "a@x.com", "p1")
	ctx := context.Background()

	require.NoError(t, f.svc.RequestReset(ctx, "a@x.com"))
	tok := f.notifier.last().Token

	require.NoError(t, f.svc.ConsumePasswordChange(ctx, ChangePasswordInput{Token: tok, Purpose: "reset-password", NewPassword: "p2"}))
	assert.False(t, f.passwordMatches(t, "a@x.com", "p1"))
	assert.True(t, f.passwordMatches(t, "a@x.com", "p2"))
}

func TestConsumeTwice(t *testing.T) {
	f := newFixture(t, Options{})
	f.register(t, "a@x.com", "p1")
	ctx := context.Background()

	require.NoError(t, f.svc.RequestReset(ctx, "a@x.com"))
	tok := f.notifier.last().Token

	require.NoError(t, f.svc.ConsumePasswordChange(ctx, ChangePasswordInput{Token: tok, NewPassword: "p2"}))
	err := f.svc.ConsumePasswordChange(ctx, ChangePasswordInput{Token: tok, NewPassword: "p3"})
	assert.ErrorIs(t, err, recovery.ErrInvalidToken)
	assert.Equal(t, domain.KindInvalidToken, domain.KindOf(err))
	assert.True(t, f.passwordMatches(t, "a@x.com", "p2"))
}

func TestConsumeConcurrentlyExactlyOnce(t *testing.T) {
	f := newFixture(t, Options{})
	f.register(t, "a@x.com", "p1")
	ctx := context.Background()

	require.NoError(t, f.svc.RequestReset(ctx, "a@x.com"))
	tok := f.notifier.last().Token

	const workers = 16
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		invalid   int
	)
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func(i int) {
			defer wg.Done()
			err := f.svc.ConsumePasswordChange(ctx, ChangePasswordInput{Token: tok, NewPassword: fmt.Sprintf("p%d", i)})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case domain.KindOf(err) == domain.KindInvalidToken:
				invalid++
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, workers-1, invalid)
}

func TestConsumeExpiredToken(t *testing.T) {
	f := newFixture(t, Options{TokenTTL: 10 * time.Minute})
	f.register(t, "a@x.com", "p1")
	ctx := context.Background()

	require.NoError(t, f.svc.RequestReset(ctx, "a@x.com"))
	tok := f.notifier.last().Token

	f.now = f.now.Add(11 * time.Minute)
	err := f.svc.ConsumePasswordChange(ctx, ChangePasswordInput{Token: tok, NewPassword: "p2"})
	assert.ErrorIs(t, err, recovery.ErrInvalidToken)
	assert.True(t, f.passwordMatches(t, "a@x.com", "p1"))
}

func TestConsumeRejectsBadInput(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	assert.ErrorIs(t, f.svc.ConsumePasswordChange(ctx, ChangePasswordInput{NewPassword: "p"}), recovery.ErrInvalidToken)
	assert.ErrorIs(t, f.svc.ConsumePasswordChange(ctx, ChangePasswordInput{Token: "t"}), domain.ErrInvalidArgument)
	assert.ErrorIs(t, f.svc.ConsumePasswordChange(ctx, ChangePasswordInput{Token: "t", Purpose: "verify-email", NewPassword: "p"}), recovery.ErrUnknownPurpose)
	assert.ErrorIs(t, f.svc.ConsumePasswordChange(ctx, ChangePasswordInput{Token: "never-issued", NewPassword: "p"}), recovery.ErrInvalidToken)
}

func TestDeletedAccountTokenCannotReachNewOwnerOfEmail(t *testing.T) {
	f := newFixture(t, Options{})
	id := f.register(t, "a@x.com", "p1")
	ctx := context.Background()

	require.NoError(t, f.svc.RequestReset(ctx, "a@x.com"))
	tok := f.notifier.last().Token
	require.NoError(t, f.svc.Delete(ctx, id))
	require.NotNil(t, f.store.tokens[0].RevokedAt)

	f.register(t, "a@x.com", "newcomer-pw")

	err := f.svc.ConsumePasswordChange(ctx, ChangePasswordInput{Token: tok, NewPassword: "attacker-pw"})
	assert.ErrorIs(t, err, recovery.ErrInvalidToken)
	assert.Nil(t, f.store.tokens[0].ConsumedAt)
	assert.True(t, f.passwordMatches(t, "a@x.com", "newcomer-pw"))
	assert.False(t, f.passwordMatches(t, "a@x.com", "attacker-pw"))
}

func TestEmailChangeRevokesTokensForPreviousAddress(t *testing.T) {
	f := newFixture(t, Options{})
	id := f.register(t, "a@x.com", "p1")
	ctx := context.Background()

	require.NoError(t, f.svc.RequestReset(ctx, "a@x.com"))
	tok := f.notifier.last().Token

	moved := "b@x.com"
	_, err := f.svc.Update(ctx, id, id, UpdateInput{Email: &moved})
	require.NoError(t, err)
	assert.Zero(t, f.store.actionableTokens("a@x.com", f.now))

	f.register(t, "a@x.com", "newcomer-pw")

	err = f.svc.ConsumePasswordChange(ctx, ChangePasswordInput{Token: tok, NewPassword: "attacker-pw"})
	assert.ErrorIs(t, err, recovery.ErrInvalidToken)
	assert.True(t, f.passwordMatches(t, "a@x.com", "newcomer-pw"))
	assert.True(t, f.passwordMatches(t, "b@x.com", "p1"))
}

func TestNameChangeKeepsResetToken(t *testing.T) {
	f := newFixture(t, Options{})
	id := f.register(t, "a@x.com", "p1")
	ctx := context.Background()

	require.NoError(t, f.svc.RequestReset(ctx, "a@x.com"))
	tok := f.notifier.last().Token

	name := "Ada"
	_, err := f.svc.Update(ctx, id, id, UpdateInput{Name: &name})
	require.NoError(t, err)

	require.NoError(t, f.svc.ConsumePasswordChange(ctx, ChangePasswordInput{Token: tok, NewPassword: "p2"}))
	assert.True(t, f.passwordMatches(t, "a@x.com", "p2"))
}

func TestConcurrentResetRequestsLeaveOneOpenToken(t *testing.T) {
	f := newFixture(t, Options{})
	f.register(t, "a@x.com", "p1")
	ctx := context.Background()

	const workers = 8
	errs := make(chan error, workers)
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			errs <- f.svc.RequestReset(ctx, "a@x.com")
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, f.store.actionableTokens("a@x.com", f.now))
	assert.Equal(t, workers, f.notifier.count())
}

func TestRequestResetAfterExpiryReplacesStaleToken(t *testing.T) {
	f := newFixture(t, Options{TokenTTL: time.Minute})
	f.register(t, "a@x.com", "p1")
	ctx := context.Background()

	require.NoError(t, f.svc.RequestReset(ctx, "a@x.com"))
	f.now = f.now.Add(2 * time.Minute)

	require.NoError(t, f.svc.RequestReset(ctx, "a@x.com"))
	assert.Equal(t, 1, f.store.actionableTokens("a@x.com", f.now))
	require.NoError(t, f.svc.ConsumePasswordChange(ctx, ChangePasswordInput{Token: f.notifier.last().Token, NewPassword: "p2"}))
}
