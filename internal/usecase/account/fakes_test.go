package account

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	domain "accounts/backend/internal/domain/auth"
	"accounts/backend/internal/domain/recovery"
)

// memStore holds users and tokens in memory. WithinTx serialises
// transactions and restores a snapshot when fn fails. Like the Postgres
// schema, it allows one open token per account and purpose.
type memStore struct {
	txMu      sync.Mutex
	mu        sync.Mutex
	nextID    int64
	users     map[int64]domain.User
	tokens    []recovery.Token
	listCalls int
}

var errOpenTokenExists = errors.New("open token already exists for account")

func open(t recovery.Token) bool {
	return t.ConsumedAt == nil && t.RevokedAt == nil
}

func actionable(t recovery.Token, at time.Time) bool {
	return open(t) && at.Before(t.ExpiresAt)
}

type memUsers struct{ *memStore }

type memTokens struct{ *memStore }

func newMemStore() *memStore {
	return &memStore{users: map[int64]domain.User{}}
}

func (m *memStore) WithinTx(ctx context.Context, fn func(context.Context, domain.UserRepository, recovery.Repository) error) error {
	m.txMu.Lock()
	defer m.txMu.Unlock()

	m.mu.Lock()
	users := make(map[int64]domain.User, len(m.users))
	for k, v := range m.users {
		users[k] = v
	}
	tokens := append([]recovery.Token(nil), m.tokens...)
	m.mu.Unlock()

	if err := fn(ctx, memUsers{m}, memTokens{m}); err != nil {
		m.mu.Lock()
		m.users, m.tokens = users, tokens
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m memUsers) Create(_ context.Context, u *domain.User) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return 0, domain.ErrEmailExists
		}
	}
	m.nextID++
	u.ID = m.nextID
	m.users[u.ID] = *u
	return u.ID, nil
}

func (m memUsers) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email {
			c := u
			return &c, nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (m memUsers) GetByEmailForUpdate(ctx context.Context, email string) (*domain.User, error) {
	return m.GetByEmail(ctx, email)
}

func (m memUsers) GetByID(_ context.Context, id int64) (*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return &u, nil
}

func (m memUsers) List(_ context.Context, offset, limit int) ([]*domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listCalls++
	ids := make([]int64, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var out []*domain.User
	for i := offset; i < len(ids) && len(out) < limit; i++ {
		u := m.users[ids[i]]
		out = append(out, &u)
	}
	return out, nil
}

func (m memUsers) Count(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.users), nil
}

func (m memUsers) Update(_ context.Context, u *domain.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return domain.ErrUserNotFound
	}
	m.users[u.ID] = *u
	return nil
}

func (m memUsers) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[id]; !ok {
		return domain.ErrUserNotFound
	}
	delete(m.users, id)
	return nil
}

func (m memUsers) UpdatePassword(_ context.Context, id int64, hash string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	u.PasswordHash = hash
	u.UpdatedAt = at
	m.users[id] = u
	return nil
}

func (m memUsers) CountByRole(context.Context) ([]domain.RoleAnalytics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.users) == 0 {
		return nil, nil
	}
	counts := map[domain.UserRole]int{}
	for _, u := range m.users {
		counts[u.Role]++
	}
	out := make([]domain.RoleAnalytics, 0, len(counts))
	for role, n := range counts {
		out = append(out, domain.RoleAnalytics{Role: role, Count: n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Role < out[j].Role })
	return out, nil
}

func (m memTokens) Create(_ context.Context, t *recovery.Token) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.tokens {
		if existing.UserID == t.UserID && existing.Purpose == t.Purpose && open(existing) {
			return errOpenTokenExists
		}
	}
	t.ID = int64(len(m.tokens) + 1)
	m.tokens = append(m.tokens, *t)
	return nil
}

func (m memTokens) RevokeOutstanding(_ context.Context, userID int64, purpose recovery.Purpose, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for i := range m.tokens {
		t := &m.tokens[i]
		if t.UserID == userID && t.Purpose == purpose && open(*t) {
			revokedAt := at
			t.RevokedAt = &revokedAt
			n++
		}
	}
	return n, nil
}

func (m memTokens) Consume(_ context.Context, hash string, purpose recovery.Purpose, at time.Time) (*recovery.Token, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tokens {
		t := &m.tokens[i]
		if t.TokenHash == hash && t.Purpose == purpose && actionable(*t, at) {
			consumedAt := at
			t.ConsumedAt = &consumedAt
			c := *t
			return &c, nil
		}
	}
	return nil, recovery.ErrInvalidToken
}

func (m *memStore) lists() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

func (m *memStore) actionableTokens(email string, at time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tokens {
		if t.Email == email && actionable(t, at) {
			n++
		}
	}
	return n
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentReset
	fail error
}

type sentReset struct {
	Email string
	Token string
}

func (n *recordingNotifier) SendPasswordReset(_ context.Context, email, token string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentReset{Email: email, Token: token})
	return n.fail
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

func (n *recordingNotifier) last() sentReset {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.sent[len(n.sent)-1]
}

var errBoom = errors.New("boom")
