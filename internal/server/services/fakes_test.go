package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/hostelpay/internal/common"
	"github.com/dmitrijs2005/hostelpay/internal/dbx"
	"github.com/dmitrijs2005/hostelpay/internal/server/mail"
	"github.com/dmitrijs2005/hostelpay/internal/server/models"
	"github.com/dmitrijs2005/hostelpay/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/hostelpay/internal/server/repositories/payments"
	"github.com/dmitrijs2005/hostelpay/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/hostelpay/internal/server/repositories/tokens"
	"github.com/stretchr/testify/require"
)

// memStore is an in-memory stand-in for the database behind every repo.
type memStore struct {
	mu       sync.Mutex
	seq      int
	accounts map[string]models.Account
	tokens   map[string]models.VerificationToken
	payments map[string]models.Payment
	refresh  map[string]models.RefreshToken

	// updateErr, when set, is returned by the next payments Update.
	updateErr error
}

func newMemStore() *memStore {
	return &memStore{
		accounts: map[string]models.Account{},
		tokens:   map[string]models.VerificationToken{},
		payments: map[string]models.Payment{},
		refresh:  map[string]models.RefreshToken{},
	}
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *memStore) liveTokens(accountID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.tokens {
		if t.AccountID == accountID && t.Live() {
			n++
		}
	}
	return n
}

type memManager struct{ s *memStore }

func (m memManager) RunMigrations(context.Context, *sql.DB) error    { return nil }
func (m memManager) Accounts(dbx.DBTX) accounts.Repository           { return memAccounts{m.s} }
func (m memManager) Tokens(dbx.DBTX) tokens.Repository               { return memTokens{m.s} }
func (m memManager) Payments(dbx.DBTX) payments.Repository           { return memPayments{m.s} }
func (m memManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return memRefresh{m.s} }

type memAccounts struct{ s *memStore }

func (r memAccounts) Create(_ context.Context, a *models.Account) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.accounts {
		if existing.UserName == a.UserName {
			return nil, common.NewValidationError("username", "already taken")
		}
		if existing.Email == a.Email {
			return nil, common.NewValidationError("email", "already registered")
		}
	}
	c := *a
	c.ID = r.s.nextID("acc")
	c.CreatedAt = time.Now()
	c.UpdatedAt = c.CreatedAt
	r.s.accounts[c.ID] = c
	return &c, nil
}

func (r memAccounts) GetByID(_ context.Context, id string) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &a, nil
}

func (r memAccounts) GetByIDForUpdate(ctx context.Context, id string) (*models.Account, error) {
	return r.GetByID(ctx, id)
}

func (r memAccounts) GetByLogin(_ context.Context, login string) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.accounts {
		if a.UserName == login || a.Email == strings.ToLower(login) {
			return &a, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r memAccounts) UserNameExists(_ context.Context, userName string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.accounts {
		if a.UserName == userName {
			return true, nil
		}
	}
	return false, nil
}

func (r memAccounts) EmailExists(_ context.Context, email string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.accounts {
		if a.Email == email {
			return true, nil
		}
	}
	return false, nil
}

func (r memAccounts) Activate(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return common.ErrorNotFound
	}
	a.Active, a.EmailVerified = true, true
	r.s.accounts[id] = a
	return nil
}

func (r memAccounts) SetActive(_ context.Context, id string, active bool) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return common.ErrorNotFound
	}
	a.Active = active
	r.s.accounts[id] = a
	return nil
}

type memTokens struct{ s *memStore }

func (r memTokens) Create(_ context.Context, t *models.VerificationToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.tokens {
		if existing.AccountID == t.AccountID && existing.Live() {
			return fmt.Errorf("verification_tokens_live_idx violated")
		}
	}
	r.s.tokens[t.ID] = *t
	return nil
}

func (r memTokens) GetForUpdate(_ context.Context, id string) (*models.VerificationToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tokens[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &t, nil
}

func (r memTokens) InvalidateLive(_ context.Context, accountID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, t := range r.s.tokens {
		if t.AccountID == accountID && t.Live() {
			t.Invalidated = true
			r.s.tokens[id] = t
			n++
		}
	}
	return n, nil
}

func (r memTokens) MarkVerified(_ context.Context, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tokens[id]
	if !ok || !t.Live() {
		return common.ErrVersionConflict
	}
	t.Verified = true
	r.s.tokens[id] = t
	return nil
}

func (r memTokens) ListByAccount(_ context.Context, accountID string) ([]*models.VerificationToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*models.VerificationToken{}
	for _, t := range r.s.tokens {
		if t.AccountID == accountID {
			c := t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type memPayments struct{ s *memStore }

func (r memPayments) Create(_ context.Context, p *models.Payment) (*models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c := *p
	c.ID = r.s.nextID("pay")
	c.CreatedAt = time.Now()
	c.Version = 1
	r.s.payments[c.ID] = c
	return &c, nil
}

func (r memPayments) Get(_ context.Context, id string) (*models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.payments[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &p, nil
}

func (r memPayments) List(_ context.Context, f models.PaymentFilter) ([]*models.Payment, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*models.Payment{}
	for _, p := range r.s.payments {
		if f.AccountID != "" && p.AccountID != f.AccountID {
			continue
		}
		if f.Status != "" && p.Status != f.Status {
			continue
		}
		c := p
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r memPayments) Update(_ context.Context, p *models.Payment) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.updateErr; err != nil {
		r.s.updateErr = nil
		return err
	}
	stored, ok := r.s.payments[p.ID]
	if !ok || stored.Version != p.Version {
		return common.ErrVersionConflict
	}
	if p.TransactionID != "" {
		for id, other := range r.s.payments {
			if id != p.ID && other.TransactionID == p.TransactionID {
				return common.NewValidationError("transaction_id", "already used by another payment")
			}
		}
	}
	p.Version++
	r.s.payments[p.ID] = *p
	return nil
}

type memRefresh struct{ s *memStore }

func (r memRefresh) Create(_ context.Context, accountID, token string, expires time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.refresh[token] = models.RefreshToken{ID: r.s.nextID("rt"), AccountID: accountID, Token: token, Expires: expires}
	return nil
}

func (r memRefresh) Find(_ context.Context, token string) (*models.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.refresh[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &t, nil
}

func (r memRefresh) Delete(_ context.Context, token string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	delete(r.s.refresh, token)
	return nil
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg mail.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeMailer) last(t *testing.T) mail.Message {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.NotEmpty(t, f.sent, "no mail sent")
	return f.sent[len(f.sent)-1]
}

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time          { return c.t }
func (c *testClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
func newTestClock() *testClock               { return &testClock{t: time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)} }

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

// expectTx queues one transaction that ends in commit or rollback.
func expectTx(mock sqlmock.Sqlmock, commit bool) {
	mock.ExpectBegin()
	if commit {
		mock.ExpectCommit()
	} else {
		mock.ExpectRollback()
	}
}
