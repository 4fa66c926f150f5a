package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/storefront-api/internal/models"
	"github.com/noah-isme/storefront-api/internal/repository"
	appErrors "github.com/noah-isme/storefront-api/pkg/errors"
	"github.com/noah-isme/storefront-api/pkg/token"
)

const (
	shopperID      = "6f1d2c3b-4a5e-4f60-8a7b-9c0d1e2f3a4b"
	otherShopperID = "0b8e7d6c-5f4a-4b3c-9d2e-1f0a9b8c7d6e"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type memoryLedger struct {
	mu      sync.Mutex
	records map[string]*models.CredentialRecord
	seq     map[string]int
	next    int
	now     func() time.Time
	findErr error
}

func newMemoryLedger(now func() time.Time) *memoryLedger {
	return &memoryLedger{records: map[string]*models.CredentialRecord{}, seq: map[string]int{}, now: now}
}

func (l *memoryLedger) insertLocked(rec *models.CredentialRecord) {
	stored := *rec
	l.records[rec.ID] = &stored
	l.next++
	l.seq[rec.ID] = l.next
}

func (l *memoryLedger) retireLocked(rec *models.CredentialRecord) {
	now := l.now()
	rec.Revoked = true
	rec.Expired = true
	rec.RevokedAt = &now
}

func (l *memoryLedger) FindLatestNonExpired(ctx context.Context, userID string) (*models.CredentialRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.findErr != nil {
		return nil, l.findErr
	}
	var latest *models.CredentialRecord
	for _, rec := range l.records {
		if rec.UserID != userID || rec.Revoked {
			continue
		}
		if latest == nil || l.seq[rec.ID] > l.seq[latest.ID] {
			latest = rec
		}
	}
	if latest == nil {
		return nil, sql.ErrNoRows
	}
	copy := *latest
	return &copy, nil
}

func (l *memoryLedger) FindByID(ctx context.Context, id string) (*models.CredentialRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *rec
	return &copy, nil
}

func (l *memoryLedger) ListByPrincipal(ctx context.Context, userID string, limit int) ([]models.CredentialRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.CredentialRecord
	for _, rec := range l.records {
		if rec.UserID == userID {
			out = append(out, *rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return l.seq[out[i].ID] > l.seq[out[j].ID] })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (l *memoryLedger) MarkExpiredIfNotExpired(ctx context.Context, id string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.records[id]
	if !ok || rec.Revoked {
		return 0, nil
	}
	l.retireLocked(rec)
	return 1, nil
}

func (l *memoryLedger) BulkExpireByPrincipal(ctx context.Context, userID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.bulkLocked(userID), nil
}

func (l *memoryLedger) bulkLocked(userID string) int64 {
	var n int64
	for _, rec := range l.records {
		if rec.UserID == userID && !rec.Revoked {
			l.retireLocked(rec)
			n++
		}
	}
	return n
}

func (l *memoryLedger) MarkLapsed(ctx context.Context, id string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if rec, ok := l.records[id]; ok && !rec.Expired && rec.PastExpiry(l.now()) {
		rec.Expired = true
	}
	return nil
}

func (l *memoryLedger) ExpireLapsed(ctx context.Context, now time.Time) (int64, error) {
	return l.expireLapsed("", now), nil
}

func (l *memoryLedger) ExpireLapsedForPrincipal(ctx context.Context, userID string, now time.Time) (int64, error) {
	return l.expireLapsed(userID, now), nil
}

func (l *memoryLedger) expireLapsed(userID string, now time.Time) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for _, rec := range l.records {
		if userID != "" && rec.UserID != userID {
			continue
		}
		if !rec.Expired && rec.PastExpiry(now) {
			rec.Expired = true
			n++
		}
	}
	return n
}

func (l *memoryLedger) Issue(ctx context.Context, rec *models.CredentialRecord) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.bulkLocked(rec.UserID)
	l.insertLocked(rec)
	return n, nil
}

func (l *memoryLedger) Supersede(ctx context.Context, oldID string, successor *models.CredentialRecord) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	old, ok := l.records[oldID]
	if !ok || old.Revoked {
		return repository.ErrRecordSuperseded
	}
	l.retireLocked(old)
	l.insertLocked(successor)
	return nil
}

func (l *memoryLedger) set(id string, mutate func(*models.CredentialRecord)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	mutate(l.records[id])
}

func (l *memoryLedger) live(userID string) []models.CredentialRecord {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []models.CredentialRecord
	for _, rec := range l.records {
		if rec.UserID == userID && !rec.Revoked {
			out = append(out, *rec)
		}
	}
	return out
}

type memoryPrincipals struct {
	mu      sync.Mutex
	users   map[string]*models.User
	findErr error
}

func newMemoryPrincipals(users ...*models.User) *memoryPrincipals {
	p := &memoryPrincipals{users: map[string]*models.User{}}
	for _, u := range users {
		p.users[u.ID] = u
	}
	return p
}

func (p *memoryPrincipals) FindActiveByID(ctx context.Context, id string) (*models.User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.findErr != nil {
		return nil, p.findErr
	}
	u, ok := p.users[id]
	if !ok || !u.Active {
		return nil, sql.ErrNoRows
	}
	copy := *u
	return &copy, nil
}

func (p *memoryPrincipals) FindActiveByEmail(ctx context.Context, email string) (*models.User, error) {
	u, err := p.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !u.Active {
		return nil, sql.ErrNoRows
	}
	return u, nil
}

func (p *memoryPrincipals) FindByID(ctx context.Context, id string) (*models.User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *u
	return &copy, nil
}

func (p *memoryPrincipals) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, u := range p.users {
		if u.Email == email {
			copy := *u
			return &copy, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (p *memoryPrincipals) SetActive(ctx context.Context, id string, active bool) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	u, ok := p.users[id]
	if !ok {
		return false, nil
	}
	u.Active = active
	return true, nil
}

func (p *memoryPrincipals) Create(ctx context.Context, user *models.User) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if user.ID == "" {
		user.ID = "user-" + user.Email
	}
	copy := *user
	p.users[user.ID] = &copy
	return nil
}

func (p *memoryPrincipals) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if u, ok := p.users[id]; ok {
		u.LastLogin = &ts
	}
	return nil
}

type recordingAuditor struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (a *recordingAuditor) Record(ctx context.Context, entry models.AuditLog) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.entries = append(a.entries, entry)
}

func (a *recordingAuditor) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		out = append(out, e.Action)
	}
	return out
}

type credentialFixture struct {
	svc        *CredentialService
	ledger     *memoryLedger
	principals *memoryPrincipals
	clock      *testClock
	auditor    *recordingAuditor
}

func newCredentialFixture(t *testing.T, users ...*models.User) *credentialFixture {
	t.Helper()
	if len(users) == 0 {
		users = []*models.User{{ID: shopperID, Email: "shopper@example.com", Active: true}}
	}
	clock := newTestClock()
	ledger := newMemoryLedger(clock.Now)
	principals := newMemoryPrincipals(users...)
	auditor := &recordingAuditor{}
	codec := token.NewCodec("test-secret", "storefront").WithClock(clock.Now)
	svc := NewCredentialService(ledger, principals, codec, CredentialConfig{TTL: time.Hour, RenewalBudget: 5}, auditor, NewMetricsService(), zap.NewNop())
	svc.now = clock.Now
	return &credentialFixture{svc: svc, ledger: ledger, principals: principals, clock: clock, auditor: auditor}
}

func (f *credentialFixture) issue(t *testing.T, principalID string) *models.IssuedCredential {
	t.Helper()
	issued, err := f.svc.Issue(context.Background(), principalID, models.RequestMeta{IP: "127.0.0.1"})
	require.NoError(t, err)
	return issued
}

func (f *credentialFixture) validate(t *testing.T, raw string) models.ValidationResult {
	t.Helper()
	result, err := f.svc.Validate(context.Background(), raw)
	require.NoError(t, err)
	return result
}

func (f *credentialFixture) renew(raw string) (*models.IssuedCredential, error) {
	return f.svc.Renew(context.Background(), models.RenewRequest{Token: raw})
}

func TestIssueReturnsFreshBudget(t *testing.T) {
	f := newCredentialFixture(t)
	issued := f.issue(t, shopperID)

	assert.NotEmpty(t, issued.Token)
	assert.Equal(t, 5, issued.RefreshCycles)
	assert.Equal(t, 60, issued.ExpiresInMinutes())
	assert.Equal(t, f.clock.Now().Add(time.Hour), issued.ExpiresAt)
	assert.Contains(t, f.auditor.actions(), models.AuditActionCredentialIssue)
}

func TestIssueRevokesEveryPriorRecord(t *testing.T) {
	f := newCredentialFixture(t)
	first := f.issue(t, shopperID)
	second := f.issue(t, shopperID)
	third := f.issue(t, shopperID)

	live := f.ledger.live(shopperID)
	require.Len(t, live, 1)
	assert.Equal(t, third.RecordID, live[0].ID)

	for _, old := range []*models.IssuedCredential{first, second} {
		rec, err := f.ledger.FindByID(context.Background(), old.RecordID)
		require.NoError(t, err)
		assert.True(t, rec.Revoked)
		assert.Equal(t, models.Reject{Kind: models.RejectNoActiveCredential}, f.validate(t, old.Token))
	}
	assert.IsType(t, models.Accept{}, f.validate(t, third.Token))
}

func TestIssueRequiresActivePrincipal(t *testing.T) {
	f := newCredentialFixture(t,
		&models.User{ID: "active", Active: true},
		&models.User{ID: "inactive", Active: false},
	)

	_, err := f.svc.Issue(context.Background(), "missing", models.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrPrincipalNotFound)

	_, err = f.svc.Issue(context.Background(), "inactive", models.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrPrincipalNotFound)
	assert.Empty(t, f.ledger.live("inactive"))
}

func TestValidateAcceptsCurrentCredential(t *testing.T) {
	f := newCredentialFixture(t, &models.User{ID: "admin", Active: true, IsAdmin: true})
	issued := f.issue(t, "admin")

	result := f.validate(t, issued.Token)
	assert.Equal(t, models.Accept{PrincipalID: "admin", RecordID: issued.RecordID, IsAdmin: true}, result)
}

func TestValidateRejectsMissingAndMalformedTokens(t *testing.T) {
	f := newCredentialFixture(t)
	f.issue(t, shopperID)

	assert.Equal(t, models.Reject{Kind: models.RejectMissingToken}, f.validate(t, "  "))
	assert.Equal(t, models.Reject{Kind: models.RejectInvalidToken}, f.validate(t, "not-a-token"))

	forged, err := token.NewCodec("other-secret", "storefront").Sign(shopperID, "rec", false, f.clock.Now(), f.clock.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, models.Reject{Kind: models.RejectInvalidToken}, f.validate(t, forged))
}

func TestValidateLapsedCredentialRequiresRenewal(t *testing.T) {
	f := newCredentialFixture(t)
	issued := f.issue(t, shopperID)

	f.clock.Advance(61 * time.Minute)
	result := f.validate(t, issued.Token)
	assert.Equal(t, models.RenewalRequired{PrincipalID: shopperID, RecordID: issued.RecordID, Budget: 5}, result)

	rec, err := f.ledger.FindByID(context.Background(), issued.RecordID)
	require.NoError(t, err)
	assert.True(t, rec.Expired)
	assert.False(t, rec.Revoked)
}

func TestValidateExpiryBoundaryIsInclusive(t *testing.T) {
	f := newCredentialFixture(t)
	issued := f.issue(t, shopperID)

	f.clock.Advance(time.Hour)
	assert.IsType(t, models.RenewalRequired{}, f.validate(t, issued.Token))
}

func TestValidateLapsedWithLastCycleIsExhausted(t *testing.T) {
	f := newCredentialFixture(t)
	issued := f.issue(t, shopperID)
	f.ledger.set(issued.RecordID, func(r *models.CredentialRecord) { r.RefreshCycles = 1 })

	f.clock.Advance(2 * time.Hour)
	assert.Equal(t, models.Reject{Kind: models.RejectCredentialExhausted}, f.validate(t, issued.Token))

	rec, err := f.ledger.FindByID(context.Background(), issued.RecordID)
	require.NoError(t, err)
	assert.True(t, rec.Revoked)
	assert.Contains(t, f.auditor.actions(), models.AuditActionCredentialExhaust)

	assert.Equal(t, models.Reject{Kind: models.RejectNoActiveCredential}, f.validate(t, issued.Token))
}

func TestValidateWithoutRecordIsNoActiveCredential(t *testing.T) {
	f := newCredentialFixture(t)
	raw, err := token.NewCodec("test-secret", "storefront").Sign(shopperID, "unknown-record", false, f.clock.Now(), f.clock.Now().Add(time.Hour))
	require.NoError(t, err)

	assert.Equal(t, models.Reject{Kind: models.RejectNoActiveCredential}, f.validate(t, raw))
}

func TestValidateSurfacesStoreFailures(t *testing.T) {
	f := newCredentialFixture(t)
	issued := f.issue(t, shopperID)

	f.ledger.findErr = errors.New("connection refused")
	result, err := f.svc.Validate(context.Background(), issued.Token)
	assert.Error(t, err)
	assert.Nil(t, result)

	f.ledger.findErr = nil
	f.principals.findErr = errors.New("connection refused")
	_, err = f.svc.Validate(context.Background(), issued.Token)
	assert.Error(t, err)
}

func TestDeactivationRejectsUnexpiredToken(t *testing.T) {
	f := newCredentialFixture(t)
	issued := f.issue(t, shopperID)
	require.IsType(t, models.Accept{}, f.validate(t, issued.Token))

	ok, err := f.principals.SetActive(context.Background(), shopperID, false)
	require.NoError(t, err)
	require.True(t, ok)
	revoked, err := f.svc.RevokePrincipal(context.Background(), shopperID, models.RequestMeta{})
	require.NoError(t, err)
	assert.EqualValues(t, 1, revoked)

	assert.Equal(t, models.Reject{Kind: models.RejectPrincipalInactive}, f.validate(t, issued.Token))
	assert.Empty(t, f.ledger.live(shopperID))
}

func TestRenewBudgetBoundary(t *testing.T) {
	t.Run("budget two renews to one", func(t *testing.T) {
		f := newCredentialFixture(t)
		issued := f.issue(t, shopperID)
		f.ledger.set(issued.RecordID, func(r *models.CredentialRecord) { r.RefreshCycles = 2 })

		renewed, err := f.renew(issued.Token)
		require.NoError(t, err)
		assert.Equal(t, 1, renewed.RefreshCycles)
	})

	t.Run("budget one is refused and retired", func(t *testing.T) {
		f := newCredentialFixture(t)
		issued := f.issue(t, shopperID)
		f.ledger.set(issued.RecordID, func(r *models.CredentialRecord) { r.RefreshCycles = 1 })

		_, err := f.renew(issued.Token)
		assert.ErrorIs(t, err, appErrors.ErrRenewalBudgetExhausted)

		rec, err := f.ledger.FindByID(context.Background(), issued.RecordID)
		require.NoError(t, err)
		assert.True(t, rec.Revoked)
		assert.True(t, rec.Expired)
		assert.Empty(t, f.ledger.live(shopperID))
	})
}

func TestRenewalBudgetAllowsBudgetMinusOneRenewals(t *testing.T) {
	f := newCredentialFixture(t)
	current := f.issue(t, shopperID)

	successes := 0
	for i := 0; i < 10; i++ {
		f.clock.Advance(61 * time.Minute)
		next, err := f.renew(current.Token)
		if err != nil {
			assert.ErrorIs(t, err, appErrors.ErrRenewalBudgetExhausted)
			break
		}
		successes++
		current = next
	}
	assert.Equal(t, 4, successes)
}

func TestRenewLinksSuccessorToParent(t *testing.T) {
	f := newCredentialFixture(t)
	issued := f.issue(t, shopperID)
	f.clock.Advance(61 * time.Minute)

	renewed, err := f.svc.Renew(context.Background(), models.RenewRequest{TokenID: issued.RecordID, Token: issued.Token, IP: "10.0.0.1"})
	require.NoError(t, err)

	rec, err := f.ledger.FindByID(context.Background(), renewed.RecordID)
	require.NoError(t, err)
	require.NotNil(t, rec.ParentID)
	assert.Equal(t, issued.RecordID, *rec.ParentID)
	assert.Equal(t, "10.0.0.1", rec.IPAddress)
	assert.Equal(t, f.clock.Now().Add(time.Hour), rec.ExpiresAt)

	parent, err := f.ledger.FindByID(context.Background(), issued.RecordID)
	require.NoError(t, err)
	assert.True(t, parent.Revoked)
}

func TestRenewRejectsTokenNotBoundToRecord(t *testing.T) {
	f := newCredentialFixture(t)
	issued := f.issue(t, shopperID)

	forged, err := token.NewCodec("attacker", "storefront").Sign(shopperID, issued.RecordID, false, f.clock.Now(), f.clock.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = f.renew(forged)
	assert.ErrorIs(t, err, appErrors.ErrInvalidToken)
	assert.Len(t, f.ledger.live(shopperID), 1)
}

func TestRenewRejectsMissingOrGarbageToken(t *testing.T) {
	f := newCredentialFixture(t)

	_, err := f.renew("")
	assert.ErrorIs(t, err, appErrors.ErrMissingToken)

	_, err = f.renew("garbage")
	assert.ErrorIs(t, err, appErrors.ErrInvalidToken)
}

func TestRenewRejectsMalformedIdentifiers(t *testing.T) {
	f := newCredentialFixture(t)
	issued := f.issue(t, shopperID)
	codec := token.NewCodec("test-secret", "storefront")
	now := f.clock.Now()

	badUser, err := codec.Sign("x", issued.RecordID, false, now, now.Add(time.Hour))
	require.NoError(t, err)
	badRecord, err := codec.Sign(shopperID, "abc", false, now, now.Add(time.Hour))
	require.NoError(t, err)

	f.principals.findErr = errors.New("invalid input syntax for type uuid")

	_, err = f.renew(badUser)
	assert.ErrorIs(t, err, appErrors.ErrInvalidToken)

	_, err = f.renew(badRecord)
	assert.ErrorIs(t, err, appErrors.ErrInvalidToken)

	_, err = f.svc.Renew(context.Background(), models.RenewRequest{TokenID: "abc", Token: issued.Token})
	assert.ErrorIs(t, err, appErrors.ErrInvalidToken)

	f.principals.findErr = nil
	renewed, err := f.renew(issued.Token)
	require.NoError(t, err)
	assert.Equal(t, 4, renewed.RefreshCycles)
}

func TestRenewSupersededTokenFails(t *testing.T) {
	f := newCredentialFixture(t)
	issued := f.issue(t, shopperID)

	_, err := f.renew(issued.Token)
	require.NoError(t, err)

	_, err = f.renew(issued.Token)
	assert.ErrorIs(t, err, appErrors.ErrRenewalBudgetExhausted)
	assert.Len(t, f.ledger.live(shopperID), 1)
}

func TestRenewInactivePrincipal(t *testing.T) {
	f := newCredentialFixture(t)
	issued := f.issue(t, shopperID)
	_, _ = f.principals.SetActive(context.Background(), shopperID, false)

	_, err := f.renew(issued.Token)
	assert.ErrorIs(t, err, appErrors.ErrPrincipalInactive)
}

func TestConcurrentRenewalsYieldOneSuccessor(t *testing.T) {
	f := newCredentialFixture(t)
	issued := f.issue(t, shopperID)
	f.clock.Advance(61 * time.Minute)

	const callers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.renew(issued.Token)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			failures = append(failures, err)
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, 1, successes)
	for _, err := range failures {
		assert.ErrorIs(t, err, appErrors.ErrRenewalBudgetExhausted)
	}

	records, err := f.ledger.ListByPrincipal(context.Background(), shopperID, 0)
	require.NoError(t, err)
	children := 0
	for _, rec := range records {
		if rec.ParentID != nil && *rec.ParentID == issued.RecordID {
			children++
		}
	}
	assert.Equal(t, 1, children)
	assert.Len(t, f.ledger.live(shopperID), 1)
}

func TestLoginRenewLifecycleScenario(t *testing.T) {
	f := newCredentialFixture(t)

	t1 := f.issue(t, shopperID)
	assert.Equal(t, 5, t1.RefreshCycles)
	assert.Equal(t, 60, t1.ExpiresInMinutes())

	f.clock.Advance(61 * time.Minute)
	assert.Equal(t, models.RenewalRequired{PrincipalID: shopperID, RecordID: t1.RecordID, Budget: 5}, f.validate(t, t1.Token))

	t2, err := f.renew(t1.Token)
	require.NoError(t, err)
	assert.Equal(t, 4, t2.RefreshCycles)
	assert.IsType(t, models.Accept{}, f.validate(t, t2.Token))

	current := t2
	for _, want := range []int{3, 2, 1} {
		f.clock.Advance(61 * time.Minute)
		next, err := f.renew(current.Token)
		require.NoError(t, err)
		assert.Equal(t, want, next.RefreshCycles)
		current = next
	}

	f.clock.Advance(61 * time.Minute)
	_, err = f.renew(current.Token)
	assert.ErrorIs(t, err, appErrors.ErrRenewalBudgetExhausted)
	assert.Equal(t, models.Reject{Kind: models.RejectNoActiveCredential}, f.validate(t, current.Token))
}

func TestRevokeLogsOutCurrentRecord(t *testing.T) {
	f := newCredentialFixture(t,
		&models.User{ID: shopperID, Active: true},
		&models.User{ID: otherShopperID, Active: true},
	)
	issued := f.issue(t, shopperID)

	err := f.svc.Revoke(context.Background(), models.Principal{UserID: otherShopperID, RecordID: issued.RecordID}, models.RequestMeta{})
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	principal := models.Principal{UserID: shopperID, RecordID: issued.RecordID}
	require.NoError(t, f.svc.Revoke(context.Background(), principal, models.RequestMeta{}))
	require.NoError(t, f.svc.Revoke(context.Background(), principal, models.RequestMeta{}))
	assert.Equal(t, models.Reject{Kind: models.RejectNoActiveCredential}, f.validate(t, issued.Token))
}

func TestSweepOnValidateFlagsLapsedRecords(t *testing.T) {
	f := newCredentialFixture(t)
	f.svc.config.SweepOnValidate = true
	issued := f.issue(t, shopperID)

	f.clock.Advance(2 * time.Hour)
	assert.IsType(t, models.RenewalRequired{}, f.validate(t, issued.Token))

	rec, err := f.ledger.FindByID(context.Background(), issued.RecordID)
	require.NoError(t, err)
	assert.True(t, rec.Expired)
}

func TestListByPrincipalNeverNil(t *testing.T) {
	f := newCredentialFixture(t)
	records, err := f.svc.ListByPrincipal(context.Background(), shopperID, 10)
	require.NoError(t, err)
	assert.NotNil(t, records)
	assert.Empty(t, records)
}
