package services

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophauth/internal/common"
	"github.com/dmitrijs2005/gophauth/internal/dbx"
	"github.com/dmitrijs2005/gophauth/internal/logging"
	"github.com/dmitrijs2005/gophauth/internal/server/config"
	"github.com/dmitrijs2005/gophauth/internal/server/models"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/profiles"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/resettokens"
	"github.com/dmitrijs2005/gophauth/internal/server/repositories/roles"
	"golang.org/x/crypto/bcrypt"
)

// --- clock ---

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	// session tokens are checked against the wall clock
	return &fakeClock{now: time.Now().UTC().Truncate(time.Second)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// --- transactor ---

// fakeTransactor runs units of work inline. Rollback is not modelled.
type fakeTransactor struct {
	txCount int
	txErr   error
}

func (f *fakeTransactor) DB() dbx.DBTX { return nil }

func (f *fakeTransactor) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	f.txCount++
	if f.txErr != nil {
		return f.txErr
	}
	return fn(ctx, nil)
}

// --- in-memory store shared by all fake repositories ---

type memStore struct {
	mu       sync.Mutex
	seq      int
	accounts map[string]models.Account
	profiles map[string]models.Profile
	roles    map[models.RoleName]models.Role
	tokens   []models.ResetToken

	// failures keyed by "<repo>.<method>"
	fail map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		accounts: map[string]models.Account{},
		profiles: map[string]models.Profile{},
		roles:    map[models.RoleName]models.Role{},
		fail:     map[string]error{},
	}
}

func (s *memStore) nextID(prefix string) string {
	s.seq++
	return fmt.Sprintf("%s-%d", prefix, s.seq)
}

func (s *memStore) RunMigrations(context.Context, *sql.DB) error { return nil }
func (s *memStore) Accounts(dbx.DBTX) accounts.Repository { return &memAccounts{s} }
func (s *memStore) Profiles(dbx.DBTX) profiles.Repository { return &memProfiles{s} }
func (s *memStore) Roles(dbx.DBTX) roles.Repository { return &memRoles{s} }
func (s *memStore) ResetTokens(dbx.DBTX) resettokens.Repository { return &memResetTokens{s} }

var _ repomanager.RepositoryManager = (*memStore)(nil)

type memAccounts struct{ s *memStore }

func (r *memAccounts) Create(_ context.Context, a *models.Account) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail["accounts.Create"]; err != nil {
		return nil, err
	}
	for _, other := range r.s.accounts {
		if other.UserName == a.UserName {
			return nil, accounts.ErrUserNameTaken
		}
		if other.Email == a.Email {
			return nil, accounts.ErrEmailTaken
		}
	}
	a.ID = r.s.nextID("acc")
	a.UpdatedAt = a.CreatedAt
	r.s.accounts[a.ID] = *a
	return a, nil
}

func (r *memAccounts) find(match func(models.Account) bool) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail["accounts.Get"]; err != nil {
		return nil, err
	}
	for _, a := range r.s.accounts {
		if match(a) {
			a := a
			return &a, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memAccounts) GetByID(_ context.Context, id string) (*models.Account, error) {
	return r.find(func(a models.Account) bool { return a.ID == id })
}

func (r *memAccounts) GetByUserName(_ context.Context, userName string) (*models.Account, error) {
	return r.find(func(a models.Account) bool { return a.UserName == userName })
}

func (r *memAccounts) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	return r.find(func(a models.Account) bool { return a.Email == email })
}

func (r *memAccounts) UpdatePasswordHash(_ context.Context, id, hash string, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return common.ErrorNotFound
	}
	a.PasswordHash = hash
	a.UpdatedAt = at
	r.s.accounts[id] = a
	return nil
}

type memProfiles struct{ s *memStore }

func (r *memProfiles) Create(_ context.Context, p *models.Profile) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail["profiles.Create"]; err != nil {
		return false, err
	}
	if _, ok := r.s.profiles[p.AccountID]; ok {
		return false, nil
	}
	p.UpdatedAt = p.CreatedAt
	stored := *p
	stored.Role = nil
	r.s.profiles[p.AccountID] = stored
	return true, nil
}

func (r *memProfiles) Get(_ context.Context, accountID string) (*models.Profile, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail["profiles.Get"]; err != nil {
		return nil, err
	}
	p, ok := r.s.profiles[accountID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	for _, role := range r.s.roles {
		if role.ID == p.RoleID {
			role := role
			p.Role = &role
		}
	}
	return &p, nil
}

func (r *memProfiles) GetForUpdate(ctx context.Context, accountID string) (*models.Profile, error) {
	return r.Get(ctx, accountID)
}

func (r *memProfiles) update(accountID string, fn func(p *models.Profile)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	p, ok := r.s.profiles[accountID]
	if !ok {
		return common.ErrorNotFound
	}
	fn(&p)
	r.s.profiles[accountID] = p
	return nil
}

func (r *memProfiles) UpdateLoginState(_ context.Context, in *models.Profile, at time.Time) error {
	return r.update(in.AccountID, func(p *models.Profile) {
		p.LoginAttempts = in.LoginAttempts
		p.IsLocked = in.IsLocked
		p.LastLogin = in.LastLogin
		p.LastLoginIP = in.LastLoginIP
		p.LastLoginAttempt = in.LastLoginAttempt
		p.UpdatedAt = at
	})
}

func (r *memProfiles) UpdateDetails(_ context.Context, accountID string, d models.ProfileDetails, at time.Time) error {
	return r.update(accountID, func(p *models.Profile) {
		p.Bio = d.Bio
		p.PhoneNumber = d.PhoneNumber
		p.DateOfBirth = d.DateOfBirth
		p.UpdatedAt = at
	})
}

func (r *memProfiles) SetRole(_ context.Context, accountID, roleID string, at time.Time) error {
	return r.update(accountID, func(p *models.Profile) {
		p.RoleID = roleID
		p.UpdatedAt = at
	})
}

func (r *memProfiles) SetAvatarKey(_ context.Context, accountID, key string, at time.Time) error {
	return r.update(accountID, func(p *models.Profile) {
		p.AvatarKey = key
		p.UpdatedAt = at
	})
}

func (r *memProfiles) SetEmailVerificationDigest(_ context.Context, accountID, digest string, at time.Time) error {
	return r.update(accountID, func(p *models.Profile) {
		p.EmailVerificationDigest = digest
		p.UpdatedAt = at
	})
}

func (r *memProfiles) MarkEmailVerified(_ context.Context, digest string, at time.Time) (string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, p := range r.s.profiles {
		if digest != "" && p.EmailVerificationDigest == digest {
			p.IsEmailVerified = true
			p.EmailVerificationDigest = ""
			p.UpdatedAt = at
			r.s.profiles[id] = p
			return id, nil
		}
	}
	return "", common.ErrorNotFound
}

func (r *memProfiles) ListLocked(context.Context) ([]string, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []string
	for id, p := range r.s.profiles {
		if p.IsLocked {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

type memRoles struct{ s *memStore }

func (r *memRoles) CreateIfNotExists(_ context.Context, role *models.Role) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail["roles.Create"]; err != nil {
		return false, err
	}
	if _, ok := r.s.roles[role.Name]; ok {
		return false, nil
	}
	role.ID = r.s.nextID("role")
	role.UpdatedAt = role.CreatedAt
	r.s.roles[role.Name] = *role
	return true, nil
}

func (r *memRoles) GetByName(_ context.Context, name models.RoleName) (*models.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	role, ok := r.s.roles[name]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &role, nil
}

func (r *memRoles) List(context.Context) ([]models.Role, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]models.Role, 0, len(r.s.roles))
	for _, role := range r.s.roles {
		out = append(out, role)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r *memRoles) Delete(_ context.Context, name models.RoleName) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	role, ok := r.s.roles[name]
	if !ok {
		return common.ErrorNotFound
	}
	delete(r.s.roles, name)
	for id, p := range r.s.profiles {
		if p.RoleID == role.ID {
			p.RoleID = ""
			r.s.profiles[id] = p
		}
	}
	return nil
}

type memResetTokens struct{ s *memStore }

func (r *memResetTokens) Create(_ context.Context, t *models.ResetToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail["resettokens.Create"]; err != nil {
		delete(r.s.fail, "resettokens.Create")
		return err
	}
	for _, other := range r.s.tokens {
		if other.TokenDigest == t.TokenDigest {
			return resettokens.ErrDuplicateDigest
		}
		if other.AccountID == t.AccountID && !other.IsUsed {
			return fmt.Errorf("db error: second unused token for %s", t.AccountID)
		}
	}
	t.ID = r.s.nextID("tok")
	r.s.tokens = append(r.s.tokens, *t)
	return nil
}

func (r *memResetTokens) DeleteUnused(_ context.Context, accountID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	kept := r.s.tokens[:0]
	for _, t := range r.s.tokens {
		if t.AccountID == accountID && !t.IsUsed {
			n++
			continue
		}
		kept = append(kept, t)
	}
	r.s.tokens = kept
	return n, nil
}

func (r *memResetTokens) FindByDigest(_ context.Context, digest string) (*models.ResetToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, t := range r.s.tokens {
		if t.TokenDigest == digest {
			t := t
			return &t, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *memResetTokens) MarkUsed(_ context.Context, digest string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i, t := range r.s.tokens {
		if t.TokenDigest == digest && !t.IsUsed {
			r.s.tokens[i].IsUsed = true
			return true, nil
		}
	}
	return false, nil
}

func (r *memResetTokens) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	kept := r.s.tokens[:0]
	for _, t := range r.s.tokens {
		if t.IsUsed || t.ExpiresAt.Before(now) {
			n++
			continue
		}
		kept = append(kept, t)
	}
	r.s.tokens = kept
	return n, nil
}

// --- mail ---

type sentMail struct {
	To, Subject, Body string
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (f *fakeSender) Send(_ context.Context, to, subject, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMail{To: to, Subject: subject, Body: body})
	return nil
}

func (f *fakeSender) last(t *testing.T) sentMail {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.sent) == 0 {
		t.Fatalf("no mail sent")
	}
	return f.sent[len(f.sent)-1]
}

// --- fixture ---

type fixture struct {
	store  *memStore
	tr     *fakeTransactor
	clock  *fakeClock
	sender *fakeSender
	cfg    *config.Config
	svc    *AccountService
}

func testConfig() *config.Config {
	return &config.Config{
		SecretKey:              "test-secret",
		MaxLoginAttempts:       DefaultMaxLoginAttempts,
		RememberMeLifetime:     models.RememberMeLifetime,
		BrowserSessionTokenTTL: DefaultBrowserSessionTokenTTL,
		ResetTokenTTL:          DefaultResetTokenTTL,
		BcryptCost:             bcrypt.MinCost,
		ResetURLBase:           "https://auth.example/reset",
		VerifyURLBase:          "https://auth.example/verify",
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:  newMemStore(),
		tr:     &fakeTransactor{},
		clock:  newFakeClock(),
		sender: &fakeSender{},
		cfg:    testConfig(),
	}
	log := logging.NewNopLogger()
	notifier := NewNotifier(f.sender, f.cfg.ResetURLBase, f.cfg.VerifyURLBase, log)
	f.svc = NewAccountService(f.tr, f.store, f.cfg, notifier, f.clock, log)
	return f
}

const testPassword = "correct-horse-1"

func (f *fixture) register(t *testing.T, userName, email string) *models.Account {
	t.Helper()
	a, err := f.svc.RegisterAccount(context.Background(), userName, email, testPassword)
	if err != nil {
		t.Fatalf("RegisterAccount(%q): %v", userName, err)
	}
	return a
}

func (f *fixture) profile(t *testing.T, accountID string) models.Profile {
	t.Helper()
	f.store.mu.Lock()
	defer f.store.mu.Unlock()
	p, ok := f.store.profiles[accountID]
	if !ok {
		t.Fatalf("no profile for %s", accountID)
	}
	return p
}
