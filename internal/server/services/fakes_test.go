package services

import (
	"context"
	"database/sql"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jonathandlab/coyn/internal/common"
	"github.com/jonathandlab/coyn/internal/dbx"
	"github.com/jonathandlab/coyn/internal/logging"
	"github.com/jonathandlab/coyn/internal/server/auth"
	"github.com/jonathandlab/coyn/internal/server/config"
	"github.com/jonathandlab/coyn/internal/server/metrics"
	"github.com/jonathandlab/coyn/internal/server/models"
	"github.com/jonathandlab/coyn/internal/server/repositories/refreshtokens"
	"github.com/jonathandlab/coyn/internal/server/repositories/users"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// --- transactor ---

type fakeTransactor struct {
	mu       sync.Mutex
	txCalls  int
	beginErr error
}

func (f *fakeTransactor) Conn() dbx.DBTX { return nil }

func (f *fakeTransactor) WithTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	f.mu.Lock()
	f.txCalls++
	err := f.beginErr
	f.mu.Unlock()
	if err != nil {
		return err
	}
	return fn(ctx, nil)
}

// --- repositories ---

type fakeRepoManager struct {
	users  *fakeUsersRepo
	tokens *fakeTokensRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error { return nil }
func (m *fakeRepoManager) Users(dbx.DBTX) users.Repository { return m.users }
func (m *fakeRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository {
	return m.tokens
}

type fakeUsersRepo struct {
	mu        sync.Mutex
	nextID    int64
	byID      map[int64]*models.User
	roles     map[int64][]string
	createErr error
	rolesErr  error
	assignErr error
}

func newFakeUsersRepo() *fakeUsersRepo {
	return &fakeUsersRepo{byID: map[int64]*models.User{}, roles: map[int64][]string{}}
}

func (f *fakeUsersRepo) add(email string, roles ...string) *models.User {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	u := &models.User{ID: f.nextID, Email: email}
	f.byID[u.ID] = u
	f.roles[u.ID] = roles
	return u
}

func (f *fakeUsersRepo) setRoles(id int64, roles ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roles[id] = roles
}

func (f *fakeUsersRepo) Create(_ context.Context, u *models.User) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	for _, existing := range f.byID {
		if existing.Email == u.Email {
			return nil, common.ErrorAlreadyExists
		}
	}
	f.nextID++
	u.ID = f.nextID
	f.byID[u.ID] = u
	return u, nil
}

func (f *fakeUsersRepo) GetByEmail(_ context.Context, email string) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, common.ErrPrincipalNotFound
}

func (f *fakeUsersRepo) GetByID(_ context.Context, id int64) (*models.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if u, ok := f.byID[id]; ok {
		return u, nil
	}
	return nil, common.ErrPrincipalNotFound
}

func (f *fakeUsersRepo) Roles(_ context.Context, id int64) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rolesErr != nil {
		return nil, f.rolesErr
	}
	return append([]string{}, f.roles[id]...), nil
}

func (f *fakeUsersRepo) AssignRole(_ context.Context, id int64, role string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.assignErr != nil {
		return f.assignErr
	}
	f.roles[id] = append(f.roles[id], role)
	return nil
}

// fakeTokensRepo mirrors the compare-and-swap semantics of the PostgreSQL
// store: UpdateExpiration only succeeds for the expected generation.
type fakeTokensRepo struct {
	mu        sync.Mutex
	nextID    int64
	records   map[int64]*models.RefreshToken
	createErr error
	findErr   error
	creates   int
	finds     int
}

func newFakeTokensRepo() *fakeTokensRepo {
	return &fakeTokensRepo{records: map[int64]*models.RefreshToken{}}
}

func (f *fakeTokensRepo) Create(_ context.Context, userID int64, expiresAt time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.nextID++
	f.records[f.nextID] = &models.RefreshToken{ID: f.nextID, UserID: userID, ExpiresAt: expiresAt}
	return f.nextID, nil
}

func (f *fakeTokensRepo) FindByID(_ context.Context, id int64) (*models.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finds++
	if f.findErr != nil {
		return nil, f.findErr
	}
	rt, ok := f.records[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := *rt
	return &cp, nil
}

func (f *fakeTokensRepo) FindByIDForUpdate(ctx context.Context, id int64) (*models.RefreshToken, error) {
	return f.FindByID(ctx, id)
}

func (f *fakeTokensRepo) UpdateExpiration(_ context.Context, id, expected int64, expiresAt time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rt, ok := f.records[id]
	if !ok {
		return 0, common.ErrorNotFound
	}
	if rt.Generation != expected {
		return 0, common.ErrVersionConflict
	}
	rt.Generation++
	rt.ExpiresAt = expiresAt
	return rt.Generation, nil
}

func (f *fakeTokensRepo) Revoke(_ context.Context, id int64, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rt, ok := f.records[id]
	if !ok {
		return common.ErrorNotFound
	}
	if rt.RevokedAt == nil {
		rt.RevokedAt = &at
	}
	return nil
}

func (f *fakeTokensRepo) get(id int64) models.RefreshToken {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.records[id]
}

func (f *fakeTokensRepo) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records)
}

// --- clock and harness ---

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type harness struct {
	clock    *fakeClock
	tx       *fakeTransactor
	users    *fakeUsersRepo
	tokens   *fakeTokensRepo
	signer   *auth.Signer
	denylist *auth.Denylist
	sessions *SessionService
	metrics  *metrics.Recorder
	reg      *prometheus.Registry
	logs     *observer.ObservedLogs
}

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		clock:    &fakeClock{t: t0},
		tx:       &fakeTransactor{},
		users:    newFakeUsersRepo(),
		tokens:   newFakeTokensRepo(),
		denylist: auth.NewDenylist(),
		reg:      prometheus.NewRegistry(),
	}
	h.metrics = metrics.NewRecorder(h.reg)
	signer, err := auth.NewSigner([]byte("test-secret"), h.clock.Now)
	require.NoError(t, err)
	h.signer = signer

	core, logs := observer.New(zapcore.DebugLevel)
	h.logs = logs
	log := logging.NewZapLogger(zap.New(core))

	cfg := &config.Config{
		AccessTokenValidityDuration:  3 * time.Minute,
		RefreshTokenValidityDuration: 5 * time.Minute,
	}
	repos := &fakeRepoManager{users: h.users, tokens: h.tokens}
	h.sessions = NewSessionService(h.tx, repos, signer, h.denylist, cfg, log, h.metrics)
	return h
}

// reasons returns the "reason" field of every log entry with the given message.
func (h *harness) reasons(msg string) []string {
	var out []string
	for _, e := range h.logs.FilterMessage(msg).All() {
		if r, ok := e.ContextMap()["reason"].(string); ok {
			out = append(out, r)
		}
	}
	return out
}

// counter reads one labelled counter value from the harness registry.
func (h *harness) counter(t *testing.T, name, label, value string) float64 {
	t.Helper()
	mfs, err := h.reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
