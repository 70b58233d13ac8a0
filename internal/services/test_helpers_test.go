package services

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/BradenHooton/sentinel/internal/models"
	"github.com/google/uuid"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeClock is a settable clock for time-dependent services
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(start time.Time) *fakeClock {
	return &fakeClock{now: start}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memWindowStore is an in-memory WindowCounterStore
type memWindowStore struct {
	mu               sync.Mutex
	rows             map[string]models.WindowCounter
	err              error
	conflictOnInsert int
	updates          int
}

func newMemWindowStore() *memWindowStore {
	return &memWindowStore{rows: make(map[string]models.WindowCounter)}
}

func windowKey(identifier, category string) string {
	return category + "|" + identifier
}

func (m *memWindowStore) Get(_ context.Context, identifier, category string) (*models.WindowCounter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	row, ok := m.rows[windowKey(identifier, category)]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &row, nil
}

func (m *memWindowStore) Update(_ context.Context, identifier, category string, mutate func(*models.WindowCounter)) (*models.WindowCounter, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.updates++

	key := windowKey(identifier, category)
	row, ok := m.rows[key]
	if !ok {
		if m.conflictOnInsert > 0 {
			// Simulate a concurrent writer winning the insert
			m.conflictOnInsert--
			m.rows[key] = models.WindowCounter{Identifier: identifier, Category: category, Count: 1,
				WindowStartAt: time.Now(), LastAttemptAt: time.Now()}
			return nil, models.ErrConflict
		}
		row = models.WindowCounter{Identifier: identifier, Category: category}
	}
	mutate(&row)
	m.rows[key] = row
	out := row
	return &out, nil
}

func (m *memWindowStore) Block(_ context.Context, identifier, category string, windowStart, blockedUntil time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return false, m.err
	}
	key := windowKey(identifier, category)
	row, ok := m.rows[key]
	if !ok || !row.WindowStartAt.Equal(windowStart) || row.BlockedUntil != nil {
		return false, nil
	}
	row.BlockedUntil = &blockedUntil
	m.rows[key] = row
	return true, nil
}

func (m *memWindowStore) DeleteStale(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	var n int64
	for k, row := range m.rows {
		if row.WindowStartAt.Before(cutoff) {
			delete(m.rows, k)
			n++
		}
	}
	return n, nil
}

// memLockoutRepo is an in-memory LockoutRepository
type memLockoutRepo struct {
	mu      sync.Mutex
	rows    map[string]models.LockoutRecord
	err     error
	updates int
}

func newMemLockoutRepo() *memLockoutRepo {
	return &memLockoutRepo{rows: make(map[string]models.LockoutRecord)}
}

func (m *memLockoutRepo) Get(_ context.Context, accountID string) (*models.LockoutRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	row, ok := m.rows[accountID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &row, nil
}

func (m *memLockoutRepo) Update(_ context.Context, accountID string, mutate func(*models.LockoutRecord)) (*models.LockoutRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	m.updates++
	row, ok := m.rows[accountID]
	if !ok {
		row = models.LockoutRecord{AccountID: accountID}
	}
	mutate(&row)
	m.rows[accountID] = row
	out := row
	return &out, nil
}

// memResetTokenRepo is an in-memory ResetTokenRepository
type memResetTokenRepo struct {
	mu     sync.Mutex
	tokens []*models.ResetToken
	err    error
}

func (m *memResetTokenRepo) CreateReplacingLive(_ context.Context, token *models.ResetToken) (*models.ResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, t := range m.tokens {
		if t.AccountID == token.AccountID {
			t.Used = true
		}
	}
	stored := *token
	stored.ID = uuid.New().String()
	m.tokens = append(m.tokens, &stored)
	out := stored
	return &out, nil
}

func (m *memResetTokenRepo) GetByHash(_ context.Context, tokenHash string) (*models.ResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, t := range m.tokens {
		if t.TokenHash == tokenHash {
			out := *t
			return &out, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memResetTokenRepo) MarkUsed(_ context.Context, tokenHash string, now time.Time) (*models.ResetToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, t := range m.tokens {
		if t.TokenHash == tokenHash && !t.Used && !now.After(t.ExpiresAt) {
			t.Used = true
			out := *t
			return &out, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memResetTokenRepo) InvalidateAll(_ context.Context, accountID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for _, t := range m.tokens {
		if t.AccountID == accountID && !t.Used {
			t.Used = true
			n++
		}
	}
	return n, nil
}

func (m *memResetTokenRepo) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.tokens[:0]
	var n int64
	for _, t := range m.tokens {
		if t.ExpiresAt.Before(now) {
			n++
			continue
		}
		kept = append(kept, t)
	}
	m.tokens = kept
	return n, nil
}

func (m *memResetTokenRepo) liveCount(accountID string, now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.tokens {
		if t.AccountID == accountID && t.IsValid(now) {
			n++
		}
	}
	return n
}

// memDeviceRepo is an in-memory DeviceRepository
type memDeviceRepo struct {
	mu               sync.Mutex
	devices          map[string]*models.Device
	err              error
	conflictOnCreate bool
}

func newMemDeviceRepo() *memDeviceRepo {
	return &memDeviceRepo{devices: make(map[string]*models.Device)}
}

func (m *memDeviceRepo) find(accountID, fingerprint string) *models.Device {
	for _, d := range m.devices {
		if d.AccountID == accountID && d.Fingerprint == fingerprint {
			return d
		}
	}
	return nil
}

func (m *memDeviceRepo) GetByID(_ context.Context, id string) (*models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := *d
	return &out, nil
}

func (m *memDeviceRepo) GetByFingerprint(_ context.Context, accountID, fingerprint string) (*models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	d := m.find(accountID, fingerprint)
	if d == nil {
		return nil, models.ErrNotFound
	}
	out := *d
	return &out, nil
}

func (m *memDeviceRepo) ListByAccount(_ context.Context, accountID string) ([]*models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Device, 0)
	for _, d := range m.devices {
		if d.AccountID == accountID {
			c := *d
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeenAt.After(out[j].LastSeenAt) })
	return out, nil
}

func (m *memDeviceRepo) Create(_ context.Context, d *models.Device) (*models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.conflictOnCreate {
		m.conflictOnCreate = false
		winner := *d
		winner.ID = uuid.New().String()
		m.devices[winner.ID] = &winner
		return nil, models.ErrConflict
	}
	if m.find(d.AccountID, d.Fingerprint) != nil {
		return nil, models.ErrConflict
	}
	stored := *d
	stored.ID = uuid.New().String()
	m.devices[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (m *memDeviceRepo) RecordSighting(_ context.Context, id, ip string, seenAt time.Time) (*models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	d.LastSeenAt = seenAt
	d.LastUsedIP = ip
	d.TotalLogins++
	d.IsActive = true
	out := *d
	return &out, nil
}

func (m *memDeviceRepo) SetTrusted(_ context.Context, accountID, fingerprint string) (*models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.find(accountID, fingerprint)
	if d == nil || !d.IsActive {
		return nil, models.ErrNotFound
	}
	d.IsTrusted = true
	out := *d
	return &out, nil
}

func (m *memDeviceRepo) Deactivate(_ context.Context, id string) (*models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	d.IsActive = false
	d.IsTrusted = false
	out := *d
	return &out, nil
}

func (m *memDeviceRepo) DeleteInactive(_ context.Context, lastSeenBefore time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, d := range m.devices {
		if d.LastSeenAt.Before(lastSeenBefore) {
			delete(m.devices, id)
			n++
		}
	}
	return n, nil
}

// memEventStore is an in-memory event log. It satisfies SecurityEventWriter,
// LoginHistoryReader and SecurityEventStore.
type memEventStore struct {
	mu      sync.Mutex
	events  []*models.SecurityEvent
	err     error
	batches map[string][]string
}

func (m *memEventStore) Create(_ context.Context, e *models.SecurityEvent) (*models.SecurityEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	stored := *e
	if stored.ID == "" {
		stored.ID = uuid.New().String()
	}
	m.events = append(m.events, &stored)
	return &stored, nil
}

// Record lets the store stand in for an EventRecorder
func (m *memEventStore) Record(ctx context.Context, e *models.SecurityEvent) {
	_, _ = m.Create(ctx, e)
}

func (m *memEventStore) ofType(eventType string) []*models.SecurityEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.SecurityEvent, 0)
	for _, e := range m.events {
		if e.EventType == eventType {
			out = append(out, e)
		}
	}
	return out
}

func (m *memEventStore) ListSince(_ context.Context, since time.Time, limit int) ([]*models.SecurityEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]*models.SecurityEvent, 0)
	for _, e := range m.events {
		if !e.CreatedAt.Before(since) {
			c := *e
			out = append(out, &c)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memEventStore) ListSuspicious(_ context.Context, since time.Time, limit int) ([]*models.SecurityEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.SecurityEvent, 0)
	for _, e := range m.events {
		if e.IsSuspicious && !e.CreatedAt.Before(since) && len(out) < limit {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *memEventStore) ListSuccessfulLogins(_ context.Context, accountID string, since time.Time, limit int) ([]*models.SecurityEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := make([]*models.SecurityEvent, 0)
	for _, e := range m.events {
		if e.AccountKey() == accountID && e.EventType == models.EventTypeLoginSuccess && e.IsSuccessful &&
			!e.CreatedAt.Before(since) && len(out) < limit {
			c := *e
			out = append(out, &c)
		}
	}
	return out, nil
}

func (m *memEventStore) CountFailedLogins(_ context.Context, accountID string, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return 0, m.err
	}
	n := 0
	for _, e := range m.events {
		if e.AccountKey() == accountID && e.IsFailedLogin() && !e.CreatedAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *memEventStore) MarkSuspicious(_ context.Context, id, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.events {
		if e.ID == id {
			e.IsSuspicious = true
			e.SuspiciousReason = &reason
			return nil
		}
	}
	return models.ErrNotFound
}

func (m *memEventStore) MarkSuspiciousBatch(_ context.Context, ids []string, reason string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.batches == nil {
		m.batches = make(map[string][]string)
	}
	m.batches[reason] = append(m.batches[reason], ids...)

	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	var n int64
	for _, e := range m.events {
		if wanted[e.ID] {
			e.IsSuspicious = true
			r := reason
			e.SuspiciousReason = &r
			n++
		}
	}
	return n, nil
}

// memAccountRepo is an in-memory account store
type memAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	err      error
}

func newMemAccountRepo(accounts ...*models.Account) *memAccountRepo {
	m := &memAccountRepo{accounts: make(map[string]*models.Account)}
	for _, a := range accounts {
		m.accounts[a.ID] = a
	}
	return m
}

func (m *memAccountRepo) GetByID(_ context.Context, id string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	a, ok := m.accounts[id]
	if !ok {
		return nil, models.ErrNotFound
	}
	out := *a
	return &out, nil
}

func (m *memAccountRepo) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for _, a := range m.accounts {
		if a.Email == email {
			out := *a
			return &out, nil
		}
	}
	return nil, models.ErrNotFound
}

func (m *memAccountRepo) UpdatePassword(_ context.Context, id, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[id]
	if !ok {
		return models.ErrNotFound
	}
	a.PasswordHash = passwordHash
	return nil
}

// MockLocationResolver implements LocationResolver for testing
type MockLocationResolver struct {
	ResolveFunc func(ctx context.Context, ip string) (*models.Location, error)
}

func (m *MockLocationResolver) Resolve(ctx context.Context, ip string) (*models.Location, error) {
	if m.ResolveFunc != nil {
		return m.ResolveFunc(ctx, ip)
	}
	return nil, nil
}

// recordingNotifier captures notifications
type recordingNotifier struct {
	mu    sync.Mutex
	calls []string
}

func (r *recordingNotifier) NotifyUnusualActivity(_ context.Context, accountID, description, _ string, _ *models.Location) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, accountID+": "+description)
}

// recordingMailer captures outgoing mail
type recordingMailer struct {
	mu     sync.Mutex
	sent   []sentMail
	resets []sentReset
	err    error
}

type sentMail struct {
	to, subject, html, text string
}

type sentReset struct {
	email, token string
	expiresAt    time.Time
}

func (r *recordingMailer) Send(_ context.Context, to, subject, htmlBody, textBody string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.sent = append(r.sent, sentMail{to, subject, htmlBody, textBody})
	return nil
}

func (r *recordingMailer) SendPasswordReset(_ context.Context, email, token string, expiresAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.resets = append(r.resets, sentReset{email, token, expiresAt})
	return nil
}
