package auth

import (
	"context"
	"sync"
	"time"
)

// memStore is the in-memory Store used across this package's tests. Consume
// keeps the exactly-one-winner contract under the store mutex.
type memStore struct {
	mu      sync.Mutex
	users   map[string]*Identity
	tokens  map[string]*RefreshTokenRecord // keyed by hash
	byID    map[string]*RefreshTokenRecord
	devices map[string]*Device
	audits  []*AuditEntry
}

func newMemStore() *memStore {
	return &memStore{
		users:   make(map[string]*Identity),
		tokens:  make(map[string]*RefreshTokenRecord),
		byID:    make(map[string]*RefreshTokenRecord),
		devices: make(map[string]*Device),
	}
}

func (m *memStore) addUser(u *Identity) { m.users[u.ID] = u }

func (m *memStore) Users(context.Context) UserStore                 { return (*memUsers)(m) }
func (m *memStore) RefreshTokens(context.Context) RefreshTokenStore { return (*memTokens)(m) }
func (m *memStore) Devices(context.Context) DeviceStore             { return (*memDevices)(m) }
func (m *memStore) Audit(context.Context) AuditStore                { return (*memAudit)(m) }

type memUsers memStore

func (m *memUsers) Find(_ context.Context, id string) (*Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok || u.DeletedAt != nil {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUsers) FindByEmail(_ context.Context, email string) (*Identity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Email == email && u.DeletedAt == nil {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

type memTokens memStore

func (m *memTokens) Create(_ context.Context, rec *RefreshTokenRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *rec
	m.tokens[cp.TokenHash] = &cp
	m.byID[cp.ID] = &cp
	return nil
}

func (m *memTokens) FindByHash(_ context.Context, hash string) (*RefreshTokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tokens[hash]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *rec
	return &cp, nil
}

func (m *memTokens) Consume(_ context.Context, hash string, now time.Time, replacement *RefreshTokenRecord) (*RefreshTokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tokens[hash]
	if !ok || rec.Revoked || !rec.ExpiresAt.After(now) {
		return nil, ErrNotFound
	}
	rec.Revoked = true
	id := replacement.ID
	rec.ReplacedBy = &id
	cp := *replacement
	m.tokens[cp.TokenHash] = &cp
	m.byID[cp.ID] = &cp
	out := *rec
	return &out, nil
}

func (m *memTokens) Revoke(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.tokens[hash]; ok {
		rec.Revoked = true
	}
	return nil
}

func (m *memTokens) RevokeChain(_ context.Context, hash string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.tokens[hash]
	if !ok {
		return 0, ErrNotFound
	}
	revoked := 0
	for rec != nil {
		if !rec.Revoked {
			rec.Revoked = true
			revoked++
		}
		if rec.ReplacedBy == nil {
			break
		}
		rec = m.byID[*rec.ReplacedBy]
	}
	return revoked, nil
}

type memDevices memStore

func (m *memDevices) Create(_ context.Context, d *Device) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.devices[cp.ID] = &cp
	return nil
}

func (m *memDevices) Find(_ context.Context, id string) (*Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.devices[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *memDevices) UpdateLastSeen(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.devices[id]; ok {
		d.LastSeenAt = &at
	}
	return nil
}

type memAudit memStore

func (m *memAudit) Append(_ context.Context, entry *AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.audits = append(m.audits, &cp)
	return nil
}

func (m *memAudit) List(_ context.Context, limit, offset int) ([]*AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if offset >= len(m.audits) {
		return nil, nil
	}
	out := m.audits[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	cp := make([]*AuditEntry, len(out))
	copy(cp, out)
	return cp, nil
}
