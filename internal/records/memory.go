package records

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/keithlinneman/themehub/internal/xerrors"
)

// Memory is a Store held in process memory.
type Memory struct {
	mu       sync.Mutex
	themes   map[string]ThemeRecord
	users    map[string]User
	websites map[string]Website
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		themes:   make(map[string]ThemeRecord),
		users:    make(map[string]User),
		websites: make(map[string]Website),
	}
}

func (m *Memory) RecordSwap(ctx context.Context, website, theme string, at time.Time) (ThemeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.themes[website]
	prev := theme
	if ok {
		prev = rec.CurrentTheme
	}
	rec.Website = website
	rec.History = append(append([]HistoryEntry(nil), rec.History...), HistoryEntry{Theme: prev, DateSet: at})
	rec.CurrentTheme = theme
	rec.Version++
	rec.UpdatedAt = at
	m.themes[website] = rec
	return cloneTheme(rec), nil
}

func (m *Memory) GetTheme(ctx context.Context, website string) (ThemeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.themes[website]
	if !ok {
		return ThemeRecord{}, xerrors.NotFound("no theme record for website %q", website)
	}
	return cloneTheme(rec), nil
}

func cloneTheme(r ThemeRecord) ThemeRecord {
	r.History = append([]HistoryEntry(nil), r.History...)
	return r
}

func (m *Memory) CreateUser(ctx context.Context, u User) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u.Email = NormalizeEmail(u.Email)
	for _, existing := range m.users {
		if existing.Email == u.Email {
			return User{}, xerrors.Conflict("user %s already exists", u.Email)
		}
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	m.users[u.ID] = u
	return u, nil
}

func (m *Memory) UserByID(ctx context.Context, id string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, xerrors.NotFound("user %s not found", id)
	}
	return u, nil
}

func (m *Memory) UserByEmail(ctx context.Context, email string) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = NormalizeEmail(email)
	for _, u := range m.users {
		if u.Email == email {
			return u, nil
		}
	}
	return User{}, xerrors.NotFound("user %s not found", email)
}

func (m *Memory) ListUsers(ctx context.Context) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Email < out[j].Email
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) UpdateUser(ctx context.Context, id string, upd UserUpdate, at time.Time) (User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return User{}, xerrors.NotFound("user %s not found", id)
	}
	if upd.Email != "" {
		email := NormalizeEmail(upd.Email)
		for oid, other := range m.users {
			if oid != id && other.Email == email {
				return User{}, xerrors.Conflict("user %s already exists", email)
			}
		}
		u.Email = email
	}
	if upd.Name != "" {
		u.Name = upd.Name
	}
	if upd.Phone != "" {
		u.Phone = upd.Phone
	}
	u.UpdatedAt = at
	m.users[id] = u
	return u, nil
}

func (m *Memory) SetPassword(ctx context.Context, id, hash string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return xerrors.NotFound("user %s not found", id)
	}
	u.PasswordHash = hash
	u.UpdatedAt = at
	m.users[id] = u
	return nil
}

func (m *Memory) CountUsersByRole(ctx context.Context, role string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, u := range m.users {
		if u.Role == role {
			n++
		}
	}
	return n, nil
}

func (m *Memory) CreateWebsite(ctx context.Context, w Website) (Website, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.websites {
		if existing.Bucket == w.Bucket {
			return Website{}, xerrors.Conflict("website for bucket %s already exists", w.Bucket)
		}
	}
	if w.ID == "" {
		w.ID = uuid.NewString()
	}
	m.websites[w.ID] = w
	return w, nil
}

func (m *Memory) WebsiteByID(ctx context.Context, id string) (Website, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.websites[id]
	if !ok {
		return Website{}, xerrors.NotFound("website %s not found", id)
	}
	return w, nil
}

func (m *Memory) ListWebsites(ctx context.Context) ([]Website, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Website, 0, len(m.websites))
	for _, w := range m.websites {
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Bucket < out[j].Bucket })
	return out, nil
}

func (m *Memory) DeleteWebsite(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.websites[id]; !ok {
		return xerrors.NotFound("website %s not found", id)
	}
	delete(m.websites, id)
	return nil
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close(context.Context) error { return nil }
