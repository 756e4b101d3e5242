package storage

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"conference-central/internal/domain"
)

// MaxTransactionGroups is the number of entity groups a transaction may span.
const MaxTransactionGroups = 25

// MemoryStore is an in-process datastore used for local runs and tests.
type MemoryStore struct {
	mu          sync.Mutex
	seq         uint64
	profiles    map[string]domain.Profile
	conferences map[domain.ConferenceKey]memoryRecord[domain.Conference]
	sessions    map[domain.SessionKey]memoryRecord[domain.Session]
	maxGroups   int
}

type memoryRecord[T any] struct {
	seq   uint64
	value T
}

// MemoryOption configures a MemoryStore.
type MemoryOption func(*MemoryStore)

// WithMaxGroups limits how many entity groups one transaction may touch.
func WithMaxGroups(n int) MemoryOption {
	return func(m *MemoryStore) { m.maxGroups = n }
}

func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	m := &MemoryStore{
		profiles:    map[string]domain.Profile{},
		conferences: map[domain.ConferenceKey]memoryRecord[domain.Conference]{},
		sessions:    map[domain.SessionKey]memoryRecord[domain.Session]{},
		maxGroups:   MaxTransactionGroups,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *MemoryStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.profileLocked(userID), nil
}

func (m *MemoryStore) profileLocked(userID string) *domain.Profile {
	p, ok := m.profiles[userID]
	if !ok {
		return nil
	}
	c := p.Clone()
	return &c
}

func (m *MemoryStore) PutProfile(ctx context.Context, p domain.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.profiles[p.UserID] = p.Clone()
	return nil
}

func (m *MemoryStore) GetConference(ctx context.Context, key domain.ConferenceKey) (*domain.Conference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conferenceLocked(key), nil
}

func (m *MemoryStore) conferenceLocked(key domain.ConferenceKey) *domain.Conference {
	rec, ok := m.conferences[key]
	if !ok {
		return nil
	}
	c := rec.value.Clone()
	return &c
}

func (m *MemoryStore) GetConferences(ctx context.Context, keys []domain.ConferenceKey) ([]domain.Conference, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Conference, 0, len(keys))
	for _, k := range keys {
		if c := m.conferenceLocked(k); c != nil {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (m *MemoryStore) PutConference(ctx context.Context, c domain.Conference) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.putConferenceLocked(c)
	return nil
}

func (m *MemoryStore) putConferenceLocked(c domain.Conference) {
	rec, ok := m.conferences[c.Key]
	if !ok {
		m.seq++
		rec.seq = m.seq
	}
	rec.value = c.Clone()
	m.conferences[c.Key] = rec
}

func (m *MemoryStore) ConferencesByOrganizer(ctx context.Context, userID string) ([]domain.Conference, error) {
	return m.conferencesWhere(func(c domain.Conference) bool { return c.Key.OrganizerID == userID }), nil
}

func (m *MemoryStore) QueryConferences(ctx context.Context, plan domain.QueryPlan) ([]domain.Conference, error) {
	return plan.Apply(m.conferencesWhere(func(domain.Conference) bool { return true })), nil
}

func (m *MemoryStore) ConferencesWithSeats(ctx context.Context, min, max int) ([]domain.Conference, error) {
	return m.conferencesWhere(func(c domain.Conference) bool {
		return c.SeatsAvailable >= min && c.SeatsAvailable <= max
	}), nil
}

func (m *MemoryStore) conferencesWhere(keep func(domain.Conference) bool) []domain.Conference {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := make([]memoryRecord[domain.Conference], 0, len(m.conferences))
	for _, rec := range m.conferences {
		if keep(rec.value) {
			recs = append(recs, rec)
		}
	}
	slices.SortFunc(recs, func(a, b memoryRecord[domain.Conference]) int { return cmp.Compare(a.seq, b.seq) })
	out := make([]domain.Conference, len(recs))
	for i, rec := range recs {
		out[i] = rec.value.Clone()
	}
	return out
}

func (m *MemoryStore) GetSession(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[key]
	if !ok {
		return nil, nil
	}
	s := rec.value
	return &s, nil
}

func (m *MemoryStore) GetSessions(ctx context.Context, keys []domain.SessionKey) ([]domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Session, 0, len(keys))
	for _, k := range keys {
		if rec, ok := m.sessions[k]; ok {
			out = append(out, rec.value)
		}
	}
	return out, nil
}

func (m *MemoryStore) PutSession(ctx context.Context, s domain.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[s.Key]
	if !ok {
		m.seq++
		rec.seq = m.seq
	}
	rec.value = s
	m.sessions[s.Key] = rec
	return nil
}

func (m *MemoryStore) SessionsByConference(ctx context.Context, key domain.ConferenceKey, filter domain.SessionFilter) ([]domain.Session, error) {
	return m.sessionsWhere(func(s domain.Session) bool {
		return s.Key.Conference == key && filter.Match(s)
	}), nil
}

func (m *MemoryStore) Sessions(ctx context.Context, filter domain.SessionFilter) ([]domain.Session, error) {
	return m.sessionsWhere(filter.Match), nil
}

func (m *MemoryStore) sessionsWhere(keep func(domain.Session) bool) []domain.Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	recs := make([]memoryRecord[domain.Session], 0)
	for _, rec := range m.sessions {
		if keep(rec.value) {
			recs = append(recs, rec)
		}
	}
	slices.SortFunc(recs, func(a, b memoryRecord[domain.Session]) int { return cmp.Compare(a.seq, b.seq) })
	out := make([]domain.Session, len(recs))
	for i, rec := range recs {
		out[i] = rec.value
	}
	return out
}

func (m *MemoryStore) AllocateIDs(ctx context.Context, n int) ([]string, error) {
	return allocateIDs(n), nil
}

// RunInTransaction holds the store lock for the whole of fn, so transactions
// are serialized and never conflict.
func (m *MemoryStore) RunInTransaction(ctx context.Context, fn func(tx domain.Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	tx := &memoryTx{store: m, profiles: map[string]domain.Profile{}, conferences: map[domain.ConferenceKey]domain.Conference{}}
	if err := fn(tx); err != nil {
		return err
	}
	if n := len(tx.groups()); n > m.maxGroups {
		return domain.ErrTransactionScopeExceeded
	}
	for id, p := range tx.profiles {
		m.profiles[id] = p
	}
	for _, c := range tx.conferences {
		m.putConferenceLocked(c)
	}
	return nil
}

type memoryTx struct {
	store       *MemoryStore
	profiles    map[string]domain.Profile
	conferences map[domain.ConferenceKey]domain.Conference
}

func (t *memoryTx) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	if p, ok := t.profiles[userID]; ok {
		c := p.Clone()
		return &c, nil
	}
	return t.store.profileLocked(userID), nil
}

func (t *memoryTx) GetConference(ctx context.Context, key domain.ConferenceKey) (*domain.Conference, error) {
	if c, ok := t.conferences[key]; ok {
		cc := c.Clone()
		return &cc, nil
	}
	return t.store.conferenceLocked(key), nil
}

func (t *memoryTx) PutProfile(p domain.Profile) { t.profiles[p.UserID] = p.Clone() }

func (t *memoryTx) PutConference(c domain.Conference) { t.conferences[c.Key] = c.Clone() }

func (t *memoryTx) groups() map[string]struct{} {
	g := map[string]struct{}{}
	for id := range t.profiles {
		g[id] = struct{}{}
	}
	for k := range t.conferences {
		g[k.Group()] = struct{}{}
	}
	return g
}

func allocateIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = strings.ReplaceAll(uuid.NewString(), "-", "")
	}
	return ids
}
