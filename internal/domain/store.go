package domain

import "context"

// Store is the datastore the services run against. Get methods return a nil
// entity and nil error when the entity does not exist.
type Store interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	PutProfile(ctx context.Context, p Profile) error

	GetConference(ctx context.Context, key ConferenceKey) (*Conference, error)
	GetConferences(ctx context.Context, keys []ConferenceKey) ([]Conference, error)
	PutConference(ctx context.Context, c Conference) error
	// ConferencesByOrganizer is the ancestor query under a profile.
	ConferencesByOrganizer(ctx context.Context, userID string) ([]Conference, error)
	QueryConferences(ctx context.Context, plan QueryPlan) ([]Conference, error)
	// ConferencesWithSeats returns conferences with min <= seatsAvailable <= max.
	ConferencesWithSeats(ctx context.Context, min, max int) ([]Conference, error)

	GetSession(ctx context.Context, key SessionKey) (*Session, error)
	GetSessions(ctx context.Context, keys []SessionKey) ([]Session, error)
	PutSession(ctx context.Context, s Session) error
	// SessionsByConference is the ancestor query under a conference, optionally
	// narrowed by equality filters.
	SessionsByConference(ctx context.Context, key ConferenceKey, filter SessionFilter) ([]Session, error)
	// Sessions queries sessions across all conferences.
	Sessions(ctx context.Context, filter SessionFilter) ([]Session, error)

	// AllocateIDs reserves n unique entity ids.
	AllocateIDs(ctx context.Context, n int) ([]string, error)

	// RunInTransaction runs fn atomically. Writes staged through tx commit
	// together or not at all. fn may be invoked more than once when the store
	// retries after a concurrency conflict.
	RunInTransaction(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the view of the store inside a transaction.
type Tx interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	GetConference(ctx context.Context, key ConferenceKey) (*Conference, error)
	PutProfile(p Profile)
	PutConference(c Conference)
}

// SessionFilter holds optional equality filters on sessions.
type SessionFilter struct {
	Speaker       string
	TypeOfSession string
}

func (f SessionFilter) Match(s Session) bool {
	if f.Speaker != "" && s.Speaker != f.Speaker {
		return false
	}
	if f.TypeOfSession != "" && s.TypeOfSession != f.TypeOfSession {
		return false
	}
	return true
}

// Cache is the side-channel key-value store holding the published read model.
type Cache interface {
	Set(ctx context.Context, key, value string) error
	// Get returns ok=false when the key is absent.
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Delete(ctx context.Context, key string) error
}

// Task is a named background job with flat string parameters.
type Task struct {
	Name   string            `json:"name"`
	Params map[string]string `json:"params,omitempty"`
}

const (
	TaskSendConfirmationEmail = "send_confirmation_email"
	TaskFeaturedSpeaker       = "featured_speaker"
	TaskSetAnnouncement       = "set_announcement"
)

// TaskQueue enqueues background jobs on a best-effort basis.
type TaskQueue interface {
	EnqueueTask(ctx context.Context, task Task) error
}

// Mailer sends plain-text email.
type Mailer interface {
	Send(ctx context.Context, to, subject, body string) error
}
