package domain_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"conference-central/internal/domain"
	"conference-central/internal/storage"
)

type recordingQueue struct {
	mu    sync.Mutex
	tasks []domain.Task
	err   error
}

func (q *recordingQueue) EnqueueTask(ctx context.Context, task domain.Task) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, task)
	return nil
}

func (q *recordingQueue) named(name string) []domain.Task {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []domain.Task
	for _, t := range q.tasks {
		if t.Name == name {
			out = append(out, t)
		}
	}
	return out
}

var errQueueDown = errors.New("queue down")

var (
	organizer = domain.Identity{UserID: "org", Email: "org@example.com", DisplayName: "Olive"}
	attendee  = domain.Identity{UserID: "att", Email: "att@example.com", DisplayName: "Art"}
)

type fixture struct {
	st       *storage.MemoryStore
	queue    *recordingQueue
	cache    *storage.MemoryCache
	confs    domain.ConferenceService
	sessions domain.SessionService
}

func newFixture() fixture {
	st := storage.NewMemoryStore()
	q := &recordingQueue{}
	return fixture{
		st:       st,
		queue:    q,
		cache:    storage.NewMemoryCache(),
		confs:    domain.NewConferenceService(st, q),
		sessions: domain.NewSessionService(st, q),
	}
}

func (f fixture) conference(t *testing.T, name, city string, seats int) domain.Conference {
	t.Helper()
	c, err := f.confs.CreateConference(context.Background(), organizer, domain.ConferenceInput{
		Name:         name,
		City:         city,
		MaxAttendees: seats,
	})
	if err != nil {
		t.Fatalf("create conference: %v", err)
	}
	return c
}

func (f fixture) session(t *testing.T, conf domain.Conference, name, speaker, typ, start string) domain.Session {
	t.Helper()
	s, err := f.sessions.CreateSession(context.Background(), organizer, domain.SessionInput{
		Conference:    conf.Key,
		Name:          name,
		Speaker:       speaker,
		TypeOfSession: typ,
		StartTime:     start,
	})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	return s
}
