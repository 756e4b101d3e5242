package domain_test

import (
	"context"
	"sync"
	"testing"

	"conference-central/internal/domain"
	"conference-central/internal/storage"
)

func TestWishlistAddIsIdempotent(t *testing.T) {
	f := newFixture()
	conf := f.conference(t, "GopherCon", "Denver", 10)
	sess := f.session(t, conf, "Generics", "Ian", "Talk", "10:00")
	w := domain.NewWishlistLedger(f.st)
	ctx := context.Background()

	for range 2 {
		got, err := w.Add(ctx, attendee, sess.Key)
		if err != nil {
			t.Fatalf("add: %v", err)
		}
		if got != sess.Key {
			t.Fatalf("unexpected key %+v", got)
		}
	}
	prof, _ := f.st.GetProfile(ctx, attendee.UserID)
	if len(prof.SessionKeysWishlist) != 1 {
		t.Fatalf("expected one wishlist entry, got %v", prof.SessionKeysWishlist)
	}
}

func TestWishlistAddUnknownSession(t *testing.T) {
	f := newFixture()
	conf := f.conference(t, "GopherCon", "Denver", 10)
	w := domain.NewWishlistLedger(f.st)

	_, err := w.Add(context.Background(), attendee, domain.SessionKey{Conference: conf.Key, ID: "nope"})
	if !domain.IsCode(err, domain.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	prof, _ := f.st.GetProfile(context.Background(), attendee.UserID)
	if prof != nil && len(prof.SessionKeysWishlist) != 0 {
		t.Fatalf("wishlist changed: %v", prof.SessionKeysWishlist)
	}
}

func TestWishlistSessionsFiltered(t *testing.T) {
	f := newFixture()
	conf := f.conference(t, "GopherCon", "Denver", 10)
	talk := f.session(t, conf, "Generics", "Ian", "Talk", "10:00")
	workshop := f.session(t, conf, "Fuzzing", "Katie", "Workshop", "13:00")
	w := domain.NewWishlistLedger(f.st)
	ctx := context.Background()

	for _, s := range []domain.Session{talk, workshop} {
		if _, err := w.Add(ctx, attendee, s.Key); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	all, err := w.Sessions(ctx, attendee, domain.SessionFilter{})
	if err != nil || len(all) != 2 {
		t.Fatalf("expected 2 sessions, got %d %v", len(all), err)
	}
	byType, _ := w.Sessions(ctx, attendee, domain.SessionFilter{TypeOfSession: "Workshop"})
	if len(byType) != 1 || byType[0].Key != workshop.Key {
		t.Fatalf("unexpected by type %+v", byType)
	}
	bySpeaker, _ := w.Sessions(ctx, attendee, domain.SessionFilter{Speaker: "Ian"})
	if len(bySpeaker) != 1 || bySpeaker[0].Key != talk.Key {
		t.Fatalf("unexpected by speaker %+v", bySpeaker)
	}

	empty, err := w.Sessions(ctx, organizer, domain.SessionFilter{})
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty wishlist, got %+v %v", empty, err)
	}
}

// registeringStore runs register once, right after the first session lookup,
// the way a registration request landing mid-flight would.
type registeringStore struct {
	*storage.MemoryStore
	once     sync.Once
	register func()
}

func (s *registeringStore) GetSession(ctx context.Context, key domain.SessionKey) (*domain.Session, error) {
	sess, err := s.MemoryStore.GetSession(ctx, key)
	s.once.Do(s.register)
	return sess, err
}

func TestWishlistAddKeepsConcurrentRegistration(t *testing.T) {
	f := newFixture()
	conf := f.conference(t, "GopherCon", "Denver", 3)
	sess := f.session(t, conf, "Generics", "Ian", "Talk", "10:00")
	ctx := context.Background()
	if _, err := domain.NewProfileService(f.st).GetProfile(ctx, attendee); err != nil {
		t.Fatalf("profile: %v", err)
	}

	st := &registeringStore{MemoryStore: f.st}
	st.register = func() {
		if _, err := domain.NewRegistrationLedger(f.st).Register(ctx, attendee, conf.Key); err != nil {
			t.Errorf("register: %v", err)
		}
	}
	if _, err := domain.NewWishlistLedger(st).Add(ctx, attendee, sess.Key); err != nil {
		t.Fatalf("add: %v", err)
	}

	got, _ := f.st.GetConference(ctx, conf.Key)
	prof, _ := f.st.GetProfile(ctx, attendee.UserID)
	if got.SeatsAvailable != 2 || !prof.Attends(conf.Key) {
		t.Fatalf("seat taken but attendance lost: seats=%d attends=%t", got.SeatsAvailable, prof.Attends(conf.Key))
	}
	if !prof.Wishes(sess.Key) {
		t.Fatalf("wishlist entry lost: %v", prof.SessionKeysWishlist)
	}
}
