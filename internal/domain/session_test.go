package domain_test

import (
	"context"
	"testing"

	"conference-central/internal/domain"
)

func TestCreateSessionOnlyByOrganizer(t *testing.T) {
	f := newFixture()
	conf := f.conference(t, "GopherCon", "Denver", 10)

	_, err := f.sessions.CreateSession(context.Background(), attendee, domain.SessionInput{Conference: conf.Key, Name: "Sneaky"})
	if !domain.IsCode(err, domain.CodeUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	_, err = f.sessions.CreateSession(context.Background(), organizer, domain.SessionInput{Conference: domain.ConferenceKey{OrganizerID: "org", ID: "gone"}, Name: "x"})
	if !domain.IsCode(err, domain.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateSessionParsesDateAndTime(t *testing.T) {
	f := newFixture()
	conf := f.conference(t, "GopherCon", "Denver", 10)

	s, err := f.sessions.CreateSession(context.Background(), organizer, domain.SessionInput{
		Conference: conf.Key,
		Name:       "Keynote",
		Date:       "2026-07-14",
		StartTime:  "09:30",
		Duration:   45,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if s.Date == nil || s.Date.Day() != 14 || s.StartTime == nil || *s.StartTime != 570 {
		t.Fatalf("unexpected date/time %+v", s)
	}
	if domain.FormatStartTime(s.StartTime) != "09:30" {
		t.Fatalf("unexpected formatted time %q", domain.FormatStartTime(s.StartTime))
	}
	if s.Key.Conference != conf.Key {
		t.Fatalf("session not under conference: %+v", s.Key)
	}

	_, err = f.sessions.CreateSession(context.Background(), organizer, domain.SessionInput{Conference: conf.Key, Name: "x", StartTime: "9.30am"})
	if !domain.IsCode(err, domain.CodeInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestSessionQueries(t *testing.T) {
	f := newFixture()
	a := f.conference(t, "A", "Denver", 10)
	b := f.conference(t, "B", "Denver", 10)
	f.session(t, a, "Morning workshop", "Katie", "Workshop", "09:00")
	f.session(t, a, "Morning talk", "Ian", "Talk", "10:00")
	f.session(t, a, "Evening talk", "Ian", "Talk", "19:30")
	f.session(t, b, "Untimed", "Ian", "Talk", "")
	ctx := context.Background()

	talks, err := f.sessions.ConferenceSessions(ctx, a.Key, "Talk")
	if err != nil || len(talks) != 2 {
		t.Fatalf("expected 2 talks, got %d %v", len(talks), err)
	}
	all, _ := f.sessions.ConferenceSessions(ctx, a.Key, "")
	if len(all) != 3 {
		t.Fatalf("expected 3 sessions, got %d", len(all))
	}
	if _, err := f.sessions.ConferenceSessions(ctx, domain.ConferenceKey{OrganizerID: "x", ID: "y"}, ""); !domain.IsCode(err, domain.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	ian, _ := f.sessions.SessionsBySpeaker(ctx, "Ian")
	if len(ian) != 3 {
		t.Fatalf("expected 3 sessions by Ian, got %d", len(ian))
	}
	if _, err := f.sessions.SessionsBySpeaker(ctx, " "); !domain.IsCode(err, domain.CodeInvalidArgument) {
		t.Fatalf("expected invalid argument, got %v", err)
	}

	problem, err := f.sessions.SessionsNotOfTypeBefore(ctx, "Workshop", "19:00")
	if err != nil {
		t.Fatalf("problem query: %v", err)
	}
	if len(problem) != 1 || problem[0].Name != "Morning talk" {
		t.Fatalf("unexpected problem result %+v", problem)
	}
}
