package domain_test

import (
	"context"
	"strings"
	"testing"

	"conference-central/internal/domain"
)

func TestCreateConferenceDefaults(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	conf, err := f.confs.CreateConference(ctx, organizer, domain.ConferenceInput{
		Name:         "GopherCon",
		StartDate:    "2026-07-14T00:00:00",
		EndDate:      "2026-07-17",
		MaxAttendees: 100,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if conf.City != "Default City" || len(conf.Topics) != 2 || conf.Topics[0] != "Default" || conf.Topics[1] != "Topic" {
		t.Fatalf("unexpected defaults %+v", conf)
	}
	if conf.Month != 7 || conf.SeatsAvailable != 100 || conf.OrganizerUserID != organizer.UserID {
		t.Fatalf("unexpected derived fields %+v", conf)
	}
	if conf.Key.OrganizerID != organizer.UserID || conf.Key.ID == "" {
		t.Fatalf("unexpected key %+v", conf.Key)
	}

	prof, _ := f.st.GetProfile(ctx, organizer.UserID)
	if prof == nil {
		t.Fatal("expected organizer profile created")
	}

	tasks := f.queue.named(domain.TaskSendConfirmationEmail)
	if len(tasks) != 1 || tasks[0].Params["email"] != organizer.Email {
		t.Fatalf("expected confirmation email task, got %v", tasks)
	}
	if !strings.Contains(tasks[0].Params["conferenceInfo"], "Name: GopherCon") {
		t.Fatalf("unexpected conference info %q", tasks[0].Params["conferenceInfo"])
	}
}

func TestCreateConferenceValidation(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	tests := []struct {
		name string
		id   domain.Identity
		in   domain.ConferenceInput
		code domain.Code
	}{
		{"anonymous", domain.Identity{}, domain.ConferenceInput{Name: "x"}, domain.CodeUnauthorized},
		{"missing name", organizer, domain.ConferenceInput{Name: "  "}, domain.CodeInvalidArgument},
		{"bad date", organizer, domain.ConferenceInput{Name: "x", StartDate: "14/07/2026"}, domain.CodeInvalidArgument},
		{"end before start", organizer, domain.ConferenceInput{Name: "x", StartDate: "2026-07-14", EndDate: "2026-07-01"}, domain.CodeInvalidArgument},
		{"negative capacity", organizer, domain.ConferenceInput{Name: "x", MaxAttendees: -1}, domain.CodeInvalidArgument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.confs.CreateConference(ctx, tt.id, tt.in); !domain.IsCode(err, tt.code) {
				t.Fatalf("expected %s, got %v", tt.code, err)
			}
		})
	}
}

func TestCreateConferenceSurvivesQueueFailure(t *testing.T) {
	f := newFixture()
	f.queue.err = errQueueDown
	if _, err := f.confs.CreateConference(context.Background(), organizer, domain.ConferenceInput{Name: "x"}); err != nil {
		t.Fatalf("enqueue failure should not fail creation: %v", err)
	}
}

func TestGetConferenceWithOrganizerName(t *testing.T) {
	f := newFixture()
	conf := f.conference(t, "GopherCon", "Denver", 10)

	got, name, err := f.confs.GetConference(context.Background(), conf.Key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Key != conf.Key || name != organizer.DisplayName {
		t.Fatalf("unexpected %+v %q", got, name)
	}
	if _, _, err := f.confs.GetConference(context.Background(), domain.ConferenceKey{OrganizerID: "org", ID: "nope"}); !domain.IsCode(err, domain.CodeNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConferencesCreatedAndAttending(t *testing.T) {
	f := newFixture()
	a := f.conference(t, "A", "Denver", 10)
	f.conference(t, "B", "Denver", 10)
	ctx := context.Background()

	created, name, err := f.confs.ConferencesCreated(ctx, organizer)
	if err != nil || len(created) != 2 || name != organizer.DisplayName {
		t.Fatalf("unexpected created %d %q %v", len(created), name, err)
	}
	if mine, _, _ := f.confs.ConferencesCreated(ctx, attendee); len(mine) != 0 {
		t.Fatalf("attendee created nothing, got %d", len(mine))
	}

	if _, err := domain.NewRegistrationLedger(f.st).Register(ctx, attendee, a.Key); err != nil {
		t.Fatalf("register: %v", err)
	}
	attending, err := f.confs.ConferencesToAttend(ctx, attendee)
	if err != nil || len(attending) != 1 || attending[0].Key != a.Key {
		t.Fatalf("unexpected attending %+v %v", attending, err)
	}
}

func TestFilterPlayground(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	mk := func(name, city string, topics []string, seats int) {
		if _, err := f.confs.CreateConference(ctx, organizer, domain.ConferenceInput{Name: name, City: city, Topics: topics, MaxAttendees: seats}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	mk("Match", "London", []string{"Medical Innovations"}, 20)
	mk("Small", "London", []string{"Medical Innovations"}, 10)
	mk("Elsewhere", "Paris", []string{"Medical Innovations"}, 20)

	got, err := f.confs.FilterPlayground(ctx)
	if err != nil {
		t.Fatalf("playground: %v", err)
	}
	if len(got) != 1 || got[0].Name != "Match" {
		t.Fatalf("unexpected result %+v", got)
	}
}

func TestQueryConferencesRejectsBadFilter(t *testing.T) {
	f := newFixture()
	_, err := f.confs.QueryConferences(context.Background(), []domain.RawFilter{{Field: "CITY", Operator: "?", Value: "x"}})
	if !domain.IsCode(err, domain.CodeInvalidFilterOperator) {
		t.Fatalf("expected invalid operator, got %v", err)
	}
}
