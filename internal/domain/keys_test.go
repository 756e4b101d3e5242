package domain_test

import (
	"encoding/json"
	"testing"

	"conference-central/internal/domain"
)

func TestConferenceKeyRoundTrip(t *testing.T) {
	key := domain.ConferenceKey{OrganizerID: "user|1", ID: "c-42"}
	parsed, err := domain.ParseConferenceKey(key.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != key {
		t.Fatalf("got %+v want %+v", parsed, key)
	}
	if key.Group() != "user|1" {
		t.Fatalf("unexpected group %q", key.Group())
	}
}

func TestSessionKeyRoundTrip(t *testing.T) {
	key := domain.SessionKey{Conference: domain.ConferenceKey{OrganizerID: "u", ID: "c"}, ID: "s"}
	parsed, err := domain.ParseSessionKey(key.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != key || parsed.Group() != "u" {
		t.Fatalf("got %+v want %+v", parsed, key)
	}
}

func TestParseKeyRejectsGarbage(t *testing.T) {
	conf := domain.ConferenceKey{OrganizerID: "u", ID: "c"}
	sess := domain.SessionKey{Conference: conf, ID: "s"}
	for _, raw := range []string{"", "!!!", "AAAA", sess.String()} {
		if _, err := domain.ParseConferenceKey(raw); !domain.IsCode(err, domain.CodeNotFound) {
			t.Fatalf("expected not found for %q, got %v", raw, err)
		}
	}
	if _, err := domain.ParseSessionKey(conf.String()); !domain.IsCode(err, domain.CodeNotFound) {
		t.Fatalf("expected not found for conference key, got %v", err)
	}
}

func TestKeysMarshalAsText(t *testing.T) {
	conf := domain.Conference{Key: domain.ConferenceKey{OrganizerID: "u", ID: "c"}, Name: "GopherCon"}
	data, err := json.Marshal(conf)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var decoded struct {
		WebsafeKey string `json:"websafeKey"`
	}
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.WebsafeKey != conf.Key.String() {
		t.Fatalf("got %q want %q", decoded.WebsafeKey, conf.Key.String())
	}
}
