package storage

import (
	"testing"

	"conference-central/internal/domain"
)

func TestConferenceFilter(t *testing.T) {
	tests := []struct {
		name string
		raw  []domain.RawFilter
		want string
	}{
		{
			name: "no filters",
			want: "Kind eq 'Conference'",
		},
		{
			name: "city and capacity",
			raw: []domain.RawFilter{
				{Field: "CITY", Operator: "EQ", Value: "London"},
				{Field: "MAX_ATTENDEES", Operator: "GT", Value: "10"},
			},
			want: "Kind eq 'Conference' and City eq 'London' and MaxAttendees gt 10",
		},
		{
			name: "topic left to process",
			raw: []domain.RawFilter{
				{Field: "TOPIC", Operator: "EQ", Value: "Medical Innovations"},
				{Field: "MONTH", Operator: "LTEQ", Value: "6"},
			},
			want: "Kind eq 'Conference' and Month le 6",
		},
		{
			name: "quotes escaped",
			raw:  []domain.RawFilter{{Field: "CITY", Operator: "NE", Value: "O'Fallon"}},
			want: "Kind eq 'Conference' and City ne 'O''Fallon'",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := domain.TranslateFilters(tt.raw)
			if err != nil {
				t.Fatalf("translate: %v", err)
			}
			if got := conferenceFilter(plan); got != tt.want {
				t.Fatalf("got %q want %q", got, tt.want)
			}
		})
	}
}

func TestAncestorSessionsFilter(t *testing.T) {
	key := domain.ConferenceKey{OrganizerID: "u1", ID: "c9"}
	got := ancestorSessionsFilter(key, domain.SessionFilter{TypeOfSession: "Workshop"})
	want := "PartitionKey eq 'u1' and RowKey gt 'C|c9|S|' and RowKey lt 'C|c9|S}' and TypeOfSession eq 'Workshop'"
	if got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}

func TestSeatsFilter(t *testing.T) {
	want := "Kind eq 'Conference' and SeatsAvailable ge 1 and SeatsAvailable le 5"
	if got := seatsFilter(1, 5); got != want {
		t.Fatalf("got %q want %q", got, want)
	}
}
