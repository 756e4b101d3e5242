package api

import (
	"errors"
	"io"
	"time"

	"github.com/bytedance/sonic"

	"conference-central/internal/domain"
)

const (
	requestMaxSize = 64 << 10
	dateLayout     = "2006-01-02"
)

type profileForm struct {
	DisplayName            string   `json:"displayName"`
	MainEmail              string   `json:"mainEmail"`
	TeeShirtSize           string   `json:"teeShirtSize"`
	ConferenceKeysToAttend []string `json:"conferenceKeysToAttend"`
	SessionKeysWishlist    []string `json:"sessionKeysWishlist"`
}

type profileMiniForm struct {
	DisplayName  *string `json:"displayName"`
	TeeShirtSize *string `json:"teeShirtSize"`
}

type conferenceForm struct {
	Name                 string   `json:"name"`
	Description          string   `json:"description,omitempty"`
	OrganizerUserID      string   `json:"organizerUserId,omitempty"`
	Topics               []string `json:"topics,omitempty"`
	City                 string   `json:"city,omitempty"`
	StartDate            string   `json:"startDate,omitempty"`
	Month                int      `json:"month,omitempty"`
	MaxAttendees         int      `json:"maxAttendees,omitempty"`
	SeatsAvailable       int      `json:"seatsAvailable,omitempty"`
	EndDate              string   `json:"endDate,omitempty"`
	WebsafeKey           string   `json:"websafeKey,omitempty"`
	OrganizerDisplayName string   `json:"organizerDisplayName,omitempty"`
}

type conferenceForms struct {
	Items []conferenceForm `json:"items"`
}

type conferenceQueryForms struct {
	Filters []domain.RawFilter `json:"filters"`
}

type sessionForm struct {
	Name                 string `json:"name"`
	Highlights           string `json:"highlights,omitempty"`
	Speaker              string `json:"speaker,omitempty"`
	Duration             int    `json:"duration,omitempty"`
	TypeOfSession        string `json:"typeOfSession,omitempty"`
	Date                 string `json:"date,omitempty"`
	StartTime            string `json:"startTime,omitempty"`
	WebsafeConferenceKey string `json:"websafeConferenceKey"`
	WebsafeKey           string `json:"websafeKey,omitempty"`
}

type sessionForms struct {
	Items []sessionForm `json:"items"`
}

type wishlistForm struct {
	SessionKey string `json:"sessionKey"`
}

type stringMessage struct {
	Data string `json:"data"`
}

type booleanMessage struct {
	Data bool `json:"data"`
}

var errInvalidBody = domain.Errorf(domain.CodeInvalidArgument, "invalid body")

// decodeBody reads a size-limited JSON body into v. An empty body leaves v
// untouched.
func decodeBody(body io.Reader, v any) error {
	lr := io.LimitReader(body, requestMaxSize)
	dec := sonic.ConfigStd.NewDecoder(lr)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return errInvalidBody
	}
	return nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}

func toProfileForm(p domain.Profile) profileForm {
	return profileForm{
		DisplayName:            p.DisplayName,
		MainEmail:              p.MainEmail,
		TeeShirtSize:           string(p.TeeShirtSize),
		ConferenceKeysToAttend: nonNil(p.ConferenceKeysToAttend),
		SessionKeysWishlist:    nonNil(p.SessionKeysWishlist),
	}
}

func toConferenceForm(c domain.Conference, organizerName string) conferenceForm {
	return conferenceForm{
		Name:                 c.Name,
		Description:          c.Description,
		OrganizerUserID:      c.OrganizerUserID,
		Topics:               c.Topics,
		City:                 c.City,
		StartDate:            formatDate(c.StartDate),
		Month:                c.Month,
		MaxAttendees:         c.MaxAttendees,
		SeatsAvailable:       c.SeatsAvailable,
		EndDate:              formatDate(c.EndDate),
		WebsafeKey:           c.Key.String(),
		OrganizerDisplayName: organizerName,
	}
}

func toConferenceForms(confs []domain.Conference, organizerName string) conferenceForms {
	out := conferenceForms{Items: make([]conferenceForm, 0, len(confs))}
	for _, c := range confs {
		out.Items = append(out.Items, toConferenceForm(c, organizerName))
	}
	return out
}

func (f conferenceForm) input() domain.ConferenceInput {
	return domain.ConferenceInput{
		Name:         f.Name,
		Description:  f.Description,
		Topics:       f.Topics,
		City:         f.City,
		StartDate:    f.StartDate,
		EndDate:      f.EndDate,
		MaxAttendees: f.MaxAttendees,
	}
}

func toSessionForm(s domain.Session) sessionForm {
	return sessionForm{
		Name:                 s.Name,
		Highlights:           s.Highlights,
		Speaker:              s.Speaker,
		Duration:             s.Duration,
		TypeOfSession:        s.TypeOfSession,
		Date:                 formatDate(s.Date),
		StartTime:            domain.FormatStartTime(s.StartTime),
		WebsafeConferenceKey: s.Key.Conference.String(),
		WebsafeKey:           s.Key.String(),
	}
}

func toSessionForms(sessions []domain.Session) sessionForms {
	out := sessionForms{Items: make([]sessionForm, 0, len(sessions))}
	for _, s := range sessions {
		out.Items = append(out.Items, toSessionForm(s))
	}
	return out
}

func (f sessionForm) input() (domain.SessionInput, error) {
	key, err := domain.ParseConferenceKey(f.WebsafeConferenceKey)
	if err != nil {
		return domain.SessionInput{}, err
	}
	return domain.SessionInput{
		Conference:    key,
		Name:          f.Name,
		Highlights:    f.Highlights,
		Speaker:       f.Speaker,
		Duration:      f.Duration,
		TypeOfSession: f.TypeOfSession,
		Date:          f.Date,
		StartTime:     f.StartTime,
	}, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
