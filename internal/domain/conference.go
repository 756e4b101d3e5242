package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const dateLayout = "2006-01-02"

var (
	defaultCity   = "Default City"
	defaultTopics = []string{"Default", "Topic"}
)

// ConferenceInput is the client-supplied part of a new conference.
type ConferenceInput struct {
	Name         string
	Description  string
	Topics       []string
	City         string
	StartDate    string
	EndDate      string
	MaxAttendees int
}

// ConferenceService creates and looks up conferences.
type ConferenceService struct {
	st    Store
	tasks TaskQueue
}

func NewConferenceService(st Store, tasks TaskQueue) ConferenceService {
	return ConferenceService{st: st, tasks: tasks}
}

// CreateConference stores a conference owned by the caller and queues the
// confirmation email.
func (s ConferenceService) CreateConference(ctx context.Context, id Identity, in ConferenceInput) (Conference, error) {
	if id.UserID == "" {
		return Conference{}, errAuthRequired
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Conference{}, Errorf(CodeInvalidArgument, "Conference 'name' field required")
	}
	if in.MaxAttendees < 0 {
		return Conference{}, Errorf(CodeInvalidArgument, "maxAttendees must not be negative")
	}
	conf := Conference{
		Name:            name,
		Description:     in.Description,
		OrganizerUserID: id.UserID,
		Topics:          in.Topics,
		City:            in.City,
		MaxAttendees:    in.MaxAttendees,
		SeatsAvailable:  in.MaxAttendees,
	}
	if conf.City == "" {
		conf.City = defaultCity
	}
	if len(conf.Topics) == 0 {
		conf.Topics = append([]string(nil), defaultTopics...)
	}
	var err error
	if conf.StartDate, err = parseDate("startDate", in.StartDate); err != nil {
		return Conference{}, err
	}
	if conf.EndDate, err = parseDate("endDate", in.EndDate); err != nil {
		return Conference{}, err
	}
	if conf.StartDate != nil {
		conf.Month = int(conf.StartDate.Month())
	}
	if conf.StartDate != nil && conf.EndDate != nil && conf.EndDate.Before(*conf.StartDate) {
		return Conference{}, Errorf(CodeInvalidArgument, "endDate is before startDate")
	}

	// The organizer's profile is the parent of the conference.
	if _, err := loadProfile(ctx, s.st, id); err != nil {
		return Conference{}, err
	}
	ids, err := s.st.AllocateIDs(ctx, 1)
	if err != nil {
		return Conference{}, fmt.Errorf("allocate conference id: %w", err)
	}
	conf.Key = ConferenceKey{OrganizerID: id.UserID, ID: ids[0]}
	if err := s.st.PutConference(ctx, conf); err != nil {
		return Conference{}, err
	}

	task := Task{Name: TaskSendConfirmationEmail, Params: map[string]string{
		"email":          id.Email,
		"conferenceInfo": describeConference(conf),
	}}
	if err := s.tasks.EnqueueTask(ctx, task); err != nil {
		log.WithError(err).WithField("conference", conf.Key.String()).Warn("failed to enqueue confirmation email")
	}
	return conf, nil
}

// GetConference returns the conference and its organizer's display name.
func (s ConferenceService) GetConference(ctx context.Context, key ConferenceKey) (Conference, string, error) {
	conf, err := s.st.GetConference(ctx, key)
	if err != nil {
		return Conference{}, "", err
	}
	if conf == nil {
		return Conference{}, "", notFound("conference", key.String())
	}
	var displayName string
	prof, err := s.st.GetProfile(ctx, key.OrganizerID)
	if err != nil {
		return Conference{}, "", err
	}
	if prof != nil {
		displayName = prof.DisplayName
	}
	return *conf, displayName, nil
}

// ConferencesCreated lists the caller's own conferences.
func (s ConferenceService) ConferencesCreated(ctx context.Context, id Identity) ([]Conference, string, error) {
	prof, err := loadProfile(ctx, s.st, id)
	if err != nil {
		return nil, "", err
	}
	confs, err := s.st.ConferencesByOrganizer(ctx, id.UserID)
	if err != nil {
		return nil, "", err
	}
	return confs, prof.DisplayName, nil
}

// ConferencesToAttend lists the conferences the caller is registered for.
func (s ConferenceService) ConferencesToAttend(ctx context.Context, id Identity) ([]Conference, error) {
	prof, err := loadProfile(ctx, s.st, id)
	if err != nil {
		return nil, err
	}
	keys := make([]ConferenceKey, 0, len(prof.ConferenceKeysToAttend))
	for _, raw := range prof.ConferenceKeysToAttend {
		k, err := ParseConferenceKey(raw)
		if err != nil {
			log.WithField("user", id.UserID).WithField("key", raw).Warn("skipping malformed attendance key")
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return []Conference{}, nil
	}
	return s.st.GetConferences(ctx, keys)
}

// QueryConferences translates the filters and runs the query.
func (s ConferenceService) QueryConferences(ctx context.Context, filters []RawFilter) ([]Conference, error) {
	plan, err := TranslateFilters(filters)
	if err != nil {
		return nil, err
	}
	return s.st.QueryConferences(ctx, plan)
}

// FilterPlayground runs a fixed sample query.
func (s ConferenceService) FilterPlayground(ctx context.Context) ([]Conference, error) {
	return s.QueryConferences(ctx, []RawFilter{
		{Field: "CITY", Operator: "EQ", Value: "London"},
		{Field: "TOPIC", Operator: "EQ", Value: "Medical Innovations"},
		{Field: "MAX_ATTENDEES", Operator: "GT", Value: "10"},
	})
}

func parseDate(field, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if len(raw) > len(dateLayout) {
		raw = raw[:len(dateLayout)]
	}
	t, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, Errorf(CodeInvalidArgument, "%s must be formatted YYYY-MM-DD", field)
	}
	return &t, nil
}

func describeConference(c Conference) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Name: %s\r\n", c.Name)
	if c.Description != "" {
		fmt.Fprintf(&b, "Description: %s\r\n", c.Description)
	}
	fmt.Fprintf(&b, "City: %s\r\n", c.City)
	fmt.Fprintf(&b, "Topics: %s\r\n", strings.Join(c.Topics, ", "))
	if c.StartDate != nil {
		fmt.Fprintf(&b, "Start date: %s\r\n", c.StartDate.Format(dateLayout))
	}
	if c.EndDate != nil {
		fmt.Fprintf(&b, "End date: %s\r\n", c.EndDate.Format(dateLayout))
	}
	fmt.Fprintf(&b, "Max attendees: %d\r\n", c.MaxAttendees)
	return b.String()
}
