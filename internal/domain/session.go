package domain

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const timeLayout = "15:04"

// SessionInput is the client-supplied part of a new session.
type SessionInput struct {
	Conference    ConferenceKey
	Name          string
	Highlights    string
	Speaker       string
	Duration      int
	TypeOfSession string
	Date          string
	StartTime     string
}

// SessionService creates and lists conference sessions.
type SessionService struct {
	st    Store
	tasks TaskQueue
}

func NewSessionService(st Store, tasks TaskQueue) SessionService {
	return SessionService{st: st, tasks: tasks}
}

// CreateSession adds a session to a conference the caller organizes. When the
// speaker already presents at the conference, featured-speaker detection is
// queued.
func (s SessionService) CreateSession(ctx context.Context, id Identity, in SessionInput) (Session, error) {
	if id.UserID == "" {
		return Session{}, errAuthRequired
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return Session{}, Errorf(CodeInvalidArgument, "Session 'name' field required")
	}
	if in.Duration < 0 {
		return Session{}, Errorf(CodeInvalidArgument, "duration must not be negative")
	}
	sess := Session{
		Name:          name,
		Highlights:    in.Highlights,
		Speaker:       strings.TrimSpace(in.Speaker),
		Duration:      in.Duration,
		TypeOfSession: in.TypeOfSession,
	}
	var err error
	if sess.Date, err = parseDate("date", in.Date); err != nil {
		return Session{}, err
	}
	if sess.StartTime, err = ParseStartTime(in.StartTime); err != nil {
		return Session{}, err
	}

	conf, err := s.st.GetConference(ctx, in.Conference)
	if err != nil {
		return Session{}, err
	}
	if conf == nil {
		return Session{}, notFound("conference", in.Conference.String())
	}
	if conf.Key.OrganizerID != id.UserID {
		return Session{}, Errorf(CodeUnauthorized, "Only creator of the conference can add sessions")
	}

	var previous int
	if sess.Speaker != "" {
		existing, err := s.st.SessionsByConference(ctx, conf.Key, SessionFilter{Speaker: sess.Speaker})
		if err != nil {
			return Session{}, err
		}
		previous = len(existing)
	}

	ids, err := s.st.AllocateIDs(ctx, 1)
	if err != nil {
		return Session{}, fmt.Errorf("allocate session id: %w", err)
	}
	sess.Key = SessionKey{Conference: conf.Key, ID: ids[0]}
	if err := s.st.PutSession(ctx, sess); err != nil {
		return Session{}, err
	}

	if previous > 0 {
		task := Task{Name: TaskFeaturedSpeaker, Params: map[string]string{
			"speaker":        sess.Speaker,
			"conference_key": conf.Key.String(),
		}}
		if err := s.tasks.EnqueueTask(ctx, task); err != nil {
			log.WithError(err).WithField("conference", conf.Key.String()).Warn("failed to enqueue featured speaker task")
		}
	}
	return sess, nil
}

// ConferenceSessions lists the sessions of a conference, optionally of one type.
func (s SessionService) ConferenceSessions(ctx context.Context, key ConferenceKey, typeOfSession string) ([]Session, error) {
	conf, err := s.st.GetConference(ctx, key)
	if err != nil {
		return nil, err
	}
	if conf == nil {
		return nil, notFound("conference", key.String())
	}
	return s.st.SessionsByConference(ctx, key, SessionFilter{TypeOfSession: typeOfSession})
}

// SessionsBySpeaker lists a speaker's sessions across all conferences.
func (s SessionService) SessionsBySpeaker(ctx context.Context, speaker string) ([]Session, error) {
	if strings.TrimSpace(speaker) == "" {
		return nil, Errorf(CodeInvalidArgument, "speaker is required")
	}
	return s.st.Sessions(ctx, SessionFilter{Speaker: speaker})
}

// SessionsNotOfTypeBefore lists sessions that are not of the given type and
// start before the given time. The store allows one inequality property per
// query, so the time bound is applied in process.
func (s SessionService) SessionsNotOfTypeBefore(ctx context.Context, typeOfSession, before string) ([]Session, error) {
	limit, err := ParseStartTime(before)
	if err != nil {
		return nil, err
	}
	if limit == nil {
		return nil, Errorf(CodeInvalidArgument, "startTime is required")
	}
	all, err := s.st.Sessions(ctx, SessionFilter{})
	if err != nil {
		return nil, err
	}
	out := make([]Session, 0, len(all))
	for _, sess := range all {
		if sess.StartTime == nil || sess.TypeOfSession == "" {
			continue
		}
		if sess.TypeOfSession != typeOfSession && *sess.StartTime < *limit {
			out = append(out, sess)
		}
	}
	return out, nil
}

// ParseStartTime parses HH:MM into minutes after midnight. Empty input is nil.
func ParseStartTime(raw string) (*int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, raw)
	if err != nil {
		return nil, Errorf(CodeInvalidArgument, "startTime must be formatted HH:MM")
	}
	m := t.Hour()*60 + t.Minute()
	return &m, nil
}

// FormatStartTime renders minutes after midnight as HH:MM.
func FormatStartTime(m *int) string {
	if m == nil {
		return ""
	}
	return fmt.Sprintf("%02d:%02d", *m/60, *m%60)
}
