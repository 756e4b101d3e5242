package tasks

import (
	"context"
	"fmt"

	"conference-central/internal/domain"
)

const (
	confirmationSubject = "You created a new Conference!"
	confirmationPrefix  = "Hi, you have created a following conference:\r\n\r\n"
)

// Deps are the collaborators the task handlers run against.
type Deps struct {
	Store  domain.Store
	Cache  domain.Cache
	Mailer domain.Mailer
}

// Register installs the handlers for every task the services enqueue.
func Register(w *Worker, deps Deps) {
	w.Handle(domain.TaskSendConfirmationEmail, SendConfirmationEmail(deps.Mailer))
	w.Handle(domain.TaskFeaturedSpeaker, FeaturedSpeaker(domain.NewFeaturedSpeakerDetector(deps.Store, deps.Cache)))
	w.Handle(domain.TaskSetAnnouncement, SetAnnouncement(domain.NewAnnouncementRefresher(deps.Store, deps.Cache)))
}

// SendConfirmationEmail mails the organizer the summary of a new conference.
func SendConfirmationEmail(m domain.Mailer) Handler {
	return func(ctx context.Context, params map[string]string) error {
		to := params["email"]
		if to == "" {
			return fmt.Errorf("%w: confirmation email without recipient", ErrPermanent)
		}
		if err := m.Send(ctx, to, confirmationSubject, confirmationPrefix+params["conferenceInfo"]); err != nil {
			return fmt.Errorf("send confirmation to %s: %w", to, err)
		}
		return nil
	}
}

type speakerDetector interface {
	Detect(ctx context.Context, key domain.ConferenceKey, speaker string) (bool, error)
}

// FeaturedSpeaker re-evaluates the featured speaker of a conference.
func FeaturedSpeaker(d speakerDetector) Handler {
	return func(ctx context.Context, params map[string]string) error {
		key, err := domain.ParseConferenceKey(params["conference_key"])
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPermanent, err)
		}
		if _, err := d.Detect(ctx, key, params["speaker"]); err != nil {
			return err
		}
		return nil
	}
}

type announcementRefresher interface {
	Refresh(ctx context.Context) (string, error)
}

// SetAnnouncement republishes the nearly-sold-out announcement.
func SetAnnouncement(r announcementRefresher) Handler {
	return func(ctx context.Context, _ map[string]string) error {
		_, err := r.Refresh(ctx)
		return err
	}
}
