package domain

import (
	"context"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
)

const (
	// FeaturedSpeakerKey is the cache key of the featured speaker read model.
	FeaturedSpeakerKey = "FEATURED SPEAKER FOR THIS CONFERENCE"
	// AnnouncementKey is the cache key of the nearly-sold-out announcement.
	AnnouncementKey = "RECENT ANNOUNCEMENTS"
)

// FeaturedSpeakerDetector publishes a speaker who presents more than one
// session at a conference.
type FeaturedSpeakerDetector struct {
	st    Store
	cache Cache
}

func NewFeaturedSpeakerDetector(st Store, cache Cache) FeaturedSpeakerDetector {
	return FeaturedSpeakerDetector{st: st, cache: cache}
}

// Detect counts the speaker's sessions at the conference and, when there is
// more than one, replaces the cached featured speaker. A single session
// leaves any previous entry in place.
func (d FeaturedSpeakerDetector) Detect(ctx context.Context, key ConferenceKey, speaker string) (bool, error) {
	if speaker == "" {
		return false, nil
	}
	sessions, err := d.st.SessionsByConference(ctx, key, SessionFilter{Speaker: speaker})
	if err != nil {
		return false, fmt.Errorf("list sessions for speaker: %w", err)
	}
	if len(sessions) <= 1 {
		return false, nil
	}
	names := make([]string, 0, len(sessions))
	for _, s := range sessions {
		names = append(names, s.Name)
	}
	msg := FeaturedSpeakerMessage(speaker, names)
	if err := d.cache.Set(ctx, FeaturedSpeakerKey, msg); err != nil {
		return false, fmt.Errorf("publish featured speaker: %w", err)
	}
	log.WithFields(log.Fields{"conference": key.String(), "speaker": speaker, "sessions": len(sessions)}).Info("featured speaker published")
	return true, nil
}

// FeaturedSpeakerMessage formats the featured speaker announcement.
func FeaturedSpeakerMessage(speaker string, sessionNames []string) string {
	return fmt.Sprintf("%s %s\n %s %s",
		"New Featured Speaker is: ", speaker,
		"Presenting on the following topics:\n",
		strings.Join(sessionNames, ", \n"))
}
