package domain

import (
	"context"
	"fmt"
	"slices"
	"strings"
)

// NearlySoldOutSeats is the seat count at or below which a conference with
// seats left is announced.
const NearlySoldOutSeats = 5

const announcementPrefix = "Last chance to attend! The following conferences are nearly sold out:"

// AnnouncementRefresher republishes the nearly-sold-out announcement.
type AnnouncementRefresher struct {
	st    Store
	cache Cache
}

func NewAnnouncementRefresher(st Store, cache Cache) AnnouncementRefresher {
	return AnnouncementRefresher{st: st, cache: cache}
}

// Refresh publishes the announcement, or deletes it when no conference is
// nearly sold out. It returns the published text.
func (r AnnouncementRefresher) Refresh(ctx context.Context) (string, error) {
	confs, err := r.st.ConferencesWithSeats(ctx, 1, NearlySoldOutSeats)
	if err != nil {
		return "", fmt.Errorf("query nearly sold out conferences: %w", err)
	}
	names := make([]string, 0, len(confs))
	for _, c := range confs {
		if c.NearlySoldOut() {
			names = append(names, c.Name)
		}
	}
	slices.Sort(names)
	if len(names) == 0 {
		if err := r.cache.Delete(ctx, AnnouncementKey); err != nil {
			return "", fmt.Errorf("delete announcement: %w", err)
		}
		return "", nil
	}
	msg := announcementPrefix + " " + strings.Join(names, ", ")
	if err := r.cache.Set(ctx, AnnouncementKey, msg); err != nil {
		return "", fmt.Errorf("publish announcement: %w", err)
	}
	return msg, nil
}

// ReadModel serves the published announcement and featured speaker.
type ReadModel struct{ cache Cache }

func NewReadModel(cache Cache) ReadModel { return ReadModel{cache: cache} }

// Announcement returns the published announcement, or "" when none is set.
func (m ReadModel) Announcement(ctx context.Context) (string, error) {
	return m.get(ctx, AnnouncementKey)
}

// FeaturedSpeaker returns the published featured speaker message, or "".
func (m ReadModel) FeaturedSpeaker(ctx context.Context) (string, error) {
	return m.get(ctx, FeaturedSpeakerKey)
}

func (m ReadModel) get(ctx context.Context, key string) (string, error) {
	v, ok, err := m.cache.Get(ctx, key)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", nil
	}
	return v, nil
}
