package domain_test

import (
	"context"
	"testing"

	"conference-central/internal/domain"
)

func TestRefreshAnnouncesNearlySoldOut(t *testing.T) {
	f := newFixture()
	f.conference(t, "Zed Summit", "Rome", 5)
	f.conference(t, "Big Conf", "Rome", 500)
	f.conference(t, "Full House", "Rome", 0)
	f.conference(t, "Almost", "Rome", 1)
	ctx := context.Background()

	msg, err := domain.NewAnnouncementRefresher(f.st, f.cache).Refresh(ctx)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	want := "Last chance to attend! The following conferences are nearly sold out: Almost, Zed Summit"
	if msg != want {
		t.Fatalf("got %q want %q", msg, want)
	}
	if got, _ := domain.NewReadModel(f.cache).Announcement(ctx); got != want {
		t.Fatalf("read model returned %q", got)
	}
}

func TestRefreshClearsAnnouncement(t *testing.T) {
	f := newFixture()
	f.conference(t, "Big Conf", "Rome", 500)
	ctx := context.Background()
	_ = f.cache.Set(ctx, domain.AnnouncementKey, "stale")

	msg, err := domain.NewAnnouncementRefresher(f.st, f.cache).Refresh(ctx)
	if err != nil || msg != "" {
		t.Fatalf("expected empty announcement, got %q %v", msg, err)
	}
	if _, ok, _ := f.cache.Get(ctx, domain.AnnouncementKey); ok {
		t.Fatal("expected announcement deleted")
	}
	if got, _ := domain.NewReadModel(f.cache).Announcement(ctx); got != "" {
		t.Fatalf("expected empty read model, got %q", got)
	}
}

func TestReadModelFeaturedSpeakerAbsent(t *testing.T) {
	got, err := domain.NewReadModel(newFixture().cache).FeaturedSpeaker(context.Background())
	if err != nil || got != "" {
		t.Fatalf("expected empty, got %q %v", got, err)
	}
}
