package api

import (
	"context"

	"conference-central/internal/domain"
)

// Authenticator is implemented by types able to resolve the caller from the
// Authorization header.
type Authenticator interface {
	IdentityFromAuthHeader(string) (domain.Identity, error)
}

// Deduper prevents processing of duplicate create requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, userID, key string) (bool, error)
	// Remove deletes a previously added key, used when processing fails.
	Remove(ctx context.Context, userID, key string) error
}

// Services bundles the domain operations the handlers expose.
type Services struct {
	Profiles      domain.ProfileService
	Conferences   domain.ConferenceService
	Sessions      domain.SessionService
	Registrations domain.RegistrationLedger
	Wishlist      domain.WishlistLedger
	Announcements domain.AnnouncementRefresher
	ReadModel     domain.ReadModel
}

// NewServices wires every service against one store, queue and cache.
func NewServices(st domain.Store, tasks domain.TaskQueue, cache domain.Cache) Services {
	return Services{
		Profiles:      domain.NewProfileService(st),
		Conferences:   domain.NewConferenceService(st, tasks),
		Sessions:      domain.NewSessionService(st, tasks),
		Registrations: domain.NewRegistrationLedger(st),
		Wishlist:      domain.NewWishlistLedger(st),
		Announcements: domain.NewAnnouncementRefresher(st, cache),
		ReadModel:     domain.NewReadModel(cache),
	}
}
