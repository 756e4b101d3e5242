package domain

import "context"

// WishlistLedger maintains the caller's session wishlist. Only the profile is
// written, but the write still goes through a transaction so it cannot drop a
// concurrent change to the caller's attendance.
type WishlistLedger struct{ st Store }

func NewWishlistLedger(st Store) WishlistLedger { return WishlistLedger{st: st} }

// Add puts the session on the caller's wishlist. Adding a session that is
// already listed is a no-op.
func (w WishlistLedger) Add(ctx context.Context, id Identity, key SessionKey) (SessionKey, error) {
	if id.UserID == "" {
		return SessionKey{}, errAuthRequired
	}
	if key.IsZero() {
		return SessionKey{}, notFound("session", key.String())
	}
	sess, err := w.st.GetSession(ctx, key)
	if err != nil {
		return SessionKey{}, err
	}
	if sess == nil {
		return SessionKey{}, notFound("session", key.String())
	}
	_, err = updateProfile(ctx, w.st, id, func(p *Profile) bool {
		if p.Wishes(key) {
			return false
		}
		p.SessionKeysWishlist = append(p.SessionKeysWishlist, key.String())
		return true
	})
	if err != nil {
		return SessionKey{}, err
	}
	return key, nil
}

// Sessions resolves the wishlist, keeping the sessions that match filter.
// Sessions deleted since they were listed are skipped.
func (w WishlistLedger) Sessions(ctx context.Context, id Identity, filter SessionFilter) ([]Session, error) {
	prof, err := loadProfile(ctx, w.st, id)
	if err != nil {
		return nil, err
	}
	keys := make([]SessionKey, 0, len(prof.SessionKeysWishlist))
	for _, raw := range prof.SessionKeysWishlist {
		k, err := ParseSessionKey(raw)
		if err != nil {
			continue
		}
		keys = append(keys, k)
	}
	if len(keys) == 0 {
		return []Session{}, nil
	}
	sessions, err := w.st.GetSessions(ctx, keys)
	if err != nil {
		return nil, err
	}
	out := make([]Session, 0, len(sessions))
	for _, s := range sessions {
		if filter.Match(s) {
			out = append(out, s)
		}
	}
	return out, nil
}
