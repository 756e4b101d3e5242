package domain

import (
	"context"
	"errors"
	"strings"
)

// ProfileUpdate carries the user-modifiable profile fields. Nil means keep.
type ProfileUpdate struct {
	DisplayName  *string
	TeeShirtSize *TeeShirtSize
}

// ProfileService reads and edits the caller's profile.
type ProfileService struct{ st Store }

func NewProfileService(st Store) ProfileService { return ProfileService{st: st} }

// GetProfile returns the caller's profile, creating it on first access.
func (s ProfileService) GetProfile(ctx context.Context, id Identity) (Profile, error) {
	return loadProfile(ctx, s.st, id)
}

// SaveProfile applies non-empty fields of upd and persists the profile.
func (s ProfileService) SaveProfile(ctx context.Context, id Identity, upd ProfileUpdate) (Profile, error) {
	if id.UserID == "" {
		return Profile{}, errAuthRequired
	}
	if upd.TeeShirtSize != nil && *upd.TeeShirtSize != "" && !upd.TeeShirtSize.Valid() {
		return Profile{}, Errorf(CodeInvalidArgument, "invalid teeShirtSize %q", *upd.TeeShirtSize)
	}
	return updateProfile(ctx, s.st, id, func(p *Profile) bool {
		changed := false
		if upd.DisplayName != nil {
			if name := strings.TrimSpace(*upd.DisplayName); name != "" && name != p.DisplayName {
				p.DisplayName = name
				changed = true
			}
		}
		if upd.TeeShirtSize != nil && *upd.TeeShirtSize != "" && *upd.TeeShirtSize != p.TeeShirtSize {
			p.TeeShirtSize = *upd.TeeShirtSize
			changed = true
		}
		return changed
	})
}

func loadProfile(ctx context.Context, st Store, id Identity) (Profile, error) {
	if id.UserID == "" {
		return Profile{}, errAuthRequired
	}
	prof, err := st.GetProfile(ctx, id.UserID)
	if err != nil {
		return Profile{}, err
	}
	if prof != nil {
		return *prof, nil
	}
	return updateProfile(ctx, st, id, func(*Profile) bool { return false })
}

// updateProfile applies edit to the caller's stored profile inside a
// transaction, so it cannot overwrite a registration committed concurrently.
// A missing profile is created first. edit reports whether it changed p.
func updateProfile(ctx context.Context, st Store, id Identity, edit func(p *Profile) bool) (Profile, error) {
	if id.UserID == "" {
		return Profile{}, errAuthRequired
	}
	var out Profile
	err := st.RunInTransaction(ctx, func(tx Tx) error {
		cur, err := tx.GetProfile(ctx, id.UserID)
		if err != nil {
			return err
		}
		p := NewProfile(id)
		if cur != nil {
			p = cur.Clone()
		}
		if edit(&p) || cur == nil {
			tx.PutProfile(p)
		}
		out = p
		return nil
	})
	if errors.Is(err, ErrConcurrencyConflict) {
		return Profile{}, errProfileContention
	}
	if err != nil {
		return Profile{}, err
	}
	return out, nil
}
