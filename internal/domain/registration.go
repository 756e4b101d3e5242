package domain

import (
	"context"
	"errors"
	"slices"

	log "github.com/sirupsen/logrus"
)

// RegistrationLedger toggles attendance and keeps the conference seat counter
// in step with the attendance sets. Each operation is one transaction over the
// caller's profile and the conference.
type RegistrationLedger struct {
	st Store
}

func NewRegistrationLedger(st Store) RegistrationLedger { return RegistrationLedger{st: st} }

// Register adds the caller to the conference and takes one seat.
func (l RegistrationLedger) Register(ctx context.Context, id Identity, key ConferenceKey) (bool, error) {
	return l.toggle(ctx, id, key, true)
}

// Unregister removes the caller from the conference and returns the seat.
// It returns false without writing when the caller was not attending.
func (l RegistrationLedger) Unregister(ctx context.Context, id Identity, key ConferenceKey) (bool, error) {
	return l.toggle(ctx, id, key, false)
}

func (l RegistrationLedger) toggle(ctx context.Context, id Identity, key ConferenceKey, register bool) (bool, error) {
	if id.UserID == "" {
		return false, errAuthRequired
	}
	if key.IsZero() {
		return false, notFound("conference", key.String())
	}
	var changed bool
	err := l.st.RunInTransaction(ctx, func(tx Tx) error {
		changed = false
		prof, err := tx.GetProfile(ctx, id.UserID)
		if err != nil {
			return err
		}
		if prof == nil {
			p := NewProfile(id)
			prof = &p
		}
		conf, err := tx.GetConference(ctx, key)
		if err != nil {
			return err
		}
		if conf == nil {
			return notFound("conference", key.String())
		}
		wsck := key.String()
		attending := slices.Contains(prof.ConferenceKeysToAttend, wsck)
		p := prof.Clone()
		c := conf.Clone()
		if register {
			if attending {
				return errAlreadyRegistered
			}
			if c.SeatsAvailable <= 0 {
				return errNoSeats
			}
			p.ConferenceKeysToAttend = append(p.ConferenceKeysToAttend, wsck)
			c.SeatsAvailable--
		} else {
			if !attending {
				return nil
			}
			p.ConferenceKeysToAttend = slices.DeleteFunc(p.ConferenceKeysToAttend, func(k string) bool { return k == wsck })
			if c.SeatsAvailable < c.MaxAttendees {
				c.SeatsAvailable++
			} else {
				log.WithFields(log.Fields{"conference": wsck, "user": id.UserID}).Warn("seat counter already at capacity on unregister")
			}
		}
		tx.PutProfile(p)
		tx.PutConference(c)
		changed = true
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConcurrencyConflict) {
			return false, errContention
		}
		return false, err
	}
	if changed {
		log.WithFields(log.Fields{"conference": key.String(), "user": id.UserID, "register": register}).Debug("registration updated")
	}
	return changed, nil
}
