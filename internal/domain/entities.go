package domain

import (
	"slices"
	"time"
)

// Identity is the authenticated caller.
type Identity struct {
	UserID      string
	Email       string
	DisplayName string
}

// TeeShirtSize is a profile's shirt-size preference.
type TeeShirtSize string

const (
	TeeShirtNotSpecified TeeShirtSize = "NOT_SPECIFIED"
	TeeShirtXSM          TeeShirtSize = "XS_M"
	TeeShirtXSW          TeeShirtSize = "XS_W"
	TeeShirtSM           TeeShirtSize = "S_M"
	TeeShirtSW           TeeShirtSize = "S_W"
	TeeShirtMM           TeeShirtSize = "M_M"
	TeeShirtMW           TeeShirtSize = "M_W"
	TeeShirtLM           TeeShirtSize = "L_M"
	TeeShirtLW           TeeShirtSize = "L_W"
	TeeShirtXLM          TeeShirtSize = "XL_M"
	TeeShirtXLW          TeeShirtSize = "XL_W"
	TeeShirtXXLM         TeeShirtSize = "XXL_M"
	TeeShirtXXLW         TeeShirtSize = "XXL_W"
	TeeShirtXXXLM        TeeShirtSize = "XXXL_M"
	TeeShirtXXXLW        TeeShirtSize = "XXXL_W"
)

var teeShirtSizes = []TeeShirtSize{
	TeeShirtNotSpecified,
	TeeShirtXSM, TeeShirtXSW, TeeShirtSM, TeeShirtSW, TeeShirtMM, TeeShirtMW, TeeShirtLM, TeeShirtLW,
	TeeShirtXLM, TeeShirtXLW, TeeShirtXXLM, TeeShirtXXLW, TeeShirtXXXLM, TeeShirtXXXLW,
}

func (s TeeShirtSize) Valid() bool { return slices.Contains(teeShirtSizes, s) }

// Profile is the per-user record. It owns the attendance and wishlist sets.
type Profile struct {
	UserID                 string       `json:"userId"`
	DisplayName            string       `json:"displayName"`
	MainEmail              string       `json:"mainEmail"`
	TeeShirtSize           TeeShirtSize `json:"teeShirtSize"`
	ConferenceKeysToAttend []string     `json:"conferenceKeysToAttend"`
	SessionKeysWishlist    []string     `json:"sessionKeysWishlist"`
}

// NewProfile returns the profile created on first access.
func NewProfile(id Identity) Profile {
	return Profile{
		UserID:       id.UserID,
		DisplayName:  id.DisplayName,
		MainEmail:    id.Email,
		TeeShirtSize: TeeShirtNotSpecified,
	}
}

func (p Profile) Attends(key ConferenceKey) bool {
	return slices.Contains(p.ConferenceKeysToAttend, key.String())
}

func (p Profile) Wishes(key SessionKey) bool {
	return slices.Contains(p.SessionKeysWishlist, key.String())
}

// Clone returns a deep copy so staged transaction writes never alias reads.
func (p Profile) Clone() Profile {
	p.ConferenceKeysToAttend = slices.Clone(p.ConferenceKeysToAttend)
	p.SessionKeysWishlist = slices.Clone(p.SessionKeysWishlist)
	return p
}

// Conference is created by a profile and owned by it for its whole life.
type Conference struct {
	Key             ConferenceKey `json:"websafeKey"`
	Name            string        `json:"name"`
	Description     string        `json:"description,omitempty"`
	OrganizerUserID string        `json:"organizerUserId"`
	Topics          []string      `json:"topics"`
	City            string        `json:"city"`
	StartDate       *time.Time    `json:"startDate,omitempty"`
	Month           int           `json:"month"`
	EndDate         *time.Time    `json:"endDate,omitempty"`
	MaxAttendees    int           `json:"maxAttendees"`
	SeatsAvailable  int           `json:"seatsAvailable"`
}

func (c Conference) Clone() Conference {
	c.Topics = slices.Clone(c.Topics)
	return c
}

// NearlySoldOut reports whether the conference should be announced.
func (c Conference) NearlySoldOut() bool {
	return c.SeatsAvailable > 0 && c.SeatsAvailable <= NearlySoldOutSeats
}

// Session belongs to exactly one conference.
type Session struct {
	Key           SessionKey `json:"websafeKey"`
	Name          string     `json:"name"`
	Highlights    string     `json:"highlights,omitempty"`
	Speaker       string     `json:"speaker"`
	Duration      int        `json:"duration"`
	TypeOfSession string     `json:"typeOfSession"`
	Date          *time.Time `json:"date,omitempty"`
	// StartTime is minutes after midnight, nil when unset.
	StartTime *int `json:"startTime,omitempty"`
}
