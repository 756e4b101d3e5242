package domain

import (
	"encoding/base64"
	"encoding/binary"
	"errors"
)

const (
	KindProfile    = "Profile"
	KindConference = "Conference"
	KindSession    = "Session"
)

var errMalformedKey = errors.New("malformed key")

type keyPart struct {
	kind string
	id   string
}

// ConferenceKey identifies a conference. Conferences are children of the
// organizer's profile, so the organizer's user id is also the entity group.
type ConferenceKey struct {
	OrganizerID string
	ID          string
}

// Group returns the entity group the conference belongs to.
func (k ConferenceKey) Group() string { return k.OrganizerID }

func (k ConferenceKey) IsZero() bool { return k.OrganizerID == "" || k.ID == "" }

// String returns the websafe form of the key.
func (k ConferenceKey) String() string {
	return encodeKeyPath([]keyPart{{KindProfile, k.OrganizerID}, {KindConference, k.ID}})
}

func (k ConferenceKey) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *ConferenceKey) UnmarshalText(b []byte) error {
	parsed, err := ParseConferenceKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseConferenceKey decodes a websafe conference key.
func ParseConferenceKey(s string) (ConferenceKey, error) {
	parts, err := decodeKeyPath(s)
	if err != nil || len(parts) != 2 || parts[0].kind != KindProfile || parts[1].kind != KindConference {
		return ConferenceKey{}, notFound("conference", s)
	}
	return ConferenceKey{OrganizerID: parts[0].id, ID: parts[1].id}, nil
}

// SessionKey identifies a session within its conference.
type SessionKey struct {
	Conference ConferenceKey
	ID         string
}

func (k SessionKey) Group() string { return k.Conference.Group() }

func (k SessionKey) IsZero() bool { return k.Conference.IsZero() || k.ID == "" }

func (k SessionKey) String() string {
	return encodeKeyPath([]keyPart{
		{KindProfile, k.Conference.OrganizerID},
		{KindConference, k.Conference.ID},
		{KindSession, k.ID},
	})
}

func (k SessionKey) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

func (k *SessionKey) UnmarshalText(b []byte) error {
	parsed, err := ParseSessionKey(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// ParseSessionKey decodes a websafe session key.
func ParseSessionKey(s string) (SessionKey, error) {
	parts, err := decodeKeyPath(s)
	if err != nil || len(parts) != 3 || parts[0].kind != KindProfile || parts[1].kind != KindConference || parts[2].kind != KindSession {
		return SessionKey{}, notFound("session", s)
	}
	return SessionKey{
		Conference: ConferenceKey{OrganizerID: parts[0].id, ID: parts[1].id},
		ID:         parts[2].id,
	}, nil
}

func encodeKeyPath(parts []keyPart) string {
	size := 0
	for _, p := range parts {
		size += 8 + len(p.kind) + len(p.id)
	}
	data := make([]byte, 0, size)
	for _, p := range parts {
		data = binary.BigEndian.AppendUint32(data, uint32(len(p.kind)))
		data = binary.BigEndian.AppendUint32(data, uint32(len(p.id)))
		data = append(data, p.kind...)
		data = append(data, p.id...)
	}
	return base64.RawURLEncoding.EncodeToString(data)
}

func decodeKeyPath(s string) ([]keyPart, error) {
	if s == "" {
		return nil, errMalformedKey
	}
	data, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, errMalformedKey
	}
	var parts []keyPart
	for len(data) > 0 {
		if len(data) < 8 {
			return nil, errMalformedKey
		}
		kindLen := int(binary.BigEndian.Uint32(data[0:4]))
		idLen := int(binary.BigEndian.Uint32(data[4:8]))
		data = data[8:]
		if kindLen <= 0 || idLen <= 0 || kindLen+idLen > len(data) {
			return nil, errMalformedKey
		}
		parts = append(parts, keyPart{kind: string(data[:kindLen]), id: string(data[kindLen : kindLen+idLen])})
		data = data[kindLen+idLen:]
	}
	return parts, nil
}
