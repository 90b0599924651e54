package domain

import (
	"strings"
	"time"
)

// RawTap is a reader payload as it arrives off the wire. Readers in the
// field speak two generations of the protocol: new firmware sends
// {reader, label, tag_id}, legacy units send {portal, label, tag} or
// {portal, label, rfid_card_id}.
type RawTap struct {
	TagID  string    `json:"tag_id"`
	Tag    string    `json:"tag"`
	CardID string    `json:"rfid_card_id"`
	Reader string    `json:"reader"`
	Portal string    `json:"portal"`
	Label  string    `json:"label"`
	Time   time.Time `json:"time"`
}

// TapEvent is the canonical form of a tap. Identifiers are trimmed and
// upper-cased; the label has already had the exit-portal rewrite applied.
type TapEvent struct {
	CardID    string    `json:"card_id"`
	PortalID  string    `json:"portal"`
	Label     string    `json:"label"`
	Timestamp time.Time `json:"time"`
}

// Normalizer canonicalizes raw payloads. The zero value is not usable;
// construct with the venue's label configuration.
type Normalizer struct {
	RegistrationLabel string
	ExitLabel         string
	ExitPortal        string
}

// Normalize produces a TapEvent from a raw payload. A registration tap
// recorded at the exit portal is rewritten to the exit label before any
// downstream routing sees it. Missing tag or portal after trimming is an
// input error and the tap is dropped.
func (n Normalizer) Normalize(raw RawTap) (TapEvent, error) {
	tag := raw.TagID
	if tag == "" {
		tag = raw.Tag
	}
	if tag == "" {
		tag = raw.CardID
	}
	tag = strings.ToUpper(strings.TrimSpace(tag))

	portal := raw.Reader
	if portal == "" {
		portal = raw.Portal
	}
	portal = strings.TrimSpace(portal)

	label := strings.ToUpper(strings.TrimSpace(raw.Label))
	if label == n.RegistrationLabel && strings.EqualFold(portal, n.ExitPortal) {
		label = n.ExitLabel
	}

	if tag == "" {
		return TapEvent{}, ErrMissingTag
	}
	if portal == "" {
		return TapEvent{}, ErrMissingPortal
	}

	ts := raw.Time
	if ts.IsZero() {
		ts = time.Now()
	}

	return TapEvent{
		CardID:    tag,
		PortalID:  portal,
		Label:     label,
		Timestamp: ts,
	}, nil
}

// NormalizeLabel applies the same canonical form used for zone labels
// everywhere: trimmed, upper-cased.
func NormalizeLabel(label string) string {
	return strings.ToUpper(strings.TrimSpace(label))
}
