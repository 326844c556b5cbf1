package models

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Source is the provenance of a record.
type Source string

const (
	SourceScraped Source = "scraped"
	SourceManual  Source = "manual"
)

// ErrEffectiveBeforeAnnouncement is returned when a record's dates are out of order.
var ErrEffectiveBeforeAnnouncement = errors.New("effective date precedes announcement date")

// IdentityKey uniquely determines one logical record within its action-type table.
type IdentityKey string

// NewIdentityKey joins the identity components with '|'.
func NewIdentityKey(securityID string, t ActionType, announcement Date, subset ...string) IdentityKey {
	parts := make([]string, 0, 3+len(subset))
	parts = append(parts, securityID, string(t), announcement.String())
	for _, s := range subset {
		parts = append(parts, strings.ToUpper(strings.TrimSpace(s)))
	}
	return IdentityKey(strings.Join(parts, "|"))
}

func (k IdentityKey) String() string {
	return string(k)
}

// Record is the canonical corporate-action record shared by every action type.
type Record struct {
	ID               uuid.UUID  `json:"id"`
	SecurityID       string     `json:"security_id"`
	ActionType       ActionType `json:"action_type"`
	AnnouncementDate Date       `json:"announcement_date"`
	EffectiveDate    *Date      `json:"effective_date,omitempty"`
	Payload          Payload    `json:"payload"`
	Source           Source     `json:"source"`
	SourceRef        *string    `json:"source_ref,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	LastUpdatedAt    time.Time  `json:"last_updated_at"`
}

// IdentityKey computes the record's identity key.
func (r *Record) IdentityKey() IdentityKey {
	var subset []string
	if r.Payload != nil {
		subset = r.Payload.IdentityFields()
	}
	return NewIdentityKey(r.SecurityID, r.ActionType, r.AnnouncementDate, subset...)
}

// Validate checks the envelope invariants.
func (r *Record) Validate() error {
	if r.SecurityID == "" {
		return errors.New("security id is required")
	}
	if !r.ActionType.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownActionType, r.ActionType)
	}
	if r.AnnouncementDate.IsZero() {
		return errors.New("announcement date is required")
	}
	if r.Payload == nil {
		return errors.New("payload is required")
	}
	if r.Payload.ActionType() != r.ActionType {
		return fmt.Errorf("payload variant %s does not match action type %s", r.Payload.ActionType(), r.ActionType)
	}
	if r.EffectiveDate != nil && r.EffectiveDate.Before(r.AnnouncementDate) {
		return fmt.Errorf("%w: %s < %s", ErrEffectiveBeforeAnnouncement, r.EffectiveDate, r.AnnouncementDate)
	}
	return nil
}

// MutableEqual reports whether r and o agree on every field an upsert may change.
// Audit fields (source_ref, timestamps, id) are ignored.
func (r *Record) MutableEqual(o *Record) bool {
	if r.Source != o.Source || !EqualDatePtr(r.EffectiveDate, o.EffectiveDate) {
		return false
	}
	a, errA := EncodePayload(r.Payload)
	b, errB := EncodePayload(o.Payload)
	if errA != nil || errB != nil {
		return false
	}
	return bytes.Equal(a, b)
}

// Clone returns a copy that does not share pointer fields with r.
// Payload variants are values, so copying the interface is enough.
func (r *Record) Clone() *Record {
	c := *r
	if r.EffectiveDate != nil {
		d := *r.EffectiveDate
		c.EffectiveDate = &d
	}
	if r.SourceRef != nil {
		s := *r.SourceRef
		c.SourceRef = &s
	}
	return &c
}
