package types

import (
	"time"

	"github.com/google/uuid"
)

// HistoryEntry is one append-only record of a state-changing action.
type HistoryEntry struct {
	Date   time.Time `json:"date"`
	Status string    `json:"status"`
	Label  string    `json:"label"`
}

// InternalNote is an admin annotation, removable by id, independent of the
// history journal.
type InternalNote struct {
	ID   uuid.UUID `json:"id"`
	Date time.Time `json:"date"`
	Text string    `json:"text"`
}

// OrderMetadata is the versioned extension record stored as jsonb on an
// order: every known field is typed, Extra keeps forward-compatible
// string-keyed values.
type OrderMetadata struct {
	Version int `json:"version"`

	PaymentIntentID string `json:"payment_intent_id,omitempty"`
	InvoiceID       string `json:"invoice_id,omitempty"`

	ShipmentID      string `json:"shipment_id,omitempty"`
	TrackingNumber  string `json:"tracking_number,omitempty"`
	ShippingFailure string `json:"shipping_failure,omitempty"`

	Subscription           bool   `json:"subscription,omitempty"`
	SubscriptionScheduleID string `json:"subscription_schedule_id,omitempty"`
	Imported               bool   `json:"imported,omitempty"`

	History []HistoryEntry `json:"history,omitempty"`
	Notes   []InternalNote `json:"notes,omitempty"`

	Extra map[string]string `json:"extra,omitempty"`
}

// AppendHistory adds an entry; the journal is append-only and callers must
// never reorder or delete entries.
func (m *OrderMetadata) AppendHistory(now time.Time, status, label string) {
	m.History = append(m.History, HistoryEntry{
		Date:   now.UTC(),
		Status: status,
		Label:  label,
	})
}

// AddNote appends a timestamped internal note and returns its id.
func (m *OrderMetadata) AddNote(now time.Time, text string) uuid.UUID {
	note := InternalNote{
		ID:   uuid.New(),
		Date: now.UTC(),
		Text: text,
	}
	m.Notes = append(m.Notes, note)
	return note.ID
}

// RemoveNote deletes the note with the given id and reports whether it
// existed. History entries are never touched here.
func (m *OrderMetadata) RemoveNote(id uuid.UUID) bool {
	for i, note := range m.Notes {
		if note.ID == id {
			m.Notes = append(m.Notes[:i], m.Notes[i+1:]...)
			return true
		}
	}
	return false
}
