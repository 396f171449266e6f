// Package availability provides the core data model for exam-slot
// availability: canonical records, snapshots, and the transitions
// derived by diffing successive snapshots.
package availability

import (
	"strings"
	"time"
)

// Status represents the availability state of a slot.
type Status string

const (
	StatusAvailable Status = "available"
	StatusFull      Status = "full"
)

// RawRow is one row as delivered by the source fetcher, before
// normalization. All fields are free text scraped from the calendar page.
type RawRow struct {
	StatusText   string
	Institution  string
	Region       string
	City         string
	Deadline     string
	CapacityText string
	TestDate     string
	DeliveryMode string
}

// Record is one canonical exam-delivery slot.
// Metadata fields are display-only and immutable once observed; only
// Status and Capacity change between polls.
type Record struct {
	SlotID      string `json:"slot_id"`
	Status      Status `json:"status"`
	Capacity    int    `json:"capacity"`
	Institution string `json:"institution"`
	Region      string `json:"region"`
	City        string `json:"city"`
	Deadline    string `json:"registration_deadline"`
	TestDate    string `json:"test_date"`
}

// Snapshot is the full set of records observed at one poll time.
// Immutable once taken; records are ordered by slot ID.
type Snapshot struct {
	ID             string    `json:"snapshot_id"`
	TakenAt        time.Time `json:"taken_at"`
	Records        []Record  `json:"records"`
	TotalCount     int       `json:"total_count"`
	AvailableCount int       `json:"available_count"`
}

// Transition is a slot's status change between two snapshots. It exists
// only transiently during one dispatch cycle and is never persisted on
// its own.
type Transition struct {
	SlotID         string
	PreviousStatus Status
	NewStatus      Status
	ObservedAt     time.Time
	SnapshotID     string
	Record         Record
}

// SlotID derives the stable identity of a slot from its immutable
// metadata. The same slot must map to the same ID run-to-run, so the
// key is built from lowercased, whitespace-collapsed fields.
func SlotID(institution, city, testDate, deliveryMode string) string {
	parts := []string{institution, city, testDate, deliveryMode}
	for i, p := range parts {
		parts[i] = strings.Join(strings.Fields(strings.ToLower(p)), " ")
	}
	return strings.Join(parts, "|")
}
