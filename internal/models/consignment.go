package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Consignment — последнее известное состояние одного отправления (по AWB).
type Consignment struct {
	ID            uuid.UUID  `json:"id"`
	AWB           string     `json:"awb"`
	ClientID      int64      `json:"clientId"`
	LastStatus    *string    `json:"lastStatus,omitempty"`
	Origin        *string    `json:"origin,omitempty"`
	Destination   *string    `json:"destination,omitempty"`
	BookedOn      *string    `json:"bookedOn,omitempty"` // YYYY-MM-DD
	LastUpdatedOn *time.Time `json:"lastUpdatedOn,omitempty"`
	Providers     []string   `json:"providers"`

	LastCheckedAt  *time.Time `json:"lastCheckedAt,omitempty"`
	NextCheckAt    time.Time  `json:"nextCheckAt"`
	CheckFailCount int32      `json:"checkFailCount"`
	LastError      *string    `json:"lastError,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// PrimaryProvider returns the provider the worker refreshes this consignment through.
func (c *Consignment) PrimaryProvider() string {
	if len(c.Providers) == 0 {
		return ""
	}
	return c.Providers[0]
}

type TrackingEvent struct {
	ID            uuid.UUID `json:"id"`
	ConsignmentID uuid.UUID `json:"consignmentId"`
	Action        string    `json:"action"`
	ActionDate    *string   `json:"actionDate,omitempty"` // YYYY-MM-DD
	ActionTime    *string   `json:"actionTime,omitempty"` // HH:MM:SS
	Origin        *string   `json:"origin,omitempty"`
	Destination   *string   `json:"destination,omitempty"`
	Remarks       *string   `json:"remarks,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// DedupKey: ключ идемпотентности события внутри одной накладной.
func (e *TrackingEvent) DedupKey() string {
	return e.Action + "|" + deref(e.ActionDate) + "|" + deref(e.ActionTime)
}

type StatusHistory struct {
	ID            uuid.UUID `json:"id"`
	ConsignmentID uuid.UUID `json:"consignmentId"`
	AWB           string    `json:"awb"`
	OldStatus     *string   `json:"oldStatus,omitempty"`
	NewStatus     *string   `json:"newStatus,omitempty"`
	ChangedAt     time.Time `json:"changedAt"`
}

// Snapshot: нормализованная "шапка" ответа перевозчика.
type Snapshot struct {
	AWB           string     `json:"awb"`
	Origin        *string    `json:"origin,omitempty"`
	Destination   *string    `json:"destination,omitempty"`
	BookedOn      *string    `json:"bookedOn,omitempty"`
	Status        *string    `json:"status,omitempty"`
	LastUpdatedOn *time.Time `json:"lastUpdatedOn,omitempty"`
}

type NormalizedTracking struct {
	Snapshot Snapshot
	Timeline []*TrackingEvent
}

// ConsignmentUpsert: входные данные для upsert; nil поля означают "не менять".
type ConsignmentUpsert struct {
	AWB           string
	ClientID      int64
	Provider      string
	Status        *string
	Origin        *string
	Destination   *string
	BookedOn      *string
	LastUpdatedOn *time.Time
}

func UpsertFromSnapshot(clientID int64, provider, awb string, s Snapshot) ConsignmentUpsert {
	return ConsignmentUpsert{
		AWB:           awb,
		ClientID:      clientID,
		Provider:      provider,
		Status:        s.Status,
		Origin:        s.Origin,
		Destination:   s.Destination,
		BookedOn:      s.BookedOn,
		LastUpdatedOn: s.LastUpdatedOn,
	}
}

// IsTerminalStatus reports whether a carrier status means the shipment will not move again
// (delivered or returned to origin).
func IsTerminalStatus(status *string) bool {
	if status == nil {
		return false
	}
	low := strings.ToLower(*status)
	if strings.Contains(low, "undeliver") || strings.Contains(low, "not deliver") {
		return false
	}
	return strings.Contains(low, "deliver") || strings.Contains(low, "rto")
}

func SameStatus(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// CarrierLocation: часовой пояс, в котором перевозчики отдают даты и время (IST).
var CarrierLocation = time.FixedZone("IST", 5*60*60+30*60)
