package messages

import (
	"time"

	"github.com/google/uuid"
)

const TopicStatusChanged = "consignment.status_changed"

// StatusChanged публикуется после каждой новой записи в tracking_history. Ключ сообщения: AWB.
type StatusChanged struct {
	ConsignmentID uuid.UUID `json:"consignment_id"`
	AWB           string    `json:"awb"`
	ClientID      int64     `json:"client_id"`
	Provider      string    `json:"provider"`

	OldStatus *string `json:"old_status,omitempty"`
	NewStatus *string `json:"new_status,omitempty"`

	ChangedAt time.Time `json:"changed_at"`
}
