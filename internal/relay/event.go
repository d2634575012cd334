// Package relay carries advisory "something changed" notifications between
// sessions. Delivery is best effort; the cache poller stays the ground truth.
package relay

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const EventType = "PEDIDOS_UPDATE"

type Action string

const (
	TabCreated        Action = "COMANDA_CREATED"
	ItemsAdded        Action = "ITEMS_ADDED"
	ItemRemoved       Action = "ITEM_REMOVED"
	TabFinalized      Action = "COMANDA_FINALIZED"
	TabDeleted        Action = "TAB_DELETED"
	PartialPayment    Action = "PARTIAL_PAYMENT"
	TotalUpdated      Action = "TOTAL_UPDATED"
	LineStatusChanged Action = "LINE_STATUS_CHANGED"
	CatalogChanged    Action = "CATALOG_CHANGED"
)

type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Action    Action          `json:"action"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
	Origin    string          `json:"origin"`
}

func NewEvent(origin string, action Action, data interface{}) (Event, error) {
	ev := Event{
		ID:        uuid.NewString(),
		Type:      EventType,
		Action:    action,
		Timestamp: time.Now().UnixMilli(),
		Origin:    origin,
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			return Event{}, fmt.Errorf("failed to marshal event data: %w", err)
		}
		ev.Data = raw
	}
	return ev, nil
}

func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func Unmarshal(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("failed to unmarshal event: %w", err)
	}
	if ev.Type != EventType || ev.ID == "" {
		return Event{}, fmt.Errorf("unexpected event %q", ev.Type)
	}
	return ev, nil
}
