package amqp

import (
	"encoding/json"
	"time"

	"financas/internal/store"
)

// CollectionSyncMessage tells the mirror worker that a user's collection
// changed. It carries only the key; the worker loads the current table from
// the local store, so replays and reordering are harmless.
type CollectionSyncMessage struct {
	UserID    string    `json:"user_id"`
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
}

func NewCollectionSyncMessage(userID string, kind store.Kind) *CollectionSyncMessage {
	return &CollectionSyncMessage{
		UserID:    userID,
		Kind:      kind.String(),
		Timestamp: time.Now(),
	}
}

// StoreKind returns the message kind as the store enum.
func (m *CollectionSyncMessage) StoreKind() store.Kind {
	return store.Kind(m.Kind)
}

// ToJSON converts the message to JSON bytes
func (m *CollectionSyncMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// CollectionSyncMessageFromJSON creates a message from JSON bytes
func CollectionSyncMessageFromJSON(data []byte) (*CollectionSyncMessage, error) {
	var msg CollectionSyncMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if !msg.StoreKind().IsValid() {
		return nil, errInvalidKind
	}
	return &msg, nil
}
