package ir

import "fmt"

// EventName identifies a bus event.
type EventName string

const (
	// EventAssetMetadataExtracted is emitted by the metadata pipeline once per asset (at least once).
	EventAssetMetadataExtracted EventName = "AssetMetadataExtracted"
	// EventAssetDelete is emitted when an asset is removed from the library.
	EventAssetDelete EventName = "AssetDelete"

	EventStackCreate    EventName = "StackCreate"
	EventStackUpdate    EventName = "StackUpdate"
	EventStackDelete    EventName = "StackDelete"
	EventStackDeleteAll EventName = "StackDeleteAll"
)

// AssetEvent is the payload of AssetMetadataExtracted and AssetDelete.
type AssetEvent struct {
	AssetID string `json:"assetId"`
	UserID  string `json:"userId"`
}

// StackEvent is the payload of StackCreate, StackUpdate and StackDelete.
type StackEvent struct {
	StackID string `json:"stackId"`
	UserID  string `json:"userId"`
}

// StackDeleteAllEvent is the payload of StackDeleteAll.
type StackDeleteAllEvent struct {
	StackIDs []string `json:"stackIds"`
	UserID   string   `json:"userId"`
}

// Event is a named event with its payload.
// Seq is stamped by the bus on publish; ID is assigned by the journal.
type Event struct {
	ID      string    `json:"id,omitempty"`
	Seq     int64     `json:"seq"`
	Name    EventName `json:"name"`
	Payload any       `json:"payload"`
}

// NewAssetMetadataExtracted builds an AssetMetadataExtracted event.
func NewAssetMetadataExtracted(assetID, userID string) Event {
	return Event{Name: EventAssetMetadataExtracted, Payload: AssetEvent{AssetID: assetID, UserID: userID}}
}

// NewAssetDelete builds an AssetDelete event.
func NewAssetDelete(assetID, userID string) Event {
	return Event{Name: EventAssetDelete, Payload: AssetEvent{AssetID: assetID, UserID: userID}}
}

// NewStackEvent builds a StackCreate, StackUpdate or StackDelete event.
func NewStackEvent(name EventName, stackID, userID string) Event {
	return Event{Name: name, Payload: StackEvent{StackID: stackID, UserID: userID}}
}

// NewStackDeleteAll builds a StackDeleteAll event.
func NewStackDeleteAll(stackIDs []string, userID string) Event {
	ids := make([]string, len(stackIDs))
	copy(ids, stackIDs)
	return Event{Name: EventStackDeleteAll, Payload: StackDeleteAllEvent{StackIDs: ids, UserID: userID}}
}

// PayloadObject converts the event payload into a plain object suitable for
// canonical JSON. Unknown payload types are rejected.
func (e Event) PayloadObject() (map[string]any, error) {
	switch p := e.Payload.(type) {
	case AssetEvent:
		return map[string]any{"assetId": p.AssetID, "userId": p.UserID}, nil
	case StackEvent:
		return map[string]any{"stackId": p.StackID, "userId": p.UserID}, nil
	case StackDeleteAllEvent:
		ids := make([]any, len(p.StackIDs))
		for i, id := range p.StackIDs {
			ids[i] = id
		}
		return map[string]any{"stackIds": ids, "userId": p.UserID}, nil
	case map[string]any:
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported payload type %T for event %s", e.Payload, e.Name)
	}
}

// DecodePayload rebuilds a typed payload from a plain object, using the event
// name to pick the payload type. Used when reading the journal or ingest streams.
func DecodePayload(name EventName, obj map[string]any) (any, error) {
	str := func(key string) string {
		s, _ := obj[key].(string)
		return s
	}

	switch name {
	case EventAssetMetadataExtracted, EventAssetDelete:
		return AssetEvent{AssetID: str("assetId"), UserID: str("userId")}, nil
	case EventStackCreate, EventStackUpdate, EventStackDelete:
		return StackEvent{StackID: str("stackId"), UserID: str("userId")}, nil
	case EventStackDeleteAll:
		raw, _ := obj["stackIds"].([]any)
		ids := make([]string, 0, len(raw))
		for _, v := range raw {
			s, ok := v.(string)
			if !ok {
				return nil, fmt.Errorf("stackIds: expected string, got %T", v)
			}
			ids = append(ids, s)
		}
		return StackDeleteAllEvent{StackIDs: ids, UserID: str("userId")}, nil
	default:
		return nil, fmt.Errorf("unknown event name %q", name)
	}
}
