package board

import (
	"bytes"
	"encoding/json"
)

// Action is one client mutation. Concrete actions are the eight types below;
// DecodeAction only ever produces those.
type Action interface {
	// Kind is the wire "type" tag.
	Kind() string
	// Apply performs the mutation. Apply must be called with exclusive
	// access to b.
	Apply(b *Board) error
}

// AddLane creates an empty lane titled Title.
type AddLane struct {
	Title string `json:"title"`
}

// AddItem appends an item with Body to lane LaneID.
type AddItem struct {
	LaneID string `json:"lane_id"`
	Body   string `json:"body"`
}

// RemoveItem deletes item ID from lane LaneID.
type RemoveItem struct {
	LaneID string `json:"lane_id"`
	ID     string `json:"id"`
}

// UpvoteItem adds one vote to item ID in lane LaneID.
type UpvoteItem struct {
	LaneID string `json:"lane_id"`
	ID     string `json:"id"`
}

// MoveItem transfers ItemID from FromLaneID to the end of ToLaneID.
type MoveItem struct {
	FromLaneID string `json:"from_lane_id"`
	ToLaneID   string `json:"to_lane_id"`
	ItemID     string `json:"item_id"`
}

// ReorderItem places ItemID at NewPosition within lane LaneID.
type ReorderItem struct {
	LaneID      string `json:"lane_id"`
	ItemID      string `json:"item_id"`
	NewPosition uint64 `json:"new_position"`
}

// EditItem replaces the body of item ID in lane LaneID.
type EditItem struct {
	LaneID string `json:"lane_id"`
	ID     string `json:"id"`
	Body   string `json:"body"`
}

// MergeItems folds SourceID into TargetID, giving the target MergedBody.
type MergeItems struct {
	LaneID     string `json:"lane_id"`
	SourceID   string `json:"source_id"`
	TargetID   string `json:"target_id"`
	MergedBody string `json:"merged_body"`
}

func (AddLane) Kind() string     { return "AddLane" }
func (AddItem) Kind() string     { return "AddItem" }
func (RemoveItem) Kind() string  { return "RemoveItem" }
func (UpvoteItem) Kind() string  { return "UpvoteItem" }
func (MoveItem) Kind() string    { return "MoveItem" }
func (ReorderItem) Kind() string { return "ReorderItem" }
func (EditItem) Kind() string    { return "EditItem" }
func (MergeItems) Kind() string  { return "MergeItems" }

func (a AddLane) Apply(b *Board) error { return b.AddLane(a.Title) }

func (a AddItem) Apply(b *Board) error {
	_, err := b.AddItem(a.LaneID, a.Body)
	return err
}

func (a RemoveItem) Apply(b *Board) error { return b.RemoveItem(a.LaneID, a.ID) }
func (a UpvoteItem) Apply(b *Board) error { return b.UpvoteItem(a.LaneID, a.ID) }

func (a MoveItem) Apply(b *Board) error {
	return b.MoveItem(a.FromLaneID, a.ToLaneID, a.ItemID)
}

func (a ReorderItem) Apply(b *Board) error {
	return b.ReorderItem(a.LaneID, a.ItemID, a.NewPosition)
}

func (a EditItem) Apply(b *Board) error { return b.EditItem(a.LaneID, a.ID, a.Body) }

func (a MergeItems) Apply(b *Board) error {
	return b.MergeItems(a.LaneID, a.SourceID, a.TargetID, a.MergedBody)
}

type actionSpec struct {
	fields []string
	decode func(raw []byte) (Action, error)
}

func decodeInto[T Action](raw []byte) (Action, error) {
	var action T
	if err := json.Unmarshal(raw, &action); err != nil {
		return nil, err
	}
	return action, nil
}

var actionSpecs = map[string]actionSpec{
	"AddLane":     {[]string{"title"}, decodeInto[AddLane]},
	"AddItem":     {[]string{"lane_id", "body"}, decodeInto[AddItem]},
	"RemoveItem":  {[]string{"lane_id", "id"}, decodeInto[RemoveItem]},
	"UpvoteItem":  {[]string{"lane_id", "id"}, decodeInto[UpvoteItem]},
	"MoveItem":    {[]string{"from_lane_id", "to_lane_id", "item_id"}, decodeInto[MoveItem]},
	"ReorderItem": {[]string{"lane_id", "item_id", "new_position"}, decodeInto[ReorderItem]},
	"EditItem":    {[]string{"lane_id", "id", "body"}, decodeInto[EditItem]},
	"MergeItems":  {[]string{"lane_id", "source_id", "target_id", "merged_body"}, decodeInto[MergeItems]},
}

// DecodeAction parses a tagged JSON message into one of the eight actions.
// Every field of the chosen action must be present and non-null; unknown
// fields are ignored. Failures are returned as *DecodeError.
func DecodeAction(raw []byte) (Action, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, &DecodeError{Reason: "malformed json", Err: err}
	}

	var kind string
	tag, ok := fields["type"]
	if !ok {
		return nil, &DecodeError{Reason: "missing type"}
	}
	if err := json.Unmarshal(tag, &kind); err != nil {
		return nil, &DecodeError{Reason: "type is not a string", Err: err}
	}

	spec, ok := actionSpecs[kind]
	if !ok {
		return nil, &DecodeError{Type: kind, Reason: "unknown action type"}
	}
	for _, name := range spec.fields {
		value, present := fields[name]
		if !present || bytes.Equal(bytes.TrimSpace(value), []byte("null")) {
			return nil, &DecodeError{Type: kind, Reason: "missing field " + name}
		}
	}

	action, err := spec.decode(raw)
	if err != nil {
		return nil, &DecodeError{Type: kind, Reason: "bad field value", Err: err}
	}
	return action, nil
}

// EncodeAction renders an action in the tagged wire format.
func EncodeAction(action Action) ([]byte, error) {
	body, err := json.Marshal(action)
	if err != nil {
		return nil, err
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, err
	}
	tag, err := json.Marshal(action.Kind())
	if err != nil {
		return nil, err
	}
	fields["type"] = tag
	return json.Marshal(fields)
}
