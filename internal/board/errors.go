package board

import (
	"errors"
	"fmt"
)

var (
	// ErrLaneNotFound is matched by any NotFoundError about a lane.
	ErrLaneNotFound = errors.New("lane not found")
	// ErrItemNotFound is matched by any NotFoundError about an item.
	ErrItemNotFound = errors.New("item not found")
	// ErrLaneExists is returned by AddLane when the title is already a lane key.
	ErrLaneExists = errors.New("lane already exists")
	// ErrItemExists is returned by MoveItem when the destination lane already
	// holds an item with the same id.
	ErrItemExists = errors.New("item already exists in destination lane")
	// ErrSelfMerge is returned by MergeItems when source and target are the same item.
	ErrSelfMerge = errors.New("cannot merge an item into itself")
)

// Entity names the kind of thing a NotFoundError refers to.
type Entity string

const (
	EntityLane Entity = "lane"
	EntityItem Entity = "item"
)

// NotFoundError reports a lane or item referenced by an action that does not
// exist on the board.
type NotFoundError struct {
	Entity Entity
	Lane   string
	Item   string
}

func (e *NotFoundError) Error() string {
	if e.Entity == EntityItem {
		return fmt.Sprintf("item %q not found in lane %q", e.Item, e.Lane)
	}
	return fmt.Sprintf("lane %q not found", e.Lane)
}

// Is lets callers match with errors.Is(err, ErrLaneNotFound) or ErrItemNotFound.
func (e *NotFoundError) Is(target error) bool {
	switch target {
	case ErrLaneNotFound:
		return e.Entity == EntityLane
	case ErrItemNotFound:
		return e.Entity == EntityItem
	}
	return false
}

func laneNotFound(lane string) error {
	return &NotFoundError{Entity: EntityLane, Lane: lane}
}

func itemNotFound(lane, item string) error {
	return &NotFoundError{Entity: EntityItem, Lane: lane, Item: item}
}

// DecodeError is returned when an inbound message is not a well-formed action.
type DecodeError struct {
	Type   string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := "invalid action"
	if e.Type != "" {
		msg += " " + e.Type
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Code maps an error produced by decoding or applying an action to a stable
// identifier suitable for sending back to clients.
func Code(err error) string {
	var decodeErr *DecodeError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &decodeErr):
		return "invalid_action"
	case errors.Is(err, ErrLaneNotFound):
		return "lane_not_found"
	case errors.Is(err, ErrItemNotFound):
		return "item_not_found"
	case errors.Is(err, ErrLaneExists):
		return "lane_exists"
	case errors.Is(err, ErrItemExists):
		return "item_exists"
	case errors.Is(err, ErrSelfMerge):
		return "self_merge"
	default:
		return "internal"
	}
}
