package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/powens/tinyretro/internal/board"
)

// ErrNoDocument is returned by Gateway.Load when storage holds no board yet.
var ErrNoDocument = errors.New("no stored board")

// Gateway loads and saves the board in durable storage.
type Gateway interface {
	Load(ctx context.Context) (*board.Board, error)
	Save(ctx context.Context, b *board.Board) error
	Close() error
}

// PersistenceError wraps a storage failure with the operation and backend
// that produced it.
type PersistenceError struct {
	Op      string
	Backend string
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Backend, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

func encodeBoard(b *board.Board) ([]byte, error) {
	return json.Marshal(b)
}

// errIncompleteBoard marks a stored document that parses as JSON but is
// missing part of the board.
var errIncompleteBoard = errors.New("incomplete board document")

// storedBoard mirrors board.Board with pointer fields so absent keys can be
// told apart from zero values.
type storedBoard struct {
	Title *string                `json:"title"`
	Lanes map[string]*storedLane `json:"lanes"`
}

type storedLane struct {
	Title *string                `json:"title"`
	Theme *string                `json:"theme"`
	Items map[string]*storedItem `json:"items"`
}

type storedItem struct {
	Body      *string `json:"body"`
	VoteCount *uint64 `json:"vote_count"`
	SortOrder *uint64 `json:"sort_order"`
}

// decodeBoard parses a stored document. Every field of the board, its lanes
// and their items must be present.
func decodeBoard(data []byte) (*board.Board, error) {
	var doc storedBoard
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode board: %w", err)
	}
	if doc.Title == nil || doc.Lanes == nil {
		return nil, fmt.Errorf("decode board: %w: missing title or lanes", errIncompleteBoard)
	}

	b := board.New(*doc.Title)
	for laneID, lane := range doc.Lanes {
		if lane == nil || lane.Title == nil || lane.Theme == nil || lane.Items == nil {
			return nil, fmt.Errorf("decode board: %w: lane %q", errIncompleteBoard, laneID)
		}
		out := &board.Lane{
			Title: *lane.Title,
			Theme: *lane.Theme,
			Items: make(map[string]*board.Item, len(lane.Items)),
		}
		for itemID, item := range lane.Items {
			if item == nil || item.Body == nil || item.VoteCount == nil || item.SortOrder == nil {
				return nil, fmt.Errorf("decode board: %w: item %q in lane %q", errIncompleteBoard, itemID, laneID)
			}
			out.Items[itemID] = &board.Item{
				Body:      *item.Body,
				VoteCount: *item.VoteCount,
				SortOrder: *item.SortOrder,
			}
		}
		b.Lanes[laneID] = out
	}
	return b, nil
}
