package board

import (
	"sort"

	"github.com/google/uuid"
)

// DefaultTitle is the display title of a freshly seeded board.
const DefaultTitle = "My Retro Board"

// Item is a single votable note inside a lane.
type Item struct {
	Body      string `json:"body"`
	VoteCount uint64 `json:"vote_count"`
	SortOrder uint64 `json:"sort_order"`
}

// Lane is a titled column of items. Items are keyed by an id that is unique
// only within the lane.
type Lane struct {
	Title string           `json:"title"`
	Theme string           `json:"theme"`
	Items map[string]*Item `json:"items"`
}

// Board is the shared retrospective document. Lanes are keyed by lane id,
// which for lanes created at runtime is the lane title itself.
type Board struct {
	Title string           `json:"title"`
	Lanes map[string]*Lane `json:"lanes"`
}

// newItemID generates ids for items created at runtime. Seeded items use
// short literal ids, so callers must not assume any particular id shape.
var newItemID = uuid.NewString

// New returns an empty board with the given title.
func New(title string) *Board {
	return &Board{
		Title: title,
		Lanes: make(map[string]*Lane),
	}
}

func seedLane(title, theme string, bodies map[string]string, order []string) *Lane {
	lane := &Lane{
		Title: title,
		Theme: theme,
		Items: make(map[string]*Item, len(order)),
	}
	for i, id := range order {
		lane.Items[id] = &Item{Body: bodies[id], SortOrder: uint64(i)}
	}
	return lane
}

// Default returns the three-lane board used when no stored document is
// available.
func Default() *Board {
	b := New(DefaultTitle)
	b.Lanes["went-well"] = seedLane("Went Well", "went-well", map[string]string{
		"1": "We shipped the feature on time",
		"2": "The team worked well together",
	}, []string{"1", "2"})
	b.Lanes["to-improve"] = seedLane("To Improve", "to-improve", map[string]string{
		"3": "We need to improve our testing",
		"4": "We need to improve our communication",
	}, []string{"3", "4"})
	b.Lanes["action-items"] = seedLane("Action Items", "action-items", map[string]string{
		"5": "Write more tests",
		"6": "Schedule a team-building event",
	}, []string{"5", "6"})
	return b
}

// Normalize replaces nil maps left behind by decoding with empty ones so the
// mutation handlers never have to nil-check.
func (b *Board) Normalize() {
	if b.Lanes == nil {
		b.Lanes = make(map[string]*Lane)
	}
	for key, lane := range b.Lanes {
		if lane == nil {
			delete(b.Lanes, key)
			continue
		}
		if lane.Items == nil {
			lane.Items = make(map[string]*Item)
		}
		for id, item := range lane.Items {
			if item == nil {
				delete(lane.Items, id)
			}
		}
	}
}

// Clone returns a deep copy that shares no maps or items with b.
func (b *Board) Clone() *Board {
	out := &Board{
		Title: b.Title,
		Lanes: make(map[string]*Lane, len(b.Lanes)),
	}
	for key, lane := range b.Lanes {
		out.Lanes[key] = lane.clone()
	}
	return out
}

func (l *Lane) clone() *Lane {
	out := &Lane{
		Title: l.Title,
		Theme: l.Theme,
		Items: make(map[string]*Item, len(l.Items)),
	}
	for id, item := range l.Items {
		copied := *item
		out.Items[id] = &copied
	}
	return out
}

// SortedItemIDs returns the lane's item ids ordered by sort order. Items that
// share a sort order (possible after moves into a lane with gaps) are ordered
// by id so the result is deterministic.
func (l *Lane) SortedItemIDs() []string {
	ids := make([]string, 0, len(l.Items))
	for id := range l.Items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := l.Items[ids[i]], l.Items[ids[j]]
		if a.SortOrder != b.SortOrder {
			return a.SortOrder < b.SortOrder
		}
		return ids[i] < ids[j]
	})
	return ids
}
