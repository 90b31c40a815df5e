package board

// The methods in this file are the mutation engine. Each one checks every
// precondition before touching the board, so a returned error always means
// the board is unchanged.

func (b *Board) lane(id string) (*Lane, error) {
	lane, ok := b.Lanes[id]
	if !ok {
		return nil, laneNotFound(id)
	}
	return lane, nil
}

func (b *Board) item(laneID, itemID string) (*Lane, *Item, error) {
	lane, err := b.lane(laneID)
	if err != nil {
		return nil, nil, err
	}
	item, ok := lane.Items[itemID]
	if !ok {
		return nil, nil, itemNotFound(laneID, itemID)
	}
	return lane, item, nil
}

// AddLane creates an empty lane keyed by its title. The lane theme is taken
// from the board title.
func (b *Board) AddLane(title string) error {
	if _, exists := b.Lanes[title]; exists {
		return ErrLaneExists
	}
	b.Lanes[title] = &Lane{
		Title: title,
		Theme: b.Title,
		Items: make(map[string]*Item),
	}
	return nil
}

// AddItem appends a new item to the lane and returns its generated id.
func (b *Board) AddItem(laneID, body string) (string, error) {
	lane, err := b.lane(laneID)
	if err != nil {
		return "", err
	}
	id := newItemID()
	lane.Items[id] = &Item{
		Body:      body,
		SortOrder: uint64(len(lane.Items)),
	}
	return id, nil
}

// RemoveItem deletes the item if present. Removing an absent id is a no-op.
// Sort orders of the remaining items are left as they are.
func (b *Board) RemoveItem(laneID, itemID string) error {
	lane, err := b.lane(laneID)
	if err != nil {
		return err
	}
	delete(lane.Items, itemID)
	return nil
}

// UpvoteItem adds one vote to the item.
func (b *Board) UpvoteItem(laneID, itemID string) error {
	_, item, err := b.item(laneID, itemID)
	if err != nil {
		return err
	}
	item.VoteCount++
	return nil
}

// MoveItem transfers an item to the end of another lane. The destination is
// checked before the item leaves the source, so a bad destination leaves the
// item where it was. Moving an item that is not in the source lane is a no-op.
func (b *Board) MoveItem(fromLaneID, toLaneID, itemID string) error {
	if fromLaneID == toLaneID {
		return nil
	}
	from, err := b.lane(fromLaneID)
	if err != nil {
		return err
	}
	to, err := b.lane(toLaneID)
	if err != nil {
		return err
	}
	item, ok := from.Items[itemID]
	if !ok {
		return nil
	}
	if _, clash := to.Items[itemID]; clash {
		return ErrItemExists
	}

	delete(from.Items, itemID)
	item.SortOrder = uint64(len(to.Items))
	to.Items[itemID] = item
	return nil
}

// ReorderItem moves an item to position within its lane and renumbers every
// item in the lane to a dense 0..N-1 sequence. Positions past the end clamp
// to the last slot. Reordering an absent item is a no-op.
func (b *Board) ReorderItem(laneID, itemID string, position uint64) error {
	lane, err := b.lane(laneID)
	if err != nil {
		return err
	}
	if _, ok := lane.Items[itemID]; !ok {
		return nil
	}

	ordered := lane.SortedItemIDs()
	rest := make([]string, 0, len(ordered))
	for _, id := range ordered {
		if id != itemID {
			rest = append(rest, id)
		}
	}

	index := len(rest)
	if position < uint64(len(rest)) {
		index = int(position)
	}
	rest = append(rest, "")
	copy(rest[index+1:], rest[index:])
	rest[index] = itemID

	for i, id := range rest {
		lane.Items[id].SortOrder = uint64(i)
	}
	return nil
}

// EditItem replaces the item's body. Votes and sort order are kept.
func (b *Board) EditItem(laneID, itemID, body string) error {
	_, item, err := b.item(laneID, itemID)
	if err != nil {
		return err
	}
	item.Body = body
	return nil
}

// MergeItems folds source into target: the target takes the merged body and
// the sum of both vote counts, and the source is removed.
func (b *Board) MergeItems(laneID, sourceID, targetID, body string) error {
	lane, source, err := b.item(laneID, sourceID)
	if err != nil {
		return err
	}
	target, ok := lane.Items[targetID]
	if !ok {
		return itemNotFound(laneID, targetID)
	}
	if sourceID == targetID {
		return ErrSelfMerge
	}

	target.Body = body
	target.VoteCount += source.VoteCount
	delete(lane.Items, sourceID)
	return nil
}
