// Package board defines the retrospective board document and the mutation
// engine that edits it.
//
// A Board holds lanes keyed by id, and each Lane holds items keyed by an id
// that is unique within the lane. Every client edit arrives as one of eight
// tagged actions (see DecodeAction) and is applied by a Board method that
// validates all of its preconditions before changing anything.
//
// Board values are not safe for concurrent use. The store package owns the
// single live Board and serializes every Apply call.
package board
