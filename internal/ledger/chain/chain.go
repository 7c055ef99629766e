// Package chain reconstructs the order of a ticket's messages from their
// parent references.
package chain

import (
	"errors"
	"fmt"

	"ticket_ledger/internal/model"
)

var (
	ErrNoRoot        = errors.New("chain has no root message")
	ErrMultipleRoots = errors.New("chain has more than one root message")
	ErrOrphan        = errors.New("message is not connected to the chain root")
	ErrDuplicateID   = errors.New("message id appears more than once")
)

// Order returns the breadth-first traversal of messages starting at the one
// message without a parent. Children of a node keep their relative input
// order, so the same set in the same order always yields the same sequence.
//
// Every message must be reachable from the root; an unresolvable parent or a
// detached cycle aborts with ErrOrphan instead of producing a partial chain.
// The input slice and the messages are not modified.
func Order(messages []*model.Message) ([]*model.Message, error) {
	var root *model.Message
	index := make(map[string]*model.Message, len(messages))
	children := make(map[string][]*model.Message, len(messages))

	for _, m := range messages {
		if _, ok := index[m.ID]; ok {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateID, m.ID)
		}
		index[m.ID] = m

		if m.ParentID == nil {
			if root != nil {
				return nil, fmt.Errorf("%w: %s and %s", ErrMultipleRoots, root.ID, m.ID)
			}
			root = m
			continue
		}
		children[*m.ParentID] = append(children[*m.ParentID], m)
	}

	if root == nil {
		return nil, ErrNoRoot
	}

	for _, m := range messages {
		if m.ParentID != nil {
			if _, ok := index[*m.ParentID]; !ok {
				return nil, fmt.Errorf("%w: %s references unknown parent %s", ErrOrphan, m.ID, *m.ParentID)
			}
		}
	}

	ordered := make([]*model.Message, 0, len(messages))
	queue := []*model.Message{root}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		ordered = append(ordered, current)
		queue = append(queue, children[current.ID]...)
	}

	if len(ordered) != len(messages) {
		reached := make(map[string]struct{}, len(ordered))
		for _, m := range ordered {
			reached[m.ID] = struct{}{}
		}
		for _, m := range messages {
			if _, ok := reached[m.ID]; !ok {
				return nil, fmt.Errorf("%w: %s is unreachable from root %s", ErrOrphan, m.ID, root.ID)
			}
		}
	}

	return ordered, nil
}

// IDs is a convenience for logging and tests.
func IDs(messages []*model.Message) []string {
	out := make([]string, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.ID)
	}
	return out
}
