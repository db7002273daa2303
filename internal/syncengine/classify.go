package syncengine

import "github.com/mailkeep/mailkeep/internal/mailgraph"

// eventKind is the three-way classification spec.md §4.5.2 assigns to every
// delta item.
type eventKind int

const (
	presentEvent eventKind = iota
	deletionEvent
	moveEvent
)

func classify(item mailgraph.Item) eventKind {
	switch item.RemovedReason {
	case mailgraph.RemovedReasonDeleted:
		return deletionEvent
	case mailgraph.RemovedReasonMoved:
		return moveEvent
	default:
		return presentEvent
	}
}
