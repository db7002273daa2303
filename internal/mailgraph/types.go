package mailgraph

import "time"

// Folder is a normalized mail folder, built by walking the provider's
// folder tree recursively to compute FullPath.
type Folder struct {
	ID              string
	DisplayName     string
	ParentID        string
	FullPath        string
	TotalItemCount  int64
	UnreadItemCount int64
}

// RemovedReason distinguishes why an Item appeared in a delta page with a
// removal marker: deleted, or moved to another folder. RemovedReasonNone
// marks a present item.
type RemovedReason string

const (
	RemovedReasonNone    RemovedReason = ""
	RemovedReasonDeleted RemovedReason = "deleted"
	RemovedReasonMoved   RemovedReason = "moved"
)

// Item is one message entry inside a DeltaPage or a ListMessagesSince
// result, carrying only the fields the sync engine's event classification
// needs (present / removed / moved).
type Item struct {
	ID                string
	ImmutableID       string
	InternetMessageID string
	Subject           string
	From              string
	ReceivedTime      time.Time
	HasAttachments    bool
	ParentFolderID    string
	RemovedReason     RemovedReason
	NewParentFolderID string
}

// DeltaPage is one page of delta results. Exactly one of NextCursor or
// FinalCursor is non-empty: NextCursor means more pages remain, FinalCursor
// means the page iteration for this delta session is complete.
type DeltaPage struct {
	Items       []Item
	NextCursor  string
	FinalCursor string
}
