package archivedb

// Message is one archived mail item. GraphID is the provider's mutable item
// identifier (it can change across a provider-side move); ImmutableID is the
// stable identifier used for dedup across delta windows and resyncs.
type Message struct {
	GraphID          string
	ImmutableID      string
	LocalPath        string
	FolderPath       string
	Subject          string
	Sender           string
	Recipients       string
	ReceivedTime     int64
	Size             int64
	HasAttachments   bool
	InReplyTo        string
	ConversationID   string
	QuarantinedAt    *int64
	QuarantineReason string
	CreatedAt        int64
	UpdatedAt        int64
}

// Folder mirrors one server-side folder, keyed by the provider's identifier
// with a uniquely-constrained LocalPath used for the on-disk mirror.
type Folder struct {
	GraphID         string
	ParentFolderID  string
	LocalPath       string
	DisplayName     string
	TotalItemCount  int64
	UnreadItemCount int64
	DeltaToken      string
	LastSyncTime    *int64
	CreatedAt       int64
	UpdatedAt       int64
}

// FolderSyncProgress records the last checkpoint of an in-flight folder sync.
// A row's existence means the folder's previous sync was interrupted before
// completion; it is deleted once the folder's delta page iteration finishes.
type FolderSyncProgress struct {
	FolderID             string
	PendingNextLink      string
	PendingPageNumber    int64
	PendingMessageIndex  int64
	SyncStartedAt        int64
	LastCheckpointAt     int64
	MessagesProcessed    int64
}

// Transformation records one derived-artifact generation for a message.
type Transformation struct {
	MessageID           string
	TransformationType  string
	AppliedAt           int64
	ConfigVersion       string
	OutputPath          string
	OutputSizeBytes     int64
}

// Attachment is one attachment extracted (or explicitly skipped) from a
// message.
type Attachment struct {
	ID          int64
	MessageID   string
	Filename    string
	FilePath    string
	SizeBytes   int64
	ContentType string
	ContentID   string
	IsInline    bool
	Skipped     bool
	SkipReason  string
	ExtractedAt *int64
}

// ZipExtraction records the analysis (and, if permitted, extraction outcome)
// of one zip-type attachment.
type ZipExtraction struct {
	ID                     string
	MessageID              string
	AttachmentID           int64
	FileCount              int64
	TotalUncompressedBytes int64
	HasExecutables         bool
	HasUnsafePaths         bool
	IsEncrypted            bool
	CanExtract             bool
	SkipReason             string
	AnalyzedAt             int64
}

// ZipExtractedFile is one file actually written out of a ZipExtraction.
type ZipExtractedFile struct {
	ID              int64
	ZipExtractionID string
	SourceEntry     string
	DestPath        string
}

// SyncState is the singleton-per-mailbox row tracking the most recent
// completed sync and, if one is in flight, the mailbox-level delta cursor.
type SyncState struct {
	MailboxID    string
	LastSyncTime *int64
	LastBatchID  string
	DeltaToken   string
	CreatedAt    int64
	UpdatedAt    int64
}
