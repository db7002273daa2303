// Package archivedb persists mailkeep's sync state: archived message
// records, folder mappings, in-flight sync checkpoints, derived-artifact
// bookkeeping, and the mailbox-level delta cursor. It wraps a single SQLite
// database file, migrated forward with goose and accessed through a small
// set of grouped prepared statements.
package archivedb

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // pure Go driver, registers as "sqlite"

	"github.com/mailkeep/mailkeep/internal/archiveerr"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// walJournalSizeLimit caps the WAL file before SQLite forces a checkpoint.
const walJournalSizeLimit = 67108864 // 64 MiB

// Store is the archive's SQLite-backed state store. All timestamp fields
// are Unix nanoseconds, converted at the boundary with NowNano/FromTime.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	messageStmts        messageStatements
	folderStmts         folderStatements
	progressStmts       progressStatements
	transformationStmts transformationStatements
	attachmentStmts     attachmentStatements
	syncStateStmts      syncStateStatements
}

type messageStatements struct {
	upsert, getByImmutableID, getByGraphID, quarantine, listByFolder, deleteByGraphID, allGraphIDs *sql.Stmt
}

type folderStatements struct {
	upsert, getByPath, getByGraphID, list, deleteByGraphID *sql.Stmt
}

type progressStatements struct {
	upsert, get, delete *sql.Stmt
}

type transformationStatements struct {
	upsert, needingTransformation *sql.Stmt
}

type attachmentStatements struct {
	insert, insertZipExtraction, insertZipExtractedFile, listByMessage *sql.Stmt
}

type syncStateStatements struct {
	get, upsert *sql.Stmt
}

// New opens (creating if necessary) the database at dbPath, applies all
// pending migrations, sets durability pragmas, and prepares every repeated
// statement. Use ":memory:" for tests.
func New(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	logger.Info("opening archive database", "path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindSchema, "opening sqlite database", err)
	}

	if err := setPragmas(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, logger: logger}

	if err := s.prepareAllStatements(ctx); err != nil {
		db.Close()
		return nil, archiveerr.New(archiveerr.KindSchema, "preparing statements", err)
	}

	logger.Info("archive database ready", "path", dbPath)

	return s, nil
}

func setPragmas(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	pragmas := []struct {
		sql  string
		desc string
	}{
		{"PRAGMA journal_mode = WAL", "WAL mode"},
		{"PRAGMA synchronous = FULL", "synchronous FULL"},
		{"PRAGMA foreign_keys = ON", "foreign keys"},
		{fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit), "journal size limit"},
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p.sql); err != nil {
			return archiveerr.New(archiveerr.KindSchema, "setting pragma "+p.desc, err)
		}

		logger.Debug("pragma set", "pragma", p.desc)
	}

	return nil
}

// runMigrations applies all embedded migrations via goose's context-aware
// Provider API. Migration files are forward-only and monotonically
// numbered; goose records what has been applied in its default bookkeeping
// table, goose_db_version. No table named schema_version is created.
func runMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	subFS, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return archiveerr.New(archiveerr.KindSchema, "creating migration sub-filesystem", err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, db, subFS)
	if err != nil {
		return archiveerr.New(archiveerr.KindSchema, "creating migration provider", err)
	}

	results, err := provider.Up(ctx)
	if err != nil {
		return archiveerr.New(archiveerr.KindSchema, "running migrations", err)
	}

	for _, r := range results {
		logger.Info("applied migration",
			slog.String("source", r.Source.Path),
			slog.Int64("duration_ms", r.Duration.Milliseconds()),
		)
	}

	return nil
}

// NowNano returns the current time as Unix nanoseconds, the storage
// convention for every timestamp column in this package.
func NowNano() int64 {
	return time.Now().UnixNano()
}

// ToUnixNano converts a time.Time to the stored Unix-nanosecond convention.
func ToUnixNano(t time.Time) int64 {
	return t.UnixNano()
}

// FromUnixNano converts a stored Unix-nanosecond value back to a time.Time
// in UTC.
func FromUnixNano(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}

// Tx wraps a database transaction so callers can issue multiple statements
// atomically (e.g. a folder-sync checkpoint writing progress and message
// rows together) while reusing the Store's prepared statements rather than
// re-preparing SQL per transaction.
type Tx struct {
	tx    *sql.Tx
	store *Store
}

// BeginTx starts a new transaction.
func (s *Store) BeginTx(ctx context.Context) (*Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, archiveerr.New(archiveerr.KindSchema, "beginning transaction", err)
	}

	return &Tx{tx: tx, store: s}, nil
}

// Commit commits the transaction.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return archiveerr.New(archiveerr.KindSchema, "committing transaction", err)
	}

	return nil
}

// Rollback aborts the transaction. Calling Rollback after a successful
// Commit is a no-op error from database/sql and is safe to ignore.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
		return archiveerr.New(archiveerr.KindSchema, "rolling back transaction", err)
	}

	return nil
}

// stmt binds one of the Store's prepared statements to this transaction.
func (t *Tx) stmt(ctx context.Context, prepared *sql.Stmt) *sql.Stmt {
	return t.tx.StmtContext(ctx, prepared)
}

func (s *Store) prepareAllStatements(ctx context.Context) error {
	preparers := []func(context.Context) error{
		s.prepareMessageStmts,
		s.prepareFolderStmts,
		s.prepareProgressStmts,
		s.prepareTransformationStmts,
		s.prepareAttachmentStmts,
		s.prepareSyncStateStmts,
	}

	for _, prepare := range preparers {
		if err := prepare(ctx); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) prepare(ctx context.Context, query string) (*sql.Stmt, error) {
	stmt, err := s.db.PrepareContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("preparing statement: %w\n%s", err, query)
	}

	return stmt, nil
}

// Close closes every prepared statement, then the database handle itself,
// collecting (rather than short-circuiting on) any statement-close errors.
func (s *Store) Close() error {
	s.logger.Info("closing archive database")

	if err := s.closeStatements(); err != nil {
		s.logger.Error("error closing statements", "error", err)
	}

	if err := s.db.Close(); err != nil {
		return archiveerr.New(archiveerr.KindSchema, "closing database", err)
	}

	return nil
}

func (s *Store) closeStatements() error {
	all := []*sql.Stmt{
		s.messageStmts.upsert, s.messageStmts.getByImmutableID, s.messageStmts.getByGraphID,
		s.messageStmts.quarantine, s.messageStmts.listByFolder, s.messageStmts.deleteByGraphID,
		s.messageStmts.allGraphIDs,
		s.folderStmts.upsert, s.folderStmts.getByPath, s.folderStmts.getByGraphID,
		s.folderStmts.list, s.folderStmts.deleteByGraphID,
		s.progressStmts.upsert, s.progressStmts.get, s.progressStmts.delete,
		s.transformationStmts.upsert, s.transformationStmts.needingTransformation,
		s.attachmentStmts.insert, s.attachmentStmts.insertZipExtraction,
		s.attachmentStmts.insertZipExtractedFile, s.attachmentStmts.listByMessage,
		s.syncStateStmts.get, s.syncStateStmts.upsert,
	}

	var errs []error

	for _, stmt := range all {
		if stmt == nil {
			continue
		}

		if err := stmt.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}
