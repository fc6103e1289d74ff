package duckdb

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/tinytelemetry/journalscope/internal/ingest"
	"github.com/tinytelemetry/journalscope/internal/model"
)

const journalColumns = `id, source, journal_path, product_version, product_release, build, branch,
	username, machine_name, os_version, session_id, block_count, record_count, session_seconds,
	terminated_cleanly, has_api_errors, has_exceptions, processing_ms, decoded_at`

// UpsertJournal stores the summary row of a journal. Records previously
// stored under the same id are removed so a re-decoded journal replaces
// the old one.
func (s *Store) UpsertJournal(j model.JournalRow) error {
	if j.ID == "" {
		return errors.New("duckdb: journal id is empty")
	}

	ctx, cancel := s.queryCtx()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE journal_id = ?`, j.ID); err != nil {
		return fmt.Errorf("duckdb: clear records of %s: %w", j.ID, err)
	}
	_, err = tx.ExecContext(ctx, `INSERT OR REPLACE INTO journals (`+journalColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, j.Source, j.Path, j.Version, j.Release, j.Build, j.Branch,
		j.Username, j.MachineName, j.OSVersion, j.SessionID, j.BlockCount, j.RecordCount, j.SessionSeconds,
		j.TerminatedCleanly, j.HasAPIErrors, j.HasExceptions, j.ProcessingMillis, j.DecodedAt,
	)
	if err != nil {
		return fmt.Errorf("duckdb: upsert journal %s: %w", j.ID, err)
	}
	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJournal(sc rowScanner) (model.JournalRow, error) {
	var j model.JournalRow
	err := sc.Scan(&j.ID, &j.Source, &j.Path, &j.Version, &j.Release, &j.Build, &j.Branch,
		&j.Username, &j.MachineName, &j.OSVersion, &j.SessionID, &j.BlockCount, &j.RecordCount, &j.SessionSeconds,
		&j.TerminatedCleanly, &j.HasAPIErrors, &j.HasExceptions, &j.ProcessingMillis, &j.DecodedAt)
	return j, err
}

// ListJournals returns the most recently decoded journals first.
func (s *Store) ListJournals(limit int) ([]model.JournalRow, error) {
	if limit <= 0 {
		limit = model.DefaultJournalLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+journalColumns+` FROM journals ORDER BY decoded_at DESC, id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.JournalRow
	for rows.Next() {
		j, err := scanJournal(rows)
		if err != nil {
			log.Printf("duckdb scan error (ListJournals): %v", err)
			continue
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

// GetJournal returns the journal with the given id.
func (s *Store) GetJournal(id string) (model.JournalRow, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx, cancel := s.queryCtx()
	defer cancel()
	j, err := scanJournal(s.db.QueryRowContext(ctx,
		`SELECT `+journalColumns+` FROM journals WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.JournalRow{}, false, nil
	}
	if err != nil {
		return model.JournalRow{}, false, err
	}
	return j, true, nil
}

// Purge counts what one expiry pass removed.
type Purge struct {
	Journals int64
	Records  int64
}

// DeleteBefore removes journals decoded before cutoff together with their
// records.
func (s *Store) DeleteBefore(cutoff time.Time) (Purge, error) {
	ctx, cancel := s.queryCtx()
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()

	var p Purge
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return p, err
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		`DELETE FROM records WHERE journal_id IN (SELECT id FROM journals WHERE decoded_at < ?)`, cutoff)
	if err != nil {
		return p, fmt.Errorf("duckdb: delete expired records: %w", err)
	}
	p.Records, _ = res.RowsAffected()

	res, err = tx.ExecContext(ctx, `DELETE FROM journals WHERE decoded_at < ?`, cutoff)
	if err != nil {
		return Purge{}, fmt.Errorf("duckdb: delete expired journals: %w", err)
	}
	p.Journals, _ = res.RowsAffected()

	if err := tx.Commit(); err != nil {
		return Purge{}, err
	}
	return p, nil
}

type rowCollector struct{ rows []*model.RecordRow }

func (c *rowCollector) Add(row *model.RecordRow) { c.rows = append(c.rows, row) }

// InsertDocument stores a decoded journal and all of its records
// synchronously. It returns the number of records written.
func (s *Store) InsertDocument(id string, doc *model.Document, decodedAt time.Time) (int, error) {
	var c rowCollector
	n, err := ingest.Publish(doc, id, decodedAt, s, &c)
	if err != nil {
		return 0, err
	}
	for start := 0; start < len(c.rows); start += model.DefaultInsertBatch {
		end := min(start+model.DefaultInsertBatch, len(c.rows))
		if err := s.InsertRecordBatch(c.rows[start:end]); err != nil {
			return 0, fmt.Errorf("duckdb: insert records of %s: %w", id, err)
		}
	}
	return n, nil
}
