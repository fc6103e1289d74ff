package main

import (
	"fmt"
	"log"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tinytelemetry/journalscope/internal/duckdb"
	"github.com/tinytelemetry/journalscope/internal/ingest"
	"github.com/tinytelemetry/journalscope/internal/model"
	"github.com/tinytelemetry/journalscope/internal/spool"
)

// journalID derives a stable id from the absolute path, so re-ingesting a
// file replaces its earlier rows.
func journalID(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+filepath.ToSlash(abs))).String()
}

// ingestPath decodes path and publishes it through journals and records.
func ingestPath(path string, journals ingest.JournalSink, records ingest.RecordSink, opts ...ingest.Option) (string, int, error) {
	doc, err := decodeFile(path, opts...)
	if err != nil {
		return "", 0, err
	}
	id := journalID(path)
	n, err := ingest.Publish(doc, id, time.Now().UTC(), journals, records)
	if err != nil {
		return id, 0, err
	}
	recordsIngested.Add(float64(n))
	return id, n, nil
}

func (a *app) openStore() (*duckdb.Store, error) {
	store, err := duckdb.NewStore(a.cfg.DBPath, a.cfg.QueryTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize DuckDB: %w", err)
	}
	return store, nil
}

func (a *app) ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest FILE...",
		Short: "Decode journals and store them in DuckDB",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := a.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			results, err := decodeAll(cmd.Context(), args, a.cfg.DecodeWorkers, a.decodeOptions()...)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for i := range results {
				r := &results[i]
				if r.Err != nil {
					continue
				}
				id := journalID(r.Path)
				n, err := store.InsertDocument(id, r.Doc, time.Now().UTC())
				if err != nil {
					r.Err = err
					continue
				}
				recordsIngested.Add(float64(n))
				fmt.Fprintf(out, "%s  %s  %d records\n", id, shortenPath(r.Path), n)
			}
			return reportFailures(cmd.ErrOrStderr(), results)
		},
	}
}

// replayUncommittedSpool stores rows left in the spool by an earlier run
// that stopped before flushing them.
func replayUncommittedSpool(sp *spool.Spool, store duckdb.RecordWriter, batchSize int) error {
	if sp == nil {
		return nil
	}
	if batchSize <= 0 {
		batchSize = model.DefaultInsertBatch
	}

	batch := make([]*model.RecordRow, 0, batchSize)
	batchMaxSeq := uint64(0)
	replayed := 0

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := store.InsertRecordBatch(batch); err != nil {
			return err
		}
		if batchMaxSeq > 0 {
			if err := sp.Commit(batchMaxSeq); err != nil {
				return err
			}
		}
		replayed += len(batch)
		batch = make([]*model.RecordRow, 0, batchSize)
		batchMaxSeq = 0
		return nil
	}

	if err := sp.Replay(func(seq uint64, row *model.RecordRow) error {
		copied := *row
		batch = append(batch, &copied)
		if seq > batchMaxSeq {
			batchMaxSeq = seq
		}
		if len(batch) >= batchSize {
			return flush()
		}
		return nil
	}); err != nil {
		return err
	}

	if err := flush(); err != nil {
		return err
	}
	if replayed > 0 {
		log.Printf("spool: replayed %d uncommitted records", replayed)
	}
	return nil
}
