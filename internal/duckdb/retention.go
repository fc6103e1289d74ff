package duckdb

import (
	"log"
	"sync"
	"time"

	"github.com/tinytelemetry/journalscope/internal/model"
)

// JournalExpirer removes journals decoded before a cutoff.
type JournalExpirer interface {
	DeleteBefore(cutoff time.Time) (Purge, error)
}

// RetentionConfig holds configuration for the retention cleaner.
type RetentionConfig struct {
	RetentionDays int
	Interval      time.Duration    // hourly when zero
	Now           func() time.Time // clock for the cutoff
}

// RetentionCleaner expires journals whose decoded_at is older than the
// retention period, together with their records.
type RetentionCleaner struct {
	expirer JournalExpirer
	maxAge  time.Duration
	now     func() time.Time

	mu    sync.Mutex
	total Purge

	done     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewRetentionCleaner expires old journals once, then again every
// interval. It returns nil when retention is disabled.
func NewRetentionCleaner(expirer JournalExpirer, conf ...RetentionConfig) *RetentionCleaner {
	cfg := RetentionConfig{RetentionDays: model.DefaultRetentionDays}
	if len(conf) > 0 {
		cfg = conf[0]
	}
	if cfg.RetentionDays <= 0 {
		return nil
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	rc := &RetentionCleaner{
		expirer: expirer,
		maxAge:  time.Duration(cfg.RetentionDays) * 24 * time.Hour,
		now:     cfg.Now,
		done:    make(chan struct{}),
	}

	rc.expire()

	rc.wg.Add(1)
	go rc.loop(cfg.Interval)
	return rc
}

func (rc *RetentionCleaner) loop(interval time.Duration) {
	defer rc.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rc.expire()
		case <-rc.done:
			return
		}
	}
}

// Cutoff returns the decode time before which journals expire.
func (rc *RetentionCleaner) Cutoff() time.Time {
	return rc.now().Add(-rc.maxAge)
}

func (rc *RetentionCleaner) expire() {
	cutoff := rc.Cutoff()
	p, err := rc.expirer.DeleteBefore(cutoff)
	if err != nil {
		log.Printf("duckdb: retention: expire journals before %s: %v", cutoff.Format(time.RFC3339), err)
		return
	}
	if p.Journals == 0 {
		return
	}

	rc.mu.Lock()
	rc.total.Journals += p.Journals
	rc.total.Records += p.Records
	rc.mu.Unlock()
	log.Printf("duckdb: retention: expired %d journals (%d records) decoded before %s",
		p.Journals, p.Records, cutoff.Format(time.RFC3339))
}

// Expired returns the journals and records removed since the cleaner
// started.
func (rc *RetentionCleaner) Expired() Purge {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.total
}

// Stop signals the cleaner to stop and waits for it to finish.
func (rc *RetentionCleaner) Stop() {
	rc.stopOnce.Do(func() {
		close(rc.done)
		rc.wg.Wait()
	})
}
