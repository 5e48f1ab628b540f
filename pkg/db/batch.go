package db

import (
	"database/sql"
	"log"
	"sync"
	"time"
)

// writeOp is one buffered statement.
type writeOp struct {
	query string
	args  []any
}

// BatchWriter coalesces high-frequency inserts (ticks, bars) into
// periodic transactions so the recorder does not hammer SQLite with
// one transaction per row.
type BatchWriter struct {
	db          *sql.DB
	mu          sync.Mutex
	buffer      []writeOp
	maxSize     int
	flushIntval time.Duration
	done        chan struct{}
	wg          sync.WaitGroup
}

// NewBatchWriter starts a writer that flushes when maxSize operations
// are buffered or interval elapses, whichever comes first.
func NewBatchWriter(db *sql.DB, maxSize int, interval time.Duration) *BatchWriter {
	if maxSize <= 0 {
		maxSize = 50
	}
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}

	bw := &BatchWriter{
		db:          db,
		buffer:      make([]writeOp, 0, maxSize),
		maxSize:     maxSize,
		flushIntval: interval,
		done:        make(chan struct{}),
	}

	bw.wg.Add(1)
	go bw.backgroundFlush()

	return bw
}

// Write buffers a statement for the next flush.
func (bw *BatchWriter) Write(query string, args ...any) {
	bw.mu.Lock()
	bw.buffer = append(bw.buffer, writeOp{query: query, args: args})
	shouldFlush := len(bw.buffer) >= bw.maxSize
	bw.mu.Unlock()

	if shouldFlush {
		bw.Flush()
	}
}

// Flush writes all buffered operations in one transaction.
func (bw *BatchWriter) Flush() error {
	bw.mu.Lock()
	if len(bw.buffer) == 0 {
		bw.mu.Unlock()
		return nil
	}
	ops := bw.buffer
	bw.buffer = make([]writeOp, 0, bw.maxSize)
	bw.mu.Unlock()

	tx, err := bw.db.Begin()
	if err != nil {
		log.Printf("BatchWriter: begin transaction: %v", err)
		return err
	}
	for _, op := range ops {
		if _, err := tx.Exec(op.query, op.args...); err != nil {
			tx.Rollback()
			log.Printf("BatchWriter: exec: %v", err)
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		log.Printf("BatchWriter: commit: %v", err)
		return err
	}
	return nil
}

// Close flushes remaining operations and stops the background loop.
func (bw *BatchWriter) Close() error {
	close(bw.done)
	bw.wg.Wait()
	return bw.Flush()
}

func (bw *BatchWriter) backgroundFlush() {
	defer bw.wg.Done()
	ticker := time.NewTicker(bw.flushIntval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			bw.Flush()
		case <-bw.done:
			return
		}
	}
}
