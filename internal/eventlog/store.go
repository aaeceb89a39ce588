package eventlog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/leadlink/conversions/internal/logger"
)

const (
	// columnsPerRow is the number of columns inserted per record row.
	columnsPerRow = 6

	// insertBatchSize is the maximum number of rows per INSERT statement.
	insertBatchSize = 50

	// flushTimeout is the context timeout for each flush operation.
	flushTimeout = 5 * time.Second
)

// Store manages buffered writes of event log records to PostgreSQL.
type Store struct {
	db             *sql.DB
	buffer         *Buffer
	log            logger.Logger
	flushInterval  time.Duration
	flushThreshold int
	wg             sync.WaitGroup
}

// NewStore creates a Store that reads records from buffer and batch-inserts
// them into the webhook_events table.
func NewStore(
	db *sql.DB,
	buffer *Buffer,
	log logger.Logger,
	flushInterval time.Duration,
	flushThreshold int,
) *Store {
	return &Store{
		db:             db,
		buffer:         buffer,
		log:            log,
		flushInterval:  flushInterval,
		flushThreshold: flushThreshold,
	}
}

// Record sends a record into the buffer, dropping it when full. The webhook
// pipeline must never wait on the event log.
func (s *Store) Record(rec Record) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	if !s.buffer.Send(rec) {
		s.log.Warn("Event log buffer full, dropping record",
			logger.String("workspace_id", rec.WorkspaceID),
			logger.String("kind", string(rec.Kind)),
		)
	}
}

// Start launches the background goroutine that reads records and flushes batches.
func (s *Store) Start() {
	s.wg.Add(1)
	go s.flushLoop()
}

// Stop signals the buffer to close and waits for the flush goroutine to finish.
func (s *Store) Stop() {
	s.buffer.Close()
	s.wg.Wait()
}

func (s *Store) flushLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	batch := make([]Record, 0, s.flushThreshold)

	for {
		select {
		case rec := <-s.buffer.records:
			batch = append(batch, rec)
			if len(batch) >= s.flushThreshold {
				s.flush(batch)
				batch = make([]Record, 0, s.flushThreshold)
			}

		case <-ticker.C:
			if len(batch) > 0 {
				s.flush(batch)
				batch = make([]Record, 0, s.flushThreshold)
			}

		case <-s.buffer.closed:
			s.drain(&batch)
			if len(batch) > 0 {
				s.flush(batch)
			}
			return
		}
	}
}

// drain reads all remaining records from the buffer channel into the batch.
func (s *Store) drain(batch *[]Record) {
	for {
		select {
		case rec := <-s.buffer.records:
			*batch = append(*batch, rec)
		default:
			return
		}
	}
}

// flush writes a batch of records to PostgreSQL in chunks of insertBatchSize.
func (s *Store) flush(batch []Record) {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()

	for start := 0; start < len(batch); start += insertBatchSize {
		end := start + insertBatchSize
		if end > len(batch) {
			end = len(batch)
		}

		if err := s.batchInsert(ctx, batch[start:end]); err != nil {
			s.log.Error("Failed to insert event log records",
				logger.Error(err),
				logger.Int("batch_size", end-start),
			)
		}
	}

	s.log.Debug("Flushed event log records",
		logger.Int("total", len(batch)),
	)
}

// batchInsert builds and executes a single INSERT with multiple value tuples.
func (s *Store) batchInsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}

	args := make([]any, 0, len(records)*columnsPerRow)
	var sb strings.Builder

	sb.WriteString("INSERT INTO webhook_events (workspace_id, provider, kind, " +
		"reason, payload, created_at) VALUES ")

	for i := range records {
		if i > 0 {
			sb.WriteString(", ")
		}

		writeValueTuple(&sb, i)

		args = append(args,
			records[i].WorkspaceID, records[i].Provider, string(records[i].Kind),
			records[i].Reason, records[i].Payload, records[i].CreatedAt,
		)
	}

	_, err := s.db.ExecContext(ctx, sb.String(), args...)
	if err != nil {
		return fmt.Errorf("exec batch insert: %w", err)
	}

	return nil
}

// Placeholder column offsets within a single row tuple (1-indexed for
// PostgreSQL $N params).
const (
	colWorkspaceID = 1
	colProvider    = 2
	colKind        = 3
	colReason      = 4
	colPayload     = 5
	colCreatedAt   = 6
)

func writeValueTuple(sb *strings.Builder, rowIndex int) {
	base := rowIndex * columnsPerRow
	fmt.Fprintf(sb, "($%d, $%d, $%d, $%d, $%d, $%d)",
		base+colWorkspaceID, base+colProvider, base+colKind,
		base+colReason, base+colPayload, base+colCreatedAt,
	)
}
