package outbox

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
)

// ProcessingResult summarizes one batch invocation (§4.5 step 4).
type ProcessingResult struct {
	Completed int
	Failed    int
	DLQ       int
	Total     int
}

// Processor is the claim-and-process worker loop (C5). It is invoked on a
// schedule (Run) or once (ProcessBatch), grounded on the teacher-adjacent
// railzwaylabs outbox processor's ticker-driven Run/processBatch shape.
type Processor struct {
	store        *Store
	publisher    Publisher
	log          *zap.SugaredLogger
	batchSize    int
	lockTimeout  time.Duration
	pollInterval time.Duration
	workerID     string
}

// NewProcessor builds a Processor. workerID defaults to
// "<hostname>-<pid>" per §4.5 if empty.
func NewProcessor(store *Store, publisher Publisher, log *zap.SugaredLogger, batchSize int, lockTimeout, pollInterval time.Duration, workerID string) *Processor {
	if workerID == "" {
		workerID = defaultWorkerID()
	}
	return &Processor{
		store:        store,
		publisher:    publisher,
		log:          log,
		batchSize:    batchSize,
		lockTimeout:  lockTimeout,
		pollInterval: pollInterval,
		workerID:     workerID,
	}
}

func defaultWorkerID() string {
	host, err := os.Hostname()
	if err != nil {
		host = "unknown-host"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// Run loops ProcessBatch on pollInterval until ctx is cancelled.
func (p *Processor) Run(ctx context.Context) {
	if _, err := p.ProcessBatch(ctx); err != nil {
		p.log.Errorw("outbox initial batch failed", "error", err)
	}

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.ProcessBatch(ctx); err != nil {
				p.log.Errorw("outbox batch failed", "error", err)
			}
		}
	}
}

// ProcessBatch runs one invocation of the §4.5 algorithm: release stale
// locks, fetch pending, publish each, and mark the result.
func (p *Processor) ProcessBatch(ctx context.Context) (ProcessingResult, error) {
	if _, err := p.store.ReleaseStaleLocks(ctx, p.lockTimeout); err != nil {
		return ProcessingResult{}, fmt.Errorf("release stale locks: %w", err)
	}

	entries, err := p.store.FetchPending(ctx, p.batchSize, p.workerID)
	if err != nil {
		return ProcessingResult{}, fmt.Errorf("fetch pending: %w", err)
	}
	if len(entries) == 0 {
		return ProcessingResult{}, nil
	}

	var result ProcessingResult
	result.Total = len(entries)
	for _, entry := range entries {
		p.processOne(ctx, entry, &result)
	}
	return result, nil
}

func (p *Processor) processOne(ctx context.Context, entry Entry, result *ProcessingResult) {
	wrapped, err := wrapPayload(entry)
	if err != nil {
		p.fail(ctx, entry, err, result)
		return
	}

	if err := p.publisher.Publish(ctx, entry, wrapped); err != nil {
		p.fail(ctx, entry, err, result)
		return
	}

	if err := p.store.MarkCompleted(ctx, entry.EventID); err != nil {
		p.log.Errorw("mark completed failed", "event_id", entry.EventID, "error", err)
		return
	}
	result.Completed++
}

func (p *Processor) fail(ctx context.Context, entry Entry, cause error, result *ProcessingResult) {
	newAttempts := entry.Attempts + 1
	if newAttempts >= entry.MaxAttempts {
		if err := p.store.MoveToDLQ(ctx, entry.EventID); err != nil {
			p.log.Errorw("move to dlq failed", "event_id", entry.EventID, "error", err)
			return
		}
		p.log.Warnw("outbox entry moved to dlq", "event_id", entry.EventID, "attempts", newAttempts, "cause", cause)
		result.DLQ++
		return
	}
	if err := p.store.MarkFailed(ctx, entry.EventID, cause); err != nil {
		p.log.Errorw("mark failed failed", "event_id", entry.EventID, "error", err)
		return
	}
	result.Failed++
}
