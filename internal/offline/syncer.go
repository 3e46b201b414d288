package offline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/singleflight"

	"goodsale/backend/internal/domain"
)

// SaleSender delivers one sale to the server. Implementations return errors
// wrapping ErrNetwork or ErrRejected.
type SaleSender interface {
	PostSale(ctx context.Context, draft domain.SaleDraft) (domain.SaleResponse, error)
}

type SyncReport struct {
	Acked      int           `json:"acked"`
	Duplicates int           `json:"duplicates"`
	Rejected   int           `json:"rejected"`
	Remaining  int           `json:"remaining"`
	Shift      *domain.Shift `json:"shift,omitempty"`
}

// Syncer replays the queue in FIFO order. Concurrent Sync calls share one run.
type Syncer struct {
	queue   *Queue
	sender  SaleSender
	timeout time.Duration
	group   singleflight.Group
}

func NewSyncer(queue *Queue, sender SaleSender, timeout time.Duration) *Syncer {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Syncer{queue: queue, sender: sender, timeout: timeout}
}

func (s *Syncer) Sync(ctx context.Context) (SyncReport, error) {
	result, err, _ := s.group.Do("sync", func() (any, error) {
		return s.drain(ctx)
	})
	report, _ := result.(SyncReport)
	return report, err
}

// drain posts entries oldest first. An entry is removed only after the server
// acknowledged it, so a crash between post and ack replays it and the server
// answers duplicate. The first transient failure stops the run.
func (s *Syncer) drain(ctx context.Context) (SyncReport, error) {
	var report SyncReport
	entries, err := s.queue.Pending()
	if err != nil {
		return report, fmt.Errorf("read queue: %w", err)
	}

	for i, entry := range entries {
		if err := ctx.Err(); err != nil {
			report.Remaining = len(entries) - i
			return report, err
		}

		resp, err := s.post(ctx, entry.Sale)
		switch {
		case err == nil:
			if err := s.queue.Ack(entry.Seq); err != nil {
				report.Remaining = len(entries) - i
				return report, fmt.Errorf("ack %s: %w", entry.Sale.ID, err)
			}
			if resp.Duplicate {
				report.Duplicates++
			} else {
				report.Acked++
			}
			if resp.Shift != nil {
				report.Shift = resp.Shift
			}
		case errors.Is(err, ErrRejected):
			log.Printf("[sync] WARN: sale %s rejected, moved to dead letters: %v", entry.Sale.ID, err)
			if err := s.queue.Reject(entry.Seq, err.Error()); err != nil {
				report.Remaining = len(entries) - i
				return report, fmt.Errorf("reject %s: %w", entry.Sale.ID, err)
			}
			report.Rejected++
		default:
			if markErr := s.queue.MarkAttempt(entry.Seq, err.Error()); markErr != nil {
				log.Printf("[sync] WARN: record attempt for %s failed: %v", entry.Sale.ID, markErr)
			}
			report.Remaining = len(entries) - i
			return report, err
		}
	}
	return report, nil
}

func (s *Syncer) post(ctx context.Context, draft domain.SaleDraft) (domain.SaleResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	resp, err := s.sender.PostSale(ctx, draft)
	if err != nil && !errors.Is(err, ErrRejected) && !errors.Is(err, ErrNetwork) {
		err = fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return resp, err
}

// Run syncs whenever connectivity comes back and on every tick until ctx is
// done. Failures are logged and retried on the next trigger.
func (s *Syncer) Run(ctx context.Context, interval time.Duration, online <-chan struct{}) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-online:
		}

		report, err := s.Sync(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[sync] sync stopped with %d queued: %v", report.Remaining, err)
			continue
		}
		if report.Acked+report.Duplicates+report.Rejected > 0 {
			log.Printf("[sync] delivered=%d duplicate=%d rejected=%d", report.Acked, report.Duplicates, report.Rejected)
		}
	}
}
