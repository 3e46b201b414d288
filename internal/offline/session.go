package offline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"

	"goodsale/backend/internal/domain"
	"goodsale/backend/internal/money"
)

// ErrNoShift is returned by Session methods that need an open shift.
var ErrNoShift = errors.New("offline: no shift in session")

// ErrPendingSales blocks closing a shift while sales are still queued, so
// they are not booked onto the next shift.
var ErrPendingSales = errors.New("offline: queued sales not yet delivered")

type Outcome string

const (
	OutcomeRecorded     Outcome = "recorded"
	OutcomeDuplicate    Outcome = "duplicate"
	OutcomeSavedOffline Outcome = "saved_offline"
)

type SaleResult struct {
	Outcome Outcome       `json:"outcome"`
	Sale    *domain.Sale  `json:"sale,omitempty"`
	Shift   *domain.Shift `json:"shift,omitempty"`
	Queued  *Entry        `json:"queued,omitempty"`
}

// Session is the terminal's view of one cashier shift. It caches the shift
// the server last returned and swaps it for every newer server copy.
type Session struct {
	client *Client
	queue  *Queue
	syncer *Syncer

	mu    sync.Mutex
	shift *domain.Shift
}

func NewSession(client *Client, queue *Queue, syncer *Syncer) *Session {
	return &Session{client: client, queue: queue, syncer: syncer}
}

// Start logs in and adopts the cashier's open shift, opening one with
// startingCash when there is none.
func (s *Session) Start(ctx context.Context, startingCash money.Amount) (domain.Shift, error) {
	if err := s.client.Login(ctx); err != nil {
		return domain.Shift{}, err
	}
	shift, err := s.client.ActiveShift(ctx)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		shift, err = s.client.OpenShift(ctx, startingCash)
	}
	if err != nil {
		return domain.Shift{}, err
	}
	s.replaceShift(&shift)
	return shift, nil
}

func (s *Session) Shift() (domain.Shift, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shift == nil {
		return domain.Shift{}, false
	}
	return *s.shift, true
}

// Refresh reloads the authoritative shift from the server.
func (s *Session) Refresh(ctx context.Context) (domain.Shift, error) {
	current, ok := s.Shift()
	if !ok {
		return domain.Shift{}, ErrNoShift
	}
	shift, err := s.client.Shift(ctx, current.ID)
	if err != nil {
		return domain.Shift{}, err
	}
	s.replaceShift(&shift)
	return shift, nil
}

// RecordSale posts the sale online and falls back to the queue when the
// server cannot be reached. The id is fixed before the first attempt so a
// post that reached the server before failing is replayed as a duplicate.
// Older queued sales are delivered first; while any remain, the new sale
// joins the back of the queue instead of overtaking them.
func (s *Session) RecordSale(ctx context.Context, draft domain.SaleDraft) (SaleResult, error) {
	if _, ok := s.Shift(); !ok {
		return SaleResult{}, ErrNoShift
	}
	draft.ID = strings.TrimSpace(draft.ID)
	if draft.ID == "" {
		draft.ID = s.queue.NewSaleID()
	}

	queued, err := s.queue.Len()
	if err != nil {
		return SaleResult{}, fmt.Errorf("read queue: %w", err)
	}
	if queued > 0 {
		if report, err := s.Sync(ctx); err != nil {
			return s.saveOffline(draft, fmt.Errorf("%d older sales still queued: %w", report.Remaining, err))
		}
	}

	resp, err := s.client.PostSale(ctx, draft)
	switch {
	case err == nil:
		s.replaceShift(resp.Shift)
		outcome := OutcomeRecorded
		if resp.Duplicate {
			outcome = OutcomeDuplicate
		}
		return SaleResult{Outcome: outcome, Sale: &resp.Sale, Shift: resp.Shift}, nil
	case errors.Is(err, ErrNetwork):
		return s.saveOffline(draft, err)
	default:
		return SaleResult{}, err
	}
}

func (s *Session) saveOffline(draft domain.SaleDraft, cause error) (SaleResult, error) {
	entry, err := s.queue.Enqueue(draft)
	if err != nil {
		return SaleResult{}, fmt.Errorf("save sale %s offline: %w", draft.ID, err)
	}
	log.Printf("[sync] sale %s saved offline: %v", draft.ID, cause)
	return SaleResult{Outcome: OutcomeSavedOffline, Queued: &entry}, nil
}

// Sync drains the queue and adopts the newest shift the server returned.
func (s *Session) Sync(ctx context.Context) (SyncReport, error) {
	report, err := s.syncer.Sync(ctx)
	if report.Shift != nil {
		s.replaceShift(report.Shift)
	}
	return report, err
}

// Close delivers queued sales, then closes the shift on the server. The
// session forgets the shift once the server confirmed the close.
func (s *Session) Close(ctx context.Context, actualCash money.Amount, notes string) (domain.Shift, error) {
	current, ok := s.Shift()
	if !ok {
		return domain.Shift{}, ErrNoShift
	}
	report, err := s.Sync(ctx)
	if err != nil {
		return domain.Shift{}, fmt.Errorf("%w: %d remaining: %w", ErrPendingSales, report.Remaining, err)
	}

	closed, err := s.client.CloseShift(ctx, current.ID, actualCash, notes)
	if err != nil {
		return domain.Shift{}, err
	}
	s.mu.Lock()
	s.shift = nil
	s.mu.Unlock()
	return closed, nil
}

// replaceShift keeps the cached shift in step with the server. Copies of
// other shifts, such as the original shift of a replayed sale, are ignored.
func (s *Session) replaceShift(shift *domain.Shift) {
	if shift == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shift != nil && s.shift.ID != shift.ID {
		return
	}
	copied := *shift
	s.shift = &copied
}
