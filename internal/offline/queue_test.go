package offline

import (
	"path/filepath"
	"strings"
	"testing"

	"goodsale/backend/internal/domain"
	"goodsale/backend/internal/money"
)

func openTestQueue(t *testing.T, path string) *Queue {
	t.Helper()
	q, err := OpenQueue(path, "till-1")
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	t.Cleanup(func() { _ = q.Close() })
	return q
}

func cashDraft(id string, cents int64) domain.SaleDraft {
	return domain.SaleDraft{
		ID:            id,
		Items:         []domain.SaleItem{{ProductID: "P1", Qty: 1, UnitPrice: money.Amount(cents)}},
		PaymentMethod: domain.PaymentCash,
	}
}

func TestEnqueueAssignsOfflineIDAndKeepsOrder(t *testing.T) {
	q := openTestQueue(t, filepath.Join(t.TempDir(), "queue.db"))

	first, err := q.Enqueue(cashDraft("", 100))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if !strings.HasPrefix(first.Sale.ID, "off-till-1-") {
		t.Fatalf("expected device-scoped offline id, got %s", first.Sale.ID)
	}
	if !first.Sale.Offline || first.Sale.CreatedAt == nil {
		t.Fatalf("expected offline flag and capture time, got %+v", first.Sale)
	}
	if _, err := q.Enqueue(cashDraft("sale-b", 200)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if _, err := q.Enqueue(cashDraft("sale-c", 300)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	pending, err := q.Pending()
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	want := []string{first.Sale.ID, "sale-b", "sale-c"}
	if len(pending) != len(want) {
		t.Fatalf("expected %d entries, got %d", len(want), len(pending))
	}
	for i, entry := range pending {
		if entry.Sale.ID != want[i] {
			t.Fatalf("entry %d: expected %s, got %s", i, want[i], entry.Sale.ID)
		}
	}
}

func TestEnqueueSameIDTwiceKeepsOneEntry(t *testing.T) {
	q := openTestQueue(t, filepath.Join(t.TempDir(), "queue.db"))

	a, err := q.Enqueue(cashDraft("sale-a", 100))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	b, err := q.Enqueue(cashDraft("sale-a", 100))
	if err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if a.Seq != b.Seq {
		t.Fatalf("expected the existing entry back, got seq %d and %d", a.Seq, b.Seq)
	}
	if n, _ := q.Len(); n != 1 {
		t.Fatalf("expected 1 entry, got %d", n)
	}
}

func TestAckRejectAndAttemptsSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "queue.db")
	q, err := OpenQueue(path, "till-1")
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	a, _ := q.Enqueue(cashDraft("sale-a", 100))
	b, _ := q.Enqueue(cashDraft("sale-b", 200))
	c, _ := q.Enqueue(cashDraft("sale-c", 300))

	if err := q.Ack(a.Seq); err != nil {
		t.Fatalf("ack: %v", err)
	}
	if err := q.Reject(b.Seq, "no items"); err != nil {
		t.Fatalf("reject: %v", err)
	}
	if err := q.MarkAttempt(c.Seq, "timeout"); err != nil {
		t.Fatalf("mark attempt: %v", err)
	}
	if err := q.Ack(a.Seq); err == nil {
		t.Fatalf("expected acking a removed entry to fail")
	}
	if err := q.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened := openTestQueue(t, path)
	pending, err := reopened.Pending()
	if err != nil {
		t.Fatalf("pending: %v", err)
	}
	if len(pending) != 1 || pending[0].Sale.ID != "sale-c" || pending[0].Attempts != 1 || pending[0].LastError != "timeout" {
		t.Fatalf("unexpected pending entries %+v", pending)
	}
	rejected, err := reopened.Rejected()
	if err != nil {
		t.Fatalf("rejected: %v", err)
	}
	if len(rejected) != 1 || rejected[0].Sale.ID != "sale-b" || rejected[0].LastError != "no items" {
		t.Fatalf("unexpected rejected entries %+v", rejected)
	}

	// A rejected id may be captured again.
	if _, err := reopened.Enqueue(cashDraft("sale-b", 200)); err != nil {
		t.Fatalf("re-enqueue: %v", err)
	}
	next, _ := reopened.Enqueue(cashDraft("sale-d", 400))
	if next.Seq <= c.Seq {
		t.Fatalf("sequence must keep growing after reopen, got %d after %d", next.Seq, c.Seq)
	}
}
