package offline

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	bolt "go.etcd.io/bbolt"

	"goodsale/backend/internal/domain"
	"goodsale/backend/internal/xid"
)

var (
	salesBucket    = []byte("sales")
	idsBucket      = []byte("ids")
	rejectedBucket = []byte("rejected")
)

var errEntryMissing = errors.New("queue entry not found")

// Entry is one sale waiting on the device. Seq orders entries FIFO.
type Entry struct {
	Seq        uint64           `json:"seq"`
	Sale       domain.SaleDraft `json:"sale"`
	EnqueuedAt time.Time        `json:"enqueued_at"`
	Attempts   int              `json:"attempts"`
	LastError  string           `json:"last_error,omitempty"`
}

// Queue is the durable device-side outbox. Entries leave the sales bucket
// only when the server acknowledged them or rejected them for good.
type Queue struct {
	db       *bolt.DB
	deviceID string
	now      func() time.Time
}

func OpenQueue(path string, deviceID string) (*Queue, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open queue %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{salesBucket, idsBucket, rejectedBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init queue buckets: %w", err)
	}
	return &Queue{db: db, deviceID: strings.TrimSpace(deviceID), now: func() time.Time { return time.Now().UTC() }}, nil
}

func (q *Queue) Close() error {
	return q.db.Close()
}

// NewSaleID returns an id the server will treat as the idempotency key.
func (q *Queue) NewSaleID() string {
	return xid.Offline(q.deviceID)
}

// Enqueue persists a sale locally. It never touches the network. A sale whose
// id is already queued is not added twice.
func (q *Queue) Enqueue(sale domain.SaleDraft) (Entry, error) {
	sale.ID = strings.TrimSpace(sale.ID)
	if sale.ID == "" {
		sale.ID = q.NewSaleID()
	}
	sale.Offline = true
	if sale.CreatedAt == nil {
		at := q.now()
		sale.CreatedAt = &at
	}

	var entry Entry
	err := q.db.Update(func(tx *bolt.Tx) error {
		sales := tx.Bucket(salesBucket)
		ids := tx.Bucket(idsBucket)
		if existing := ids.Get([]byte(sale.ID)); existing != nil {
			return json.Unmarshal(sales.Get(existing), &entry)
		}

		seq, err := sales.NextSequence()
		if err != nil {
			return err
		}
		entry = Entry{Seq: seq, Sale: sale, EnqueuedAt: q.now()}
		raw, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		key := seqKey(seq)
		if err := sales.Put(key, raw); err != nil {
			return err
		}
		return ids.Put([]byte(sale.ID), key)
	})
	if err != nil {
		return Entry{}, fmt.Errorf("enqueue sale %s: %w", sale.ID, err)
	}
	return entry, nil
}

// Pending returns queued entries oldest first.
func (q *Queue) Pending() ([]Entry, error) {
	return q.list(salesBucket)
}

// Rejected returns entries the server refused permanently.
func (q *Queue) Rejected() ([]Entry, error) {
	return q.list(rejectedBucket)
}

func (q *Queue) Len() (int, error) {
	var n int
	err := q.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(salesBucket).ForEach(func(_, _ []byte) error {
			n++
			return nil
		})
	})
	return n, err
}

// Ack removes an acknowledged entry.
func (q *Queue) Ack(seq uint64) error {
	return q.db.Update(func(tx *bolt.Tx) error {
		entry, err := getEntry(tx.Bucket(salesBucket), seq)
		if err != nil {
			return err
		}
		if err := tx.Bucket(salesBucket).Delete(seqKey(seq)); err != nil {
			return err
		}
		return tx.Bucket(idsBucket).Delete([]byte(entry.Sale.ID))
	})
}

// Reject moves an entry to the dead-letter bucket so later sales can sync.
func (q *Queue) Reject(seq uint64, reason string) error {
	return q.db.Update(func(tx *bolt.Tx) error {
		sales := tx.Bucket(salesBucket)
		entry, err := getEntry(sales, seq)
		if err != nil {
			return err
		}
		entry.Attempts++
		entry.LastError = reason
		raw, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		if err := tx.Bucket(rejectedBucket).Put(seqKey(seq), raw); err != nil {
			return err
		}
		if err := sales.Delete(seqKey(seq)); err != nil {
			return err
		}
		return tx.Bucket(idsBucket).Delete([]byte(entry.Sale.ID))
	})
}

// MarkAttempt records a failed delivery and keeps the entry queued.
func (q *Queue) MarkAttempt(seq uint64, reason string) error {
	return q.db.Update(func(tx *bolt.Tx) error {
		sales := tx.Bucket(salesBucket)
		entry, err := getEntry(sales, seq)
		if err != nil {
			return err
		}
		entry.Attempts++
		entry.LastError = reason
		raw, err := json.Marshal(entry)
		if err != nil {
			return err
		}
		return sales.Put(seqKey(seq), raw)
	})
}

func (q *Queue) list(bucket []byte) ([]Entry, error) {
	entries := make([]Entry, 0)
	err := q.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucket).ForEach(func(_, raw []byte) error {
			var entry Entry
			if err := json.Unmarshal(raw, &entry); err != nil {
				return err
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

func getEntry(bucket *bolt.Bucket, seq uint64) (Entry, error) {
	raw := bucket.Get(seqKey(seq))
	if raw == nil {
		return Entry{}, fmt.Errorf("%w: seq %d", errEntryMissing, seq)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Entry{}, err
	}
	return entry, nil
}

// seqKey is big-endian so bbolt's byte ordering matches insertion order.
func seqKey(seq uint64) []byte {
	key := make([]byte, 8)
	binary.BigEndian.PutUint64(key, seq)
	return key
}
