package server

import (
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/jonboulle/clockwork"

	"github.com/creatorpass/creatorpass/pkg/pay"
)

// paymentRecord is a payment request created through the API, tracked by
// its reference key until it confirms or expires. State lives in memory
// only: a lost record just means re-creating the request, the chain itself
// stays the source of truth for whether anything was paid.
type paymentRecord struct {
	Request   pay.Request
	URI       string
	CreatedAt time.Time
	Confirmed bool
	Signature solana.Signature
}

type payStore struct {
	mu      sync.RWMutex
	clock   clockwork.Clock
	ttl     time.Duration
	records map[solana.PublicKey]*paymentRecord
}

func newPayStore(clock clockwork.Clock, ttl time.Duration) *payStore {
	return &payStore{
		clock:   clock,
		ttl:     ttl,
		records: make(map[solana.PublicKey]*paymentRecord),
	}
}

func (ps *payStore) put(rec *paymentRecord) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	ps.sweepLocked()
	ps.records[rec.Request.Reference] = rec
}

func (ps *payStore) get(reference solana.PublicKey) (*paymentRecord, bool) {
	ps.mu.RLock()
	defer ps.mu.RUnlock()
	rec, ok := ps.records[reference]
	if !ok || ps.expired(rec) {
		return nil, false
	}
	return rec, true
}

func (ps *payStore) confirm(reference solana.PublicKey, sig solana.Signature) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if rec, ok := ps.records[reference]; ok {
		rec.Confirmed = true
		rec.Signature = sig
	}
}

func (ps *payStore) expired(rec *paymentRecord) bool {
	return ps.ttl > 0 && ps.clock.Since(rec.CreatedAt) > ps.ttl
}

func (ps *payStore) sweepLocked() {
	if ps.ttl <= 0 {
		return
	}
	for ref, rec := range ps.records {
		if ps.expired(rec) {
			delete(ps.records, ref)
		}
	}
}
