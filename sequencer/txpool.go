package sequencer

import (
	"container/heap"
	"fmt"
	"iter"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Nonces tracks the expected next nonce per sender, hydrated lazily from
// state. Once an entry exists it is the single source of truth for pool
// admission: it equals the nonce of the next transaction allowed to enter
// the scheduled queue for that sender.
type Nonces struct {
	next map[common.Address]uint64
}

func NewNonces() *Nonces {
	return &Nonces{next: make(map[common.Address]uint64)}
}

func (n *Nonces) Get(addr common.Address) (uint64, bool) {
	nonce, ok := n.next[addr]
	return nonce, ok
}

// Ensure hydrates the entry for addr from fetch if it is not present yet.
// A fetch failure propagates and leaves the table untouched.
func (n *Nonces) Ensure(addr common.Address, fetch func(common.Address) (uint64, error)) error {
	if _, ok := n.next[addr]; ok {
		return nil
	}
	nonce, err := fetch(addr)
	if err != nil {
		return err
	}
	n.next[addr] = nonce
	return nil
}

// nonceHeap is a min-heap of transactions ordered by nonce, holding the
// out-of-order arrivals of a single sender.
type nonceHeap []*types.Transaction

func (h nonceHeap) Len() int            { return len(h) }
func (h nonceHeap) Less(i, j int) bool  { return h[i].Nonce() < h[j].Nonce() }
func (h nonceHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *nonceHeap) Push(x interface{}) { *h = append(*h, x.(*types.Transaction)) }
func (h *nonceHeap) Pop() interface{} {
	old := *h
	n := len(old)
	tx := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return tx
}

// TxPool is the nonce-ordered transaction pool. Transactions whose nonce is
// contiguous with the sender's expected nonce go into the scheduled FIFO;
// the rest wait in a per-sender heap until the gap closes.
type TxPool struct {
	signer    types.Signer
	scheduled []*types.Transaction
	pending   map[common.Address]*nonceHeap
	known     mapset.Set[common.Hash]
}

func NewTxPool(signer types.Signer) *TxPool {
	return &TxPool{
		signer:  signer,
		pending: make(map[common.Address]*nonceHeap),
		known:   mapset.NewThreadUnsafeSet[common.Hash](),
	}
}

// Add admits a transaction into the pool. The caller must have hydrated the
// sender's entry in nonces beforehand.
//
// A nonce equal to the expected one appends to the scheduled queue and then
// promotes every transaction from the sender's heap that became contiguous.
// A higher nonce parks in the heap. A lower nonce is a duplicate in our view
// of the sender and is rejected.
func (p *TxPool) Add(nonces *Nonces, tx *types.Transaction) error {
	from, err := types.Sender(p.signer, tx)
	if err != nil {
		poolRejectedMeter.Mark(1)
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	if p.known.Contains(tx.Hash()) {
		poolRejectedMeter.Mark(1)
		return fmt.Errorf("%w: %s", ErrAlreadyKnown, tx.Hash())
	}
	expected, ok := nonces.Get(from)
	if !ok {
		return fmt.Errorf("nonce unknown for address %s", from)
	}

	switch {
	case tx.Nonce() == expected:
		p.schedule(tx)
		expected++
		if h, ok := p.pending[from]; ok {
			for h.Len() > 0 && (*h)[0].Nonce() == expected {
				p.schedule(heap.Pop(h).(*types.Transaction))
				expected++
			}
			if h.Len() == 0 {
				delete(p.pending, from)
			}
		}
		nonces.next[from] = expected

	case tx.Nonce() > expected:
		h, ok := p.pending[from]
		if !ok {
			h = new(nonceHeap)
			p.pending[from] = h
		}
		for _, held := range *h {
			if held.Nonce() == tx.Nonce() {
				poolRejectedMeter.Mark(1)
				return fmt.Errorf("%w: sender %s nonce %d already pooled", ErrDuplicateNonce, from, tx.Nonce())
			}
		}
		heap.Push(h, tx)
		p.known.Add(tx.Hash())
		poolAcceptedMeter.Mark(1)

	default:
		poolRejectedMeter.Mark(1)
		return fmt.Errorf("%w: sender %s expected nonce %d, got %d", ErrDuplicateNonce, from, expected, tx.Nonce())
	}

	metricsPoolSize(p.ScheduledCount(), p.PendingCount())
	return nil
}

func (p *TxPool) schedule(tx *types.Transaction) {
	p.scheduled = append(p.scheduled, tx)
	p.known.Add(tx.Hash())
	poolAcceptedMeter.Mark(1)
}

// ScheduledDrain yields and removes scheduled transactions in FIFO order.
// Breaking out of the iteration leaves the remainder queued; a fresh call
// resumes at the new head.
func (p *TxPool) ScheduledDrain() iter.Seq[*types.Transaction] {
	return func(yield func(*types.Transaction) bool) {
		for len(p.scheduled) > 0 {
			tx := p.scheduled[0]
			p.scheduled[0] = nil
			p.scheduled = p.scheduled[1:]
			if !yield(tx) {
				break
			}
		}
		metricsPoolSize(p.ScheduledCount(), p.PendingCount())
	}
}

func (p *TxPool) ScheduledCount() int { return len(p.scheduled) }

func (p *TxPool) PendingCount() int {
	total := 0
	for _, h := range p.pending {
		total += h.Len()
	}
	return total
}
