package storage

import (
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AltCoinExchange/0x-coordinator-server/pkg/coordinator"
)

// MemoryRepository is a map-backed Repository with the same key schema as
// the pebble store. It backs tests and throwaway runs; nothing survives the
// process.
type MemoryRepository struct {
	mu           sync.Mutex
	softCancels  map[string]bool
	fills        map[string]*big.Int
	transactions map[string]*coordinator.TransactionRecord
	orderTxs     map[string][]common.Hash
}

var _ coordinator.Repository = (*MemoryRepository)(nil)

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		softCancels:  make(map[string]bool),
		fills:        make(map[string]*big.Int),
		transactions: make(map[string]*coordinator.TransactionRecord),
		orderTxs:     make(map[string][]common.Hash),
	}
}

// SoftCancel implements coordinator.Repository.
func (r *MemoryRepository) SoftCancel(chainID int64, orderHashes []common.Hash) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, h := range orderHashes {
		r.softCancels[string(softCancelKey(chainID, h))] = true
	}
	return nil
}

// SoftCancelled implements coordinator.Repository.
func (r *MemoryRepository) SoftCancelled(chainID int64, orderHash common.Hash) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.softCancels[string(softCancelKey(chainID, orderHash))], nil
}

// FilterSoftCancelled implements coordinator.Repository.
func (r *MemoryRepository) FilterSoftCancelled(chainID int64, orderHashes []common.Hash) ([]common.Hash, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cancelled := []common.Hash{}
	for _, h := range orderHashes {
		if r.softCancels[string(softCancelKey(chainID, h))] {
			cancelled = append(cancelled, h)
		}
	}
	return cancelled, nil
}

// RequestedFillAmount implements coordinator.Repository.
func (r *MemoryRepository) RequestedFillAmount(chainID int64, orderHash common.Hash, taker common.Address) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if amount, ok := r.fills[string(fillLedgerKey(chainID, orderHash, taker))]; ok {
		return new(big.Int).Set(amount), nil
	}
	return new(big.Int), nil
}

// ReserveFill implements coordinator.Repository.
func (r *MemoryRepository) ReserveFill(chainID int64, orderHash common.Hash, taker common.Address, delta, max *big.Int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := string(fillLedgerKey(chainID, orderHash, taker))
	prior := r.fills[key]
	if prior == nil {
		prior = new(big.Int)
	}
	next := new(big.Int).Add(prior, delta)
	if next.Cmp(max) > 0 {
		return false, nil
	}
	r.fills[key] = next
	return true, nil
}

// HasTransaction implements coordinator.Repository.
func (r *MemoryRepository) HasTransaction(chainID int64, txHash common.Hash) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, seen := r.transactions[string(transactionKey(chainID, txHash))]
	return seen, nil
}

// InsertTransaction implements coordinator.Repository.
func (r *MemoryRepository) InsertTransaction(chainID int64, record *coordinator.TransactionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := string(transactionKey(chainID, record.TransactionHash))
	if _, seen := r.transactions[key]; seen {
		return coordinator.ErrTransactionSeen
	}
	r.transactions[key] = record
	for _, orderHash := range record.ApprovedOrderHashes {
		indexKey := string(orderApprovalPrefix(chainID, orderHash))
		r.orderTxs[indexKey] = append(r.orderTxs[indexKey], record.TransactionHash)
	}
	return nil
}

// OutstandingFillApprovals implements coordinator.Repository.
func (r *MemoryRepository) OutstandingFillApprovals(chainID int64, orderHashes []common.Hash, now int64) ([]coordinator.FillApprovalRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []coordinator.FillApprovalRecord{}
	for _, orderHash := range orderHashes {
		for _, txHash := range r.orderTxs[string(orderApprovalPrefix(chainID, orderHash))] {
			record := r.transactions[string(transactionKey(chainID, txHash))]
			if record == nil || record.ApprovalExpirationTimeSeconds <= now {
				continue
			}
			out = append(out, coordinator.FillApprovalRecord{
				OrderHash:             orderHash.Hex(),
				ApprovalSignatures:    record.ApprovalSignatures,
				ExpirationTimeSeconds: record.ApprovalExpirationTimeSeconds,
				TakerAssetFillAmount:  record.FillAmountFor(orderHash).String(),
			})
		}
	}
	return out, nil
}
