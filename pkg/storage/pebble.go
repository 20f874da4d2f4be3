package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/ethereum/go-ethereum/common"

	"github.com/AltCoinExchange/0x-coordinator-server/pkg/coordinator"
)

// PebbleRepository persists coordinator state in a pebble key-value store.
// Every write commits with pebble.Sync before the method returns, so a
// response built on it survives a crash.
type PebbleRepository struct {
	db *pebble.DB

	// mu serializes read-modify-write sections; plain reads go straight
	// to pebble.
	mu sync.Mutex
}

var _ coordinator.Repository = (*PebbleRepository)(nil)

// NewPebbleRepository opens (or creates) the store at path.
func NewPebbleRepository(path string) (*PebbleRepository, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", path, err)
	}
	return &PebbleRepository{db: db}, nil
}

func (r *PebbleRepository) Close() error {
	return r.db.Close()
}

func (r *PebbleRepository) has(key []byte) (bool, error) {
	_, closer, err := r.db.Get(key)
	if err == nil {
		closer.Close()
		return true, nil
	}
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	return false, err
}

// SoftCancel implements coordinator.Repository.
func (r *PebbleRepository) SoftCancel(chainID int64, orderHashes []common.Hash) error {
	batch := r.db.NewBatch()
	defer batch.Close()
	for _, h := range orderHashes {
		if err := batch.Set(softCancelKey(chainID, h), []byte{1}, nil); err != nil {
			return fmt.Errorf("failed to stage soft cancel: %w", err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit soft cancels: %w", err)
	}
	return nil
}

// SoftCancelled implements coordinator.Repository.
func (r *PebbleRepository) SoftCancelled(chainID int64, orderHash common.Hash) (bool, error) {
	cancelled, err := r.has(softCancelKey(chainID, orderHash))
	if err != nil {
		return false, fmt.Errorf("soft-cancel lookup: %w", err)
	}
	return cancelled, nil
}

// FilterSoftCancelled implements coordinator.Repository.
func (r *PebbleRepository) FilterSoftCancelled(chainID int64, orderHashes []common.Hash) ([]common.Hash, error) {
	cancelled := []common.Hash{}
	for _, h := range orderHashes {
		ok, err := r.SoftCancelled(chainID, h)
		if err != nil {
			return nil, err
		}
		if ok {
			cancelled = append(cancelled, h)
		}
	}
	return cancelled, nil
}

func (r *PebbleRepository) readFillAmount(key []byte) (*big.Int, error) {
	value, closer, err := r.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return new(big.Int), nil
	}
	if err != nil {
		return nil, fmt.Errorf("fill ledger read: %w", err)
	}
	defer closer.Close()
	amount, ok := new(big.Int).SetString(string(value), 10)
	if !ok {
		return nil, fmt.Errorf("corrupt fill ledger value %q", value)
	}
	return amount, nil
}

// RequestedFillAmount implements coordinator.Repository.
func (r *PebbleRepository) RequestedFillAmount(chainID int64, orderHash common.Hash, taker common.Address) (*big.Int, error) {
	return r.readFillAmount(fillLedgerKey(chainID, orderHash, taker))
}

// ReserveFill implements coordinator.Repository.
func (r *PebbleRepository) ReserveFill(chainID int64, orderHash common.Hash, taker common.Address, delta, max *big.Int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fillLedgerKey(chainID, orderHash, taker)
	prior, err := r.readFillAmount(key)
	if err != nil {
		return false, err
	}
	next := new(big.Int).Add(prior, delta)
	if next.Cmp(max) > 0 {
		return false, nil
	}
	if err := r.db.Set(key, []byte(next.String()), pebble.Sync); err != nil {
		return false, fmt.Errorf("fill ledger write: %w", err)
	}
	return true, nil
}

// HasTransaction implements coordinator.Repository.
func (r *PebbleRepository) HasTransaction(chainID int64, txHash common.Hash) (bool, error) {
	seen, err := r.has(transactionKey(chainID, txHash))
	if err != nil {
		return false, fmt.Errorf("transaction lookup: %w", err)
	}
	return seen, nil
}

// InsertTransaction implements coordinator.Repository.
func (r *PebbleRepository) InsertTransaction(chainID int64, record *coordinator.TransactionRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := transactionKey(chainID, record.TransactionHash)
	if seen, err := r.has(key); err != nil {
		return fmt.Errorf("transaction lookup: %w", err)
	} else if seen {
		return coordinator.ErrTransactionSeen
	}

	value, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode transaction record: %w", err)
	}
	batch := r.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(key, value, nil); err != nil {
		return fmt.Errorf("failed to stage transaction record: %w", err)
	}
	for _, orderHash := range record.ApprovedOrderHashes {
		if err := batch.Set(orderApprovalKey(chainID, orderHash, record.TransactionHash), []byte{1}, nil); err != nil {
			return fmt.Errorf("failed to stage approval index: %w", err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("failed to commit transaction record: %w", err)
	}
	return nil
}

func (r *PebbleRepository) getTransaction(chainID int64, txHash common.Hash) (*coordinator.TransactionRecord, error) {
	value, closer, err := r.db.Get(transactionKey(chainID, txHash))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("transaction read: %w", err)
	}
	defer closer.Close()
	var record coordinator.TransactionRecord
	if err := json.Unmarshal(value, &record); err != nil {
		return nil, fmt.Errorf("corrupt transaction record %s: %w", txHash.Hex(), err)
	}
	return &record, nil
}

// OutstandingFillApprovals implements coordinator.Repository.
func (r *PebbleRepository) OutstandingFillApprovals(chainID int64, orderHashes []common.Hash, now int64) ([]coordinator.FillApprovalRecord, error) {
	out := []coordinator.FillApprovalRecord{}
	for _, orderHash := range orderHashes {
		prefix := orderApprovalPrefix(chainID, orderHash)
		iter, err := r.db.NewIter(&pebble.IterOptions{
			LowerBound: prefix,
			UpperBound: keyUpperBound(prefix),
		})
		if err != nil {
			return nil, fmt.Errorf("approval scan: %w", err)
		}
		for iter.First(); iter.Valid(); iter.Next() {
			txHash := common.HexToHash(strings.TrimPrefix(string(iter.Key()), string(prefix)))
			record, err := r.getTransaction(chainID, txHash)
			if err != nil {
				iter.Close()
				return nil, err
			}
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
		if err := iter.Close(); err != nil {
			return nil, fmt.Errorf("approval scan close: %w", err)
		}
	}
	return out, nil
}
