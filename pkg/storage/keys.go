package storage

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Key schema (all values JSON or decimal strings):
//
//	sc:<chainID>:<orderHash>              soft-cancel marker
//	fl:<chainID>:<orderHash>:<taker>      cumulative requested fill (decimal)
//	tx:<chainID>:<txHash>                 TransactionRecord JSON
//	oa:<chainID>:<orderHash>:<txHash>     order -> approving transaction index
//
// Chain id appears in every key so one store serves every configured chain
// without cross-talk.
func softCancelKey(chainID int64, orderHash common.Hash) []byte {
	return []byte(fmt.Sprintf("sc:%d:%s", chainID, orderHash.Hex()))
}

func fillLedgerKey(chainID int64, orderHash common.Hash, taker common.Address) []byte {
	return []byte(fmt.Sprintf("fl:%d:%s:%s", chainID, orderHash.Hex(), taker.Hex()))
}

func transactionKey(chainID int64, txHash common.Hash) []byte {
	return []byte(fmt.Sprintf("tx:%d:%s", chainID, txHash.Hex()))
}

func orderApprovalKey(chainID int64, orderHash, txHash common.Hash) []byte {
	return []byte(fmt.Sprintf("oa:%d:%s:%s", chainID, orderHash.Hex(), txHash.Hex()))
}

func orderApprovalPrefix(chainID int64, orderHash common.Hash) []byte {
	return []byte(fmt.Sprintf("oa:%d:%s:", chainID, orderHash.Hex()))
}

// keyUpperBound returns the smallest key greater than every key with the
// given prefix, for iterator bounds.
func keyUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
