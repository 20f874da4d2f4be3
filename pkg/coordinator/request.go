package coordinator

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/AltCoinExchange/0x-coordinator-server/pkg/zeroex"
)

// TransactionRequest is the body of POST /v2/request_transaction.
type TransactionRequest struct {
	SignedTransaction *zeroex.SignedTransaction `json:"signedTransaction"`
	TxOrigin          common.Address            `json:"txOrigin"`
}

// Validate checks structural well-formedness before any decoding work.
func (r *TransactionRequest) Validate() *RequestError {
	if r.SignedTransaction == nil {
		return newRequestError(CodeSchemaInvalid, "signedTransaction", "required")
	}
	if err := r.SignedTransaction.Validate(); err != nil {
		return newRequestError(CodeSchemaInvalid, "signedTransaction", err.Error())
	}
	if r.TxOrigin == (common.Address{}) {
		return newRequestError(CodeSchemaInvalid, "txOrigin", "required")
	}
	return nil
}

// RefusedOrder is the wire form of one per-order refusal.
type RefusedOrder struct {
	OrderHash string `json:"orderHash"`
	Reason    string `json:"reason"`
}

// FillResponse answers a fill request. A request whose every order was
// refused still succeeds, with empty approvals and no approval hash.
type FillResponse struct {
	ApprovalHash          string         `json:"approvalHash,omitempty"`
	ApprovedOrderHashes   []string       `json:"approvedOrderHashes"`
	OrdersRefusedApproval []RefusedOrder `json:"ordersRefusedApproval"`
	Signatures            []string       `json:"signatures"`
	ExpirationTimeSeconds int64          `json:"expirationTimeSeconds"`
}

// CancelResponse answers a soft-cancel meta-transaction.
type CancelResponse struct {
	OutstandingFillSignatures []FillApprovalRecord `json:"outstandingFillSignatures"`
	ZeroxOrderHashes          []string             `json:"zeroxOrderHashes"`
}

// TransactionResponse is the union of the two success shapes; exactly one
// side is set.
type TransactionResponse struct {
	Fill   *FillResponse
	Cancel *CancelResponse
}

func refusalsToWire(refusals []OrderRefusal) []RefusedOrder {
	out := make([]RefusedOrder, len(refusals))
	for i, r := range refusals {
		out[i] = RefusedOrder{OrderHash: r.OrderHash.Hex(), Reason: string(r.Reason)}
	}
	return out
}
