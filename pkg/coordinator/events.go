package coordinator

import "github.com/AltCoinExchange/0x-coordinator-server/pkg/zeroex"

// EventType names a request lifecycle event pushed to subscribers.
type EventType string

const (
	EventFillRequestReceived   EventType = "FILL_REQUEST_RECEIVED"
	EventFillRequestAccepted   EventType = "FILL_REQUEST_ACCEPTED"
	EventCancelRequestAccepted EventType = "CANCEL_REQUEST_ACCEPTED"
)

// Event is a lifecycle notification scoped to one chain.
type Event struct {
	Type EventType   `json:"type"`
	Data interface{} `json:"data"`
}

// Broadcaster fans lifecycle events out to subscribers. Delivery is
// best-effort: no persistence, no retry, no acknowledgement.
type Broadcaster interface {
	Broadcast(chainID int64, event Event)
}

// NopBroadcaster drops every event.
type NopBroadcaster struct{}

func (NopBroadcaster) Broadcast(int64, Event) {}

// FillRequestReceivedData announces a pending fill at the start of the
// selective delay window, giving makers a chance to soft-cancel.
type FillRequestReceivedData struct {
	TransactionHash string `json:"transactionHash"`
}

// FillRequestAcceptedData carries the approval issued for a fill request.
// Order is a representative of the approved set; the hashes enumerate it.
type FillRequestAcceptedData struct {
	FunctionName                  string              `json:"functionName"`
	Order                         *zeroex.SignedOrder `json:"order"`
	TakerAssetFillAmounts         []string            `json:"takerAssetFillAmounts"`
	ApprovalHash                  string              `json:"approvalHash"`
	ApprovedOrderHashes           []string            `json:"approvedOrderHashes"`
	ApprovalExpirationTimeSeconds int64               `json:"approvalExpirationTimeSeconds"`
}

// CancelRequestAcceptedData carries the order hashes a maker soft-cancelled
// and the unexpired approvals still outstanding against them.
type CancelRequestAcceptedData struct {
	ZeroxOrderHashes          []string             `json:"zeroxOrderHashes"`
	OutstandingFillSignatures []FillApprovalRecord `json:"outstandingFillSignatures"`
}
