package coordinator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"go.uber.org/zap"

	"github.com/AltCoinExchange/0x-coordinator-server/pkg/util"
	"github.com/AltCoinExchange/0x-coordinator-server/pkg/zeroex"
	"github.com/AltCoinExchange/0x-coordinator-server/pkg/zeroex/decoder"
)

// ChainContext is the immutable per-chain wiring: contract addresses, the
// calldata decoder, the state oracle and the fee-recipient signing keys.
type ChainContext struct {
	ChainID            int64
	ExchangeAddress    common.Address
	CoordinatorAddress common.Address
	Decoder            *decoder.Decoder
	Oracle             StateReader

	signers map[common.Address]*zeroex.Signer
}

// NewChainContext wires one chain. Every fee recipient the coordinator
// serves on this chain needs its signing key here.
func NewChainContext(chainID int64, exchangeAddress, coordinatorAddress common.Address, dec *decoder.Decoder, oracle StateReader, feeRecipientKeys []*zeroex.Signer) *ChainContext {
	signers := make(map[common.Address]*zeroex.Signer, len(feeRecipientKeys))
	for _, s := range feeRecipientKeys {
		signers[s.Address()] = s
	}
	return &ChainContext{
		ChainID:            chainID,
		ExchangeAddress:    exchangeAddress,
		CoordinatorAddress: coordinatorAddress,
		Decoder:            dec,
		Oracle:             oracle,
		signers:            signers,
	}
}

// Signer returns the signing key configured for a fee recipient address.
func (c *ChainContext) Signer(feeRecipient common.Address) (*zeroex.Signer, bool) {
	s, ok := c.signers[feeRecipient]
	return s, ok
}

// FeeRecipients lists the fee recipient addresses this chain serves.
func (c *ChainContext) FeeRecipients() []common.Address {
	out := make([]common.Address, 0, len(c.signers))
	for addr := range c.signers {
		out = append(out, addr)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Hex() < out[j].Hex()
	})
	return out
}

// EngineConfig carries the engine's timing knobs.
type EngineConfig struct {
	// SelectiveDelay is how long an announced fill request is held before
	// re-validation, giving makers their cancellation window.
	SelectiveDelay time.Duration
	// ApprovalDuration bounds how far in the future issued approvals (and
	// therefore the transactions they approve) may expire.
	ApprovalDuration time.Duration
}

// Engine runs the request state machine: decode, classify, validate, delay,
// re-validate, reserve, sign, persist, broadcast. One engine serves every
// configured chain; requests on different chains share nothing but the
// repository.
type Engine struct {
	cfg    EngineConfig
	chains map[int64]*ChainContext
	repo   Repository
	events Broadcaster
	clock  util.Clock
	log    *zap.SugaredLogger

	// inflight holds transaction hashes currently inside the fill path, so
	// a duplicate submitted during the delay window is rejected up front
	// instead of reserving ledger capacity it can never use.
	inflightMu sync.Mutex
	inflight   map[common.Hash]struct{}
}

func NewEngine(cfg EngineConfig, chains []*ChainContext, repo Repository, events Broadcaster, clock util.Clock, logger *zap.SugaredLogger) *Engine {
	byID := make(map[int64]*ChainContext, len(chains))
	for _, c := range chains {
		byID[c.ChainID] = c
	}
	return &Engine{
		cfg:      cfg,
		chains:   byID,
		repo:     repo,
		events:   events,
		clock:    clock,
		log:      logger,
		inflight: make(map[common.Hash]struct{}),
	}
}

// Chain returns the context for a chain id.
func (e *Engine) Chain(chainID int64) (*ChainContext, bool) {
	c, ok := e.chains[chainID]
	return c, ok
}

// ChainIDs lists the served chains in ascending order.
func (e *Engine) ChainIDs() []int64 {
	out := make([]int64, 0, len(e.chains))
	for id := range e.chains {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// SelectiveDelay returns the configured cancellation window.
func (e *Engine) SelectiveDelay() time.Duration { return e.cfg.SelectiveDelay }

// ApprovalDuration returns the configured approval lifetime.
func (e *Engine) ApprovalDuration() time.Duration { return e.cfg.ApprovalDuration }

// RequestTransaction runs one signed meta-transaction through the approval
// state machine. Fatal failures return a *RequestError; per-order refusals
// come back inside a successful response.
func (e *Engine) RequestTransaction(ctx context.Context, chainID int64, req *TransactionRequest) (*TransactionResponse, error) {
	chain, ok := e.chains[chainID]
	if !ok {
		return nil, newRequestError(CodeSchemaInvalid, "chainId", fmt.Sprintf("chain %d is not served", chainID))
	}
	if rerr := req.Validate(); rerr != nil {
		return nil, rerr
	}
	tx := req.SignedTransaction
	tx.SetChainContext(big.NewInt(chain.ChainID), chain.ExchangeAddress)

	call, err := chain.Decoder.Decode(tx.Data)
	if err != nil {
		return nil, newRequestError(CodeDecodingFailed, "signedTransaction.data", err.Error())
	}
	kind, err := Classify(call)
	if err != nil {
		return nil, err
	}

	txHash, err := tx.Hash()
	if err != nil {
		return nil, newInternalError(fmt.Sprintf("failed to hash transaction: %v", err))
	}
	if recovered, err := zeroex.RecoverSigner(txHash, tx.Signature); err != nil || recovered != tx.SignerAddress {
		return nil, newRequestError(CodeInvalidTransactionSignature, "signedTransaction.signature",
			"signature does not recover to signerAddress")
	}

	// Orders naming a foreign fee recipient are not ours to approve or
	// cancel; they drop out here. Fill amounts stay aligned for direct
	// fills, which are the only kind that carries them.
	orders := make([]*zeroex.SignedOrder, 0, len(call.Orders))
	var fillAmounts []*big.Int
	for i, order := range call.Orders {
		if _, ok := chain.Signer(order.FeeRecipientAddress); !ok {
			continue
		}
		orders = append(orders, order)
		if kind == KindFill {
			fillAmounts = append(fillAmounts, call.TakerAssetFillAmounts[i])
		}
	}
	if len(orders) == 0 {
		return nil, newRequestError(CodeNoCoordinatorOrders, "signedTransaction.data",
			"no included order names this coordinator as fee recipient")
	}
	if dropped := len(call.Orders) - len(orders); dropped > 0 {
		e.log.Infow("foreign_orders_dropped", "chain_id", chainID, "tx_hash", txHash.Hex(), "dropped", dropped)
	}

	if kind == KindCancel {
		return e.handleCancel(chainID, tx, orders)
	}
	return e.handleFill(ctx, chain, req, call, kind, txHash, orders, fillAmounts)
}

// handleCancel records soft-cancels for the maker's own orders and reports
// which approvals remain outstanding against them. Cancels take effect
// immediately; there is no delay window on this path.
func (e *Engine) handleCancel(chainID int64, tx *zeroex.SignedTransaction, orders []*zeroex.SignedOrder) (*TransactionResponse, error) {
	for _, order := range orders {
		if order.MakerAddress != tx.SignerAddress {
			return nil, newRequestError(CodeOnlyMakerCanCancelOrders, "signedTransaction",
				fmt.Sprintf("cancellation signer %s is not the maker of every included order", tx.SignerAddress.Hex()))
		}
	}

	orderHashes := make([]common.Hash, len(orders))
	for i, order := range orders {
		h, err := order.Hash()
		if err != nil {
			return nil, newInternalError(fmt.Sprintf("failed to hash order: %v", err))
		}
		orderHashes[i] = h
	}

	if err := e.repo.SoftCancel(chainID, orderHashes); err != nil {
		return nil, newInternalError(fmt.Sprintf("failed to record soft cancels: %v", err))
	}
	outstanding, err := e.repo.OutstandingFillApprovals(chainID, orderHashes, e.clock.Now().Unix())
	if err != nil {
		return nil, newInternalError(fmt.Sprintf("outstanding approvals lookup: %v", err))
	}
	if outstanding == nil {
		outstanding = []FillApprovalRecord{}
	}

	hexHashes := hashesToHex(orderHashes)
	e.events.Broadcast(chainID, Event{
		Type: EventCancelRequestAccepted,
		Data: CancelRequestAcceptedData{
			ZeroxOrderHashes:          hexHashes,
			OutstandingFillSignatures: outstanding,
		},
	})
	e.log.Infow("cancel_request_accepted",
		"chain_id", chainID,
		"maker", tx.SignerAddress.Hex(),
		"orders", len(orderHashes),
		"outstanding_approvals", len(outstanding),
	)
	return &TransactionResponse{Cancel: &CancelResponse{
		OutstandingFillSignatures: outstanding,
		ZeroxOrderHashes:          hexHashes,
	}}, nil
}

func (e *Engine) handleFill(ctx context.Context, chain *ChainContext, req *TransactionRequest, call *decoder.ExchangeCall, kind CallKind, txHash common.Hash, orders []*zeroex.SignedOrder, fillAmounts []*big.Int) (*TransactionResponse, error) {
	chainID := chain.ChainID
	tx := req.SignedTransaction
	taker := tx.SignerAddress

	e.inflightMu.Lock()
	if _, busy := e.inflight[txHash]; busy {
		e.inflightMu.Unlock()
		return nil, e.replayError(txHash)
	}
	e.inflight[txHash] = struct{}{}
	e.inflightMu.Unlock()
	defer func() {
		e.inflightMu.Lock()
		delete(e.inflight, txHash)
		e.inflightMu.Unlock()
	}()

	if seen, err := e.repo.HasTransaction(chainID, txHash); err != nil {
		return nil, newInternalError(fmt.Sprintf("transaction lookup: %v", err))
	} else if seen {
		return nil, e.replayError(txHash)
	}

	// Market fills carry one total instead of per-order amounts; split it
	// across orders in calldata order, bounded by what each order can
	// still absorb on-chain. Direct fills never touch the oracle.
	switch kind {
	case KindMarketSell, KindMarketBuy:
		capacities := make([]*big.Int, len(orders))
		for i, order := range orders {
			state, err := chain.Oracle.TraderState(ctx, order, taker)
			if err != nil {
				return nil, newInternalError(fmt.Sprintf("trader state read: %v", err))
			}
			capacities[i] = RemainingFillable(&order.Order, state)
		}
		if kind == KindMarketSell {
			fillAmounts = DeriveMarketSellFillAmounts(call.TakerAssetFillAmount, capacities)
		} else {
			fillAmounts = DeriveMarketBuyFillAmounts(orders, call.MakerAssetFillAmount, capacities)
		}
	}

	validator := NewValidator(e.repo, e.clock)
	approved, refusals, err := validator.ValidateFills(chainID, taker, orders, fillAmounts)
	if err != nil {
		return nil, newInternalError(err.Error())
	}

	e.events.Broadcast(chainID, Event{
		Type: EventFillRequestReceived,
		Data: FillRequestReceivedData{TransactionHash: txHash.Hex()},
	})
	e.log.Infow("fill_request_received",
		"chain_id", chainID,
		"tx_hash", txHash.Hex(),
		"function", call.FunctionName,
		"orders", len(orders),
	)

	if e.cfg.SelectiveDelay > 0 {
		// The hold must run to completion even if the caller disconnects:
		// subscribers were told a fill is pending, and makers get the
		// full window to react.
		<-e.clock.After(e.cfg.SelectiveDelay)

		if seen, err := e.repo.HasTransaction(chainID, txHash); err != nil {
			return nil, newInternalError(fmt.Sprintf("transaction lookup: %v", err))
		} else if seen {
			return nil, e.replayError(txHash)
		}

		// Liveness may have changed during the hold. Only the surviving
		// orders need rechecking; a refusal never un-refuses.
		subOrders := make([]*zeroex.SignedOrder, len(approved))
		subAmounts := make([]*big.Int, len(approved))
		for i, a := range approved {
			subOrders[i] = a.Order
			subAmounts[i] = a.FillAmount
		}
		var lateRefusals []OrderRefusal
		approved, lateRefusals, err = validator.ValidateFills(chainID, taker, subOrders, subAmounts)
		if err != nil {
			return nil, newInternalError(err.Error())
		}
		refusals = append(refusals, lateRefusals...)
	}

	approvalExpiration := e.clock.Now().Unix() + int64(e.cfg.ApprovalDuration/time.Second)
	if tx.ExpirationTimeSeconds.Cmp(big.NewInt(approvalExpiration)) > 0 {
		return nil, newRequestError(CodeTransactionExpirationTooHigh, "signedTransaction.expirationTimeSeconds",
			fmt.Sprintf("transaction must expire by %d", approvalExpiration))
	}

	// Commit the fills against the per-taker ledger. The reservation is
	// the authoritative check; a concurrent request racing past the
	// advisory validation loses here and turns into a refusal.
	reserved := make([]ApprovedFill, 0, len(approved))
	for _, a := range approved {
		ok, err := e.repo.ReserveFill(chainID, a.OrderHash, taker, a.FillAmount, a.Order.TakerAssetAmount)
		if err != nil {
			return nil, newInternalError(fmt.Sprintf("fill reservation: %v", err))
		}
		if !ok {
			refusals = append(refusals, OrderRefusal{OrderHash: a.OrderHash, Reason: RefusalLedgerExceeded})
			continue
		}
		reserved = append(reserved, a)
	}

	resp := &FillResponse{
		ApprovedOrderHashes:   []string{},
		OrdersRefusedApproval: refusalsToWire(refusals),
		Signatures:            []string{},
		ExpirationTimeSeconds: approvalExpiration,
	}
	if len(reserved) == 0 {
		e.log.Infow("fill_request_refused",
			"chain_id", chainID,
			"tx_hash", txHash.Hex(),
			"refused", len(refusals),
		)
		return &TransactionResponse{Fill: resp}, nil
	}

	approvedHashes := make([]common.Hash, len(reserved))
	approvedAmounts := make([]*big.Int, len(reserved))
	for i, a := range reserved {
		approvedHashes[i] = a.OrderHash
		approvedAmounts[i] = a.FillAmount
	}

	approval := &zeroex.CoordinatorApproval{
		ChainID:                       big.NewInt(chainID),
		CoordinatorAddress:            chain.CoordinatorAddress,
		OrderHashes:                   approvedHashes,
		TxOrigin:                      req.TxOrigin,
		ApprovalExpirationTimeSeconds: big.NewInt(approvalExpiration),
	}
	approvalHash, err := approval.Hash()
	if err != nil {
		return nil, newInternalError(fmt.Sprintf("failed to hash approval: %v", err))
	}

	// One signature per distinct fee recipient, in first-appearance order.
	signatures := []string{}
	signedRecipients := make(map[common.Address]bool)
	for _, a := range reserved {
		recipient := a.Order.FeeRecipientAddress
		if signedRecipients[recipient] {
			continue
		}
		signer, ok := chain.Signer(recipient)
		if !ok {
			return nil, newInternalError(fmt.Sprintf("no signing key for fee recipient %s", recipient.Hex()))
		}
		sig, err := signer.SignDigest(approvalHash, zeroex.ApprovalSignature)
		if err != nil {
			return nil, newInternalError(fmt.Sprintf("failed to sign approval: %v", err))
		}
		signatures = append(signatures, hexutil.Encode(sig))
		signedRecipients[recipient] = true
	}

	record := &TransactionRecord{
		TransactionHash:               txHash,
		TxOrigin:                      req.TxOrigin,
		SignerAddress:                 taker,
		ExpirationTimeSeconds:         tx.ExpirationTimeSeconds,
		ApprovalExpirationTimeSeconds: approvalExpiration,
		ApprovedOrderHashes:           approvedHashes,
		ApprovedFillAmounts:           approvedAmounts,
		ApprovalSignatures:            signatures,
		FunctionName:                  call.FunctionName,
		Orders:                        orders,
		TakerAssetFillAmounts:         fillAmounts,
	}
	if err := e.repo.InsertTransaction(chainID, record); err != nil {
		if errors.Is(err, ErrTransactionSeen) {
			return nil, e.replayError(txHash)
		}
		return nil, newInternalError(fmt.Sprintf("failed to persist transaction: %v", err))
	}

	e.events.Broadcast(chainID, Event{
		Type: EventFillRequestAccepted,
		Data: FillRequestAcceptedData{
			FunctionName:                  call.FunctionName,
			Order:                         reserved[0].Order,
			TakerAssetFillAmounts:         bigsToStrings(fillAmounts),
			ApprovalHash:                  approvalHash.Hex(),
			ApprovedOrderHashes:           hashesToHex(approvedHashes),
			ApprovalExpirationTimeSeconds: approvalExpiration,
		},
	})
	e.log.Infow("fill_request_accepted",
		"chain_id", chainID,
		"tx_hash", txHash.Hex(),
		"approval_hash", approvalHash.Hex(),
		"approved", len(approvedHashes),
		"refused", len(refusals),
		"signatures", len(signatures),
	)

	resp.ApprovalHash = approvalHash.Hex()
	resp.ApprovedOrderHashes = hashesToHex(approvedHashes)
	resp.Signatures = signatures
	return &TransactionResponse{Fill: resp}, nil
}

func (e *Engine) replayError(txHash common.Hash) *RequestError {
	return &RequestError{
		Code:     CodeTransactionAlreadyUsed,
		Status:   http.StatusBadRequest,
		Field:    "signedTransaction",
		Reason:   "transaction hash was already used",
		Entities: []string{txHash.Hex()},
	}
}

// SoftCancels returns the subset of the given order hashes that makers have
// soft-cancelled on the chain.
func (e *Engine) SoftCancels(chainID int64, orderHashes []common.Hash) ([]common.Hash, error) {
	if _, ok := e.chains[chainID]; !ok {
		return nil, newRequestError(CodeSchemaInvalid, "chainId", fmt.Sprintf("chain %d is not served", chainID))
	}
	cancelled, err := e.repo.FilterSoftCancelled(chainID, orderHashes)
	if err != nil {
		return nil, newInternalError(fmt.Sprintf("soft-cancel lookup: %v", err))
	}
	if cancelled == nil {
		cancelled = []common.Hash{}
	}
	return cancelled, nil
}
