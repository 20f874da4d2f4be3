package storage

import (
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AltCoinExchange/0x-coordinator-server/pkg/coordinator"
	"github.com/AltCoinExchange/0x-coordinator-server/pkg/zeroex"
)

const testChain = int64(1337)

var (
	orderHashA = common.HexToHash("0xe125a7cd61b2c25bbee9be982cdd224e5c02f0c66f9bbdfbf23f07934c16da43")
	orderHashB = common.HexToHash("0x8f2ad23ab1abe6c7a0b63710dbcdbb5d1ef32a4e52c060e3b105b86b19c78e4f")
	takerA     = common.HexToAddress("0xe36ea790bc9d7ab70c55260c66d52b1eca985f84")
	takerB     = common.HexToAddress("0x78dc5d2d739606d31509c31d654056ea9c24b4a3")
)

// withRepositories runs a test against both Repository implementations.
func withRepositories(t *testing.T, fn func(t *testing.T, repo coordinator.Repository)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryRepository())
	})
	t.Run("pebble", func(t *testing.T) {
		repo, err := NewPebbleRepository(t.TempDir())
		if err != nil {
			t.Fatalf("NewPebbleRepository: %v", err)
		}
		t.Cleanup(func() { repo.Close() })
		fn(t, repo)
	})
}

func TestSoftCancels(t *testing.T) {
	withRepositories(t, func(t *testing.T, repo coordinator.Repository) {
		cancelled, err := repo.SoftCancelled(testChain, orderHashA)
		if err != nil {
			t.Fatalf("SoftCancelled: %v", err)
		}
		if cancelled {
			t.Fatal("fresh store must not report cancels")
		}

		if err := repo.SoftCancel(testChain, []common.Hash{orderHashA}); err != nil {
			t.Fatalf("SoftCancel: %v", err)
		}
		// Idempotent.
		if err := repo.SoftCancel(testChain, []common.Hash{orderHashA}); err != nil {
			t.Fatalf("SoftCancel repeat: %v", err)
		}

		cancelled, err = repo.SoftCancelled(testChain, orderHashA)
		if err != nil {
			t.Fatalf("SoftCancelled: %v", err)
		}
		if !cancelled {
			t.Fatal("expected orderHashA cancelled")
		}

		// Another chain is unaffected.
		cancelled, err = repo.SoftCancelled(testChain+1, orderHashA)
		if err != nil {
			t.Fatalf("SoftCancelled other chain: %v", err)
		}
		if cancelled {
			t.Fatal("cancel leaked across chains")
		}

		subset, err := repo.FilterSoftCancelled(testChain, []common.Hash{orderHashB, orderHashA})
		if err != nil {
			t.Fatalf("FilterSoftCancelled: %v", err)
		}
		if len(subset) != 1 || subset[0] != orderHashA {
			t.Fatalf("filter = %v, want [orderHashA]", subset)
		}
		t.Logf("✓ soft cancels are idempotent and chain-scoped")
	})
}

func TestFillLedger(t *testing.T) {
	withRepositories(t, func(t *testing.T, repo coordinator.Repository) {
		max := big.NewInt(100)

		ok, err := repo.ReserveFill(testChain, orderHashA, takerA, big.NewInt(40), max)
		if err != nil {
			t.Fatalf("ReserveFill: %v", err)
		}
		if !ok {
			t.Fatal("first reservation within max must succeed")
		}

		// 40 + 70 > 100: refused, ledger unchanged.
		ok, err = repo.ReserveFill(testChain, orderHashA, takerA, big.NewInt(70), max)
		if err != nil {
			t.Fatalf("ReserveFill: %v", err)
		}
		if ok {
			t.Fatal("over-max reservation must be refused")
		}
		amount, err := repo.RequestedFillAmount(testChain, orderHashA, takerA)
		if err != nil {
			t.Fatalf("RequestedFillAmount: %v", err)
		}
		if amount.Cmp(big.NewInt(40)) != 0 {
			t.Fatalf("ledger = %s after refused reservation, want 40", amount)
		}

		// Exactly up to max succeeds.
		ok, err = repo.ReserveFill(testChain, orderHashA, takerA, big.NewInt(60), max)
		if err != nil {
			t.Fatalf("ReserveFill: %v", err)
		}
		if !ok {
			t.Fatal("reservation up to max must succeed")
		}

		// Another taker holds an independent ledger.
		other, err := repo.RequestedFillAmount(testChain, orderHashA, takerB)
		if err != nil {
			t.Fatalf("RequestedFillAmount: %v", err)
		}
		if other.Sign() != 0 {
			t.Fatalf("takerB ledger = %s, want 0", other)
		}
		t.Logf("✓ fill ledger enforces the per-taker bound")
	})
}

func TestReserveFillConcurrent(t *testing.T) {
	withRepositories(t, func(t *testing.T, repo coordinator.Repository) {
		const attempts = 100
		max := big.NewInt(50)

		var wg sync.WaitGroup
		results := make(chan bool, attempts)
		for i := 0; i < attempts; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := repo.ReserveFill(testChain, orderHashB, takerA, big.NewInt(1), max)
				if err != nil {
					t.Errorf("ReserveFill: %v", err)
					return
				}
				results <- ok
			}()
		}
		wg.Wait()
		close(results)

		granted := 0
		for ok := range results {
			if ok {
				granted++
			}
		}
		if granted != 50 {
			t.Fatalf("granted %d reservations, want exactly 50", granted)
		}
		amount, err := repo.RequestedFillAmount(testChain, orderHashB, takerA)
		if err != nil {
			t.Fatalf("RequestedFillAmount: %v", err)
		}
		if amount.Cmp(max) != 0 {
			t.Fatalf("ledger = %s, want %s", amount, max)
		}
		t.Logf("✓ concurrent reservations never overshoot the bound")
	})
}

func testRecord(txHash common.Hash, approvalExp int64) *coordinator.TransactionRecord {
	order := &zeroex.SignedOrder{
		Order: zeroex.Order{
			ChainID:               big.NewInt(testChain),
			ExchangeAddress:       common.HexToAddress("0x48bacb9266a570d521063ef5dd96e61686dbe788"),
			MakerAddress:          common.HexToAddress("0x6ecbe1db9ef729cbe972c83fb886247691fb6beb"),
			FeeRecipientAddress:   common.HexToAddress("0x5409ed021d9299bf6814279a6a1411a7e866a631"),
			MakerAssetData:        []byte{0xf4, 0x72, 0x61, 0xb0},
			TakerAssetData:        []byte{0xf4, 0x72, 0x61, 0xb0},
			MakerFeeAssetData:     []byte{},
			TakerFeeAssetData:     []byte{},
			MakerAssetAmount:      big.NewInt(1000),
			TakerAssetAmount:      big.NewInt(100),
			MakerFee:              big.NewInt(0),
			TakerFee:              big.NewInt(0),
			ExpirationTimeSeconds: big.NewInt(1900000000),
			Salt:                  big.NewInt(7),
		},
		Signature: make([]byte, zeroex.SignatureLength),
	}
	return &coordinator.TransactionRecord{
		TransactionHash:               txHash,
		TxOrigin:                      takerA,
		SignerAddress:                 takerA,
		ExpirationTimeSeconds:         big.NewInt(approvalExp),
		ApprovalExpirationTimeSeconds: approvalExp,
		ApprovedOrderHashes:           []common.Hash{orderHashA},
		ApprovedFillAmounts:           []*big.Int{big.NewInt(40)},
		ApprovalSignatures:            []string{"0x1bdeadbeef05"},
		FunctionName:                  "fillOrder",
		Orders:                        []*zeroex.SignedOrder{order},
		TakerAssetFillAmounts:         []*big.Int{big.NewInt(40)},
	}
}

func TestTransactionRecords(t *testing.T) {
	withRepositories(t, func(t *testing.T, repo coordinator.Repository) {
		txHash := common.HexToHash("0x11a7dd41e9d5ab226b1b812ad84f35a0c1a9845ebf21eab7476b9a7366a95c8f")

		seen, err := repo.HasTransaction(testChain, txHash)
		if err != nil {
			t.Fatalf("HasTransaction: %v", err)
		}
		if seen {
			t.Fatal("fresh store must not know the transaction")
		}

		record := testRecord(txHash, 2000000000)
		if err := repo.InsertTransaction(testChain, record); err != nil {
			t.Fatalf("InsertTransaction: %v", err)
		}
		if err := repo.InsertTransaction(testChain, record); !errors.Is(err, coordinator.ErrTransactionSeen) {
			t.Fatalf("duplicate insert err = %v, want ErrTransactionSeen", err)
		}
		seen, err = repo.HasTransaction(testChain, txHash)
		if err != nil {
			t.Fatalf("HasTransaction: %v", err)
		}
		if !seen {
			t.Fatal("inserted transaction not found")
		}
		t.Logf("✓ transaction inserts are exactly-once")
	})
}

func TestOutstandingFillApprovals(t *testing.T) {
	withRepositories(t, func(t *testing.T, repo coordinator.Repository) {
		live := common.HexToHash("0x21a7dd41e9d5ab226b1b812ad84f35a0c1a9845ebf21eab7476b9a7366a95c01")
		expired := common.HexToHash("0x21a7dd41e9d5ab226b1b812ad84f35a0c1a9845ebf21eab7476b9a7366a95c02")
		now := int64(1700000000)

		if err := repo.InsertTransaction(testChain, testRecord(live, now+60)); err != nil {
			t.Fatalf("InsertTransaction live: %v", err)
		}
		if err := repo.InsertTransaction(testChain, testRecord(expired, now-60)); err != nil {
			t.Fatalf("InsertTransaction expired: %v", err)
		}

		approvals, err := repo.OutstandingFillApprovals(testChain, []common.Hash{orderHashA, orderHashB}, now)
		if err != nil {
			t.Fatalf("OutstandingFillApprovals: %v", err)
		}
		if len(approvals) != 1 {
			t.Fatalf("got %d approvals, want 1 (expired one filtered)", len(approvals))
		}
		got := approvals[0]
		if got.OrderHash != orderHashA.Hex() {
			t.Fatalf("approval orderHash = %s, want %s", got.OrderHash, orderHashA.Hex())
		}
		if got.TakerAssetFillAmount != "40" {
			t.Fatalf("approval fill amount = %s, want 40", got.TakerAssetFillAmount)
		}
		if got.ExpirationTimeSeconds != now+60 {
			t.Fatalf("approval expiration = %d, want %d", got.ExpirationTimeSeconds, now+60)
		}
		t.Logf("✓ outstanding approvals exclude expired ones")
	})
}

func TestPebbleSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	repo, err := NewPebbleRepository(dir)
	if err != nil {
		t.Fatalf("NewPebbleRepository: %v", err)
	}

	txHash := common.HexToHash("0x31a7dd41e9d5ab226b1b812ad84f35a0c1a9845ebf21eab7476b9a7366a95c03")
	if err := repo.SoftCancel(testChain, []common.Hash{orderHashA}); err != nil {
		t.Fatalf("SoftCancel: %v", err)
	}
	if ok, err := repo.ReserveFill(testChain, orderHashB, takerA, big.NewInt(25), big.NewInt(100)); err != nil || !ok {
		t.Fatalf("ReserveFill: ok=%v err=%v", ok, err)
	}
	if err := repo.InsertTransaction(testChain, testRecord(txHash, 2000000000)); err != nil {
		t.Fatalf("InsertTransaction: %v", err)
	}
	if err := repo.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := NewPebbleRepository(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer reopened.Close()

	cancelled, err := reopened.SoftCancelled(testChain, orderHashA)
	if err != nil || !cancelled {
		t.Fatalf("soft cancel lost across reopen: cancelled=%v err=%v", cancelled, err)
	}
	amount, err := reopened.RequestedFillAmount(testChain, orderHashB, takerA)
	if err != nil || amount.Cmp(big.NewInt(25)) != 0 {
		t.Fatalf("fill ledger lost across reopen: amount=%v err=%v", amount, err)
	}
	seen, err := reopened.HasTransaction(testChain, txHash)
	if err != nil || !seen {
		t.Fatalf("transaction lost across reopen: seen=%v err=%v", seen, err)
	}
	approvals, err := reopened.OutstandingFillApprovals(testChain, []common.Hash{orderHashA}, 1900000000)
	if err != nil {
		t.Fatalf("OutstandingFillApprovals: %v", err)
	}
	if len(approvals) != 1 {
		t.Fatalf("approval index lost across reopen: got %d", len(approvals))
	}
	t.Logf("✓ pebble state survives reopen")
}
