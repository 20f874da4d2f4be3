package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/AltCoinExchange/0x-coordinator-server/pkg/coordinator"
	"github.com/AltCoinExchange/0x-coordinator-server/pkg/oracle"
	"github.com/AltCoinExchange/0x-coordinator-server/pkg/zeroex"
	"github.com/AltCoinExchange/0x-coordinator-server/pkg/zeroex/decoder"
)

// Devnet contract addresses matching the default coordinator configuration.
var (
	chainID      = big.NewInt(1337)
	exchange     = common.HexToAddress("0x48bacb9266a570d521063ef5dd96e61686dbe788")
	feeRecipient = common.HexToAddress("0x5409ed021d9299bf6814279a6a1411a7e866a631")
	makerToken   = common.HexToAddress("0x0b1ba0af832d7c05fd64161e0db78e85978e8082")
	takerToken   = common.HexToAddress("0x871dd7c5b4b25e1aefb5dbe1cf2b8b648c916233")
)

func main() {
	// Step 1: Generate throwaway maker and taker keys
	fmt.Println("Generating maker and taker keypairs...")
	maker, err := zeroex.GenerateSigner()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	taker, err := zeroex.GenerateSigner()
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Maker: %s\n", maker.Address().Hex())
	fmt.Printf("Taker: %s\n\n", taker.Address().Hex())

	// Step 2: Build and sign a coordinated order
	order := &zeroex.Order{
		ChainID:               chainID,
		ExchangeAddress:       exchange,
		MakerAddress:          maker.Address(),
		FeeRecipientAddress:   feeRecipient,
		MakerAssetData:        oracle.EncodeERC20AssetData(makerToken),
		TakerAssetData:        oracle.EncodeERC20AssetData(takerToken),
		MakerFeeAssetData:     []byte{},
		TakerFeeAssetData:     []byte{},
		MakerAssetAmount:      big.NewInt(1000),
		TakerAssetAmount:      big.NewInt(100),
		MakerFee:              big.NewInt(0),
		TakerFee:              big.NewInt(0),
		ExpirationTimeSeconds: big.NewInt(time.Now().Add(time.Hour).Unix()),
		Salt:                  big.NewInt(time.Now().UnixNano()),
	}
	signedOrder, err := zeroex.SignOrder(maker, order, zeroex.EthSignSignature)
	if err != nil {
		fmt.Printf("Error signing order: %v\n", err)
		os.Exit(1)
	}
	orderHash, _ := signedOrder.Hash()

	fmt.Println("Order Details:")
	fmt.Printf("  Hash: %s\n", orderHash.Hex())
	fmt.Printf("  Maker asset amount: %s\n", order.MakerAssetAmount)
	fmt.Printf("  Taker asset amount: %s\n", order.TakerAssetAmount)
	fmt.Printf("  Fee recipient: %s\n", order.FeeRecipientAddress.Hex())
	fmt.Printf("  Expires: %s\n\n", time.Unix(order.ExpirationTimeSeconds.Int64(), 0))

	// Step 3: Pack a fillOrder call for 40 taker units
	dec, err := decoder.New(chainID.Int64(), exchange)
	if err != nil {
		fmt.Printf("Error building decoder: %v\n", err)
		os.Exit(1)
	}
	data, err := dec.PackFillOrder(signedOrder, big.NewInt(40))
	if err != nil {
		fmt.Printf("Error packing fillOrder: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Packed fillOrder calldata: %d bytes\n\n", len(data))

	// Step 4: Wrap it in a signed meta-transaction
	tx := &zeroex.Transaction{
		Salt:                  big.NewInt(time.Now().UnixNano()),
		ExpirationTimeSeconds: big.NewInt(time.Now().Add(time.Minute).Unix()),
		SignerAddress:         taker.Address(),
		Data:                  data,
	}
	tx.SetChainContext(chainID, exchange)
	signedTx, err := zeroex.SignTransaction(taker, tx, zeroex.EIP712Signature)
	if err != nil {
		fmt.Printf("Error signing transaction: %v\n", err)
		os.Exit(1)
	}
	txHash, _ := signedTx.Hash()
	fmt.Printf("Transaction hash: %s\n", txHash.Hex())

	// Step 5: Verify the signature recovers the taker
	recovered, err := zeroex.RecoverSigner(txHash, signedTx.Signature)
	if err != nil {
		fmt.Printf("Error verifying: %v\n", err)
		os.Exit(1)
	}
	if recovered != taker.Address() {
		fmt.Println("✗ Signature INVALID")
		os.Exit(1)
	}
	fmt.Println("✓ Signature VALID")
	fmt.Printf("  Signer: %s\n\n", recovered.Hex())

	// Step 6: Print the request body
	body, err := json.MarshalIndent(coordinator.TransactionRequest{
		SignedTransaction: signedTx,
		TxOrigin:          taker.Address(),
	}, "", "  ")
	if err != nil {
		fmt.Printf("Error marshaling JSON: %v\n", err)
		os.Exit(1)
	}

	fmt.Println("To request approval from the coordinator:")
	fmt.Println("  POST http://localhost:3000/v2/request_transaction?chainId=1337")
	fmt.Println("  Content-Type: application/json")
	fmt.Println("  Body:")
	fmt.Println(string(body))
}
