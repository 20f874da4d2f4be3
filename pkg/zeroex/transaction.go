package zeroex

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Transaction is a 0x meta-transaction: an intent to invoke an exchange
// method, signed off-chain and broadcast by some txOrigin on the signer's
// behalf.
type Transaction struct {
	ChainID         *big.Int       `json:"chainId"`
	ExchangeAddress common.Address `json:"exchangeAddress"`

	Salt                  *big.Int       `json:"salt"`
	ExpirationTimeSeconds *big.Int       `json:"expirationTimeSeconds"`
	SignerAddress         common.Address `json:"signerAddress"`
	Data                  []byte         `json:"data"`

	hash *common.Hash
}

// SignedTransaction is a meta-transaction carrying the signer's signature.
type SignedTransaction struct {
	Transaction
	Signature []byte `json:"signature"`
}

var eip712TransactionTypes = apitypes.Types{
	"EIP712Domain": eip712DomainTypes,
	"ZeroExTransaction": {
		{Name: "salt", Type: "uint256"},
		{Name: "expirationTimeSeconds", Type: "uint256"},
		{Name: "signerAddress", Type: "address"},
		{Name: "data", Type: "bytes"},
	},
}

// SetChainContext pins the chain the transaction hashes against and clears
// any cached hash. The wire form carries neither field; the server fills
// them in from the routed chain.
func (tx *Transaction) SetChainContext(chainID *big.Int, exchangeAddress common.Address) {
	tx.ChainID = chainID
	tx.ExchangeAddress = exchangeAddress
	tx.hash = nil
}

// Hash computes the EIP-712 hash of the transaction under the exchange
// domain for its chain. The result is cached.
func (tx *Transaction) Hash() (common.Hash, error) {
	if tx.hash != nil {
		return *tx.hash, nil
	}
	if tx.ChainID == nil {
		return common.Hash{}, errors.New("transaction chainId not set")
	}
	typedData := apitypes.TypedData{
		Types:       eip712TransactionTypes,
		PrimaryType: "ZeroExTransaction",
		Domain:      exchangeDomain(tx.ChainID, tx.ExchangeAddress),
		Message: apitypes.TypedDataMessage{
			"salt":                  tx.Salt.String(),
			"expirationTimeSeconds": tx.ExpirationTimeSeconds.String(),
			"signerAddress":         tx.SignerAddress.Hex(),
			"data":                  tx.Data,
		},
	}
	hash, err := hashTypedData(typedData)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash transaction: %w", err)
	}
	tx.hash = &hash
	return hash, nil
}

// SignTransaction signs the transaction hash with the given signer.
func SignTransaction(s *Signer, tx *Transaction, sigType SignatureType) (*SignedTransaction, error) {
	if tx == nil {
		return nil, errors.New("cannot sign nil transaction")
	}
	txHash, err := tx.Hash()
	if err != nil {
		return nil, err
	}
	signature, err := s.SignDigest(txHash, sigType)
	if err != nil {
		return nil, err
	}
	return &SignedTransaction{Transaction: *tx, Signature: signature}, nil
}

// Validate checks structural well-formedness of a transaction received over
// the wire. It does not verify the signature.
func (tx *SignedTransaction) Validate() error {
	if tx.Salt == nil || tx.Salt.Sign() < 0 {
		return errors.New("salt is required")
	}
	if tx.ExpirationTimeSeconds == nil || tx.ExpirationTimeSeconds.Sign() <= 0 {
		return errors.New("expirationTimeSeconds is required")
	}
	if tx.SignerAddress == (common.Address{}) {
		return errors.New("signerAddress is required")
	}
	if len(tx.Data) < 4 {
		return errors.New("data must contain at least a 4-byte method selector")
	}
	if len(tx.Signature) != SignatureLength {
		return fmt.Errorf("signature must be %d bytes, got %d", SignatureLength, len(tx.Signature))
	}
	return nil
}

// signedTransactionJSON is the wire form: uint256 values as decimal strings,
// byte fields as 0x hex. Chain context never travels on the wire.
type signedTransactionJSON struct {
	Salt                  string `json:"salt"`
	ExpirationTimeSeconds string `json:"expirationTimeSeconds"`
	SignerAddress         string `json:"signerAddress"`
	Data                  string `json:"data"`
	Signature             string `json:"signature"`
}

// MarshalJSON implements json.Marshaler.
func (tx SignedTransaction) MarshalJSON() ([]byte, error) {
	return json.Marshal(signedTransactionJSON{
		Salt:                  bigString(tx.Salt),
		ExpirationTimeSeconds: bigString(tx.ExpirationTimeSeconds),
		SignerAddress:         strings.ToLower(tx.SignerAddress.Hex()),
		Data:                  hexutil.Encode(tx.Data),
		Signature:             hexutil.Encode(tx.Signature),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (tx *SignedTransaction) UnmarshalJSON(data []byte) error {
	var raw signedTransactionJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	var err error
	if tx.Salt, err = bigFromString(raw.Salt); err != nil {
		return fmt.Errorf("invalid salt: %w", err)
	}
	if tx.ExpirationTimeSeconds, err = bigFromString(raw.ExpirationTimeSeconds); err != nil {
		return fmt.Errorf("invalid expirationTimeSeconds: %w", err)
	}
	tx.SignerAddress = common.HexToAddress(raw.SignerAddress)
	if tx.Data, err = bytesFromHex(raw.Data); err != nil {
		return fmt.Errorf("invalid data: %w", err)
	}
	if tx.Signature, err = bytesFromHex(raw.Signature); err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}
	tx.ChainID = nil
	tx.ExchangeAddress = common.Address{}
	tx.hash = nil
	return nil
}
