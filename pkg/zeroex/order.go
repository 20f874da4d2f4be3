package zeroex

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
)

// Order is an unsigned 0x limit order.
type Order struct {
	ChainID         *big.Int       `json:"chainId"`
	ExchangeAddress common.Address `json:"exchangeAddress"`

	MakerAddress          common.Address `json:"makerAddress"`
	MakerAssetData        []byte         `json:"makerAssetData"`
	MakerFeeAssetData     []byte         `json:"makerFeeAssetData"`
	MakerAssetAmount      *big.Int       `json:"makerAssetAmount"`
	MakerFee              *big.Int       `json:"makerFee"`
	TakerAddress          common.Address `json:"takerAddress"`
	TakerAssetData        []byte         `json:"takerAssetData"`
	TakerFeeAssetData     []byte         `json:"takerFeeAssetData"`
	TakerAssetAmount      *big.Int       `json:"takerAssetAmount"`
	TakerFee              *big.Int       `json:"takerFee"`
	SenderAddress         common.Address `json:"senderAddress"`
	FeeRecipientAddress   common.Address `json:"feeRecipientAddress"`
	ExpirationTimeSeconds *big.Int       `json:"expirationTimeSeconds"`
	Salt                  *big.Int       `json:"salt"`

	// Cache hash for performance
	hash *common.Hash
}

// SignedOrder is an order carrying the maker's signature.
type SignedOrder struct {
	Order
	Signature []byte `json:"signature"`
}

var eip712OrderTypes = apitypes.Types{
	"EIP712Domain": eip712DomainTypes,
	"Order": {
		{Name: "makerAddress", Type: "address"},
		{Name: "takerAddress", Type: "address"},
		{Name: "feeRecipientAddress", Type: "address"},
		{Name: "senderAddress", Type: "address"},
		{Name: "makerAssetAmount", Type: "uint256"},
		{Name: "takerAssetAmount", Type: "uint256"},
		{Name: "makerFee", Type: "uint256"},
		{Name: "takerFee", Type: "uint256"},
		{Name: "expirationTimeSeconds", Type: "uint256"},
		{Name: "salt", Type: "uint256"},
		{Name: "makerAssetData", Type: "bytes"},
		{Name: "takerAssetData", Type: "bytes"},
		{Name: "makerFeeAssetData", Type: "bytes"},
		{Name: "takerFeeAssetData", Type: "bytes"},
	},
}

// ResetHash clears the cached order hash. Call it after mutating any field
// that feeds the hash.
func (o *Order) ResetHash() {
	o.hash = nil
}

// Hash computes the EIP-712 hash of the order under the exchange domain for
// the order's chain. The result is cached.
func (o *Order) Hash() (common.Hash, error) {
	if o.hash != nil {
		return *o.hash, nil
	}
	if o.ChainID == nil {
		return common.Hash{}, errors.New("order chainId not set")
	}
	typedData := apitypes.TypedData{
		Types:       eip712OrderTypes,
		PrimaryType: "Order",
		Domain:      exchangeDomain(o.ChainID, o.ExchangeAddress),
		Message: apitypes.TypedDataMessage{
			"makerAddress":          o.MakerAddress.Hex(),
			"takerAddress":          o.TakerAddress.Hex(),
			"feeRecipientAddress":   o.FeeRecipientAddress.Hex(),
			"senderAddress":         o.SenderAddress.Hex(),
			"makerAssetAmount":      o.MakerAssetAmount.String(),
			"takerAssetAmount":      o.TakerAssetAmount.String(),
			"makerFee":              o.MakerFee.String(),
			"takerFee":              o.TakerFee.String(),
			"expirationTimeSeconds": o.ExpirationTimeSeconds.String(),
			"salt":                  o.Salt.String(),
			"makerAssetData":        o.MakerAssetData,
			"takerAssetData":        o.TakerAssetData,
			"makerFeeAssetData":     o.MakerFeeAssetData,
			"takerFeeAssetData":     o.TakerFeeAssetData,
		},
	}
	hash, err := hashTypedData(typedData)
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to hash order: %w", err)
	}
	o.hash = &hash
	return hash, nil
}

// SignOrder signs the order hash with the given signer and returns the
// signed order. The signature is laid out v || r || s || type.
func SignOrder(s *Signer, order *Order, sigType SignatureType) (*SignedOrder, error) {
	if order == nil {
		return nil, errors.New("cannot sign nil order")
	}
	orderHash, err := order.Hash()
	if err != nil {
		return nil, err
	}
	signature, err := s.SignDigest(orderHash, sigType)
	if err != nil {
		return nil, err
	}
	return &SignedOrder{Order: *order, Signature: signature}, nil
}

// signedOrderJSON is the wire form of a signed order: addresses lowercased,
// uint256 values as decimal strings, byte fields as 0x hex.
type signedOrderJSON struct {
	ChainID               int64  `json:"chainId"`
	ExchangeAddress       string `json:"exchangeAddress"`
	MakerAddress          string `json:"makerAddress"`
	MakerAssetData        string `json:"makerAssetData"`
	MakerFeeAssetData     string `json:"makerFeeAssetData"`
	MakerAssetAmount      string `json:"makerAssetAmount"`
	MakerFee              string `json:"makerFee"`
	TakerAddress          string `json:"takerAddress"`
	TakerAssetData        string `json:"takerAssetData"`
	TakerFeeAssetData     string `json:"takerFeeAssetData"`
	TakerAssetAmount      string `json:"takerAssetAmount"`
	TakerFee              string `json:"takerFee"`
	SenderAddress         string `json:"senderAddress"`
	FeeRecipientAddress   string `json:"feeRecipientAddress"`
	ExpirationTimeSeconds string `json:"expirationTimeSeconds"`
	Salt                  string `json:"salt"`
	Signature             string `json:"signature"`
}

// MarshalJSON implements json.Marshaler.
func (s SignedOrder) MarshalJSON() ([]byte, error) {
	var chainID int64
	if s.ChainID != nil {
		chainID = s.ChainID.Int64()
	}
	return json.Marshal(signedOrderJSON{
		ChainID:               chainID,
		ExchangeAddress:       strings.ToLower(s.ExchangeAddress.Hex()),
		MakerAddress:          strings.ToLower(s.MakerAddress.Hex()),
		MakerAssetData:        hexutil.Encode(s.MakerAssetData),
		MakerFeeAssetData:     hexutil.Encode(s.MakerFeeAssetData),
		MakerAssetAmount:      bigString(s.MakerAssetAmount),
		MakerFee:              bigString(s.MakerFee),
		TakerAddress:          strings.ToLower(s.TakerAddress.Hex()),
		TakerAssetData:        hexutil.Encode(s.TakerAssetData),
		TakerFeeAssetData:     hexutil.Encode(s.TakerFeeAssetData),
		TakerAssetAmount:      bigString(s.TakerAssetAmount),
		TakerFee:              bigString(s.TakerFee),
		SenderAddress:         strings.ToLower(s.SenderAddress.Hex()),
		FeeRecipientAddress:   strings.ToLower(s.FeeRecipientAddress.Hex()),
		ExpirationTimeSeconds: bigString(s.ExpirationTimeSeconds),
		Salt:                  bigString(s.Salt),
		Signature:             hexutil.Encode(s.Signature),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *SignedOrder) UnmarshalJSON(data []byte) error {
	var raw signedOrderJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	s.ChainID = big.NewInt(raw.ChainID)
	s.ExchangeAddress = common.HexToAddress(raw.ExchangeAddress)
	s.MakerAddress = common.HexToAddress(raw.MakerAddress)
	s.TakerAddress = common.HexToAddress(raw.TakerAddress)
	s.SenderAddress = common.HexToAddress(raw.SenderAddress)
	s.FeeRecipientAddress = common.HexToAddress(raw.FeeRecipientAddress)

	var err error
	if s.MakerAssetData, err = bytesFromHex(raw.MakerAssetData); err != nil {
		return fmt.Errorf("invalid makerAssetData: %w", err)
	}
	if s.MakerFeeAssetData, err = bytesFromHex(raw.MakerFeeAssetData); err != nil {
		return fmt.Errorf("invalid makerFeeAssetData: %w", err)
	}
	if s.TakerAssetData, err = bytesFromHex(raw.TakerAssetData); err != nil {
		return fmt.Errorf("invalid takerAssetData: %w", err)
	}
	if s.TakerFeeAssetData, err = bytesFromHex(raw.TakerFeeAssetData); err != nil {
		return fmt.Errorf("invalid takerFeeAssetData: %w", err)
	}
	if s.Signature, err = bytesFromHex(raw.Signature); err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}

	if s.MakerAssetAmount, err = bigFromString(raw.MakerAssetAmount); err != nil {
		return fmt.Errorf("invalid makerAssetAmount: %w", err)
	}
	if s.MakerFee, err = bigFromString(raw.MakerFee); err != nil {
		return fmt.Errorf("invalid makerFee: %w", err)
	}
	if s.TakerAssetAmount, err = bigFromString(raw.TakerAssetAmount); err != nil {
		return fmt.Errorf("invalid takerAssetAmount: %w", err)
	}
	if s.TakerFee, err = bigFromString(raw.TakerFee); err != nil {
		return fmt.Errorf("invalid takerFee: %w", err)
	}
	if s.ExpirationTimeSeconds, err = bigFromString(raw.ExpirationTimeSeconds); err != nil {
		return fmt.Errorf("invalid expirationTimeSeconds: %w", err)
	}
	if s.Salt, err = bigFromString(raw.Salt); err != nil {
		return fmt.Errorf("invalid salt: %w", err)
	}
	s.hash = nil
	return nil
}

func bigString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func bigFromString(s string) (*big.Int, error) {
	if s == "" {
		return big.NewInt(0), nil
	}
	v, ok := math.ParseBig256(s)
	if !ok {
		return nil, fmt.Errorf("not a valid uint256: %q", s)
	}
	return v, nil
}

func bytesFromHex(s string) ([]byte, error) {
	if s == "" || s == "0x" {
		return []byte{}, nil
	}
	return hexutil.Decode(s)
}
