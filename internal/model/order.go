package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"

	"github.com/GoPolymarket/bulkgate/internal/bulkorder"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/shopspring/decimal"
)

// Amount is a uint256 accepted from JSON as a number, a decimal string
// ("1.5e18" is fine as long as it is integral) or a 0x hex string. It
// marshals as a decimal string.
type Amount struct {
	value *big.Int
}

func NewAmount(n *big.Int) Amount {
	return Amount{value: n}
}

// Int returns the value, zero when unset.
func (a Amount) Int() *big.Int {
	if a.value == nil {
		return new(big.Int)
	}
	return a.value
}

// IsSet reports whether a value was given, zero included.
func (a Amount) IsSet() bool {
	return a.value != nil
}

func (a Amount) String() string {
	return a.Int().String()
}

func (a Amount) MarshalJSON() ([]byte, error) {
	return json.Marshal(a.String())
}

func (a *Amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		a.value = nil
		return nil
	}
	var s string
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	} else {
		s = string(data)
	}
	n, err := ParseAmount(s)
	if err != nil {
		return err
	}
	a.value = n
	return nil
}

// ParseAmount parses an unsigned 256-bit integer.
func ParseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), nil
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		n, ok := new(big.Int).SetString(s[2:], 16)
		if !ok {
			return nil, fmt.Errorf("invalid hex amount %q", s)
		}
		return checkUint256(s, n)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if !d.Equal(d.Truncate(0)) {
		return nil, fmt.Errorf("amount %q is not an integer", s)
	}
	return checkUint256(s, d.BigInt())
}

func checkUint256(s string, n *big.Int) (*big.Int, error) {
	if n.Sign() < 0 || n.BitLen() > 256 {
		return nil, fmt.Errorf("amount %q out of uint256 range", s)
	}
	return n, nil
}

type OfferItemInput struct {
	ItemType             uint8  `json:"item_type" binding:"max=5"`
	Token                string `json:"token"`
	IdentifierOrCriteria Amount `json:"identifier_or_criteria"`
	StartAmount          Amount `json:"start_amount"`
	EndAmount            Amount `json:"end_amount"`
}

type ConsiderationItemInput struct {
	ItemType             uint8  `json:"item_type" binding:"max=5"`
	Token                string `json:"token"`
	IdentifierOrCriteria Amount `json:"identifier_or_criteria"`
	StartAmount          Amount `json:"start_amount"`
	EndAmount            Amount `json:"end_amount"`
	Recipient            string `json:"recipient" binding:"required"`
}

// OrderInput is the JSON form of Seaport OrderComponents.
type OrderInput struct {
	Offerer       string                   `json:"offerer" binding:"required"`
	Zone          string                   `json:"zone,omitempty"`
	Offer         []OfferItemInput         `json:"offer" binding:"dive"`
	Consideration []ConsiderationItemInput `json:"consideration" binding:"dive"`
	OrderType     uint8                    `json:"order_type" binding:"max=4"`
	StartTime     Amount                   `json:"start_time"`
	EndTime       Amount                   `json:"end_time"`
	ZoneHash      string                   `json:"zone_hash,omitempty"`
	Salt          Amount                   `json:"salt"`
	ConduitKey    string                   `json:"conduit_key,omitempty"`
	Counter       Amount                   `json:"counter"`
}

// ToComponents validates addresses and hashes and converts the order.
func (o *OrderInput) ToComponents() (*bulkorder.OrderComponents, error) {
	offerer, err := parseAddress("offerer", o.Offerer, true)
	if err != nil {
		return nil, err
	}
	zone, err := parseAddress("zone", o.Zone, false)
	if err != nil {
		return nil, err
	}
	zoneHash, err := parseHash("zone_hash", o.ZoneHash)
	if err != nil {
		return nil, err
	}
	conduitKey, err := parseHash("conduit_key", o.ConduitKey)
	if err != nil {
		return nil, err
	}

	out := &bulkorder.OrderComponents{
		Offerer:    offerer,
		Zone:       zone,
		OrderType:  bulkorder.OrderType(o.OrderType),
		StartTime:  o.StartTime.Int(),
		EndTime:    o.EndTime.Int(),
		ZoneHash:   zoneHash,
		Salt:       o.Salt.Int(),
		ConduitKey: conduitKey,
		Counter:    o.Counter.Int(),
	}
	for i, item := range o.Offer {
		token, err := parseAddress(fmt.Sprintf("offer[%d].token", i), item.Token, false)
		if err != nil {
			return nil, err
		}
		out.Offer = append(out.Offer, bulkorder.OfferItem{
			ItemType:             bulkorder.ItemType(item.ItemType),
			Token:                token,
			IdentifierOrCriteria: item.IdentifierOrCriteria.Int(),
			StartAmount:          item.StartAmount.Int(),
			EndAmount:            item.EndAmount.Int(),
		})
	}
	for i, item := range o.Consideration {
		token, err := parseAddress(fmt.Sprintf("consideration[%d].token", i), item.Token, false)
		if err != nil {
			return nil, err
		}
		recipient, err := parseAddress(fmt.Sprintf("consideration[%d].recipient", i), item.Recipient, true)
		if err != nil {
			return nil, err
		}
		out.Consideration = append(out.Consideration, bulkorder.ConsiderationItem{
			ItemType:             bulkorder.ItemType(item.ItemType),
			Token:                token,
			IdentifierOrCriteria: item.IdentifierOrCriteria.Int(),
			StartAmount:          item.StartAmount.Int(),
			EndAmount:            item.EndAmount.Int(),
			Recipient:            recipient,
		})
	}
	return out, nil
}

func parseAddress(field, s string, required bool) (common.Address, error) {
	if s == "" {
		if required {
			return common.Address{}, fmt.Errorf("%s is required", field)
		}
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("%s: invalid address %q", field, s)
	}
	return common.HexToAddress(s), nil
}

func parseHash(field, s string) (common.Hash, error) {
	if s == "" {
		return common.Hash{}, nil
	}
	b, err := hexutil.Decode(s)
	if err != nil || len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("%s: expected 32 hex bytes", field)
	}
	return common.BytesToHash(b), nil
}
