package events

import (
	"math/big"

	"loanchain/core/types"
)

const (
	// TypeTokenTransfer is emitted for fungible balance movements.
	TypeTokenTransfer = "token.transfer"
	// TypeTokenMint is emitted when an issuer mints new fungible supply.
	TypeTokenMint = "token.mint"
	// TypeUniqueTransfer is emitted when a unique token changes custody.
	TypeUniqueTransfer = "token.unique_transfer"
)

type TokenTransfer struct {
	Asset  string
	From   [20]byte
	To     [20]byte
	Amount *big.Int
}

func (TokenTransfer) EventType() string { return TypeTokenTransfer }

func (e TokenTransfer) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenTransfer,
		Attributes: map[string]string{
			"asset":  e.Asset,
			"from":   accountString(e.From),
			"to":     accountString(e.To),
			"amount": formatAmount(e.Amount),
		},
	}
}

type TokenMint struct {
	Asset  string
	To     [20]byte
	Amount *big.Int
}

func (TokenMint) EventType() string { return TypeTokenMint }

func (e TokenMint) Event() *types.Event {
	return &types.Event{
		Type: TypeTokenMint,
		Attributes: map[string]string{
			"asset":  e.Asset,
			"to":     accountString(e.To),
			"amount": formatAmount(e.Amount),
		},
	}
}

type UniqueTransfer struct {
	Asset   string
	TokenID uint64
	From    [20]byte
	To      [20]byte
}

func (UniqueTransfer) EventType() string { return TypeUniqueTransfer }

func (e UniqueTransfer) Event() *types.Event {
	return &types.Event{
		Type: TypeUniqueTransfer,
		Attributes: map[string]string{
			"asset":   e.Asset,
			"tokenId": formatUint(e.TokenID),
			"from":    accountString(e.From),
			"to":      accountString(e.To),
		},
	}
}
