package token

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"loanchain/core/events"
)

var (
	errNilState = errors.New("token ledger: state not configured")

	// ErrInvalidAmount rejects zero or negative transfer amounts.
	ErrInvalidAmount = errors.New("token: amount must be positive")
	// ErrAssetNotFound indicates the symbol has not been registered.
	ErrAssetNotFound = errors.New("token: asset not registered")
	// ErrAssetExists indicates a registration collision.
	ErrAssetExists = errors.New("token: asset already registered")
	// ErrNotIssuer gates minting on the registered issuer.
	ErrNotIssuer = errors.New("token: caller is not the asset issuer")
	// ErrInsufficientBalance aborts a transfer exceeding the sender's funds.
	ErrInsufficientBalance = errors.New("token: insufficient balance")
	// ErrInsufficientAllowance aborts a delegated transfer exceeding the
	// spender's authorization.
	ErrInsufficientAllowance = errors.New("token: insufficient allowance")
)

// Asset describes a registered fungible asset. Supply tracks total minted
// units for audit; balances live in the ledger state keyed by (symbol, addr).
type Asset struct {
	Symbol   string   `json:"symbol"`
	Name     string   `json:"name"`
	Decimals uint8    `json:"decimals"`
	Issuer   [20]byte `json:"issuer"`
	Supply   *big.Int `json:"supply"`
}

// Clone returns a deep copy so callers can mutate without aliasing state.
func (a *Asset) Clone() *Asset {
	if a == nil {
		return nil
	}
	clone := *a
	if a.Supply != nil {
		clone.Supply = new(big.Int).Set(a.Supply)
	} else {
		clone.Supply = big.NewInt(0)
	}
	return &clone
}

// FungibleState is the narrow persistence surface required by the fungible
// ledger.
type FungibleState interface {
	AssetGet(symbol string) (*Asset, bool)
	AssetPut(asset *Asset) error
	BalanceGet(symbol string, addr [20]byte) (*big.Int, error)
	BalancePut(symbol string, addr [20]byte, amount *big.Int) error
	AllowanceGet(symbol string, owner, spender [20]byte) (*big.Int, error)
	AllowancePut(symbol string, owner, spender [20]byte, amount *big.Int) error
}

// Fungible moves registered fungible assets between accounts. It is the only
// component that touches balances; higher-level engines treat it as the
// custody boundary.
type Fungible struct {
	state   FungibleState
	emitter events.Emitter
}

// NewFungible creates a fungible ledger with a no-op emitter.
func NewFungible() *Fungible {
	return &Fungible{emitter: events.NoopEmitter{}}
}

// SetState configures the persistence backend.
func (f *Fungible) SetState(state FungibleState) { f.state = state }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (f *Fungible) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		f.emitter = events.NoopEmitter{}
		return
	}
	f.emitter = emitter
}

func (f *Fungible) emit(evt events.Event) {
	if f == nil || f.emitter == nil {
		return
	}
	f.emitter.Emit(evt)
}

// NormalizeSymbol canonicalises an asset symbol to its uppercase form.
func NormalizeSymbol(symbol string) (string, error) {
	trimmed := strings.ToUpper(strings.TrimSpace(symbol))
	if trimmed == "" {
		return "", fmt.Errorf("token: empty asset symbol")
	}
	return trimmed, nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// Register records a new fungible asset with the caller as issuer.
func (f *Fungible) Register(issuer [20]byte, symbol, name string, decimals uint8) (*Asset, error) {
	if f == nil || f.state == nil {
		return nil, errNilState
	}
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if _, ok := f.state.AssetGet(normalized); ok {
		return nil, fmt.Errorf("%w: %s", ErrAssetExists, normalized)
	}
	asset := &Asset{
		Symbol:   normalized,
		Name:     strings.TrimSpace(name),
		Decimals: decimals,
		Issuer:   issuer,
		Supply:   big.NewInt(0),
	}
	if err := f.state.AssetPut(asset); err != nil {
		return nil, err
	}
	return asset.Clone(), nil
}

// Mint credits newly issued units to the recipient. Only the registered
// issuer may mint.
func (f *Fungible) Mint(caller [20]byte, symbol string, to [20]byte, amount *big.Int) error {
	if f == nil || f.state == nil {
		return errNilState
	}
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	asset, ok := f.state.AssetGet(normalized)
	if !ok {
		return fmt.Errorf("%w: %s", ErrAssetNotFound, normalized)
	}
	if asset.Issuer != caller {
		return ErrNotIssuer
	}
	balance, err := f.state.BalanceGet(normalized, to)
	if err != nil {
		return err
	}
	balance = new(big.Int).Add(cloneBigInt(balance), amount)
	if err := f.state.BalancePut(normalized, to, balance); err != nil {
		return err
	}
	asset.Supply = new(big.Int).Add(cloneBigInt(asset.Supply), amount)
	if err := f.state.AssetPut(asset); err != nil {
		return err
	}
	f.emit(events.TokenMint{Asset: normalized, To: to, Amount: cloneBigInt(amount)})
	return nil
}

// Transfer moves units between two accounts.
func (f *Fungible) Transfer(symbol string, from, to [20]byte, amount *big.Int) error {
	if f == nil || f.state == nil {
		return errNilState
	}
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if _, ok := f.state.AssetGet(normalized); !ok {
		return fmt.Errorf("%w: %s", ErrAssetNotFound, normalized)
	}
	if err := f.move(normalized, from, to, amount); err != nil {
		return err
	}
	f.emit(events.TokenTransfer{Asset: normalized, From: from, To: to, Amount: cloneBigInt(amount)})
	return nil
}

// Approve records an absolute spending authorization for the spender.
func (f *Fungible) Approve(symbol string, owner, spender [20]byte, amount *big.Int) error {
	if f == nil || f.state == nil {
		return errNilState
	}
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if _, ok := f.state.AssetGet(normalized); !ok {
		return fmt.Errorf("%w: %s", ErrAssetNotFound, normalized)
	}
	return f.state.AllowancePut(normalized, owner, spender, cloneBigInt(amount))
}

// TransferFrom moves units out of the owner's account on the strength of a
// prior Approve, consuming the allowance.
func (f *Fungible) TransferFrom(symbol string, spender, from, to [20]byte, amount *big.Int) error {
	if f == nil || f.state == nil {
		return errNilState
	}
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return ErrInvalidAmount
	}
	if _, ok := f.state.AssetGet(normalized); !ok {
		return fmt.Errorf("%w: %s", ErrAssetNotFound, normalized)
	}
	allowance, err := f.state.AllowanceGet(normalized, from, spender)
	if err != nil {
		return err
	}
	allowance = cloneBigInt(allowance)
	if allowance.Cmp(amount) < 0 {
		return ErrInsufficientAllowance
	}
	if err := f.move(normalized, from, to, amount); err != nil {
		return err
	}
	allowance = allowance.Sub(allowance, amount)
	if err := f.state.AllowancePut(normalized, from, spender, allowance); err != nil {
		return err
	}
	f.emit(events.TokenTransfer{Asset: normalized, From: from, To: to, Amount: cloneBigInt(amount)})
	return nil
}

// BalanceOf reports the current balance for the account.
func (f *Fungible) BalanceOf(symbol string, addr [20]byte) (*big.Int, error) {
	if f == nil || f.state == nil {
		return nil, errNilState
	}
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	balance, err := f.state.BalanceGet(normalized, addr)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(balance), nil
}

// Allowance reports the remaining authorization for the spender.
func (f *Fungible) Allowance(symbol string, owner, spender [20]byte) (*big.Int, error) {
	if f == nil || f.state == nil {
		return nil, errNilState
	}
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	allowance, err := f.state.AllowanceGet(normalized, owner, spender)
	if err != nil {
		return nil, err
	}
	return cloneBigInt(allowance), nil
}

func (f *Fungible) move(symbol string, from, to [20]byte, amount *big.Int) error {
	fromBal, err := f.state.BalanceGet(symbol, from)
	if err != nil {
		return err
	}
	fromBal = cloneBigInt(fromBal)
	if fromBal.Cmp(amount) < 0 {
		return ErrInsufficientBalance
	}
	// Sender and recipient resolve to the same record; debiting and
	// crediting separate copies would inflate it.
	if from == to {
		return nil
	}
	toBal, err := f.state.BalanceGet(symbol, to)
	if err != nil {
		return err
	}
	toBal = cloneBigInt(toBal)
	fromBal.Sub(fromBal, amount)
	toBal.Add(toBal, amount)
	if err := f.state.BalancePut(symbol, from, fromBal); err != nil {
		return err
	}
	return f.state.BalancePut(symbol, to, toBal)
}
