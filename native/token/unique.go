package token

import (
	"errors"
	"fmt"

	"loanchain/core/events"
)

var (
	// ErrCollectionNotFound indicates the collection symbol is unknown.
	ErrCollectionNotFound = errors.New("token: collection not registered")
	// ErrCollectionExists indicates a registration collision.
	ErrCollectionExists = errors.New("token: collection already registered")
	// ErrTokenNotFound indicates the unique token id has not been minted.
	ErrTokenNotFound = errors.New("token: unique token not found")
	// ErrTokenExists rejects re-minting an existing token id.
	ErrTokenExists = errors.New("token: unique token already minted")
	// ErrNotCustodian aborts a transfer when the sender is not the
	// owner-of-record for the token.
	ErrNotCustodian = errors.New("token: sender is not custodian of token")
)

// Collection describes a registered family of unique tokens.
type Collection struct {
	Symbol string   `json:"symbol"`
	Name   string   `json:"name"`
	Issuer [20]byte `json:"issuer"`
	Minted uint64   `json:"minted"`
}

// UniqueState is the persistence surface for unique token custody.
type UniqueState interface {
	CollectionGet(symbol string) (*Collection, bool)
	CollectionPut(collection *Collection) error
	OwnerGet(symbol string, id uint64) ([20]byte, bool, error)
	OwnerPut(symbol string, id uint64, owner [20]byte) error
}

// Unique tracks owner-of-record for non-fungible tokens. Transfers require
// exact custody: the declared sender must match the recorded owner.
type Unique struct {
	state   UniqueState
	emitter events.Emitter
}

// NewUnique creates a unique-token ledger with a no-op emitter.
func NewUnique() *Unique {
	return &Unique{emitter: events.NoopEmitter{}}
}

// SetState configures the persistence backend.
func (u *Unique) SetState(state UniqueState) { u.state = state }

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (u *Unique) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		u.emitter = events.NoopEmitter{}
		return
	}
	u.emitter = emitter
}

// Register records a new collection with the caller as issuer.
func (u *Unique) Register(issuer [20]byte, symbol, name string) (*Collection, error) {
	if u == nil || u.state == nil {
		return nil, errNilState
	}
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if _, ok := u.state.CollectionGet(normalized); ok {
		return nil, fmt.Errorf("%w: %s", ErrCollectionExists, normalized)
	}
	collection := &Collection{Symbol: normalized, Name: name, Issuer: issuer}
	if err := u.state.CollectionPut(collection); err != nil {
		return nil, err
	}
	clone := *collection
	return &clone, nil
}

// Mint assigns a fresh token id to the recipient. Only the collection issuer
// may mint, and ids are single-use.
func (u *Unique) Mint(caller [20]byte, symbol string, id uint64, to [20]byte) error {
	if u == nil || u.state == nil {
		return errNilState
	}
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return err
	}
	collection, ok := u.state.CollectionGet(normalized)
	if !ok {
		return fmt.Errorf("%w: %s", ErrCollectionNotFound, normalized)
	}
	if collection.Issuer != caller {
		return ErrNotIssuer
	}
	if _, exists, err := u.state.OwnerGet(normalized, id); err != nil {
		return err
	} else if exists {
		return fmt.Errorf("%w: %s/%d", ErrTokenExists, normalized, id)
	}
	if err := u.state.OwnerPut(normalized, id, to); err != nil {
		return err
	}
	collection.Minted++
	return u.state.CollectionPut(collection)
}

// OwnerOf reports the owner-of-record for the token.
func (u *Unique) OwnerOf(symbol string, id uint64) ([20]byte, error) {
	if u == nil || u.state == nil {
		return [20]byte{}, errNilState
	}
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return [20]byte{}, err
	}
	owner, ok, err := u.state.OwnerGet(normalized, id)
	if err != nil {
		return [20]byte{}, err
	}
	if !ok {
		return [20]byte{}, fmt.Errorf("%w: %s/%d", ErrTokenNotFound, normalized, id)
	}
	return owner, nil
}

// Transfer reassigns custody of the token. The declared sender must hold the
// token; anything else is a custody violation, not a silent no-op.
func (u *Unique) Transfer(symbol string, id uint64, from, to [20]byte) error {
	if u == nil || u.state == nil {
		return errNilState
	}
	normalized, err := NormalizeSymbol(symbol)
	if err != nil {
		return err
	}
	owner, ok, err := u.state.OwnerGet(normalized, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s/%d", ErrTokenNotFound, normalized, id)
	}
	if owner != from {
		return fmt.Errorf("%w: %s/%d", ErrNotCustodian, normalized, id)
	}
	if err := u.state.OwnerPut(normalized, id, to); err != nil {
		return err
	}
	if u.emitter != nil {
		u.emitter.Emit(events.UniqueTransfer{Asset: normalized, TokenID: id, From: from, To: to})
	}
	return nil
}
