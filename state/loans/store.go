package loans

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"loanchain/native/syndication"
	"loanchain/native/token"
	"loanchain/storage"
)

// Key layout. Loan records embed their participant and collateral lists, so
// no prefix iteration is ever required; everything is point lookups.
const (
	keyNextLoanID = "syn/nextid"

	prefixLoan       = "syn/loan/"
	prefixAsset      = "tok/asset/"
	prefixBalance    = "tok/bal/"
	prefixAllowance  = "tok/allow/"
	prefixCollection = "tok/coll/"
	prefixOwner      = "tok/owner/"
)

// Store is the explicit ledger state: loans indexed by a monotonic
// identifier plus token balances, allowances and registrations. It is passed
// by reference into every engine; there is no ambient global. Writes are
// serialised with a single mutex, matching the single-writer transaction
// model the engines assume.
type Store struct {
	mu sync.Mutex
	db storage.Database
}

// NewStore wraps a key-value backend in the ledger state schema.
func NewStore(db storage.Database) *Store {
	return &Store{db: db}
}

func loanKey(id uint64) []byte {
	buf := make([]byte, len(prefixLoan)+8)
	copy(buf, prefixLoan)
	binary.BigEndian.PutUint64(buf[len(prefixLoan):], id)
	return buf
}

func addrHex(addr [20]byte) string {
	return hex.EncodeToString(addr[:])
}

// --- syndication engine state ---

// LoanGet returns the stored loan record, if any.
func (s *Store) LoanGet(id uint64) (*syndication.Loan, bool) {
	raw, err := s.db.Get(loanKey(id))
	if err != nil {
		return nil, false
	}
	loan := new(syndication.Loan)
	if err := json.Unmarshal(raw, loan); err != nil {
		return nil, false
	}
	loan.Normalize()
	return loan, true
}

// LoanPut persists the loan record.
func (s *Store) LoanPut(loan *syndication.Loan) error {
	if loan == nil {
		return fmt.Errorf("loans: nil loan")
	}
	raw, err := json.Marshal(loan)
	if err != nil {
		return err
	}
	return s.db.Put(loanKey(loan.ID), raw)
}

// NextLoanID allocates the next monotonic loan identifier, starting at 1.
// Identifiers are never reused; loan records are never deleted.
func (s *Store) NextLoanID() (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := uint64(1)
	raw, err := s.db.Get([]byte(keyNextLoanID))
	switch {
	case err == nil:
		if len(raw) != 8 {
			return 0, fmt.Errorf("loans: corrupt id counter")
		}
		next = binary.BigEndian.Uint64(raw)
	case errors.Is(err, storage.ErrKeyNotFound):
	default:
		return 0, err
	}
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, next+1)
	if err := s.db.Put([]byte(keyNextLoanID), buf); err != nil {
		return 0, err
	}
	return next, nil
}

// LoanCount reports how many loans have been created.
func (s *Store) LoanCount() (uint64, error) {
	raw, err := s.db.Get([]byte(keyNextLoanID))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	if len(raw) != 8 {
		return 0, fmt.Errorf("loans: corrupt id counter")
	}
	return binary.BigEndian.Uint64(raw) - 1, nil
}

// --- fungible token state ---

// AssetGet returns the registered asset for the symbol.
func (s *Store) AssetGet(symbol string) (*token.Asset, bool) {
	raw, err := s.db.Get([]byte(prefixAsset + symbol))
	if err != nil {
		return nil, false
	}
	asset := new(token.Asset)
	if err := json.Unmarshal(raw, asset); err != nil {
		return nil, false
	}
	if asset.Supply == nil {
		asset.Supply = big.NewInt(0)
	}
	return asset, true
}

// AssetPut persists an asset registration.
func (s *Store) AssetPut(asset *token.Asset) error {
	if asset == nil {
		return fmt.Errorf("loans: nil asset")
	}
	raw, err := json.Marshal(asset)
	if err != nil {
		return err
	}
	return s.db.Put([]byte(prefixAsset+asset.Symbol), raw)
}

func balanceKey(symbol string, addr [20]byte) []byte {
	return []byte(prefixBalance + symbol + "/" + addrHex(addr))
}

// BalanceGet returns the balance, zero when absent.
func (s *Store) BalanceGet(symbol string, addr [20]byte) (*big.Int, error) {
	raw, err := s.db.Get(balanceKey(symbol, addr))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

// BalancePut persists the balance.
func (s *Store) BalancePut(symbol string, addr [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("loans: invalid balance")
	}
	return s.db.Put(balanceKey(symbol, addr), amount.Bytes())
}

func allowanceKey(symbol string, owner, spender [20]byte) []byte {
	return []byte(prefixAllowance + symbol + "/" + addrHex(owner) + "/" + addrHex(spender))
}

// AllowanceGet returns the remaining authorization, zero when absent.
func (s *Store) AllowanceGet(symbol string, owner, spender [20]byte) (*big.Int, error) {
	raw, err := s.db.Get(allowanceKey(symbol, owner, spender))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return big.NewInt(0), nil
	}
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(raw), nil
}

// AllowancePut persists the authorization.
func (s *Store) AllowancePut(symbol string, owner, spender [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return fmt.Errorf("loans: invalid allowance")
	}
	return s.db.Put(allowanceKey(symbol, owner, spender), amount.Bytes())
}

// --- unique token state ---

// CollectionGet returns the registered collection for the symbol.
func (s *Store) CollectionGet(symbol string) (*token.Collection, bool) {
	raw, err := s.db.Get([]byte(prefixCollection + symbol))
	if err != nil {
		return nil, false
	}
	collection := new(token.Collection)
	if err := json.Unmarshal(raw, collection); err != nil {
		return nil, false
	}
	return collection, true
}

// CollectionPut persists a collection registration.
func (s *Store) CollectionPut(collection *token.Collection) error {
	if collection == nil {
		return fmt.Errorf("loans: nil collection")
	}
	raw, err := json.Marshal(collection)
	if err != nil {
		return err
	}
	return s.db.Put([]byte(prefixCollection+collection.Symbol), raw)
}

func ownerKey(symbol string, id uint64) []byte {
	prefix := prefixOwner + symbol + "/"
	buf := make([]byte, len(prefix)+8)
	copy(buf, prefix)
	binary.BigEndian.PutUint64(buf[len(prefix):], id)
	return buf
}

// OwnerGet returns the owner-of-record for a unique token.
func (s *Store) OwnerGet(symbol string, id uint64) ([20]byte, bool, error) {
	raw, err := s.db.Get(ownerKey(symbol, id))
	if errors.Is(err, storage.ErrKeyNotFound) {
		return [20]byte{}, false, nil
	}
	if err != nil {
		return [20]byte{}, false, err
	}
	if len(raw) != 20 {
		return [20]byte{}, false, fmt.Errorf("loans: corrupt owner record")
	}
	var owner [20]byte
	copy(owner[:], raw)
	return owner, true, nil
}

// OwnerPut persists the owner-of-record.
func (s *Store) OwnerPut(symbol string, id uint64, owner [20]byte) error {
	return s.db.Put(ownerKey(symbol, id), owner[:])
}
