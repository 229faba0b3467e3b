package syndication

import (
	"errors"
	"fmt"
	"math/big"
	"time"

	"loanchain/core/events"
	nativecommon "loanchain/native/common"
)

var errNilState = errors.New("syndication engine: state not configured")

const moduleName = "syndication"

const (
	defaultMaxParticipants = 256
	defaultMaxCollateral   = 64
)

type engineState interface {
	LoanGet(id uint64) (*Loan, bool)
	LoanPut(loan *Loan) error
	NextLoanID() (uint64, error)
}

// fungibleCustody is the slice of the token ledger the engine needs to move
// fungible value in and out of the vault.
type fungibleCustody interface {
	Transfer(symbol string, from, to [20]byte, amount *big.Int) error
	TransferFrom(symbol string, spender, from, to [20]byte, amount *big.Int) error
}

// uniqueCustody is the slice of the unique-token ledger used for collateral.
type uniqueCustody interface {
	Transfer(symbol string, id uint64, from, to [20]byte) error
}

// Engine owns the loan lifecycle: it validates transitions, maintains the
// participant ledger and collateral vault, moves assets through the custody
// adapters and emits one typed event per state change. All mutating
// operations validate fully before touching state; the host transaction model
// provides read-validate-write atomicity (the engine takes no locks of its
// own).
type Engine struct {
	state        engineState
	tokens       fungibleCustody
	collectibles uniqueCustody
	vault        [20]byte
	admin        [20]byte
	emitter      events.Emitter
	pauses       nativecommon.PauseView
	nowFn        func() int64

	maxParticipants int
	maxCollateral   int
}

// NewEngine constructs a syndication engine bound to the given custody
// adapters and module vault address.
func NewEngine(vault [20]byte, tokens fungibleCustody, collectibles uniqueCustody) *Engine {
	return &Engine{
		vault:           vault,
		tokens:          tokens,
		collectibles:    collectibles,
		emitter:         events.NoopEmitter{},
		nowFn:           func() int64 { return time.Now().Unix() },
		maxParticipants: defaultMaxParticipants,
		maxCollateral:   defaultMaxCollateral,
	}
}

// SetState wires the engine to the external persistence layer.
func (e *Engine) SetState(state engineState) { e.state = state }

// SetAdmin configures the administrative role address.
func (e *Engine) SetAdmin(admin [20]byte) { e.admin = admin }

// SetPauses wires the operator pause switches.
func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetEmitter configures the event emitter. Passing nil resets to a no-op.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetNowFunc overrides the time source. Primarily for deterministic tests.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.nowFn = func() int64 { return time.Now().Unix() }
		return
	}
	e.nowFn = now
}

// SetCaps bounds the participant and collateral lists so distribution and
// seizure iterate over a bounded arena. Non-positive values keep defaults.
func (e *Engine) SetCaps(maxParticipants, maxCollateral int) {
	if e == nil {
		return
	}
	if maxParticipants > 0 {
		e.maxParticipants = maxParticipants
	}
	if maxCollateral > 0 {
		e.maxCollateral = maxCollateral
	}
}

// VaultAddress returns the module custody address holding loan funds.
func (e *Engine) VaultAddress() [20]byte { return e.vault }

func (e *Engine) emit(evt events.Event) {
	if e == nil || e.emitter == nil {
		return
	}
	e.emitter.Emit(evt)
}

func (e *Engine) now() int64 {
	if e == nil || e.nowFn == nil {
		return time.Now().Unix()
	}
	return e.nowFn()
}

func (e *Engine) loadLoan(id uint64) (*Loan, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	loan, ok := e.state.LoanGet(id)
	if !ok {
		return nil, fmt.Errorf("%w: loan %d", ErrNotFound, id)
	}
	loan.Normalize()
	return loan, nil
}

func (e *Engine) storeLoan(loan *Loan) error {
	if e == nil || e.state == nil {
		return errNilState
	}
	return e.state.LoanPut(loan)
}

func custodyErr(err error) error {
	return fmt.Errorf("%w: %v", ErrCustodyFailure, err)
}

// Propose opens a new syndication and returns the created loan record.
func (e *Engine) Propose(borrower [20]byte, token string, principal *big.Int, rateBps uint64, maturity int64, minCommitment *big.Int) (*Loan, error) {
	if e == nil || e.state == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	if principal == nil || principal.Sign() <= 0 {
		return nil, fmt.Errorf("%w: principal must be positive", ErrInvalidArgument)
	}
	if minCommitment != nil && minCommitment.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative syndication threshold", ErrInvalidArgument)
	}
	now := e.now()
	if maturity <= now {
		return nil, fmt.Errorf("%w: maturity must be in the future", ErrInvalidArgument)
	}
	symbol, err := normalizeSymbol(token)
	if err != nil {
		return nil, err
	}
	id, err := e.state.NextLoanID()
	if err != nil {
		return nil, err
	}
	loan := &Loan{
		ID:               id,
		Borrower:         borrower,
		Token:            symbol,
		Principal:        cloneBigInt(principal),
		Drawn:            big.NewInt(0),
		RateBps:          rateBps,
		Maturity:         maturity,
		Status:           StatusSyndicating,
		MinCommitment:    cloneBigInt(minCommitment),
		TotalCommitted:   big.NewInt(0),
		TotalContributed: big.NewInt(0),
		TotalRepaid:      big.NewInt(0),
		Distributable:    big.NewInt(0),
		CreatedAt:        now,
	}
	if err := e.storeLoan(loan); err != nil {
		return nil, err
	}
	e.emit(events.LoanProposed{
		LoanID:        loan.ID,
		Borrower:      loan.Borrower,
		Token:         loan.Token,
		Principal:     cloneBigInt(loan.Principal),
		RateBps:       loan.RateBps,
		Maturity:      loan.Maturity,
		MinCommitment: cloneBigInt(loan.MinCommitment),
		Timestamp:     now,
	})
	return loan.Clone(), nil
}

// Join records a lender's commitment while the book is open. A repeated join
// by the same lender merges into the existing record.
func (e *Engine) Join(loanID uint64, lender [20]byte, commitment *big.Int) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if commitment == nil || commitment.Sign() <= 0 {
		return fmt.Errorf("%w: commitment must be positive", ErrInvalidArgument)
	}
	loan, err := e.loadLoan(loanID)
	if err != nil {
		return err
	}
	if loan.Status != StatusSyndicating {
		return fmt.Errorf("%w: join requires %s, loan is %s", ErrInvalidState, StatusSyndicating, loan.Status)
	}
	if existing := loan.participant(lender); existing != nil {
		existing.Commitment = new(big.Int).Add(existing.Commitment, commitment)
		existing.Funded = existing.Contributed.Cmp(existing.Commitment) == 0
	} else {
		if len(loan.Participants) >= e.maxParticipants {
			return fmt.Errorf("%w: participant cap %d reached", ErrInvalidArgument, e.maxParticipants)
		}
		loan.Participants = append(loan.Participants, Participant{
			Lender:      lender,
			Commitment:  cloneBigInt(commitment),
			Contributed: big.NewInt(0),
		})
	}
	loan.TotalCommitted = new(big.Int).Add(loan.TotalCommitted, commitment)
	if err := e.storeLoan(loan); err != nil {
		return err
	}
	e.emit(events.LoanJoined{
		LoanID:         loan.ID,
		Lender:         lender,
		Commitment:     cloneBigInt(commitment),
		TotalCommitted: cloneBigInt(loan.TotalCommitted),
		Timestamp:      e.now(),
	})
	return nil
}

// CloseSyndication closes the commitment book once the threshold is met.
// Borrower or admin only.
func (e *Engine) CloseSyndication(loanID uint64, caller [20]byte) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	loan, err := e.loadLoan(loanID)
	if err != nil {
		return err
	}
	if caller != loan.Borrower && caller != e.admin {
		return fmt.Errorf("%w: closeSyndication requires borrower or admin", ErrUnauthorized)
	}
	if loan.Status != StatusSyndicating {
		return fmt.Errorf("%w: closeSyndication requires %s, loan is %s", ErrInvalidState, StatusSyndicating, loan.Status)
	}
	if loan.TotalCommitted.Cmp(loan.MinCommitment) < 0 {
		return fmt.Errorf("%w: committed %s below threshold %s", ErrBelowThreshold, loan.TotalCommitted, loan.MinCommitment)
	}
	loan.Status = StatusFunded
	if err := e.storeLoan(loan); err != nil {
		return err
	}
	e.emit(events.LoanSyndicationClosed{
		LoanID:         loan.ID,
		Actor:          caller,
		TotalCommitted: cloneBigInt(loan.TotalCommitted),
		Timestamp:      e.now(),
	})
	return nil
}

// Contribute transfers part of a lender's commitment into vault custody. The
// lender must have joined and pre-authorized the vault for the amount.
func (e *Engine) Contribute(loanID uint64, lender [20]byte, token string, amount *big.Int) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidArgument)
	}
	loan, err := e.loadLoan(loanID)
	if err != nil {
		return err
	}
	if loan.Status != StatusSyndicating && loan.Status != StatusFunded {
		return fmt.Errorf("%w: contribute requires open or funded loan, loan is %s", ErrInvalidState, loan.Status)
	}
	if err := e.requireLoanToken(loan, token); err != nil {
		return err
	}
	participant := loan.participant(lender)
	if participant == nil {
		return fmt.Errorf("%w: lender has not joined loan %d", ErrNotFound, loanID)
	}
	projected := new(big.Int).Add(participant.Contributed, amount)
	if projected.Cmp(participant.Commitment) > 0 {
		return fmt.Errorf("%w: %s over commitment %s", ErrExceedsCommitment, projected, participant.Commitment)
	}
	if err := e.tokens.TransferFrom(loan.Token, e.vault, lender, e.vault, amount); err != nil {
		return custodyErr(err)
	}
	participant.Contributed = projected
	participant.Funded = participant.Contributed.Cmp(participant.Commitment) == 0
	loan.TotalContributed = new(big.Int).Add(loan.TotalContributed, amount)
	if loan.FundedAt == 0 && loan.TotalContributed.Cmp(loan.Principal) >= 0 {
		loan.FundedAt = e.now()
	}
	if err := e.storeLoan(loan); err != nil {
		return err
	}
	e.emit(events.LoanContributed{
		LoanID:           loan.ID,
		Lender:           lender,
		Amount:           cloneBigInt(amount),
		TotalContributed: cloneBigInt(loan.TotalContributed),
		Timestamp:        e.now(),
	})
	return nil
}

// LockCollateralFungible moves a fungible position from the borrower into the
// vault. Borrower only; legal while the loan is syndicating or funded.
func (e *Engine) LockCollateralFungible(loanID uint64, caller [20]byte, token string, amount *big.Int) error {
	loan, err := e.beginLockCollateral(loanID, caller)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidArgument)
	}
	symbol, err := normalizeSymbol(token)
	if err != nil {
		return err
	}
	if err := e.tokens.TransferFrom(symbol, e.vault, caller, e.vault, amount); err != nil {
		return custodyErr(err)
	}
	loan.Collateral = append(loan.Collateral, CollateralPosition{
		Kind:   CollateralFungible,
		Asset:  symbol,
		Amount: cloneBigInt(amount),
	})
	if err := e.storeLoan(loan); err != nil {
		return err
	}
	e.emit(events.LoanCollateralLocked{
		LoanID:    loan.ID,
		Borrower:  caller,
		Asset:     symbol,
		Amount:    cloneBigInt(amount),
		Timestamp: e.now(),
	})
	return nil
}

// LockCollateralUnique moves a unique token from the borrower into the vault.
func (e *Engine) LockCollateralUnique(loanID uint64, caller [20]byte, token string, tokenID uint64) error {
	loan, err := e.beginLockCollateral(loanID, caller)
	if err != nil {
		return err
	}
	symbol, err := normalizeSymbol(token)
	if err != nil {
		return err
	}
	if err := e.collectibles.Transfer(symbol, tokenID, caller, e.vault); err != nil {
		return custodyErr(err)
	}
	loan.Collateral = append(loan.Collateral, CollateralPosition{
		Kind:    CollateralUnique,
		Asset:   symbol,
		TokenID: tokenID,
	})
	if err := e.storeLoan(loan); err != nil {
		return err
	}
	e.emit(events.LoanCollateralLocked{
		LoanID:    loan.ID,
		Borrower:  caller,
		Asset:     symbol,
		Unique:    true,
		TokenID:   tokenID,
		Timestamp: e.now(),
	})
	return nil
}

func (e *Engine) beginLockCollateral(loanID uint64, caller [20]byte) (*Loan, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	loan, err := e.loadLoan(loanID)
	if err != nil {
		return nil, err
	}
	if caller != loan.Borrower {
		return nil, fmt.Errorf("%w: only the borrower may lock collateral", ErrUnauthorized)
	}
	if loan.Status != StatusSyndicating && loan.Status != StatusFunded {
		return nil, fmt.Errorf("%w: lockCollateral requires open or funded loan, loan is %s", ErrInvalidState, loan.Status)
	}
	if len(loan.Collateral) >= e.maxCollateral {
		return nil, fmt.Errorf("%w: collateral cap %d reached", ErrInvalidArgument, e.maxCollateral)
	}
	return loan, nil
}

// Drawdown releases funded principal to the borrower. The first successful
// drawdown flips the loan to Active.
func (e *Engine) Drawdown(loanID uint64, caller [20]byte, token string, amount *big.Int) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidArgument)
	}
	loan, err := e.loadLoan(loanID)
	if err != nil {
		return err
	}
	if caller != loan.Borrower {
		return fmt.Errorf("%w: only the borrower may draw down", ErrUnauthorized)
	}
	if loan.Status != StatusSyndicating && loan.Status != StatusFunded && loan.Status != StatusActive {
		return fmt.Errorf("%w: drawdown not permitted, loan is %s", ErrInvalidState, loan.Status)
	}
	if err := e.requireLoanToken(loan, token); err != nil {
		return err
	}
	if loan.TotalContributed.Cmp(loan.Principal) < 0 {
		return fmt.Errorf("%w: contributed %s below principal %s", ErrBelowThreshold, loan.TotalContributed, loan.Principal)
	}
	now := e.now()
	if now > loan.Maturity {
		return fmt.Errorf("%w: maturity %d elapsed at %d", ErrMaturityPassed, loan.Maturity, now)
	}
	projected := new(big.Int).Add(loan.Drawn, amount)
	if projected.Cmp(loan.Principal) > 0 {
		return fmt.Errorf("%w: drawn %s over principal %s", ErrExceedsPrincipal, projected, loan.Principal)
	}
	if err := e.tokens.Transfer(loan.Token, e.vault, caller, amount); err != nil {
		return custodyErr(err)
	}
	loan.Drawn = projected
	if loan.Status != StatusActive {
		loan.Status = StatusActive
	}
	if err := e.storeLoan(loan); err != nil {
		return err
	}
	e.emit(events.LoanDrawdown{
		LoanID:    loan.ID,
		Borrower:  caller,
		Amount:    cloneBigInt(amount),
		Drawn:     cloneBigInt(loan.Drawn),
		Timestamp: now,
	})
	return nil
}

// Repay transfers funds from the borrower into the distribution pool. The
// amount credits the loan's distributable counter; collateral commingled in
// the same custody account is never touched by Distribute.
func (e *Engine) Repay(loanID uint64, caller [20]byte, token string, amount *big.Int) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidArgument)
	}
	loan, err := e.loadLoan(loanID)
	if err != nil {
		return err
	}
	if caller != loan.Borrower {
		return fmt.Errorf("%w: only the borrower may repay", ErrUnauthorized)
	}
	if loan.Status != StatusActive {
		return fmt.Errorf("%w: repay requires %s, loan is %s", ErrInvalidState, StatusActive, loan.Status)
	}
	if err := e.requireLoanToken(loan, token); err != nil {
		return err
	}
	if err := e.tokens.TransferFrom(loan.Token, e.vault, caller, e.vault, amount); err != nil {
		return custodyErr(err)
	}
	loan.TotalRepaid = new(big.Int).Add(loan.TotalRepaid, amount)
	loan.Distributable = new(big.Int).Add(loan.Distributable, amount)
	if err := e.storeLoan(loan); err != nil {
		return err
	}
	e.emit(events.LoanRepaid{
		LoanID:      loan.ID,
		Borrower:    caller,
		Amount:      cloneBigInt(amount),
		TotalRepaid: cloneBigInt(loan.TotalRepaid),
		Timestamp:   e.now(),
	})
	return nil
}

// Distribute pays the loan's distributable balance to participants pro rata
// by contributed share. Callable by anyone. Shares truncate toward zero
// (multiply before divide); sub-share dust stays in the distributable counter
// rather than being reconciled.
func (e *Engine) Distribute(loanID uint64, caller [20]byte, token string) (*big.Int, error) {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return nil, err
	}
	loan, err := e.loadLoan(loanID)
	if err != nil {
		return nil, err
	}
	if loan.Status != StatusActive && loan.Status != StatusFunded {
		return nil, fmt.Errorf("%w: distribute requires active or funded loan, loan is %s", ErrInvalidState, loan.Status)
	}
	if err := e.requireLoanToken(loan, token); err != nil {
		return nil, err
	}
	if loan.Distributable.Sign() <= 0 {
		return nil, fmt.Errorf("%w: nothing to distribute", ErrInvalidState)
	}
	if loan.TotalContributed.Sign() == 0 {
		return nil, fmt.Errorf("%w: no contributions recorded", ErrInvalidState)
	}

	pool := cloneBigInt(loan.Distributable)
	shares := make([]*big.Int, len(loan.Participants))
	paid := big.NewInt(0)
	recipients := uint64(0)
	for i := range loan.Participants {
		shares[i] = proRataShare(pool, loan.Participants[i].Contributed, loan.TotalContributed)
		if shares[i].Sign() > 0 {
			paid = paid.Add(paid, shares[i])
			recipients++
		}
	}
	// Σ shares ≤ pool by construction; nothing beyond the distributable
	// counter ever leaves the vault here.
	for i := range loan.Participants {
		if shares[i].Sign() == 0 {
			continue
		}
		if err := e.tokens.Transfer(loan.Token, e.vault, loan.Participants[i].Lender, shares[i]); err != nil {
			return nil, custodyErr(err)
		}
	}
	loan.Distributable = new(big.Int).Sub(loan.Distributable, paid)
	if err := e.storeLoan(loan); err != nil {
		return nil, err
	}
	e.emit(events.LoanDistributed{
		LoanID:     loan.ID,
		Caller:     caller,
		Paid:       cloneBigInt(paid),
		Recipients: recipients,
		Timestamp:  e.now(),
	})
	return paid, nil
}

// CloseLoan settles a fully repaid loan: contributed-but-undrawn principal is
// refunded to the lenders, locked collateral is returned to the borrower and
// the loan reaches its terminal Closed state. Callable by anyone once
// totalRepaid covers drawn principal.
func (e *Engine) CloseLoan(loanID uint64, caller [20]byte) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	loan, err := e.loadLoan(loanID)
	if err != nil {
		return err
	}
	if loan.Status != StatusActive && loan.Status != StatusFunded {
		return fmt.Errorf("%w: closeLoan requires active or funded loan, loan is %s", ErrInvalidState, loan.Status)
	}
	if loan.TotalRepaid.Cmp(loan.Drawn) < 0 {
		return fmt.Errorf("%w: repaid %s below drawn %s", ErrInvalidState, loan.TotalRepaid, loan.Drawn)
	}
	loan.Status = StatusRepaid
	refunded, err := e.refundUndrawn(loan)
	if err != nil {
		return err
	}
	if err := e.returnCollateral(loan); err != nil {
		return err
	}
	loan.Status = StatusClosed
	if err := e.storeLoan(loan); err != nil {
		return err
	}
	e.emit(events.LoanClosed{LoanID: loan.ID, Actor: caller, Refunded: refunded, Timestamp: e.now()})
	return nil
}

// MarkDefault flags a matured, still-indebted loan as defaulted. Admin only.
func (e *Engine) MarkDefault(loanID uint64, caller [20]byte) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	loan, err := e.loadLoan(loanID)
	if err != nil {
		return err
	}
	if caller != e.admin {
		return fmt.Errorf("%w: markDefault requires admin", ErrUnauthorized)
	}
	if loan.Status != StatusActive {
		return fmt.Errorf("%w: markDefault requires %s, loan is %s", ErrInvalidState, StatusActive, loan.Status)
	}
	now := e.now()
	if now <= loan.Maturity {
		return fmt.Errorf("%w: maturity %d not reached at %d", ErrNotMatured, loan.Maturity, now)
	}
	loan.Status = StatusDefaulted
	if err := e.storeLoan(loan); err != nil {
		return err
	}
	e.emit(events.LoanDefaulted{
		LoanID:    loan.ID,
		Admin:     caller,
		Exposure:  Exposure(loan),
		Timestamp: now,
	})
	return nil
}

// SeizeCollateralAndDistribute liquidates a defaulted loan's vault: undrawn
// contributions are refunded first, then fungible positions split pro rata
// by contributed share and unique positions are assigned
// round-robin by participant index. Round-robin is a documented simplifying
// policy; it ignores relative token value. Admin only; the loan closes after
// seizure.
func (e *Engine) SeizeCollateralAndDistribute(loanID uint64, caller [20]byte) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	loan, err := e.loadLoan(loanID)
	if err != nil {
		return err
	}
	if caller != e.admin {
		return fmt.Errorf("%w: seizure requires admin", ErrUnauthorized)
	}
	if loan.Status != StatusDefaulted {
		return fmt.Errorf("%w: seizure requires %s, loan is %s", ErrInvalidState, StatusDefaulted, loan.Status)
	}

	refunded, err := e.refundUndrawn(loan)
	if err != nil {
		return err
	}
	fungiblePaid := big.NewInt(0)
	uniqueAssigned := uint64(0)
	if loan.TotalContributed.Sign() == 0 || len(loan.Participants) == 0 {
		// Nobody funded the loan, so there is nobody to compensate; the
		// vault contents go back to the borrower.
		if err := e.returnCollateral(loan); err != nil {
			return err
		}
	} else {
		for i := range loan.Collateral {
			pos := &loan.Collateral[i]
			switch pos.Kind {
			case CollateralFungible:
				for j := range loan.Participants {
					share := proRataShare(pos.Amount, loan.Participants[j].Contributed, loan.TotalContributed)
					if share.Sign() == 0 {
						continue
					}
					if err := e.tokens.Transfer(pos.Asset, e.vault, loan.Participants[j].Lender, share); err != nil {
						return custodyErr(err)
					}
					fungiblePaid = fungiblePaid.Add(fungiblePaid, share)
				}
			case CollateralUnique:
				recipient := loan.Participants[uniqueAssigned%uint64(len(loan.Participants))].Lender
				if err := e.collectibles.Transfer(pos.Asset, pos.TokenID, e.vault, recipient); err != nil {
					return custodyErr(err)
				}
				uniqueAssigned++
			}
		}
		loan.Collateral = nil
	}
	loan.Status = StatusClosed
	if err := e.storeLoan(loan); err != nil {
		return err
	}
	e.emit(events.LoanCollateralSeized{
		LoanID:         loan.ID,
		Admin:          caller,
		Refunded:       refunded,
		FungiblePaid:   fungiblePaid,
		UniqueAssigned: uniqueAssigned,
		Timestamp:      e.now(),
	})
	return nil
}

// CancelSyndication aborts a loan before activation, refunding every
// contribution and returning locked collateral to the borrower. Admin only.
func (e *Engine) CancelSyndication(loanID uint64, caller [20]byte) error {
	if err := nativecommon.Guard(e.pauses, moduleName); err != nil {
		return err
	}
	loan, err := e.loadLoan(loanID)
	if err != nil {
		return err
	}
	if caller != e.admin {
		return fmt.Errorf("%w: cancelSyndication requires admin", ErrUnauthorized)
	}
	if loan.Status != StatusSyndicating && loan.Status != StatusFunded {
		return fmt.Errorf("%w: cancelSyndication requires open or funded loan, loan is %s", ErrInvalidState, loan.Status)
	}
	refunded := big.NewInt(0)
	for i := range loan.Participants {
		contributed := loan.Participants[i].Contributed
		if contributed.Sign() == 0 {
			continue
		}
		if err := e.tokens.Transfer(loan.Token, e.vault, loan.Participants[i].Lender, contributed); err != nil {
			return custodyErr(err)
		}
		refunded = refunded.Add(refunded, contributed)
		loan.Participants[i].Contributed = big.NewInt(0)
		loan.Participants[i].Funded = false
	}
	loan.TotalContributed = big.NewInt(0)
	if err := e.returnCollateral(loan); err != nil {
		return err
	}
	loan.Status = StatusCancelled
	if err := e.storeLoan(loan); err != nil {
		return err
	}
	e.emit(events.LoanCancelled{
		LoanID:    loan.ID,
		Admin:     caller,
		Refunded:  refunded,
		Timestamp: e.now(),
	})
	return nil
}

// refundUndrawn pays contributed principal the borrower never drew back to
// the lenders pro rata by contributed share. The last contributor absorbs the
// truncation remainder so exactly the undrawn balance leaves the vault; the
// distributable counter is never touched.
func (e *Engine) refundUndrawn(loan *Loan) (*big.Int, error) {
	undrawn := new(big.Int).Sub(loan.TotalContributed, loan.Drawn)
	if undrawn.Sign() <= 0 || loan.TotalContributed.Sign() == 0 {
		return big.NewInt(0), nil
	}
	last := -1
	for i := range loan.Participants {
		if loan.Participants[i].Contributed.Sign() > 0 {
			last = i
		}
	}
	if last < 0 {
		return big.NewInt(0), nil
	}
	remaining := cloneBigInt(undrawn)
	for i := range loan.Participants {
		participant := &loan.Participants[i]
		if participant.Contributed.Sign() == 0 {
			continue
		}
		share := proRataShare(undrawn, participant.Contributed, loan.TotalContributed)
		if i == last {
			share = cloneBigInt(remaining)
		}
		if share.Sign() == 0 {
			continue
		}
		if err := e.tokens.Transfer(loan.Token, e.vault, participant.Lender, share); err != nil {
			return nil, custodyErr(err)
		}
		remaining = remaining.Sub(remaining, share)
	}
	return undrawn, nil
}

// returnCollateral sends every locked position back to the borrower and
// empties the vault list. An already-empty list is a valid no-op.
func (e *Engine) returnCollateral(loan *Loan) error {
	for i := range loan.Collateral {
		pos := &loan.Collateral[i]
		switch pos.Kind {
		case CollateralFungible:
			if err := e.tokens.Transfer(pos.Asset, e.vault, loan.Borrower, pos.Amount); err != nil {
				return custodyErr(err)
			}
		case CollateralUnique:
			if err := e.collectibles.Transfer(pos.Asset, pos.TokenID, e.vault, loan.Borrower); err != nil {
				return custodyErr(err)
			}
		}
	}
	loan.Collateral = nil
	return nil
}

func (e *Engine) requireLoanToken(loan *Loan, token string) error {
	symbol, err := normalizeSymbol(token)
	if err != nil {
		return err
	}
	if symbol != loan.Token {
		return fmt.Errorf("%w: loan %d is denominated in %s, not %s", ErrInvalidArgument, loan.ID, loan.Token, symbol)
	}
	return nil
}

// --- Read views ---

// Loan returns a deep copy of the loan record.
func (e *Engine) Loan(loanID uint64) (*Loan, error) {
	loan, err := e.loadLoan(loanID)
	if err != nil {
		return nil, err
	}
	return loan.Clone(), nil
}

// Participants returns a deep copy of the loan's participant list.
func (e *Engine) Participants(loanID uint64) ([]Participant, error) {
	loan, err := e.loadLoan(loanID)
	if err != nil {
		return nil, err
	}
	return loan.Clone().Participants, nil
}

// Collateral returns a deep copy of the loan's locked positions.
func (e *Engine) Collateral(loanID uint64) ([]CollateralPosition, error) {
	loan, err := e.loadLoan(loanID)
	if err != nil {
		return nil, err
	}
	return loan.Clone().Collateral, nil
}

// ShareOf returns the lender's exact contributed share as a rational number.
func (e *Engine) ShareOf(loanID uint64, lender [20]byte) (*big.Rat, error) {
	loan, err := e.loadLoan(loanID)
	if err != nil {
		return nil, err
	}
	participant := loan.participant(lender)
	if participant == nil {
		return nil, fmt.Errorf("%w: lender has not joined loan %d", ErrNotFound, loanID)
	}
	if loan.TotalContributed.Sign() == 0 {
		return new(big.Rat), nil
	}
	return new(big.Rat).SetFrac(participant.Contributed, loan.TotalContributed), nil
}
