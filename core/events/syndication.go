package events

import (
	"math/big"

	"loanchain/core/types"
	"loanchain/crypto"
)

const (
	TypeLoanProposed          = "loan.proposed"
	TypeLoanJoined            = "loan.joined"
	TypeLoanSyndicationClosed = "loan.syndication_closed"
	TypeLoanContributed       = "loan.contributed"
	TypeLoanCollateralLocked  = "loan.collateral_locked"
	TypeLoanDrawdown          = "loan.drawdown"
	TypeLoanRepaid            = "loan.repaid"
	TypeLoanDistributed       = "loan.distributed"
	TypeLoanClosed            = "loan.closed"
	TypeLoanDefaulted         = "loan.defaulted"
	TypeLoanCollateralSeized  = "loan.collateral_seized"
	TypeLoanCancelled         = "loan.cancelled"
)

func accountString(addr [20]byte) string {
	return crypto.MustNewAddress(crypto.LoanPrefix, addr[:]).String()
}

// LoanProposed is emitted when a borrower opens a new syndication.
type LoanProposed struct {
	LoanID        uint64
	Borrower      [20]byte
	Token         string
	Principal     *big.Int
	RateBps       uint64
	Maturity      int64
	MinCommitment *big.Int
	Timestamp     int64
}

func (LoanProposed) EventType() string { return TypeLoanProposed }

func (e LoanProposed) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanProposed,
		Attributes: map[string]string{
			"loanId":        formatUint(e.LoanID),
			"borrower":      accountString(e.Borrower),
			"token":         e.Token,
			"principal":     formatAmount(e.Principal),
			"rateBps":       formatUint(e.RateBps),
			"maturity":      formatInt(e.Maturity),
			"minCommitment": formatAmount(e.MinCommitment),
			"timestamp":     formatInt(e.Timestamp),
		},
	}
}

// LoanJoined is emitted when a lender commits to a syndication.
type LoanJoined struct {
	LoanID         uint64
	Lender         [20]byte
	Commitment     *big.Int
	TotalCommitted *big.Int
	Timestamp      int64
}

func (LoanJoined) EventType() string { return TypeLoanJoined }

func (e LoanJoined) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanJoined,
		Attributes: map[string]string{
			"loanId":         formatUint(e.LoanID),
			"lender":         accountString(e.Lender),
			"commitment":     formatAmount(e.Commitment),
			"totalCommitted": formatAmount(e.TotalCommitted),
			"timestamp":      formatInt(e.Timestamp),
		},
	}
}

// LoanSyndicationClosed is emitted when the commitment book closes.
type LoanSyndicationClosed struct {
	LoanID         uint64
	Actor          [20]byte
	TotalCommitted *big.Int
	Timestamp      int64
}

func (LoanSyndicationClosed) EventType() string { return TypeLoanSyndicationClosed }

func (e LoanSyndicationClosed) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanSyndicationClosed,
		Attributes: map[string]string{
			"loanId":         formatUint(e.LoanID),
			"actor":          accountString(e.Actor),
			"totalCommitted": formatAmount(e.TotalCommitted),
			"timestamp":      formatInt(e.Timestamp),
		},
	}
}

// LoanContributed is emitted when a lender transfers part of their commitment
// into custody.
type LoanContributed struct {
	LoanID           uint64
	Lender           [20]byte
	Amount           *big.Int
	TotalContributed *big.Int
	Timestamp        int64
}

func (LoanContributed) EventType() string { return TypeLoanContributed }

func (e LoanContributed) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanContributed,
		Attributes: map[string]string{
			"loanId":           formatUint(e.LoanID),
			"lender":           accountString(e.Lender),
			"amount":           formatAmount(e.Amount),
			"totalContributed": formatAmount(e.TotalContributed),
			"timestamp":        formatInt(e.Timestamp),
		},
	}
}

// LoanCollateralLocked is emitted when the borrower locks a collateral
// position in the vault. Either Amount (fungible) or TokenID (unique) is set.
type LoanCollateralLocked struct {
	LoanID    uint64
	Borrower  [20]byte
	Asset     string
	Unique    bool
	Amount    *big.Int
	TokenID   uint64
	Timestamp int64
}

func (LoanCollateralLocked) EventType() string { return TypeLoanCollateralLocked }

func (e LoanCollateralLocked) Event() *types.Event {
	attrs := map[string]string{
		"loanId":    formatUint(e.LoanID),
		"borrower":  accountString(e.Borrower),
		"asset":     e.Asset,
		"timestamp": formatInt(e.Timestamp),
	}
	if e.Unique {
		attrs["tokenId"] = formatUint(e.TokenID)
	} else {
		attrs["amount"] = formatAmount(e.Amount)
	}
	return &types.Event{Type: TypeLoanCollateralLocked, Attributes: attrs}
}

// LoanDrawdown is emitted when the borrower withdraws funded principal.
type LoanDrawdown struct {
	LoanID    uint64
	Borrower  [20]byte
	Amount    *big.Int
	Drawn     *big.Int
	Timestamp int64
}

func (LoanDrawdown) EventType() string { return TypeLoanDrawdown }

func (e LoanDrawdown) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanDrawdown,
		Attributes: map[string]string{
			"loanId":    formatUint(e.LoanID),
			"borrower":  accountString(e.Borrower),
			"amount":    formatAmount(e.Amount),
			"drawn":     formatAmount(e.Drawn),
			"timestamp": formatInt(e.Timestamp),
		},
	}
}

// LoanRepaid is emitted when the borrower repays into the distribution pool.
type LoanRepaid struct {
	LoanID      uint64
	Borrower    [20]byte
	Amount      *big.Int
	TotalRepaid *big.Int
	Timestamp   int64
}

func (LoanRepaid) EventType() string { return TypeLoanRepaid }

func (e LoanRepaid) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanRepaid,
		Attributes: map[string]string{
			"loanId":      formatUint(e.LoanID),
			"borrower":    accountString(e.Borrower),
			"amount":      formatAmount(e.Amount),
			"totalRepaid": formatAmount(e.TotalRepaid),
			"timestamp":   formatInt(e.Timestamp),
		},
	}
}

// LoanDistributed is emitted after a pro-rata payout of the distributable
// balance to participants.
type LoanDistributed struct {
	LoanID     uint64
	Caller     [20]byte
	Paid       *big.Int
	Recipients uint64
	Timestamp  int64
}

func (LoanDistributed) EventType() string { return TypeLoanDistributed }

func (e LoanDistributed) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanDistributed,
		Attributes: map[string]string{
			"loanId":     formatUint(e.LoanID),
			"caller":     accountString(e.Caller),
			"paid":       formatAmount(e.Paid),
			"recipients": formatUint(e.Recipients),
			"timestamp":  formatInt(e.Timestamp),
		},
	}
}

// LoanClosed is emitted when a fully repaid loan reaches its terminal state.
// Refunded reports contributed principal returned to lenders because the
// borrower never drew it.
type LoanClosed struct {
	LoanID    uint64
	Actor     [20]byte
	Refunded  *big.Int
	Timestamp int64
}

func (LoanClosed) EventType() string { return TypeLoanClosed }

func (e LoanClosed) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanClosed,
		Attributes: map[string]string{
			"loanId":    formatUint(e.LoanID),
			"actor":     accountString(e.Actor),
			"refunded":  formatAmount(e.Refunded),
			"timestamp": formatInt(e.Timestamp),
		},
	}
}

// LoanDefaulted is emitted when an administrator marks a matured loan as
// defaulted.
type LoanDefaulted struct {
	LoanID    uint64
	Admin     [20]byte
	Exposure  *big.Int
	Timestamp int64
}

func (LoanDefaulted) EventType() string { return TypeLoanDefaulted }

func (e LoanDefaulted) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanDefaulted,
		Attributes: map[string]string{
			"loanId":    formatUint(e.LoanID),
			"admin":     accountString(e.Admin),
			"exposure":  formatAmount(e.Exposure),
			"timestamp": formatInt(e.Timestamp),
		},
	}
}

// LoanCollateralSeized is emitted after a default-path seizure distributes the
// vault contents to participants.
type LoanCollateralSeized struct {
	LoanID         uint64
	Admin          [20]byte
	Refunded       *big.Int
	FungiblePaid   *big.Int
	UniqueAssigned uint64
	Timestamp      int64
}

func (LoanCollateralSeized) EventType() string { return TypeLoanCollateralSeized }

func (e LoanCollateralSeized) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanCollateralSeized,
		Attributes: map[string]string{
			"loanId":         formatUint(e.LoanID),
			"admin":          accountString(e.Admin),
			"refunded":       formatAmount(e.Refunded),
			"fungiblePaid":   formatAmount(e.FungiblePaid),
			"uniqueAssigned": formatUint(e.UniqueAssigned),
			"timestamp":      formatInt(e.Timestamp),
		},
	}
}

// LoanCancelled is emitted when an administrator aborts a syndication.
type LoanCancelled struct {
	LoanID    uint64
	Admin     [20]byte
	Refunded  *big.Int
	Timestamp int64
}

func (LoanCancelled) EventType() string { return TypeLoanCancelled }

func (e LoanCancelled) Event() *types.Event {
	return &types.Event{
		Type: TypeLoanCancelled,
		Attributes: map[string]string{
			"loanId":    formatUint(e.LoanID),
			"admin":     accountString(e.Admin),
			"refunded":  formatAmount(e.Refunded),
			"timestamp": formatInt(e.Timestamp),
		},
	}
}
