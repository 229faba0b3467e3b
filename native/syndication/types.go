package syndication

import (
	"math/big"
)

// LoanStatus represents the lifecycle states of a syndicated loan.
type LoanStatus uint8

const (
	// StatusSyndicating is the entry state: the commitment book is open.
	StatusSyndicating LoanStatus = iota + 1
	// StatusFunded means syndication closed; contributions are still accepted.
	StatusFunded
	// StatusActive begins with the first drawdown.
	StatusActive
	// StatusRepaid is the transient state recorded when repayments cover the
	// drawn principal; CloseLoan moves through it to StatusClosed.
	StatusRepaid
	// StatusDefaulted is entered by administrative action after maturity.
	StatusDefaulted
	// StatusClosed is terminal: collateral returned or seized, no mutation.
	StatusClosed
	// StatusCancelled is terminal: syndication aborted, contributions refunded.
	StatusCancelled
)

// Valid reports whether the status value is within the supported range.
func (s LoanStatus) Valid() bool {
	return s >= StatusSyndicating && s <= StatusCancelled
}

// Terminal reports whether the loan permits no further mutation.
func (s LoanStatus) Terminal() bool {
	return s == StatusClosed || s == StatusCancelled
}

func (s LoanStatus) String() string {
	switch s {
	case StatusSyndicating:
		return "syndicating"
	case StatusFunded:
		return "funded"
	case StatusActive:
		return "active"
	case StatusRepaid:
		return "repaid"
	case StatusDefaulted:
		return "defaulted"
	case StatusClosed:
		return "closed"
	case StatusCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Participant tracks one lender's position in a loan. Records are append-only;
// a repeated join by the same lender merges into the existing record instead
// of creating a duplicate that would double-count in share math.
type Participant struct {
	Lender      [20]byte `json:"lender"`
	Commitment  *big.Int `json:"commitment"`
	Contributed *big.Int `json:"contributed"`
	Funded      bool     `json:"funded"`
}

// Clone returns a deep copy of the participant record.
func (p *Participant) Clone() *Participant {
	if p == nil {
		return nil
	}
	clone := *p
	clone.Commitment = cloneBigInt(p.Commitment)
	clone.Contributed = cloneBigInt(p.Contributed)
	return &clone
}

// CollateralKind distinguishes the two custody models.
type CollateralKind uint8

const (
	CollateralFungible CollateralKind = iota + 1
	CollateralUnique
)

// CollateralPosition is one locked position in the loan's vault. Fungible
// positions carry Amount; unique positions carry TokenID.
type CollateralPosition struct {
	Kind    CollateralKind `json:"kind"`
	Asset   string         `json:"asset"`
	Amount  *big.Int       `json:"amount,omitempty"`
	TokenID uint64         `json:"tokenId,omitempty"`
}

// Clone returns a deep copy of the position.
func (c *CollateralPosition) Clone() *CollateralPosition {
	if c == nil {
		return nil
	}
	clone := *c
	if c.Amount != nil {
		clone.Amount = new(big.Int).Set(c.Amount)
	}
	return &clone
}

// Loan is the full ledger record for one syndication request. Aggregates are
// maintained redundantly with the participant list; the invariants
// TotalCommitted == Σ commitment and TotalContributed == Σ contributed hold at
// every observable point.
type Loan struct {
	ID        uint64     `json:"id"`
	Borrower  [20]byte   `json:"borrower"`
	Token     string     `json:"token"`
	Principal *big.Int   `json:"principal"`
	Drawn     *big.Int   `json:"drawn"`
	RateBps   uint64     `json:"rateBps"`
	Maturity  int64      `json:"maturity"`
	Status    LoanStatus `json:"status"`

	// MinCommitment is the syndication threshold that must be committed
	// before the book may close.
	MinCommitment *big.Int `json:"minCommitment"`

	TotalCommitted   *big.Int `json:"totalCommitted"`
	TotalContributed *big.Int `json:"totalContributed"`
	TotalRepaid      *big.Int `json:"totalRepaid"`

	// Distributable tracks repaid-but-undistributed funds held in the vault.
	// Distribute pays out of this counter, never out of the raw custody
	// balance, so commingled collateral cannot leak into repayment payouts.
	Distributable *big.Int `json:"distributable"`

	CreatedAt int64 `json:"createdAt"`
	FundedAt  int64 `json:"fundedAt,omitempty"`

	Participants []Participant        `json:"participants,omitempty"`
	Collateral   []CollateralPosition `json:"collateral,omitempty"`
}

// Clone returns a deep copy so callers can mutate safely.
func (l *Loan) Clone() *Loan {
	if l == nil {
		return nil
	}
	clone := *l
	clone.Principal = cloneBigInt(l.Principal)
	clone.Drawn = cloneBigInt(l.Drawn)
	clone.MinCommitment = cloneBigInt(l.MinCommitment)
	clone.TotalCommitted = cloneBigInt(l.TotalCommitted)
	clone.TotalContributed = cloneBigInt(l.TotalContributed)
	clone.TotalRepaid = cloneBigInt(l.TotalRepaid)
	clone.Distributable = cloneBigInt(l.Distributable)
	if l.Participants != nil {
		clone.Participants = make([]Participant, len(l.Participants))
		for i := range l.Participants {
			clone.Participants[i] = *l.Participants[i].Clone()
		}
	}
	if l.Collateral != nil {
		clone.Collateral = make([]CollateralPosition, len(l.Collateral))
		for i := range l.Collateral {
			clone.Collateral[i] = *l.Collateral[i].Clone()
		}
	}
	return &clone
}

// participant returns a pointer into the live participant slice, or nil.
func (l *Loan) participant(lender [20]byte) *Participant {
	for i := range l.Participants {
		if l.Participants[i].Lender == lender {
			return &l.Participants[i]
		}
	}
	return nil
}

func cloneBigInt(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

// Normalize backfills nil big.Int fields after decoding from storage.
func (l *Loan) Normalize() {
	l.Principal = cloneBigInt(l.Principal)
	l.Drawn = cloneBigInt(l.Drawn)
	l.MinCommitment = cloneBigInt(l.MinCommitment)
	l.TotalCommitted = cloneBigInt(l.TotalCommitted)
	l.TotalContributed = cloneBigInt(l.TotalContributed)
	l.TotalRepaid = cloneBigInt(l.TotalRepaid)
	l.Distributable = cloneBigInt(l.Distributable)
	for i := range l.Participants {
		l.Participants[i].Commitment = cloneBigInt(l.Participants[i].Commitment)
		l.Participants[i].Contributed = cloneBigInt(l.Participants[i].Contributed)
	}
	for i := range l.Collateral {
		if l.Collateral[i].Kind == CollateralFungible {
			l.Collateral[i].Amount = cloneBigInt(l.Collateral[i].Amount)
		}
	}
}
