package events

import (
	"fmt"
	"math/big"
	"testing"
)

type untypedEvent struct{}

func (untypedEvent) EventType() string { return "untyped" }

func TestRecorderRetainsRecentEvents(t *testing.T) {
	recorder := NewRecorder(3)
	var lender [20]byte
	for i := uint64(1); i <= 5; i++ {
		recorder.Emit(LoanJoined{
			LoanID:     i,
			Lender:     lender,
			Commitment: big.NewInt(int64(i)),
		})
	}

	recent := recorder.Recent(10)
	if len(recent) != 3 {
		t.Fatalf("expected 3 retained events, got %d", len(recent))
	}
	for i, evt := range recent {
		want := fmt.Sprintf("%d", i+3)
		if evt.Attributes["loanId"] != want {
			t.Fatalf("expected loanId %s at position %d, got %s", want, i, evt.Attributes["loanId"])
		}
	}

	last := recorder.Recent(1)
	if len(last) != 1 || last[0].Attributes["loanId"] != "5" {
		t.Fatalf("expected newest event last, got %+v", last)
	}
}

func TestRecorderIgnoresEventsWithoutWireForm(t *testing.T) {
	recorder := NewRecorder(8)
	recorder.Emit(untypedEvent{})
	recorder.Emit(nil)
	if got := recorder.Recent(0); len(got) != 0 {
		t.Fatalf("expected no recorded events, got %d", len(got))
	}
}

func TestLoanEventWireForm(t *testing.T) {
	var borrower [20]byte
	borrower[19] = 0x01
	evt := LoanProposed{
		LoanID:        9,
		Borrower:      borrower,
		Token:         "USD",
		Principal:     big.NewInt(1_000),
		RateBps:       250,
		Maturity:      1_800_000_000,
		MinCommitment: big.NewInt(100),
		Timestamp:     1_700_000_000,
	}
	wire := evt.Event()
	if wire.Type != TypeLoanProposed {
		t.Fatalf("expected %s, got %s", TypeLoanProposed, wire.Type)
	}
	if wire.Attributes["principal"] != "1000" || wire.Attributes["loanId"] != "9" {
		t.Fatalf("unexpected attributes: %v", wire.Attributes)
	}
	if wire.Attributes["borrower"] == "" {
		t.Fatalf("borrower address should render as bech32")
	}
}

func TestCollateralLockedEventShape(t *testing.T) {
	var borrower [20]byte
	fungible := LoanCollateralLocked{LoanID: 1, Borrower: borrower, Asset: "GOLD", Amount: big.NewInt(5)}
	wire := fungible.Event()
	if _, ok := wire.Attributes["tokenId"]; ok {
		t.Fatalf("fungible lock should not carry tokenId")
	}
	if wire.Attributes["amount"] != "5" {
		t.Fatalf("expected amount 5, got %s", wire.Attributes["amount"])
	}

	unique := LoanCollateralLocked{LoanID: 1, Borrower: borrower, Asset: "DEED", Unique: true, TokenID: 7}
	wire = unique.Event()
	if _, ok := wire.Attributes["amount"]; ok {
		t.Fatalf("unique lock should not carry amount")
	}
	if wire.Attributes["tokenId"] != "7" {
		t.Fatalf("expected tokenId 7, got %s", wire.Attributes["tokenId"])
	}
}
