package loans

import (
	"math/big"
	"testing"

	"loanchain/native/syndication"
	"loanchain/native/token"
	"loanchain/storage"
)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(storage.NewMemDB())
}

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func TestNextLoanIDMonotonic(t *testing.T) {
	store := testStore(t)
	for want := uint64(1); want <= 5; want++ {
		got, err := store.NextLoanID()
		if err != nil {
			t.Fatalf("NextLoanID: %v", err)
		}
		if got != want {
			t.Fatalf("expected id %d, got %d", want, got)
		}
	}
	count, err := store.LoanCount()
	if err != nil {
		t.Fatalf("LoanCount: %v", err)
	}
	if count != 5 {
		t.Fatalf("expected 5 loans allocated, got %d", count)
	}
}

func TestLoanRoundTrip(t *testing.T) {
	store := testStore(t)
	loan := &syndication.Loan{
		ID:               7,
		Borrower:         testAddr(0x01),
		Token:            "USD",
		Principal:        big.NewInt(1_000),
		Drawn:            big.NewInt(250),
		RateBps:          500,
		Maturity:         1_800_000_000,
		Status:           syndication.StatusActive,
		MinCommitment:    big.NewInt(100),
		TotalCommitted:   big.NewInt(1_000),
		TotalContributed: big.NewInt(1_000),
		TotalRepaid:      big.NewInt(50),
		Distributable:    big.NewInt(50),
		CreatedAt:        1_700_000_000,
		Participants: []syndication.Participant{
			{Lender: testAddr(0x02), Commitment: big.NewInt(1_000), Contributed: big.NewInt(1_000), Funded: true},
		},
		Collateral: []syndication.CollateralPosition{
			{Kind: syndication.CollateralFungible, Asset: "GOLD", Amount: big.NewInt(10)},
			{Kind: syndication.CollateralUnique, Asset: "DEED", TokenID: 3},
		},
	}
	if err := store.LoanPut(loan); err != nil {
		t.Fatalf("LoanPut: %v", err)
	}

	got, ok := store.LoanGet(7)
	if !ok {
		t.Fatalf("LoanGet: loan not found")
	}
	if got.Status != syndication.StatusActive || got.Token != "USD" {
		t.Fatalf("loan fields lost in round trip: %+v", got)
	}
	if got.Principal.Cmp(loan.Principal) != 0 || got.Distributable.Cmp(loan.Distributable) != 0 {
		t.Fatalf("amounts lost in round trip")
	}
	if len(got.Participants) != 1 || got.Participants[0].Contributed.Cmp(big.NewInt(1_000)) != 0 {
		t.Fatalf("participants lost in round trip: %+v", got.Participants)
	}
	if len(got.Collateral) != 2 || got.Collateral[1].TokenID != 3 {
		t.Fatalf("collateral lost in round trip: %+v", got.Collateral)
	}

	if _, ok := store.LoanGet(99); ok {
		t.Fatalf("missing loan should not be found")
	}
}

func TestLoanGetNormalizesNilAmounts(t *testing.T) {
	store := testStore(t)
	// A sparse record, as an older schema version might have written it.
	if err := store.LoanPut(&syndication.Loan{ID: 1, Token: "USD", Status: syndication.StatusSyndicating}); err != nil {
		t.Fatalf("LoanPut: %v", err)
	}
	got, ok := store.LoanGet(1)
	if !ok {
		t.Fatalf("LoanGet: loan not found")
	}
	for name, v := range map[string]*big.Int{
		"principal":        got.Principal,
		"drawn":            got.Drawn,
		"minCommitment":    got.MinCommitment,
		"totalCommitted":   got.TotalCommitted,
		"totalContributed": got.TotalContributed,
		"totalRepaid":      got.TotalRepaid,
		"distributable":    got.Distributable,
	} {
		if v == nil {
			t.Fatalf("%s should be backfilled to zero, got nil", name)
		}
	}
}

func TestBalanceAndAllowancePersistence(t *testing.T) {
	store := testStore(t)
	owner := testAddr(0x01)
	spender := testAddr(0x02)

	balance, err := store.BalanceGet("USD", owner)
	if err != nil {
		t.Fatalf("BalanceGet: %v", err)
	}
	if balance.Sign() != 0 {
		t.Fatalf("absent balance should read zero, got %s", balance)
	}
	if err := store.BalancePut("USD", owner, big.NewInt(12_345)); err != nil {
		t.Fatalf("BalancePut: %v", err)
	}
	balance, _ = store.BalanceGet("USD", owner)
	if balance.Cmp(big.NewInt(12_345)) != 0 {
		t.Fatalf("expected 12345, got %s", balance)
	}
	if err := store.BalancePut("USD", owner, big.NewInt(-1)); err == nil {
		t.Fatalf("negative balance must be rejected")
	}

	if err := store.AllowancePut("USD", owner, spender, big.NewInt(77)); err != nil {
		t.Fatalf("AllowancePut: %v", err)
	}
	allowance, err := store.AllowanceGet("USD", owner, spender)
	if err != nil {
		t.Fatalf("AllowanceGet: %v", err)
	}
	if allowance.Cmp(big.NewInt(77)) != 0 {
		t.Fatalf("expected 77, got %s", allowance)
	}
	// Reversed key order is a distinct allowance.
	reversed, _ := store.AllowanceGet("USD", spender, owner)
	if reversed.Sign() != 0 {
		t.Fatalf("reversed allowance should be zero, got %s", reversed)
	}
}

func TestAssetAndCollectionRoundTrip(t *testing.T) {
	store := testStore(t)
	issuer := testAddr(0x01)

	if _, ok := store.AssetGet("USD"); ok {
		t.Fatalf("unregistered asset should not be found")
	}
	if err := store.AssetPut(&token.Asset{Symbol: "USD", Name: "US Dollar", Decimals: 2, Issuer: issuer, Supply: big.NewInt(9)}); err != nil {
		t.Fatalf("AssetPut: %v", err)
	}
	asset, ok := store.AssetGet("USD")
	if !ok || asset.Supply.Cmp(big.NewInt(9)) != 0 || asset.Issuer != issuer {
		t.Fatalf("asset lost in round trip: %+v", asset)
	}

	if err := store.CollectionPut(&token.Collection{Symbol: "DEED", Name: "Deeds", Issuer: issuer}); err != nil {
		t.Fatalf("CollectionPut: %v", err)
	}
	collection, ok := store.CollectionGet("DEED")
	if !ok || collection.Name != "Deeds" {
		t.Fatalf("collection lost in round trip: %+v", collection)
	}
}

func TestOwnerRecord(t *testing.T) {
	store := testStore(t)
	alice := testAddr(0x0A)

	if _, ok, err := store.OwnerGet("DEED", 1); err != nil || ok {
		t.Fatalf("absent owner should read (zero, false, nil), got ok=%v err=%v", ok, err)
	}
	if err := store.OwnerPut("DEED", 1, alice); err != nil {
		t.Fatalf("OwnerPut: %v", err)
	}
	owner, ok, err := store.OwnerGet("DEED", 1)
	if err != nil || !ok || owner != alice {
		t.Fatalf("owner lost in round trip: owner=%x ok=%v err=%v", owner, ok, err)
	}
	// Same id under a different collection is a separate token.
	if _, ok, _ := store.OwnerGet("ART", 1); ok {
		t.Fatalf("different collection should not share owner records")
	}
}
