package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	bech32lib "github.com/btcsuite/btcutil/bech32"

	"loanchain/core/events"
	"loanchain/crypto"
	"loanchain/native/syndication"
	"loanchain/native/token"
	"loanchain/state/loans"
	"loanchain/storage"
)

type testHarness struct {
	server  *Server
	handler http.Handler
	engine  *syndication.Engine
	now     int64
	admin   [20]byte
}

func testAddr(fill byte) [20]byte {
	var addr [20]byte
	for i := range addr {
		addr[i] = fill
	}
	return addr
}

func bech32(addr [20]byte) string {
	return crypto.MustNewAddress(crypto.LoanPrefix, addr[:]).String()
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()
	t.Setenv("LOANCHAIN_RPC_TOKEN", "test-secret")

	store := loans.NewStore(storage.NewMemDB())
	recorder := events.NewRecorder(128)

	tokens := token.NewFungible()
	tokens.SetState(store)
	uniques := token.NewUnique()
	uniques.SetState(store)

	admin := testAddr(0xAD)
	vault := testAddr(0xFE)
	engine := syndication.NewEngine(vault, tokens, uniques)
	engine.SetState(store)
	engine.SetAdmin(admin)
	engine.SetEmitter(recorder)

	h := &testHarness{
		engine: engine,
		now:    1_700_000_000,
		admin:  admin,
	}
	engine.SetNowFunc(func() int64 { return h.now })
	h.server = NewServer(engine, tokens, uniques, recorder, admin, nil)
	h.handler = h.server.Handler()
	return h
}

func (h *testHarness) call(t *testing.T, method string, params interface{}, bearer string) *RPCResponse {
	t.Helper()
	rawParams, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	body, err := json.Marshal(RPCRequest{
		JSONRPC: jsonRPCVersion,
		Method:  method,
		Params:  []json.RawMessage{rawParams},
		ID:      1,
	})
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	resp := &RPCResponse{}
	if err := json.Unmarshal(rec.Body.Bytes(), resp); err != nil {
		t.Fatalf("decode response: %v (body %s)", err, rec.Body.String())
	}
	return resp
}

func (h *testHarness) mustCall(t *testing.T, method string, params interface{}, bearer string) json.RawMessage {
	t.Helper()
	resp := h.call(t, method, params, bearer)
	if resp.Error != nil {
		t.Fatalf("%s failed: %d %s", method, resp.Error.Code, resp.Error.Message)
	}
	raw, err := json.Marshal(resp.Result)
	if err != nil {
		t.Fatalf("re-marshal result: %v", err)
	}
	return raw
}

func TestHandleRejectsMalformedJSON(t *testing.T) {
	h := newTestHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{not json")))
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	resp := &RPCResponse{}
	if err := json.Unmarshal(rec.Body.Bytes(), resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != codeParseError {
		t.Fatalf("expected parse error %d, got %+v", codeParseError, resp.Error)
	}
}

func TestHandleRejectsUnknownMethod(t *testing.T) {
	h := newTestHarness(t)
	resp := h.call(t, "loan_doesNotExist", map[string]any{}, "")
	if resp.Error == nil || resp.Error.Code != codeMethodNotFound {
		t.Fatalf("expected method-not-found %d, got %+v", codeMethodNotFound, resp.Error)
	}
}

func TestHandleRejectsEmptyBody(t *testing.T) {
	h := newTestHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(nil))
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	resp := &RPCResponse{}
	if err := json.Unmarshal(rec.Body.Bytes(), resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Error == nil || resp.Error.Code != codeInvalidRequest {
		t.Fatalf("expected invalid-request %d, got %+v", codeInvalidRequest, resp.Error)
	}
}

func TestAdminMethodsRequireBearerToken(t *testing.T) {
	h := newTestHarness(t)

	resp := h.call(t, "loan_markDefault", map[string]any{"loanId": 1}, "")
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("no token: expected %d, got %+v", codeUnauthorized, resp.Error)
	}
	resp = h.call(t, "loan_markDefault", map[string]any{"loanId": 1}, "wrong-secret")
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("bad token: expected %d, got %+v", codeUnauthorized, resp.Error)
	}
	resp = h.call(t, "token_register", map[string]any{"issuer": bech32(h.admin), "symbol": "USD", "name": "US Dollar", "decimals": 2}, "")
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("unauthenticated register: expected %d, got %+v", codeUnauthorized, resp.Error)
	}
}

func TestTokenTransferRequiresBearerToken(t *testing.T) {
	h := newTestHarness(t)
	const bearer = "test-secret"
	victim := testAddr(0x01)
	thief := testAddr(0x02)

	h.mustCall(t, "token_register", map[string]any{
		"issuer": bech32(h.admin), "symbol": "USD", "name": "US Dollar", "decimals": 2,
	}, bearer)
	h.mustCall(t, "token_mint", map[string]any{
		"caller": bech32(h.admin), "symbol": "USD", "to": bech32(victim), "amount": "1000",
	}, bearer)

	transfer := map[string]any{
		"symbol": "USD", "from": bech32(victim), "to": bech32(thief), "amount": "1000",
	}
	resp := h.call(t, "token_transfer", transfer, "")
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("unauthenticated transfer: expected %d, got %+v", codeUnauthorized, resp.Error)
	}
	resp = h.call(t, "token_mint", map[string]any{
		"caller": bech32(h.admin), "symbol": "USD", "to": bech32(thief), "amount": "1",
	}, "")
	if resp.Error == nil || resp.Error.Code != codeUnauthorized {
		t.Fatalf("unauthenticated mint: expected %d, got %+v", codeUnauthorized, resp.Error)
	}

	raw := h.mustCall(t, "token_balanceOf", map[string]any{
		"symbol": "USD", "address": bech32(victim),
	}, "")
	var balance map[string]string
	if err := json.Unmarshal(raw, &balance); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if balance["balance"] != "1000" {
		t.Fatalf("rejected transfer must not move funds, victim holds %s", balance["balance"])
	}

	// With the token the same transfer goes through.
	h.mustCall(t, "token_transfer", transfer, bearer)
	raw = h.mustCall(t, "token_balanceOf", map[string]any{
		"symbol": "USD", "address": bech32(thief),
	}, "")
	if err := json.Unmarshal(raw, &balance); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if balance["balance"] != "1000" {
		t.Fatalf("authorized transfer should move funds, got %s", balance["balance"])
	}
}

func TestLoanGetUnknownMapsToNotFound(t *testing.T) {
	h := newTestHarness(t)
	resp := h.call(t, "loan_get", map[string]any{"loanId": 42}, "")
	if resp.Error == nil || resp.Error.Code != codeNotFound {
		t.Fatalf("expected %d, got %+v", codeNotFound, resp.Error)
	}
}

func TestInvalidAddressMapsToInvalidParams(t *testing.T) {
	h := newTestHarness(t)
	resp := h.call(t, "loan_join", map[string]any{"loanId": 1, "lender": "not-an-address", "commitment": "10"}, "")
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("expected %d, got %+v", codeInvalidParams, resp.Error)
	}

	// Valid bech32 with a short payload is still an invalid address, not a
	// handler crash.
	conv, err := bech32lib.ConvertBits(make([]byte, 10), 8, 5, true)
	if err != nil {
		t.Fatalf("convert bits: %v", err)
	}
	short, err := bech32lib.Encode(string(crypto.LoanPrefix), conv)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	resp = h.call(t, "loan_join", map[string]any{"loanId": 1, "lender": short, "commitment": "10"}, "")
	if resp.Error == nil || resp.Error.Code != codeInvalidParams {
		t.Fatalf("short payload: expected %d, got %+v", codeInvalidParams, resp.Error)
	}
}

func TestLoanLifecycleOverRPC(t *testing.T) {
	h := newTestHarness(t)
	const bearer = "test-secret"
	borrower := testAddr(0x01)
	lender := testAddr(0x02)

	h.mustCall(t, "token_register", map[string]any{
		"issuer": bech32(h.admin), "symbol": "USD", "name": "US Dollar", "decimals": 2,
	}, bearer)
	h.mustCall(t, "token_mint", map[string]any{
		"caller": bech32(h.admin), "symbol": "USD", "to": bech32(lender), "amount": "1000",
	}, bearer)

	raw := h.mustCall(t, "loan_propose", map[string]any{
		"borrower":      bech32(borrower),
		"token":         "USD",
		"principal":     "1000",
		"rateBps":       500,
		"maturity":      h.now + 86_400,
		"minCommitment": "500",
	}, "")
	var proposed loanView
	if err := json.Unmarshal(raw, &proposed); err != nil {
		t.Fatalf("decode loan: %v", err)
	}
	if proposed.ID != 1 || proposed.Status != "syndicating" {
		t.Fatalf("unexpected proposed loan: %+v", proposed)
	}
	loanID := proposed.ID

	h.mustCall(t, "loan_join", map[string]any{
		"loanId": loanID, "lender": bech32(lender), "commitment": "1000",
	}, "")
	h.mustCall(t, "token_approve", map[string]any{
		"symbol": "USD", "owner": bech32(lender), "spender": bech32(h.engine.VaultAddress()), "amount": "1000",
	}, "")
	h.mustCall(t, "loan_closeSyndication", map[string]any{
		"loanId": loanID, "caller": bech32(borrower),
	}, "")
	h.mustCall(t, "loan_contribute", map[string]any{
		"loanId": loanID, "lender": bech32(lender), "token": "USD", "amount": "1000",
	}, "")
	h.mustCall(t, "loan_drawdown", map[string]any{
		"loanId": loanID, "caller": bech32(borrower), "token": "USD", "amount": "1000",
	}, "")

	raw = h.mustCall(t, "token_balanceOf", map[string]any{
		"symbol": "USD", "address": bech32(borrower),
	}, "")
	var balance map[string]string
	if err := json.Unmarshal(raw, &balance); err != nil {
		t.Fatalf("decode balance: %v", err)
	}
	if balance["balance"] != "1000" {
		t.Fatalf("borrower should hold principal, got %s", balance["balance"])
	}

	// Repay needs the vault authorized against the borrower's account.
	h.mustCall(t, "token_approve", map[string]any{
		"symbol": "USD", "owner": bech32(borrower), "spender": bech32(h.engine.VaultAddress()), "amount": "1000",
	}, "")
	h.mustCall(t, "loan_repay", map[string]any{
		"loanId": loanID, "caller": bech32(borrower), "token": "USD", "amount": "1000",
	}, "")

	raw = h.mustCall(t, "loan_distribute", map[string]any{
		"loanId": loanID, "caller": bech32(lender), "token": "USD",
	}, "")
	var paid map[string]string
	if err := json.Unmarshal(raw, &paid); err != nil {
		t.Fatalf("decode distribution: %v", err)
	}
	if paid["paid"] != "1000" {
		t.Fatalf("expected full distribution, got %s", paid["paid"])
	}

	h.mustCall(t, "loan_close", map[string]any{
		"loanId": loanID, "caller": bech32(lender),
	}, "")

	raw = h.mustCall(t, "loan_get", map[string]any{"loanId": loanID}, "")
	var final loanView
	if err := json.Unmarshal(raw, &final); err != nil {
		t.Fatalf("decode loan: %v", err)
	}
	if final.Status != "closed" {
		t.Fatalf("expected closed, got %s", final.Status)
	}
	if final.TotalRepaid != "1000" || final.Distributable != "0" {
		t.Fatalf("unexpected final accounting: %+v", final)
	}

	raw = h.mustCall(t, "loan_events", map[string]any{"limit": 50}, "")
	var recorded []struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &recorded); err != nil {
		t.Fatalf("decode events: %v", err)
	}
	if len(recorded) == 0 {
		t.Fatalf("expected recorded events")
	}
	found := false
	for _, evt := range recorded {
		if evt.Type == "loan.closed" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected loan.closed in event stream, got %+v", recorded)
	}
}

func TestAdminDefaultAndSeizeOverRPC(t *testing.T) {
	h := newTestHarness(t)
	const bearer = "test-secret"
	borrower := testAddr(0x01)
	lender := testAddr(0x02)

	h.mustCall(t, "token_register", map[string]any{
		"issuer": bech32(h.admin), "symbol": "USD", "name": "US Dollar", "decimals": 2,
	}, bearer)
	h.mustCall(t, "token_mint", map[string]any{
		"caller": bech32(h.admin), "symbol": "USD", "to": bech32(lender), "amount": "100",
	}, bearer)

	raw := h.mustCall(t, "loan_propose", map[string]any{
		"borrower": bech32(borrower), "token": "USD", "principal": "100",
		"rateBps": 500, "maturity": h.now + 100, "minCommitment": "0",
	}, "")
	var loan loanView
	if err := json.Unmarshal(raw, &loan); err != nil {
		t.Fatalf("decode loan: %v", err)
	}

	h.mustCall(t, "loan_join", map[string]any{
		"loanId": loan.ID, "lender": bech32(lender), "commitment": "100",
	}, "")
	h.mustCall(t, "token_approve", map[string]any{
		"symbol": "USD", "owner": bech32(lender), "spender": bech32(h.engine.VaultAddress()), "amount": "100",
	}, "")
	h.mustCall(t, "loan_contribute", map[string]any{
		"loanId": loan.ID, "lender": bech32(lender), "token": "USD", "amount": "100",
	}, "")
	h.mustCall(t, "loan_drawdown", map[string]any{
		"loanId": loan.ID, "caller": bech32(borrower), "token": "USD", "amount": "100",
	}, "")

	// Not yet matured: the default is rejected with a state conflict.
	resp := h.call(t, "loan_markDefault", map[string]any{"loanId": loan.ID}, bearer)
	if resp.Error == nil || resp.Error.Code != codeInvalidState {
		t.Fatalf("pre-maturity default: expected %d, got %+v", codeInvalidState, resp.Error)
	}

	h.now += 200
	h.mustCall(t, "loan_markDefault", map[string]any{"loanId": loan.ID}, bearer)
	h.mustCall(t, "loan_seize", map[string]any{"loanId": loan.ID}, bearer)

	raw = h.mustCall(t, "loan_get", map[string]any{"loanId": loan.ID}, "")
	var final loanView
	if err := json.Unmarshal(raw, &final); err != nil {
		t.Fatalf("decode loan: %v", err)
	}
	if final.Status != "closed" {
		t.Fatalf("expected closed after seizure, got %s", final.Status)
	}

	raw = h.mustCall(t, "loan_exposure", map[string]any{"loanId": loan.ID}, "")
	var exposure map[string]string
	if err := json.Unmarshal(raw, &exposure); err != nil {
		t.Fatalf("decode exposure: %v", err)
	}
	if exposure["exposure"] != "100" {
		t.Fatalf("expected exposure 100, got %s", exposure["exposure"])
	}
}

func TestShareOfOverRPC(t *testing.T) {
	h := newTestHarness(t)
	const bearer = "test-secret"
	borrower := testAddr(0x01)
	alice := testAddr(0x02)
	bob := testAddr(0x03)

	h.mustCall(t, "token_register", map[string]any{
		"issuer": bech32(h.admin), "symbol": "USD", "name": "US Dollar", "decimals": 2,
	}, bearer)
	for i, lender := range [][20]byte{alice, bob} {
		amount := fmt.Sprintf("%d", (i+1)*100)
		h.mustCall(t, "token_mint", map[string]any{
			"caller": bech32(h.admin), "symbol": "USD", "to": bech32(lender), "amount": amount,
		}, bearer)
	}

	raw := h.mustCall(t, "loan_propose", map[string]any{
		"borrower": bech32(borrower), "token": "USD", "principal": "300",
		"rateBps": 100, "maturity": h.now + 86_400, "minCommitment": "0",
	}, "")
	var loan loanView
	if err := json.Unmarshal(raw, &loan); err != nil {
		t.Fatalf("decode loan: %v", err)
	}
	for i, lender := range [][20]byte{alice, bob} {
		amount := fmt.Sprintf("%d", (i+1)*100)
		h.mustCall(t, "loan_join", map[string]any{
			"loanId": loan.ID, "lender": bech32(lender), "commitment": amount,
		}, "")
		h.mustCall(t, "token_approve", map[string]any{
			"symbol": "USD", "owner": bech32(lender), "spender": bech32(h.engine.VaultAddress()), "amount": amount,
		}, "")
		h.mustCall(t, "loan_contribute", map[string]any{
			"loanId": loan.ID, "lender": bech32(lender), "token": "USD", "amount": amount,
		}, "")
	}

	raw = h.mustCall(t, "loan_shareOf", map[string]any{
		"loanId": loan.ID, "lender": bech32(bob),
	}, "")
	var share map[string]string
	if err := json.Unmarshal(raw, &share); err != nil {
		t.Fatalf("decode share: %v", err)
	}
	if share["numerator"] != "2" || share["denominator"] != "3" {
		t.Fatalf("expected 2/3, got %s/%s", share["numerator"], share["denominator"])
	}
}
