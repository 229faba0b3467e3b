package rpc

import (
	"math/big"
	"net/http"

	"loanchain/crypto"
	"loanchain/native/syndication"
)

type proposeParams struct {
	Borrower      string `json:"borrower"`
	Token         string `json:"token"`
	Principal     string `json:"principal"`
	RateBps       uint64 `json:"rateBps"`
	Maturity      int64  `json:"maturity"`
	MinCommitment string `json:"minCommitment"`
}

type joinParams struct {
	LoanID     uint64 `json:"loanId"`
	Lender     string `json:"lender"`
	Commitment string `json:"commitment"`
}

type callerParams struct {
	LoanID uint64 `json:"loanId"`
	Caller string `json:"caller"`
}

type contributeParams struct {
	LoanID uint64 `json:"loanId"`
	Lender string `json:"lender"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

type fungibleCollateralParams struct {
	LoanID   uint64 `json:"loanId"`
	Borrower string `json:"borrower"`
	Token    string `json:"token"`
	Amount   string `json:"amount"`
}

type uniqueCollateralParams struct {
	LoanID   uint64 `json:"loanId"`
	Borrower string `json:"borrower"`
	Token    string `json:"token"`
	TokenID  uint64 `json:"tokenId"`
}

type moveFundsParams struct {
	LoanID uint64 `json:"loanId"`
	Caller string `json:"caller"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

type distributeParams struct {
	LoanID uint64 `json:"loanId"`
	Caller string `json:"caller"`
	Token  string `json:"token"`
}

type loanIDParams struct {
	LoanID uint64 `json:"loanId"`
}

type shareOfParams struct {
	LoanID uint64 `json:"loanId"`
	Lender string `json:"lender"`
}

type eventsParams struct {
	Limit int `json:"limit"`
}

// participantView renders one lender position with bech32 addressing and
// decimal amounts, the shape clients should display.
type participantView struct {
	Lender      string `json:"lender"`
	Commitment  string `json:"commitment"`
	Contributed string `json:"contributed"`
	Funded      bool   `json:"funded"`
}

type collateralView struct {
	Kind    string `json:"kind"`
	Asset   string `json:"asset"`
	Amount  string `json:"amount,omitempty"`
	TokenID uint64 `json:"tokenId,omitempty"`
}

type loanView struct {
	ID               uint64            `json:"id"`
	Borrower         string            `json:"borrower"`
	Token            string            `json:"token"`
	Principal        string            `json:"principal"`
	Drawn            string            `json:"drawn"`
	RateBps          uint64            `json:"rateBps"`
	Maturity         int64             `json:"maturity"`
	Status           string            `json:"status"`
	MinCommitment    string            `json:"minCommitment"`
	TotalCommitted   string            `json:"totalCommitted"`
	TotalContributed string            `json:"totalContributed"`
	TotalRepaid      string            `json:"totalRepaid"`
	Distributable    string            `json:"distributable"`
	CreatedAt        int64             `json:"createdAt"`
	FundedAt         int64             `json:"fundedAt,omitempty"`
	Participants     []participantView `json:"participants,omitempty"`
	Collateral       []collateralView  `json:"collateral,omitempty"`
}

func bech32Address(addr [20]byte) string {
	return crypto.MustNewAddress(crypto.LoanPrefix, addr[:]).String()
}

func amountString(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

func participantViewFrom(p syndication.Participant) participantView {
	return participantView{
		Lender:      bech32Address(p.Lender),
		Commitment:  amountString(p.Commitment),
		Contributed: amountString(p.Contributed),
		Funded:      p.Funded,
	}
}

func loanViewFrom(loan *syndication.Loan) *loanView {
	if loan == nil {
		return nil
	}
	view := &loanView{
		ID:               loan.ID,
		Borrower:         bech32Address(loan.Borrower),
		Token:            loan.Token,
		Principal:        amountString(loan.Principal),
		Drawn:            amountString(loan.Drawn),
		RateBps:          loan.RateBps,
		Maturity:         loan.Maturity,
		Status:           loan.Status.String(),
		MinCommitment:    amountString(loan.MinCommitment),
		TotalCommitted:   amountString(loan.TotalCommitted),
		TotalContributed: amountString(loan.TotalContributed),
		TotalRepaid:      amountString(loan.TotalRepaid),
		Distributable:    amountString(loan.Distributable),
		CreatedAt:        loan.CreatedAt,
		FundedAt:         loan.FundedAt,
	}
	for _, p := range loan.Participants {
		view.Participants = append(view.Participants, participantViewFrom(p))
	}
	for _, c := range loan.Collateral {
		cv := collateralView{Asset: c.Asset, TokenID: c.TokenID}
		switch c.Kind {
		case syndication.CollateralUnique:
			cv.Kind = "unique"
		default:
			cv.Kind = "fungible"
			cv.Amount = amountString(c.Amount)
		}
		view.Collateral = append(view.Collateral, cv)
	}
	return view
}

func (s *Server) handleLoanPropose(w http.ResponseWriter, req *RPCRequest) error {
	var params proposeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	borrower, err := parseAddress("borrower", params.Borrower)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	principal, err := parseAmount("principal", params.Principal)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	minCommitment := big.NewInt(0)
	if params.MinCommitment != "" {
		if minCommitment, err = parseAmount("minCommitment", params.MinCommitment); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return err
		}
	}
	loan, err := s.engine.Propose(borrower, params.Token, principal, params.RateBps, params.Maturity, minCommitment)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return err
	}
	writeResult(w, req.ID, loanViewFrom(loan))
	return nil
}

func (s *Server) handleLoanJoin(w http.ResponseWriter, req *RPCRequest) error {
	var params joinParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	lender, err := parseAddress("lender", params.Lender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	commitment, err := parseAmount("commitment", params.Commitment)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	if err := s.engine.Join(params.LoanID, lender, commitment); err != nil {
		writeEngineError(w, req.ID, err)
		return err
	}
	writeResult(w, req.ID, map[string]bool{"joined": true})
	return nil
}

func (s *Server) handleLoanCloseSyndication(w http.ResponseWriter, req *RPCRequest) error {
	var params callerParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	if err := s.engine.CloseSyndication(params.LoanID, caller); err != nil {
		writeEngineError(w, req.ID, err)
		return err
	}
	writeResult(w, req.ID, map[string]string{"status": "funded"})
	return nil
}

func (s *Server) handleLoanContribute(w http.ResponseWriter, req *RPCRequest) error {
	var params contributeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	lender, err := parseAddress("lender", params.Lender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	if err := s.engine.Contribute(params.LoanID, lender, params.Token, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return err
	}
	writeResult(w, req.ID, map[string]bool{"contributed": true})
	return nil
}

func (s *Server) handleLoanLockCollateralFungible(w http.ResponseWriter, req *RPCRequest) error {
	var params fungibleCollateralParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	borrower, err := parseAddress("borrower", params.Borrower)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	if err := s.engine.LockCollateralFungible(params.LoanID, borrower, params.Token, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return err
	}
	writeResult(w, req.ID, map[string]bool{"locked": true})
	return nil
}

func (s *Server) handleLoanLockCollateralUnique(w http.ResponseWriter, req *RPCRequest) error {
	var params uniqueCollateralParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	borrower, err := parseAddress("borrower", params.Borrower)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	if err := s.engine.LockCollateralUnique(params.LoanID, borrower, params.Token, params.TokenID); err != nil {
		writeEngineError(w, req.ID, err)
		return err
	}
	writeResult(w, req.ID, map[string]bool{"locked": true})
	return nil
}

func (s *Server) handleLoanDrawdown(w http.ResponseWriter, req *RPCRequest) error {
	var params moveFundsParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	if err := s.engine.Drawdown(params.LoanID, caller, params.Token, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return err
	}
	writeResult(w, req.ID, map[string]bool{"drawn": true})
	return nil
}

func (s *Server) handleLoanRepay(w http.ResponseWriter, req *RPCRequest) error {
	var params moveFundsParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	amount, err := parseAmount("amount", params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	if err := s.engine.Repay(params.LoanID, caller, params.Token, amount); err != nil {
		writeEngineError(w, req.ID, err)
		return err
	}
	writeResult(w, req.ID, map[string]bool{"repaid": true})
	return nil
}

func (s *Server) handleLoanDistribute(w http.ResponseWriter, req *RPCRequest) error {
	var params distributeParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	paid, err := s.engine.Distribute(params.LoanID, caller, params.Token)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return err
	}
	writeResult(w, req.ID, map[string]string{"paid": amountString(paid)})
	return nil
}

func (s *Server) handleLoanClose(w http.ResponseWriter, req *RPCRequest) error {
	var params callerParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	caller, err := parseAddress("caller", params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	if err := s.engine.CloseLoan(params.LoanID, caller); err != nil {
		writeEngineError(w, req.ID, err)
		return err
	}
	writeResult(w, req.ID, map[string]string{"status": "closed"})
	return nil
}

// Admin-gated operations run with the configured admin address as the caller:
// the bearer token is the authentication, the address satisfies the engine's
// authorization check.

func (s *Server) handleLoanMarkDefault(w http.ResponseWriter, req *RPCRequest) error {
	var params loanIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	if err := s.engine.MarkDefault(params.LoanID, s.admin); err != nil {
		writeEngineError(w, req.ID, err)
		return err
	}
	writeResult(w, req.ID, map[string]string{"status": "defaulted"})
	return nil
}

func (s *Server) handleLoanSeize(w http.ResponseWriter, req *RPCRequest) error {
	var params loanIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	if err := s.engine.SeizeCollateralAndDistribute(params.LoanID, s.admin); err != nil {
		writeEngineError(w, req.ID, err)
		return err
	}
	writeResult(w, req.ID, map[string]string{"status": "closed"})
	return nil
}

func (s *Server) handleLoanCancel(w http.ResponseWriter, req *RPCRequest) error {
	var params loanIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	if err := s.engine.CancelSyndication(params.LoanID, s.admin); err != nil {
		writeEngineError(w, req.ID, err)
		return err
	}
	writeResult(w, req.ID, map[string]string{"status": "cancelled"})
	return nil
}

func (s *Server) handleLoanGet(w http.ResponseWriter, req *RPCRequest) error {
	var params loanIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	loan, err := s.engine.Loan(params.LoanID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return err
	}
	writeResult(w, req.ID, loanViewFrom(loan))
	return nil
}

func (s *Server) handleLoanParticipants(w http.ResponseWriter, req *RPCRequest) error {
	var params loanIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	participants, err := s.engine.Participants(params.LoanID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return err
	}
	views := make([]participantView, 0, len(participants))
	for _, p := range participants {
		views = append(views, participantViewFrom(p))
	}
	writeResult(w, req.ID, views)
	return nil
}

func (s *Server) handleLoanCollateral(w http.ResponseWriter, req *RPCRequest) error {
	var params loanIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	positions, err := s.engine.Collateral(params.LoanID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return err
	}
	views := make([]collateralView, 0, len(positions))
	for _, c := range positions {
		cv := collateralView{Asset: c.Asset, TokenID: c.TokenID}
		switch c.Kind {
		case syndication.CollateralUnique:
			cv.Kind = "unique"
		default:
			cv.Kind = "fungible"
			cv.Amount = amountString(c.Amount)
		}
		views = append(views, cv)
	}
	writeResult(w, req.ID, views)
	return nil
}

func (s *Server) handleLoanShareOf(w http.ResponseWriter, req *RPCRequest) error {
	var params shareOfParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	lender, err := parseAddress("lender", params.Lender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	share, err := s.engine.ShareOf(params.LoanID, lender)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return err
	}
	writeResult(w, req.ID, map[string]string{
		"numerator":   share.Num().String(),
		"denominator": share.Denom().String(),
	})
	return nil
}

func (s *Server) handleLoanExposure(w http.ResponseWriter, req *RPCRequest) error {
	var params loanIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	loan, err := s.engine.Loan(params.LoanID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return err
	}
	writeResult(w, req.ID, map[string]string{"exposure": syndication.Exposure(loan).String()})
	return nil
}

type rwaParams struct {
	LoanID uint64 `json:"loanId"`
	// Classes maps collateral symbols to regulatory classes (CASH, SOVEREIGN,
	// BANK, COVERED, RETAIL, CORPORATE, EQUITY). Unmapped symbols take the
	// 100% weight.
	Classes map[string]string `json:"classes,omitempty"`
}

func (s *Server) handleLoanApproximateRWA(w http.ResponseWriter, req *RPCRequest) error {
	var params rwaParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
		return err
	}
	loan, err := s.engine.Loan(params.LoanID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return err
	}
	rwa := syndication.ApproximateRWA(loan, func(asset string) string {
		return params.Classes[asset]
	})
	writeResult(w, req.ID, map[string]string{"rwa": rwa.String()})
	return nil
}

func (s *Server) handleLoanEvents(w http.ResponseWriter, req *RPCRequest) error {
	var params eventsParams
	if len(req.Params) > 0 {
		if err := decodeParams(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, err.Error(), nil)
			return err
		}
	}
	if params.Limit <= 0 {
		params.Limit = 100
	}
	if s.recorder == nil {
		writeResult(w, req.ID, []struct{}{})
		return nil
	}
	writeResult(w, req.ID, s.recorder.Recent(params.Limit))
	return nil
}
