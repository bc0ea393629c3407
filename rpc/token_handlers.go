package rpc

import (
	"net/http"

	"tripact/crypto"
	"tripact/ledger"
)

type tokenMintParams struct {
	Token  string `json:"token"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

type tokenApproveParams struct {
	Token   string `json:"token"`
	Owner   string `json:"owner"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

type tokenBalanceParams struct {
	Token   string `json:"token"`
	Address string `json:"address"`
}

type tokenBalanceResult struct {
	Token   string `json:"token"`
	Address string `json:"address"`
	Balance string `json:"balance"`
}

func (s *Server) tokenFromParams(w http.ResponseWriter, req *RPCRequest, symbol string) (*ledger.Token, bool) {
	token, ok := s.registry.Currency(symbol)
	if !ok {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", "currency not allow-listed: "+symbol)
		return nil, false
	}
	return token, true
}

func (s *Server) handleTokenMint(w http.ResponseWriter, _ *Identity, req *RPCRequest) {
	var params tokenMintParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	token, ok := s.tokenFromParams(w, req, params.Token)
	if !ok {
		return
	}
	to, err := crypto.DecodeAddress(params.To)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := token.Mint(to, amount); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	writeResult(w, req.ID, tokenBalanceResult{Token: token.Symbol(), Address: to.String(), Balance: token.BalanceOf(to).String()})
}

func (s *Server) handleTokenApprove(w http.ResponseWriter, _ *Identity, req *RPCRequest) {
	var params tokenApproveParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	token, ok := s.tokenFromParams(w, req, params.Token)
	if !ok {
		return
	}
	owner, err := crypto.DecodeAddress(params.Owner)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	spender, err := crypto.DecodeAddress(params.Spender)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := parseAmount(params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := token.Approve(owner, spender, amount); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	writeResult(w, req.ID, map[string]string{
		"token":     token.Symbol(),
		"owner":     owner.String(),
		"spender":   spender.String(),
		"allowance": token.Allowance(owner, spender).String(),
	})
}

func (s *Server) handleTokenBalanceOf(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params tokenBalanceParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	token, ok := s.tokenFromParams(w, req, params.Token)
	if !ok {
		return
	}
	addr, err := crypto.DecodeAddress(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	writeResult(w, req.ID, tokenBalanceResult{Token: token.Symbol(), Address: addr.String(), Balance: token.BalanceOf(addr).String()})
}
