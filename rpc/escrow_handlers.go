package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"tripact/crypto"
	"tripact/escrow"
	"tripact/ledger"
	"tripact/registry"
)

type escrowCreateParams struct {
	Currency             string `json:"currency"`
	Price                string `json:"price"`
	ReturnShippingFee    string `json:"returnShippingFee"`
	InconveniencePercent uint32 `json:"inconveniencePercent"`
	Seller               string `json:"seller"`
}

type escrowJoinParams struct {
	ID     string `json:"id"`
	Caller string `json:"caller"`
	Role   string `json:"role"`
}

type escrowActorParams struct {
	ID     string `json:"id"`
	Caller string `json:"caller"`
}

type escrowCancelParams struct {
	ID       string `json:"id"`
	Caller   string `json:"caller"`
	HasIssue bool   `json:"hasIssue"`
}

type escrowResolveParams struct {
	ID             string `json:"id"`
	Caller         string `json:"caller"`
	ReallyHasIssue bool   `json:"reallyHasIssue"`
}

type escrowIDParams struct {
	ID string `json:"id"`
}

type escrowEventsParams struct {
	After uint64 `json:"after"`
}

type escrowJSON struct {
	ID                   string            `json:"id"`
	Phase                string            `json:"phase"`
	Currency             string            `json:"currency,omitempty"`
	Vault                string            `json:"vault,omitempty"`
	Operator             string            `json:"operator,omitempty"`
	Price                string            `json:"price"`
	ReturnShippingFee    string            `json:"returnShippingFee"`
	InconveniencePercent uint32            `json:"inconveniencePercent"`
	CreatedAt            int64             `json:"createdAt"`
	Depositors           int               `json:"depositors"`
	Buyer                *string           `json:"buyer,omitempty"`
	Seller               *string           `json:"seller,omitempty"`
	Courier              *string           `json:"courier,omitempty"`
	DisputeFiled         bool              `json:"disputeFiled"`
	ReturnSettled        bool              `json:"returnSettled"`
	Completed            bool              `json:"completed"`
	Withdrawable         map[string]string `json:"withdrawable"`
}

func escrowToJSON(inst *escrow.Instance) escrowJSON {
	id := inst.ID()
	terms := inst.Terms()
	out := escrowJSON{
		ID:                   hex.EncodeToString(id[:]),
		Phase:                inst.CurrentPhase().String(),
		Price:                terms.Price.String(),
		ReturnShippingFee:    terms.ReturnShippingFee.String(),
		InconveniencePercent: terms.InconvenienceThresholdPercent,
		CreatedAt:            inst.CreatedAt().Unix(),
		Depositors:           inst.DepositorCount(),
		DisputeFiled:         inst.DisputeFiled(),
		ReturnSettled:        inst.ReturnSettled(),
		Completed:            inst.Completed(),
		Withdrawable:         make(map[string]string),
	}
	if custody, ok := inst.Currency().(*ledger.Custody); ok {
		out.Currency = custody.Symbol()
		out.Vault = custody.Vault().String()
		out.Operator = custody.Operator().String()
	}
	assign := func(role escrow.Role, slot **string) {
		if addr, ok := inst.RoleHolder(role); ok {
			encoded := addr.String()
			*slot = &encoded
			out.Withdrawable[encoded] = inst.WithdrawableOf(addr).String()
		}
	}
	assign(escrow.RoleBuyer, &out.Buyer)
	assign(escrow.RoleSeller, &out.Seller)
	assign(escrow.RoleCourier, &out.Courier)
	return out
}

func decodeParams(req *RPCRequest, out interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("exactly one parameter object expected")
	}
	return json.Unmarshal(req.Params[0], out)
}

func parseInstanceID(raw string) ([32]byte, error) {
	var id [32]byte
	trimmed := strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	decoded, err := hex.DecodeString(trimmed)
	if err != nil {
		return id, fmt.Errorf("invalid instance id: %w", err)
	}
	if len(decoded) != len(id) {
		return id, fmt.Errorf("instance id must be %d bytes", len(id))
	}
	copy(id[:], decoded)
	return id, nil
}

func parseAmount(raw string) (*big.Int, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("amount required")
	}
	value, ok := new(big.Int).SetString(trimmed, 10)
	if !ok {
		return nil, fmt.Errorf("invalid amount: %s", raw)
	}
	if value.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return value, nil
}

func (s *Server) instanceFromParams(w http.ResponseWriter, req *RPCRequest, rawID string) (*escrow.Instance, bool) {
	id, err := parseInstanceID(rawID)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return nil, false
	}
	inst, err := s.registry.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, req.ID, codeEscrowNotFound, "not_found", err.Error())
		return nil, false
	}
	return inst, true
}

func (s *Server) writeEscrowError(w http.ResponseWriter, req *RPCRequest, err error) {
	status := http.StatusConflict
	code := codeEscrowConflict
	switch {
	case errors.Is(err, registry.ErrInstanceNotFound):
		status, code = http.StatusNotFound, codeEscrowNotFound
	case errors.Is(err, escrow.ErrNotBuyer),
		errors.Is(err, escrow.ErrNotSeller),
		errors.Is(err, escrow.ErrNotCourier),
		errors.Is(err, escrow.ErrDelegatedCaller):
		status, code = http.StatusForbidden, codeEscrowForbidden
	case errors.Is(err, escrow.ErrTransferOutFailed):
		status, code = http.StatusInternalServerError, codeEscrowInternal
	}
	writeError(w, status, req.ID, code, "escrow_error", err.Error())
}

func (s *Server) handleEscrowCreate(w http.ResponseWriter, identity *Identity, req *RPCRequest) {
	var params escrowCreateParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	seller, err := crypto.DecodeAddress(params.Seller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	price, err := parseAmount(params.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	fee, err := parseAmount(params.ReturnShippingFee)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	terms := escrow.Params{
		Price:                         price,
		ReturnShippingFee:             fee,
		InconvenienceThresholdPercent: params.InconveniencePercent,
	}
	inst, err := s.registry.Create(params.Currency, terms, escrow.Principal{Address: seller, Delegated: identity.Delegated})
	s.metrics.ObserveTransition("create", err)
	if err != nil {
		if errors.Is(err, registry.ErrCurrencyNotAllowed) {
			writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
			return
		}
		s.writeEscrowError(w, req, err)
		return
	}
	writeResult(w, req.ID, escrowToJSON(inst))
}

func (s *Server) handleEscrowJoin(w http.ResponseWriter, identity *Identity, req *RPCRequest) {
	var params escrowJoinParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := crypto.DecodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	role, err := escrow.ParseRole(params.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	inst, ok := s.instanceFromParams(w, req, params.ID)
	if !ok {
		return
	}
	err = inst.Join(escrow.Principal{Address: caller, Delegated: identity.Delegated}, role)
	s.metrics.ObserveTransition("join", err)
	if err != nil {
		s.writeEscrowError(w, req, err)
		return
	}
	writeResult(w, req.ID, escrowToJSON(inst))
}

func (s *Server) handleEscrowAccept(w http.ResponseWriter, _ *Identity, req *RPCRequest) {
	s.actorTransition(w, req, "accept", func(inst *escrow.Instance, caller crypto.Address) error {
		return inst.AcceptDelivery(caller)
	})
}

func (s *Server) handleEscrowCancel(w http.ResponseWriter, _ *Identity, req *RPCRequest) {
	var params escrowCancelParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := crypto.DecodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	inst, ok := s.instanceFromParams(w, req, params.ID)
	if !ok {
		return
	}
	err = inst.Cancel(caller, params.HasIssue)
	s.metrics.ObserveTransition("cancel", err)
	if err != nil {
		s.writeEscrowError(w, req, err)
		return
	}
	writeResult(w, req.ID, escrowToJSON(inst))
}

func (s *Server) handleEscrowResolveDispute(w http.ResponseWriter, _ *Identity, req *RPCRequest) {
	var params escrowResolveParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := crypto.DecodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	inst, ok := s.instanceFromParams(w, req, params.ID)
	if !ok {
		return
	}
	err = inst.ResolveDispute(caller, params.ReallyHasIssue)
	s.metrics.ObserveTransition("resolve_dispute", err)
	if err != nil {
		s.writeEscrowError(w, req, err)
		return
	}
	writeResult(w, req.ID, escrowToJSON(inst))
}

func (s *Server) handleEscrowConfirmReturn(w http.ResponseWriter, _ *Identity, req *RPCRequest) {
	s.actorTransition(w, req, "confirm_return", func(inst *escrow.Instance, caller crypto.Address) error {
		return inst.ConfirmReturnReceived(caller)
	})
}

func (s *Server) handleEscrowWithdraw(w http.ResponseWriter, _ *Identity, req *RPCRequest) {
	var params escrowActorParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := crypto.DecodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	inst, ok := s.instanceFromParams(w, req, params.ID)
	if !ok {
		return
	}
	err = inst.Withdraw(caller)
	s.metrics.ObserveWithdrawal("withdraw", err)
	if err != nil {
		s.writeEscrowError(w, req, err)
		return
	}
	writeResult(w, req.ID, escrowToJSON(inst))
}

func (s *Server) handleEscrowEmergencyWithdraw(w http.ResponseWriter, _ *Identity, req *RPCRequest) {
	var params escrowActorParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := crypto.DecodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	inst, ok := s.instanceFromParams(w, req, params.ID)
	if !ok {
		return
	}
	err = inst.EmergencyWithdraw(caller)
	s.metrics.ObserveWithdrawal("emergency", err)
	if err != nil {
		s.writeEscrowError(w, req, err)
		return
	}
	writeResult(w, req.ID, escrowToJSON(inst))
}

func (s *Server) actorTransition(w http.ResponseWriter, req *RPCRequest, transition string, apply func(*escrow.Instance, crypto.Address) error) {
	var params escrowActorParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := crypto.DecodeAddress(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	inst, ok := s.instanceFromParams(w, req, params.ID)
	if !ok {
		return
	}
	err = apply(inst, caller)
	s.metrics.ObserveTransition(transition, err)
	if err != nil {
		s.writeEscrowError(w, req, err)
		return
	}
	writeResult(w, req.ID, escrowToJSON(inst))
}

func (s *Server) handleEscrowGet(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params escrowIDParams
	if err := decodeParams(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return
	}
	inst, ok := s.instanceFromParams(w, req, params.ID)
	if !ok {
		return
	}
	writeResult(w, req.ID, escrowToJSON(inst))
}

func (s *Server) handleEscrowOperator(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	writeResult(w, req.ID, map[string]string{"operator": registry.Operator.String()})
}

func (s *Server) handleEscrowEvents(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	params := escrowEventsParams{}
	if len(req.Params) > 0 {
		if err := decodeParams(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
			return
		}
	}
	writeResult(w, req.ID, s.journal.Entries(params.After))
}
