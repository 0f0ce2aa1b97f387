package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"gearrent/crypto"
	"gearrent/native/rental"
	"gearrent/observability"
)

const (
	codeInvalidInput       = -32021
	codeItemNotFound       = -32022
	codeUnauthorizedDomain = -32023
	codeInvalidState       = -32024
	codeNothingToWithdraw  = -32025
	codeAmountOverflow     = -32026
)

type listItemParams struct {
	Caller      string `json:"caller"`
	Description string `json:"description"`
	Rate        uint64 `json:"rate"`
	Deposit     uint64 `json:"deposit"`
}

type rentItemParams struct {
	Caller  string `json:"caller"`
	ID      uint64 `json:"id"`
	Payment uint64 `json:"payment"`
}

type returnItemParams struct {
	Caller string `json:"caller"`
	ID     uint64 `json:"id"`
}

type resolveDepositParams struct {
	Caller string `json:"caller"`
	ID     uint64 `json:"id"`
	ItemOK bool   `json:"itemOk"`
}

type withdrawParams struct {
	Caller string `json:"caller"`
}

type clearItemsParams struct {
	Caller string `json:"caller"`
}

type getItemParams struct {
	ID uint64 `json:"id"`
}

type balanceOfParams struct {
	Address string `json:"address"`
}

type getEventsParams struct {
	After uint64 `json:"after"`
	Limit int    `json:"limit"`
}

type itemResult struct {
	ID            uint64 `json:"id"`
	Owner         string `json:"owner"`
	Description   string `json:"description"`
	RatePerPeriod uint64 `json:"ratePerPeriod"`
	Deposit       uint64 `json:"deposit"`
	Status        string `json:"status"`
	Renter        string `json:"renter,omitempty"`
}

type balanceResult struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
}

type withdrawResult struct {
	Address string `json:"address"`
	Amount  uint64 `json:"amount"`
}

func itemToResult(item *rental.Item) itemResult {
	out := itemResult{
		ID:            item.ID,
		Owner:         item.Owner.String(),
		Description:   item.Description,
		RatePerPeriod: item.RatePerPeriod,
		Deposit:       item.Deposit,
		Status:        item.Status.String(),
	}
	if !item.Renter.IsZero() {
		out.Renter = item.Renter.String()
	}
	return out
}

func decodeSingleParam(req *RPCRequest, dst interface{}) error {
	if len(req.Params) != 1 {
		return fmt.Errorf("expected exactly one parameter object, got %d", len(req.Params))
	}
	return json.Unmarshal(req.Params[0], dst)
}

func decodeCaller(raw string) (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(raw)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("invalid address %q: %w", raw, err)
	}
	return addr, nil
}

// writeEngineError maps the engine error taxonomy onto JSON-RPC error codes
// and matching HTTP statuses.
func writeEngineError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, rental.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, id, codeInvalidInput, "invalid input", err.Error())
	case errors.Is(err, rental.ErrItemNotFound):
		writeError(w, http.StatusNotFound, id, codeItemNotFound, "item not found", err.Error())
	case errors.Is(err, rental.ErrUnauthorized):
		writeError(w, http.StatusForbidden, id, codeUnauthorizedDomain, "unauthorized", err.Error())
	case errors.Is(err, rental.ErrInvalidState):
		writeError(w, http.StatusConflict, id, codeInvalidState, "invalid state", err.Error())
	case errors.Is(err, rental.ErrNothingToWithdraw):
		writeError(w, http.StatusConflict, id, codeNothingToWithdraw, "nothing to withdraw", err.Error())
	case errors.Is(err, rental.ErrAmountOverflow):
		writeError(w, http.StatusBadRequest, id, codeAmountOverflow, "amount overflow", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeServerError, "internal error", err.Error())
	}
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, rental.ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, rental.ErrItemNotFound):
		return "not_found"
	case errors.Is(err, rental.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, rental.ErrInvalidState):
		return "invalid_state"
	case errors.Is(err, rental.ErrNothingToWithdraw):
		return "nothing_to_withdraw"
	case errors.Is(err, rental.ErrAmountOverflow):
		return "overflow"
	default:
		return "error"
	}
}

func (s *Server) recordTransition(operation string, err error) {
	m := observability.EngineMetrics()
	m.ObserveTransition(operation, outcomeLabel(err))
	if err == nil {
		totals := s.engine.Totals()
		m.SetLedgerTotals(totals.PaidIn, totals.Escrowed, totals.Withdrawn)
	}
}

func (s *Server) handleListItem(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params listItemParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid params", err.Error())
		return
	}
	caller, err := decodeCaller(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidInput, "invalid caller", err.Error())
		return
	}
	item, err := s.engine.List(caller, params.Description, params.Rate, params.Deposit)
	s.recordTransition("list", err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, itemToResult(item))
}

func (s *Server) handleRentItem(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params rentItemParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid params", err.Error())
		return
	}
	caller, err := decodeCaller(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidInput, "invalid caller", err.Error())
		return
	}
	err = s.engine.Rent(caller, params.ID, params.Payment)
	s.recordTransition("rent", err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	item, err := s.engine.GetItem(params.ID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, itemToResult(item))
}

func (s *Server) handleReturnItem(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params returnItemParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid params", err.Error())
		return
	}
	caller, err := decodeCaller(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidInput, "invalid caller", err.Error())
		return
	}
	err = s.engine.Return(caller, params.ID)
	s.recordTransition("return", err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	item, err := s.engine.GetItem(params.ID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, itemToResult(item))
}

func (s *Server) handleResolveDeposit(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params resolveDepositParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid params", err.Error())
		return
	}
	caller, err := decodeCaller(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidInput, "invalid caller", err.Error())
		return
	}
	err = s.engine.ResolveDeposit(caller, params.ID, params.ItemOK)
	s.recordTransition("resolve_deposit", err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	item, err := s.engine.GetItem(params.ID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, itemToResult(item))
}

func (s *Server) handleWithdraw(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params withdrawParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid params", err.Error())
		return
	}
	caller, err := decodeCaller(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidInput, "invalid caller", err.Error())
		return
	}
	amount, err := s.engine.Withdraw(caller)
	s.recordTransition("withdraw", err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	observability.EngineMetrics().ObservePayout()
	writeResult(w, req.ID, withdrawResult{Address: caller.String(), Amount: amount})
}

func (s *Server) handleClearItems(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params clearItemsParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid params", err.Error())
		return
	}
	caller, err := decodeCaller(params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidInput, "invalid caller", err.Error())
		return
	}
	err = s.engine.Clear(caller)
	s.recordTransition("clear", err)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"cleared": true})
}

func (s *Server) handleGetItem(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params getItemParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid params", err.Error())
		return
	}
	item, err := s.engine.GetItem(params.ID)
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, itemToResult(item))
}

func (s *Server) handleListItems(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	items, err := s.engine.ListItems()
	if err != nil {
		writeEngineError(w, req.ID, err)
		return
	}
	out := make([]itemResult, 0, len(items))
	for _, item := range items {
		out = append(out, itemToResult(item))
	}
	writeResult(w, req.ID, out)
}

func (s *Server) handleBalanceOf(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params balanceOfParams
	if err := decodeSingleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid params", err.Error())
		return
	}
	addr, err := decodeCaller(params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidInput, "invalid address", err.Error())
		return
	}
	balance := s.engine.BalanceOf(addr)
	writeResult(w, req.ID, balanceResult{Address: addr.String(), Balance: balance})
}

type eventsResult struct {
	Events []eventEntry `json:"events"`
	Last   uint64       `json:"lastSequence"`
	Oldest uint64       `json:"oldestSequence"`
}

type eventEntry struct {
	Sequence   uint64            `json:"sequence"`
	Timestamp  int64             `json:"timestamp"`
	Type       string            `json:"type"`
	Attributes map[string]string `json:"attributes"`
}

func (s *Server) handleGetEvents(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var params getEventsParams
	if len(req.Params) > 0 {
		if err := decodeSingleParam(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeInvalidRequest, "invalid params", err.Error())
			return
		}
	}
	if s.feed == nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "event feed not configured", nil)
		return
	}
	entries := s.feed.After(params.After, params.Limit)
	out := eventsResult{
		Events: make([]eventEntry, 0, len(entries)),
		Last:   s.feed.LastSequence(),
		Oldest: s.feed.OldestSequence(),
	}
	for _, entry := range entries {
		out.Events = append(out.Events, eventEntry{
			Sequence:   entry.Sequence,
			Timestamp:  entry.Timestamp,
			Type:       entry.Event.Type,
			Attributes: entry.Event.Attributes,
		})
	}
	writeResult(w, req.ID, out)
}
