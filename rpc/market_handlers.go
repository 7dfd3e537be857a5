package rpc

import (
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"strings"

	"craftledger/crypto"
	"craftledger/native/market"
)

const (
	codeMarketInvalidParams = -32021
	codeMarketNotFound      = -32022
	codeMarketForbidden     = -32023
	codeMarketConflict      = -32024
	codeMarketInternal      = -32025
)

type marketInitializeParams struct {
	Registry string `json:"registry"`
}

type marketCreateJobParams struct {
	Finder string `json:"finder"`
	Token  string `json:"token"`
	Amount string `json:"amount"`
}

type marketAssignParams struct {
	ID      uint64 `json:"id"`
	Caller  string `json:"caller"`
	Artisan string `json:"artisan"`
}

type marketActorParams struct {
	ID     uint64 `json:"id"`
	Caller string `json:"caller"`
}

type marketExtendParams struct {
	ID        uint64 `json:"id"`
	Caller    string `json:"caller"`
	ExtraTime int64  `json:"extraTime"`
}

type marketBudgetParams struct {
	ID          uint64 `json:"id"`
	Caller      string `json:"caller"`
	AddedAmount string `json:"addedAmount"`
}

type marketJobIDParams struct {
	ID uint64 `json:"id"`
}

type jobJSON struct {
	ID        uint64  `json:"id"`
	Finder    string  `json:"finder"`
	Artisan   *string `json:"artisan,omitempty"`
	Token     string  `json:"token"`
	Amount    string  `json:"amount"`
	Status    string  `json:"status"`
	StartTime int64   `json:"startTime"`
	EndTime   int64   `json:"endTime"`
	Deadline  int64   `json:"deadline"`
}

func jobToJSON(job *market.Job) *jobJSON {
	if job == nil {
		return nil
	}
	out := &jobJSON{
		ID:        job.ID,
		Finder:    crypto.NewAddress(crypto.CraftPrefix, job.Finder[:]).String(),
		Token:     job.Token,
		Amount:    job.Amount.String(),
		Status:    job.Status.String(),
		StartTime: job.StartTime,
		EndTime:   job.EndTime,
		Deadline:  job.Deadline,
	}
	if job.HasArtisan() {
		artisan := crypto.NewAddress(crypto.CraftPrefix, job.Artisan[:]).String()
		out.Artisan = &artisan
	}
	return out
}

func decodeAddressParam(field, value string) ([20]byte, error) {
	var out [20]byte
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return out, fmt.Errorf("%s is required", field)
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return out, fmt.Errorf("%s: %v", field, err)
	}
	copy(out[:], addr.Bytes())
	return out, nil
}

func decodeAmountParam(field, value string) (*big.Int, error) {
	amount, ok := new(big.Int).SetString(strings.TrimSpace(value), 10)
	if !ok {
		return nil, fmt.Errorf("%s must be a base-10 integer", field)
	}
	return amount, nil
}

// writeMarketError maps module sentinel errors onto JSON-RPC error codes.
func writeMarketError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, market.ErrJobNotFound), errors.Is(err, market.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, id, codeMarketNotFound, "not_found", err.Error())
	case errors.Is(err, market.ErrUnauthorized):
		writeError(w, http.StatusUnauthorized, id, codeMarketForbidden, "unauthorized", err.Error())
	case errors.Is(err, market.ErrNotOwner), errors.Is(err, market.ErrPolicyViolation):
		writeError(w, http.StatusForbidden, id, codeMarketForbidden, "forbidden", err.Error())
	case errors.Is(err, market.ErrInvalidState),
		errors.Is(err, market.ErrAlreadyInitialized),
		errors.Is(err, market.ErrNotInitialized),
		errors.Is(err, market.ErrTimingNotElapsed),
		errors.Is(err, market.ErrInsufficientBalance):
		writeError(w, http.StatusConflict, id, codeMarketConflict, "conflict", err.Error())
	case errors.Is(err, market.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, id, codeMarketInvalidParams, "invalid_params", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeMarketInternal, "internal_error", err.Error())
	}
}

func (s *Server) handleMarketInitialize(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params marketInitializeParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	registry, err := decodeAddressParam("registry", params.Registry)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.InitializeMarket(registry); err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"initialized": true})
}

func (s *Server) handleMarketCreateJob(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params marketCreateJobParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	finder, err := decodeAddressParam("finder", params.Finder)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	amount, err := decodeAmountParam("amount", params.Amount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	id, err := s.node.CreateJob(finder, params.Token, amount)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]uint64{"id": id})
}

func (s *Server) handleMarketAssignArtisan(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params marketAssignParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := decodeAddressParam("caller", params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	artisan, err := decodeAddressParam("artisan", params.Artisan)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.AssignArtisan(params.ID, caller, artisan); err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"assigned": true})
}

func (s *Server) handleMarketApplyForJob(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params marketActorParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	artisan, err := decodeAddressParam("caller", params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.ApplyForJob(params.ID, artisan); err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"applied": true})
}

func (s *Server) actorHandler(op func(uint64, [20]byte) error, resultKey string) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		var params marketActorParams
		if err := singleParam(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
			return
		}
		caller, err := decodeAddressParam("caller", params.Caller)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
			return
		}
		if err := op(params.ID, caller); err != nil {
			writeMarketError(w, req.ID, err)
			return
		}
		writeResult(w, req.ID, map[string]bool{resultKey: true})
	}
}

func (s *Server) handleMarketStartJob(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.actorHandler(s.node.StartJob, "started")(w, r, req)
}

func (s *Server) handleMarketCompleteJob(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.actorHandler(s.node.CompleteJob, "completed")(w, r, req)
}

func (s *Server) handleMarketCancelJob(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.actorHandler(s.node.CancelJob, "cancelled")(w, r, req)
}

func (s *Server) handleMarketAutoReleaseFunds(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.actorHandler(s.node.AutoReleaseFunds, "released")(w, r, req)
}

func (s *Server) handleMarketExtendDeadline(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params marketExtendParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := decodeAddressParam("caller", params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.ExtendDeadline(params.ID, caller, params.ExtraTime); err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"extended": true})
}

func (s *Server) handleMarketIncreaseBudget(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params marketBudgetParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := decodeAddressParam("caller", params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	added, err := decodeAmountParam("addedAmount", params.AddedAmount)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	if err := s.node.IncreaseBudget(params.ID, caller, added); err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, map[string]bool{"increased": true})
}

func (s *Server) handleMarketGetJob(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params marketJobIDParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeMarketInvalidParams, "invalid_params", err.Error())
		return
	}
	job, err := s.node.GetJob(params.ID)
	if err != nil {
		writeMarketError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, jobToJSON(job))
}
