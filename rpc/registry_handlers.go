package rpc

import (
	"errors"
	"net/http"

	"craftledger/crypto"
	"craftledger/native/registry"
)

const (
	codeRegistryInvalidParams = -32031
	codeRegistryNotFound      = -32032
	codeRegistryForbidden     = -32033
	codeRegistryConflict      = -32034
	codeRegistryInternal      = -32035
)

type registryIdentityParams struct {
	Caller       string `json:"caller"`
	MetadataHash string `json:"metadataHash"`
}

type registryModerateParams struct {
	Caller  string `json:"caller"`
	Subject string `json:"subject"`
	Role    uint8  `json:"role,omitempty"`
	Flag    bool   `json:"flag,omitempty"`
}

type registryLookupParams struct {
	Identity string `json:"identity"`
}

type profileJSON struct {
	Identity     string `json:"identity"`
	Role         string `json:"role"`
	MetadataHash string `json:"metadataHash"`
	Verified     bool   `json:"verified"`
	Blacklisted  bool   `json:"blacklisted"`
}

func profileToJSON(addr [20]byte, p *registry.Profile) *profileJSON {
	if p == nil {
		return nil
	}
	return &profileJSON{
		Identity:     crypto.NewAddress(crypto.CraftPrefix, addr[:]).String(),
		Role:         registry.RoleName(p.Role),
		MetadataHash: p.MetadataHash,
		Verified:     p.Verified,
		Blacklisted:  p.Blacklisted,
	}
}

func writeRegistryError(w http.ResponseWriter, id interface{}, err error) {
	switch {
	case errors.Is(err, registry.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, id, codeRegistryNotFound, "not_found", err.Error())
	case errors.Is(err, registry.ErrAlreadyRegistered):
		writeError(w, http.StatusConflict, id, codeRegistryConflict, "conflict", err.Error())
	case errors.Is(err, registry.ErrModerationForbidden):
		writeError(w, http.StatusForbidden, id, codeRegistryForbidden, "forbidden", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, id, codeRegistryInternal, "internal_error", err.Error())
	}
}

func (s *Server) handleRegistryRegister(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params registryIdentityParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRegistryInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := decodeAddressParam("caller", params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRegistryInvalidParams, "invalid_params", err.Error())
		return
	}
	profile, err := s.node.RegisterProfile(caller, params.MetadataHash)
	if err != nil {
		writeRegistryError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, profileToJSON(caller, profile))
}

func (s *Server) handleRegistryUpdateMetadata(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	if authErr := s.requireAuth(r); authErr != nil {
		writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
		return
	}
	var params registryIdentityParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRegistryInvalidParams, "invalid_params", err.Error())
		return
	}
	caller, err := decodeAddressParam("caller", params.Caller)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRegistryInvalidParams, "invalid_params", err.Error())
		return
	}
	profile, err := s.node.UpdateProfileMetadata(caller, params.MetadataHash)
	if err != nil {
		writeRegistryError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, profileToJSON(caller, profile))
}

func (s *Server) moderationHandler(op func([20]byte, [20]byte, registryModerateParams) (*registry.Profile, error)) handlerFunc {
	return func(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
		if authErr := s.requireAuth(r); authErr != nil {
			writeError(w, http.StatusUnauthorized, req.ID, authErr.Code, authErr.Message, authErr.Data)
			return
		}
		var params registryModerateParams
		if err := singleParam(req, &params); err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeRegistryInvalidParams, "invalid_params", err.Error())
			return
		}
		caller, err := decodeAddressParam("caller", params.Caller)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeRegistryInvalidParams, "invalid_params", err.Error())
			return
		}
		subject, err := decodeAddressParam("subject", params.Subject)
		if err != nil {
			writeError(w, http.StatusBadRequest, req.ID, codeRegistryInvalidParams, "invalid_params", err.Error())
			return
		}
		profile, err := op(caller, subject, params)
		if err != nil {
			writeRegistryError(w, req.ID, err)
			return
		}
		writeResult(w, req.ID, profileToJSON(subject, profile))
	}
}

func (s *Server) handleRegistrySetRole(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.moderationHandler(func(caller, subject [20]byte, params registryModerateParams) (*registry.Profile, error) {
		return s.node.SetProfileRole(caller, subject, params.Role)
	})(w, r, req)
}

func (s *Server) handleRegistrySetVerified(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.moderationHandler(func(caller, subject [20]byte, params registryModerateParams) (*registry.Profile, error) {
		return s.node.SetProfileVerified(caller, subject, params.Flag)
	})(w, r, req)
}

func (s *Server) handleRegistrySetBlacklisted(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	s.moderationHandler(func(caller, subject [20]byte, params registryModerateParams) (*registry.Profile, error) {
		return s.node.SetProfileBlacklisted(caller, subject, params.Flag)
	})(w, r, req)
}

func (s *Server) handleRegistryGetProfile(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params registryLookupParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRegistryInvalidParams, "invalid_params", err.Error())
		return
	}
	identity, err := decodeAddressParam("identity", params.Identity)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRegistryInvalidParams, "invalid_params", err.Error())
		return
	}
	profile, err := s.node.GetProfile(identity)
	if err != nil {
		writeRegistryError(w, req.ID, err)
		return
	}
	writeResult(w, req.ID, profileToJSON(identity, profile))
}

type ledgerAccountParams struct {
	Address string `json:"address"`
}

type accountJSON struct {
	Address      string `json:"address"`
	Nonce        uint64 `json:"nonce"`
	BalanceCRAFT string `json:"balanceCRAFT"`
	BalanceFORGE string `json:"balanceFORGE"`
}

func (s *Server) handleLedgerGetAccount(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	var params ledgerAccountParams
	if err := singleParam(req, &params); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRegistryInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := decodeAddressParam("address", params.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeRegistryInvalidParams, "invalid_params", err.Error())
		return
	}
	account, err := s.node.GetAccount(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeRegistryInternal, "internal_error", err.Error())
		return
	}
	writeResult(w, req.ID, accountJSON{
		Address:      crypto.NewAddress(crypto.CraftPrefix, addr[:]).String(),
		Nonce:        account.Nonce,
		BalanceCRAFT: account.BalanceCRAFT.String(),
		BalanceFORGE: account.BalanceFORGE.String(),
	})
}
