package rpc

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"craftledger/core"
	"craftledger/crypto"
	"craftledger/native/registry"
	"craftledger/storage"
)

func testBech32(fill byte) string {
	raw := bytes.Repeat([]byte{fill}, 20)
	return crypto.NewAddress(crypto.CraftPrefix, raw).String()
}

func toRaw(t *testing.T, addr string) [20]byte {
	t.Helper()
	decoded, err := crypto.DecodeAddress(addr)
	require.NoError(t, err)
	var out [20]byte
	copy(out[:], decoded.Bytes())
	return out
}

func newTestServer(t *testing.T) (*Server, *core.Node) {
	t.Helper()
	t.Setenv("CRAFT_RPC_TOKEN", "")
	node := core.NewNode(storage.NewMemDB())
	node.SetRegistryAdmin(toRaw(t, testBech32(0xAA)))
	require.NoError(t, node.InitializeMarket(toRaw(t, testBech32(0xEE))))
	require.NoError(t, node.Mint(toRaw(t, testBech32(0x11)), "CRAFT", big.NewInt(10_000)))
	return NewServer(node, nil), node
}

func call(t *testing.T, server *Server, method string, params interface{}, headers map[string]string) (*httptest.ResponseRecorder, RPCResponse) {
	t.Helper()
	encodedParams, err := json.Marshal(params)
	require.NoError(t, err)
	body, err := json.Marshal(RPCRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  []json.RawMessage{encodedParams},
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, req)

	var response RPCResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	return recorder, response
}

func TestRPCJobLifecycle(t *testing.T) {
	server, _ := newTestServer(t)
	finder := testBech32(0x11)
	artisan := testBech32(0x22)
	admin := testBech32(0xAA)

	_, resp := call(t, server, "registry_register", map[string]string{
		"caller": artisan, "metadataHash": "QmArtisan",
	}, nil)
	require.Nil(t, resp.Error)

	_, resp = call(t, server, "registry_setRole", map[string]interface{}{
		"caller": admin, "subject": artisan, "role": registry.RoleArtisan,
	}, nil)
	require.Nil(t, resp.Error)

	_, resp = call(t, server, "market_createJob", map[string]string{
		"finder": finder, "token": "CRAFT", "amount": "500",
	}, nil)
	require.Nil(t, resp.Error)
	result, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, float64(1), result["id"])

	_, resp = call(t, server, "market_assignArtisan", map[string]interface{}{
		"id": 1, "caller": finder, "artisan": artisan,
	}, nil)
	require.Nil(t, resp.Error)

	_, resp = call(t, server, "market_getJob", map[string]uint64{"id": 1}, nil)
	require.Nil(t, resp.Error)
	job, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "assigned", job["status"])
	require.Equal(t, "500", job["amount"])
	require.Equal(t, artisan, job["artisan"])

	_, resp = call(t, server, "ledger_getAccount", map[string]string{"address": finder}, nil)
	require.Nil(t, resp.Error)
	account, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, "9500", account["balanceCRAFT"])
}

func TestRPCUnknownJobReturns404(t *testing.T) {
	server, _ := newTestServer(t)
	recorder, resp := call(t, server, "market_getJob", map[string]uint64{"id": 42}, nil)
	require.Equal(t, http.StatusNotFound, recorder.Code)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMarketNotFound, resp.Error.Code)
}

func TestRPCInvalidStateMapsToConflict(t *testing.T) {
	server, _ := newTestServer(t)
	finder := testBech32(0x11)

	_, resp := call(t, server, "market_createJob", map[string]string{
		"finder": finder, "token": "CRAFT", "amount": "100",
	}, nil)
	require.Nil(t, resp.Error)

	recorder, resp := call(t, server, "market_startJob", map[string]interface{}{
		"id": 1, "caller": finder,
	}, nil)
	require.Equal(t, http.StatusConflict, recorder.Code)
	require.NotNil(t, resp.Error)
	require.Equal(t, codeMarketConflict, resp.Error.Code)
}

func TestRPCInvalidParams(t *testing.T) {
	server, _ := newTestServer(t)

	recorder, resp := call(t, server, "market_createJob", map[string]string{
		"finder": "not-an-address", "token": "CRAFT", "amount": "100",
	}, nil)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	require.Equal(t, codeMarketInvalidParams, resp.Error.Code)

	recorder, resp = call(t, server, "market_createJob", map[string]string{
		"finder": testBech32(0x11), "token": "CRAFT", "amount": "lots",
	}, nil)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
	require.Equal(t, codeMarketInvalidParams, resp.Error.Code)
}

func TestRPCMethodNotFound(t *testing.T) {
	server, _ := newTestServer(t)
	recorder, resp := call(t, server, "market_unknownMethod", map[string]string{}, nil)
	require.Equal(t, http.StatusNotFound, recorder.Code)
	require.Equal(t, codeMethodNotFound, resp.Error.Code)
}

func TestRPCRejectsNonPost(t *testing.T) {
	server, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, req)
	require.Equal(t, http.StatusMethodNotAllowed, recorder.Code)
}

func TestRPCBearerAuth(t *testing.T) {
	t.Setenv("CRAFT_RPC_TOKEN", "secret-token")
	node := core.NewNode(storage.NewMemDB())
	require.NoError(t, node.InitializeMarket(toRaw(t, testBech32(0xEE))))
	server := NewServer(node, nil)

	recorder, resp := call(t, server, "market_createJob", map[string]string{
		"finder": testBech32(0x11), "token": "CRAFT", "amount": "100",
	}, nil)
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	recorder, resp = call(t, server, "market_createJob", map[string]string{
		"finder": testBech32(0x11), "token": "CRAFT", "amount": "100",
	}, map[string]string{"Authorization": "Bearer wrong-token"})
	require.Equal(t, http.StatusUnauthorized, recorder.Code)
	require.Equal(t, codeUnauthorized, resp.Error.Code)

	// Correct token clears auth; the call then fails on business rules
	// (no balance), not on authorization.
	recorder, resp = call(t, server, "market_createJob", map[string]string{
		"finder": testBech32(0x11), "token": "CRAFT", "amount": "100",
	}, map[string]string{"Authorization": "Bearer secret-token"})
	require.Equal(t, http.StatusConflict, recorder.Code)
	require.Equal(t, codeMarketConflict, resp.Error.Code)

	// Reads stay open without a token.
	recorder, _ = call(t, server, "market_getJob", map[string]uint64{"id": 42}, nil)
	require.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestRPCRateLimit(t *testing.T) {
	server, _ := newTestServer(t)
	var lastCode int
	var lastResp RPCResponse
	for i := 0; i < rateBurst+5; i++ {
		recorder, resp := call(t, server, "market_getJob", map[string]uint64{"id": 1}, nil)
		lastCode = recorder.Code
		lastResp = resp
	}
	require.Equal(t, http.StatusTooManyRequests, lastCode)
	require.NotNil(t, lastResp.Error)
	require.Equal(t, codeRateLimited, lastResp.Error.Code)
}

func TestRPCRejectsMalformedEnvelope(t *testing.T) {
	server, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("{not json")))
	recorder := httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, req)
	require.Equal(t, http.StatusBadRequest, recorder.Code)

	body, err := json.Marshal(map[string]interface{}{"jsonrpc": "1.0", "id": 1, "method": "market_getJob"})
	require.NoError(t, err)
	req = httptest.NewRequest(http.MethodPost, "/", bytes.NewReader(body))
	recorder = httptest.NewRecorder()
	server.Handler().ServeHTTP(recorder, req)
	require.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestRPCRegistryModeration(t *testing.T) {
	server, _ := newTestServer(t)
	admin := testBech32(0xAA)
	subject := testBech32(0x33)
	stranger := testBech32(0x44)

	_, resp := call(t, server, "registry_register", map[string]string{
		"caller": subject, "metadataHash": "QmSubject",
	}, nil)
	require.Nil(t, resp.Error)

	recorder, resp := call(t, server, "registry_setVerified", map[string]interface{}{
		"caller": stranger, "subject": subject, "flag": true,
	}, nil)
	require.Equal(t, http.StatusForbidden, recorder.Code)
	require.Equal(t, codeRegistryForbidden, resp.Error.Code)

	_, resp = call(t, server, "registry_setVerified", map[string]interface{}{
		"caller": admin, "subject": subject, "flag": true,
	}, nil)
	require.Nil(t, resp.Error)

	_, resp = call(t, server, "registry_getProfile", map[string]string{"identity": subject}, nil)
	require.Nil(t, resp.Error)
	profile, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	require.Equal(t, true, profile["verified"])
	require.Equal(t, "finder", profile["role"])

	recorder, resp = call(t, server, "registry_register", map[string]string{
		"caller": subject, "metadataHash": "QmAgain",
	}, nil)
	require.Equal(t, http.StatusConflict, recorder.Code)
	require.Equal(t, codeRegistryConflict, resp.Error.Code)
}

func TestRPCJobJSONOmitsUnsetArtisan(t *testing.T) {
	server, _ := newTestServer(t)
	finder := testBech32(0x11)

	_, resp := call(t, server, "market_createJob", map[string]string{
		"finder": finder, "token": "CRAFT", "amount": "100",
	}, nil)
	require.Nil(t, resp.Error)

	_, resp = call(t, server, "market_getJob", map[string]uint64{"id": 1}, nil)
	require.Nil(t, resp.Error)
	job, ok := resp.Result.(map[string]interface{})
	require.True(t, ok)
	_, present := job["artisan"]
	require.False(t, present, fmt.Sprintf("open job must omit artisan, got %v", job["artisan"]))
}
