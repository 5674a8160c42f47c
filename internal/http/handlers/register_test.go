package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hermod-im/server/internal/keyring"
	"github.com/hermod-im/server/internal/middleware"
	"github.com/hermod-im/server/internal/phone"
	"github.com/hermod-im/server/internal/register"
	"github.com/hermod-im/server/internal/sms"
	"github.com/hermod-im/server/internal/verify"
)

const testDomain = "example.org"

type nullBinder struct{}

func (nullBinder) BindFingerprint(ctx context.Context, identity, domain, fingerprintHex string) error {
	return nil
}

func newTestHandler(t *testing.T) (*RegisterHandler, *sms.Stub) {
	t.Helper()

	signer, err := openpgp.NewEntity("Server", "", "admin@"+testDomain, nil)
	require.NoError(t, err)
	kr := keyring.NewFromEntities(map[string]*openpgp.Entity{testDomain: signer})

	stub := sms.NewStub("hermod-test")
	service := register.NewService(
		verify.NewMemoryStore(5*time.Minute, 6),
		stub,
		kr,
		nullBinder{},
		nil,
		register.NewStats(prometheus.NewRegistry()),
	)

	domains := []register.DomainInfo{{Domain: testDomain, RegisterEnabled: true}}
	return NewRegisterHandler(service, domains, 5*time.Minute, nil), stub
}

func postRegister(t *testing.T, h *RegisterHandler, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	h.HandleRegister(rec, req)
	return rec
}

func TestHandleRegister_phoneStep(t *testing.T) {
	h, stub := newTestHandler(t)

	rec := postRegister(t, h, registerRequest{Phone: "+16505550100"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Instructions string `json:"instructions"`
		From         string `json:"from"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "hermod-test", resp.From)
	assert.NotEmpty(t, resp.Instructions)

	require.Len(t, stub.Deliveries(), 1)
	assert.Equal(t, "+16505550100", stub.Deliveries()[0].Phone)
}

func TestHandleRegister_fullFlow(t *testing.T) {
	h, stub := newTestHandler(t)

	rec := postRegister(t, h, registerRequest{Phone: "+16505550100"})
	require.Equal(t, http.StatusOK, rec.Code)
	code := stub.Deliveries()[0].Code

	identity := phone.Identity("+16505550100", testDomain)
	entity, err := openpgp.NewEntity("User", "", identity, nil)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, entity.Serialize(&buf))
	keyB64 := base64.StdEncoding.EncodeToString(buf.Bytes())

	rec = postRegister(t, h, registerRequest{Code: code, PublicKey: keyB64})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		FormType  string `json:"form_type"`
		PublicKey string `json:"publickey"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "hermod:register#code", resp.FormType)
	assert.NotEmpty(t, resp.PublicKey)
}

func TestHandleRegister_failureMapping(t *testing.T) {
	h, stub := newTestHandler(t)

	// Bad phone number.
	rec := postRegister(t, h, registerRequest{Phone: "bogus"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Bad phone number.")

	// Empty request.
	rec = postRegister(t, h, registerRequest{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Wrong code.
	rec = postRegister(t, h, registerRequest{Phone: "+16505550100"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, stub.Deliveries())

	entity, err := openpgp.NewEntity("User", "", phone.Identity("+16505550100", testDomain), nil)
	require.NoError(t, err)
	var buf bytes.Buffer
	require.NoError(t, entity.Serialize(&buf))
	keyB64 := base64.StdEncoding.EncodeToString(buf.Bytes())

	rec = postRegister(t, h, registerRequest{Code: "000000", PublicKey: keyB64})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Invalid verification code.")

	// Reissue inside the window is throttled with a Retry-After hint.
	rec = postRegister(t, h, registerRequest{Phone: "+16505550100"})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "300", rec.Header().Get("Retry-After"))
	assert.Contains(t, rec.Body.String(), "Too many attempts.")
}

func TestHandleRegister_ipLimiter(t *testing.T) {
	h, _ := newTestHandler(t)
	// Rebuild with an injected one-shot limiter.
	h = NewRegisterHandler(h.service, []register.DomainInfo{{Domain: testDomain, RegisterEnabled: true}},
		5*time.Minute, middleware.NewKeyLimiter(0.001, 1, time.Minute))

	rec := postRegister(t, h, registerRequest{Phone: "+16505550100"})
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = postRegister(t, h, registerRequest{Phone: "+16505550101"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Body.String(), "rate limit exceeded")
}

func TestHandleRegister_unknownDomain(t *testing.T) {
	h, _ := newTestHandler(t)

	rec := postRegister(t, h, registerRequest{Domain: "elsewhere.net", Phone: "+16505550100"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "unknown domain")
}

func TestHandleRegister_invalidBody(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodPost, "/register", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.HandleRegister(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleInstructions(t *testing.T) {
	h, _ := newTestHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/register", nil)
	rec := httptest.NewRecorder()
	h.HandleInstructions(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Instructions string   `json:"instructions"`
		Fields       []string `json:"fields"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Instructions)
	assert.Contains(t, resp.Fields, "phone")
}

func TestHealthHandler(t *testing.T) {
	rec := httptest.NewRecorder()
	NewHealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"ok": true}`, rec.Body.String())
}
