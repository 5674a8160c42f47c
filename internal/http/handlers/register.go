package handlers

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/hermod-im/server/internal/middleware"
	"github.com/hermod-im/server/internal/phone"
	"github.com/hermod-im/server/internal/register"
)

// RegisterHandler handles the registration endpoints
type RegisterHandler struct {
	service       *register.Service
	domains       map[string]register.DomainInfo
	defaultDomain string
	retryAfter    time.Duration
	ipLimiter     *middleware.KeyLimiter
}

// NewRegisterHandler creates a new register handler. retryAfter is the hint
// returned with throttled responses, normally the code TTL. ipLimiter may
// be nil to disable per-IP limiting; the per-phone limit is enforced by the
// code store itself.
func NewRegisterHandler(service *register.Service, domains []register.DomainInfo, retryAfter time.Duration, ipLimiter *middleware.KeyLimiter) *RegisterHandler {
	byName := make(map[string]register.DomainInfo, len(domains))
	for _, d := range domains {
		byName[strings.ToLower(d.Domain)] = d
	}
	defaultDomain := ""
	if len(domains) > 0 {
		defaultDomain = strings.ToLower(domains[0].Domain)
	}
	return &RegisterHandler{
		service:       service,
		domains:       byName,
		defaultDomain: defaultDomain,
		retryAfter:    retryAfter,
		ipLimiter:     ipLimiter,
	}
}

// registerRequest is the request body for POST /register
type registerRequest struct {
	Domain    string `json:"domain,omitempty"`
	Phone     string `json:"phone,omitempty"`
	Code      string `json:"code,omitempty"`
	PublicKey string `json:"publickey,omitempty"`
}

// HandleRegister handles POST /register
func (h *RegisterHandler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondWithError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	dom, ok := h.resolveDomain(req.Domain)
	if !ok {
		respondWithError(w, http.StatusBadRequest, "unknown domain")
		return
	}

	if !h.ipLimiter.Allow(middleware.GetIPKey(r), time.Now()) {
		respondWithError(w, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	request := register.Request{
		Kind:      register.KindSet,
		Phone:     strings.TrimSpace(req.Phone),
		Code:      strings.TrimSpace(req.Code),
		PublicKey: strings.TrimSpace(req.PublicKey),
	}

	result, err := h.service.Process(r.Context(), request, middleware.GetPrincipal(r.Context()), dom)
	if err != nil {
		h.respondFailure(w, req, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// HandleInstructions handles GET /register
func (h *RegisterHandler) HandleInstructions(w http.ResponseWriter, r *http.Request) {
	dom, ok := h.resolveDomain(r.URL.Query().Get("domain"))
	if !ok {
		respondWithError(w, http.StatusBadRequest, "unknown domain")
		return
	}

	result, err := h.service.Process(r.Context(), register.Request{Kind: register.KindGet}, middleware.GetPrincipal(r.Context()), dom)
	if err != nil {
		h.respondFailure(w, registerRequest{}, err)
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

func (h *RegisterHandler) resolveDomain(name string) (register.DomainInfo, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = h.defaultDomain
	}
	dom, ok := h.domains[name]
	return dom, ok
}

// respondFailure translates a registration failure into an HTTP response.
func (h *RegisterHandler) respondFailure(w http.ResponseWriter, req registerRequest, err error) {
	var f *register.Failure
	if !errors.As(err, &f) {
		log.Printf("registration failed: %v", err)
		respondWithError(w, http.StatusInternalServerError, "internal error")
		return
	}

	if req.Phone != "" {
		log.Printf("registration rejected for %s: %s", phone.Mask(req.Phone), f.Message)
	}

	switch f.Class {
	case register.ClassBadRequest:
		respondWithError(w, http.StatusBadRequest, f.Message)
	case register.ClassNotAuthorized:
		respondWithError(w, http.StatusUnauthorized, f.Message)
	case register.ClassServiceUnavailable:
		if h.retryAfter > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(h.retryAfter.Seconds())))
		}
		respondWithError(w, http.StatusServiceUnavailable, f.Message)
	case register.ClassNotAcceptable:
		respondWithError(w, http.StatusNotAcceptable, f.Message)
	default:
		respondWithError(w, http.StatusInternalServerError, f.Message)
	}
}

// respondWithError sends a JSON error response
func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{"error": message})
}

// respondWithJSON sends a JSON response
func respondWithJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}
