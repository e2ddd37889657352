/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package api

import (
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/vasayxtx/go-glob"

	"github.com/acronis/go-ratelimitd/httpserver"
	"github.com/acronis/go-ratelimitd/httpserver/middleware"
	"github.com/acronis/go-ratelimitd/ratelimit"
)

// ErrDomain is the domain of errors returned by the service.
const ErrDomain = "RateLimiter"

// Error codes of the service.
const (
	ErrCodePolicyNotFound        = "policyNotFound"
	ErrCodeInvalidPolicy         = "invalidPolicy"
	ErrCodeTooManyCustomPolicies = "tooManyCustomPolicies"
	ErrCodeForbidden             = "forbidden"
)

// URL parameters.
const (
	URLParamPolicy     = "policy"
	URLParamIdentifier = "identifier"
)

// Opts represents options for the service routes.
type Opts struct {
	// RateLimit configures how checks are composed at the HTTP boundary (trusted clients, dry run, rejects metrics).
	RateLimit middleware.RateLimitOpts

	// AdminAddrs is a list of glob patterns of client addresses allowed to drop the state of clients.
	// Nobody is allowed if empty.
	AdminAddrs []string
}

// Handler serves the service routes. Policies are looked up in the explicitly passed registry.
type Handler struct {
	registry      *ratelimit.Registry
	rateLimitOpts middleware.RateLimitOpts
	isAdmin       []func(string) bool

	// checkHandlers caches rate-limited handlers per named policy.
	// Custom policies come and go, so their handlers are built per request.
	checkHandlers sync.Map
}

// NewHandler creates a new Handler.
func NewHandler(registry *ratelimit.Registry, opts Opts) *Handler {
	h := &Handler{registry: registry, rateLimitOpts: opts.RateLimit}
	for _, pattern := range opts.AdminAddrs {
		h.isAdmin = append(h.isAdmin, glob.Compile(pattern))
	}
	return h
}

// Routes returns a function that mounts the service routes on the router.
func (h *Handler) Routes() httpserver.Routes {
	return func(router chi.Router) {
		router.Get("/test/{"+URLParamPolicy+"}", h.testPolicy)
		router.Post("/custom", h.customPolicy)
		router.Get("/policies", h.listPolicies)
		router.Delete("/clients/{"+URLParamIdentifier+"}", h.forgetClient)
	}
}

// checkHandler returns a handler that checks the request against the policy and serves the admitted one.
// ratelimit.ErrPolicyNotFound is returned for unknown policies.
func (h *Handler) checkHandler(policyName string) (http.Handler, error) {
	if handler, ok := h.checkHandlers.Load(policyName); ok {
		return handler.(http.Handler), nil
	}
	lim, err := h.registry.Limiter(policyName)
	if err != nil {
		return nil, err
	}
	handler := middleware.RateLimitWithOpts(lim, ErrDomain, h.rateLimitOpts)(admittedHandler(lim.Policy()))
	if lim.Policy().IsCustom() {
		return handler, nil
	}
	actual, _ := h.checkHandlers.LoadOrStore(policyName, handler)
	return actual.(http.Handler), nil
}

func (h *Handler) allowedToAdminister(r *http.Request) bool {
	addr := middleware.GetRemoteAddrHost(r)
	for _, match := range h.isAdmin {
		if match(addr) {
			return true
		}
	}
	return false
}
