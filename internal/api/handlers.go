/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/acronis/go-ratelimitd/httpserver/middleware"
	"github.com/acronis/go-ratelimitd/log"
	"github.com/acronis/go-ratelimitd/ratelimit"
	"github.com/acronis/go-ratelimitd/restapi"
)

// CustomPolicyRequest is a body of the request for checking the client against a custom policy.
type CustomPolicyRequest struct {
	WindowMS    int64  `json:"window_ms"`
	MaxRequests int    `json:"max_requests"`
	Message     string `json:"message"`
}

func (h *Handler) testPolicy(rw http.ResponseWriter, r *http.Request) {
	policyName := chi.URLParam(r, URLParamPolicy)
	handler, err := h.checkHandler(policyName)
	if err != nil {
		h.respondLookupError(rw, r, policyName, err)
		return
	}
	handler.ServeHTTP(rw, r)
}

func (h *Handler) customPolicy(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())

	var req CustomPolicyRequest
	if err := restapi.DecodeRequestJSON(r, &req); err != nil {
		restapi.RespondMalformedRequestOrInternalError(rw, ErrDomain, err, logger)
		return
	}
	if req.WindowMS <= 0 || req.MaxRequests <= 0 {
		apiErr := restapi.NewError(ErrDomain, restapi.ErrCodeBadRequest, "window_ms and max_requests must be positive integers.")
		restapi.RespondError(rw, http.StatusBadRequest, apiErr, logger)
		return
	}

	policyID, err := h.registry.RegisterCustomPolicy(time.Duration(req.WindowMS)*time.Millisecond, req.MaxRequests, req.Message)
	if err != nil {
		if errors.Is(err, ratelimit.ErrInvalidPolicy) {
			apiErr := restapi.NewError(ErrDomain, ErrCodeInvalidPolicy, err.Error())
			restapi.RespondError(rw, http.StatusBadRequest, apiErr, logger)
			return
		}
		if errors.Is(err, ratelimit.ErrTooManyCustomPolicies) {
			apiErr := restapi.NewError(ErrDomain, ErrCodeTooManyCustomPolicies,
				"Too many custom policies are in use, try one of the existing policies or retry later.")
			restapi.RespondError(rw, http.StatusBadRequest, apiErr, logger)
			return
		}
		if logger != nil {
			logger.Error("custom policy registration failed", log.Error(err))
		}
		restapi.RespondInternalError(rw, ErrDomain, logger)
		return
	}

	handler, err := h.checkHandler(string(policyID))
	if err != nil {
		h.respondLookupError(rw, r, string(policyID), err)
		return
	}
	handler.ServeHTTP(rw, r)
}

func (h *Handler) listPolicies(rw http.ResponseWriter, r *http.Request) {
	policies := h.registry.Policies()
	resp := PoliciesResponse{Policies: make([]PolicyResponse, 0, len(policies))}
	for _, p := range policies {
		resp.Policies = append(resp.Policies, newPolicyResponse(p))
	}
	restapi.RespondJSON(rw, resp, middleware.GetLoggerFromContext(r.Context()))
}

func (h *Handler) forgetClient(rw http.ResponseWriter, r *http.Request) {
	logger := middleware.GetLoggerFromContext(r.Context())
	identifier := chi.URLParam(r, URLParamIdentifier)
	if !h.allowedToAdminister(r) {
		if logger != nil {
			logger.Warn("dropping client state is forbidden for the caller", log.ClientKey(identifier),
				log.String("caller", middleware.GetRemoteAddrHost(r)))
		}
		apiErr := restapi.NewError(ErrDomain, ErrCodeForbidden, "Dropping client state is not allowed from this address.")
		restapi.RespondError(rw, http.StatusForbidden, apiErr, logger)
		return
	}
	if err := h.registry.Forget(r.Context(), identifier); err != nil {
		if logger != nil {
			logger.Error("forgetting client failed", log.Error(err), log.ClientKey(identifier))
		}
		restapi.RespondInternalError(rw, ErrDomain, logger)
		return
	}
	if logger != nil {
		logger.Info("client rate limit state dropped", log.ClientKey(identifier))
	}
	rw.WriteHeader(http.StatusNoContent)
}

func (h *Handler) respondLookupError(rw http.ResponseWriter, r *http.Request, policyName string, err error) {
	if errors.Is(err, ratelimit.ErrPolicyNotFound) {
		respondPolicyNotFound(rw, r, policyName)
		return
	}
	logger := middleware.GetLoggerFromContext(r.Context())
	if logger != nil {
		logger.Error("policy lookup failed", log.Error(err), log.Policy(policyName))
	}
	restapi.RespondInternalError(rw, ErrDomain, logger)
}
