/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/acronis/go-ratelimitd/httpserver/middleware"
	"github.com/acronis/go-ratelimitd/ratelimit"
	"github.com/acronis/go-ratelimitd/restapi"
)

// LimitInfo describes the state of the client's quota after the admitted request.
type LimitInfo struct {
	Limit     int   `json:"limit"`
	Remaining int   `json:"remaining"`
	Reset     int64 `json:"reset"`
}

// CheckResponse is a body of the response for the admitted request.
type CheckResponse struct {
	Success   bool       `json:"success"`
	Message   string     `json:"message"`
	PolicyID  string     `json:"policy_id,omitempty"`
	LimitInfo *LimitInfo `json:"limit_info,omitempty"`
}

// PolicyResponse describes a registered policy.
type PolicyResponse struct {
	Name        string `json:"name"`
	WindowMS    int64  `json:"window_ms"`
	MaxRequests int    `json:"max_requests"`
	Message     string `json:"message"`
	Algorithm   string `json:"algorithm"`
}

// PoliciesResponse is a body of the response with registered policies.
type PoliciesResponse struct {
	Policies []PolicyResponse `json:"policies"`
}

func newPolicyResponse(p ratelimit.Policy) PolicyResponse {
	return PolicyResponse{
		Name:        p.Name,
		WindowMS:    p.Window.Milliseconds(),
		MaxRequests: p.MaxRequests,
		Message:     p.Message,
		Algorithm:   string(p.Algorithm),
	}
}

// admittedHandler responds to the request that passed the rate limit check of the policy.
func admittedHandler(policy ratelimit.Policy) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		resp := CheckResponse{Success: true, Message: fmt.Sprintf("Request allowed by %q policy.", policy.Name)}
		if policy.IsCustom() {
			resp.PolicyID = policy.Name
			resp.Message = "Request allowed by custom policy."
		}
		if decision, ok := middleware.GetRateLimitDecisionFromContext(r.Context()); ok {
			resp.LimitInfo = &LimitInfo{
				Limit:     decision.Limit,
				Remaining: decision.Remaining,
				Reset:     resetUnix(decision.Reset),
			}
		}
		restapi.RespondJSON(rw, resp, middleware.GetLoggerFromContext(r.Context()))
	})
}

func resetUnix(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

func respondPolicyNotFound(rw http.ResponseWriter, r *http.Request, policyName string) {
	apiErr := restapi.NewError(ErrDomain, ErrCodePolicyNotFound, "Rate limit policy not found.").
		AddContext("policy", policyName)
	restapi.RespondError(rw, http.StatusNotFound, apiErr, middleware.GetLoggerFromContext(r.Context()))
}
