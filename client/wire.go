/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package client

type customPolicyRequest struct {
	WindowMS    int64  `json:"window_ms"`
	MaxRequests int    `json:"max_requests"`
	Message     string `json:"message,omitempty"`
}

type checkResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	PolicyID  string `json:"policy_id"`
	LimitInfo *struct {
		Limit     int   `json:"limit"`
		Remaining int   `json:"remaining"`
		Reset     int64 `json:"reset"`
	} `json:"limit_info"`
}

type rateLimitedResponse struct {
	Error      string `json:"error"`
	RetryAfter int    `json:"retry_after"`
}

type policyResponse struct {
	Name        string `json:"name"`
	WindowMS    int64  `json:"window_ms"`
	MaxRequests int    `json:"max_requests"`
	Message     string `json:"message"`
	Algorithm   string `json:"algorithm"`
}

type policiesResponse struct {
	Policies []policyResponse `json:"policies"`
}
