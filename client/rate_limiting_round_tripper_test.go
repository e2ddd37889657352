/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRateLimitingRoundTripper(t *testing.T) {
	_, err := NewRateLimitingRoundTripper(http.DefaultTransport, -1)
	require.EqualError(t, err, "rate limit cannot be negative")

	_, err = NewRateLimitingRoundTripperWithOpts(http.DefaultTransport, 1, RateLimitingRoundTripperOpts{Burst: -1})
	require.EqualError(t, err, "burst must be positive")

	rt, err := NewRateLimitingRoundTripper(http.DefaultTransport, 10)
	require.NoError(t, err)
	require.Equal(t, DefaultRateLimitingBurst, rt.Burst)
	require.Equal(t, DefaultRateLimitingWaitTimeout, rt.WaitTimeout)
	require.False(t, rt.PauseOnExhaustedQuota)
}

func TestRateLimitingRoundTripper_Pacing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		_, _ = rw.Write([]byte("ok"))
	}))
	defer srv.Close()

	rt, err := NewRateLimitingRoundTripper(http.DefaultTransport, 20)
	require.NoError(t, err)
	c := &http.Client{Transport: rt}

	const reqsNum = 5
	start := time.Now()
	for i := 0; i < reqsNum; i++ {
		resp, err := c.Get(srv.URL)
		require.NoError(t, err)
		_ = resp.Body.Close()
	}
	// The first request takes the only token of the burst, others wait 50ms each.
	require.GreaterOrEqual(t, time.Since(start), (reqsNum-1)*50*time.Millisecond-10*time.Millisecond)
}

func TestRateLimitingRoundTripper_WaitTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	rt, err := NewRateLimitingRoundTripperWithOpts(http.DefaultTransport, 1,
		RateLimitingRoundTripperOpts{WaitTimeout: 10 * time.Millisecond})
	require.NoError(t, err)
	c := &http.Client{Transport: rt}

	resp, err := c.Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()

	_, err = c.Get(srv.URL)
	var waitErr *RateLimitingWaitError
	require.ErrorAs(t, err, &waitErr)
}

func TestRateLimitingRoundTripper_CanceledContext(t *testing.T) {
	rt, err := NewRateLimitingRoundTripper(http.DefaultTransport, 1)
	require.NoError(t, err)
	rt.pausedUntil = time.Now().Add(time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://localhost", nil)
	require.NoError(t, err)
	_, err = rt.RoundTrip(req)
	require.ErrorIs(t, err, context.Canceled)
	var waitErr *RateLimitingWaitError
	require.NotErrorAs(t, err, &waitErr)
}

func TestRateLimitingRoundTripper_PauseOnExhaustedQuota(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		setHeader func(h http.Header)
		status    int
		wantPause time.Duration
	}{
		{
			name: "remaining is zero",
			setHeader: func(h http.Header) {
				h.Set(HeaderRateLimitRemaining, "0")
				h.Set(HeaderRateLimitReset, strconv.FormatInt(now.Add(time.Minute).Unix(), 10))
			},
			status:    http.StatusOK,
			wantPause: time.Minute,
		},
		{
			name: "rejected with retry-after",
			setHeader: func(h http.Header) {
				h.Set(HeaderRetryAfter, "30")
			},
			status:    http.StatusTooManyRequests,
			wantPause: 30 * time.Second,
		},
		{
			name: "quota is left",
			setHeader: func(h http.Header) {
				h.Set(HeaderRateLimitRemaining, "1")
				h.Set(HeaderRateLimitReset, strconv.FormatInt(now.Add(time.Minute).Unix(), 10))
			},
			status: http.StatusOK,
		},
		{
			name:      "rejected without retry-after",
			setHeader: func(h http.Header) {},
			status:    http.StatusTooManyRequests,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
				tt.setHeader(rw.Header())
				rw.WriteHeader(tt.status)
			}))
			defer srv.Close()

			rt, err := NewRateLimitingRoundTripperWithOpts(http.DefaultTransport, 0,
				RateLimitingRoundTripperOpts{WaitTimeout: 10 * time.Second, PauseOnExhaustedQuota: true})
			require.NoError(t, err)
			rt.now = func() time.Time { return now }
			c := &http.Client{Transport: rt}

			resp, err := c.Get(srv.URL)
			require.NoError(t, err)
			_ = resp.Body.Close()
			require.Equal(t, tt.wantPause, rt.pauseLeft())

			if tt.wantPause > rt.WaitTimeout {
				_, err = c.Get(srv.URL)
				var waitErr *RateLimitingWaitError
				require.ErrorAs(t, err, &waitErr)
				require.ErrorContains(t, err, "quota is exhausted")
			}
		})
	}
}

func TestParseRetryAfter(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		val    string
		want   time.Duration
		wantOK bool
	}{
		{val: "", wantOK: false},
		{val: "5", want: 5 * time.Second, wantOK: true},
		{val: "-1", wantOK: false},
		{val: "soon", wantOK: false},
		{val: now.Add(time.Minute).Format(http.TimeFormat), want: time.Minute, wantOK: true},
		{val: now.Add(-time.Minute).Format(http.TimeFormat), want: 0, wantOK: true},
	}
	for _, tt := range tests {
		t.Run(tt.val, func(t *testing.T) {
			h := http.Header{}
			if tt.val != "" {
				h.Set(HeaderRetryAfter, tt.val)
			}
			got, ok := parseRetryAfter(h, now)
			require.Equal(t, tt.wantOK, ok)
			require.Equal(t, tt.want, got)
		})
	}
}
