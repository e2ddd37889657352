/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package middleware

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/acronis/go-ratelimitd/log/logtest"
	"github.com/acronis/go-ratelimitd/ratelimit"
)

func TestContext(t *testing.T) {
	ctx := context.Background()
	require.Empty(t, GetRequestIDFromContext(ctx))
	require.Nil(t, GetLoggerFromContext(ctx))
	require.Nil(t, GetLoggingParamsFromContext(ctx))
	require.True(t, GetRequestStartTimeFromContext(ctx).IsZero())
	_, ok := GetRateLimitDecisionFromContext(ctx)
	require.False(t, ok)

	logger := logtest.NewRecorder()
	lp := &LoggingParams{}
	startTime := time.Now()
	ctx = NewContextWithRequestID(ctx, "ext-id")
	ctx = NewContextWithInternalRequestID(ctx, "int-id")
	ctx = NewContextWithLogger(ctx, logger)
	ctx = NewContextWithLoggingParams(ctx, lp)
	ctx = NewContextWithRequestStartTime(ctx, startTime)

	require.Equal(t, "ext-id", GetRequestIDFromContext(ctx))
	require.Equal(t, "int-id", GetInternalRequestIDFromContext(ctx))
	require.Same(t, logger, GetLoggerFromContext(ctx))
	require.Same(t, lp, GetLoggingParamsFromContext(ctx))
	require.Equal(t, startTime, GetRequestStartTimeFromContext(ctx))

	decision := ratelimit.Decision{Limit: 5, Remaining: 4, Policy: "auth"}
	ctx = NewContextWithRateLimitDecision(ctx, decision)
	gotDecision, ok := GetRateLimitDecisionFromContext(ctx)
	require.True(t, ok)
	require.Equal(t, decision, gotDecision)
}
