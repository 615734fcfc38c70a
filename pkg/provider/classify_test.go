package provider

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentmesh/swarmkit/pkg/swarmerrors"
)

func TestIsToolHistoryBody_MatchesKnownPhrases(t *testing.T) {
	assert.True(t, IsToolHistoryBody("each tool_use block must have corresponding tool_result"))
	assert.True(t, IsToolHistoryBody("error: tool_use_id not found in history"))
	assert.True(t, IsToolHistoryBody("tool_result must immediately follow the tool_use"))
	assert.False(t, IsToolHistoryBody("invalid api key"))
}

func TestClassifyHTTPError_ToolHistoryBodyIsNonRetryableToolHistoryKind(t *testing.T) {
	perr := ClassifyHTTPError(http.StatusBadRequest, "tool_use_id not found")
	assert.Equal(t, swarmerrors.KindToolHistory, perr.Kind)
	assert.False(t, perr.Retryable)
}

func TestClassifyHTTPError_UnauthorizedAndForbiddenAreNonRetryable(t *testing.T) {
	assert.False(t, ClassifyHTTPError(http.StatusUnauthorized, "").Retryable)
	assert.Equal(t, swarmerrors.KindUnauthorized, ClassifyHTTPError(http.StatusUnauthorized, "").Kind)
	assert.False(t, ClassifyHTTPError(http.StatusForbidden, "").Retryable)
	assert.Equal(t, swarmerrors.KindForbidden, ClassifyHTTPError(http.StatusForbidden, "").Kind)
}

func TestClassifyHTTPError_RateLimitAndServerErrorsAreRetryable(t *testing.T) {
	assert.True(t, ClassifyHTTPError(http.StatusTooManyRequests, "").Retryable)
	assert.True(t, ClassifyHTTPError(http.StatusInternalServerError, "").Retryable)
	assert.True(t, ClassifyHTTPError(529, "").Retryable)
	assert.Equal(t, swarmerrors.KindServerError, ClassifyHTTPError(529, "").Kind)
}

func TestClassifyHTTPError_OtherFourXXIsNonRetryableInvalidRequest(t *testing.T) {
	perr := ClassifyHTTPError(http.StatusNotFound, "no such model")
	assert.False(t, perr.Retryable)
	assert.Equal(t, swarmerrors.KindInvalidRequest, perr.Kind)
}

func TestClassifyTransportError_IsRetryableAndWrapsOriginal(t *testing.T) {
	orig := errors.New("connection reset")
	perr := ClassifyTransportError(orig)
	assert.True(t, perr.Retryable)
	assert.Equal(t, swarmerrors.KindTransport, perr.Kind)
	assert.ErrorIs(t, perr, orig)
}
