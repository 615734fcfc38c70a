package provider

import (
	"net/http"
	"regexp"

	"github.com/agentmesh/swarmkit/pkg/swarmerrors"
)

// toolHistoryPatterns are the exact 400-body phrases that trigger orphan
// tool-call pruning instead of a normal non-retryable failure (§4.3, §6).
var toolHistoryPatterns = []*regexp.Regexp{
	regexp.MustCompile(`tool_use block must have corresponding tool_result`),
	regexp.MustCompile(`tool_use_id not found`),
	regexp.MustCompile(`must immediately follow`),
}

// IsToolHistoryBody reports whether a 400 response body matches one of the
// recognized tool-history phrases.
func IsToolHistoryBody(body string) bool {
	for _, re := range toolHistoryPatterns {
		if re.MatchString(body) {
			return true
		}
	}
	return false
}

// ClassifyHTTPError turns an HTTP status code and body into the closed
// provider error taxonomy (§6): 400 tool-history bodies recover via pruning;
// other 4xx are non-retryable; 429/5xx are retryable; everything else falls
// back to a non-retryable invalid_request.
func ClassifyHTTPError(statusCode int, body string) *swarmerrors.ProviderError {
	switch {
	case statusCode == http.StatusBadRequest && IsToolHistoryBody(body):
		return swarmerrors.NewProviderError(statusCode, swarmerrors.KindToolHistory, false, body, nil)
	case statusCode == http.StatusUnauthorized:
		return swarmerrors.NewProviderError(statusCode, swarmerrors.KindUnauthorized, false, body, nil)
	case statusCode == http.StatusForbidden:
		return swarmerrors.NewProviderError(statusCode, swarmerrors.KindForbidden, false, body, nil)
	case statusCode == http.StatusTooManyRequests:
		return swarmerrors.NewProviderError(statusCode, swarmerrors.KindRateLimited, true, body, nil)
	case statusCode >= 400 && statusCode < 500:
		return swarmerrors.NewProviderError(statusCode, swarmerrors.KindInvalidRequest, false, body, nil)
	case statusCode == 529:
		return swarmerrors.NewProviderError(statusCode, swarmerrors.KindServerError, true, body, nil)
	case statusCode >= 500:
		return swarmerrors.NewProviderError(statusCode, swarmerrors.KindServerError, true, body, nil)
	default:
		return swarmerrors.NewProviderError(statusCode, swarmerrors.KindInvalidRequest, false, body, nil)
	}
}

// ClassifyTransportError wraps a network-level error (dial/timeout/EOF) as a
// retryable transport failure.
func ClassifyTransportError(err error) *swarmerrors.ProviderError {
	return swarmerrors.NewProviderError(0, swarmerrors.KindTransport, true, err.Error(), err)
}
