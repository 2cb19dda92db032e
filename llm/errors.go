package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/BaSui01/aiorch/types"
)

// ClassifyStatus turns an upstream HTTP failure into a Transient or Permanent error.
func ClassifyStatus(provider string, status int, err error) error {
	msg := fmt.Sprintf("%s returned HTTP %d", provider, status)
	switch {
	case status == http.StatusTooManyRequests:
		return types.NewTransientError(msg).WithCode(types.ErrRateLimited).WithCause(err)
	case status == http.StatusRequestTimeout, status == http.StatusConflict, status >= 500:
		return types.NewTransientError(msg).WithCode(types.ErrUpstreamError).WithCause(err)
	default:
		return types.NewPermanentError(msg).WithCode(types.ErrGenerationFailed).WithCause(err)
	}
}

// ClassifyTransport classifies failures that carry no HTTP status. Context errors are
// returned untouched so callers can tell a deadline from a cancellation.
func ClassifyTransport(provider string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return types.NewTransientError(provider + " unreachable").
			WithCode(types.ErrServiceUnavailable).WithCause(err)
	}
	return types.NewPermanentError(provider + " request failed").WithCause(err)
}
