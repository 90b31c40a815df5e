package server

import (
	"errors"
	"net"
	"strings"

	"github.com/powens/tinyretro/internal/board"
)

// Rejection tells a session that one of its actions was refused. It is only
// sent when rejections are enabled, and only to the session that sent the
// action.
type Rejection struct {
	Type    string `json:"type"`
	Action  string `json:"action,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// errRateLimited is reported for frames discarded by the session limiter.
var errRateLimited = errors.New("rate limit exceeded")

const codeRateLimited = "rate_limited"

func newRejection(action string, err error) Rejection {
	var decodeErr *board.DecodeError
	if action == "" && errors.As(err, &decodeErr) {
		action = decodeErr.Type
	}
	code := board.Code(err)
	if errors.Is(err, errRateLimited) {
		code = codeRateLimited
	}
	return Rejection{
		Type:    "Rejected",
		Action:  action,
		Code:    code,
		Message: err.Error(),
	}
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	if errors.Is(err, net.ErrClosed) {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe") ||
		strings.Contains(errStr, "connection reset by peer")
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
