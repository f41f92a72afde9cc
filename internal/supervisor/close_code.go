package supervisor

import "ai-dashboard-client/internal/constant"

type CloseClass int

const (
	// CloseRetryable closes schedule a reconnect with backoff.
	CloseRetryable CloseClass = iota
	// CloseClean is a normal shutdown; nothing is retried.
	CloseClean
	// CloseAuthRejected is terminal and forces re-authentication.
	CloseAuthRejected
)

func (c CloseClass) String() string {
	switch c {
	case CloseClean:
		return "clean"
	case CloseAuthRejected:
		return "auth_rejected"
	default:
		return "retryable"
	}
}

// ClassifyClose maps a close code to how the supervisor reacts to it.
func ClassifyClose(code int) CloseClass {
	switch code {
	case constant.CloseNormal:
		return CloseClean
	case constant.ClosePolicyViolation,
		constant.CloseInternalError,
		constant.CloseTokenInvalid,
		constant.CloseUserTokenMismatch:
		return CloseAuthRejected
	default:
		return CloseRetryable
	}
}
