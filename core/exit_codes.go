package core

// Process exit codes. Signal-based exits follow the 128 + signal convention.
const (
	ExitCodeSuccess = 0
	ExitCodeError   = 1

	// ExitCodeConfig is returned when configuration cannot be loaded or validated.
	ExitCodeConfig = 2

	ExitCodeSIGINT  = 130 // 128 + SIGINT
	ExitCodeSIGTERM = 143 // 128 + SIGTERM
)

// ExitCodeName returns a human-readable name for an exit code.
func ExitCodeName(code int) string {
	switch code {
	case ExitCodeSuccess:
		return "success"
	case ExitCodeError:
		return "error"
	case ExitCodeConfig:
		return "configuration error"
	case ExitCodeSIGINT:
		return "interrupted (SIGINT)"
	case ExitCodeSIGTERM:
		return "terminated (SIGTERM)"
	default:
		return "unknown"
	}
}
