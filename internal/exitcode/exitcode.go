package exitcode

// Exit codes for pyship.
// A failing tool's own exit code is passed through unchanged; these are only
// used when no tool exit code is available.
const (
	Success       = 0   // Pipeline completed
	Failure       = 1   // Internal error (filesystem, rendering, report)
	InvalidConfig = 2   // Configuration file invalid or incomplete
	ToolNotFound  = 127 // Tool binary missing, same as a POSIX shell
	Interrupted   = 130 // SIGINT/SIGTERM received
)
