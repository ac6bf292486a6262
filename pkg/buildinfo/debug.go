package buildinfo

import "os"

// DebugEnabled controls whether or not verbose debug logging is enabled. It
// is set automatically based on the SYNCRYPTO_DEBUG environment variable,
// but a command-line --debug flag can also raise the root logger's level
// directly.
var DebugEnabled bool

func init() {
	DebugEnabled = os.Getenv("SYNCRYPTO_DEBUG") == "1"
}
