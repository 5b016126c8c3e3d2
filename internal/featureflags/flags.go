package featureflags

import (
	"os"
	"strings"
)

// UnrestrictedDelete lets administrators delete reservations regardless of
// status. Off by default; the product never confirmed whether unconditional
// deletion is intentional.
const UnrestrictedDelete = "unrestricted_delete"

// Enabled returns true if a flag is enabled via environment variable.
// Flags are read from env as FLAG_<NAME>=true/1/yes (case-insensitive)
func Enabled(name string) bool {
	v := os.Getenv("FLAG_" + strings.ToUpper(name))
	switch strings.ToLower(v) {
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}
