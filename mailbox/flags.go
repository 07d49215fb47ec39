package mailbox

import (
	"strings"

	"github.com/emersion/go-imap/v2"
)

// CanonicalFlag maps a user-facing flag name to its IMAP spelling. System
// flags get their backslash form regardless of how they were written;
// anything else is passed through as a keyword.
func CanonicalFlag(name string) imap.Flag {
	switch normalizeFlagName(name) {
	case "seen":
		return imap.FlagSeen
	case "answered":
		return imap.FlagAnswered
	case "flagged":
		return imap.FlagFlagged
	case "deleted":
		return imap.FlagDeleted
	case "draft":
		return imap.FlagDraft
	}
	return imap.Flag(name)
}

// normalizeFlagName lowers a flag name and strips the system-flag
// backslash so "seen", "Seen" and `\Seen` all compare equal.
func normalizeFlagName(name string) string {
	return strings.ToLower(strings.TrimPrefix(name, `\`))
}
