package mailbox

import (
	"errors"

	"github.com/emersion/go-imap/v2"
)

// IsTransportErr distinguishes connectivity loss from a server refusing a
// single operation. A NO or BAD response arrives as *imap.Error: the
// session is still usable and only the one operation failed. Anything
// else (a broken connection, a timeout, a cancelled context) means the
// session is gone and the remaining messages cannot be processed.
func IsTransportErr(err error) bool {
	if err == nil {
		return false
	}
	var imapErr *imap.Error
	return !errors.As(err, &imapErr)
}
