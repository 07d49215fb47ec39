package mailbox

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/assert"
)

func TestCanonicalFlag(t *testing.T) {
	tests := []struct {
		in   string
		want imap.Flag
	}{
		{"seen", imap.FlagSeen},
		{"Seen", imap.FlagSeen},
		{`\Seen`, imap.FlagSeen},
		{"answered", imap.FlagAnswered},
		{"flagged", imap.FlagFlagged},
		{"deleted", imap.FlagDeleted},
		{"draft", imap.FlagDraft},
		{"$Important", imap.Flag("$Important")},
		{"work", imap.Flag("work")},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, CanonicalFlag(tt.in), tt.in)
	}
}

func TestNormalizeFlagName(t *testing.T) {
	assert.Equal(t, "seen", normalizeFlagName(`\Seen`))
	assert.Equal(t, "seen", normalizeFlagName("SEEN"))
	assert.Equal(t, "$important", normalizeFlagName("$Important"))
}

func TestIsTransportErr(t *testing.T) {
	serverNo := &imap.Error{
		Type: imap.StatusResponseTypeNo,
		Text: "no such mailbox",
	}

	assert.False(t, IsTransportErr(nil))
	assert.False(t, IsTransportErr(serverNo))
	assert.False(t, IsTransportErr(fmt.Errorf("copying uid 7: %w", serverNo)))
	assert.True(t, IsTransportErr(io.ErrUnexpectedEOF))
	assert.True(t, IsTransportErr(errors.New("connection reset by peer")))
}
