package mailbox

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message"

	"github.com/mailsort/mailsort/consts"
	"github.com/mailsort/mailsort/helpers"
)

// Message is a read handle over one mailbox entry, valid for the duration
// of one processing pass. Envelope data is populated up front; header
// fields and the body text are fetched lazily on first access and cached
// for the rest of the message's evaluation.
type Message struct {
	c *Client

	uid        uint32
	sender     string
	recipients []string
	subject    string
	date       time.Time
	size       int64
	flags      map[string]bool

	headers map[string]headerValue

	bodyFetched bool
	bodyText    string
	bodyErr     error
}

type headerValue struct {
	value string
	ok    bool
}

func newMessage(c *Client, buf *imapclient.FetchMessageBuffer) *Message {
	m := &Message{
		c:       c,
		uid:     uint32(buf.UID),
		size:    buf.RFC822Size,
		date:    buf.InternalDate,
		flags:   make(map[string]bool, len(buf.Flags)),
		headers: make(map[string]headerValue),
	}
	for _, f := range buf.Flags {
		m.flags[normalizeFlagName(string(f))] = true
	}
	if env := buf.Envelope; env != nil {
		m.subject = env.Subject
		m.date = envelopeDate(env, buf.InternalDate)
		if from := addressStrings(env.From); len(from) > 0 {
			m.sender = from[0]
		}
		m.recipients = append(addressStrings(env.To), addressStrings(env.Cc)...)
	}
	return m
}

func (m *Message) UID() uint32          { return m.uid }
func (m *Message) Sender() string       { return m.sender }
func (m *Message) Recipients() []string { return m.recipients }
func (m *Message) Subject() string      { return m.subject }
func (m *Message) Date() time.Time      { return m.date }
func (m *Message) Size() int64          { return m.size }

// HasFlag reports whether the message carried the flag when it was
// fetched. Names are matched case-insensitively, with or without the
// leading backslash of system flags.
func (m *Message) HasFlag(name string) bool {
	return m.flags[normalizeFlagName(name)]
}

// Header returns the value of a header field, fetching it from the server
// on first access. Successful lookups (including confirmed absence) are
// cached; faults are not, so the gateway may be asked again.
func (m *Message) Header(ctx context.Context, name string) (string, bool, error) {
	key := strings.ToLower(name)
	if hv, cached := m.headers[key]; cached {
		return hv.value, hv.ok, nil
	}
	value, ok, err := m.c.fetchHeaderField(ctx, m.uid, name)
	if err != nil {
		return "", false, err
	}
	m.headers[key] = headerValue{value: value, ok: ok}
	return value, ok, nil
}

// BodyText returns the plain-text rendition of the message body. The body
// is fetched from the server at most once per message per run; both the
// result and a fetch failure are cached for the rest of the evaluation.
func (m *Message) BodyText(ctx context.Context) (string, error) {
	if m.bodyFetched {
		return m.bodyText, m.bodyErr
	}
	m.bodyFetched = true
	m.bodyText, m.bodyErr = m.loadBodyText(ctx)
	return m.bodyText, m.bodyErr
}

func (m *Message) loadBodyText(ctx context.Context) (string, error) {
	raw, err := m.c.fetchBody(ctx, m.uid)
	if err != nil {
		return "", err
	}
	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return "", fmt.Errorf("%w: uid %d: %v", consts.ErrMalformedMessage, m.uid, err)
	}
	text, err := helpers.BodyText(entity)
	if err != nil {
		return "", fmt.Errorf("%w: uid %d: %v", consts.ErrMalformedMessage, m.uid, err)
	}
	return text, nil
}
