// Package mailbox implements the IMAP gateway: one authenticated session
// per account, with select, fetch, copy, flag store and expunge primitives
// keyed by message UID. All mutations are single-shot; only dialing is
// retried, since a repeated copy or store could duplicate a mutation.
package mailbox

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"
	"github.com/emersion/go-message"
	"github.com/emersion/go-sasl"

	"github.com/mailsort/mailsort/config"
	"github.com/mailsort/mailsort/consts"
	"github.com/mailsort/mailsort/logger"
	"github.com/mailsort/mailsort/pkg/retry"
)

// Client is an authenticated IMAP session for one account. Not safe for
// concurrent use; each processing session owns its own client.
type Client struct {
	clt     *imapclient.Client
	account string

	selected    string
	numMessages uint32
}

// Dial connects to the account's IMAP server over TLS and authenticates.
// Connection establishment is retried with backoff; authentication
// failures stop the retries immediately since credentials do not heal.
func Dial(ctx context.Context, acct *config.AccountConfig) (*Client, error) {
	timeout, err := acct.GetConnectTimeout()
	if err != nil {
		return nil, err
	}

	tlsConfig := &tls.Config{
		ServerName:         acct.Host,
		InsecureSkipVerify: acct.InsecureSkipVerify,
	}

	c := &Client{account: acct.Name}
	dial := func() error {
		conn, err := tls.DialWithDialer(&net.Dialer{Timeout: timeout}, "tcp", acct.Address(), tlsConfig)
		if err != nil {
			return fmt.Errorf("dialing %s: %w", acct.Address(), err)
		}
		clt := imapclient.New(conn, &imapclient.Options{})
		if err := authenticate(clt, acct); err != nil {
			_ = clt.Close()
			return retry.Stop(fmt.Errorf("authenticating as %s: %w", acct.Username, err))
		}
		c.clt = clt
		return nil
	}

	if err := retry.WithRetry(ctx, dial, retry.DefaultBackoffConfig()); err != nil {
		return nil, err
	}

	logger.Debug("connected", "account", acct.Name, "server", acct.Address())
	return c, nil
}

func authenticate(clt *imapclient.Client, acct *config.AccountConfig) error {
	if acct.Auth == "plain" {
		return clt.Authenticate(sasl.NewPlainClient("", acct.Username, acct.Password))
	}
	return clt.Login(acct.Username, acct.Password).Wait()
}

// Close logs out and tears down the connection.
func (c *Client) Close() error {
	if err := c.clt.Logout().Wait(); err != nil {
		return c.clt.Close()
	}
	return nil
}

// ListMailboxes returns the names of all mailboxes visible to the account.
func (c *Client) ListMailboxes(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	boxes, err := c.clt.List("", "*", nil).Collect()
	if err != nil {
		return nil, fmt.Errorf("listing mailboxes: %w", err)
	}
	names := make([]string, 0, len(boxes))
	for _, box := range boxes {
		names = append(names, box.Mailbox)
	}
	return names, nil
}

// Open selects the named mailbox and returns its message count. readOnly
// selects with EXAMINE semantics, used by dry runs so that even flag
// side effects of fetching are suppressed server-side.
func (c *Client) Open(ctx context.Context, name string, readOnly bool) (uint32, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	data, err := c.clt.Select(name, &imap.SelectOptions{ReadOnly: readOnly}).Wait()
	if err != nil {
		c.selected = ""
		return 0, fmt.Errorf("selecting mailbox %q: %w", name, err)
	}
	c.selected = name
	c.numMessages = data.NumMessages
	return data.NumMessages, nil
}

// FetchMessages downloads the envelope, flags and size of every message in
// the selected mailbox. Header and body content is not fetched here; the
// returned messages load it lazily on first access.
func (c *Client) FetchMessages(ctx context.Context) ([]*Message, error) {
	if c.selected == "" {
		return nil, consts.ErrNoMailboxOpen
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if c.numMessages == 0 {
		return nil, nil
	}

	seqSet := imap.SeqSet{}
	seqSet.AddRange(1, 0)
	bufs, err := c.clt.Fetch(seqSet, &imap.FetchOptions{
		UID:          true,
		Envelope:     true,
		Flags:        true,
		RFC822Size:   true,
		InternalDate: true,
	}).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetching messages from %q: %w", c.selected, err)
	}

	msgs := make([]*Message, 0, len(bufs))
	for _, buf := range bufs {
		if buf.UID == 0 {
			logger.Warn("skipping message without UID", "account", c.account, "mailbox", c.selected)
			continue
		}
		msgs = append(msgs, newMessage(c, buf))
	}
	return msgs, nil
}

// fetchHeaderField downloads a single header field of one message with a
// peek fetch, leaving the \Seen flag untouched.
func (c *Client) fetchHeaderField(ctx context.Context, uid uint32, name string) (string, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	section := &imap.FetchItemBodySection{
		Specifier:    imap.PartSpecifierHeader,
		HeaderFields: []string{name},
		Peek:         true,
	}
	bufs, err := c.clt.Fetch(imap.UIDSetNum(imap.UID(uid)), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	}).Collect()
	if err != nil {
		return "", false, fmt.Errorf("fetching header %q of uid %d: %w", name, uid, err)
	}
	if len(bufs) == 0 {
		return "", false, nil
	}
	raw := bufs[0].FindBodySection(section)
	if len(raw) == 0 {
		return "", false, nil
	}

	entity, err := message.Read(bytes.NewReader(raw))
	if err != nil && !message.IsUnknownCharset(err) {
		return "", false, fmt.Errorf("%w: uid %d: %v", consts.ErrMalformedMessage, uid, err)
	}
	value := entity.Header.Get(name)
	return value, value != "", nil
}

// fetchBody downloads the full message body with a peek fetch.
func (c *Client) fetchBody(ctx context.Context, uid uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	section := &imap.FetchItemBodySection{Peek: true}
	bufs, err := c.clt.Fetch(imap.UIDSetNum(imap.UID(uid)), &imap.FetchOptions{
		UID:         true,
		BodySection: []*imap.FetchItemBodySection{section},
	}).Collect()
	if err != nil {
		return nil, fmt.Errorf("fetching body of uid %d: %w", uid, err)
	}
	if len(bufs) == 0 {
		return nil, fmt.Errorf("%w: uid %d vanished during fetch", consts.ErrMalformedMessage, uid)
	}
	return bufs[0].FindBodySection(section), nil
}

// Copy copies one message to the destination mailbox.
func (c *Client) Copy(ctx context.Context, uid uint32, dest string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := c.clt.Copy(imap.UIDSetNum(imap.UID(uid)), dest).Wait(); err != nil {
		return fmt.Errorf("copying uid %d to %q: %w", uid, dest, err)
	}
	return nil
}

// MarkDeleted sets the \Deleted flag on one message. The actual removal
// happens at the session's single expunge.
func (c *Client) MarkDeleted(ctx context.Context, uid uint32) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.storeFlags(uid, imap.StoreFlagsAdd, imap.FlagDeleted)
}

// SetFlag sets or clears a flag on one message. name may be a system flag
// ("seen", `\Seen`) or a keyword.
func (c *Client) SetFlag(ctx context.Context, uid uint32, name string, on bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	op := imap.StoreFlagsAdd
	if !on {
		op = imap.StoreFlagsDel
	}
	return c.storeFlags(uid, op, CanonicalFlag(name))
}

func (c *Client) storeFlags(uid uint32, op imap.StoreFlagsOp, flag imap.Flag) error {
	cmd := c.clt.Store(imap.UIDSetNum(imap.UID(uid)), &imap.StoreFlags{
		Op:     op,
		Silent: true,
		Flags:  []imap.Flag{flag},
	}, nil)
	if err := cmd.Close(); err != nil {
		return fmt.Errorf("storing flag %s on uid %d: %w", flag, uid, err)
	}
	return nil
}

// Expunge permanently removes all messages marked \Deleted in the selected
// mailbox and returns how many were removed.
func (c *Client) Expunge(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	removed, err := c.clt.Expunge().Collect()
	if err != nil {
		return 0, fmt.Errorf("expunging %q: %w", c.selected, err)
	}
	return len(removed), nil
}

func envelopeDate(envelope *imap.Envelope, internalDate time.Time) time.Time {
	if envelope != nil && !envelope.Date.IsZero() {
		return envelope.Date
	}
	return internalDate
}

func addressStrings(addrs []imap.Address) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if addr := a.Addr(); addr != "" {
			out = append(out, strings.ToLower(addr))
		}
	}
	return out
}
