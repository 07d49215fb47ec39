package filer

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/emersion/go-imap/v2"
	"github.com/stretchr/testify/require"

	"github.com/mailsort/mailsort/rules"
)

// fakeMsg implements rules.Message without any I/O.
type fakeMsg struct {
	uid     uint32
	sender  string
	subject string
	date    time.Time
	size    int64
	flags   map[string]bool
	headers map[string]string

	deleted bool
}

func (m *fakeMsg) UID() uint32          { return m.uid }
func (m *fakeMsg) Sender() string       { return m.sender }
func (m *fakeMsg) Recipients() []string { return nil }
func (m *fakeMsg) Subject() string      { return m.subject }
func (m *fakeMsg) Date() time.Time      { return m.date }
func (m *fakeMsg) Size() int64          { return m.size }

func (m *fakeMsg) HasFlag(name string) bool {
	return m.flags[strings.ToLower(name)]
}

func (m *fakeMsg) Header(_ context.Context, name string) (string, bool, error) {
	v, ok := m.headers[strings.ToLower(name)]
	return v, ok, nil
}

func (m *fakeMsg) BodyText(context.Context) (string, error) {
	return "", nil
}

// fakeGateway is an in-memory mailbox server. Mutations update its state
// so idempotence can be exercised across runs; every call is recorded for
// order assertions.
type fakeGateway struct {
	mailboxes map[string][]*fakeMsg
	source    string
	readOnly  bool

	openErr  error
	fetchErr error
	copyErr  map[uint32]error
	markErr  map[uint32]error
	flagErr  map[uint32]error

	calls    []string
	expunges int
}

func newFakeGateway(source string, msgs ...*fakeMsg) *fakeGateway {
	return &fakeGateway{
		mailboxes: map[string][]*fakeMsg{source: msgs},
		copyErr:   make(map[uint32]error),
		markErr:   make(map[uint32]error),
		flagErr:   make(map[uint32]error),
	}
}

func (g *fakeGateway) record(format string, args ...any) {
	g.calls = append(g.calls, fmt.Sprintf(format, args...))
}

func (g *fakeGateway) find(uid uint32) *fakeMsg {
	for _, m := range g.mailboxes[g.source] {
		if m.uid == uid {
			return m
		}
	}
	return nil
}

func (g *fakeGateway) Open(_ context.Context, name string, readOnly bool) (uint32, error) {
	g.record("open %s readonly=%v", name, readOnly)
	if g.openErr != nil {
		return 0, g.openErr
	}
	g.source = name
	g.readOnly = readOnly
	return uint32(len(g.mailboxes[name])), nil
}

func (g *fakeGateway) FetchMessages(context.Context) ([]rules.Message, error) {
	g.record("fetch")
	if g.fetchErr != nil {
		return nil, g.fetchErr
	}
	out := make([]rules.Message, 0, len(g.mailboxes[g.source]))
	for _, m := range g.mailboxes[g.source] {
		out = append(out, m)
	}
	return out, nil
}

func (g *fakeGateway) Copy(_ context.Context, uid uint32, dest string) error {
	g.record("copy %d -> %s", uid, dest)
	if err := g.copyErr[uid]; err != nil {
		return err
	}
	if m := g.find(uid); m != nil {
		dup := *m
		dup.deleted = false
		g.mailboxes[dest] = append(g.mailboxes[dest], &dup)
	}
	return nil
}

func (g *fakeGateway) MarkDeleted(_ context.Context, uid uint32) error {
	g.record("markDeleted %d", uid)
	if err := g.markErr[uid]; err != nil {
		return err
	}
	if m := g.find(uid); m != nil {
		m.deleted = true
	}
	return nil
}

func (g *fakeGateway) SetFlag(_ context.Context, uid uint32, flag string, on bool) error {
	g.record("setFlag %d %s=%v", uid, flag, on)
	if err := g.flagErr[uid]; err != nil {
		return err
	}
	if m := g.find(uid); m != nil {
		if m.flags == nil {
			m.flags = make(map[string]bool)
		}
		m.flags[strings.ToLower(flag)] = on
	}
	return nil
}

func (g *fakeGateway) Expunge(context.Context) (int, error) {
	g.record("expunge")
	g.expunges++
	kept := g.mailboxes[g.source][:0]
	removed := 0
	for _, m := range g.mailboxes[g.source] {
		if m.deleted {
			removed++
			continue
		}
		kept = append(kept, m)
	}
	g.mailboxes[g.source] = kept
	return removed, nil
}

// serverNo fakes a NO response: the operation was refused but the
// connection is fine.
func serverNo(text string) error {
	return &imap.Error{Type: imap.StatusResponseTypeNo, Text: text}
}

func compileRules(t *testing.T, doc string) *rules.RuleSet {
	t.Helper()
	rs, err := rules.LoadBytes([]byte(doc), rules.Options{TrashMailbox: "Trash"})
	require.NoError(t, err)
	return rs
}
