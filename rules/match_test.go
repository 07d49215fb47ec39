package rules

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchFirstWins(t *testing.T) {
	// Both predicates are true for the test message; only the first may win.
	rs := mustLoad(t, `
rules:
  - name: first
    when: {field: subject, op: contains, value: invoice}
    actions:
      - kind: move
        mailbox: Invoices
  - name: second
    when: {field: sender, op: contains, value: billing}
    actions:
      - kind: delete
`, Options{})

	rule := rs.Match(context.Background(), newTestMessage(), evalNow)
	require.NotNil(t, rule)
	assert.Equal(t, "first", rule.Name)
}

func TestMatchFallsThrough(t *testing.T) {
	rs := mustLoad(t, `
rules:
  - name: miss
    when: {field: subject, op: contains, value: lottery}
    actions:
      - kind: delete
  - name: hit
    when: {field: subject, op: contains, value: invoice}
    actions:
      - kind: move
        mailbox: Invoices
`, Options{})

	rule := rs.Match(context.Background(), newTestMessage(), evalNow)
	require.NotNil(t, rule)
	assert.Equal(t, "hit", rule.Name)
}

func TestMatchNone(t *testing.T) {
	rs := mustLoad(t, `
rules:
  - name: miss
    when: {field: subject, op: contains, value: lottery}
    actions:
      - kind: delete
`, Options{})

	assert.Nil(t, rs.Match(context.Background(), newTestMessage(), evalNow))
}

func TestMatchCatchAllAlwaysMatches(t *testing.T) {
	rs := mustLoad(t, `
rules:
  - name: invoices
    when: {field: subject, op: contains, value: invoice}
    actions:
      - kind: move
        mailbox: Invoices
  - name: everything-else
    actions:
      - kind: set-flag
        flag: seen
`, Options{})

	other := newTestMessage()
	other.subject = "weekly digest"
	rule := rs.Match(context.Background(), other, evalNow)
	require.NotNil(t, rule)
	assert.Equal(t, "everything-else", rule.Name)
	assert.True(t, rule.CatchAll())
}

func TestMatchFaultDoesNotMaskLaterRules(t *testing.T) {
	// A fetch fault fails the faulting condition, not the whole match: a
	// later rule that needs no fetch still gets its chance.
	rs := mustLoad(t, `
rules:
  - name: needs-body
    when: {field: body, op: contains, value: invoice}
    actions:
      - kind: delete
  - name: cheap
    when: {field: subject, op: contains, value: invoice}
    actions:
      - kind: set-flag
        flag: flagged
`, Options{})

	msg := newTestMessage()
	msg.bodyErr = assert.AnError
	rule := rs.Match(context.Background(), msg, evalNow)
	require.NotNil(t, rule)
	assert.Equal(t, "cheap", rule.Name)
}
