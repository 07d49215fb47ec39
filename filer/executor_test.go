package filer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openedGateway(t *testing.T, msgs ...*fakeMsg) *fakeGateway {
	t.Helper()
	gw := newFakeGateway("INBOX", msgs...)
	_, err := gw.Open(context.Background(), "INBOX", false)
	require.NoError(t, err)
	gw.calls = nil
	return gw
}

func TestExecuteMoveIsCopyThenMark(t *testing.T) {
	msg := &fakeMsg{uid: 7, subject: "Invoice #42"}
	gw := openedGateway(t, msg)
	exec := NewExecutor(gw, false)

	rs := compileRules(t, `
rules:
  - name: invoices
    when: {field: subject, op: contains, value: invoice}
    actions:
      - kind: move
        mailbox: Invoices
`)
	results, marked := exec.Execute(context.Background(), msg, rs.Rules()[0].Actions)

	require.Len(t, results, 1)
	assert.NoError(t, results[0].Err)
	assert.True(t, marked)
	assert.Equal(t, []string{"copy 7 -> Invoices", "markDeleted 7"}, gw.calls)
	assert.Len(t, gw.mailboxes["Invoices"], 1)
	assert.True(t, msg.deleted)
}

func TestExecutePartialMove(t *testing.T) {
	msg := &fakeMsg{uid: 7, subject: "Invoice #42"}
	gw := openedGateway(t, msg)
	gw.markErr[7] = serverNo("STORE refused")
	exec := NewExecutor(gw, false)

	rs := compileRules(t, `
rules:
  - name: archive
    when: {field: subject, op: contains, value: invoice}
    actions:
      - kind: move
        mailbox: Archive
`)
	results, marked := exec.Execute(context.Background(), msg, rs.Rules()[0].Actions)

	require.Len(t, results, 1)
	require.Error(t, results[0].Err)
	assert.False(t, marked)

	var pm *PartialMoveError
	require.True(t, errors.As(results[0].Err, &pm))
	assert.Equal(t, uint32(7), pm.UID)
	assert.Equal(t, "Archive", pm.Dest)

	// Duplicated in the destination, still present in the source.
	assert.Len(t, gw.mailboxes["Archive"], 1)
	assert.False(t, msg.deleted)
	require.NotNil(t, gw.find(7))
}

func TestExecuteFaultAbortsRemainingActions(t *testing.T) {
	msg := &fakeMsg{uid: 3, subject: "hello"}
	gw := openedGateway(t, msg)
	gw.copyErr[3] = serverNo("no such mailbox")
	exec := NewExecutor(gw, false)

	rs := compileRules(t, `
rules:
  - name: r
    when: {field: subject, op: contains, value: hello}
    actions:
      - kind: copy
        mailbox: Nowhere
      - kind: set-flag
        flag: flagged
`)
	results, marked := exec.Execute(context.Background(), msg, rs.Rules()[0].Actions)

	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
	assert.False(t, marked)
	assert.Equal(t, []string{"copy 3 -> Nowhere"}, gw.calls)
}

func TestExecuteStopHaltsRule(t *testing.T) {
	msg := &fakeMsg{uid: 5, subject: "keep me"}
	gw := openedGateway(t, msg)
	exec := NewExecutor(gw, false)

	rs := compileRules(t, `
rules:
  - name: flag-only
    when: {field: subject, op: contains, value: keep}
    actions:
      - kind: set-flag
        flag: flagged
      - kind: stop
      - kind: delete
`)
	results, marked := exec.Execute(context.Background(), msg, rs.Rules()[0].Actions)

	require.Len(t, results, 2)
	assert.False(t, marked, "delete after stop must not run")
	assert.Equal(t, []string{"setFlag 5 flagged=true"}, gw.calls)
}

func TestExecuteSortMailingList(t *testing.T) {
	msg := &fakeMsg{
		uid:     9,
		subject: "[golang-dev] proposal",
		headers: map[string]string{"list-id": "<golang-dev.googlegroups.com>"},
	}
	gw := openedGateway(t, msg)
	exec := NewExecutor(gw, false)

	rs := compileRules(t, `
rules:
  - name: lists
    when: {field: "header:list-id", op: exists}
    actions:
      - kind: sort-mailing-list
        mailbox_base: Lists
`)
	results, marked := exec.Execute(context.Background(), msg, rs.Rules()[0].Actions)

	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.True(t, marked)
	assert.Equal(t, []string{"copy 9 -> Lists/golang-dev", "markDeleted 9"}, gw.calls)
}

func TestExecuteSortMailingListWithoutListID(t *testing.T) {
	msg := &fakeMsg{uid: 9, subject: "not a list message"}
	gw := openedGateway(t, msg)
	exec := NewExecutor(gw, false)

	rs := compileRules(t, `
rules:
  - name: lists
    when: {field: subject, op: contains, value: list}
    actions:
      - kind: sort-mailing-list
        mailbox_base: Lists
`)
	results, marked := exec.Execute(context.Background(), msg, rs.Rules()[0].Actions)

	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
	assert.False(t, marked)
	assert.Empty(t, gw.calls, "no mutation without a destination")
}

func TestExecuteTrashUsesConfiguredMailbox(t *testing.T) {
	msg := &fakeMsg{uid: 2, sender: "noreply@spam.example"}
	gw := openedGateway(t, msg)
	exec := NewExecutor(gw, false)

	rs := compileRules(t, `
rules:
  - name: junk
    when: {field: sender, op: contains, value: spam}
    actions:
      - kind: trash
`)
	results, marked := exec.Execute(context.Background(), msg, rs.Rules()[0].Actions)

	require.Len(t, results, 1)
	require.NoError(t, results[0].Err)
	assert.True(t, marked)
	assert.Equal(t, []string{"copy 2 -> Trash", "markDeleted 2"}, gw.calls)
}

func TestExecuteDryRunNeverMutates(t *testing.T) {
	msg := &fakeMsg{uid: 4, subject: "Invoice #7"}
	gw := openedGateway(t, msg)
	exec := NewExecutor(gw, true)

	rs := compileRules(t, `
rules:
  - name: invoices
    when: {field: subject, op: contains, value: invoice}
    actions:
      - kind: move
        mailbox: Invoices
      - kind: set-flag
        flag: seen
`)
	results, marked := exec.Execute(context.Background(), msg, rs.Rules()[0].Actions)

	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.NoError(t, results[1].Err)
	assert.False(t, marked)
	assert.Empty(t, gw.calls)
}
