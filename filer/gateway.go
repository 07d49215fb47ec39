// Package filer executes matched rules against a mailbox: it dispatches
// each fetched message through the rule set, applies the winning rule's
// actions in order, and performs the run's single expunge at the end.
package filer

import (
	"context"

	"github.com/mailsort/mailsort/rules"
)

// Gateway is the mailbox capability set consumed by a processing session.
// *mailbox.Client satisfies it through a thin adapter; tests supply fakes.
// Mutations take the message UID so a fault on one message cannot be
// misattributed to another.
type Gateway interface {
	// Open selects a mailbox and returns its message count. Read-only
	// opens are used by dry runs.
	Open(ctx context.Context, mailbox string, readOnly bool) (uint32, error)
	// FetchMessages returns handles for every message in the open
	// mailbox. Single pass per open.
	FetchMessages(ctx context.Context) ([]rules.Message, error)
	Copy(ctx context.Context, uid uint32, dest string) error
	MarkDeleted(ctx context.Context, uid uint32) error
	SetFlag(ctx context.Context, uid uint32, flag string, on bool) error
	// Expunge removes everything marked deleted and returns the count.
	Expunge(ctx context.Context) (int, error)
}
