package filer

import (
	"context"
	"fmt"

	"github.com/mailsort/mailsort/consts"
	"github.com/mailsort/mailsort/logger"
	"github.com/mailsort/mailsort/rules"
)

// Executor applies a matched rule's actions to one message, strictly in
// authored order. The first faulting action aborts the rest of the rule's
// actions; the fault is recorded and the run moves on to the next message.
type Executor struct {
	gw     Gateway
	dryRun bool
}

func NewExecutor(gw Gateway, dryRun bool) *Executor {
	return &Executor{gw: gw, dryRun: dryRun}
}

// Execute runs the actions and reports, besides the per-action results,
// whether any message ended up marked deleted (the session owes an
// expunge in that case).
func (e *Executor) Execute(ctx context.Context, msg rules.Message, actions []rules.Action) (results []ActionResult, marked bool) {
	uid := msg.UID()
	for _, action := range actions {
		if action.Kind == rules.ActionStop {
			results = append(results, ActionResult{Action: action})
			return results, marked
		}

		if e.dryRun {
			dest, err := e.destination(ctx, msg, action)
			if err != nil {
				results = append(results, ActionResult{Action: action, Err: err})
				return results, marked
			}
			logger.Info("dry-run: would "+describeWithDest(action, dest), "uid", uid)
			results = append(results, ActionResult{Action: action})
			continue
		}

		didMark, err := e.apply(ctx, msg, action)
		marked = marked || didMark
		results = append(results, ActionResult{Action: action, Err: err})
		if err != nil {
			logger.Warn("action failed", "uid", uid, "action", action.Describe(), "error", err)
			return results, marked
		}
		logger.Debug("action applied", "uid", uid, "action", action.Describe())
	}
	return results, marked
}

// apply performs one action. The returned bool reports whether the
// message is now marked deleted.
func (e *Executor) apply(ctx context.Context, msg rules.Message, action rules.Action) (bool, error) {
	uid := msg.UID()

	switch action.Kind {
	case rules.ActionMove, rules.ActionTrash, rules.ActionSortList:
		dest, err := e.destination(ctx, msg, action)
		if err != nil {
			return false, err
		}
		return e.move(ctx, uid, dest)

	case rules.ActionCopy:
		return false, e.gw.Copy(ctx, uid, action.Mailbox)

	case rules.ActionDelete:
		if err := e.gw.MarkDeleted(ctx, uid); err != nil {
			return false, err
		}
		return true, nil

	case rules.ActionSetFlag:
		return false, e.gw.SetFlag(ctx, uid, action.Flag, true)

	case rules.ActionClearFlag:
		return false, e.gw.SetFlag(ctx, uid, action.Flag, false)
	}

	return false, fmt.Errorf("%w: %q", consts.ErrUnknownAction, action.Kind)
}

// move copies the message to dest and then marks the source copy deleted.
// The protocol has no atomic move, so a fault between the two calls
// leaves a duplicate behind; that state gets its own error type.
func (e *Executor) move(ctx context.Context, uid uint32, dest string) (bool, error) {
	if err := e.gw.Copy(ctx, uid, dest); err != nil {
		return false, err
	}
	if err := e.gw.MarkDeleted(ctx, uid); err != nil {
		return false, &PartialMoveError{UID: uid, Dest: dest, Err: err}
	}
	return true, nil
}

// destination resolves the target mailbox of a filing action. Only
// sort-mailing-list derives it at execution time, from the message's
// List-Id header; the rest were fixed at compile time.
func (e *Executor) destination(ctx context.Context, msg rules.Message, action rules.Action) (string, error) {
	if action.Kind != rules.ActionSortList {
		return action.Mailbox, nil
	}

	value, ok, err := msg.Header(ctx, "List-Id")
	if err != nil {
		return "", fmt.Errorf("reading List-Id of uid %d: %w", msg.UID(), err)
	}
	if !ok {
		return "", fmt.Errorf("%w: uid %d has no List-Id header", consts.ErrNoDestination, msg.UID())
	}
	groups := action.ListPattern.FindStringSubmatch(value)
	if groups == nil || len(groups) <= action.ListGroup || groups[action.ListGroup] == "" {
		return "", fmt.Errorf("%w: List-Id %q did not match %q", consts.ErrNoDestination, value, action.ListPattern)
	}
	return action.MailboxBase + string(consts.MailboxDelimiter) + groups[action.ListGroup], nil
}

func describeWithDest(action rules.Action, dest string) string {
	if action.Kind == rules.ActionSortList {
		return fmt.Sprintf("move to %q", dest)
	}
	return action.Describe()
}
