package filer

import (
	"errors"
	"fmt"

	"github.com/mailsort/mailsort/rules"
)

// PartialMoveError records a move whose copy succeeded but whose
// delete-mark failed: the message is now duplicated in the destination
// and still present in the source. It is never retried automatically,
// since a second copy would duplicate the message again; operators
// reconcile by hand, guided by the run summary.
type PartialMoveError struct {
	UID  uint32
	Dest string
	Err  error
}

func (e *PartialMoveError) Error() string {
	return fmt.Sprintf("partial move of uid %d: copied to %q but not removed from source: %v", e.UID, e.Dest, e.Err)
}

func (e *PartialMoveError) Unwrap() error {
	return e.Err
}

// ActionResult is the outcome of one action of a matched rule.
type ActionResult struct {
	Action rules.Action
	Err    error // nil on success
}

// Entry is the per-message outcome of a run.
type Entry struct {
	UID     uint32
	Rule    string // empty when no rule matched
	Results []ActionResult
}

// Failed reports whether any of the entry's actions faulted.
func (e Entry) Failed() bool {
	for _, r := range e.Results {
		if r.Err != nil {
			return true
		}
	}
	return false
}

// RunStatus is the terminal state of a processing run.
type RunStatus string

const (
	// StatusCompleted means every message was visited.
	StatusCompleted RunStatus = "completed"
	// StatusPartiallyCompleted means a transport fault aborted the
	// remaining messages, but mutations applied before the fault were
	// preserved and the pending expunge was still issued.
	StatusPartiallyCompleted RunStatus = "partially-completed"
	// StatusFailed means the run could not start: the mailbox did not
	// open or the message list could not be fetched.
	StatusFailed RunStatus = "failed"
)

// RunSummary is the result of processing one mailbox.
type RunSummary struct {
	Account  string
	Mailbox  string
	Status   RunStatus
	DryRun   bool
	Err      error // the transport fault for non-completed runs

	MessagesSeen int
	MatchCounts  map[string]int // rule name -> matches
	Entries      []Entry
	Expunged     int
}

// FailedEntries returns the entries with at least one failed action.
func (s *RunSummary) FailedEntries() []Entry {
	var out []Entry
	for _, e := range s.Entries {
		if e.Failed() {
			out = append(out, e)
		}
	}
	return out
}

// PartialMoves returns every partial move of the run. These need manual
// reconciliation and are reported prominently by the caller.
func (s *RunSummary) PartialMoves() []*PartialMoveError {
	var out []*PartialMoveError
	for _, e := range s.Entries {
		for _, r := range e.Results {
			var pm *PartialMoveError
			if errors.As(r.Err, &pm) {
				out = append(out, pm)
			}
		}
	}
	return out
}
