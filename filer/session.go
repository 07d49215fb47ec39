package filer

import (
	"context"
	"time"

	"github.com/mailsort/mailsort/logger"
	"github.com/mailsort/mailsort/mailbox"
	"github.com/mailsort/mailsort/pkg/metrics"
	"github.com/mailsort/mailsort/rules"
)

// Session processes one mailbox with one rule set over one gateway
// connection. Messages are handled strictly sequentially; rule order and
// first-match semantics depend on not interleaving. Sessions share no
// state, so independent mailboxes can run concurrently.
type Session struct {
	gw      Gateway
	ruleSet *rules.RuleSet
	exec    *Executor

	account string
	dryRun  bool
}

func NewSession(gw Gateway, ruleSet *rules.RuleSet, account string, dryRun bool) *Session {
	return &Session{
		gw:      gw,
		ruleSet: ruleSet,
		exec:    NewExecutor(gw, dryRun),
		account: account,
		dryRun:  dryRun,
	}
}

// Run processes every message of the mailbox and returns the summary.
//
// Exactly one expunge is issued per run, after all messages are visited,
// and only if some action marked a message deleted. A transport fault
// mid-run aborts the remaining messages but the expunge still happens for
// whatever delete-marks already succeeded; such a run is reported as
// partially completed, not failed. The error return is non-nil only when
// the run could not start at all.
func (s *Session) Run(ctx context.Context, mailboxName string) (*RunSummary, error) {
	start := time.Now()
	now := start // anchors relative date conditions for the whole run

	summary := &RunSummary{
		Account:     s.account,
		Mailbox:     mailboxName,
		Status:      StatusCompleted,
		DryRun:      s.dryRun,
		MatchCounts: make(map[string]int),
	}

	count, err := s.gw.Open(ctx, mailboxName, s.dryRun)
	if err != nil {
		summary.Status = StatusFailed
		summary.Err = err
		s.observe(summary, start)
		return summary, err
	}
	logger.Debug("mailbox opened", "account", s.account, "mailbox", mailboxName, "messages", count)

	msgs, err := s.gw.FetchMessages(ctx)
	if err != nil {
		summary.Status = StatusFailed
		summary.Err = err
		s.observe(summary, start)
		return summary, err
	}

	needExpunge := false
	for _, msg := range msgs {
		summary.MessagesSeen++
		metrics.MessagesSeen.WithLabelValues(s.account, mailboxName).Inc()

		rule := s.ruleSet.Match(ctx, msg, now)
		if rule == nil {
			summary.Entries = append(summary.Entries, Entry{UID: msg.UID()})
			continue
		}
		summary.MatchCounts[rule.Name]++
		metrics.RuleMatches.WithLabelValues(s.account, rule.Name).Inc()

		results, marked := s.exec.Execute(ctx, msg, rule.Actions)
		needExpunge = needExpunge || marked
		summary.Entries = append(summary.Entries, Entry{
			UID:     msg.UID(),
			Rule:    rule.Name,
			Results: results,
		})

		if fault := transportFault(results); fault != nil {
			logger.Error("transport fault, aborting remaining messages",
				"account", s.account, "mailbox", mailboxName, "uid", msg.UID(), "error", fault)
			summary.Status = StatusPartiallyCompleted
			summary.Err = fault
			break
		}
	}

	if needExpunge && !s.dryRun {
		expunged, err := s.gw.Expunge(ctx)
		if err != nil {
			logger.Error("expunge failed", "account", s.account, "mailbox", mailboxName, "error", err)
			summary.Status = StatusPartiallyCompleted
			if summary.Err == nil {
				summary.Err = err
			}
		} else {
			summary.Expunged = expunged
		}
	}

	s.observe(summary, start)
	return summary, nil
}

func (s *Session) observe(summary *RunSummary, start time.Time) {
	status := string(summary.Status)
	metrics.RunsTotal.WithLabelValues(s.account, summary.Mailbox, status).Inc()
	metrics.RunDuration.WithLabelValues(s.account, summary.Mailbox, status).Observe(time.Since(start).Seconds())
	if summary.Expunged > 0 {
		metrics.MessagesExpunged.WithLabelValues(s.account, summary.Mailbox).Add(float64(summary.Expunged))
	}
	for _, entry := range summary.Entries {
		for _, r := range entry.Results {
			if r.Err != nil {
				metrics.ActionFailures.WithLabelValues(s.account, string(r.Action.Kind)).Inc()
			}
		}
	}
	if n := len(summary.PartialMoves()); n > 0 {
		metrics.PartialMoves.WithLabelValues(s.account).Add(float64(n))
	}
}

// transportFault returns the first result error that signals connectivity
// loss rather than a server refusal. A server NO is an action fault and
// leaves the session usable; anything else means the remaining messages
// cannot be processed.
func transportFault(results []ActionResult) error {
	for _, r := range results {
		if r.Err != nil && mailbox.IsTransportErr(r.Err) {
			return r.Err
		}
	}
	return nil
}
