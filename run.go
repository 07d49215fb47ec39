package main

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/mailsort/mailsort/config"
	"github.com/mailsort/mailsort/filer"
	"github.com/mailsort/mailsort/logger"
	"github.com/mailsort/mailsort/mailbox"
	"github.com/mailsort/mailsort/rules"
)

// gateway adapts mailbox.Client to the session's consumer-side interface.
type gateway struct {
	*mailbox.Client
}

func (g gateway) FetchMessages(ctx context.Context) ([]rules.Message, error) {
	msgs, err := g.Client.FetchMessages(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]rules.Message, len(msgs))
	for i, m := range msgs {
		out[i] = m
	}
	return out, nil
}

// loadRuleSets compiles every account's rules file, keyed by account name.
func loadRuleSets(cfg *config.Config) (map[string]*rules.RuleSet, error) {
	opts := rules.Options{TrashMailbox: cfg.TrashMailbox}
	sets := make(map[string]*rules.RuleSet, len(cfg.Accounts))
	for i := range cfg.Accounts {
		acct := &cfg.Accounts[i]
		rs, err := rules.LoadFile(acct.RulesFile, opts)
		if err != nil {
			return nil, fmt.Errorf("account %q: %w", acct.Name, err)
		}
		sets[acct.Name] = rs
		logger.Debug("rules loaded", "account", acct.Name, "rules", rs.Len())
	}
	return sets, nil
}

// runAll processes every account concurrently. Accounts share nothing:
// each gets its own connection, sessions and summaries. Returns false
// when any account failed or needs manual reconciliation.
func runAll(ctx context.Context, cfg *config.Config, ruleSets map[string]*rules.RuleSet) bool {
	g, ctx := errgroup.WithContext(ctx)
	results := make([]bool, len(cfg.Accounts))
	for i := range cfg.Accounts {
		i := i
		acct := &cfg.Accounts[i]
		g.Go(func() error {
			results[i] = runAccount(ctx, cfg, acct, ruleSets[acct.Name])
			return nil
		})
	}
	_ = g.Wait()

	ok := true
	for _, r := range results {
		ok = ok && r
	}
	return ok
}

// runAccount processes all source mailboxes of one account over a single
// connection, sequentially.
func runAccount(ctx context.Context, cfg *config.Config, acct *config.AccountConfig, rs *rules.RuleSet) bool {
	client, err := mailbox.Dial(ctx, acct)
	if err != nil {
		logger.Error("connection failed", "account", acct.Name, "error", err)
		return false
	}
	defer client.Close()

	ok := true
	for _, name := range acct.Mailboxes {
		session := filer.NewSession(gateway{client}, rs, acct.Name, cfg.DryRun)
		summary, err := session.Run(ctx, name)
		reportSummary(summary)
		if err != nil || summary.Status != filer.StatusCompleted {
			ok = false
		}
		if err != nil && mailbox.IsTransportErr(err) {
			// The connection is gone; remaining mailboxes would all fail.
			return false
		}
	}
	return ok
}

// reportSummary logs the outcome of one run. Partial moves are surfaced
// at error level: the message now exists in two places and only an
// operator can reconcile that.
func reportSummary(s *filer.RunSummary) {
	log := logger.With("account", s.Account, "mailbox", s.Mailbox)

	for _, pm := range s.PartialMoves() {
		log.Error("PARTIAL MOVE, manual reconciliation required",
			"uid", pm.UID, "destination", pm.Dest, "error", pm.Err)
	}
	for _, entry := range s.FailedEntries() {
		for _, r := range entry.Results {
			if r.Err != nil {
				log.Warn("action failed", "uid", entry.UID, "rule", entry.Rule,
					"action", r.Action.Describe(), "error", r.Err)
			}
		}
	}

	switch s.Status {
	case filer.StatusFailed:
		log.Error("run failed", "error", s.Err)
	case filer.StatusPartiallyCompleted:
		log.Warn("run partially completed",
			"messages", s.MessagesSeen, "matches", s.MatchCounts,
			"expunged", s.Expunged, "error", s.Err)
	default:
		log.Info("run completed",
			"dry_run", s.DryRun, "messages", s.MessagesSeen,
			"matches", s.MatchCounts, "expunged", s.Expunged)
	}
}

// printMailboxes connects to each account and prints its mailbox names.
func printMailboxes(ctx context.Context, cfg *config.Config) error {
	for i := range cfg.Accounts {
		acct := &cfg.Accounts[i]
		client, err := mailbox.Dial(ctx, acct)
		if err != nil {
			return fmt.Errorf("account %q: %w", acct.Name, err)
		}
		names, err := client.ListMailboxes(ctx)
		client.Close()
		if err != nil {
			return fmt.Errorf("account %q: %w", acct.Name, err)
		}
		fmt.Printf("%s:\n", acct.Name)
		for _, name := range names {
			fmt.Printf("  %s\n", name)
		}
	}
	return nil
}
