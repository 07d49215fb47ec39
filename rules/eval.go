package rules

import (
	"context"
	"strings"
	"time"

	"github.com/mailsort/mailsort/logger"
)

// Match returns the first rule in configured order whose predicate is
// satisfied by msg, or nil when none matches. now anchors relative date
// comparisons for the whole run.
func (rs *RuleSet) Match(ctx context.Context, msg Message, now time.Time) *Rule {
	for _, rule := range rs.rules {
		if rule.Root == nil || evalNode(ctx, rule.Root, msg, now) {
			return rule
		}
	}
	return nil
}

// evalNode evaluates the predicate tree with short-circuiting. Children are
// visited in authored order: AND stops at the first false child, OR at the
// first true one. Order is observable because a body condition triggers the
// message's lazy body fetch.
func evalNode(ctx context.Context, n *Node, msg Message, now time.Time) bool {
	switch n.Kind {
	case NodeCondition:
		return n.Cond.eval(ctx, msg, now)
	case NodeAnd:
		for _, child := range n.Children {
			if !evalNode(ctx, child, msg, now) {
				return false
			}
		}
		return true
	case NodeOr:
		for _, child := range n.Children {
			if evalNode(ctx, child, msg, now) {
				return true
			}
		}
		return false
	case NodeNot:
		return !evalNode(ctx, n.Children[0], msg, now)
	}
	return false
}

// eval resolves a single condition against a message. Faults while reading
// a field (a failed header or body fetch, a malformed message) resolve to
// false rather than propagate: one broken message must not abort the run.
func (c *Condition) eval(ctx context.Context, msg Message, now time.Time) bool {
	switch c.Op {
	case OpOlderThan:
		date := msg.Date()
		return !date.IsZero() && now.Sub(date) > c.age

	case OpNewerThan:
		date := msg.Date()
		return !date.IsZero() && now.Sub(date) < c.age

	case OpLargerThan:
		return msg.Size() > c.bytes

	case OpSmallerThan:
		return msg.Size() < c.bytes

	case OpHasFlag:
		return msg.HasFlag(c.Field.Name)

	case OpExists:
		_, ok, err := msg.Header(ctx, c.Field.Name)
		if err != nil {
			logger.Debug("condition evaluation fault", "field", c.Field.String(), "uid", msg.UID(), "error", err)
			return false
		}
		return ok

	case OpEquals, OpContains, OpRegex:
		values, ok, err := textValues(ctx, c.Field, msg)
		if err != nil {
			logger.Debug("condition evaluation fault", "field", c.Field.String(), "uid", msg.UID(), "error", err)
			return false
		}
		if !ok {
			// Absent fields never satisfy a positive match.
			return false
		}
		for _, v := range values {
			if c.matchText(v) {
				return true
			}
		}
		return false
	}
	return false
}

// textValues extracts the string values of a text field. Multi-valued
// fields (recipient) match when any value does.
func textValues(ctx context.Context, f Field, msg Message) ([]string, bool, error) {
	switch f.Kind {
	case FieldSender:
		s := msg.Sender()
		return []string{s}, s != "", nil
	case FieldRecipient:
		rs := msg.Recipients()
		return rs, len(rs) > 0, nil
	case FieldSubject:
		return []string{msg.Subject()}, true, nil
	case FieldHeader:
		v, ok, err := msg.Header(ctx, f.Name)
		return []string{v}, ok, err
	case FieldBody:
		v, err := msg.BodyText(ctx)
		return []string{v}, true, err
	}
	return nil, false, nil
}

func (c *Condition) matchText(v string) bool {
	switch c.Op {
	case OpEquals:
		if c.CaseSensitive {
			return v == c.Value
		}
		return strings.EqualFold(v, c.Value)
	case OpContains:
		if c.CaseSensitive {
			return strings.Contains(v, c.Value)
		}
		return strings.Contains(strings.ToLower(v), strings.ToLower(c.Value))
	case OpRegex:
		return c.pattern.MatchString(v)
	}
	return false
}
