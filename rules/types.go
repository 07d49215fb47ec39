// Package rules implements the mailsort rule language: typed conditions over
// message fields, boolean predicate trees, and an ordered rule set with
// first-match-wins semantics. Rules are compiled once at load time; all
// structural validation (field names, operators, regular expressions,
// catch-all placement) happens there, never during evaluation.
package rules

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/mailsort/mailsort/consts"
)

// Message is a read handle over one mailbox entry. Envelope fields are
// available without I/O; Header and BodyText may reach out to the server,
// which is why they take a context and can fail. Implementations cache
// fetched content for the lifetime of the handle.
type Message interface {
	UID() uint32
	Sender() string
	Recipients() []string
	Subject() string
	Date() time.Time
	Size() int64
	HasFlag(name string) bool
	Header(ctx context.Context, name string) (string, bool, error)
	BodyText(ctx context.Context) (string, error)
}

// FieldKind enumerates the message attributes a condition can inspect.
type FieldKind int

const (
	FieldSender FieldKind = iota
	FieldRecipient
	FieldSubject
	FieldDate
	FieldSize
	FieldFlag
	FieldHeader
	FieldBody
)

// Field names a message attribute. Flag and header fields carry the flag or
// header name.
type Field struct {
	Kind FieldKind
	Name string
}

// ParseField resolves a field reference from a rules file. Recognized forms:
// sender, recipient, subject, date, size, body, flag:<name>, header:<name>.
func ParseField(s string) (Field, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sender", "from":
		return Field{Kind: FieldSender}, nil
	case "recipient", "to":
		return Field{Kind: FieldRecipient}, nil
	case "subject":
		return Field{Kind: FieldSubject}, nil
	case "date", "date-received":
		return Field{Kind: FieldDate}, nil
	case "size":
		return Field{Kind: FieldSize}, nil
	case "body":
		return Field{Kind: FieldBody}, nil
	}
	if name, ok := strings.CutPrefix(s, "flag:"); ok && name != "" {
		return Field{Kind: FieldFlag, Name: name}, nil
	}
	if name, ok := strings.CutPrefix(s, "header:"); ok && name != "" {
		return Field{Kind: FieldHeader, Name: name}, nil
	}
	return Field{}, fmt.Errorf("%w: %q", consts.ErrUnknownField, s)
}

func (f Field) String() string {
	switch f.Kind {
	case FieldSender:
		return "sender"
	case FieldRecipient:
		return "recipient"
	case FieldSubject:
		return "subject"
	case FieldDate:
		return "date"
	case FieldSize:
		return "size"
	case FieldFlag:
		return "flag:" + f.Name
	case FieldHeader:
		return "header:" + f.Name
	case FieldBody:
		return "body"
	}
	return "unknown"
}

// isText reports whether the field yields string values usable with the
// equals/contains/regex operators.
func (f Field) isText() bool {
	switch f.Kind {
	case FieldSender, FieldRecipient, FieldSubject, FieldHeader, FieldBody:
		return true
	}
	return false
}

// Operator enumerates condition predicates.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpContains    Operator = "contains"
	OpRegex       Operator = "regex"
	OpOlderThan   Operator = "older-than"
	OpNewerThan   Operator = "newer-than"
	OpLargerThan  Operator = "larger-than"
	OpSmallerThan Operator = "smaller-than"
	OpHasFlag     Operator = "has-flag"
	OpExists      Operator = "exists"
)

// Condition is a single typed predicate, immutable once compiled. The
// pattern, age and byte size are derived from Value at compile time so that
// evaluation never parses or fails structurally.
type Condition struct {
	Field         Field
	Op            Operator
	Value         string
	CaseSensitive bool

	pattern *regexp.Regexp // regex operator
	age     time.Duration  // older-than / newer-than
	bytes   int64          // larger-than / smaller-than
}

// NodeKind tags predicate tree nodes.
type NodeKind int

const (
	NodeCondition NodeKind = iota
	NodeAnd
	NodeOr
	NodeNot
)

// Node is one node of a rule's predicate tree: either a condition leaf or a
// boolean combinator. NOT has exactly one child, AND/OR at least one; the
// compiler enforces both.
type Node struct {
	Kind     NodeKind
	Cond     *Condition
	Children []*Node
}

// ActionKind enumerates filing actions.
type ActionKind string

const (
	ActionMove      ActionKind = "move"
	ActionCopy      ActionKind = "copy"
	ActionDelete    ActionKind = "delete"
	ActionTrash     ActionKind = "trash"
	ActionSetFlag   ActionKind = "set-flag"
	ActionClearFlag ActionKind = "clear-flag"
	ActionSortList  ActionKind = "sort-mailing-list"
	ActionStop      ActionKind = "stop"
)

// Action is one filing operation of a rule. Move-like actions carry a
// destination mailbox; flag actions carry a flag name; sort-mailing-list
// derives its destination from the List-Id header at execution time.
type Action struct {
	Kind    ActionKind
	Mailbox string
	Flag    string

	// sort-mailing-list parameters
	MailboxBase string
	ListPattern *regexp.Regexp
	ListGroup   int
}

// Describe renders the action for logs and run summaries.
func (a Action) Describe() string {
	switch a.Kind {
	case ActionMove, ActionCopy, ActionTrash:
		return fmt.Sprintf("%s -> %s", a.Kind, a.Mailbox)
	case ActionSetFlag, ActionClearFlag:
		return fmt.Sprintf("%s %s", a.Kind, a.Flag)
	case ActionSortList:
		return fmt.Sprintf("%s -> %s%c*", a.Kind, a.MailboxBase, consts.MailboxDelimiter)
	}
	return string(a.Kind)
}

// Rule pairs a predicate tree with an ordered action list. A nil Root is a
// catch-all that matches every message; the compiler only permits it in the
// final position.
type Rule struct {
	Name    string
	Root    *Node
	Actions []Action
}

// CatchAll reports whether the rule matches unconditionally.
func (r *Rule) CatchAll() bool {
	return r.Root == nil
}

// RuleSet is an immutable, ordered sequence of compiled rules. Order is
// semantically significant and never changes after compilation.
type RuleSet struct {
	rules []*Rule
}

// Rules returns the rules in configured order.
func (rs *RuleSet) Rules() []*Rule {
	return rs.rules
}

// Len returns the number of rules.
func (rs *RuleSet) Len() int {
	return len(rs.rules)
}
