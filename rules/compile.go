package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/mailsort/mailsort/consts"
	"github.com/mailsort/mailsort/helpers"
)

// defaultListRegex extracts the first dotted component of a List-Id value,
// e.g. "<golang-dev.googlegroups.com>" yields "golang-dev".
const defaultListRegex = `<?([^.]+)\..*>?`

// ConfigError marks a structurally invalid rule set. It is fatal at load
// time and always surfaces before any mailbox mutation.
type ConfigError struct {
	Rule string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Rule == "" {
		return fmt.Sprintf("rule configuration: %v", e.Err)
	}
	return fmt.Sprintf("rule %q: %v", e.Rule, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// Options carries compile-time settings shared by all rules.
type Options struct {
	// TrashMailbox is the default destination for trash actions.
	TrashMailbox string
}

// Compile validates rule specs and produces an immutable RuleSet. Regular
// expressions, durations and sizes are parsed here so evaluation can never
// fail structurally. A catch-all rule (no predicate) is only allowed in the
// final position: anywhere else it would make every later rule unreachable.
func Compile(specs []ruleSpec, opts Options) (*RuleSet, error) {
	rs := &RuleSet{rules: make([]*Rule, 0, len(specs))}
	seen := make(map[string]bool, len(specs))

	for i, spec := range specs {
		name := spec.Name
		if name == "" {
			name = fmt.Sprintf("rule-%d", i+1)
		}
		if seen[name] {
			return nil, &ConfigError{Rule: name, Err: fmt.Errorf("%w: duplicate rule name", consts.ErrInvalidRule)}
		}
		seen[name] = true

		rule := &Rule{Name: name}

		if spec.When != nil {
			root, err := compileNode(*spec.When)
			if err != nil {
				return nil, &ConfigError{Rule: name, Err: err}
			}
			rule.Root = root
		} else if i != len(specs)-1 {
			return nil, &ConfigError{Rule: name, Err: consts.ErrUnreachable}
		}

		if len(spec.Actions) == 0 {
			return nil, &ConfigError{Rule: name, Err: fmt.Errorf("%w: no actions", consts.ErrInvalidRule)}
		}
		for _, as := range spec.Actions {
			action, err := compileAction(as, opts)
			if err != nil {
				return nil, &ConfigError{Rule: name, Err: err}
			}
			rule.Actions = append(rule.Actions, action)
		}

		rs.rules = append(rs.rules, rule)
	}

	return rs, nil
}

func compileNode(spec nodeSpec) (*Node, error) {
	combinators := 0
	if len(spec.All) > 0 {
		combinators++
	}
	if len(spec.Any) > 0 {
		combinators++
	}
	if spec.Not != nil {
		combinators++
	}
	isCondition := spec.Field != "" || spec.Op != ""

	switch {
	case combinators == 0 && !isCondition:
		return nil, fmt.Errorf("%w: empty predicate node", consts.ErrInvalidRule)
	case combinators > 1, combinators == 1 && isCondition:
		return nil, fmt.Errorf("%w: predicate node must be exactly one of all/any/not/condition", consts.ErrInvalidRule)
	}

	if isCondition {
		cond, err := compileCondition(spec)
		if err != nil {
			return nil, err
		}
		return &Node{Kind: NodeCondition, Cond: cond}, nil
	}

	if spec.Not != nil {
		child, err := compileNode(*spec.Not)
		if err != nil {
			return nil, err
		}
		return &Node{Kind: NodeNot, Children: []*Node{child}}, nil
	}

	kind := NodeAnd
	children := spec.All
	if len(spec.Any) > 0 {
		kind = NodeOr
		children = spec.Any
	}
	node := &Node{Kind: kind, Children: make([]*Node, 0, len(children))}
	for _, cs := range children {
		child, err := compileNode(cs)
		if err != nil {
			return nil, err
		}
		node.Children = append(node.Children, child)
	}
	return node, nil
}

func compileCondition(spec nodeSpec) (*Condition, error) {
	field, err := ParseField(spec.Field)
	if err != nil {
		return nil, err
	}

	cond := &Condition{
		Field:         field,
		Op:            Operator(spec.Op),
		Value:         spec.Value,
		CaseSensitive: spec.CaseSensitive,
	}

	switch cond.Op {
	case OpEquals, OpContains:
		if !field.isText() {
			return nil, fmt.Errorf("%w: operator %s requires a text field, got %s", consts.ErrInvalidRule, cond.Op, field)
		}
		if cond.Value == "" {
			return nil, fmt.Errorf("%w: operator %s requires a value", consts.ErrInvalidRule, cond.Op)
		}

	case OpRegex:
		if !field.isText() {
			return nil, fmt.Errorf("%w: operator %s requires a text field, got %s", consts.ErrInvalidRule, cond.Op, field)
		}
		expr := cond.Value
		if !cond.CaseSensitive {
			expr = "(?i)" + expr
		}
		pattern, err := regexp.Compile(expr)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", consts.ErrInvalidPattern, err)
		}
		cond.pattern = pattern

	case OpOlderThan, OpNewerThan:
		if field.Kind != FieldDate {
			return nil, fmt.Errorf("%w: operator %s requires the date field, got %s", consts.ErrInvalidRule, cond.Op, field)
		}
		age, err := helpers.ParseDuration(cond.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", consts.ErrInvalidRule, err)
		}
		cond.age = age

	case OpLargerThan, OpSmallerThan:
		if field.Kind != FieldSize {
			return nil, fmt.Errorf("%w: operator %s requires the size field, got %s", consts.ErrInvalidRule, cond.Op, field)
		}
		size, err := parseSize(cond.Value)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", consts.ErrInvalidRule, err)
		}
		cond.bytes = size

	case OpHasFlag:
		if field.Kind != FieldFlag {
			return nil, fmt.Errorf("%w: operator %s requires a flag:<name> field, got %s", consts.ErrInvalidRule, cond.Op, field)
		}

	case OpExists:
		if field.Kind != FieldHeader {
			return nil, fmt.Errorf("%w: operator %s requires a header:<name> field, got %s", consts.ErrInvalidRule, cond.Op, field)
		}

	default:
		return nil, fmt.Errorf("%w: %q", consts.ErrUnknownOp, spec.Op)
	}

	return cond, nil
}

func compileAction(spec actionSpec, opts Options) (Action, error) {
	action := Action{
		Kind:    ActionKind(spec.Kind),
		Mailbox: spec.Mailbox,
		Flag:    spec.Flag,
	}

	switch action.Kind {
	case ActionMove, ActionCopy:
		if action.Mailbox == "" {
			return Action{}, fmt.Errorf("%w for %s action", consts.ErrNoDestination, action.Kind)
		}

	case ActionTrash:
		if action.Mailbox == "" {
			action.Mailbox = opts.TrashMailbox
		}
		if action.Mailbox == "" {
			return Action{}, fmt.Errorf("%w: no trash mailbox configured", consts.ErrNoDestination)
		}

	case ActionDelete, ActionStop:
		// No parameters.

	case ActionSetFlag, ActionClearFlag:
		if action.Flag == "" {
			return Action{}, fmt.Errorf("%w: %s action requires a flag", consts.ErrInvalidRule, action.Kind)
		}

	case ActionSortList:
		if spec.MailboxBase == "" {
			return Action{}, fmt.Errorf("%w: sort-mailing-list requires mailbox_base", consts.ErrInvalidRule)
		}
		action.MailboxBase = spec.MailboxBase

		expr := spec.ListRegex
		if expr == "" {
			expr = defaultListRegex
		}
		pattern, err := regexp.Compile(expr)
		if err != nil {
			return Action{}, fmt.Errorf("%w: %v", consts.ErrInvalidPattern, err)
		}
		if pattern.NumSubexp() == 0 {
			return Action{}, fmt.Errorf("%w: list_regex %q has no capture group", consts.ErrInvalidPattern, expr)
		}
		group := 1
		if spec.ListRegexGroup != nil {
			group = *spec.ListRegexGroup
		} else if pattern.NumSubexp() > 1 {
			return Action{}, fmt.Errorf("%w: list_regex %q has multiple groups, set list_regex_group", consts.ErrInvalidPattern, expr)
		}
		if group < 1 || group > pattern.NumSubexp() {
			return Action{}, fmt.Errorf("%w: list_regex_group %d out of range", consts.ErrInvalidPattern, group)
		}
		action.ListPattern = pattern
		action.ListGroup = group

	default:
		return Action{}, fmt.Errorf("%w: %q", consts.ErrUnknownAction, spec.Kind)
	}

	return action, nil
}

// parseSize parses a byte size with an optional K/M/G suffix (powers of 1024).
func parseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}
	mult := int64(1)
	switch s[len(s)-1] {
	case 'k', 'K':
		mult = 1 << 10
		s = s[:len(s)-1]
	case 'm', 'M':
		mult = 1 << 20
		s = s[:len(s)-1]
	case 'g', 'G':
		mult = 1 << 30
		s = s[:len(s)-1]
	}
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative size %q", s)
	}
	return n * mult, nil
}
