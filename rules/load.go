package rules

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"
)

// ruleSpec mirrors one rule entry in a YAML rules file.
//
//	rules:
//	  - name: invoices
//	    when:
//	      all:
//	        - field: subject
//	          op: contains
//	          value: invoice
//	    actions:
//	      - kind: move
//	        mailbox: Invoices
//
// A rule without "when" is a catch-all and must come last.
type ruleSpec struct {
	Name    string       `yaml:"name"`
	When    *nodeSpec    `yaml:"when"`
	Actions []actionSpec `yaml:"actions"`
}

// nodeSpec is either a combinator (exactly one of all/any/not set) or an
// inline condition (field/op set). The compiler rejects mixed or empty nodes.
type nodeSpec struct {
	All []nodeSpec `yaml:"all"`
	Any []nodeSpec `yaml:"any"`
	Not *nodeSpec  `yaml:"not"`

	Field         string `yaml:"field"`
	Op            string `yaml:"op"`
	Value         string `yaml:"value"`
	CaseSensitive bool   `yaml:"case_sensitive"`
}

type actionSpec struct {
	Kind           string `yaml:"kind"`
	Mailbox        string `yaml:"mailbox"`
	Flag           string `yaml:"flag"`
	MailboxBase    string `yaml:"mailbox_base"`
	ListRegex      string `yaml:"list_regex"`
	ListRegexGroup *int   `yaml:"list_regex_group"`
}

type fileSpec struct {
	Rules []ruleSpec `yaml:"rules"`
}

// LoadFile reads a YAML rules file and compiles it. All structural errors
// (unknown fields, bad patterns, misplaced catch-all) surface here, before
// any connection to a server is made.
func LoadFile(path string, opts Options) (*RuleSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rules file: %w", err)
	}
	rs, err := LoadBytes(raw, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}

// LoadBytes parses and compiles a YAML rules document.
func LoadBytes(raw []byte, opts Options) (*RuleSet, error) {
	var spec fileSpec
	if err := yaml.UnmarshalStrict(raw, &spec); err != nil {
		return nil, fmt.Errorf("parsing rules: %w", err)
	}
	return Compile(spec.Rules, opts)
}
