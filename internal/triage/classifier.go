// Package triage implements the message triage pipeline: intent
// classification, reply composition, and orchestration of the hand-off to
// the outbox.
package triage

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Intent is a closed classification label for an inbound message.
type Intent string

const (
	IntentGreeting Intent = "greeting"
	IntentBudget   Intent = "budget"
	IntentStatus   Intent = "status"
	IntentHuman    Intent = "human"
	IntentUnknown  Intent = "unknown"
)

var knownIntents = map[Intent]bool{
	IntentGreeting: true,
	IntentBudget:   true,
	IntentStatus:   true,
	IntentHuman:    true,
	IntentUnknown:  true,
}

// Rule pairs a pattern with the intent it resolves to. Rules are evaluated
// in order; the first match wins.
type Rule struct {
	Intent  Intent
	pattern *regexp.Regexp
}

// NewRule compiles a rule from a regular expression applied to the
// case-folded message text.
func NewRule(intent Intent, pattern string) (Rule, error) {
	if !knownIntents[intent] {
		return Rule{}, fmt.Errorf("unknown intent %q", intent)
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return Rule{}, fmt.Errorf("rule %s: %w", intent, err)
	}
	return Rule{Intent: intent, pattern: re}, nil
}

// DefaultRules is the built-in policy table. Keyword sets are pt-BR plus
// the English "budget" alias, mirroring the production vocabulary.
func DefaultRules() []Rule {
	mustRule := func(intent Intent, pattern string) Rule {
		r, err := NewRule(intent, pattern)
		if err != nil {
			panic(err)
		}
		return r
	}
	return []Rule{
		mustRule(IntentGreeting, `^\s*(ol[áa]|oi|bom dia|boa tarde|boa noite)`),
		mustRule(IntentBudget, `orç[aã]mento|preço|quanto custa|cotação|budget`),
		mustRule(IntentStatus, `status|andamento|como est[aá]|progresso`),
		mustRule(IntentHuman, `humano|atendente|pessoa`),
	}
}

// ruleFile is the YAML schema for a replaceable rule policy file.
type ruleFile struct {
	Rules []struct {
		Intent  string `yaml:"intent"`
		Pattern string `yaml:"pattern"`
	} `yaml:"rules"`
}

// LoadRules reads an ordered rule table from a YAML policy file. The file
// replaces the built-in table wholesale; merging would make first-match
// order ambiguous.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	var rf ruleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	if len(rf.Rules) == 0 {
		return nil, fmt.Errorf("rules file %s defines no rules", path)
	}

	rules := make([]Rule, 0, len(rf.Rules))
	for i, entry := range rf.Rules {
		r, err := NewRule(Intent(entry.Intent), entry.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rules file %s, rule %d: %w", path, i, err)
		}
		rules = append(rules, r)
	}
	return rules, nil
}

// Classifier resolves message text to an intent using an ordered rule
// table. It is pure: no state, no side effects, same output for same input.
type Classifier struct {
	rules []Rule
}

// NewClassifier creates a classifier over the given rules, falling back to
// the built-in table when none are supplied.
func NewClassifier(rules []Rule) *Classifier {
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	return &Classifier{rules: rules}
}

// Classify returns the intent of the first matching rule, or IntentUnknown
// when nothing matches. Matching is case-insensitive.
func (c *Classifier) Classify(text string) Intent {
	msg := strings.ToLower(text)
	for _, r := range c.rules {
		if r.pattern.MatchString(msg) {
			return r.Intent
		}
	}
	return IntentUnknown
}
