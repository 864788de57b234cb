package shell

import (
	"fmt"
	"regexp"

	"gopkg.in/yaml.v3"
)

type sectionConfig struct {
	Open      openSetting      `yaml:"open"`
	RateLimit *rateLimitConfig `yaml:"rateLimit"`
	Scope     []ScopeEntry     `yaml:"scope"`
}

type rateLimitConfig struct {
	PerSecond float64 `yaml:"perSecond"`
	Burst     int     `yaml:"burst"`
}

// openSetting is either a boolean or a regular expression URLs must match.
type openSetting struct {
	all     bool
	pattern *regexp.Regexp
}

func (o *openSetting) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: open must be a boolean or a pattern", node.Line)
	}
	if node.Tag == "!!bool" {
		return node.Decode(&o.all)
	}
	re, err := regexp.Compile(node.Value)
	if err != nil {
		return fmt.Errorf("line %d: open pattern: %w", node.Line, err)
	}
	o.pattern = re
	return nil
}

func (o openSetting) allows(target string) bool {
	if o.all {
		return true
	}
	return o.pattern != nil && o.pattern.MatchString(target)
}

// ScopeEntry is one program the frontend may run.
type ScopeEntry struct {
	Name string   `yaml:"name"`
	Cmd  string   `yaml:"cmd"`
	Args ArgsSpec `yaml:"args"`
}

// ArgsSpec is true (any arguments), false (none) or a positional list of
// fixed strings and validators.
type ArgsSpec struct {
	Any  bool
	List []Arg
}

// Arg is a fixed argument or a validator pattern.
type Arg struct {
	Fixed     string
	Validator *regexp.Regexp
}

func (a *ArgsSpec) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Tag != "!!bool" {
			return fmt.Errorf("line %d: args must be a boolean or a list", node.Line)
		}
		return node.Decode(&a.Any)
	case yaml.SequenceNode:
		a.List = make([]Arg, 0, len(node.Content))
		for _, item := range node.Content {
			var arg Arg
			if err := arg.UnmarshalYAML(item); err != nil {
				return err
			}
			a.List = append(a.List, arg)
		}
		return nil
	default:
		return fmt.Errorf("line %d: args must be a boolean or a list", node.Line)
	}
}

func (a *Arg) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		a.Fixed = node.Value
		return nil
	case yaml.MappingNode:
		var v struct {
			Validator string `yaml:"validator"`
		}
		if err := node.Decode(&v); err != nil {
			return err
		}
		if v.Validator == "" {
			return fmt.Errorf("line %d: argument validator is empty", node.Line)
		}
		re, err := regexp.Compile(v.Validator)
		if err != nil {
			return fmt.Errorf("line %d: argument validator: %w", node.Line, err)
		}
		a.Validator = re
		return nil
	default:
		return fmt.Errorf("line %d: argument must be a string or {validator: ...}", node.Line)
	}
}

// check matches the caller's arguments against the allowed positions.
func (a ArgsSpec) check(args []string) error {
	if a.Any {
		return nil
	}
	if len(args) != len(a.List) {
		return fmt.Errorf("expected %d arguments, got %d", len(a.List), len(args))
	}
	for i, want := range a.List {
		if want.Validator != nil {
			if !want.Validator.MatchString(args[i]) {
				return fmt.Errorf("argument %d %q does not match %s", i, args[i], want.Validator)
			}
			continue
		}
		if args[i] != want.Fixed {
			return fmt.Errorf("argument %d must be %q", i, want.Fixed)
		}
	}
	return nil
}

// resolve fills validator-free positions so callers may omit fixed
// arguments entirely.
func (a ArgsSpec) resolve(args []string) []string {
	if a.Any || len(args) != 0 {
		return args
	}
	fixed := make([]string, 0, len(a.List))
	for _, arg := range a.List {
		if arg.Validator != nil {
			return args
		}
		fixed = append(fixed, arg.Fixed)
	}
	return fixed
}
