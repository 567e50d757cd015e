// Package config describes a cellstore store in YAML.
//
// This package enables running a store as a standalone binary with a
// configuration file, as an alternative to registering reducers and
// selectors in Go. State is a JSON-shaped document; events and
// subscriptions address it by dot paths.
//
// Example configuration:
//
//	port: 8080
//	poll_interval: 30s
//
//	initial_state:
//	  count: 0
//	  todos: []
//
//	validators:
//	  - path: count
//	    rule: min:0
//
//	events:
//	  - name: inc
//	    op: inc
//	    path: count
//	  - name: add-todo
//	    op: append
//	    path: todos
//
//	subscriptions:
//	  - name: count
//	    path: count
//	  - name: todo-count
//	    op: len
//	    path: todos
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jpalmerr/cellstore/internal/pathops"
)

// minPollInterval keeps feeds from hammering their upstreams.
const minPollInterval = 1 * time.Second

// Config is the root configuration structure.
//
// It maps directly to the YAML configuration file structure.
// Use [Load] or [Parse] to create a Config from YAML.
type Config struct {
	// Title is the inspector page title. Defaults to "cellstore".
	Title string `yaml:"title"`

	// Port is the HTTP server port. Defaults to 8080.
	Port int `yaml:"port"`

	// PollInterval is the default time between feed polls.
	// Accepts duration strings like "10s", "1m". Defaults to 15s.
	PollInterval Duration `yaml:"poll_interval"`

	// MemoCapacity bounds the memo cache of every event and subscription.
	// Unset uses the store default; 0 disables memoization.
	MemoCapacity *int `yaml:"memo_capacity"`

	// InitialState is the starting document. Defaults to an empty object.
	InitialState any `yaml:"initial_state"`

	// Validators guard every state change, in order.
	Validators []ValidatorConfig `yaml:"validators"`

	// Events are the named state transitions.
	Events []EventConfig `yaml:"events"`

	// Subscriptions are the named derived values.
	Subscriptions []SubscriptionConfig `yaml:"subscriptions"`

	// Feeds are JSON URLs polled while serving.
	Feeds []FeedConfig `yaml:"feeds"`

	// Script is the step list run by the replay command.
	Script []StepConfig `yaml:"script"`
}

// ValidatorConfig checks the value at Path in every candidate state.
type ValidatorConfig struct {
	// Name is the validator key reported on rejection.
	// Defaults to "<path> <rule>".
	Name string `yaml:"name"`

	// Path selects the checked value. Empty checks the whole document.
	Path string `yaml:"path"`

	// Rule is the check to apply.
	Rule RuleConfig `yaml:"rule"`
}

// RuleConfig is a validator rule.
//
// It supports two formats in YAML:
//
// Shorthand string:
//
//	rule: min:0
//	rule: max:100
//	rule: maxlen:20
//	rule: type:string
//	rule: required
//
// Structured object:
//
//	rule:
//	  kind: min
//	  value: 0
type RuleConfig struct {
	// Kind is one of "min", "max", "maxlen", "type", "required".
	Kind string

	// Value is the rule operand: a number for min, max and maxlen, a type
	// name for type, empty for required.
	Value string
}

// EventConfig defines one event and the op its reducer applies.
type EventConfig struct {
	// Name is the event name.
	Name string `yaml:"name"`

	// Op is one of set, inc, append, remove, delete, merge, toggle, reset.
	Op string `yaml:"op"`

	// Path is where the op applies. Dispatch arguments before the op's own
	// value extend it.
	Path string `yaml:"path"`

	// Value is the replacement for reset and the default step for inc.
	Value any `yaml:"value"`
}

// SubscriptionConfig defines one subscription.
type SubscriptionConfig struct {
	// Name is the subscription name.
	Name string `yaml:"name"`

	// Op is get (the default) or len.
	Op string `yaml:"op"`

	// Path is the selected location. Subscription arguments extend it.
	Path string `yaml:"path"`

	// Default is returned by get when the path is missing.
	Default any `yaml:"default"`
}

// FeedConfig defines a JSON URL polled while serving.
type FeedConfig struct {
	// Name identifies the feed in logs and /api/feeds.
	Name string `yaml:"name"`

	// URL is the polled endpoint.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}
	URL string `yaml:"url"`

	// Event is dispatched with the payload as its only argument.
	Event string `yaml:"event"`

	// Path selects part of the response body. Empty dispatches the whole
	// document.
	Path string `yaml:"path"`

	// Headers are sent with each request.
	// Values support environment variable substitution.
	Headers map[string]string `yaml:"headers"`

	// Timeout is the request timeout. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`

	// Interval overrides poll_interval for this feed.
	// Must be between 1s and 1h.
	Interval Duration `yaml:"interval"`
}

// StepConfig is one replay step: exactly one of Subscribe or Dispatch.
type StepConfig struct {
	Subscribe string `yaml:"subscribe"`
	Dispatch  string `yaml:"dispatch"`
	Args      []any  `yaml:"args"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// UnmarshalYAML implements yaml.Unmarshaler for RuleConfig.
func (r *RuleConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind == yaml.ScalarNode {
		var s string
		if err := node.Decode(&s); err != nil {
			return err
		}
		return r.parseShorthand(s)
	}

	if node.Kind == yaml.MappingNode {
		// temporary struct to avoid infinite recursion
		var raw struct {
			Kind  string `yaml:"kind"`
			Value string `yaml:"value"`
		}
		if err := node.Decode(&raw); err != nil {
			return err
		}
		r.Kind = raw.Kind
		r.Value = raw.Value
		return nil
	}

	return fmt.Errorf("rule must be a string or object, got %v", node.Kind)
}

// parseShorthand splits "kind:value" or a bare kind.
func (r *RuleConfig) parseShorthand(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	if idx := strings.Index(s, ":"); idx != -1 {
		r.Kind = s[:idx]
		r.Value = s[idx+1:]
		return nil
	}
	r.Kind = s
	return nil
}

// String returns the shorthand form.
func (r RuleConfig) String() string {
	if r.Value == "" {
		return r.Kind
	}
	return r.Kind + ":" + r.Value
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
// Group 1: variable name
// Group 2: the ":-default" part (if present, indicates a default was specified)
// Group 3: the default value (may be empty for ${VAR:-})
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with environment values.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		sub := envVarPattern.FindStringSubmatch(match)
		name := sub[1]
		hasDefault := sub[2] != ""

		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		if hasDefault {
			return sub[3]
		}
		firstErr = fmt.Errorf("environment variable %q is not set", name)
		return match
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}

// Load reads and parses a YAML configuration file.
//
// Environment variables in feed URLs and headers are expanded.
// Returns an error if the file cannot be read, parsed or validated.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data.
//
// Defaults are applied for Port (8080) and PollInterval (15s), and the
// initial state is normalized so YAML integers become float64 like the
// numbers arriving over JSON.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.PollInterval == 0 {
		cfg.PollInterval = Duration(15 * time.Second)
	}
	if cfg.InitialState == nil {
		cfg.InitialState = map[string]any{}
	}
	cfg.InitialState = pathops.Normalize(cfg.InitialState)

	for i := range cfg.Events {
		cfg.Events[i].Value = pathops.Normalize(cfg.Events[i].Value)
	}
	for i := range cfg.Subscriptions {
		cfg.Subscriptions[i].Default = pathops.Normalize(cfg.Subscriptions[i].Default)
	}
	for i := range cfg.Script {
		cfg.Script[i].Args = normalizeArgs(cfg.Script[i].Args)
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", c.Port)
	}
	if c.PollInterval.Duration() < minPollInterval {
		return fmt.Errorf("poll_interval must be at least %s, got %s", minPollInterval, c.PollInterval.Duration())
	}
	if c.MemoCapacity != nil && *c.MemoCapacity < 0 {
		return fmt.Errorf("memo_capacity cannot be negative, got %d", *c.MemoCapacity)
	}

	validators := make(map[string]bool, len(c.Validators))
	for i := range c.Validators {
		v := &c.Validators[i]
		if _, err := pathops.Parse(v.Path); err != nil {
			return fmt.Errorf("validators[%d]: %w", i, err)
		}
		if err := validateRule(v.Rule); err != nil {
			return fmt.Errorf("validators[%d]: %w", i, err)
		}
		if v.Name == "" {
			v.Name = strings.TrimSpace(v.Path + " " + v.Rule.String())
		}
		if v.Name == OpsValidatorKey {
			return fmt.Errorf("validators[%d] (%s): name is reserved", i, v.Name)
		}
		if validators[v.Name] {
			return fmt.Errorf("validators[%d] (%s): duplicate validator name", i, v.Name)
		}
		validators[v.Name] = true
	}

	events := make(map[string]bool, len(c.Events))
	for i := range c.Events {
		ev := &c.Events[i]
		if ev.Name == "" {
			return fmt.Errorf("events[%d]: name is required", i)
		}
		if events[ev.Name] {
			return fmt.Errorf("events[%d] (%s): duplicate event name", i, ev.Name)
		}
		events[ev.Name] = true

		if _, ok := eventOps[ev.Op]; !ok {
			return fmt.Errorf("events[%d] (%s): unknown op %q (expected one of %s)", i, ev.Name, ev.Op, opNames(eventOps))
		}
		if _, err := pathops.Parse(ev.Path); err != nil {
			return fmt.Errorf("events[%d] (%s): %w", i, ev.Name, err)
		}
		if ev.Op == "inc" && ev.Value != nil {
			if _, ok := pathops.Number(ev.Value); !ok {
				return fmt.Errorf("events[%d] (%s): inc value must be a number", i, ev.Name)
			}
		}
	}

	subs := make(map[string]bool, len(c.Subscriptions))
	for i := range c.Subscriptions {
		sc := &c.Subscriptions[i]
		if sc.Name == "" {
			return fmt.Errorf("subscriptions[%d]: name is required", i)
		}
		if subs[sc.Name] {
			return fmt.Errorf("subscriptions[%d] (%s): duplicate subscription name", i, sc.Name)
		}
		subs[sc.Name] = true

		if sc.Op == "" {
			sc.Op = "get"
		}
		if _, ok := subOps[sc.Op]; !ok {
			return fmt.Errorf("subscriptions[%d] (%s): unknown op %q (expected one of %s)", i, sc.Name, sc.Op, opNames(subOps))
		}
		if _, err := pathops.Parse(sc.Path); err != nil {
			return fmt.Errorf("subscriptions[%d] (%s): %w", i, sc.Name, err)
		}
	}

	feeds := make(map[string]bool, len(c.Feeds))
	for i := range c.Feeds {
		f := &c.Feeds[i]
		if err := f.expandAndValidate(events); err != nil {
			if f.Name == "" {
				return fmt.Errorf("feeds[%d]: %w", i, err)
			}
			return fmt.Errorf("feeds[%d] (%s): %w", i, f.Name, err)
		}
		if feeds[f.Name] {
			return fmt.Errorf("feeds[%d] (%s): duplicate feed name", i, f.Name)
		}
		feeds[f.Name] = true
	}

	for i, step := range c.Script {
		switch {
		case step.Subscribe != "" && step.Dispatch != "":
			return fmt.Errorf("script[%d]: set either subscribe or dispatch, not both", i)
		case step.Subscribe != "":
			if !subs[step.Subscribe] {
				return fmt.Errorf("script[%d]: unknown subscription %q", i, step.Subscribe)
			}
		case step.Dispatch != "":
			if !events[step.Dispatch] {
				return fmt.Errorf("script[%d]: unknown event %q", i, step.Dispatch)
			}
		default:
			return fmt.Errorf("script[%d]: subscribe or dispatch is required", i)
		}
	}

	if len(c.Events) == 0 {
		return errors.New("at least one event must be defined")
	}

	return nil
}

func (f *FeedConfig) expandAndValidate(events map[string]bool) error {
	if f.Name == "" {
		return errors.New("name is required")
	}
	if f.Event == "" {
		return errors.New("event is required")
	}
	if !events[f.Event] {
		return fmt.Errorf("unknown event %q", f.Event)
	}

	if f.URL == "" {
		return errors.New("url is required")
	}
	expanded, err := expandEnvVars(f.URL)
	if err != nil {
		return fmt.Errorf("url: %w", err)
	}
	f.URL = expanded

	parsedURL, err := url.Parse(f.URL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("url scheme must be http or https, got %q", parsedURL.Scheme)
	}

	for k, v := range f.Headers {
		expanded, err := expandEnvVars(v)
		if err != nil {
			return fmt.Errorf("headers[%s]: %w", k, err)
		}
		f.Headers[k] = expanded
	}

	if _, err := pathops.Parse(f.Path); err != nil {
		return err
	}

	if f.Timeout != 0 && f.Timeout.Duration() < time.Second {
		return fmt.Errorf("timeout must be at least 1s if specified, got %s", f.Timeout.Duration())
	}
	if f.Interval != 0 {
		if f.Interval.Duration() < time.Second {
			return fmt.Errorf("interval must be at least 1s, got %s", f.Interval.Duration())
		}
		if f.Interval.Duration() > time.Hour {
			return fmt.Errorf("interval must not exceed 1h, got %s", f.Interval.Duration())
		}
	}
	return nil
}

var typeNames = map[string]bool{
	"null": true, "bool": true, "number": true, "string": true, "list": true, "object": true,
}

func validateRule(r RuleConfig) error {
	switch r.Kind {
	case "required":
		if r.Value != "" {
			return errors.New("rule 'required' takes no value")
		}
	case "min", "max":
		if _, err := strconv.ParseFloat(r.Value, 64); err != nil {
			return fmt.Errorf("rule '%s' requires a number, got %q", r.Kind, r.Value)
		}
	case "maxlen":
		if n, err := strconv.Atoi(r.Value); err != nil || n < 0 {
			return fmt.Errorf("rule 'maxlen' requires a non-negative integer, got %q", r.Value)
		}
	case "type":
		if !typeNames[r.Value] {
			return fmt.Errorf("rule 'type' requires one of null, bool, number, string, list, object, got %q", r.Value)
		}
	case "":
		return errors.New("rule is required")
	default:
		return fmt.Errorf("unknown rule %q (expected 'min:N', 'max:N', 'maxlen:N', 'type:T' or 'required')", r.Kind)
	}
	return nil
}

func normalizeArgs(args []any) []any {
	if args == nil {
		return nil
	}
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = pathops.Normalize(a)
	}
	return out
}
