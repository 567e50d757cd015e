package config

import (
	"fmt"
	"sort"

	"github.com/jpalmerr/cellstore"
)

// BuildStore converts parsed configuration into a store holding the
// configured initial state, with every validator, event and subscription
// registered.
//
// opts are applied after the memo capacity from cfg, so they take
// precedence. Returns an error if the initial state fails a validator.
func BuildStore(cfg *Config, opts ...cellstore.Option) (*cellstore.Store[any], error) {
	var all []cellstore.Option
	if cfg.MemoCapacity != nil {
		all = append(all, cellstore.WithMemoCapacity(*cfg.MemoCapacity))
	}
	all = append(all, opts...)

	st, err := cellstore.New[any](cfg.InitialState, all...)
	if err != nil {
		return nil, err
	}

	st.AddValidator(OpsValidatorKey, rejectFailedOps)
	names := make(map[string]bool, len(cfg.Validators))
	for _, vc := range cfg.Validators {
		// a reused name would replace an earlier validator, including ops
		if vc.Name == OpsValidatorKey || names[vc.Name] {
			return nil, fmt.Errorf("validator %q: name is reserved or already used", vc.Name)
		}
		names[vc.Name] = true

		fn := ruleValidator(vc)
		if !fn(cfg.InitialState) {
			return nil, fmt.Errorf("initial_state: rejected by validator %q", vc.Name)
		}
		st.AddValidator(vc.Name, fn)
	}

	for _, ev := range cfg.Events {
		reducer, check := eventReducer(ev)
		st.RegEventChecked(ev.Name, reducer, check)
	}
	for _, sc := range cfg.Subscriptions {
		selector, check := subSelector(sc)
		st.RegSubChecked(sc.Name, selector, check)
	}

	return st, nil
}

// BuildFeeds converts the feed section into SDK feeds.
func BuildFeeds(cfg *Config) ([]cellstore.Feed, error) {
	feeds := make([]cellstore.Feed, 0, len(cfg.Feeds))
	for _, fc := range cfg.Feeds {
		f, err := buildFeed(fc)
		if err != nil {
			return nil, fmt.Errorf("feed %q: %w", fc.Name, err)
		}
		feeds = append(feeds, f)
	}
	return feeds, nil
}

func buildFeed(fc FeedConfig) (cellstore.Feed, error) {
	var opts []cellstore.FeedOption

	if fc.Path != "" {
		opts = append(opts, cellstore.WithPath(fc.Path))
	}
	if fc.Timeout != 0 {
		opts = append(opts, cellstore.WithTimeout(fc.Timeout.Duration()))
	}
	if fc.Interval != 0 {
		opts = append(opts, cellstore.WithInterval(fc.Interval.Duration()))
	}
	if len(fc.Headers) > 0 {
		opts = append(opts, cellstore.WithHeaders(mapToKeyValuePairs(fc.Headers)...))
	}

	return cellstore.NewFeed(fc.Name, fc.URL, fc.Event, opts...)
}

// ServeOptions returns the serving options the configuration describes:
// title, port, polling interval and feeds.
func ServeOptions(cfg *Config) ([]cellstore.ServeOption, error) {
	feeds, err := BuildFeeds(cfg)
	if err != nil {
		return nil, err
	}
	return []cellstore.ServeOption{
		cellstore.WithTitle(cfg.Title),
		cellstore.WithPort(cfg.Port),
		cellstore.WithPollingInterval(cfg.PollInterval.Duration()),
		cellstore.WithFeeds(feeds...),
	}, nil
}

// mapToKeyValuePairs converts a map to a sorted slice of key-value pairs.
func mapToKeyValuePairs(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(m)*2)
	for _, k := range keys {
		pairs = append(pairs, k, m[k])
	}
	return pairs
}
