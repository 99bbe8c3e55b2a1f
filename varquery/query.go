// Package varquery turns declarative filter descriptions into store
// queries and resolves query- or list-shaped configuration into variable
// caches.
package varquery

import (
	"context"

	"github.com/tjmonk/varmsg/errors"
	"github.com/tjmonk/varmsg/varcache"
	"github.com/tjmonk/varmsg/varstore"
)

// listGrowBy is the growth increment for caches sized from an explicit
// variable name list.
const listGrowBy = 10

// Config is the query-shaped configuration accepted for the "trigger" and
// "vars" fields of a message definition. Pointer fields distinguish absent
// from empty.
type Config struct {
	Tags       *string `json:"tags,omitempty"`
	Match      *string `json:"match,omitempty"`
	Flags      *string `json:"flags,omitempty"`
	InstanceID *int    `json:"instanceID,omitempty"`
}

// FlagParser converts a comma-separated flag-name list into a bitmask.
// varstore.Store satisfies it.
type FlagParser interface {
	ParseFlags(spec string) (varstore.Flags, error)
}

// BuildQuery produces a store query from a filter description. At least one
// filter dimension must be set or the build fails with ErrUnsupported; a tag
// spec at or beyond varstore.MaxTagSpecLen fails with ErrSizeLimit.
func BuildQuery(cfg Config, flags FlagParser) (varstore.Query, error) {
	var q varstore.Query

	if cfg.Tags != nil {
		if len(*cfg.Tags) >= varstore.MaxTagSpecLen {
			return varstore.Query{}, errors.WrapInvalid(errors.ErrSizeLimit,
				"QueryBuilder", "BuildQuery", "tag spec length")
		}
		q.TagSpec = *cfg.Tags
		q.Kind |= varstore.QueryTags
	}

	if cfg.Match != nil {
		q.Match = *cfg.Match
		q.Kind |= varstore.QueryMatch
	}

	if cfg.Flags != nil {
		parsed, err := flags.ParseFlags(*cfg.Flags)
		if err != nil {
			return varstore.Query{}, errors.Wrap(err, "QueryBuilder", "BuildQuery", "parse flags")
		}
		q.Flags = parsed
		q.Kind |= varstore.QueryFlags
	}

	if cfg.InstanceID != nil {
		q.InstanceID = *cfg.InstanceID
		q.Kind |= varstore.QueryInstanceID
	}

	if q.Kind == 0 {
		return varstore.Query{}, errors.WrapInvalid(errors.ErrUnsupported,
			"QueryBuilder", "BuildQuery", "query must filter on something")
	}

	return q, nil
}

// ResolveQuery builds a query from cfg, executes it against the store, and
// populates a cache with every distinct matching handle. A non-nil target
// cache is reused; a fresh one uses the default sizing.
func ResolveQuery(
	ctx context.Context,
	store varstore.Store,
	cfg Config,
	target *varcache.Cache,
) (*varcache.Cache, error) {
	if target == nil {
		target = varcache.New(varcache.DefaultInitialSize, varcache.DefaultGrowBy)
	}

	q, err := BuildQuery(cfg, store)
	if err != nil {
		return nil, err
	}

	handles, err := store.Search(ctx, q)
	if err != nil {
		return nil, errors.Wrap(err, "Resolver", "ResolveQuery", "search store")
	}

	for _, h := range handles {
		if err := target.Add(h); err != nil {
			return nil, errors.Wrap(err, "Resolver", "ResolveQuery", "add handle")
		}
	}

	return target, nil
}

// ResolveList resolves an explicit variable name list into a cache, in
// input order. The first unresolved name or non-string entry aborts the
// remaining entries; handles already added stay added. A non-nil target
// cache is reused; a fresh one is sized to the list length.
func ResolveList(
	ctx context.Context,
	store varstore.Store,
	entries []any,
	target *varcache.Cache,
) (*varcache.Cache, error) {
	if target == nil {
		target = varcache.New(len(entries), listGrowBy)
	}

	for _, entry := range entries {
		name, ok := entry.(string)
		if !ok {
			return nil, errors.WrapInvalid(errors.ErrUnsupported,
				"Resolver", "ResolveList", "list entries must be strings")
		}

		h, err := store.FindByName(ctx, name)
		if err != nil {
			return nil, errors.Wrap(err, "Resolver", "ResolveList", "resolve "+name)
		}

		if err := target.Add(h); err != nil {
			return nil, errors.Wrap(err, "Resolver", "ResolveList", "add "+name)
		}
	}

	return target, nil
}
