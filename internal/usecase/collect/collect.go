// Package collect implements the five source-collector variants behind a
// single capability: collect(sources) -> (articles, errors). A per-source
// failure never aborts sibling fetches (spec.md §4.1).
package collect

import (
	"context"

	"golang.org/x/sync/errgroup"

	"catchup-feed/internal/domain/entity"
)

// Collector is the uniform contract every source-kind variant implements.
type Collector interface {
	// Kind identifies which SourceKind this collector handles.
	Kind() entity.SourceKind
	// Collect fetches every source and returns the articles it produced
	// plus any per-source failures. It never returns a top-level error:
	// individual source failures are carried as CollectError values.
	Collect(ctx context.Context, sources []entity.SourceFeed) ([]entity.RawArticle, []entity.CollectError)
}

// Registry dispatches collection by source kind, per spec.md §9's
// "tagged set of concrete types... no virtual-inheritance tree needed".
type Registry struct {
	collectors map[entity.SourceKind]Collector
}

// NewRegistry builds a registry from the given collectors, keyed by Kind().
func NewRegistry(collectors ...Collector) *Registry {
	r := &Registry{collectors: make(map[entity.SourceKind]Collector)}
	for _, c := range collectors {
		r.collectors[c.Kind()] = c
	}
	return r
}

// Get returns the collector for kind, or nil if none is registered.
func (r *Registry) Get(kind entity.SourceKind) Collector {
	return r.collectors[kind]
}

// CollectAll fans the given sources out to their respective collectors
// concurrently (one goroutine per source kind present) and merges results
// via list-concatenation; order between collectors is unspecified
// (spec.md §5, §9 "accumulator semantics").
func (r *Registry) CollectAll(ctx context.Context, sourcesByKind map[entity.SourceKind][]entity.SourceFeed) ([]entity.RawArticle, []entity.CollectError) {
	type result struct {
		articles []entity.RawArticle
		errs     []entity.CollectError
	}

	results := make([]result, len(sourcesByKind))
	kinds := make([]entity.SourceKind, 0, len(sourcesByKind))
	for kind := range sourcesByKind {
		kinds = append(kinds, kind)
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		i, kind := i, kind
		g.Go(func() error {
			c := r.Get(kind)
			if c == nil {
				return nil
			}
			articles, errs := c.Collect(gctx, sourcesByKind[kind])
			results[i] = result{articles: articles, errs: errs}
			return nil
		})
	}
	_ = g.Wait() // collectors never return a top-level error; nothing to propagate

	var articles []entity.RawArticle
	var errs []entity.CollectError
	for _, res := range results {
		articles = append(articles, res.articles...)
		errs = append(errs, res.errs...)
	}
	return articles, errs
}
