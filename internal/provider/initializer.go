package provider

import (
	"context"
	"fmt"
	"os"

	"github.com/dshills/clapfilter/internal/cache"
	"github.com/dshills/clapfilter/internal/filter"
	"github.com/dshills/clapfilter/internal/integration/process"
	"github.com/dshills/clapfilter/internal/match"
	"github.com/dshills/clapfilter/internal/session"
)

// Initializer implements session.SourceInitializer: the decision
// procedure that turns a provider id and session context into a
// filter.Source on first on_initialize.
type Initializer struct {
	Known         *session.Registry
	Editor        EditorQuerier
	Cache         *cache.Store
	Supervisor    *process.Supervisor
	AlwaysRefresh AlwaysRefresh
}

// NewInitializer creates an Initializer. known may be nil if no
// specialized provider-id paths are registered. editor may be nil, in
// which case only a known provider id with its own Source initializes
// and any other id fails; store may be nil, in which case no cache
// digest is looked up or stored. supervisor
// tracks every shell command any session run through this Initializer
// ever spawns, so the process that owns it can drain them all on
// shutdown; it must be non-nil whenever a command-backed provider
// source can occur.
func NewInitializer(known *session.Registry, editor EditorQuerier, store *cache.Store, supervisor *process.Supervisor, alwaysRefresh AlwaysRefresh) *Initializer {
	if alwaysRefresh == nil {
		alwaysRefresh = func(string) bool { return false }
	}
	return &Initializer{Known: known, Editor: editor, Cache: store, Supervisor: supervisor, AlwaysRefresh: alwaysRefresh}
}

// Initialize implements session.SourceInitializer.
func (in *Initializer) Initialize(ctx context.Context, sctx session.Context) (filter.Source, session.ScaleEstimate, error) {
	if in.Known != nil {
		if p, ok := in.Known.Lookup(sctx.ProviderID); ok {
			if specialized, ok := p.(SpecializedSource); ok {
				return specialized.Source(ctx, sctx)
			}
		}
	}

	if in.Editor == nil {
		return nil, session.ScaleEstimate{Kind: session.KindInitializationFailed, Msg: "no editor connection and no known-provider source"},
			fmt.Errorf("provider %q: no source available", sctx.ProviderID)
	}

	desc, err := in.Editor.ProviderSource(ctx, sctx.ProviderID)
	if err != nil {
		return nil, session.ScaleEstimate{Kind: session.KindInitializationFailed, Msg: err.Error()}, err
	}

	switch {
	case desc.None:
		return filter.NewSliceSource(nil), session.ScaleEstimate{Kind: session.KindSmall, Count: 0}, nil

	case desc.Command != "":
		if in.Cache != nil && !in.AlwaysRefresh(sctx.ProviderID) {
			if d, ok := in.Cache.Digest(desc.Command, sctx.Cwd); ok {
				f, ferr := openCacheFile(d.CachePath)
				if ferr == nil {
					return filter.NewFileLineSource(d.CachePath, f, f.Close),
						session.ScaleEstimate{Kind: session.KindCachedFile, Count: int(d.TotalLines), Path: d.CachePath}, nil
				}
			}
		}
		return runCommandSource(ctx, in.Supervisor, in.Cache, desc.Command, sctx.Cwd)

	default:
		items := make([]match.Item, len(desc.List))
		for i, l := range desc.List {
			items[i] = match.Item{RawText: l, MatchText: l}
		}
		return filter.NewSliceSource(items), session.ScaleEstimate{Kind: session.KindSmall, Count: len(items)}, nil
	}
}

// SpecializedSource is implemented by known-provider adapters (buffer-
// lines, tags) that supply their own Source rather than going through
// the editor's generic provider_source RPC round-trip.
type SpecializedSource interface {
	Source(ctx context.Context, sctx session.Context) (filter.Source, session.ScaleEstimate, error)
}

// MatcherBuilderFor implements session.MatcherBuilderOverride: a known
// provider's OnInitialize can supply a scope-narrowed or bonus-weighted
// MatcherBuilder (grep-line narrows to post-path content; others fall
// back to the generic default), overriding the Manager-wide one for this
// session.
func (in *Initializer) MatcherBuilderFor(sctx session.Context) session.MatcherBuilder {
	if in.Known == nil {
		return nil
	}
	p, ok := in.Known.Lookup(sctx.ProviderID)
	if !ok {
		return nil
	}
	mb, err := p.OnInitialize(sctx)
	if err != nil {
		return nil
	}
	return mb
}

// openCacheFile opens a cache digest's backing file for FileLineSource
// to stream.
func openCacheFile(path string) (*os.File, error) {
	return os.Open(path)
}
