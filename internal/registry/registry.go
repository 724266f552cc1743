// Package registry manages the curated and user-managed RSS source lists.
// Every mutation synchronously invalidates the owning scope's cache entry;
// there is no other staleness correction for source changes.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/samber/lo"

	"github.com/Hori98/Audion-sub008/internal/domain"
	"github.com/Hori98/Audion-sub008/internal/ports"
)

// Registry serves curated sources from config and user sources from storage.
type Registry struct {
	curated []domain.Source
	repo    ports.SourceRepository
	cache   ports.CacheInvalidator
	logger  *slog.Logger
}

// New builds a registry. Curated sources are forced active and read-only.
func New(curated []domain.Source, repo ports.SourceRepository, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	curated = lo.Map(curated, func(src domain.Source, _ int) domain.Source {
		src.Origin = domain.OriginCurated
		src.Active = true
		return src
	})
	return &Registry{curated: curated, repo: repo, logger: logger}
}

// SetCacheInvalidator attaches the cache after construction; the registry
// and the cache engine reference each other.
func (r *Registry) SetCacheInvalidator(cache ports.CacheInvalidator) {
	r.cache = cache
}

// List returns all sources in the scope, active or not.
func (r *Registry) List(ctx context.Context, scope domain.Scope) ([]domain.Source, error) {
	if scope.IsCurated() {
		out := make([]domain.Source, len(r.curated))
		copy(out, r.curated)
		return out, nil
	}
	return r.repo.SourcesByOwner(ctx, scope.OwnerID())
}

// ActiveSources returns only the sources included in fetching for the scope.
func (r *Registry) ActiveSources(ctx context.Context, scope domain.Scope) ([]domain.Source, error) {
	sources, err := r.List(ctx, scope)
	if err != nil {
		return nil, err
	}
	return lo.Filter(sources, func(src domain.Source, _ int) bool {
		return src.Active
	}), nil
}

// Add registers a new user source and invalidates the owner's cache entry.
func (r *Registry) Add(ctx context.Context, ownerID, name, feedURL string) (domain.Source, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.Source{}, fmt.Errorf("%w: source name is empty", domain.ErrValidation)
	}
	if err := validateURL(feedURL); err != nil {
		return domain.Source{}, err
	}

	existing, err := r.repo.SourcesByOwner(ctx, ownerID)
	if err != nil {
		return domain.Source{}, fmt.Errorf("list sources: %w", err)
	}
	if lo.ContainsBy(existing, func(src domain.Source) bool { return src.URL == feedURL }) {
		return domain.Source{}, fmt.Errorf("%w: %s", domain.ErrConflict, feedURL)
	}

	src := domain.Source{
		ID:     uuid.NewString(),
		Name:   name,
		URL:    feedURL,
		Origin: domain.OriginUser,
		Active: true,
	}
	if err := r.repo.SaveSource(ctx, ownerID, src); err != nil {
		return domain.Source{}, fmt.Errorf("save source: %w", err)
	}

	r.invalidate(ownerID)
	return src, nil
}

// SetActive toggles a user source's inclusion without deleting it.
func (r *Registry) SetActive(ctx context.Context, ownerID, sourceID string, active bool) error {
	src, err := r.lookupMutable(ctx, sourceID)
	if err != nil {
		return err
	}
	if src.Active == active {
		return nil
	}

	src.Active = active
	if err := r.repo.UpdateSource(ctx, src); err != nil {
		return fmt.Errorf("update source: %w", err)
	}

	r.invalidate(ownerID)
	return nil
}

// Remove deletes a user source permanently.
func (r *Registry) Remove(ctx context.Context, ownerID, sourceID string) error {
	if _, err := r.lookupMutable(ctx, sourceID); err != nil {
		return err
	}
	if err := r.repo.DeleteSource(ctx, sourceID); err != nil {
		return fmt.Errorf("delete source: %w", err)
	}

	r.invalidate(ownerID)
	return nil
}

// lookupMutable resolves a source ID and rejects curated sources, which are
// immutable by contract.
func (r *Registry) lookupMutable(ctx context.Context, sourceID string) (domain.Source, error) {
	if lo.ContainsBy(r.curated, func(src domain.Source) bool { return src.ID == sourceID }) {
		return domain.Source{}, fmt.Errorf("%w: curated sources are immutable", domain.ErrValidation)
	}
	src, err := r.repo.SourceByID(ctx, sourceID)
	if err != nil {
		return domain.Source{}, err
	}
	return src, nil
}

func (r *Registry) invalidate(ownerID string) {
	if r.cache == nil {
		return
	}
	r.cache.Invalidate(domain.UserScope(ownerID))
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%w: malformed feed URL %q", domain.ErrValidation, raw)
	}
	return nil
}
