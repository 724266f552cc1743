package domain

// SourceOrigin distinguishes curated sources from user-managed ones.
type SourceOrigin string

const (
	OriginCurated SourceOrigin = "curated"
	OriginUser    SourceOrigin = "user"
)

// Source describes one RSS feed endpoint. Curated sources are immutable and
// always active; user sources are owned and mutated by a single user.
type Source struct {
	ID     string
	Name   string
	URL    string
	Origin SourceOrigin
	Active bool
}

// Scope is the unit of cache partitioning: the shared curated article set or
// one specific user's managed set.
type Scope string

// ScopeCurated addresses the shared, read-only article set.
const ScopeCurated Scope = "curated"

// UserScope addresses one user's managed article set.
func UserScope(ownerID string) Scope {
	return Scope("user:" + ownerID)
}

// IsCurated reports whether the scope addresses the shared article set.
func (s Scope) IsCurated() bool {
	return s == ScopeCurated
}

// OwnerID extracts the owning user from a user scope; empty for curated.
func (s Scope) OwnerID() string {
	const prefix = "user:"
	if len(s) <= len(prefix) || s[:len(prefix)] != prefix {
		return ""
	}
	return string(s[len(prefix):])
}
