package domain

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/Hori98/Audion-sub008/internal/genre"
)

// Article is a normalized feed entry served to feed and search consumers.
// Immutable once created; only NormalizedGenre may be recomputed when the
// taxonomy rule table changes.
type Article struct {
	ID              string
	SourceID        string
	SourceName      string
	Title           string
	Summary         string
	Link            string
	PublishedAt     time.Time
	RawGenre        string
	NormalizedGenre genre.Genre
}

// ArticleID derives a content-addressed identifier from link and title so the
// same article from the same source never duplicates across fetch cycles.
func ArticleID(link, title string) string {
	h := sha256.Sum256([]byte(link + "\n" + title))
	return fmt.Sprintf("%x", h[:16])
}
