// Package genre defines the canonical genre taxonomy and the normalization
// of arbitrary upstream feed categories into it.
package genre

import "strings"

// Genre is one of the fixed canonical labels used for filtering and display.
type Genre string

const (
	Politics      Genre = "politics"
	Business      Genre = "business"
	Technology    Genre = "technology"
	Science       Genre = "science"
	Health        Genre = "health"
	Sports        Genre = "sports"
	Entertainment Genre = "entertainment"
	World         Genre = "world"
	Lifestyle     Genre = "lifestyle"
	Culture       Genre = "culture"
	Opinion       Genre = "opinion"
	Other         Genre = "other"
)

// All returns every canonical genre in canonical order.
func All() []Genre {
	return []Genre{
		Politics, Business, Technology, Science, Health, Sports,
		Entertainment, World, Lifestyle, Culture, Opinion, Other,
	}
}

// sentinelAll matches the UI's "no genre filter" selection in both locales.
var sentinelAll = map[string]bool{
	"all": true,
	"すべて":  true,
}

// IsAll reports whether the label is the catch-all "no filter" sentinel.
func IsAll(label string) bool {
	return sentinelAll[strings.ToLower(strings.TrimSpace(label))]
}

// rule maps upstream category keywords to one canonical genre. Rules are
// ordered most-specific first; the first matching rule wins, so a compound
// upstream label resolves by declaration order.
type rule struct {
	genre    Genre
	keywords []string
}

var rules = []rule{
	{Politics, []string{"politic", "election", "government", "parliament", "diet", "政治", "選挙", "国会"}},
	{Business, []string{"business", "econom", "finance", "market", "money", "startup", "ビジネス", "経済", "金融", "株"}},
	{Technology, []string{"tech", "software", "gadget", "digital", "internet", "テクノロジー", "テック", "科学技術", "ガジェット"}},
	{Science, []string{"science", "research", "space", "physics", "biology", "科学", "宇宙", "研究"}},
	{Health, []string{"health", "medic", "wellness", "fitness", "covid", "健康", "医療"}},
	{Sports, []string{"sport", "baseball", "soccer", "football", "olympic", "スポーツ", "野球", "サッカー"}},
	{Entertainment, []string{"entertainment", "movie", "music", "celebrity", "anime", "game", "エンタメ", "芸能", "映画", "音楽", "アニメ", "ゲーム"}},
	{World, []string{"world", "international", "global", "foreign", "国際", "海外", "世界"}},
	{Lifestyle, []string{"lifestyle", "life", "food", "travel", "fashion", "ライフ", "暮らし", "グルメ", "旅行"}},
	{Culture, []string{"culture", "art", "book", "history", "文化", "アート", "書評"}},
	{Opinion, []string{"opinion", "editorial", "column", "社説", "コラム", "オピニオン"}},
}

// canonical resolves an already-canonical label back to itself so Normalize
// is a fixed point on its own output.
var canonical = func() map[string]Genre {
	m := make(map[string]Genre, len(All()))
	for _, g := range All() {
		m[string(g)] = g
	}
	return m
}()

// Normalize maps an arbitrary upstream category label to a canonical genre.
// Total and deterministic: unmatched input resolves to Other, never an error.
func Normalize(raw string) Genre {
	label := strings.ToLower(strings.TrimSpace(raw))
	if label == "" {
		return Other
	}

	if g, ok := canonical[label]; ok {
		return g
	}

	for _, r := range rules {
		for _, kw := range r.keywords {
			if strings.Contains(label, kw) {
				return r.genre
			}
		}
	}

	return Other
}
