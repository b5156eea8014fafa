// Package search answers free text questions with a keyword ranking over
// the showtime records.
package search

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"github.com/iliyamo/showtime-chatbot/internal/model"
	"github.com/iliyamo/showtime-chatbot/internal/repository"
)

var stopwords = map[string]bool{
	"the": true, "and": true, "for": true, "are": true, "any": true, "what": true, "which": true,
	"show": true, "shows": true, "movie": true, "movies": true, "playing": true, "near": true,
	"with": true, "there": true, "this": true, "that": true, "tell": true, "about": true,
	"can": true, "you": true, "me": true, "some": true, "good": true, "today": true,
}

// Index ranks store records by how many query terms appear in them.
type Index struct {
	store repository.ShowtimeStore
	limit int
}

func NewIndex(store repository.ShowtimeStore, limit int) *Index {
	if limit < 1 {
		limit = 5
	}
	return &Index{store: store, limit: limit}
}

// Search returns up to limit records, best match first.  Records that
// match no term are left out.
func (i *Index) Search(ctx context.Context, query string) ([]model.Showtime, error) {
	terms := tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}
	all, err := i.store.Find(ctx, model.ShowtimeKey{})
	if err != nil {
		return nil, err
	}

	type hit struct {
		rec   model.Showtime
		score int
	}
	var hits []hit
	for _, rec := range all {
		hay := strings.ToLower(strings.Join([]string{
			rec.MovieName, rec.TheaterLocation, rec.Address, rec.City, rec.Genre, rec.Language,
		}, " "))
		score := 0
		for _, t := range terms {
			if strings.Contains(hay, t) {
				score++
			}
		}
		if score > 0 {
			hits = append(hits, hit{rec, score})
		}
	}
	sort.SliceStable(hits, func(a, b int) bool { return hits[a].score > hits[b].score })
	if len(hits) > i.limit {
		hits = hits[:i.limit]
	}
	out := make([]model.Showtime, len(hits))
	for n, h := range hits {
		out[n] = h.rec
	}
	return out, nil
}

func tokenize(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := map[string]bool{}
	var out []string
	for _, f := range fields {
		if len(f) < 3 || stopwords[f] || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
