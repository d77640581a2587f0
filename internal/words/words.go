// Package words is the word corpus and sampling policy: a pure function
// from difficulty/custom-list to a chosen word. It generalizes the
// teacher's internal/utils/csv-words.go, which read a word,count CSV from
// a relative path at request time, into a build-time embedded asset with
// a difficulty column, parsed once at process start.
package words

import (
	"embed"
	"encoding/csv"
	"fmt"
	"math/rand"
	"strings"

	"github.com/scrawlgame/scrawl-server/internal/model"
)

//go:embed words.csv
var embedded embed.FS

// Dictionary holds the parsed corpus, bucketed by difficulty.
type Dictionary struct {
	byDifficulty map[model.Difficulty][]string
}

// Load parses the embedded words.csv into a Dictionary. It panics on a
// malformed embedded asset, since that can only happen from a broken build.
func Load() *Dictionary {
	f, err := embedded.Open("words.csv")
	if err != nil {
		panic(fmt.Sprintf("words: embedded corpus missing: %v", err))
	}
	defer f.Close()

	r := csv.NewReader(f)
	records, err := r.ReadAll()
	if err != nil {
		panic(fmt.Sprintf("words: embedded corpus unreadable: %v", err))
	}

	d := &Dictionary{byDifficulty: map[model.Difficulty][]string{
		model.DifficultyEasy:   nil,
		model.DifficultyMedium: nil,
		model.DifficultyHard:   nil,
	}}
	for _, rec := range records {
		if len(rec) < 2 {
			continue
		}
		word := strings.ToLower(strings.TrimSpace(rec[0]))
		diff := model.Difficulty(strings.ToLower(strings.TrimSpace(rec[1])))
		if word == "" {
			continue
		}
		switch diff {
		case model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard:
			d.byDifficulty[diff] = append(d.byDifficulty[diff], word)
		}
	}
	return d
}

// weightedDifficulty picks easy/medium/hard with the spec's 20/40/40 split.
func weightedDifficulty() model.Difficulty {
	switch n := rand.Intn(100); {
	case n < 20:
		return model.DifficultyEasy
	case n < 60:
		return model.DifficultyMedium
	default:
		return model.DifficultyHard
	}
}

// SampleWord returns a uniformly random word of the given difficulty.
func (d *Dictionary) SampleWord(diff model.Difficulty) string {
	pool := d.byDifficulty[diff]
	if len(pool) == 0 {
		return "word"
	}
	return pool[rand.Intn(len(pool))]
}

// SampleCustom returns a uniformly random entry from a custom word list.
// Callers must only invoke this when list is non-empty.
func SampleCustom(list []string) string {
	return list[rand.Intn(len(list))]
}

// Candidates produces `count` independent word choices per the selection
// policy of spec.md §4.1: for each candidate, with probability
// customProbability/100 draw from customWords if non-empty, otherwise draw
// from the dictionary with the 20/40/40 difficulty weighting.
func (d *Dictionary) Candidates(count int, customWords []string, customProbability int) []string {
	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		if len(customWords) > 0 && rand.Intn(100) < customProbability {
			out = append(out, SampleCustom(customWords))
			continue
		}
		out = append(out, d.SampleWord(weightedDifficulty()))
	}
	return out
}
