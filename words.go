package main

import (
	"math/rand"
	"slices"
)

// Categories and difficulties offered by the bundled word list.
const (
	categoryActions       = "Actions"
	categoryThings        = "Things"
	categoryPlaces        = "Places"
	categoryFoodAndDrink  = "Food & Drink"
	categoryEntertainment = "Entertainment"

	difficultyEasy   = "Easy"
	difficultyMedium = "Medium"
)

type wordEntry struct {
	word       string
	difficulty string
}

// wordList serves words for turns. Pure with respect to game state: a
// session is never touched, callers track their own used words. The
// intn hook exists so tests can pin the randomness.
type wordList struct {
	byCategory map[string][]wordEntry
	intn       func(n int) int
}

func newWordList(byCategory map[string][]wordEntry) *wordList {
	return &wordList{
		byCategory: byCategory,
		intn:       rand.Intn,
	}
}

// categories lists the categories the list can serve, sorted.
func (wl *wordList) categories() []string {
	out := make([]string, 0, len(wl.byCategory))
	for c := range wl.byCategory {
		out = append(out, c)
	}
	slices.Sort(out)
	return out
}

// randomCategory picks among the included categories, or among all
// categories when none are included.
func (wl *wordList) randomCategory(included []string) string {
	candidates := make([]string, 0, len(wl.byCategory))
	for _, c := range wl.categories() {
		if len(included) == 0 || slices.Contains(included, c) {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	return candidates[wl.intn(len(candidates))]
}

// nextWord returns a random word from the category matching one of the
// requested difficulties and not yet used. The second return is false
// when the category is exhausted.
func (wl *wordList) nextWord(category string, difficulties, used []string) (string, bool) {
	available := make([]string, 0)
	for _, e := range wl.byCategory[category] {
		if len(difficulties) > 0 && !slices.Contains(difficulties, e.difficulty) {
			continue
		}
		if slices.Contains(used, e.word) {
			continue
		}
		available = append(available, e.word)
	}

	if len(available) == 0 {
		return "", false
	}

	return available[wl.intn(len(available))], true
}

func defaultWords() *wordList {
	easy := func(words ...string) []wordEntry {
		out := make([]wordEntry, len(words))
		for i, w := range words {
			out[i] = wordEntry{word: w, difficulty: difficultyEasy}
		}
		return out
	}
	medium := func(words ...string) []wordEntry {
		out := make([]wordEntry, len(words))
		for i, w := range words {
			out[i] = wordEntry{word: w, difficulty: difficultyMedium}
		}
		return out
	}

	return newWordList(map[string][]wordEntry{
		categoryActions: append(
			easy("Running", "Dancing", "Jumping", "Swimming", "Singing", "Laughing", "Sleeping", "Eating", "Writing", "Reading"),
			medium("Juggling", "Whistling", "Shivering", "Applauding", "Stretching", "Daydreaming")...),
		categoryThings: append(
			easy("Umbrella", "Ladder", "Mirror", "Pillow", "Scissors", "Candle", "Backpack", "Telescope", "Hammer", "Blanket"),
			medium("Thermostat", "Compass", "Hourglass", "Lantern", "Anchor", "Typewriter")...),
		categoryPlaces: append(
			easy("Beach", "Library", "Airport", "Mountain", "Hospital", "Castle", "Desert", "Stadium", "Farm", "Island"),
			medium("Lighthouse", "Vineyard", "Observatory", "Catacombs", "Greenhouse", "Harbor")...),
		categoryFoodAndDrink: append(
			easy("Pizza", "Pancakes", "Lemonade", "Spaghetti", "Popcorn", "Sandwich", "Ice Cream", "Coffee", "Tacos", "Waffles"),
			medium("Bruschetta", "Espresso", "Gazpacho", "Croissant", "Kimchi", "Tiramisu")...),
		categoryEntertainment: append(
			easy("Karaoke", "Circus", "Concert", "Magic Show", "Puppet Show", "Bowling", "Fireworks", "Parade", "Carnival", "Theater"),
			medium("Improv", "Opera", "Pantomime", "Escape Room", "Ventriloquism", "Stand-up")...),
	})
}
