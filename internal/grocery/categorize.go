// Package grocery guesses an item category from its name.
package grocery

import (
	"sort"
	"strings"
)

const (
	Groceries   = "groceries"
	Household   = "household"
	Electronics = "electronics"
	Clothing    = "clothing"
	Other       = "other"
)

// Categories lists every category Categorize can return.
var Categories = []string{Groceries, Household, Electronics, Clothing, Other}

// Categorize returns the category for an item name. Whole-name matches win,
// then the longest keyword contained in the name. Unknown names are Other.
func Categorize(itemName string) string {
	name := strings.ToLower(strings.TrimSpace(itemName))
	if name == "" {
		return Other
	}
	if cat, ok := exact[name]; ok {
		return cat
	}
	for _, kw := range byLength {
		if strings.Contains(name, kw.word) {
			return kw.category
		}
	}
	return Other
}

// Valid reports whether category is one of Categories.
func Valid(category string) bool {
	for _, c := range Categories {
		if c == category {
			return true
		}
	}
	return false
}

var keywords = map[string][]string{
	Groceries: {
		"apple", "banana", "orange", "lemon", "lime", "avocado", "tomato", "potato", "onion", "garlic",
		"lettuce", "spinach", "kale", "broccoli", "carrot", "celery", "cucumber", "pepper", "mushroom",
		"grape", "strawberr", "blueberr", "berries", "melon", "herb", "basil", "cilantro",
		"milk", "cheese", "yogurt", "butter", "cream", "egg", "tofu",
		"chicken", "beef", "pork", "turkey", "bacon", "sausage", "ham", "salmon", "tuna", "shrimp", "fish",
		"bread", "bagel", "tortilla", "bun", "muffin", "croissant",
		"rice", "pasta", "noodle", "flour", "sugar", "salt", "oil", "vinegar", "sauce", "cereal", "oats",
		"beans", "soup", "honey", "jam", "peanut butter", "spice", "ketchup", "mustard", "mayo",
		"frozen", "ice cream", "pizza",
		"coffee", "tea", "juice", "soda", "water", "wine", "beer",
		"chips", "crackers", "cookies", "chocolate", "candy", "nuts", "popcorn", "snack",
	},
	Household: {
		"paper towel", "toilet paper", "tissue", "napkin", "trash bag", "garbage bag", "foil", "plastic wrap",
		"dish soap", "detergent", "bleach", "cleaner", "sponge", "light bulb", "batteries", "candle",
		"shampoo", "conditioner", "toothpaste", "toothbrush", "deodorant", "razor", "lotion", "soap",
		"sunscreen", "floss", "vitamin", "diaper",
	},
	Electronics: {
		"charger", "cable", "usb", "hdmi", "headphone", "earbud", "speaker", "keyboard", "mouse",
		"monitor", "laptop", "phone", "tablet", "router", "adapter", "power bank", "remote",
	},
	Clothing: {
		"shirt", "t-shirt", "pants", "jeans", "shorts", "dress", "skirt", "sock", "underwear", "jacket",
		"coat", "sweater", "hoodie", "shoes", "sneakers", "boots", "hat", "gloves", "scarf", "belt",
	},
}

type keyword struct {
	word     string
	category string
}

var (
	exact    = map[string]string{}
	byLength []keyword
)

func init() {
	for cat, words := range keywords {
		for _, w := range words {
			exact[w] = cat
			byLength = append(byLength, keyword{word: w, category: cat})
		}
	}
	// Longer keywords are more specific: "peanut butter" before "butter".
	sort.Slice(byLength, func(i, j int) bool {
		if len(byLength[i].word) != len(byLength[j].word) {
			return len(byLength[i].word) > len(byLength[j].word)
		}
		return byLength[i].word < byLength[j].word
	})
}
