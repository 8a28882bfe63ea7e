package reconcile

import "strings"

// Categorize returns the category ID for the given item name.
// It performs case-insensitive matching: exact match first, then substring
// match. Falls back to "other" if no match is found.
func Categorize(itemName string) string {
	name := strings.ToLower(strings.TrimSpace(itemName))
	if name == "" {
		return "other"
	}

	// Phase 1: exact match
	if cat, ok := exactMatch[name]; ok {
		return cat
	}

	// Phase 2: substring match (ordered longer/more-specific first)
	for _, entry := range substringMatches {
		if strings.Contains(name, entry.keyword) {
			return entry.category
		}
	}

	return "other"
}

var exactMatch = map[string]string{
	// produce
	"apple":     "produce",
	"apples":    "produce",
	"banana":    "produce",
	"bananas":   "produce",
	"orange":    "produce",
	"oranges":   "produce",
	"lemon":     "produce",
	"lemons":    "produce",
	"avocado":   "produce",
	"tomato":    "produce",
	"tomatoes":  "produce",
	"potato":    "produce",
	"potatoes":  "produce",
	"onion":     "produce",
	"onions":    "produce",
	"garlic":    "produce",
	"lettuce":   "produce",
	"spinach":   "produce",
	"broccoli":  "produce",
	"carrots":   "produce",
	"cucumber":  "produce",
	"mushrooms": "produce",
	"corn":      "produce",

	// dairy
	"milk":    "dairy",
	"butter":  "dairy",
	"cheese":  "dairy",
	"yogurt":  "dairy",
	"yoghurt": "dairy",
	"cream":   "dairy",
	"eggs":    "dairy",

	// meat-seafood
	"chicken": "meat-seafood",
	"beef":    "meat-seafood",
	"pork":    "meat-seafood",
	"bacon":   "meat-seafood",
	"salmon":  "meat-seafood",
	"shrimp":  "meat-seafood",
	"tuna":    "meat-seafood",

	// bakery
	"bread":     "bakery",
	"bagels":    "bakery",
	"croissant": "bakery",
	"tortillas": "bakery",
	"buns":      "bakery",

	// pantry
	"rice":    "pantry",
	"pasta":   "pantry",
	"flour":   "pantry",
	"sugar":   "pantry",
	"salt":    "pantry",
	"oil":     "pantry",
	"cereal":  "pantry",
	"oats":    "pantry",
	"honey":   "pantry",
	"ketchup": "pantry",
	"mustard": "pantry",
	"beans":   "pantry",

	// frozen
	"ice cream": "frozen",
	"pizza":     "frozen",

	// beverages
	"coffee": "beverages",
	"tea":    "beverages",
	"juice":  "beverages",
	"water":  "beverages",
	"soda":   "beverages",
	"beer":   "beverages",
	"wine":   "beverages",

	// snacks
	"chips":    "snacks",
	"crackers": "snacks",
	"popcorn":  "snacks",
	"cookies":  "snacks",
	"pretzels": "snacks",

	// household
	"paper towels":  "household",
	"toilet paper":  "household",
	"trash bags":    "household",
	"dish soap":     "household",
	"sponges":       "household",
	"foil":          "household",
	"batteries":     "household",
	"light bulbs":   "household",
	"laundry detergent": "household",

	// personal-care
	"shampoo":    "personal-care",
	"toothpaste": "personal-care",
	"deodorant":  "personal-care",
	"soap":       "personal-care",
	"floss":      "personal-care",
}

var substringMatches = []struct {
	keyword  string
	category string
}{
	{"frozen", "frozen"},
	{"detergent", "household"},
	{"cleaner", "household"},
	{"toothbrush", "personal-care"},
	{"lotion", "personal-care"},
	{"razor", "personal-care"},
	{"yogurt", "dairy"},
	{"cheese", "dairy"},
	{"milk", "dairy"},
	{"chicken", "meat-seafood"},
	{"beef", "meat-seafood"},
	{"fish", "meat-seafood"},
	{"sausage", "meat-seafood"},
	{"bread", "bakery"},
	{"cake", "bakery"},
	{"sauce", "pantry"},
	{"spice", "pantry"},
	{"can of", "pantry"},
	{"canned", "pantry"},
	{"juice", "beverages"},
	{"coffee", "beverages"},
	{"berries", "produce"},
	{"salad", "produce"},
	{"fresh", "produce"},
	{"chocolate", "snacks"},
	{"candy", "snacks"},
}
