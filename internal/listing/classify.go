package listing

import (
	"regexp"
	"strings"
)

type bucket struct {
	category Category
	keywords []*regexp.Regexp
}

// buckets is scanned in order; earlier buckets win ties.
var buckets = []bucket{
	newBucket(Outerwear,
		"coat", "jacket", "outerwear", "puffer", "windbreaker", "shell", "parka",
		"blazer", "trench", "fleece", "gilet"),
	newBucket(Tops,
		"top", "tee", "t-shirt", "shirt", "sweater", "jumper", "hoodie", "crewneck",
		"cardigan", "sweatshirt", "pullover", "vest", "crew", "bodysuit", "body suit",
		"blouse", "polo", "tank", "camisole", "long sleeve", "quarter zip", "dress"),
	newBucket(Bottoms,
		"bottom", "jean", "denim", "pant", "trouser", "short", "trunk", "swim",
		"skirt", "legging", "cargo", "sweatpant", "jogger"),
	newBucket(Accessories,
		"accessories", "accessory", "bag", "purse", "tote", "wallet", "necklace",
		"bracelet", "ring", "earring", "jewelry", "belt", "scarf", "beanie", "hat",
		"cap", "sunglasses", "glove", "sandal", "shoe", "sneaker", "boot", "loafer", "heel"),
}

// newBucket compiles each keyword as a whole-word prefix ("jacket" matches
// "jackets" but not "bomberjacket").
func newBucket(category Category, keywords ...string) bucket {
	b := bucket{category: category, keywords: make([]*regexp.Regexp, 0, len(keywords))}
	for _, kw := range keywords {
		b.keywords = append(b.keywords, regexp.MustCompile(`\b`+regexp.QuoteMeta(kw)+`\w*`))
	}
	return b
}

// canonical matches the four named buckets. "misc" is not an exact-match target.
func canonical(value string) (Category, bool) {
	switch c := Category(value); c {
	case Tops, Bottoms, Outerwear, Accessories:
		return c, true
	default:
		return "", false
	}
}

// Classify maps free-text candidates onto a storefront bucket. Candidates are
// given in priority order, usually raw category, title, description, tag.
// An exact bucket name wins, then keyword hits per candidate, then keyword
// hits across all candidates joined, then Misc.
func Classify(candidates ...string) Category {
	normalized := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c = strings.ToLower(strings.TrimSpace(c)); c != "" {
			normalized = append(normalized, c)
		}
	}

	for _, value := range normalized {
		if c, ok := canonical(value); ok {
			return c
		}
	}
	for _, value := range normalized {
		if c, ok := scan(value); ok {
			return c
		}
	}
	if c, ok := scan(strings.Join(normalized, " ")); ok {
		return c
	}
	return Misc
}

func scan(value string) (Category, bool) {
	if value == "" {
		return "", false
	}
	for _, b := range buckets {
		for _, kw := range b.keywords {
			if kw.MatchString(value) {
				return b.category, true
			}
		}
	}
	return "", false
}
