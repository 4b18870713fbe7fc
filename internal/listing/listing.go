// Package listing turns untrusted marketplace records into the canonical
// feed format consumed by the storefront UI.
package listing

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Category is one of the fixed storefront buckets.
type Category string

// Canonical buckets. Misc is the total fallback.
const (
	Tops        Category = "tops"
	Bottoms     Category = "bottoms"
	Outerwear   Category = "outerwear"
	Accessories Category = "accessories"
	Misc        Category = "misc"
)

// Placeholders used when a record lacks the corresponding field.
const (
	UntitledPlaceholder = "Untitled item"
	TagPlaceholder      = "Depop find"
)

// ProductURLTemplate builds a product page URL from a slug or id.
const ProductURLTemplate = "https://www.depop.com/products/%s/"

// Listing is the canonical output record. Field order matches the JSON
// written to the snapshot.
type Listing struct {
	Title       string   `json:"title"`
	Price       string   `json:"price"`
	URL         string   `json:"url"`
	Image       string   `json:"image"`
	Description string   `json:"description"`
	Category    Category `json:"category"`
	Tag         string   `json:"tag"`
}

// Complete reports whether the listing carries both a product URL and an image.
func (l Listing) Complete() bool {
	return l.URL != "" && l.Image != ""
}

// Raw is a single marketplace record with no guaranteed schema.
type Raw map[string]any

// DecodeRaw parses a JSON object into a Raw record, keeping numbers as
// json.Number so amounts keep their original text.
func DecodeRaw(data []byte) (Raw, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw Raw
	if err := dec.Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode raw listing: %w", err)
	}
	return raw, nil
}
