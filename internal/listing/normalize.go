package listing

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// rule extracts one candidate value from a raw record. ok is false when the
// record does not carry a usable value for the rule.
type rule func(Raw) (value string, ok bool)

// firstOf runs rules in priority order and returns the first hit.
func firstOf(raw Raw, rules ...rule) (string, bool) {
	for _, r := range rules {
		if v, ok := r(raw); ok {
			return v, true
		}
	}
	return "", false
}

var (
	titleRules = []rule{field("title"), field("name")}
	priceRules = []rule{priceString, priceAmount}
	urlRules   = []rule{field("url"), productPage("slug"), productPage("id")}
	imageRules = []rule{firstImage("pictures"), firstImage("images")}
	catRules   = []rule{rawCategory("category"), rawCategory("categories")}
)

// Normalize maps a raw record onto a Listing. It never fails; absent fields
// fall back to placeholders or empty strings.
func Normalize(raw Raw) Listing {
	title, ok := firstOf(raw, titleRules...)
	if !ok {
		title = UntitledPlaceholder
	}
	description, _ := field("description")(raw)

	category, hasCategory := firstOf(raw, catRules...)
	if !hasCategory {
		category = string(Misc)
	}

	tag, hasBrand := field("brand")(raw)
	if !hasBrand {
		tag = category
	}

	price, _ := firstOf(raw, priceRules...)
	url, _ := firstOf(raw, urlRules...)
	image, _ := firstOf(raw, imageRules...)

	return Listing{
		Title:       title,
		Price:       price,
		URL:         url,
		Image:       image,
		Description: description,
		Category:    Classify(category, title, description, tag),
		Tag:         tag,
	}
}

// field reads a top-level scalar as trimmed text.
func field(key string) rule {
	return func(raw Raw) (string, bool) {
		return scalarText(raw[key])
	}
}

func productPage(key string) rule {
	return func(raw Raw) (string, bool) {
		slug, ok := scalarText(raw[key])
		if !ok {
			return "", false
		}
		return fmt.Sprintf(ProductURLTemplate, slug), true
	}
}

func priceString(raw Raw) (string, bool) {
	switch p := raw["price"].(type) {
	case map[string]any:
		return scalarText(p["price_string"])
	case string:
		return scalarText(p)
	default:
		return "", false
	}
}

func priceAmount(raw Raw) (string, bool) {
	var amount any
	switch p := raw["price"].(type) {
	case map[string]any:
		amount = p["amount"]
	case json.Number, float64, int:
		amount = p
	default:
		return "", false
	}
	text, ok := scalarText(amount)
	if !ok {
		return "", false
	}
	return "$" + text, true
}

func firstImage(key string) rule {
	return func(raw Raw) (string, bool) {
		list, ok := raw[key].([]any)
		if !ok || len(list) == 0 {
			return "", false
		}
		if entry, ok := list[0].(map[string]any); ok {
			return firstOf(Raw(entry), field("large"), field("url"))
		}
		return scalarText(list[0])
	}
}

func rawCategory(key string) rule {
	return func(raw Raw) (string, bool) {
		value := raw[key]
		if list, ok := value.([]any); ok {
			if len(list) == 0 {
				return "", false
			}
			value = list[0]
		}
		if obj, ok := value.(map[string]any); ok {
			return firstOf(Raw(obj), field("name"), field("slug"))
		}
		return scalarText(value)
	}
}

// scalarText renders strings, numbers, and booleans as text. Containers and
// blank strings are reported as absent.
func scalarText(v any) (string, bool) {
	var text string
	switch val := v.(type) {
	case string:
		text = strings.TrimSpace(val)
	case json.Number:
		text = val.String()
	case float64:
		text = strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		text = strconv.Itoa(val)
	case int64:
		text = strconv.FormatInt(val, 10)
	case bool:
		text = strconv.FormatBool(val)
	default:
		return "", false
	}
	return text, text != ""
}
