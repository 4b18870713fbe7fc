package listing

import (
	"encoding/json"
	"strings"
)

var soldMarkers = map[string]struct{}{
	"sold":        {},
	"sold_out":    {},
	"sold-out":    {},
	"sold out":    {},
	"unavailable": {},
}

// IsSold reports whether the marketplace marks the record as sold or
// unavailable. Missing fields never count as sold.
func IsSold(raw Raw) bool {
	status, _ := firstOf(raw, field("status"), field("state"))
	visibility, _ := field("visibility")(raw)
	for _, s := range []string{status, visibility} {
		if _, ok := soldMarkers[strings.ToLower(s)]; ok {
			return true
		}
	}

	if sold, ok := raw["sold"].(bool); ok && sold {
		return true
	}
	return unavailable(raw["available"])
}

// unavailable matches a literal false or a numeric zero only.
func unavailable(v any) bool {
	switch val := v.(type) {
	case bool:
		return !val
	case json.Number:
		f, err := val.Float64()
		return err == nil && f == 0
	case float64:
		return val == 0
	case int:
		return val == 0
	default:
		return false
	}
}

// FilterSold drops sold records. When every record would be dropped the
// input is returned unchanged, since an all-sold page is far more often a
// detection miss than an empty shop. removed is the number of records the
// filter flagged.
func FilterSold(batch []Raw) (kept []Raw, removed int) {
	kept = make([]Raw, 0, len(batch))
	for _, raw := range batch {
		if IsSold(raw) {
			removed++
			continue
		}
		kept = append(kept, raw)
	}
	if len(kept) == 0 && len(batch) > 0 {
		return batch, removed
	}
	return kept, removed
}
