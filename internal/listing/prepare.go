package listing

// Report summarises what Prepare did to a batch.
type Report struct {
	Received   int
	SoldFlag   int
	AllSold    bool
	Incomplete int
}

// Prepare runs the batch pipeline: sold filter, normalize, and drop records
// without a URL or image. The result never contains an incomplete listing.
func Prepare(batch []Raw) ([]Listing, Report) {
	report := Report{Received: len(batch)}
	kept, removed := FilterSold(batch)
	report.SoldFlag = removed
	report.AllSold = removed > 0 && removed == len(batch)

	out := make([]Listing, 0, len(kept))
	for _, raw := range kept {
		l := Normalize(raw)
		if !l.Complete() {
			report.Incomplete++
			continue
		}
		out = append(out, l)
	}
	return out, report
}
