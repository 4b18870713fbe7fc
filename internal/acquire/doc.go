// Package acquire sequences the acquisition tiers for one seller: the JSON
// API, a cookie refresh followed by one more API pass, a full browser scrape,
// and finally the last published snapshot. The first tier that yields
// listings wins.
package acquire
