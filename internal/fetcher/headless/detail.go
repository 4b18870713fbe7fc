package headless

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/depop-feed/internal/headless/detector"
	"github.com/JakeFAU/depop-feed/internal/listing"
)

// DefaultLinkSelector matches product links in the storefront grid.
const DefaultLinkSelector = "a[href*='/products/']"

// DefaultItemTitle is used when a product page has no og:title.
const DefaultItemTitle = "Depop item"

var (
	pricePattern   = regexp.MustCompile(`\$\d[\d.,]*`)
	hashtagPattern = regexp.MustCompile(`#(\w+)`)
)

var challenge = detector.NewHeuristic(0)

// Detail is what a product page yields.
type Detail struct {
	Listing listing.Listing
	Sold    bool
}

// ProductLinks returns the absolute, de-duplicated hrefs matching selector
// in document order.
func ProductLinks(html, pageURL, selector string) ([]string, error) {
	if selector == "" {
		selector = DefaultLinkSelector
	}
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url: %w", err)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse storefront html: %w", err)
	}

	seen := make(map[string]struct{})
	var links []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || strings.TrimSpace(href) == "" {
			return
		}
		ref, err := url.Parse(strings.TrimSpace(href))
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref).String()
		if _, dup := seen[abs]; dup {
			return
		}
		seen[abs] = struct{}{}
		links = append(links, abs)
	})
	return links, nil
}

// LooksChallenged reports whether the page is an anti-bot interstitial.
func LooksChallenged(html string) bool {
	return challenge.IsChallenge([]byte(html))
}

// StorefrontChallenged reports whether a rendered storefront is an
// interstitial. A page that still lists products is the shop.
func StorefrontChallenged(html, pageURL, selector string) bool {
	if !LooksChallenged(html) {
		return false
	}
	links, err := ProductLinks(html, pageURL, selector)
	return err != nil || len(links) == 0
}

// ParseDetail reads a rendered product page. A page is sold when it shows a
// Sold button or offers neither Buy now nor Add to bag.
func ParseDetail(pageURL, html string) (Detail, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Detail{}, fmt.Errorf("parse product html: %w", err)
	}

	var buy, sold bool
	doc.Find("button").Each(func(_ int, s *goquery.Selection) {
		text := strings.ToLower(strings.Join(strings.Fields(s.Text()), " "))
		switch {
		case strings.Contains(text, "buy now"), strings.Contains(text, "add to bag"):
			buy = true
		case strings.Contains(text, "sold"):
			sold = true
		}
	})
	if sold || !buy {
		return Detail{Sold: true}, nil
	}

	title := strings.TrimSpace(strings.TrimSuffix(meta(doc, "og:title"), " | Depop"))
	if title == "" {
		title = DefaultItemTitle
	}
	description := strings.TrimSpace(meta(doc, "og:description"))

	tag := listing.TagPlaceholder
	if m := hashtagPattern.FindStringSubmatch(description); m != nil {
		tag = m[1]
	}

	return Detail{Listing: listing.Listing{
		Title:       title,
		Price:       pricePattern.FindString(visibleText(doc)),
		URL:         pageURL,
		Image:       strings.TrimSpace(meta(doc, "og:image")),
		Description: description,
		Category:    listing.Classify(tag, title, description),
		Tag:         tag,
	}}, nil
}

// visibleText is the body text a reader would see.
func visibleText(doc *goquery.Document) string {
	body := doc.Find("body").Clone()
	body.Find("script, style, noscript, template").Remove()
	return body.Text()
}

func meta(doc *goquery.Document, property string) string {
	content, _ := doc.Find(fmt.Sprintf("meta[property='%s']", property)).First().Attr("content")
	return content
}
