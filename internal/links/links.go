// Package links detects storefront product links in free chat text.
package links

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
)

var urlPattern = regexp.MustCompile(`https?://\S+`)

// ProductID extracts the product id from a storefront URL. Product pages end
// in "<slug>--<id>", e.g. https://www.shop.example/c/dairy/oat-milk--12345.
// ok is false for foreign hosts and non-product paths.
func ProductID(raw string, hosts []string) (int64, bool) {
	u, err := url.Parse(strings.TrimRight(raw, ".,;:!?)"))
	if err != nil {
		return 0, false
	}
	if !hostAllowed(u.Hostname(), hosts) {
		return 0, false
	}
	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(segments) == 0 {
		return 0, false
	}
	last := segments[len(segments)-1]
	_, idPart, found := strings.Cut(last, "--")
	if !found {
		return 0, false
	}
	id, err := strconv.ParseInt(idPart, 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}

// Extract returns the product ids of every storefront link in text, in
// order of appearance. Duplicates are kept; the cart merges them.
func Extract(text string, hosts []string) []int64 {
	var ids []int64
	for _, raw := range urlPattern.FindAllString(text, -1) {
		if id, ok := ProductID(raw, hosts); ok {
			ids = append(ids, id)
		}
	}
	return ids
}

func hostAllowed(host string, hosts []string) bool {
	host = strings.ToLower(host)
	for _, allowed := range hosts {
		allowed = strings.ToLower(allowed)
		if host == allowed || strings.HasSuffix(host, "."+allowed) {
			return true
		}
	}
	return false
}
