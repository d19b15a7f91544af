package coze

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var (
	markdownImageRe = regexp.MustCompile(`!\[[^\]]*\]\((https://[^)]+)\)`)
	quotedURLRe     = regexp.MustCompile(`'(https://[^']+)'`)
)

// ExtractImageURLs scans text for image URLs in the three encodings the
// image bot is known to answer with: markdown image references, bare
// single-quoted URLs, and JSON objects carrying image/image_biji/image1..8
// fields. The result is deduplicated, blanks dropped, first-seen order kept.
// The function is pure: same input, same output.
func ExtractImageURLs(text string) []string {
	var urls []string

	for _, m := range markdownImageRe.FindAllStringSubmatch(text, -1) {
		urls = append(urls, m[1])
	}
	for _, m := range quotedURLRe.FindAllStringSubmatch(text, -1) {
		urls = append(urls, m[1])
	}

	// The JSON pass only runs when the text carries a recognizable key; a
	// parse failure here just means the text was not JSON after all.
	if strings.Contains(text, `"image":`) || strings.Contains(text, `"image_biji":`) {
		if gjson.Valid(text) {
			parsed := gjson.Parse(text)
			if v := parsed.Get("image"); v.Exists() {
				urls = append(urls, v.String())
			}
			if v := parsed.Get("image_biji"); v.Exists() {
				urls = append(urls, v.String())
			}
			for i := 1; i <= 8; i++ {
				if v := parsed.Get(fmt.Sprintf("image%d", i)); v.Exists() {
					urls = append(urls, v.String())
				}
			}
		}
	}

	seen := make(map[string]bool, len(urls))
	result := make([]string, 0, len(urls))
	for _, u := range urls {
		if strings.TrimSpace(u) == "" || seen[u] {
			continue
		}
		seen[u] = true
		result = append(result, u)
	}
	return result
}
