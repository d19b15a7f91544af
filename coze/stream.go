package coze

import (
	"strings"

	"github.com/tidwall/gjson"
)

const dataPrefix = "data:"

// ParseStream accumulates the final message text from a pseudo-SSE body of
// "data: {json}" lines. The upstream bot streams cumulative snapshots, so
// each qualifying line overwrites the accumulator and the last one wins.
// A payload qualifies only if its content field is present and is not itself
// a nested JSON object (those are control payloads, not display text).
// Lines that are not data lines or fail to decode are skipped, never errors.
func ParseStream(raw string) string {
	var message string
	for _, line := range strings.Split(raw, "\n") {
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := strings.TrimSpace(line[len(dataPrefix):])
		if !gjson.Valid(payload) {
			continue
		}
		content := gjson.Get(payload, "content")
		if !content.Exists() || content.Type != gjson.String {
			continue
		}
		if strings.HasPrefix(content.String(), "{") {
			continue
		}
		message = content.String()
	}
	return message
}

// EachContent calls fn with the content field of every qualifying data line.
// Unlike ParseStream it does not apply the nested-object guard: callers that
// scan for image URLs want structured payloads too.
func EachContent(raw string, fn func(content string)) {
	for _, line := range strings.Split(raw, "\n") {
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		payload := strings.TrimSpace(line[len(dataPrefix):])
		if !gjson.Valid(payload) {
			continue
		}
		content := gjson.Get(payload, "content")
		if !content.Exists() || content.Type != gjson.String {
			continue
		}
		fn(content.String())
	}
}

// SplitTitleBody splits a full message into its first line (the title) and
// the remainder (the body).
func SplitTitleBody(message string) (title, body string) {
	if message == "" {
		return "", ""
	}
	parts := strings.SplitN(message, "\n", 2)
	title = parts[0]
	if len(parts) == 2 {
		body = parts[1]
	}
	return title, body
}
