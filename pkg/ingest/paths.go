package ingest

import (
	"strings"

	"github.com/buger/jsonparser"
)

// textPath is a jsonparser key path, e.g. {"item", "content", "[0]", "transcript"}.
type textPath []string

// firstText returns the first non-empty text found along paths. A path that
// resolves to an array is read as content parts and joined. An empty path
// reads the payload itself as a plain string.
func firstText(data []byte, paths ...textPath) string {
	for _, p := range paths {
		value, typ, _, err := jsonparser.Get(data, p...)
		if err != nil {
			continue
		}
		var text string
		switch typ {
		case jsonparser.String:
			text, err = jsonparser.ParseString(value)
			if err != nil {
				continue
			}
		case jsonparser.Array:
			text = joinContent(value)
		default:
			continue
		}
		if text = strings.TrimSpace(text); text != "" {
			return text
		}
	}
	return ""
}

// joinContent joins transcript (or text) of every element of a content array.
func joinContent(array []byte) string {
	var parts []string
	_, _ = jsonparser.ArrayEach(array, func(value []byte, typ jsonparser.ValueType, _ int, _ error) {
		switch typ {
		case jsonparser.Object:
			if t := firstText(value, textPath{"transcript"}, textPath{"text"}); t != "" {
				parts = append(parts, t)
			}
		case jsonparser.String:
			if s, err := jsonparser.ParseString(value); err == nil && strings.TrimSpace(s) != "" {
				parts = append(parts, strings.TrimSpace(s))
			}
		}
	})
	return strings.Join(parts, " ")
}

func stringAt(data []byte, keys ...string) string {
	s, err := jsonparser.GetString(data, keys...)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}
