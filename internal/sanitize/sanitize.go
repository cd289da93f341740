// Package sanitize strips markup from user supplied text.
package sanitize

import (
	"errors"
	"html"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

// Length limits, in runes.
const (
	MaxNickname = 24
	MaxRoomName = 50
	MaxTopic    = 200
	MaxMessage  = 2000
)

// ErrEmpty is returned when nothing is left after sanitizing.
var ErrEmpty = errors.New("empty after sanitizing")

var strictPolicy = bluemonday.StrictPolicy()

// Text removes all HTML and control characters from s, trims it and cuts it
// to at most max runes. The result is plain text, not HTML-escaped.
func Text(s string, max int) string {
	// Decode first so encoded tags are stripped too
	decoded := html.UnescapeString(s)
	stripped := html.UnescapeString(strictPolicy.Sanitize(decoded))

	stripped = strings.Map(func(r rune) rune {
		if r == '\n' || r == '\t' {
			return r
		}
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, stripped)
	stripped = strings.TrimSpace(stripped)

	if max > 0 && utf8.RuneCountInString(stripped) > max {
		stripped = strings.TrimSpace(string([]rune(stripped)[:max]))
	}
	return stripped
}

// Nickname sanitizes a nickname. Nicknames are single line and must not be empty.
func Nickname(s string) (string, error) {
	name := Text(strings.Join(strings.Fields(s), " "), MaxNickname)
	if name == "" {
		return "", ErrEmpty
	}
	return name, nil
}

// RoomName sanitizes a room display name.
func RoomName(s string) (string, error) {
	name := Text(strings.Join(strings.Fields(s), " "), MaxRoomName)
	if name == "" {
		return "", ErrEmpty
	}
	return name, nil
}

// Topic sanitizes a room topic. An empty topic is allowed.
func Topic(s string) string {
	return Text(s, MaxTopic)
}

// Message sanitizes a chat message body.
func Message(s string) (string, error) {
	body := Text(s, MaxMessage)
	if body == "" {
		return "", ErrEmpty
	}
	return body, nil
}
