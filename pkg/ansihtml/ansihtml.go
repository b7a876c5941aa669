// Package ansihtml turns terminal-colored text into safe inline markup.
//
// Conversion happens in a fixed order: reserved markup characters are
// escaped first, bare URLs are then wrapped in anchors, and finally SGR
// color sequences become style spans. Every span opened is closed, either
// at a reset sequence or at the end of the input.
package ansihtml

import (
	"html"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

var (
	sgrPattern = regexp.MustCompile(`\x1b\[([0-9;]*)m`)
	// Escaping has already turned quotes and angle brackets into entities,
	// so a URL ends at whitespace, an escape byte or any entity other than &amp;.
	urlPattern = regexp.MustCompile(`https?://[^\s\x1b&]+(?:&amp;[^\s\x1b&]+)*`)
)

var foreground = map[int]string{
	30: "#000000", 31: "#cd3131", 32: "#0dbc79", 33: "#e5e510",
	34: "#2472c8", 35: "#bc3fbc", 36: "#11a8cd", 37: "#e5e5e5",
	90: "#666666", 91: "#f14c4c", 92: "#23d18b", 93: "#f5f543",
	94: "#3b8eea", 95: "#d670d6", 96: "#29b8db", 97: "#ffffff",
}

var background = map[int]string{
	40: "#000000", 41: "#cd3131", 42: "#0dbc79", 43: "#e5e510",
	44: "#2472c8", 45: "#bc3fbc", 46: "#11a8cd", 47: "#e5e5e5",
}

// Strip returns the plain-text form of s with every control sequence removed.
func Strip(s string) string {
	return ansi.Strip(s)
}

// Convert renders s as markup.
func Convert(s string) string {
	escaped := html.EscapeString(s)
	linked := Linkify(escaped)
	return colorize(linked)
}

// Linkify wraps bare http(s) URLs of already escaped text in anchors.
func Linkify(escaped string) string {
	return urlPattern.ReplaceAllStringFunc(escaped, func(u string) string {
		return `<a href="` + u + `" target="_blank" rel="noopener noreferrer">` + u + `</a>`
	})
}

func colorize(s string) string {
	var b strings.Builder
	open := 0
	last := 0

	for _, loc := range sgrPattern.FindAllStringSubmatchIndex(s, -1) {
		b.WriteString(s[last:loc[0]])
		last = loc[1]

		params := s[loc[2]:loc[3]]
		if isReset(params) {
			closeSpans(&b, open)
			open = 0
			continue
		}
		if style := styleFor(params); style != "" {
			b.WriteString(`<span style="` + style + `">`)
			open++
		}
	}
	b.WriteString(s[last:])
	closeSpans(&b, open)

	// Cursor movement and other non-SGR sequences carry no display meaning.
	return ansi.Strip(b.String())
}

func isReset(params string) bool {
	if params == "" {
		return true
	}
	for _, p := range strings.Split(params, ";") {
		if p != "0" && p != "" {
			return false
		}
	}
	return true
}

func styleFor(params string) string {
	var styles []string
	for _, p := range strings.Split(params, ";") {
		code, err := strconv.Atoi(p)
		if err != nil {
			continue
		}
		switch {
		case code == 1:
			styles = append(styles, "font-weight:bold")
		case code == 3:
			styles = append(styles, "font-style:italic")
		case code == 4:
			styles = append(styles, "text-decoration:underline")
		case foreground[code] != "":
			styles = append(styles, "color:"+foreground[code])
		case background[code] != "":
			styles = append(styles, "background-color:"+background[code])
		}
	}
	return strings.Join(styles, ";")
}

func closeSpans(b *strings.Builder, n int) {
	for i := 0; i < n; i++ {
		b.WriteString("</span>")
	}
}
