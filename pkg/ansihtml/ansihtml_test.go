package ansihtml

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"pgregory.net/rapid"
)

func TestConvertColorAndReset(t *testing.T) {
	out := Convert("\x1b[31mfailed <b>&\x1b[0m done")

	assert.Equal(t, `<span style="color:#cd3131">failed &lt;b&gt;&amp;</span> done`, out)
	assert.Equal(t, 1, strings.Count(out, "<span"))
	assert.Equal(t, 1, strings.Count(out, "</span>"))
}

func TestConvertClosesAtEndOfInput(t *testing.T) {
	out := Convert("\x1b[1;32mok")
	assert.Equal(t, `<span style="font-weight:bold;color:#0dbc79">ok</span>`, out)
}

func TestConvertResetClosesEverySpan(t *testing.T) {
	out := Convert("\x1b[1mA\x1b[34mB\x1b[mC")
	assert.Equal(t, `<span style="font-weight:bold">A<span style="color:#2472c8">B</span></span>C`, out)
}

func TestConvertDropsUnknownSequences(t *testing.T) {
	assert.Equal(t, "plain", Convert("\x1b[2Kpl\x1b[38;5;200main"))
}

func TestConvertLinkifiesAfterEscaping(t *testing.T) {
	out := Convert(`see https://example.com/a?b=1&c=2 "now"`)
	assert.Equal(t,
		`see <a href="https://example.com/a?b=1&amp;c=2" target="_blank" rel="noopener noreferrer">https://example.com/a?b=1&amp;c=2</a> &#34;now&#34;`,
		out)
}

func TestConvertURLInsideColor(t *testing.T) {
	out := Convert("\x1b[36mhttp://localhost:8080\x1b[0m")
	assert.Equal(t,
		`<span style="color:#11a8cd"><a href="http://localhost:8080" target="_blank" rel="noopener noreferrer">http://localhost:8080</a></span>`,
		out)
}

func TestStrip(t *testing.T) {
	assert.Equal(t, "INFO\tstarted", Strip("\x1b[34mINFO\x1b[0m\tstarted"))
}

func TestConvertBalancedProperty(t *testing.T) {
	pieces := []string{"a", "<", ">", "&", "\"", " ", "https://x.io/p", "\x1b[0m", "\x1b[m", "\x1b[31m", "\x1b[1;4m", "\x1b[42m", "\x1b[99m", "\x1b[2J"}
	rapid.Check(t, func(t *rapid.T) {
		parts := rapid.SliceOfN(rapid.SampledFrom(pieces), 0, 40).Draw(t, "parts")
		out := Convert(strings.Join(parts, ""))

		depth := 0
		rest := out
		for rest != "" {
			switch {
			case strings.HasPrefix(rest, "<span "):
				depth++
			case strings.HasPrefix(rest, "</span>"):
				depth--
				if depth < 0 {
					t.Fatalf("unbalanced close in %q", out)
				}
			}
			rest = rest[1:]
		}
		if depth != 0 {
			t.Fatalf("%d spans left open in %q", depth, out)
		}
		if strings.Contains(out, "\x1b") {
			t.Fatalf("escape byte survived in %q", out)
		}
	})
}
