// Package directive post-processes model output before it is spoken.
//
// Two kinds of inline directive are recognized. A style prefix is a leading
// "(token)" mapped by the speaker's configuration to a voice style and an
// image. A trigger is a "[trigger]NAME[/trigger]" span anywhere in the text
// asking for another character to speak next. Both are removed from the
// text that reaches speech synthesis.
package directive

import (
	"regexp"
	"strings"

	"github.com/teslashibe/go-commander/pkg/character"
)

var triggerPattern = regexp.MustCompile(`\[trigger\](.*?)\[/trigger\]`)

// Result is the outcome of parsing one reply.
type Result struct {
	// Text is the cleaned text to speak.
	Text string
	// Prefix is the matched style token, empty if none.
	Prefix string
	// Style is the voice style mapped from Prefix.
	Style string
	// Image is the asset shown while speaking with Style.
	Image string
	// Triggered lists the partners that were activated, in text order.
	Triggered []string
	// Unknown lists trigger names that matched no partner.
	Unknown []string
}

// Lookup resolves a trigger name to a partner. ok is false for unknown names.
type Lookup func(name string) (ok bool)

// Replace applies literal substitutions in order. Rules with an empty
// search or replacement string are skipped.
func Replace(text string, rules []character.Replacement) string {
	for _, r := range rules {
		if r.ToReplace == "" || r.ReplaceWith == "" {
			continue
		}
		text = strings.ReplaceAll(text, r.ToReplace, r.ReplaceWith)
	}
	return text
}

// Parse extracts directives from text.
//
// The style prefix is resolved first, on the untouched text: if it starts
// with "(" and contains ")", the first configured token that starts the
// text is removed once. Trigger spans are then found in the remainder;
// activate is called for each name it contains, and every span is removed
// whether or not the name was known. imageFor maps the matched token to an
// image and may be nil.
func Parse(text string, prefixes character.PrefixTable, imageFor func(token string) string, activate Lookup) Result {
	var res Result

	if strings.HasPrefix(text, "(") && strings.Contains(text, ")") {
		if p, ok := prefixes.Match(text); ok {
			res.Prefix = p.Token
			res.Style = p.Style
			if imageFor != nil {
				res.Image = imageFor(p.Token)
			}
			text = strings.TrimPrefix(text, p.Token)
		}
	}

	for _, m := range triggerPattern.FindAllStringSubmatch(text, -1) {
		name := m[1]
		if activate != nil && activate(name) {
			res.Triggered = append(res.Triggered, name)
		} else {
			res.Unknown = append(res.Unknown, name)
		}
	}
	text = triggerPattern.ReplaceAllString(text, "")

	res.Text = strings.TrimSpace(text)
	return res
}
