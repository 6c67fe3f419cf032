package models

import (
	"strings"
	"unicode"
)

// HasMeaningfulText reports whether s contains anything other than
// whitespace and emoji. Empty, blank and emoji-only alt text do not count.
//
// Symbols such as ©, ™ or a digit are text unless an emoji presentation
// selector or keycap follows them, so "©" counts while "©️" and "1️⃣" do not.
func HasMeaningfulText(s string) bool {
	runes := []rune(strings.TrimSpace(s))
	for i, r := range runes {
		switch {
		case unicode.IsSpace(r), isEmojiComponent(r), isPictograph(r):
			continue
		case presentedAsEmoji(runes, i):
			continue
		}
		return true
	}
	return false
}

// isEmojiComponent matches the joiners, selectors, modifiers and tags that
// compose emoji sequences.
func isEmojiComponent(r rune) bool {
	switch {
	case r == 0x200D: // zero width joiner
		return true
	case r == 0xFE0E || r == 0xFE0F: // variation selectors
		return true
	case r == 0x20E3: // combining enclosing keycap
		return true
	case r >= 0x1F3FB && r <= 0x1F3FF: // skin tone modifiers
		return true
	case r >= 0xE0020 && r <= 0xE007F: // tag sequences
		return true
	}
	return false
}

// pictographs are Extended_Pictographic ranges shown as emoji by default.
var pictographs = []struct{ lo, hi rune }{
	{0x231A, 0x231B},
	{0x23E9, 0x23EC},
	{0x23F0, 0x23F0},
	{0x23F3, 0x23F3},
	{0x25FD, 0x25FE},
	{0x2600, 0x26FF},
	{0x2700, 0x275F},
	{0x2763, 0x2767},
	{0x2795, 0x27BF},
	{0x2B1B, 0x2B1C},
	{0x2B50, 0x2B50},
	{0x2B55, 0x2B55},
	{0x1F000, 0x1FAFF},
	{0x1FC00, 0x1FFFD},
}

// textPictographs are Extended_Pictographic code points with a text default
// presentation. They only count as emoji when followed by U+FE0F.
var textPictographs = []struct{ lo, hi rune }{
	{0x00A9, 0x00A9},
	{0x00AE, 0x00AE},
	{0x203C, 0x203C},
	{0x2049, 0x2049},
	{0x2122, 0x2122},
	{0x2139, 0x2139},
	{0x2194, 0x2199},
	{0x21A9, 0x21AA},
	{0x2328, 0x2328},
	{0x23CF, 0x23CF},
	{0x23ED, 0x23EF},
	{0x23F1, 0x23F2},
	{0x23F8, 0x23FA},
	{0x24C2, 0x24C2},
	{0x25AA, 0x25AB},
	{0x25B6, 0x25B6},
	{0x25C0, 0x25C0},
	{0x25FB, 0x25FC},
	{0x2934, 0x2935},
	{0x2B05, 0x2B07},
	{0x3030, 0x3030},
	{0x303D, 0x303D},
	{0x3297, 0x3297},
	{0x3299, 0x3299},
}

func inRanges(r rune, ranges []struct{ lo, hi rune }) bool {
	for _, rg := range ranges {
		if r >= rg.lo && r <= rg.hi {
			return true
		}
	}
	return false
}

func isPictograph(r rune) bool {
	return inRanges(r, pictographs)
}

func isKeycapBase(r rune) bool {
	return (r >= '0' && r <= '9') || r == '#' || r == '*'
}

// presentedAsEmoji reports whether runes[i] starts an emoji sequence through
// a following presentation selector or keycap: "©️", "1️⃣", "#⃣".
func presentedAsEmoji(runes []rune, i int) bool {
	if i+1 >= len(runes) {
		return false
	}
	r, next := runes[i], runes[i+1]
	switch {
	case isKeycapBase(r):
		if next == 0x20E3 {
			return true
		}
		return next == 0xFE0F && i+2 < len(runes) && runes[i+2] == 0x20E3
	case inRanges(r, textPictographs):
		return next == 0xFE0F
	}
	return false
}

// NeedsCaption reports whether an attachment is an image without meaningful alt text.
func NeedsCaption(a Attachment) bool {
	return a.IsImage() && !HasMeaningfulText(a.Name)
}
