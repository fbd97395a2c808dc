package voice

import (
	"strings"
	"unicode"
)

// sanitizeSpeechText strips markup noise from model text so TTS sounds
// conversational. Code fences and URLs become pauses, symbol glyphs vanish.
func sanitizeSpeechText(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}

	raw = strings.NewReplacer(
		"*", " ",
		"_", " ",
		"`", " ",
		"#", " ",
		"~", " ",
		"|", " ",
		"<", " ",
		">", " ",
	).Replace(raw)

	var b strings.Builder
	b.Grow(len(raw))
	prevSpace := true

	for _, r := range raw {
		switch {
		case r == '\u200d' || r == '\ufe0f' || r == '\u20e3':
			continue
		case unicode.IsSpace(r):
			if !prevSpace {
				b.WriteByte(' ')
				prevSpace = true
			}
		case unicode.IsControl(r):
			continue
		case unicode.In(r, unicode.So, unicode.Sm, unicode.Sk):
			// Emoji and symbol-heavy glyphs sound unnatural when spoken.
			continue
		default:
			b.WriteRune(r)
			prevSpace = false
		}
	}

	return strings.TrimSpace(b.String())
}

// splitSpeakable peels complete sentences off the front of buf, returning the
// speakable prefix and the remainder still being streamed.
func splitSpeakable(buf string) (speak, rest string) {
	last := -1
	for i, r := range buf {
		switch r {
		case '.', '!', '?':
			last = i + len(string(r))
		case '\n':
			last = i + 1
		}
	}
	if last < 0 {
		return "", buf
	}
	return buf[:last], buf[last:]
}
