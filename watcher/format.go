package watcher

import (
	"fmt"
	"strings"
	"time"
)

// timestamp renders d as Twitch's VOD offset syntax, e.g. 01h02m03s.
func timestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int64(d / time.Second)
	return fmt.Sprintf("%02dh%02dm%02ds", s/3600, s%3600/60, s%60)
}

// clock renders d as H:MM:SS for message content.
func clock(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	s := int64(d / time.Second)
	return fmt.Sprintf("%d:%02d:%02d", s/3600, s%3600/60, s%60)
}

func ellipsize(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

// splitFields groups lines into chunks of at most limit characters, joined by
// newlines, breaking only between lines. A line that alone exceeds limit gets a
// chunk of its own, cut to fit.
func splitFields(lines []string, limit int) []string {
	var (
		chunks []string
		cur    strings.Builder
		size   int
		count  int
	)
	flush := func() {
		if count > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
			size, count = 0, 0
		}
	}
	for _, line := range lines {
		n := len([]rune(line))
		if n > limit {
			flush()
			chunks = append(chunks, string([]rune(line)[:limit-1])+"…")
			continue
		}
		sep := 0
		if count > 0 {
			sep = 1
		}
		if size+sep+n > limit {
			flush()
			sep = 0
		}
		if sep == 1 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
		size += sep + n
		count++
	}
	flush()
	return chunks
}

// cutLines shortens s to at most limit runes, keeping whole lines where
// possible and marking the cut with an ellipsis.
func cutLines(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	if limit < 1 {
		return ""
	}
	out := string(r[:limit-1])
	if i := strings.LastIndexByte(out, '\n'); i > 0 {
		out = out[:i+1]
	}
	return out + "…"
}

// plain strips the markdown used in message content for text-only sinks.
func plain(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "**", ""))
}
