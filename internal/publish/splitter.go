package publish

import (
	"fmt"
	"strings"
	"unicode"
)

const (
	// MaxThreadSegments caps how long a thread may grow before the request
	// is rejected outright.
	MaxThreadSegments = 25
	// numberingHeadroom reserves room in each segment for the worst-case
	// " 25/25" suffix.
	numberingHeadroom = 6
)

// ErrThreadTooLong is returned when content cannot fit the segment cap.
var ErrThreadTooLong = fmt.Errorf("content requires more than %d thread segments", MaxThreadSegments)

// SplitThread breaks content into an ordered sequence of segments no longer
// than limit runes each, cutting at sentence boundaries first and word
// boundaries second. No characters are lost: joining the segments with
// single spaces reproduces the original content up to whitespace collapse.
// Content that already fits comes back as a single segment.
func SplitThread(content string, limit int) ([]string, error) {
	trimmed := strings.TrimSpace(content)
	if runeLen(trimmed) <= limit {
		return []string{trimmed}, nil
	}

	budget := limit - numberingHeadroom
	var pieces []string
	for _, sentence := range sentences(trimmed) {
		if runeLen(sentence) <= budget {
			pieces = append(pieces, sentence)
			continue
		}
		pieces = append(pieces, wordChunks(sentence, budget)...)
	}

	var segments []string
	var current strings.Builder
	for _, piece := range pieces {
		if current.Len() == 0 {
			current.WriteString(piece)
			continue
		}
		if runeLen(current.String())+1+runeLen(piece) <= budget {
			current.WriteString(" ")
			current.WriteString(piece)
			continue
		}
		segments = append(segments, current.String())
		current.Reset()
		current.WriteString(piece)
	}
	if current.Len() > 0 {
		segments = append(segments, current.String())
	}

	if len(segments) > MaxThreadSegments {
		return nil, ErrThreadTooLong
	}
	return segments, nil
}

// NumberSegments appends " i/n" to each segment of a multi-segment thread.
// Single segments pass through unnumbered.
func NumberSegments(segments []string) []string {
	if len(segments) <= 1 {
		return segments
	}
	numbered := make([]string, len(segments))
	for i, segment := range segments {
		numbered[i] = fmt.Sprintf("%s %d/%d", segment, i+1, len(segments))
	}
	return numbered
}

// sentences splits on terminal punctuation followed by whitespace or end of
// input. Content with no terminators comes back as one piece.
func sentences(content string) []string {
	var out []string
	var current strings.Builder
	runes := []rune(content)
	for i, r := range runes {
		current.WriteRune(r)
		if isTerminator(r) && (i+1 == len(runes) || unicode.IsSpace(runes[i+1])) {
			if s := strings.TrimSpace(current.String()); s != "" {
				out = append(out, s)
			}
			current.Reset()
		}
	}
	if s := strings.TrimSpace(current.String()); s != "" {
		out = append(out, s)
	}
	return out
}

// wordChunks packs words into budget-sized pieces. A single word longer than
// the budget is hard-cut rather than dropped.
func wordChunks(sentence string, budget int) []string {
	var chunks []string
	var current strings.Builder
	for _, word := range strings.Fields(sentence) {
		for runeLen(word) > budget {
			if current.Len() > 0 {
				chunks = append(chunks, current.String())
				current.Reset()
			}
			runes := []rune(word)
			chunks = append(chunks, string(runes[:budget]))
			word = string(runes[budget:])
		}
		if word == "" {
			continue
		}
		if current.Len() == 0 {
			current.WriteString(word)
			continue
		}
		if runeLen(current.String())+1+runeLen(word) <= budget {
			current.WriteString(" ")
			current.WriteString(word)
			continue
		}
		chunks = append(chunks, current.String())
		current.Reset()
		current.WriteString(word)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

func isTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

func runeLen(s string) int {
	return len([]rune(s))
}
