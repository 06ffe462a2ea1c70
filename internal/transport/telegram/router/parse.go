package router

import (
	"strconv"
	"strings"
	"sync/atomic"
	"time"
	"unicode"
)

var ridSeq atomic.Uint64

// newReqID returns a short, process-unique request id for log correlation.
func newReqID() string {
	n := ridSeq.Add(1)
	return strconv.FormatInt(time.Now().UnixMilli(), 36) + "-" + strconv.FormatUint(n, 36)
}

// parseCommand splits "/cmd@bot a b" into ("cmd", ["a","b"], "a b").
// Text that is not a command reports ok=false.
func parseCommand(text string) (word string, args []string, rest string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", nil, "", false
	}
	head, rest := cutWord(text)
	word = strings.TrimPrefix(head, "/")
	if i := strings.IndexByte(word, '@'); i >= 0 {
		word = word[:i]
	}
	word = strings.ToLower(word)
	if word == "" {
		return "", nil, "", false
	}
	return word, tokenizeCommandLine(rest), rest, true
}

// cutWord splits s at the first run of whitespace.
func cutWord(s string) (word, rest string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}

// CutWord is cutWord for handlers that parse Request.Text themselves.
func CutWord(s string) (word, rest string) { return cutWord(s) }

// tokenizeCommandLine splits command text into tokens, honouring quotes and
// backslash escapes:
//
//	/set 10m "call mom" -> ["/set", "10m", "call mom"]
func tokenizeCommandLine(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var (
		out   []string
		buf   strings.Builder
		inQ   bool
		qChar rune
		esc   bool
		has   bool
	)
	flush := func() {
		if has {
			out = append(out, buf.String())
			buf.Reset()
			has = false
		}
	}
	for _, ch := range s {
		if esc {
			buf.WriteRune(ch)
			esc, has = false, true
			continue
		}
		if ch == '\\' {
			esc = true
			continue
		}
		if inQ {
			if ch == qChar {
				inQ = false
				continue
			}
			buf.WriteRune(ch)
			continue
		}
		switch ch {
		case '"', '\'':
			if has {
				// Mid-word quotes ("don't") are literal.
				buf.WriteRune(ch)
				continue
			}
			inQ, qChar, has = true, ch, true
		case ' ', '\t', '\n', '\r':
			flush()
		default:
			buf.WriteRune(ch)
			has = true
		}
	}
	flush()
	return out
}
