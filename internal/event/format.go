package event

import (
	"fmt"
	"strconv"
	"strings"
)

// maxPlaceholderValue bounds placeholder indexes and alignments. Larger
// values leave the template unchanged.
const maxPlaceholderValue = 1_000_000

// Formatter renders a message template with its format arguments.
type Formatter func(template string, args []any) string

// Format is the default Formatter. It expands composite placeholders of the
// form {index}, {index,alignment} and {index:format}; "{{" and "}}" produce
// literal braces. The format component is accepted and ignored. A malformed
// template, an out-of-range index or an alignment of a million or more
// returns the template unchanged.
func Format(template string, args []any) string {
	if len(args) == 0 {
		return template
	}
	var sb strings.Builder
	sb.Grow(len(template) + 16*len(args))
	for i := 0; i < len(template); i++ {
		c := template[i]
		switch c {
		case '{':
			if i+1 < len(template) && template[i+1] == '{' {
				sb.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(template[i+1:], '}')
			if end < 0 {
				return template
			}
			text, ok := expandPlaceholder(template[i+1:i+1+end], args)
			if !ok {
				return template
			}
			sb.WriteString(text)
			i += end + 1
		case '}':
			if i+1 < len(template) && template[i+1] == '}' {
				sb.WriteByte('}')
				i++
				continue
			}
			return template
		default:
			sb.WriteByte(c)
		}
	}
	return sb.String()
}

// expandPlaceholder renders the body of a single {...} item.
func expandPlaceholder(body string, args []any) (string, bool) {
	if colon := strings.IndexByte(body, ':'); colon >= 0 {
		body = body[:colon]
	}
	align := 0
	if comma := strings.IndexByte(body, ','); comma >= 0 {
		n, err := strconv.Atoi(strings.TrimSpace(body[comma+1:]))
		if err != nil || n <= -maxPlaceholderValue || n >= maxPlaceholderValue {
			return "", false
		}
		align = n
		body = body[:comma]
	}
	idx, err := strconv.Atoi(strings.TrimSpace(body))
	if err != nil || idx < 0 || idx >= maxPlaceholderValue || idx >= len(args) {
		return "", false
	}
	text := fmt.Sprint(args[idx])
	if pad := abs(align) - len(text); pad > 0 {
		if align > 0 {
			text = strings.Repeat(" ", pad) + text
		} else {
			text += strings.Repeat(" ", pad)
		}
	}
	return text, true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
