package product

// kwPrefix is the marker prepended to keyword names by preprocessSource.
const kwPrefix = "__kw_"

// preprocessSource rewrites a product script into something zygomys reads:
//
//  1. :keyword becomes the string literal "__kw_keyword", so keywords need
//     no global symbols and builtins can tell them from plain strings.
//  2. initial-rotation becomes initial_rotation; zygomys reads a hyphen
//     between identifier characters as subtraction.
//  3. ; and ;; line comments become // comments.
//
// String literals (double-quoted and backtick) are copied untouched.
func preprocessSource(source string) string {
	b := []byte(source)
	out := make([]byte, 0, len(b)+len(b)/4)
	for i := 0; i < len(b); {
		switch c := b[i]; {
		case c == '"':
			n := quotedLen(b[i:], '"', true)
			out = append(out, b[i:i+n]...)
			i += n
		case c == '`':
			n := quotedLen(b[i:], '`', false)
			out = append(out, b[i:i+n]...)
			i += n
		case c == ';':
			for i < len(b) && b[i] == ';' {
				i++
			}
			out = append(out, '/', '/')
			for i < len(b) && b[i] != '\n' {
				out = append(out, b[i])
				i++
			}
		case c == ':' && i+1 < len(b) && b[i+1] == '=':
			out = append(out, ':', '=')
			i += 2
		case c == ':' && i+1 < len(b) && isLetter(b[i+1]):
			j := i + 1
			for j < len(b) && isKWChar(b[j]) {
				j++
			}
			out = append(out, '"')
			out = append(out, kwPrefix...)
			out = append(out, b[i+1:j]...)
			out = append(out, '"')
			i = j
		case c == '-' && i > 0 && i+1 < len(b) && isIdentChar(b[i-1]) && isLetter(b[i+1]):
			out = append(out, '_')
			i++
		default:
			out = append(out, c)
			i++
		}
	}
	return string(out)
}

// quotedLen returns the length of the literal at the start of b, including
// both delimiters, or len(b) when it is unterminated.
func quotedLen(b []byte, delim byte, escapes bool) int {
	for i := 1; i < len(b); i++ {
		switch {
		case escapes && b[i] == '\\':
			i++
		case b[i] == delim:
			return i + 1
		}
	}
	return len(b)
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isKWChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isIdentChar(c byte) bool {
	return isLetter(c) || (c >= '0' && c <= '9') || c == '_'
}
