package engine

import (
	"fmt"
	"strings"
)

// splitCommand tokenizes a rendered command string into argv, honoring
// double quotes, single quotes, and backslash escapes outside single quotes.
// Rendered {in_files} values rely on this: each quoted path becomes one
// argument even when it contains spaces.
func splitCommand(s string) ([]string, error) {
	var (
		argv    []string
		cur     strings.Builder
		haveTok bool
		quote   rune // 0, '\'' or '"'
		escaped bool
	)
	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			haveTok = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			haveTok = true
		case r == ' ' || r == '\t' || r == '\n':
			if haveTok {
				argv = append(argv, cur.String())
				cur.Reset()
				haveTok = false
			}
		default:
			cur.WriteRune(r)
			haveTok = true
		}
	}
	if escaped {
		return nil, fmt.Errorf("trailing backslash in command %q", s)
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated %c-quote in command %q", quote, s)
	}
	if haveTok {
		argv = append(argv, cur.String())
	}
	return argv, nil
}
