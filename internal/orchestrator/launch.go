package orchestrator

import (
	"errors"
	"fmt"
	"strings"
)

// FilenamePlaceholder is replaced by the media file in argument templates.
const FilenamePlaceholder = "{filename}"

// ErrUnterminatedQuote is returned for a template with an open quote.
var ErrUnterminatedQuote = errors.New("unterminated quote in argument template")

// RCFlags returns the flags that bind the player's RC interface to addr.
// Unless verbose, the RC console is kept quiet.
func RCFlags(addr string, verbose bool) []string {
	flags := []string{"--intf", "rc"}
	if !verbose {
		flags = append(flags, "--rc-quiet")
	}
	return append(flags, "--rc-host", addr)
}

// BuildLaunchArgs returns the player arguments for one instance: the RC
// flags followed by the instance template with the filename substituted.
// A template without FilenamePlaceholder gets the filename appended.
func BuildLaunchArgs(in Instance, filename string, verbose bool) ([]string, error) {
	tmpl, err := splitArgs(in.Args)
	if err != nil {
		return nil, fmt.Errorf("instance %d: %w", in.Index, err)
	}

	args := RCFlags(in.Addr(), verbose)
	substituted := false
	for _, a := range tmpl {
		if strings.Contains(a, FilenamePlaceholder) {
			a = strings.ReplaceAll(a, FilenamePlaceholder, filename)
			substituted = true
		}
		args = append(args, a)
	}
	if !substituted {
		args = append(args, filename)
	}
	return args, nil
}

// splitArgs splits a template on whitespace, honoring single and double
// quotes and backslash escapes outside single quotes.
func splitArgs(s string) ([]string, error) {
	var (
		args    []string
		cur     strings.Builder
		inArg   bool
		quote   rune
		escaped bool
	)

	for _, r := range s {
		switch {
		case escaped:
			cur.WriteRune(r)
			escaped = false
		case r == '\\' && quote != '\'':
			escaped = true
			inArg = true
		case quote != 0:
			if r == quote {
				quote = 0
			} else {
				cur.WriteRune(r)
			}
		case r == '"' || r == '\'':
			quote = r
			inArg = true
		case r == ' ' || r == '\t' || r == '\n':
			if inArg {
				args = append(args, cur.String())
				cur.Reset()
				inArg = false
			}
		default:
			cur.WriteRune(r)
			inArg = true
		}
	}

	if quote != 0 || escaped {
		return nil, ErrUnterminatedQuote
	}
	if inArg {
		args = append(args, cur.String())
	}
	return args, nil
}
