package config

import (
	"fmt"
	"strings"
	"unicode"
)

// UnmarshalText parses a shell-like command line into Argv.
func (c *CommandConfig) UnmarshalText(text []byte) error {
	argv, err := parseArgv(string(text))
	if err != nil {
		return err
	}
	c.Raw = strings.TrimSpace(string(text))
	c.Argv = argv
	return nil
}

// MarshalText returns the raw command line.
func (c CommandConfig) MarshalText() ([]byte, error) {
	return []byte(c.Raw), nil
}

// parseArgv splits input on unquoted whitespace. Single and double quotes group
// words and a backslash escapes the next rune. A leading # disables the command.
func parseArgv(input string) ([]string, error) {
	input = strings.TrimSpace(input)
	if input == "" || strings.HasPrefix(input, "#") {
		return nil, nil
	}

	var (
		argv    []string
		current strings.Builder
		quote   rune
		escape  bool
		quoted  bool
	)

	flush := func() {
		if current.Len() == 0 && !quoted {
			return
		}
		argv = append(argv, current.String())
		current.Reset()
		quoted = false
	}

	for _, r := range input {
		switch {
		case escape:
			current.WriteRune(r)
			escape = false
		case r == '\\' && quote != '\'':
			escape = true
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			current.WriteRune(r)
		case r == '\'' || r == '"':
			quote = r
			quoted = true
		case unicode.IsSpace(r):
			flush()
		default:
			current.WriteRune(r)
		}
	}

	if escape {
		return nil, fmt.Errorf("unterminated escape sequence in command: %q", input)
	}
	if quote != 0 {
		return nil, fmt.Errorf("unterminated quote in command: %q", input)
	}

	flush()
	return argv, nil
}
