package process

import (
	"errors"
	"os/exec"
	"strings"
	"syscall"
)

// exitCodeFromError maps a Wait error to a shell-style exit status:
// 0 on success, the exit code for a normal exit, 128+N for death by
// signal N, and 1 for anything that is not an *exec.ExitError.
func exitCodeFromError(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) {
		return 1
	}
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return 128 + int(ws.Signal())
	}
	return exitErr.ExitCode()
}

var (
	errUnclosedQuote     = errors.New("unclosed quote in command")
	errTrailingBackslash = errors.New("trailing backslash in command")
)

// parseCommand splits command into argv the way a POSIX shell would for
// plain words: single quotes are literal, double quotes allow backslash
// escapes, and an unquoted backslash escapes the next character.
// No expansion of any kind is done.
func parseCommand(command string) ([]string, error) {
	var (
		args    []string
		word    strings.Builder
		inWord  bool
		quote   rune
		escaped bool
	)
	flush := func() {
		if inWord {
			args = append(args, word.String())
			word.Reset()
			inWord = false
		}
	}

	for _, r := range command {
		switch {
		case escaped:
			if quote == '"' && !strings.ContainsRune(`"\$`+"`", r) {
				word.WriteRune('\\')
			}
			word.WriteRune(r)
			escaped = false
		case quote == '\'':
			if r == '\'' {
				quote = 0
			} else {
				word.WriteRune(r)
			}
		case r == '\\':
			escaped = true
			inWord = true
		case quote == '"':
			if r == '"' {
				quote = 0
			} else {
				word.WriteRune(r)
			}
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == ' ' || r == '\t' || r == '\n':
			flush()
		default:
			word.WriteRune(r)
			inWord = true
		}
	}

	switch {
	case escaped:
		return nil, errTrailingBackslash
	case quote != 0:
		return nil, errUnclosedQuote
	}
	flush()
	return args, nil
}
