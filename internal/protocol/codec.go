package protocol

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// EncodeCommand renders a command as a single line without the trailing newline.
// The worker handle appends exactly one terminator when writing.
func EncodeCommand(verb Verb, arg string) (string, error) {
	if !verb.Valid() {
		return "", fmt.Errorf("%w: unknown verb %q", ErrInvalidCommand, verb)
	}
	if strings.ContainsAny(arg, "\r\n") {
		return "", fmt.Errorf("%w: argument contains a line break", ErrInvalidCommand)
	}

	if !verb.TakesArg() {
		if arg != "" {
			return "", fmt.Errorf("%w: %s takes no argument", ErrInvalidCommand, verb)
		}
		return string(verb), nil
	}

	if strings.TrimSpace(arg) == "" {
		return "", fmt.Errorf("%w: %s requires a path", ErrInvalidCommand, verb)
	}
	return string(verb) + " " + arg, nil
}

// ParseCommand decodes one command line as read by the worker. Only the line
// terminator is stripped so paths keep their interior and trailing spaces.
func ParseCommand(line string) (Command, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return Command{}, fmt.Errorf("%w: empty line", ErrInvalidCommand)
	}

	verbText, arg, hasArg := strings.Cut(line, " ")
	verb := Verb(verbText)
	if !verb.Valid() {
		return Command{}, fmt.Errorf("%w: unknown verb %q", ErrInvalidCommand, verbText)
	}

	if !verb.TakesArg() {
		if hasArg && strings.TrimSpace(arg) != "" {
			return Command{}, fmt.Errorf("%w: %s takes no argument", ErrInvalidCommand, verb)
		}
		return Command{Verb: verb}, nil
	}

	if !hasArg || strings.TrimSpace(arg) == "" {
		return Command{}, fmt.Errorf("%w: %s requires a path", ErrInvalidCommand, verb)
	}
	return Command{Verb: verb, Arg: arg}, nil
}

// EncodeFrame renders a frame followed by a newline.
func EncodeFrame(tag, payload string) (string, error) {
	if !validTag(tag) {
		return "", fmt.Errorf("%w: invalid tag %q", ErrMalformedFrame, tag)
	}
	if strings.Contains(payload, EndSentinel) {
		return "", fmt.Errorf("%w: payload contains %s", ErrMalformedFrame, EndSentinel)
	}
	return "." + tag + "." + payload + EndSentinel + "\n", nil
}

// WriteFrame encodes a frame and writes it to w.
func WriteFrame(w io.Writer, tag, payload string) error {
	s, err := EncodeFrame(tag, payload)
	if err != nil {
		return err
	}
	if _, err := io.WriteString(w, s); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// SplitLines splits a newline-delimited payload into trimmed, non-empty items.
func SplitLines(payload string) []string {
	var out []string
	for _, line := range strings.Split(payload, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// ParseList decodes a LIST payload. Newline-delimited paths are the native
// form; a JSON string array is accepted as well.
func ParseList(payload string) ([]string, error) {
	trimmed := strings.TrimSpace(payload)
	if strings.HasPrefix(trimmed, "[") {
		var paths []string
		if err := json.Unmarshal([]byte(trimmed), &paths); err != nil {
			return nil, fmt.Errorf("%w: list payload is not a JSON string array: %v", ErrMalformedFrame, err)
		}
		out := paths[:0]
		for _, p := range paths {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	}
	return SplitLines(payload), nil
}

func validTag(tag string) bool {
	if tag == "" || tag == "END" {
		return false
	}
	for i := 0; i < len(tag); i++ {
		if !isTagByte(tag[i], i == 0) {
			return false
		}
	}
	return true
}

func isTagByte(c byte, first bool) bool {
	if c >= 'A' && c <= 'Z' {
		return true
	}
	if first {
		return false
	}
	return c == '_' || (c >= '0' && c <= '9')
}
