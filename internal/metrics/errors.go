package metrics

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
)

// kinded is implemented by errors that name their own failure kind, such as
// "HTTP 503" or "Workload panic".
type kinded interface {
	ErrorKind() string
}

type timeout interface {
	Timeout() bool
}

// ClassifyError returns the label a failed call is grouped under in the
// failure breakdown.
func ClassifyError(err error) string {
	if err == nil {
		return ""
	}

	var k kinded
	if errors.As(err, &k) {
		if kind := k.ErrorKind(); kind != "" {
			return kind
		}
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "Timeout"
	case errors.Is(err, context.Canceled):
		return "Canceled"
	case errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, io.EOF):
		return "Unexpected EOF"
	}

	var t timeout
	if errors.As(err, &t) && t.Timeout() {
		return "Timeout"
	}

	for isWrapper(err) {
		inner := errors.Unwrap(err)
		if inner == nil {
			break
		}
		err = inner
	}
	return typeLabel(fmt.Sprintf("%T", err))
}

func isWrapper(err error) bool {
	switch fmt.Sprintf("%T", err) {
	case "*fmt.wrapError", "*fmt.wrapErrors":
		return true
	}
	return false
}

// typeLabel turns a %T name like "*net.OpError" into "Op Error (net)".
func typeLabel(typeName string) string {
	name := strings.TrimPrefix(strings.TrimSpace(typeName), "*")
	switch name {
	case "":
		return "Unknown error"
	case "errors.errorString", "fmt.wrapError", "fmt.wrapErrors":
		return "Error"
	}

	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	pkg, typ, found := strings.Cut(name, ".")
	if !found {
		pkg, typ = "", name
	}

	label := splitWords(typ)
	if label == "" {
		label = typ
	}
	if pkg == "" || pkg == "main" {
		return label
	}
	return fmt.Sprintf("%s (%s)", label, pkg)
}

// splitWords breaks a Go identifier at case and digit boundaries, keeping
// acronyms such as "HTTP" intact.
func splitWords(ident string) string {
	runes := []rune(ident)
	var words []string
	start := 0
	for i := 1; i <= len(runes); i++ {
		if i < len(runes) && !wordBoundary(runes, i) {
			continue
		}
		if i > start {
			words = append(words, titleWord(string(runes[start:i])))
		}
		start = i
	}
	return strings.Join(words, " ")
}

func wordBoundary(runes []rune, i int) bool {
	prev, cur := runes[i-1], runes[i]
	switch {
	case unicode.IsDigit(cur):
		return !unicode.IsDigit(prev)
	case !unicode.IsUpper(cur):
		return false
	case unicode.IsLower(prev):
		return true
	default:
		// Last capital of an acronym starts the next word: "HTTPError".
		return unicode.IsUpper(prev) && i+1 < len(runes) && unicode.IsLower(runes[i+1])
	}
}

func titleWord(word string) string {
	hasLetter := false
	allUpper := true
	for _, r := range word {
		if unicode.IsLetter(r) {
			hasLetter = true
			allUpper = allUpper && unicode.IsUpper(r)
		}
	}
	if hasLetter && allUpper {
		return word
	}
	runes := []rune(strings.ToLower(word))
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
