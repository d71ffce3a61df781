package wizard

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// Normalizer names accepted in mission catalogs.
const (
	NormExact       = "exact"
	NormFold        = "fold"
	NormFoldCompact = "fold_compact"
	NormInteger     = "integer"
	NormDigits      = "digits"
	NormDate        = "date"
)

// Normalizer turns raw user input into the comparable form of a flag.
// Normalize returns ErrEmptyAnswer or ErrMalformedAnswer for input that
// must be rejected before any comparison happens.
type Normalizer interface {
	Name() string
	Normalize(raw string) (string, error)
	Equal(normalized, expected string) bool
}

// NormalizerByName resolves a catalog normalizer. maxDigits only applies
// to the numeric normalizers; zero means unbounded.
func NormalizerByName(name string, maxDigits int) (Normalizer, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case NormExact, "":
		return exactNormalizer{}, nil
	case NormFold:
		return foldNormalizer{sep: " "}, nil
	case NormFoldCompact:
		return foldNormalizer{sep: ""}, nil
	case NormInteger:
		return digitsNormalizer{maxDigits: maxDigits, numeric: true}, nil
	case NormDigits:
		return digitsNormalizer{maxDigits: maxDigits}, nil
	case NormDate:
		return dateNormalizer{}, nil
	default:
		return nil, fmt.Errorf("unknown normalizer %q", name)
	}
}

type exactNormalizer struct{}

func (exactNormalizer) Name() string { return NormExact }

func (exactNormalizer) Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrEmptyAnswer
	}
	return s, nil
}

func (exactNormalizer) Equal(normalized, expected string) bool {
	return normalized == expected
}

// foldNormalizer lowercases and rewrites every whitespace run as sep.
type foldNormalizer struct {
	sep string
}

func (n foldNormalizer) Name() string {
	if n.sep == "" {
		return NormFoldCompact
	}
	return NormFold
}

func (n foldNormalizer) Normalize(raw string) (string, error) {
	s := strings.TrimSpace(norm.NFC.String(raw))
	if s == "" {
		return "", ErrEmptyAnswer
	}
	// Caser is stateful, one per call.
	s = cases.Lower(language.Und).String(s)
	return strings.Join(strings.Fields(s), n.sep), nil
}

func (foldNormalizer) Equal(normalized, expected string) bool {
	return normalized == expected
}

type digitsNormalizer struct {
	maxDigits int
	numeric   bool
}

func (n digitsNormalizer) Name() string {
	if n.numeric {
		return NormInteger
	}
	return NormDigits
}

func (n digitsNormalizer) Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrEmptyAnswer
	}
	for _, ch := range s {
		if ch < '0' || ch > '9' {
			return "", ErrMalformedAnswer
		}
	}
	if n.maxDigits > 0 && len(s) > n.maxDigits {
		return "", ErrMalformedAnswer
	}
	return s, nil
}

func (n digitsNormalizer) Equal(normalized, expected string) bool {
	if !n.numeric {
		return normalized == expected
	}
	a, err := strconv.Atoi(normalized)
	if err != nil {
		return false
	}
	b, err := strconv.Atoi(strings.TrimSpace(expected))
	if err != nil {
		return false
	}
	return a == b
}

var dateFormat = regexp.MustCompile(`^[0-9]{4}-[0-9]{2}-[0-9]{2}$`)

type dateNormalizer struct{}

func (dateNormalizer) Name() string { return NormDate }

func (dateNormalizer) Normalize(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", ErrEmptyAnswer
	}
	if !dateFormat.MatchString(s) {
		return "", ErrMalformedAnswer
	}
	// time.Parse rejects impossible days such as 2020-02-30.
	if _, err := time.Parse("2006-01-02", s); err != nil {
		return "", ErrMalformedAnswer
	}
	return s, nil
}

func (dateNormalizer) Equal(normalized, expected string) bool {
	return normalized == expected
}
