// Package template parses the transform template strings of spec.md §4.4,
// e.g. ":210210:210:210" — one level per ':'-separated group, digits name
// axes (0=x, 1=y, 2=z).
//
// Grounded on original_source/Source/Core/v2/idx2Common_v2.cpp's
// ParseIndexingTemplate, which walks the template string back-to-front and
// treats '|' as a prefix/suffix separator. This package keeps only the v1
// single-string grammar; the v2 prefix is recognized (so a template
// containing '|' is reported as unsupported v2 syntax instead of producing
// a confusing axis-digit error) and deliberately rejected, per spec.md §9's Open Question about the v2
// grammar being only partially defined upstream.
package template

import (
	"strings"

	"github.com/hoang-dt/idx2/internal/errs"
	"github.com/hoang-dt/idx2/internal/v3"
)

// Level is one ':'-separated group of axis passes, read right-to-left:
// within a level, the lifting passes are applied in the reverse order the
// digits appear in the template string (Axes[len-1] is applied first).
type Level struct {
	Axes []v3.Axis
}

// Template is the full per-level axis-pass plan produced by one template
// string, in the same left-to-right level order the string itself uses
// (Levels[0] is the leftmost ':'-separated group).
type Template struct {
	Levels []Level
}

// Parse parses a v1 template string. A template containing '|' (the v2
// static-prefix syntax) returns a SyntaxError-kind error instead of being
// guessed at.
func Parse(s string) (Template, error) {
	if strings.ContainsRune(s, '|') {
		return Template{}, errs.E(errs.SyntaxError,
			"template: '|' (v2 static-prefix syntax) is recognized but not supported: %q", s)
	}

	groups := strings.Split(s, ":")
	var t Template
	for _, g := range groups {
		if g == "" {
			continue
		}
		lvl := Level{Axes: make([]v3.Axis, len(g))}
		for j := 0; j < len(g); j++ {
			c := g[j]
			if c < '0' || c > '2' {
				return Template{}, errs.E(errs.SyntaxError,
					"template: unsupported axis digit %q in %q", string(c), s)
			}
			lvl.Axes[j] = v3.Axis(c - '0')
		}
		t.Levels = append(t.Levels, lvl)
	}
	if len(t.Levels) == 0 {
		return Template{}, errs.E(errs.SyntaxError, "template: empty template %q", s)
	}
	return t, nil
}

// String reconstructs the canonical template string for a Template, the
// exact right inverse of Parse (round-trip property (f) of spec.md §8).
func (t Template) String() string {
	var sb strings.Builder
	for _, lvl := range t.Levels {
		sb.WriteByte(':')
		for _, a := range lvl.Axes {
			sb.WriteByte(byte('0' + int(a)))
		}
	}
	return sb.String()
}

// ApplyOrder returns a level's axes in lifting-application order
// (right-to-left in the template string).
func (l Level) ApplyOrder() []v3.Axis {
	out := make([]v3.Axis, len(l.Axes))
	for i, a := range l.Axes {
		out[len(l.Axes)-1-i] = a
	}
	return out
}
