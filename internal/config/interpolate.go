package config

import (
	"strings"

	"github.com/rs/zerolog/log"
)

// Interpolator substitutes ${VAR}, ${VAR:-default} and $VAR tokens in scalar
// string fields from a fixed environment mapping. An unset variable without
// a default yields an empty string plus a warning, never a hard failure.
type Interpolator struct {
	env map[string]string
}

// NewInterpolator builds an interpolator over the given environment.
func NewInterpolator(env map[string]string) *Interpolator {
	if env == nil {
		env = make(map[string]string)
	}
	return &Interpolator{env: env}
}

// Apply substitutes every variable token in s. "$$" escapes a literal "$".
func (in *Interpolator) Apply(s string) string {
	if !strings.ContainsRune(s, '$') {
		return s
	}

	var out strings.Builder
	for i := 0; i < len(s); {
		c := s[i]
		if c != '$' {
			out.WriteByte(c)
			i++
			continue
		}
		if i+1 >= len(s) {
			out.WriteByte('$')
			break
		}
		switch s[i+1] {
		case '$':
			out.WriteByte('$')
			i += 2
		case '{':
			end := strings.IndexByte(s[i+2:], '}')
			if end < 0 {
				out.WriteString(s[i:])
				i = len(s)
				break
			}
			expr := s[i+2 : i+2+end]
			out.WriteString(in.expand(expr))
			i += 2 + end + 1
		default:
			j := i + 1
			for j < len(s) && isNameByte(s[j]) {
				j++
			}
			if j == i+1 {
				out.WriteByte('$')
				i++
				continue
			}
			out.WriteString(in.lookup(s[i+1 : j]))
			i = j
		}
	}
	return out.String()
}

// ApplyAll interpolates every string of a slice, returning nil for nil.
func (in *Interpolator) ApplyAll(values []string) []string {
	if values == nil {
		return nil
	}
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = in.Apply(v)
	}
	return out
}

// ApplyMap interpolates every value of a mapping, returning nil for nil.
// Keys are never interpolated.
func (in *Interpolator) ApplyMap(values map[string]string) map[string]string {
	if values == nil {
		return nil
	}
	out := make(map[string]string, len(values))
	for k, v := range values {
		out[k] = in.Apply(v)
	}
	return out
}

// expand handles the braced form, including the ":-default" operator.
func (in *Interpolator) expand(expr string) string {
	if name, def, ok := strings.Cut(expr, ":-"); ok {
		if v, set := in.env[name]; set && v != "" {
			return v
		}
		return def
	}
	if name, def, ok := strings.Cut(expr, "-"); ok {
		if v, set := in.env[name]; set {
			return v
		}
		return def
	}
	return in.lookup(expr)
}

func (in *Interpolator) lookup(name string) string {
	if v, ok := in.env[name]; ok {
		return v
	}
	log.Warn().Str("variable", name).Msg("variable is not set, substituting an empty string")
	return ""
}

func isNameByte(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}
