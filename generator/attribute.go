package generator

import (
	"strings"
	"unicode"
)

// Attribute is a named, typed, nullability-aware column or parameter.
// BindName is derived once at construction and never recomputed.
type Attribute struct {
	Name     string
	BindName string
	Type     DbType
	Nullable bool
}

// NewAttribute builds an Attribute from a catalog name. The name is
// normalized first; nullability comes from whichever source the call
// site has (column flag, default sniffing, or dry-run metadata).
func NewAttribute(raw string, t DbType, nullable bool) (Attribute, error) {
	name, err := normalizeName(raw)
	if err != nil {
		return Attribute{}, err
	}
	return Attribute{
		Name:     name,
		BindName: "@" + name,
		Type:     t,
		Nullable: nullable,
	}, nil
}

// normalizeName strips a leading bind marker and lower-cases the first
// rune only, leaving the rest of the identifier untouched.
func normalizeName(raw string) (string, error) {
	s := strings.TrimPrefix(raw, "@")
	if s == "" {
		return "", errInvalidName(raw)
	}
	r := []rune(s)
	r[0] = unicode.ToLower(r[0])
	return string(r), nil
}

// bindList renders a comma-joined list of bind names for interpolation
// into query text. leadingSep prepends ", " so the list can follow a
// fixed prefix that already carries arguments.
func bindList(attrs []Attribute, leadingSep bool) string {
	if len(attrs) == 0 {
		return ""
	}
	names := make([]string, len(attrs))
	for i, a := range attrs {
		names[i] = a.BindName
	}
	s := strings.Join(names, ", ")
	if leadingSep {
		return ", " + s
	}
	return s
}

// nullableDefault reports whether a parameter's declared default literal
// marks it nullable: exactly the case-insensitive token "null".
func nullableDefault(literal string) bool {
	return strings.EqualFold(strings.TrimSpace(literal), "null")
}

// exportedName converts a catalog identifier to an exported Go
// identifier: underscore-separated chunks are capitalized and joined.
func exportedName(s string) string {
	var b strings.Builder
	for _, part := range strings.Split(s, "_") {
		if part == "" {
			continue
		}
		r := []rune(part)
		r[0] = unicode.ToUpper(r[0])
		b.WriteString(string(r))
	}
	return b.String()
}

// objectPart returns the object name of a dotted qualified name.
func objectPart(qualified string) string {
	if i := strings.LastIndex(qualified, "."); i >= 0 {
		return qualified[i+1:]
	}
	return qualified
}

// bracketQualified renders "[schema].[object]" for emitted query text.
func bracketQualified(schema, object string) string {
	return "[" + schema + "].[" + object + "]"
}

// bracketDotted bracket-quotes a dotted "schema.object" pair.
func bracketDotted(qualified string) string {
	if i := strings.Index(qualified, "."); i >= 0 {
		return bracketQualified(qualified[:i], qualified[i+1:])
	}
	return "[" + qualified + "]"
}
