package data

import (
	"regexp"
	"time"
)

var stringLinkRe = regexp.MustCompile(`^\[\[(.*)\]\]$`)

// The predicates below accept any value, including types a data source
// would never produce, and report false instead of failing.

// IsString reports whether v is a string.
func IsString(v any) bool {
	_, ok := v.(string)
	return ok
}

// IsNumber reports whether v is any Go numeric type.
func IsNumber(v any) bool {
	switch v.(type) {
	case int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return true
	}
	return false
}

// IsBoolean reports whether v is a bool.
func IsBoolean(v any) bool {
	_, ok := v.(bool)
	return ok
}

// IsDate reports whether v is a time.Time.
func IsDate(v any) bool {
	switch t := v.(type) {
	case time.Time:
		return true
	case *time.Time:
		return t != nil
	}
	return false
}

// IsLink reports whether v is a Link.
func IsLink(v any) bool {
	switch t := v.(type) {
	case Link:
		return true
	case *Link:
		return t != nil
	}
	return false
}

// IsList reports whether v is a list. Lists decoded from YAML arrive as
// []any before a data source normalizes them to []string.
func IsList(v any) bool {
	switch v.(type) {
	case []string, []any:
		return true
	}
	return false
}

// IsOptional reports whether v is absent or empty. Looking up a missing key
// and reading an empty value both yield nil.
func IsOptional(v any) bool {
	switch t := v.(type) {
	case nil:
		return true
	case *Link:
		return t == nil
	case *time.Time:
		return t == nil
	}
	return false
}

// HasValue reports whether v is present and not empty.
func HasValue(v any) bool {
	return !IsOptional(v)
}

func IsOptionalString(v any) bool  { return IsString(v) || IsOptional(v) }
func IsOptionalNumber(v any) bool  { return IsNumber(v) || IsOptional(v) }
func IsOptionalBoolean(v any) bool { return IsBoolean(v) || IsOptional(v) }
func IsOptionalDate(v any) bool    { return IsDate(v) || IsOptional(v) }
func IsOptionalLink(v any) bool    { return IsLink(v) || IsOptional(v) }
func IsOptionalList(v any) bool    { return IsList(v) || IsOptional(v) }

// IsStringLink reports whether v is a string written as a wiki link, e.g.
// "[[Note]]".
func IsStringLink(v any) bool {
	s, ok := v.(string)
	return ok && stringLinkRe.MatchString(s)
}
