package data

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

var timeLayouts = []string{
	dateLayout,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04",
}

// TypeOf returns the field type that describes v. Optional values report
// TypeUnknown.
func TypeOf(v any) FieldType {
	switch {
	case IsOptional(v):
		return TypeUnknown
	case IsString(v):
		return TypeString
	case IsNumber(v):
		return TypeNumber
	case IsBoolean(v):
		return TypeBoolean
	case IsDate(v):
		return TypeDate
	case IsLink(v):
		return TypeLink
	case IsList(v):
		return TypeList
	}
	return TypeUnknown
}

// DetectFields infers one field per value key found in records. Keys are
// ordered by first appearance; within a record, alphabetically. A field whose
// values are all empty is a string field; mixed types make it unknown.
func DetectFields(records []Record) []Field {
	var order []string
	types := make(map[string]map[FieldType]struct{})

	for _, r := range records {
		keys := make([]string, 0, len(r.Values))
		for k := range r.Values {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		for _, k := range keys {
			seen, ok := types[k]
			if !ok {
				seen = make(map[FieldType]struct{})
				types[k] = seen
				order = append(order, k)
			}
			if v := r.Values[k]; HasValue(v) {
				seen[TypeOf(v)] = struct{}{}
			}
		}
	}

	fields := make([]Field, 0, len(order))
	for _, name := range order {
		fields = append(fields, Field{Name: name, Type: collapse(types[name])})
	}
	return fields
}

func collapse(seen map[FieldType]struct{}) FieldType {
	switch len(seen) {
	case 0:
		return TypeString
	case 1:
		for t := range seen {
			return t
		}
	}
	return TypeUnknown
}

// ParseValue converts a value decoded from front matter into a data value.
// When hint names a known type the value is coerced to it where that is
// possible without losing information; otherwise the type is inferred.
// sourcePath becomes the source of any link found.
func ParseValue(raw any, hint FieldType, sourcePath string) any {
	if IsOptional(raw) {
		return nil
	}

	switch hint {
	case TypeString:
		if s, ok := formatScalar(raw); ok {
			return s
		}
	case TypeNumber:
		switch t := raw.(type) {
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(t), 64); err == nil {
				return f
			}
		default:
			if f, ok := toFloat(raw); ok {
				return f
			}
		}
	case TypeBoolean:
		switch t := raw.(type) {
		case bool:
			return t
		case string:
			if b, err := strconv.ParseBool(strings.TrimSpace(t)); err == nil {
				return b
			}
		}
	case TypeDate:
		switch t := raw.(type) {
		case time.Time:
			return t
		case string:
			if d, ok := parseTime(t); ok {
				return d
			}
		}
	case TypeLink:
		if s, ok := raw.(string); ok {
			return parseLink(s, sourcePath)
		}
	case TypeList:
		switch t := raw.(type) {
		case string:
			return []string{t}
		case []any, []string:
			return toStringList(t)
		}
	}

	return inferValue(raw, sourcePath)
}

func inferValue(raw any, sourcePath string) any {
	switch t := raw.(type) {
	case string:
		if IsStringLink(t) {
			return parseLink(t, sourcePath)
		}
		if d, ok := parseTime(t); ok {
			return d
		}
		return t
	case bool, time.Time, Link:
		return t
	case *Link:
		return *t
	case []any, []string:
		return toStringList(t)
	}
	if f, ok := toFloat(raw); ok {
		return f
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return fmt.Sprint(raw)
	}
	return string(b)
}

// EncodeValue converts a data value into a value that serializes naturally
// as front matter: links become "[[text]]" strings and dates become
// "2006-01-02", or RFC 3339 when they carry a time of day.
func EncodeValue(v any) any {
	switch t := v.(type) {
	case Link:
		return formatLink(t)
	case *Link:
		if t == nil {
			return nil
		}
		return formatLink(*t)
	case time.Time:
		return formatTime(t)
	case *time.Time:
		if t == nil {
			return nil
		}
		return formatTime(*t)
	}
	return v
}

func formatLink(l Link) string {
	if l.DisplayName != "" && l.DisplayName != l.LinkText {
		return "[[" + l.LinkText + "|" + l.DisplayName + "]]"
	}
	return "[[" + l.LinkText + "]]"
}

func parseLink(s, sourcePath string) any {
	m := stringLinkRe.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	text, display, _ := strings.Cut(m[1], "|")
	return Link{
		LinkText:    strings.TrimSpace(text),
		DisplayName: strings.TrimSpace(display),
		SourcePath:  sourcePath,
	}
}

func formatTime(t time.Time) string {
	h, m, s := t.Clock()
	if h == 0 && m == 0 && s == 0 && t.Nanosecond() == 0 {
		return t.Format(dateLayout)
	}
	return t.Format(time.RFC3339)
}

func parseTime(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	// Cheap reject before trying every layout.
	if len(s) < len(dateLayout) || s[4] != '-' {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func formatScalar(raw any) (string, bool) {
	switch t := raw.(type) {
	case string:
		return t, true
	case bool:
		return strconv.FormatBool(t), true
	case time.Time:
		return formatTime(t), true
	}
	if f, ok := toFloat(raw); ok {
		return strconv.FormatFloat(f, 'f', -1, 64), true
	}
	return "", false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		if math.IsNaN(n) {
			return 0, false
		}
		return n, true
	}
	return 0, false
}

func toStringList(v any) []string {
	switch t := v.(type) {
	case []string:
		out := make([]string, len(t))
		copy(out, t)
		return out
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if item == nil {
				continue
			}
			if s, ok := formatScalar(item); ok {
				out = append(out, s)
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return out
	}
	return nil
}
