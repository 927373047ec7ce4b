package adapter

import (
	"strings"
	"time"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	time.DateOnly,
}

// parseTime accepts the layouts the source services write. Empty or unparsable values yield nil.
func parseTime(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// recordTime is the last-update time of a record, falling back to its creation time.
func recordTime(fields map[string]string) *time.Time {
	if t := parseTime(fields["updated_at"]); t != nil {
		return t
	}
	return parseTime(fields["created_at"])
}

// join concatenates the non-empty values with sep.
func join(sep string, values ...string) string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return strings.Join(out, sep)
}

// pick copies the non-empty listed fields into a metadata map.
func pick(fields map[string]string, keys ...string) map[string]string {
	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v := fields[k]; v != "" {
			out[k] = v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
