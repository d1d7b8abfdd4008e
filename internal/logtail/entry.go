package logtail

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Field is one structured key/value pair of an entry.
type Field struct {
	Key   string
	Value string
}

// Entry is one parsed log line.
type Entry struct {
	Time    time.Time
	Level   string // lowercase: debug, info, warn, error, ...
	Logger  string
	Caller  string
	Message string
	Fields  []Field
}

var timeLayouts = []string{
	"2006-01-02T15:04:05.000Z0700",
	time.RFC3339Nano,
	time.RFC3339,
}

// Parse decodes a JSON log line. ok is false for anything that is not a JSON
// object; the returned entry then carries the trimmed line as its message.
func Parse(line string) (e Entry, ok bool) {
	line = strings.TrimSpace(line)
	if line == "" {
		return Entry{}, false
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(line), &raw); err != nil {
		return Entry{Message: line}, false
	}

	for key, value := range raw {
		switch key {
		case "level":
			e.Level = strings.ToLower(stringify(value))
		case "ts":
			e.Time = parseTime(value)
		case "logger":
			e.Logger = stringify(value)
		case "caller":
			e.Caller = stringify(value)
		case "msg":
			e.Message = stringify(value)
		default:
			e.Fields = append(e.Fields, Field{Key: key, Value: stringify(value)})
		}
	}
	sort.Slice(e.Fields, func(i, j int) bool { return e.Fields[i].Key < e.Fields[j].Key })
	return e, true
}

func parseTime(v any) time.Time {
	switch t := v.(type) {
	case string:
		for _, layout := range timeLayouts {
			if parsed, err := time.Parse(layout, t); err == nil {
				return parsed
			}
		}
	case float64:
		sec := int64(t)
		return time.Unix(sec, int64((t-float64(sec))*1e9))
	}
	return time.Time{}
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64, bool:
		return fmt.Sprint(t)
	default:
		b, err := json.Marshal(t)
		if err != nil {
			return fmt.Sprint(t)
		}
		return string(b)
	}
}

var levelRank = map[string]int{
	"debug":  0,
	"info":   1,
	"warn":   2,
	"error":  3,
	"dpanic": 4,
	"panic":  5,
	"fatal":  6,
}

// AtLeast reports whether e is at or above min. Unknown levels on either side
// count as info.
func (e Entry) AtLeast(min string) bool {
	return rank(e.Level) >= rank(min)
}

func rank(level string) int {
	if r, ok := levelRank[strings.ToLower(strings.TrimSpace(level))]; ok {
		return r
	}
	return levelRank["info"]
}

// Matches reports whether query occurs, case-insensitively, in the message,
// the logger name or any field value.
func (e Entry) Matches(query string) bool {
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return true
	}
	if strings.Contains(strings.ToLower(e.Message), query) || strings.Contains(strings.ToLower(e.Logger), query) {
		return true
	}
	for _, f := range e.Fields {
		if strings.Contains(strings.ToLower(f.Value), query) {
			return true
		}
	}
	return false
}
