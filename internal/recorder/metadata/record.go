// Package metadata holds per-frame capture metadata and the ordered writer
// that serializes it alongside encoded output.
package metadata

import (
	"strconv"
	"strings"
)

// Entry is one metadata control value, stored in its rendered form.
type Entry struct {
	Key   string
	Value string
}

// ---- Entry helpers ----

func String(key, val string) Entry { return Entry{Key: key, Value: val} }
func Int(key string, val int) Entry {
	return Entry{Key: key, Value: strconv.Itoa(val)}
}
func Int64(key string, val int64) Entry {
	return Entry{Key: key, Value: strconv.FormatInt(val, 10)}
}
func Float(key string, val float64) Entry {
	return Entry{Key: key, Value: formatFloat(val)}
}
func Bool(key string, val bool) Entry {
	return Entry{Key: key, Value: strconv.FormatBool(val)}
}

// Ints renders an array value as "[ a, b, c ]".
func Ints(key string, vals ...int64) Entry {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.FormatInt(v, 10)
	}
	return Entry{Key: key, Value: renderArray(parts)}
}

// Floats renders an array value as "[ a, b, c ]".
func Floats(key string, vals ...float64) Entry {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = formatFloat(v)
	}
	return Entry{Key: key, Value: renderArray(parts)}
}

// Size renders "WxH".
func Size(key string, w, h int) Entry {
	return Entry{Key: key, Value: strconv.Itoa(w) + "x" + strconv.Itoa(h)}
}

// Rectangle renders "(x, y)/WxH". The slash makes the JSON emitter quote it.
func Rectangle(key string, x, y, w, h int) Entry {
	return Entry{
		Key:   key,
		Value: "(" + strconv.Itoa(x) + ", " + strconv.Itoa(y) + ")/" + strconv.Itoa(w) + "x" + strconv.Itoa(h),
	}
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func renderArray(parts []string) string {
	if len(parts) == 0 {
		return "[ ]"
	}
	return "[ " + strings.Join(parts, ", ") + " ]"
}

// Record is the ordered set of control values captured with one frame.
// A Record is immutable once built; the zero value is an empty record.
type Record struct {
	entries []Entry
}

// NewRecord copies entries into a new Record, preserving order.
func NewRecord(entries ...Entry) Record {
	if len(entries) == 0 {
		return Record{}
	}
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	return Record{entries: cp}
}

// Len returns the number of entries.
func (r Record) Len() int { return len(r.entries) }

// Entries returns a copy of the entries in capture order.
func (r Record) Entries() []Entry {
	if len(r.entries) == 0 {
		return nil
	}
	cp := make([]Entry, len(r.entries))
	copy(cp, r.entries)
	return cp
}

// Get returns the rendered value for key.
func (r Record) Get(key string) (string, bool) {
	for _, e := range r.entries {
		if e.Key == key {
			return e.Value, true
		}
	}
	return "", false
}

// each visits entries without copying.
func (r Record) each(fn func(Entry)) {
	for _, e := range r.entries {
		fn(e)
	}
}
