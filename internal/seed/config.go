package seed

import "strconv"

// ConfigValue is a setting value together with its metadata columns
// (description, editable, addon_id and the like).
type ConfigValue struct {
	value any
	meta  map[string]any
}

// NewConfigValue creates a ConfigValue. meta is copied.
func NewConfigValue(value any, meta map[string]any) ConfigValue {
	m := make(map[string]any, len(meta))
	for k, v := range meta {
		m[k] = v
	}
	return ConfigValue{value: value, meta: m}
}

// Value returns the wrapped value.
func (c ConfigValue) Value() any { return c.value }

// Meta returns a copy of the metadata.
func (c ConfigValue) Meta() map[string]any {
	m := make(map[string]any, len(c.meta))
	for k, v := range c.meta {
		m[k] = v
	}
	return m
}

// Editable reports the editable flag, true when unset.
func (c ConfigValue) Editable() bool {
	v, ok := c.meta["editable"]
	if !ok || v == nil {
		return true
	}
	b, ok := toBool(v)
	return !ok || b
}

// AddonID returns the owning addon, if any.
func (c ConfigValue) AddonID() (int64, bool) {
	v, ok := c.meta["addon_id"]
	if !ok || v == nil {
		return 0, false
	}
	return toInt64(v)
}

// SetupEntry turns a named setting into a setup_table row keyed by key.
func SetupEntry(key string, v ConfigValue) Entry {
	data := v.Meta()
	data["value"] = v.Value()
	return Entry{Table: SetupTable, Key: "key", Value: key, Data: data}
}

func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch b {
		case "1", "true", "TRUE", "True":
			return true, true
		case "0", "false", "FALSE", "False":
			return false, true
		}
	}
	if n, ok := toInt64(v); ok {
		return n != 0, true
	}
	return false, false
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint64:
		return int64(n), true
	case float64:
		return int64(n), true
	case []byte:
		return toInt64(string(n))
	case string:
		if out, err := strconv.ParseInt(n, 10, 64); err == nil {
			return out, true
		}
	}
	return 0, false
}
