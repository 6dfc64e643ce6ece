// Package validation extracts configuration key metadata from struct tags.
// It reads the koanf key, the go-playground validate constraints and the doc
// description of every field, so configuration can be documented from the
// same tags that validate it.
package validation

import (
	"reflect"
	"sort"
	"strings"
)

const trueValue = "true"

// KeyInfo describes one configuration key.
type KeyInfo struct {
	Key         string            // dotted koanf path, e.g. "predict.url"
	Field       string            // Go field name
	Type        string            // Go type of the field
	Required    bool              // field carries a required constraint
	Secret      bool              // field is excluded from JSON output
	Constraints map[string]string // validate constraints, flags map to "true"
	Description string            // doc tag
}

// ParseKeys walks the struct type t and returns one KeyInfo per leaf field
// carrying a koanf tag. Nested structs extend prefix with their own key.
func ParseKeys(t reflect.Type, prefix string) []KeyInfo {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	var keys []KeyInfo
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}

		name, _, _ := strings.Cut(field.Tag.Get("koanf"), ",")
		if name == "" || name == "-" {
			continue
		}
		key := join(prefix, name)

		if field.Type.Kind() == reflect.Struct && field.Type.String() != "time.Time" {
			keys = append(keys, ParseKeys(field.Type, key)...)
			continue
		}

		info := KeyInfo{
			Key:         key,
			Field:       field.Name,
			Type:        field.Type.String(),
			Constraints: make(map[string]string),
			Description: field.Tag.Get("doc"),
		}
		if validate := field.Tag.Get("validate"); validate != "" {
			parseValidateTag(validate, info.Constraints)
		}
		_, info.Required = info.Constraints["required"]
		info.Secret = field.Tag.Get("json") == "-"

		keys = append(keys, info)
	}
	return keys
}

func join(prefix, name string) string {
	if prefix == "" {
		return name
	}
	return prefix + "." + name
}

// parseValidateTag splits "required,gt=0" into {"required": "true", "gt": "0"}.
func parseValidateTag(validate string, constraints map[string]string) {
	for _, part := range strings.Split(validate, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		key, value, found := strings.Cut(part, "=")
		if !found {
			constraints[part] = trueValue
			continue
		}
		constraints[strings.TrimSpace(key)] = strings.Trim(strings.TrimSpace(value), `"`)
	}
}

// GetEnum returns the values of a oneof constraint.
func (k *KeyInfo) GetEnum() ([]string, bool) {
	if enum, ok := k.Constraints["oneof"]; ok {
		values := strings.Fields(enum)
		if len(values) > 0 {
			return values, true
		}
	}
	return nil, false
}

// ConstraintSummary renders the constraints other than required in a stable
// order, e.g. "gt=0 url". Enum values are joined with "|" so the summary
// stays a single word per constraint.
func (k *KeyInfo) ConstraintSummary() string {
	names := make([]string, 0, len(k.Constraints))
	for name := range k.Constraints {
		if name != "required" {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	parts := make([]string, 0, len(names))
	for _, name := range names {
		if name == "oneof" {
			if values, ok := k.GetEnum(); ok {
				parts = append(parts, name+"="+strings.Join(values, "|"))
				continue
			}
		}
		if v := k.Constraints[name]; v != trueValue {
			parts = append(parts, name+"="+v)
		} else {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, " ")
}
