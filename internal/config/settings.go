// Package config provides configuration loading and parsing for tcpcrank.
package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var keyFolder = strings.NewReplacer("_", "", "-", "")

// foldKey maps read_buffer, read-buffer and readBuffer to the same key.
func foldKey(key string) string {
	return keyFolder.Replace(strings.ToLower(strings.TrimSpace(key)))
}

// section is one table of a config file. Binders copy a setting into its
// Config field only when the key is present, so defaults survive.
type section struct {
	path   string
	values map[string]interface{}
}

func newSection(path string, value interface{}) (section, error) {
	s := section{path: path, values: map[string]interface{}{}}
	switch v := value.(type) {
	case nil:
	case map[string]interface{}:
		for key, val := range v {
			s.values[foldKey(key)] = val
		}
	case map[interface{}]interface{}:
		for key, val := range v {
			s.values[foldKey(fmt.Sprint(key))] = val
		}
	default:
		return section{}, fmt.Errorf("%s: expected a table, got %T", path, value)
	}
	return s, nil
}

func (s section) has(key string) bool {
	_, ok := s.values[foldKey(key)]
	return ok
}

func (s section) wrap(key string, err error) error {
	if err == nil {
		return nil
	}
	if s.path != "" {
		key = s.path + "." + key
	}
	return fmt.Errorf("%s: %w", key, err)
}

func (s section) text(key string, dst *string) error {
	raw, ok := s.values[foldKey(key)]
	if !ok {
		return nil
	}
	v, err := textValue(raw)
	if err == nil {
		*dst = v
	}
	return s.wrap(key, err)
}

func (s section) integer(key string, dst *int) error {
	raw, ok := s.values[foldKey(key)]
	if !ok {
		return nil
	}
	v, err := intValue(raw)
	if err == nil {
		*dst = v
	}
	return s.wrap(key, err)
}

func (s section) fraction(key string, dst *float64) error {
	raw, ok := s.values[foldKey(key)]
	if !ok {
		return nil
	}
	v, err := floatValue(raw)
	if err == nil {
		*dst = v
	}
	return s.wrap(key, err)
}

func (s section) flag(key string, dst *bool) error {
	raw, ok := s.values[foldKey(key)]
	if !ok {
		return nil
	}
	v, err := boolValue(raw)
	if err == nil {
		*dst = v
	}
	return s.wrap(key, err)
}

func (s section) duration(key string, dst *time.Duration) error {
	raw, ok := s.values[foldKey(key)]
	if !ok {
		return nil
	}
	v, err := durationValue(raw)
	if err == nil {
		*dst = v
	}
	return s.wrap(key, err)
}

// timeouts fans a single timeout setting out to every per-operation timeout.
func (s section) timeouts(key string, dst ...*time.Duration) error {
	var d time.Duration
	if !s.has(key) {
		return nil
	}
	if err := s.duration(key, &d); err != nil {
		return err
	}
	for _, p := range dst {
		*p = d
	}
	return nil
}

func (s section) list(key string, dst *[]string) error {
	raw, ok := s.values[foldKey(key)]
	if !ok {
		return nil
	}
	var out []string
	var err error
	switch v := raw.(type) {
	case nil:
	case string:
		out = []string{v}
	case []string:
		out = append(out, v...)
	case []interface{}:
		out = make([]string, 0, len(v))
		for i, item := range v {
			str, itemErr := textValue(item)
			if itemErr != nil {
				err = fmt.Errorf("index %d: %w", i, itemErr)
				break
			}
			out = append(out, str)
		}
	default:
		err = fmt.Errorf("expected a list, got %T", raw)
	}
	if err == nil {
		*dst = out
	}
	return s.wrap(key, err)
}

// merge copies a table of string values into dst, keeping key case.
func (s section) merge(key string, dst map[string]string) error {
	raw, ok := s.values[foldKey(key)]
	if !ok || raw == nil {
		return nil
	}
	add := func(k interface{}, v interface{}) error {
		name := strings.TrimSpace(fmt.Sprint(k))
		if name == "" {
			return errors.New("key cannot be empty")
		}
		str, err := textValue(v)
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		dst[name] = str
		return nil
	}
	var err error
	switch v := raw.(type) {
	case map[string]string:
		for k, val := range v {
			dst[k] = val
		}
	case map[string]interface{}:
		for k, val := range v {
			if err = add(k, val); err != nil {
				break
			}
		}
	case map[interface{}]interface{}:
		for k, val := range v {
			if err = add(k, val); err != nil {
				break
			}
		}
	default:
		err = fmt.Errorf("expected a table, got %T", raw)
	}
	return s.wrap(key, err)
}

// table returns the nested section under key; ok is false when it is absent.
func (s section) table(key string) (section, bool, error) {
	raw, ok := s.values[foldKey(key)]
	if !ok {
		return section{}, false, nil
	}
	path := key
	if s.path != "" {
		path = s.path + "." + key
	}
	sub, err := newSection(path, raw)
	return sub, err == nil, err
}

func textValue(raw interface{}) (string, error) {
	switch v := raw.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case fmt.Stringer:
		return v.String(), nil
	case map[string]interface{}, map[interface{}]interface{}, []interface{}:
		return "", fmt.Errorf("expected a scalar, got %T", raw)
	default:
		return fmt.Sprint(v), nil
	}
}

func intValue(raw interface{}) (int, error) {
	switch v := raw.(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint32:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float64:
		if v != float64(int(v)) {
			return 0, fmt.Errorf("%v is not a whole number", v)
		}
		return int(v), nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, nil
		}
		return strconv.Atoi(v)
	default:
		return 0, fmt.Errorf("expected a number, got %T", raw)
	}
}

func floatValue(raw interface{}) (float64, error) {
	switch v := raw.(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, nil
		}
		return strconv.ParseFloat(v, 64)
	default:
		n, err := intValue(raw)
		return float64(n), err
	}
}

func boolValue(raw interface{}) (bool, error) {
	switch v := raw.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return false, nil
		}
		return strconv.ParseBool(v)
	default:
		return false, fmt.Errorf("expected true or false, got %T", raw)
	}
}

// durationValue accepts Go duration strings; bare numbers are seconds.
func durationValue(raw interface{}) (time.Duration, error) {
	switch v := raw.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, nil
		}
		return time.ParseDuration(v)
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	default:
		n, err := intValue(raw)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * time.Second, nil
	}
}
