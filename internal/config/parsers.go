// Package config builds the session configuration from defaults, a config
// file, PERFTESTER_* environment variables, and command-line flags.
package config

import (
	"fmt"
	"math"
	"net/http"
	"reflect"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var isoDurationPattern = regexp.MustCompile(`^P(?:(\d+(?:\.\d+)?)D)?(?:T(?:(\d+(?:\.\d+)?)H)?(?:(\d+(?:\.\d+)?)M)?(?:(\d+(?:\.\d+)?)S)?)?$`)

// lookupSetting returns the first of the candidate keys present in settings,
// trying each key as given and lower-cased.
func lookupSetting(settings map[string]interface{}, candidates ...string) (interface{}, bool) {
	for _, key := range candidates {
		for _, k := range []string{key, strings.ToLower(key)} {
			if val, ok := settings[k]; ok {
				return val, true
			}
		}
	}
	return nil, false
}

func asString(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	}
	return fmt.Sprint(value), nil
}

// asInt accepts any numeric kind (floats truncate) or a decimal string. An
// empty string is zero.
func asInt(value interface{}) (int, error) {
	if str, ok := value.(string); ok {
		if str = strings.TrimSpace(str); str == "" {
			return 0, nil
		}
		return strconv.Atoi(str)
	}
	f, err := numeric(value)
	return int(f), err
}

func asFloat64(value interface{}) (float64, error) {
	if str, ok := value.(string); ok {
		if str = strings.TrimSpace(str); str == "" {
			return 0, nil
		}
		return strconv.ParseFloat(str, 64)
	}
	return numeric(value)
}

func numeric(value interface{}) (float64, error) {
	if value == nil {
		return 0, nil
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", value)
	}
}

func asBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		if v = strings.TrimSpace(v); v == "" {
			return false, nil
		}
		return strconv.ParseBool(v)
	}
	return false, fmt.Errorf("expected a boolean, got %T", value)
}

// asDuration parses strings with parseDuration and treats plain numbers as
// seconds.
func asDuration(value interface{}) (time.Duration, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		return parseDuration(v)
	}
	seconds, err := numeric(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration: %w", err)
	}
	return secondsToDuration(seconds), nil
}

// parseDuration accepts Go durations ("1m30s"), bare seconds ("90", "1.5"),
// and ISO-8601 durations ("PT1M", "PT0.5S", "P1DT2H").
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if d, err := time.ParseDuration(s); err == nil {
		return d, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return secondsToDuration(f), nil
	}
	if d, ok := parseISODuration(strings.ToUpper(s)); ok {
		return d, nil
	}
	return 0, fmt.Errorf("invalid duration %q (use e.g. 30s, 90, or PT1M)", s)
}

func parseISODuration(s string) (time.Duration, bool) {
	if s == "P" || s == "PT" || strings.HasSuffix(s, "T") {
		return 0, false
	}
	m := isoDurationPattern.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	units := []time.Duration{24 * time.Hour, time.Hour, time.Minute, time.Second}
	var total float64
	for i, unit := range units {
		if m[i+1] == "" {
			continue
		}
		f, err := strconv.ParseFloat(m[i+1], 64)
		if err != nil {
			return 0, false
		}
		total += f * float64(unit)
	}
	return time.Duration(math.Round(total)), true
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(math.Round(seconds * float64(time.Second)))
}

// parseHeader splits "Key=Value" or "Key: Value" and canonicalizes the key.
func parseHeader(entry string) (string, string, error) {
	sep := strings.IndexAny(entry, "=:")
	if sep == -1 {
		return "", "", fmt.Errorf("header must be in key=value format: %s", entry)
	}
	key := strings.TrimSpace(entry[:sep])
	if key == "" {
		return "", "", fmt.Errorf("header key cannot be empty")
	}
	return http.CanonicalHeaderKey(key), strings.TrimSpace(entry[sep+1:]), nil
}

// asStringMap converts any map decoded from YAML, JSON or TOML into string
// keys and values.
func asStringMap(value interface{}) (map[string]string, error) {
	if value == nil {
		return nil, nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Map {
		return nil, fmt.Errorf("expected a map of headers, got %T", value)
	}
	result := make(map[string]string, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		key, _ := asString(iter.Key().Interface())
		if strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("header key cannot be empty")
		}
		result[key], _ = asString(iter.Value().Interface())
	}
	return result, nil
}

// asStringSlice accepts a list of scalars or a single string.
func asStringSlice(value interface{}) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{v}, nil
	case []string:
		return v, nil
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("expected a list, got %T", value)
	}
	result := make([]string, rv.Len())
	for i := range result {
		result[i], _ = asString(rv.Index(i).Interface())
	}
	return result, nil
}

// toStringKeyMap lower-cases and trims the keys of a nested section.
func toStringKeyMap(value interface{}) (map[string]interface{}, error) {
	rv := reflect.ValueOf(value)
	if value == nil || rv.Kind() != reflect.Map {
		return nil, fmt.Errorf("expected map, got %T", value)
	}
	result := make(map[string]interface{}, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		key, _ := asString(iter.Key().Interface())
		result[strings.ToLower(strings.TrimSpace(key))] = iter.Value().Interface()
	}
	return result, nil
}
