package ml

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// ErrNotObject is returned when a JSON payload is not an object.
var ErrNotObject = errors.New("payload must be a JSON object")

// Input is a caller-submitted mapping of feature name to raw value. It remembers the
// order in which keys were supplied so validation reports the first failing field
// deterministically.
type Input struct {
	names  []string
	values map[string]any
}

// NewInput builds an Input from a map. Go maps carry no order, so keys are taken in
// sorted order.
func NewInput(m map[string]any) Input {
	in := Input{values: make(map[string]any, len(m))}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		in.Set(k, m[k])
	}
	return in
}

// Set stores a value. A repeated name keeps its original position.
func (in *Input) Set(name string, value any) {
	if in.values == nil {
		in.values = make(map[string]any)
	}
	if _, ok := in.values[name]; !ok {
		in.names = append(in.names, name)
	}
	in.values[name] = value
}

// Get returns the raw value for name.
func (in Input) Get(name string) (any, bool) {
	v, ok := in.values[name]
	return v, ok
}

// Len returns the number of distinct keys.
func (in Input) Len() int {
	return len(in.names)
}

// Names returns keys in submission order.
func (in Input) Names() []string {
	out := make([]string, len(in.names))
	copy(out, in.names)
	return out
}

// UnmarshalJSON decodes a JSON object while preserving document key order.
// Numbers are kept as json.Number so no precision is lost before conversion.
func (in *Input) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return ErrNotObject
	}

	*in = Input{values: make(map[string]any)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("unexpected object key %v", tok)
		}
		var value any
		if err := dec.Decode(&value); err != nil {
			return fmt.Errorf("decode value for %q: %w", key, err)
		}
		in.Set(key, value)
	}

	if _, err := dec.Token(); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after JSON object")
	}
	return nil
}

// MarshalJSON encodes the input as an object in submission order.
func (in Input) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, name := range in.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(name)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(in.values[name])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// toFloat converts a raw input value to a finite float64. Booleans, nil, NaN and
// infinities are rejected.
func toFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case nil, bool:
		return 0, false
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int:
		f = float64(x)
	case int8:
		f = float64(x)
	case int16:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint8:
		f = float64(x)
	case uint16:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case json.Number:
		parsed, err := strconv.ParseFloat(string(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		rv := reflect.ValueOf(v)
		switch rv.Kind() {
		case reflect.Float32, reflect.Float64:
			f = rv.Float()
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			f = float64(rv.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			f = float64(rv.Uint())
		default:
			return 0, false
		}
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
