// Package canon implements the canonical JSON serializer and SHA-256
// digester that every content-addressed identity in the engine (run_hash,
// data_hash, manifest_hash, feature cache keys) is built from.
//
// Canonicalization rules (spec §4.1):
//   - object keys sorted lexicographically at every depth
//   - no insignificant whitespace
//   - array order preserved
//   - floats rounded to 12 decimal places before encoding, never collapsed
//     to an integer representation
//   - non-finite floats and non-JSON-representable values are rejected
package canon

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// FloatPrecision is the number of decimal places floats are rounded to
// before canonical encoding and hashing (spec §9 numeric determinism).
const FloatPrecision = 12

// InvalidValueError reports a value that cannot be canonicalized.
type InvalidValueError struct {
	Path string
	Kind string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("canon: invalid value at %q: %s", e.Path, e.Kind)
}

// kv is an ordered key/value pair used to build deterministic JSON output
// without depending on encoding/json's map key ordering guarantees.
type kv struct {
	K string
	V any
}

var jsonMarshalerType = reflect.TypeOf((*json.Marshaler)(nil)).Elem()
var jsonNumberType = reflect.TypeOf(json.Number(""))

// Canonicalize converts value (anything JSON-marshalable: structs, maps,
// slices, scalars) into canonical JSON bytes: sorted keys, rounded floats,
// stable array order, no whitespace.
//
// value is walked directly via reflection rather than round-tripped through
// encoding/json first: a round trip would render an integer-valued float64
// field (e.g. 2.0) as the JSON text "2", indistinguishable from a true
// integer, before canonicalization ever saw it (spec §4.1).
func Canonicalize(value any) ([]byte, error) {
	canonical, err := canonicalizeValue(reflect.ValueOf(value), "$")
	if err != nil {
		return nil, err
	}

	out, err := json.Marshal(canonical)
	if err != nil {
		return nil, &InvalidValueError{Kind: err.Error()}
	}
	return out, nil
}

// Digest returns the SHA-256 digest of value's canonical encoding, as a
// lowercase hex string.
func Digest(value any) (string, error) {
	b, err := Canonicalize(value)
	if err != nil {
		return "", err
	}
	return DigestBytes(b), nil
}

// MustDigest is Digest but panics on error; only safe for values already
// known to be canonicalizable (e.g. internally constructed structs).
func MustDigest(value any) string {
	d, err := Digest(value)
	if err != nil {
		panic(err)
	}
	return d
}

// DigestBytes returns the SHA-256 hex digest of raw canonical bytes.
func DigestBytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// canonicalizeValue walks v (a reflect.Value over the original Go value, not
// a value already decoded from JSON) and produces the canonical
// representation: int64/uint64 for integer kinds, canonicalFloat for float
// kinds, *orderedMap for structs/maps, []any for slices/arrays.
func canonicalizeValue(v reflect.Value, path string) (any, error) {
	if !v.IsValid() {
		return nil, nil
	}

	// Types with their own JSON encoding (time.Time and similar) are
	// rendered through it, then re-walked: their output can't itself hide
	// an int/float ambiguity (it's almost always a quoted string), so it's
	// safe to hand to the ordinary json.Number decode path.
	if v.Type().Implements(jsonMarshalerType) {
		return canonicalizeMarshaled(v.Interface().(json.Marshaler), path)
	}
	if v.CanAddr() && v.Addr().Type().Implements(jsonMarshalerType) {
		return canonicalizeMarshaled(v.Addr().Interface().(json.Marshaler), path)
	}
	// json.Number is itself a string type, but it carries a JSON numeric
	// literal (int or float) and must be resolved the same way a decoded
	// number would be, not emitted as a quoted string.
	if v.Type() == jsonNumberType {
		return canonicalizeDecoded(json.Number(v.String()), path)
	}

	switch v.Kind() {
	case reflect.Invalid:
		return nil, nil
	case reflect.Ptr:
		if v.IsNil() {
			return nil, nil
		}
		return canonicalizeValue(v.Elem(), path)
	case reflect.Interface:
		if v.IsNil() {
			return nil, nil
		}
		return canonicalizeValue(v.Elem(), path)
	case reflect.Bool:
		return v.Bool(), nil
	case reflect.String:
		return v.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int(), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint(), nil
	case reflect.Float32, reflect.Float64:
		f := v.Float()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, &InvalidValueError{Path: path, Kind: "non-finite float"}
		}
		return canonicalFloat(RoundFloat(f)), nil
	case reflect.Slice:
		if v.IsNil() {
			return nil, nil
		}
		return canonicalizeSequence(v, path)
	case reflect.Array:
		return canonicalizeSequence(v, path)
	case reflect.Map:
		return canonicalizeMap(v, path)
	case reflect.Struct:
		return canonicalizeStruct(v, path)
	default:
		return nil, &InvalidValueError{Path: path, Kind: fmt.Sprintf("unsupported type %s", v.Type())}
	}
}

// canonicalizeMarshaled re-walks the JSON a json.Marshaler emitted, using
// json.Number decoding so any embedded numeric literal still gets
// int/float-aware treatment.
func canonicalizeMarshaled(m json.Marshaler, path string) (any, error) {
	raw, err := m.MarshalJSON()
	if err != nil {
		return nil, &InvalidValueError{Path: path, Kind: err.Error()}
	}

	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, &InvalidValueError{Path: path, Kind: err.Error()}
	}
	return canonicalizeDecoded(generic, path)
}

// canonicalizeDecoded handles the generic any produced by decoding a
// json.Marshaler's own output (see canonicalizeMarshaled); it never sees
// Go-native structs, only JSON primitives, so there is no float/int
// ambiguity left to resolve beyond json.Number itself.
func canonicalizeDecoded(v any, path string) (any, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case bool:
		return t, nil
	case string:
		return t, nil
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		f, err := t.Float64()
		if err != nil {
			return nil, &InvalidValueError{Path: path, Kind: "not a number"}
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, &InvalidValueError{Path: path, Kind: "non-finite float"}
		}
		return canonicalFloat(RoundFloat(f)), nil
	case []any:
		out := make([]any, len(t))
		for i, elem := range t {
			c, err := canonicalizeDecoded(elem, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = c
		}
		return out, nil
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		om := &orderedMap{pairs: make([]kv, 0, len(keys))}
		for _, k := range keys {
			c, err := canonicalizeDecoded(t[k], path+"."+k)
			if err != nil {
				return nil, err
			}
			om.pairs = append(om.pairs, kv{K: k, V: c})
		}
		return om, nil
	default:
		return nil, &InvalidValueError{Path: path, Kind: fmt.Sprintf("unsupported type %T", t)}
	}
}

func canonicalizeSequence(v reflect.Value, path string) (any, error) {
	out := make([]any, v.Len())
	for i := 0; i < v.Len(); i++ {
		c, err := canonicalizeValue(v.Index(i), fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		out[i] = c
	}
	return out, nil
}

func canonicalizeMap(v reflect.Value, path string) (*orderedMap, error) {
	keys := v.MapKeys()
	strKeys := make([]string, len(keys))
	byKey := make(map[string]reflect.Value, len(keys))
	for i, k := range keys {
		s := fmt.Sprintf("%v", k.Interface())
		strKeys[i] = s
		byKey[s] = v.MapIndex(k)
	}
	sort.Strings(strKeys)

	om := &orderedMap{pairs: make([]kv, 0, len(strKeys))}
	for _, k := range strKeys {
		c, err := canonicalizeValue(byKey[k], path+"."+k)
		if err != nil {
			return nil, err
		}
		om.pairs = append(om.pairs, kv{K: k, V: c})
	}
	return om, nil
}

// canonicalizeStruct walks v's exported fields honoring `json:"name,omitempty"`
// / `json:"-"` tags and flattening untagged anonymous fields, the same rules
// encoding/json itself applies.
func canonicalizeStruct(v reflect.Value, path string) (*orderedMap, error) {
	type field struct {
		name      string
		omitempty bool
		val       reflect.Value
	}
	var fields []field

	var walk func(sv reflect.Value) error
	walk = func(sv reflect.Value) error {
		t := sv.Type()
		for i := 0; i < t.NumField(); i++ {
			sf := t.Field(i)
			if sf.PkgPath != "" && !sf.Anonymous {
				continue // unexported
			}
			tag := sf.Tag.Get("json")
			if tag == "-" {
				continue
			}
			name, opts, _ := strings.Cut(tag, ",")
			omitempty := false
			for _, opt := range strings.Split(opts, ",") {
				if opt == "omitempty" {
					omitempty = true
				}
			}

			fv := sv.Field(i)
			if sf.Anonymous && name == "" && fv.Kind() == reflect.Struct {
				if err := walk(fv); err != nil {
					return err
				}
				continue
			}
			if name == "" {
				name = sf.Name
			}
			fields = append(fields, field{name: name, omitempty: omitempty, val: fv})
		}
		return nil
	}
	if err := walk(v); err != nil {
		return nil, err
	}

	byName := make(map[string]field, len(fields))
	names := make([]string, 0, len(fields))
	for _, f := range fields {
		if f.omitempty && isEmptyValue(f.val) {
			continue
		}
		if _, exists := byName[f.name]; !exists {
			names = append(names, f.name)
		}
		byName[f.name] = f
	}
	sort.Strings(names)

	om := &orderedMap{pairs: make([]kv, 0, len(names))}
	for _, name := range names {
		c, err := canonicalizeValue(byName[name].val, path+"."+name)
		if err != nil {
			return nil, err
		}
		om.pairs = append(om.pairs, kv{K: name, V: c})
	}
	return om, nil
}

func isEmptyValue(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Array, reflect.Map, reflect.Slice, reflect.String:
		return v.Len() == 0
	case reflect.Bool:
		return !v.Bool()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return v.Int() == 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return v.Uint() == 0
	case reflect.Float32, reflect.Float64:
		return v.Float() == 0
	case reflect.Interface, reflect.Ptr:
		return v.IsNil()
	default:
		return false
	}
}

// RoundFloat rounds f to FloatPrecision decimal places using round-half-away-
// from-zero, matching the teacher's/example corpus's deterministic rounding
// convention for hashed numerics.
func RoundFloat(f float64) float64 {
	scale := math.Pow(10, FloatPrecision)
	if f >= 0 {
		return math.Floor(f*scale+0.5) / scale
	}
	return math.Ceil(f*scale-0.5) / scale
}

// canonicalFloat marshals with a forced decimal point so an integer-valued
// float (e.g. 2.0) never collapses to the same bytes as a true integer
// (spec §4.1: "stable representation of integer-valued floats as integers
// forbidden"). encoding/json's own float64 encoder drops the decimal point
// for whole numbers, so floats are routed through this type instead of the
// stdlib encoder.
type canonicalFloat float64

func (f canonicalFloat) MarshalJSON() ([]byte, error) {
	s := strconv.FormatFloat(float64(f), 'f', -1, 64)
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return []byte(s), nil
}

// orderedMap marshals as a JSON object preserving insertion (already-sorted)
// key order, since Go's map type cannot guarantee that on its own.
type orderedMap struct {
	pairs []kv
}

func (o *orderedMap) MarshalJSON() ([]byte, error) {
	buf := make([]byte, 0, 64)
	buf = append(buf, '{')
	for i, p := range o.pairs {
		if i > 0 {
			buf = append(buf, ',')
		}
		key, err := json.Marshal(p.K)
		if err != nil {
			return nil, err
		}
		buf = append(buf, key...)
		buf = append(buf, ':')
		val, err := json.Marshal(p.V)
		if err != nil {
			return nil, err
		}
		buf = append(buf, val...)
	}
	buf = append(buf, '}')
	return buf, nil
}
