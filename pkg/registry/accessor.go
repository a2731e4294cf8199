package registry

import (
	"encoding/json"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/mesh-intelligence/keepstate/pkg/types"
)

// MapAccessor exposes a map as a registrable instance. A missing key is
// absent and Set(name, nil) deletes the key.
type MapAccessor map[string]any

// Get implements types.Accessor.
func (m MapAccessor) Get(name string) (any, bool) {
	v, ok := m[name]
	return v, ok
}

// Set implements types.Accessor.
func (m MapAccessor) Set(name string, value any) error {
	if value == nil {
		delete(m, name)
		return nil
	}
	m[name] = value
	return nil
}

// StructAccessor exposes the exported fields of a struct. Fields are
// addressed by their json tag name, or by Go field name when untagged.
type StructAccessor struct {
	target reflect.Value
	index  map[string][]int
}

// BindStruct returns an accessor over the struct ptr points to. Writes go
// through to the struct.
func BindStruct(ptr any) (*StructAccessor, error) {
	rv := reflect.ValueOf(ptr)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: BindStruct needs a non-nil struct pointer, got %T", types.ErrInvalidField, ptr)
	}

	elem := rv.Elem()
	index := map[string][]int{}
	for _, sf := range reflect.VisibleFields(elem.Type()) {
		if !sf.IsExported() || sf.Anonymous {
			continue
		}
		name := sf.Name
		if tag, ok := sf.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		// Shallower fields win; VisibleFields lists them first.
		if _, dup := index[name]; dup {
			continue
		}
		index[name] = sf.Index
	}
	return &StructAccessor{target: elem, index: index}, nil
}

// Names returns the addressable field names, sorted.
func (s *StructAccessor) Names() []string {
	names := make([]string, 0, len(s.index))
	for name := range s.index {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Get implements types.Accessor. Unknown names, and fields behind a nil
// embedded pointer, are absent.
func (s *StructAccessor) Get(name string) (any, bool) {
	fv, ok := s.field(name)
	if !ok {
		return nil, false
	}
	return fv.Interface(), true
}

// Set implements types.Accessor. A nil value zeroes the field. Values are
// assigned when assignable, converted between numeric kinds or named types
// of the same kind, and otherwise re-decoded through JSON.
func (s *StructAccessor) Set(name string, value any) error {
	fv, ok := s.field(name)
	if !ok {
		return fmt.Errorf("%w: %q", types.ErrUnknownField, name)
	}
	if value == nil {
		fv.SetZero()
		return nil
	}

	v := reflect.ValueOf(value)
	ft := fv.Type()
	switch {
	case v.Type().AssignableTo(ft):
		fv.Set(v)
		return nil
	case convertible(v.Type(), ft):
		// Only lossless conversions; out-of-range or fractional numbers
		// fall through to the JSON decode, which rejects them.
		if c := v.Convert(ft); c.Convert(v.Type()).Equal(v) {
			fv.Set(c)
			return nil
		}
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("%w: field %q: %v", types.ErrTypeMismatch, name, err)
	}
	dst := reflect.New(ft)
	if err := json.Unmarshal(data, dst.Interface()); err != nil {
		return fmt.Errorf("%w: field %q wants %s, got %T", types.ErrTypeMismatch, name, ft, value)
	}
	fv.Set(dst.Elem())
	return nil
}

func (s *StructAccessor) field(name string) (reflect.Value, bool) {
	idx, ok := s.index[name]
	if !ok {
		return reflect.Value{}, false
	}
	fv, err := s.target.FieldByIndexErr(idx)
	if err != nil {
		return reflect.Value{}, false
	}
	return fv, true
}

func convertible(from, to reflect.Type) bool {
	if !from.ConvertibleTo(to) {
		return false
	}
	if from.Kind() == to.Kind() {
		return true
	}
	return numeric(from.Kind()) && numeric(to.Kind())
}

func numeric(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// Binding reads and writes one field through closures.
type Binding struct {
	Get func() any
	Set func(value any) error
}

// Bindings exposes arbitrary state through explicit per-field closures.
type Bindings map[string]Binding

// Get implements types.Accessor.
func (b Bindings) Get(name string) (any, bool) {
	bd, ok := b[name]
	if !ok || bd.Get == nil {
		return nil, false
	}
	return bd.Get(), true
}

// Set implements types.Accessor.
func (b Bindings) Set(name string, value any) error {
	bd, ok := b[name]
	if !ok || bd.Set == nil {
		return fmt.Errorf("%w: %q", types.ErrUnknownField, name)
	}
	return bd.Set(value)
}
