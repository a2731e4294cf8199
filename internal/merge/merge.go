// Package merge implements the structural merge used when recovered state is
// applied to a live field: values are deep-copied into the existing target so
// that callers holding a reference to it keep seeing the recovered data.
package merge

import (
	"errors"
	"fmt"
	"reflect"
)

// ErrIncompatible reports that src cannot be copied into dst in place.
var ErrIncompatible = errors.New("merge: incompatible target")

// Into deep-copies src into dst while preserving dst's identity.
//
// dst must be a non-nil map or a non-nil pointer. For a map, dst is emptied
// and every entry of src is cloned into it. For a pointer, the pointee is
// overwritten with a clone of src (src may be a pointer of the same type or a
// value of the pointee type). Any other combination returns ErrIncompatible
// and leaves dst untouched.
func Into(dst, src any) error {
	if !Mergeable(dst) {
		return fmt.Errorf("%w: %T is not a non-nil map or pointer", ErrIncompatible, dst)
	}
	if IsNil(src) {
		return fmt.Errorf("%w: nil source", ErrIncompatible)
	}

	d := reflect.ValueOf(dst)
	s := reflect.ValueOf(src)

	switch d.Kind() {
	case reflect.Map:
		if s.Kind() != reflect.Map ||
			!s.Type().Key().AssignableTo(d.Type().Key()) ||
			!s.Type().Elem().AssignableTo(d.Type().Elem()) {
			return fmt.Errorf("%w: cannot copy %T into %T", ErrIncompatible, src, dst)
		}
		if d.Pointer() == s.Pointer() {
			return nil
		}
		d.Clear()
		iter := s.MapRange()
		for iter.Next() {
			d.SetMapIndex(iter.Key(), cloneValue(iter.Value()))
		}
		return nil
	case reflect.Pointer:
		elem := d.Elem()
		if s.Type() == d.Type() {
			if s.Pointer() == d.Pointer() {
				return nil
			}
			s = s.Elem()
		}
		if !s.Type().AssignableTo(elem.Type()) {
			return fmt.Errorf("%w: cannot copy %T into %T", ErrIncompatible, src, dst)
		}
		elem.Set(cloneValue(s))
		return nil
	default:
		return fmt.Errorf("%w: %T", ErrIncompatible, dst)
	}
}

// Clone returns a deep copy of v.
func Clone(v any) any {
	if v == nil {
		return nil
	}
	c := cloneValue(reflect.ValueOf(v))
	if !c.IsValid() {
		return nil
	}
	return c.Interface()
}

// Mergeable reports whether v can be the target of Into: a non-nil map or a
// non-nil pointer.
func Mergeable(v any) bool {
	if v == nil {
		return false
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Pointer:
		return !rv.IsNil()
	default:
		return false
	}
}

// IsNil reports whether v is nil or a nil map, pointer, slice, interface,
// channel or func.
func IsNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map, reflect.Pointer, reflect.Slice, reflect.Interface, reflect.Chan, reflect.Func:
		return rv.IsNil()
	default:
		return false
	}
}

// Identical reports whether applying b over a would be a no-op: both nil, the
// same map/pointer/channel, the same slice window, or equal comparable
// values.
func Identical(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	va := reflect.ValueOf(a)
	vb := reflect.ValueOf(b)
	if va.Type() != vb.Type() {
		return false
	}

	switch va.Kind() {
	case reflect.Map, reflect.Pointer, reflect.Chan, reflect.UnsafePointer:
		return va.Pointer() == vb.Pointer()
	case reflect.Func:
		return va.IsNil() && vb.IsNil()
	case reflect.Slice:
		if va.IsNil() || vb.IsNil() {
			return va.IsNil() && vb.IsNil()
		}
		return va.Pointer() == vb.Pointer() && va.Len() == vb.Len()
	default:
		if !va.Comparable() {
			return false
		}
		return va.Equal(vb)
	}
}

func cloneValue(v reflect.Value) reflect.Value {
	if !v.IsValid() {
		return v
	}

	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		clone := reflect.New(v.Type().Elem())
		clone.Elem().Set(cloneValue(v.Elem()))
		return clone
	case reflect.Interface:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		elem := cloneValue(v.Elem())
		if !elem.IsValid() {
			return reflect.Zero(v.Type())
		}
		out := reflect.New(v.Type()).Elem()
		out.Set(elem)
		return out
	case reflect.Struct:
		clone := reflect.New(v.Type()).Elem()
		clone.Set(v)
		for i := 0; i < v.NumField(); i++ {
			field := clone.Field(i)
			if !field.CanSet() {
				continue
			}
			field.Set(cloneValue(v.Field(i)))
		}
		return clone
	case reflect.Map:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		clone := reflect.MakeMapWithSize(v.Type(), v.Len())
		iter := v.MapRange()
		for iter.Next() {
			clone.SetMapIndex(iter.Key(), cloneValue(iter.Value()))
		}
		return clone
	case reflect.Slice:
		if v.IsNil() {
			return reflect.Zero(v.Type())
		}
		clone := reflect.MakeSlice(v.Type(), v.Len(), v.Len())
		for i := 0; i < v.Len(); i++ {
			clone.Index(i).Set(cloneValue(v.Index(i)))
		}
		return clone
	case reflect.Array:
		clone := reflect.New(v.Type()).Elem()
		for i := 0; i < v.Len(); i++ {
			clone.Index(i).Set(cloneValue(v.Index(i)))
		}
		return clone
	default:
		out := reflect.New(v.Type()).Elem()
		out.Set(v)
		return out
	}
}
