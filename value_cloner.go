package expiringcache

import "reflect"

// ValueCloner is an interface for cloning values.
// A cache that stores by value clones values when they are stored and when they are returned.
// The CloneValue method should return a deep copy of the input value.
type ValueCloner[V ValueConstraint] interface {
	CloneValue(V) V
}

// ValueClonerFunc is a function type that implements the ValueCloner interface.
type ValueClonerFunc[V ValueConstraint] func(v V) V

// CloneValue calls the function.
func (f ValueClonerFunc[V]) CloneValue(v V) V {
	return f(v)
}

// NopValueCloner is a value cloner that does not clone values.
// It is used when values do not need to be cloned. (e.g. when the values are primitive types or immutable usage)
type NopValueCloner[V ValueConstraint] struct{}

// CloneValue returns the input value.
func (NopValueCloner[V]) CloneValue(v V) V {
	return v
}

// DefaultValueCloner returns a default cloner for the given value type.
// It uses the Clone or DeepCopy method of the value type if there is one.
// Otherwise primitive types, and slices and maps of primitive types, are supported.
// It panics for any other type.
func DefaultValueCloner[V ValueConstraint]() ValueCloner[V] {
	var zero V
	return defaultValueClonerAny[V](zero)
}

func defaultValueClonerAny[V ValueConstraint](v any) ValueCloner[V] {
	type cloner interface {
		Clone() V
	}
	type deepCopier interface {
		DeepCopy() V
	}

	switch v.(type) {
	case cloner:
		return ValueClonerFunc[V](func(v V) V {
			var a any = v
			return a.(cloner).Clone()
		})

	case deepCopier:
		return ValueClonerFunc[V](func(v V) V {
			var a any = v
			return a.(deepCopier).DeepCopy()
		})

	default:
		return defaultValueClonerReflect[V](reflect.TypeFor[V]())
	}
}

func defaultValueClonerReflect[V ValueConstraint](typ reflect.Type) ValueCloner[V] {
	switch {
	case isPrimitiveKind(typ.Kind()):
		return NopValueCloner[V]{}

	case typ.Kind() == reflect.Slice && isPrimitiveKind(typ.Elem().Kind()):
		return ValueClonerFunc[V](func(v V) V {
			src := reflect.ValueOf(v)
			if src.IsNil() {
				return v
			}
			dst := reflect.MakeSlice(typ, src.Len(), src.Len())
			reflect.Copy(dst, src)
			return dst.Interface().(V)
		})

	case typ.Kind() == reflect.Map && isPrimitiveKind(typ.Key().Kind()) && isPrimitiveKind(typ.Elem().Kind()):
		return ValueClonerFunc[V](func(v V) V {
			src := reflect.ValueOf(v)
			if src.IsNil() {
				return v
			}
			dst := reflect.MakeMapWithSize(typ, src.Len())
			iter := src.MapRange()
			for iter.Next() {
				dst.SetMapIndex(iter.Key(), iter.Value())
			}
			return dst.Interface().(V)
		})

	default:
		panic("value type does not have Clone or DeepCopy method")
	}
}

func isPrimitiveKind(kind reflect.Kind) bool {
	switch kind {
	case reflect.Bool, reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Uintptr, reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128,
		reflect.String, reflect.UnsafePointer:
		return true
	default:
		return false
	}
}

// defaultValueEqual compares values structurally.
func defaultValueEqual[V ValueConstraint](a, b V) bool {
	return reflect.DeepEqual(a, b)
}

// converter turns caller values into stored values and back.
// A nil cloner stores by reference.
type converter[V ValueConstraint] struct {
	cloner ValueCloner[V]
}

func (c converter[V]) toInternal(v V) V {
	if c.cloner == nil {
		return v
	}
	return c.cloner.CloneValue(v)
}

func (c converter[V]) fromInternal(v V) V {
	if c.cloner == nil {
		return v
	}
	return c.cloner.CloneValue(v)
}

func (c converter[V]) byValue() bool {
	return c.cloner != nil
}
