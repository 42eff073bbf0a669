package config

import (
	"reflect"
)

// MergeNonZero returns a copy of base with every non-zero field in overlay
// applied on top. Strings, numbers and durations override when non-zero,
// bools only when true, slices when non-empty, pointers when non-nil. Maps
// are merged with overlay keys winning and nested structs are recursed.
//
// Used to lay command-line flags over the file configuration.
func MergeNonZero[T any](base, overlay T) T {
	result := base
	mergeValue(reflect.ValueOf(&result).Elem(), reflect.ValueOf(&overlay).Elem())
	return result
}

func mergeValue(dst, src reflect.Value) {
	switch dst.Kind() {
	case reflect.Struct:
		mergeStruct(dst, src)
	case reflect.Map:
		mergeMap(dst, src)
	default:
		if !src.IsZero() {
			dst.Set(src)
		}
	}
}

func mergeStruct(dst, src reflect.Value) {
	t := dst.Type()
	for i := 0; i < t.NumField(); i++ {
		df := dst.Field(i)
		sf := src.Field(i)
		if !df.CanSet() {
			continue
		}

		switch df.Kind() {
		case reflect.Bool:
			// An unset flag cannot turn a file setting off.
			if sf.Bool() {
				df.SetBool(true)
			}
		case reflect.Struct:
			mergeStruct(df, sf)
		case reflect.Map:
			mergeMap(df, sf)
		case reflect.Ptr:
			if !sf.IsNil() {
				df.Set(sf)
			}
		case reflect.Slice:
			if sf.Len() > 0 {
				df.Set(sf)
			}
		default:
			if !sf.IsZero() {
				df.Set(sf)
			}
		}
	}
}

func mergeMap(dst, src reflect.Value) {
	if src.IsNil() || src.Len() == 0 {
		return
	}
	newMap := reflect.MakeMap(dst.Type())
	if !dst.IsNil() {
		// Copy so base is never mutated
		for _, k := range dst.MapKeys() {
			newMap.SetMapIndex(k, dst.MapIndex(k))
		}
	}
	for _, k := range src.MapKeys() {
		newMap.SetMapIndex(k, src.MapIndex(k))
	}
	dst.Set(newMap)
}
