package reduce

import (
	"errors"
	"fmt"
	"reflect"
)

// Policy names the merge policy declared for a field.
type Policy string

// Merge policies.
const (
	PolicyOverwrite    Policy = "overwrite"
	PolicyAppend       Policy = "append"
	PolicyShallowMerge Policy = "shallow_merge"
)

// Sentinel errors for schema construction.
var (
	// ErrNotStruct indicates the state type is not a struct.
	ErrNotStruct = errors.New("state type must be a struct")

	// ErrUnknownField indicates a declaration names a field the struct does not have.
	ErrUnknownField = errors.New("unknown field")

	// ErrDuplicateField indicates a field was declared more than once.
	ErrDuplicateField = errors.New("field declared more than once")

	// ErrUndeclaredField indicates an exported field has no merge policy.
	ErrUndeclaredField = errors.New("field has no merge policy")

	// ErrAccessorMismatch indicates a declaration's accessor does not point at the named field.
	ErrAccessorMismatch = errors.New("accessor does not address the named field")
)

// ConflictError reports two concurrent updates writing the same overwrite
// field. Overwrite fields have a single owner per merge point; a second
// writer is a structural fault.
type ConflictError struct {
	// Field is the struct field both updates wrote.
	Field string
	// First and Second are the positions of the conflicting updates.
	First, Second int
	// Sources optionally names the producers of the conflicting updates.
	// The executor fills this with node IDs.
	Sources [2]string
}

// Error implements the error interface.
func (e *ConflictError) Error() string {
	if e.Sources[0] != "" {
		return fmt.Sprintf("conflicting writes to %s from %s and %s", e.Field, e.Sources[0], e.Sources[1])
	}
	return fmt.Sprintf("conflicting writes to %s from updates %d and %d", e.Field, e.First, e.Second)
}

// Field declares the merge policy of one state field.
// Construct fields with Scalar, ScalarFunc, List, or Map.
type Field[S any] interface {
	// Name is the Go name of the struct field.
	Name() string
	// Policy is the declared merge policy.
	Policy() Policy

	apply(dst *S, updates []S) error
	target(s *S) any
}

// Scalar declares an overwrite field. A zero value counts as absent.
func Scalar[S any, T comparable](name string, get func(*S) *T) Field[S] {
	return &scalarField[S, T]{
		name: name,
		get:  get,
		present: func(v T) bool {
			var zero T
			return v != zero
		},
	}
}

// ScalarFunc declares an overwrite field whose values are not comparable.
// present reports whether an update carries a value for the field.
func ScalarFunc[S any, T any](name string, get func(*S) *T, present func(T) bool) Field[S] {
	return &scalarField[S, T]{name: name, get: get, present: present}
}

// List declares an append field.
func List[S any, T any](name string, get func(*S) *[]T) Field[S] {
	return &listField[S, T]{name: name, get: get}
}

// Map declares a shallow-merge field.
func Map[S any, K comparable, V any](name string, get func(*S) *map[K]V) Field[S] {
	return &mapField[S, K, V]{name: name, get: get}
}

type scalarField[S any, T any] struct {
	name    string
	get     func(*S) *T
	present func(T) bool
}

func (f *scalarField[S, T]) Name() string   { return f.name }
func (f *scalarField[S, T]) Policy() Policy { return PolicyOverwrite }
func (f *scalarField[S, T]) target(s *S) any { return f.get(s) }

func (f *scalarField[S, T]) apply(dst *S, updates []S) error {
	winner := -1
	for i := range updates {
		if !f.present(*f.get(&updates[i])) {
			continue
		}
		if winner >= 0 {
			return &ConflictError{Field: f.name, First: winner, Second: i}
		}
		winner = i
	}
	if winner >= 0 {
		*f.get(dst) = *f.get(&updates[winner])
	}
	return nil
}

type listField[S any, T any] struct {
	name string
	get  func(*S) *[]T
}

func (f *listField[S, T]) Name() string   { return f.name }
func (f *listField[S, T]) Policy() Policy { return PolicyAppend }
func (f *listField[S, T]) target(s *S) any { return f.get(s) }

func (f *listField[S, T]) apply(dst *S, updates []S) error {
	acc := *f.get(dst)
	for i := range updates {
		acc = Append(acc, *f.get(&updates[i]))
	}
	*f.get(dst) = acc
	return nil
}

type mapField[S any, K comparable, V any] struct {
	name string
	get  func(*S) *map[K]V
}

func (f *mapField[S, K, V]) Name() string   { return f.name }
func (f *mapField[S, K, V]) Policy() Policy { return PolicyShallowMerge }
func (f *mapField[S, K, V]) target(s *S) any { return f.get(s) }

// apply unions sibling updates with the earliest update winning a key
// collision, then shallow-merges the union over the current value.
func (f *mapField[S, K, V]) apply(dst *S, updates []S) error {
	var union map[K]V
	for i := len(updates) - 1; i >= 0; i-- {
		union = ShallowMerge(union, *f.get(&updates[i]))
	}
	*f.get(dst) = ShallowMerge(*f.get(dst), union)
	return nil
}

// Schema is the complete set of field declarations for a state type.
// It is immutable once built and safe for concurrent use.
type Schema[S any] struct {
	fields []Field[S]
	byName map[string]Policy
}

// NewSchema validates the declarations against S and returns the schema.
//
// Validation fails when S is not a struct, when a declaration names a
// missing field or is repeated, when an accessor does not address the named
// field, or when an exported field of S has no declaration. All problems are
// reported together.
func NewSchema[S any](fields ...Field[S]) (*Schema[S], error) {
	var sample S
	rv := reflect.ValueOf(&sample).Elem()
	if rv.Kind() != reflect.Struct {
		return nil, fmt.Errorf("%w: %s", ErrNotStruct, rv.Type())
	}
	rt := rv.Type()

	var errs []error
	byName := make(map[string]Policy, len(fields))
	for _, f := range fields {
		name := f.Name()
		if _, dup := byName[name]; dup {
			errs = append(errs, fmt.Errorf("%w: %s", ErrDuplicateField, name))
			continue
		}
		byName[name] = f.Policy()

		sf, ok := rt.FieldByName(name)
		if !ok || !sf.IsExported() {
			errs = append(errs, fmt.Errorf("%w: %s.%s", ErrUnknownField, rt.Name(), name))
			continue
		}
		want := rv.FieldByIndex(sf.Index).Addr().Pointer()
		got := reflect.ValueOf(f.target(&sample)).Pointer()
		if want != got {
			errs = append(errs, fmt.Errorf("%w: %s", ErrAccessorMismatch, name))
		}
	}

	for i := 0; i < rt.NumField(); i++ {
		sf := rt.Field(i)
		if !sf.IsExported() {
			continue
		}
		if _, ok := byName[sf.Name]; !ok {
			errs = append(errs, fmt.Errorf("%w: %s.%s", ErrUndeclaredField, rt.Name(), sf.Name))
		}
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return &Schema[S]{fields: fields, byName: byName}, nil
}

// MustSchema is like NewSchema but panics on error.
// Use it for package-level schemas whose declarations are static.
func MustSchema[S any](fields ...Field[S]) *Schema[S] {
	s, err := NewSchema(fields...)
	if err != nil {
		panic(fmt.Sprintf("reduce: %v", err))
	}
	return s
}

// Policy returns the declared policy for a field.
func (s *Schema[S]) Policy(name string) (Policy, bool) {
	p, ok := s.byName[name]
	return p, ok
}

// Reduce folds updates into prev field by field.
// updates are treated as concurrent siblings in the given order; a single
// update is an ordinary sequential merge. On error prev is returned.
func (s *Schema[S]) Reduce(prev S, updates ...S) (S, error) {
	if len(updates) == 0 {
		return prev, nil
	}
	out := prev
	for _, f := range s.fields {
		if err := f.apply(&out, updates); err != nil {
			return prev, err
		}
	}
	return out, nil
}
