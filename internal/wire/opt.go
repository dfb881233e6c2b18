package wire

import (
	"bytes"
	"encoding/json"
)

// Opt is a three-way message field: unset, null, or a value.
//
// The scoring delta protocol and the thumbnail protocol both need to
// distinguish "this field was cleared" from "this field is not part of
// this delta". A cleared field travels as an explicit JSON null; an
// unaffected field is omitted from the payload entirely (tag the struct
// field with `omitzero`).
type Opt[T any] struct {
	set  bool
	null bool
	val  T
}

// Some returns an Opt carrying a value.
func Some[T any](v T) Opt[T] { return Opt[T]{set: true, val: v} }

// Null returns an Opt carrying an explicit null ("field cleared").
func Null[T any]() Opt[T] { return Opt[T]{set: true, null: true} }

// IsZero reports whether the field is unset, so that `omitzero` drops it
// from the encoded payload.
func (o Opt[T]) IsZero() bool { return !o.set }

// IsNull reports whether the field carries an explicit null.
func (o Opt[T]) IsNull() bool { return o.set && o.null }

// Get returns the value and whether one is present.
func (o Opt[T]) Get() (T, bool) {
	if !o.set || o.null {
		var zero T
		return zero, false
	}
	return o.val, true
}

// Or returns the value, or def when the field is unset or null.
func (o Opt[T]) Or(def T) T {
	if v, ok := o.Get(); ok {
		return v
	}
	return def
}

func (o Opt[T]) MarshalJSON() ([]byte, error) {
	if !o.set || o.null {
		return []byte("null"), nil
	}
	return json.Marshal(o.val)
}

func (o *Opt[T]) UnmarshalJSON(b []byte) error {
	if bytes.Equal(b, []byte("null")) {
		*o = Null[T]()
		return nil
	}
	var v T
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*o = Some(v)
	return nil
}
