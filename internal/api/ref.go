package api

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Ref is a field the API sends either as a bare id or as the embedded record.
type Ref[T any] struct {
	ID       int64
	Embedded *T
}

// Reference builds a Ref holding only an id.
func Reference[T any](id int64) Ref[T] {
	return Ref[T]{ID: id}
}

func (r Ref[T]) IsZero() bool {
	return r.ID == 0 && r.Embedded == nil
}

func (r *Ref[T]) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	*r = Ref[T]{}

	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil
	}

	if data[0] == '{' {
		var head struct {
			ID int64 `json:"id"`
		}
		if err := json.Unmarshal(data, &head); err != nil {
			return fmt.Errorf("decode reference id: %w", err)
		}
		var v T
		if err := json.Unmarshal(data, &v); err != nil {
			return fmt.Errorf("decode embedded reference: %w", err)
		}
		r.ID = head.ID
		r.Embedded = &v
		return nil
	}

	var id int64
	if err := json.Unmarshal(data, &id); err != nil {
		return fmt.Errorf("reference must be an id or an object: %w", err)
	}
	r.ID = id
	return nil
}

// MarshalJSON always writes the id form, which is what the API accepts on writes.
func (r Ref[T]) MarshalJSON() ([]byte, error) {
	if r.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(r.ID)
}

// Resolve returns the embedded record, or looks the id up.
func (r Ref[T]) Resolve(lookup func(id int64) (T, bool)) (T, bool) {
	if r.Embedded != nil {
		return *r.Embedded, true
	}
	if r.ID == 0 || lookup == nil {
		var zero T
		return zero, false
	}
	return lookup(r.ID)
}
