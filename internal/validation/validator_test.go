package validation

import (
	"errors"
	"testing"
)

type sample struct {
	ID    string `json:"id" validate:"required"`
	Mode  string `toml:"mode" validate:"omitempty,oneof=a b"`
	Count int    `json:"count,omitempty" validate:"gte=0"`
}

func TestStruct(t *testing.T) {
	t.Run("valid struct passes", func(t *testing.T) {
		if err := Struct(&sample{ID: "x", Mode: "a"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("reports serialized field names", func(t *testing.T) {
		err := Struct(&sample{Mode: "c", Count: -1})
		var errs Errors
		if !errors.As(err, &errs) {
			t.Fatalf("expected Errors, got %T", err)
		}
		fields := map[string]string{}
		for _, fe := range errs {
			fields[fe.Field] = fe.Message
		}
		if fields["id"] != "id is required" {
			t.Errorf("id message = %q", fields["id"])
		}
		if fields["mode"] != "mode must be one of: a b" {
			t.Errorf("mode message = %q", fields["mode"])
		}
		if fields["count"] != "count must be greater than or equal to 0" {
			t.Errorf("count message = %q", fields["count"])
		}
	})
}
