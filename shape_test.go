// Strict-mode shape capture and comparison tests.
package zds

import (
	"errors"
	"testing"
)

func TestKindOfClassifiesJSONPrimitives(t *testing.T) {
	cases := []struct {
		v    any
		want string
	}{
		{nil, "null"},
		{true, "bool"},
		{float64(1), "number"},
		{"s", "string"},
		{[]any{1}, "array"},
		{map[string]any{"a": 1}, "object"},
	}
	for _, c := range cases {
		if got := kindOf(c.v); got != c.want {
			t.Errorf("kindOf(%v) = %q, want %q", c.v, got, c.want)
		}
	}
}

func TestShapeOfIsOrderIndependent(t *testing.T) {
	a := shapeOf(map[string]any{"name": "x", "age": float64(1)})
	b := shapeOf(map[string]any{"age": float64(2), "name": "y"})

	if shapeDigest(a) != shapeDigest(b) {
		t.Error("expected shape digest to depend only on field:kind pairs, not values or insertion order")
	}
}

func TestCheckShapeCapturesOnFirstCall(t *testing.T) {
	digest, err := checkShape("", map[string]any{"name": "x"})
	if err != nil {
		t.Fatalf("checkShape: %v", err)
	}
	if digest == "" {
		t.Error("expected a non-empty digest to be captured")
	}
}

func TestCheckShapeRejectsMismatch(t *testing.T) {
	digest, _ := checkShape("", map[string]any{"name": "x"})
	_, err := checkShape(digest, map[string]any{"name": "x", "extra": float64(1)})
	if !errors.Is(err, ErrSchemaMismatch) {
		t.Errorf("err = %v, want ErrSchemaMismatch", err)
	}
}

func TestCheckShapeAcceptsMatchingShape(t *testing.T) {
	digest, _ := checkShape("", map[string]any{"name": "x", "age": float64(1)})
	got, err := checkShape(digest, map[string]any{"name": "y", "age": float64(2)})
	if err != nil {
		t.Fatalf("checkShape: %v", err)
	}
	if got != digest {
		t.Error("expected digest to remain stable across shape-compatible puts")
	}
}
