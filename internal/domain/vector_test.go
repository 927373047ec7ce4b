package domain

import "testing"

func TestVectorCodec(t *testing.T) {
	v := []float32{-1.5, 0, 3.25}
	got, err := DecodeVector(EncodeVector(v))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != len(v) {
		t.Fatalf("got %v, want %v", got, v)
	}
	for i := range v {
		if got[i] != v[i] {
			t.Fatalf("got %v, want %v", got, v)
		}
	}
	if _, err := DecodeVector([]byte{1}); err == nil {
		t.Error("expected error for truncated data")
	}
}
