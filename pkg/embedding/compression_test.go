package embedding

import "testing"

func TestEncodeDecodeVectorRoundTrip(t *testing.T) {
	vec := []float32{0.1, -0.2, 0.3, 1.0, -1.0}
	encoded, err := encodeVector(vec)
	if err != nil {
		t.Fatalf("encodeVector: %v", err)
	}

	decoded, err := decodeVector(encoded, len(vec))
	if err != nil {
		t.Fatalf("decodeVector: %v", err)
	}
	if len(decoded) != len(vec) {
		t.Fatalf("length mismatch: got %d want %d", len(decoded), len(vec))
	}
	for i := range vec {
		if decoded[i] != vec[i] {
			t.Errorf("element %d: got %v want %v", i, decoded[i], vec[i])
		}
	}
}

func TestDecodeVectorDimensionMismatchIsError(t *testing.T) {
	vec := []float32{1, 2, 3}
	encoded, err := encodeVector(vec)
	if err != nil {
		t.Fatalf("encodeVector: %v", err)
	}
	if _, err := decodeVector(encoded, 4); err == nil {
		t.Fatal("expected dimension mismatch error, got nil")
	}
}

func TestEncodeVectorEmpty(t *testing.T) {
	encoded, err := encodeVector(nil)
	if err != nil {
		t.Fatalf("encodeVector(nil): %v", err)
	}
	decoded, err := decodeVector(encoded, 0)
	if err != nil {
		t.Fatalf("decodeVector: %v", err)
	}
	if len(decoded) != 0 {
		t.Fatalf("expected empty vector, got %v", decoded)
	}
}
