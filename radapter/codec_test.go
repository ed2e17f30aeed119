package radapter

import "testing"

func TestScalarRoundTrip(t *testing.T) {
	t.Run("float32", func(t *testing.T) {
		v := float32(3.14)
		got, ok := DecodeScalar[float32](EncodeScalar(v))
		if !ok || got != v {
			t.Errorf("got (%v,%v), want (%v,true)", got, ok, v)
		}
	})
	t.Run("int64", func(t *testing.T) {
		v := int64(-12345)
		got, ok := DecodeScalar[int64](EncodeScalar(v))
		if !ok || got != v {
			t.Errorf("got (%v,%v), want (%v,true)", got, ok, v)
		}
	})
	t.Run("uint8", func(t *testing.T) {
		v := uint8(200)
		got, ok := DecodeScalar[uint8](EncodeScalar(v))
		if !ok || got != v {
			t.Errorf("got (%v,%v), want (%v,true)", got, ok, v)
		}
	})
}

func TestScalarDecodeSizeMismatch(t *testing.T) {
	_, ok := DecodeScalar[int64]([]byte{1, 2, 3})
	if ok {
		t.Error("expected decode failure on size mismatch")
	}
}

func TestVectorRoundTrip(t *testing.T) {
	in := []float64{1, 2, 3, 4.5, -6}
	out := DecodeVector[float64](EncodeVector(in))
	if len(out) != len(in) {
		t.Fatalf("len(out) = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], in[i])
		}
	}
}

func TestVectorEmpty(t *testing.T) {
	if out := DecodeVector[float32](nil); out != nil {
		t.Errorf("DecodeVector(nil) = %v, want nil", out)
	}
	if out := EncodeVector[float32](nil); out != nil {
		t.Errorf("EncodeVector(nil) = %v, want nil", out)
	}
}

func TestVectorMisalignedBuffer(t *testing.T) {
	out := DecodeVector[int32]([]byte{1, 2, 3})
	if out != nil {
		t.Errorf("misaligned buffer should decode to nil, got %v", out)
	}
}

func TestAttrsFromValuesDropsDefaultField(t *testing.T) {
	in := map[string]interface{}{
		DefaultField: "raw-bytes-ignored",
		"unit":       "celsius",
		"count":      42,
	}
	out := AttrsFromValues(in)
	if _, present := out[DefaultField]; present {
		t.Error("AttrsFromValues should drop the default field")
	}
	if out["unit"] != "celsius" {
		t.Errorf("unit = %q, want celsius", out["unit"])
	}
	if out["count"] != "42" {
		t.Errorf("count = %q, want 42", out["count"])
	}
}
