package modelstore

import (
	"math"
	"testing"

	"google.golang.org/protobuf/encoding/protowire"
)

func TestMatrixCodec(t *testing.T) {
	values := []float64{1.5, -2, math.SmallestNonzeroFloat64, math.MaxFloat64, 0, 3}
	rows, cols, got, err := decodeMatrix(encodeMatrix(2, 3, values))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if rows != 2 || cols != 3 {
		t.Fatalf("expected 2x3, got %dx%d", rows, cols)
	}
	for i := range values {
		if got[i] != values[i] {
			t.Fatalf("value %d: expected %g, got %g", i, values[i], got[i])
		}
	}
}

func TestVectorCodecEmpty(t *testing.T) {
	got, err := decodeVector(encodeVector(nil))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty vector, got %v", got)
	}
}

func TestMatrixCodecRejectsMalformed(t *testing.T) {
	valid := encodeMatrix(2, 2, []float64{1, 2, 3, 4})

	cases := map[string][]byte{
		"truncated": valid[:len(valid)-3],
		"bad tag":   {0xff},
		"short values": func() []byte {
			b := protowire.AppendTag(nil, fieldRows, protowire.VarintType)
			b = protowire.AppendVarint(b, 2)
			b = protowire.AppendTag(b, fieldCols, protowire.VarintType)
			b = protowire.AppendVarint(b, 2)
			b = protowire.AppendTag(b, fieldValues, protowire.BytesType)
			return protowire.AppendBytes(b, make([]byte, 8))
		}(),
		"odd packed length": func() []byte {
			b := protowire.AppendTag(nil, fieldValues, protowire.BytesType)
			return protowire.AppendBytes(b, make([]byte, 5))
		}(),
	}
	for name, b := range cases {
		if _, _, _, err := decodeMatrix(b); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestMatrixCodecSkipsUnknownFields(t *testing.T) {
	b := encodeMatrix(1, 2, []float64{7, 8})
	b = protowire.AppendTag(b, 9, protowire.VarintType)
	b = protowire.AppendVarint(b, 42)

	_, _, got, err := decodeMatrix(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 || got[0] != 7 || got[1] != 8 {
		t.Fatalf("expected [7 8], got %v", got)
	}
}
