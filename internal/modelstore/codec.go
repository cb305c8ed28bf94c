package modelstore

import (
	"fmt"
	"math"

	"google.golang.org/protobuf/encoding/protowire"
)

// Matrix blobs are protobuf wire messages:
//
//	1: rows (varint)
//	2: cols (varint)
//	3: values (packed fixed64, row-major)
const (
	fieldRows   protowire.Number = 1
	fieldCols   protowire.Number = 2
	fieldValues protowire.Number = 3
)

// #region encode
func encodeMatrix(rows, cols int, values []float64) []byte {
	var packed []byte
	for _, v := range values {
		packed = protowire.AppendFixed64(packed, math.Float64bits(v))
	}

	var b []byte
	b = protowire.AppendTag(b, fieldRows, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(rows))
	b = protowire.AppendTag(b, fieldCols, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(cols))
	b = protowire.AppendTag(b, fieldValues, protowire.BytesType)
	b = protowire.AppendBytes(b, packed)
	return b
}

func encodeVector(values []float64) []byte {
	return encodeMatrix(1, len(values), values)
}
// #endregion encode

// #region decode
func decodeMatrix(b []byte) (rows, cols int, values []float64, err error) {
	var sawValues bool
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return 0, 0, nil, fmt.Errorf("decode tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldRows && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, 0, nil, fmt.Errorf("decode rows: %w", protowire.ParseError(n))
			}
			rows, b = int(v), b[n:]
		case num == fieldCols && typ == protowire.VarintType:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, 0, nil, fmt.Errorf("decode cols: %w", protowire.ParseError(n))
			}
			cols, b = int(v), b[n:]
		case num == fieldValues && typ == protowire.BytesType:
			packed, n := protowire.ConsumeBytes(b)
			if n < 0 {
				return 0, 0, nil, fmt.Errorf("decode values: %w", protowire.ParseError(n))
			}
			b = b[n:]
			if len(packed)%8 != 0 {
				return 0, 0, nil, fmt.Errorf("decode values: %d bytes is not a multiple of 8", len(packed))
			}
			values = make([]float64, 0, len(packed)/8)
			for len(packed) > 0 {
				bits, n := protowire.ConsumeFixed64(packed)
				if n < 0 {
					return 0, 0, nil, fmt.Errorf("decode value: %w", protowire.ParseError(n))
				}
				values = append(values, math.Float64frombits(bits))
				packed = packed[n:]
			}
			sawValues = true
		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return 0, 0, nil, fmt.Errorf("skip field %d: %w", num, protowire.ParseError(n))
			}
			b = b[n:]
		}
	}

	if !sawValues && rows*cols != 0 {
		return 0, 0, nil, fmt.Errorf("decode matrix: missing values for %dx%d", rows, cols)
	}
	if rows < 0 || cols < 0 || len(values) != rows*cols {
		return 0, 0, nil, fmt.Errorf("decode matrix: %d values for %dx%d", len(values), rows, cols)
	}
	return rows, cols, values, nil
}

func decodeVector(b []byte) ([]float64, error) {
	rows, _, values, err := decodeMatrix(b)
	if err != nil {
		return nil, err
	}
	if rows != 1 && len(values) != 0 {
		return nil, fmt.Errorf("decode vector: got %d rows", rows)
	}
	return values, nil
}
// #endregion decode
