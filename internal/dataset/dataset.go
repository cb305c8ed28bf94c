package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/danielpatrickdp/gmm-classifier/internal/xerrors"
)

// NoLabel marks a dataset without a label column.
const NoLabel = -1

// HeaderMode controls how the first row is treated.
type HeaderMode int

const (
	HeaderAuto    HeaderMode = iota // header if any field of the first row is not numeric
	HeaderPresent                   // first row is always a header
	HeaderAbsent                    // first row is always data
)

// #region types
// Options configures CSV parsing.
type Options struct {
	LabelColumn int // column index of the integer label, or NoLabel
	Header      HeaderMode
	Comma       rune // 0 means ','
}

// DefaultOptions reads labels from the first column and detects a header.
func DefaultOptions() Options {
	return Options{LabelColumn: 0, Header: HeaderAuto, Comma: ','}
}

// Dataset holds feature rows and, when a label column was read, their labels.
type Dataset struct {
	Header  []string // feature column names, empty without a header
	Samples [][]float64
	Labels  []int // nil when read with NoLabel
}

// FeatureCount returns the number of feature columns.
func (d *Dataset) FeatureCount() int {
	if len(d.Samples) == 0 {
		return 0
	}
	return len(d.Samples[0])
}
// #endregion types

// #region load
// LoadFile reads a dataset from a CSV file.
func LoadFile(path string, opts Options) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer f.Close()
	return Load(f, opts)
}

// Load reads a dataset from CSV. Every row must have the same number of fields;
// lines starting with '#' are skipped.
func Load(r io.Reader, opts Options) (*Dataset, error) {
	const op = "dataset.Load"
	if opts.LabelColumn < NoLabel {
		return nil, xerrors.New(xerrors.KindInvalidArgument, op, "label column %d is negative, use %d for none", opts.LabelColumn, NoLabel)
	}
	cr := csv.NewReader(r)
	if opts.Comma != 0 {
		cr.Comma = opts.Comma
	}
	cr.Comment = '#'
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	ds := &Dataset{}
	if opts.LabelColumn != NoLabel {
		ds.Labels = []int{}
	}
	width := -1
	first := true
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, xerrors.Wrap(xerrors.KindInvalidArgument, op, err, "parse csv")
		}
		line, _ := cr.FieldPos(0)

		if first {
			first = false
			if opts.Header == HeaderPresent || (opts.Header == HeaderAuto && !numericRow(rec)) {
				if opts.LabelColumn >= len(rec) {
					return nil, xerrors.New(xerrors.KindInvalidArgument, op, "label column %d outside %d columns", opts.LabelColumn, len(rec))
				}
				ds.Header = dropColumn(rec, opts.LabelColumn)
				width = len(rec)
				continue
			}
		}

		if width < 0 {
			width = len(rec)
		}
		if len(rec) != width {
			return nil, xerrors.New(xerrors.KindDimensionMismatch, op, "line %d has %d fields, want %d", line, len(rec), width)
		}
		if opts.LabelColumn >= width {
			return nil, xerrors.New(xerrors.KindInvalidArgument, op, "label column %d outside %d columns", opts.LabelColumn, width)
		}

		sample := make([]float64, 0, width)
		for i, field := range rec {
			field = strings.TrimSpace(field)
			if i == opts.LabelColumn {
				label, err := strconv.Atoi(field)
				if err != nil {
					return nil, xerrors.New(xerrors.KindInvalidArgument, op, "line %d: label %q is not an integer", line, field)
				}
				ds.Labels = append(ds.Labels, label)
				continue
			}
			v, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, xerrors.New(xerrors.KindInvalidArgument, op, "line %d column %d: %q is not a number", line, i, field)
			}
			sample = append(sample, v)
		}
		if len(sample) == 0 {
			return nil, xerrors.New(xerrors.KindInvalidArgument, op, "line %d has no feature columns", line)
		}
		ds.Samples = append(ds.Samples, sample)
	}

	if len(ds.Samples) == 0 {
		return nil, xerrors.New(xerrors.KindInsufficientData, op, "no data rows")
	}
	return ds, nil
}
// #endregion load

// #region helpers
func numericRow(rec []string) bool {
	for _, f := range rec {
		if _, err := strconv.ParseFloat(strings.TrimSpace(f), 64); err != nil {
			return false
		}
	}
	return true
}

func dropColumn(rec []string, col int) []string {
	out := make([]string, 0, len(rec))
	for i, f := range rec {
		if i != col {
			out = append(out, strings.TrimSpace(f))
		}
	}
	return out
}
// #endregion helpers
