package dataset

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/danielpatrickdp/gmm-classifier/internal/xerrors"
)

func TestLoadWithHeader(t *testing.T) {
	in := `label,x,y
# comment
1, 0.5, 2
2, -1, 3e-1
`
	ds, err := Load(strings.NewReader(in), DefaultOptions())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(ds.Header) != 2 || ds.Header[0] != "x" || ds.Header[1] != "y" {
		t.Fatalf("expected header [x y], got %v", ds.Header)
	}
	if len(ds.Samples) != 2 || ds.FeatureCount() != 2 {
		t.Fatalf("expected 2x2 samples, got %v", ds.Samples)
	}
	if ds.Labels[0] != 1 || ds.Labels[1] != 2 {
		t.Fatalf("expected labels [1 2], got %v", ds.Labels)
	}
	if ds.Samples[1][1] != 0.3 {
		t.Fatalf("expected 0.3, got %g", ds.Samples[1][1])
	}
}

func TestLoadWithoutHeaderLastColumnLabel(t *testing.T) {
	in := "0.1;0.2;7\n0.3;0.4;9\n"
	ds, err := Load(strings.NewReader(in), Options{LabelColumn: 2, Header: HeaderAuto, Comma: ';'})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(ds.Header) != 0 {
		t.Fatalf("expected no header, got %v", ds.Header)
	}
	if ds.Labels[1] != 9 || ds.Samples[1][0] != 0.3 {
		t.Fatalf("unexpected data: %v %v", ds.Samples, ds.Labels)
	}
}

func TestLoadUnlabelled(t *testing.T) {
	ds, err := Load(strings.NewReader("1,2\n3,4\n"), Options{LabelColumn: NoLabel})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ds.Labels != nil {
		t.Fatalf("expected nil labels, got %v", ds.Labels)
	}
	if ds.FeatureCount() != 2 {
		t.Fatalf("expected 2 features, got %d", ds.FeatureCount())
	}
}

func TestLoadErrors(t *testing.T) {
	cases := []struct {
		name string
		in   string
		opts Options
		want error
	}{
		{"ragged", "1,2,3\n1,2\n", DefaultOptions(), xerrors.ErrDimensionMismatch},
		{"bad label", "a,b\n1.5,2\n", DefaultOptions(), xerrors.ErrInvalidArgument},
		{"bad feature", "1,2\n1,x\n", DefaultOptions(), xerrors.ErrInvalidArgument},
		{"empty", "", DefaultOptions(), xerrors.ErrInsufficientData},
		{"header only", "label,x\n", DefaultOptions(), xerrors.ErrInsufficientData},
		{"label out of range", "1,2\n", Options{LabelColumn: 5}, xerrors.ErrInvalidArgument},
		{"negative label column", "1,2\n3,4\n", Options{LabelColumn: -2}, xerrors.ErrInvalidArgument},
		{"label only", "1\n2\n", DefaultOptions(), xerrors.ErrInvalidArgument},
		{"forced header", "1,2\n", Options{LabelColumn: 0, Header: HeaderPresent}, xerrors.ErrInsufficientData},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(strings.NewReader(tc.in), tc.opts)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "d.csv")
	if err := os.WriteFile(path, []byte("0,1.5\n1,2.5\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	ds, err := LoadFile(path, DefaultOptions())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(ds.Samples) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(ds.Samples))
	}

	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.csv"), DefaultOptions()); err == nil {
		t.Fatal("expected error for missing file")
	}
}
