package modelstore

import "time"

const (
	// FormatMagic identifies a model store file.
	FormatMagic = "gmm-classifier"
	// FormatVersion is the schema version written and accepted by this package.
	FormatVersion = 1
	// DefaultName is used when a model is saved or loaded with an empty name.
	DefaultName = "default"
)

// #region model-record
// ModelRecord describes one stored model version.
type ModelRecord struct {
	ModelID      string
	ParentID     string // previous active version of the same name, if any
	Name         string
	ClassCount   int
	FeatureCount int
	Tau          float64
	GridRates    []float64
	MetricsJSON  string
	CreatedAt    time.Time
}
// #endregion model-record
