package gmm

import (
	"log/slog"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/danielpatrickdp/gmm-classifier/internal/xerrors"
)

// #region class-model

// ClassModel is a read-only view of one class's Gaussian and its regularized
// discriminant terms. Matrices are shared with the model and must not be mutated.
type ClassModel struct {
	Label       int
	Mean        []float64
	Covariance  *mat.Dense
	SampleCount int
	Proportion  float64

	// Eigenvalues ascending; rows of Eigenvectors are the matching unit eigenvectors.
	Eigenvalues  []float64
	Eigenvectors *mat.Dense

	// Derived from Tau. WhiteningTransform = diag(Regularized^-1/2) * Eigenvectors.
	RegularizedEigenvalues []float64
	WhiteningTransform     *mat.Dense
	DecisionConstant       float64 // log det(regularized cov) - 2 log(proportion)
}

// #endregion class-model

// #region model

// Model is a quadratic discriminant classifier with one regularized Gaussian per class.
// Mutating methods must not run concurrently; Predict is safe for concurrent readers.
type Model struct {
	featureCount int
	tau          float64

	// Accumulated statistics, appended in class-index order.
	means  [][]float64
	covs   []*mat.Dense
	counts []int

	proportions []float64
	eigVals     [][]float64
	eigVecs     []*mat.Dense
	regEigVals  [][]float64
	lambdaQ     []*mat.Dense
	cstDecision []float64

	labels       *LabelMap
	presetLabels bool // labels set by SetLabelMap rather than derived by Train
	gridRates    []float64

	propStale bool
	eigStale  bool
	ready     bool // derived fields consistent with statistics and tau

	data *trainingSet

	logger   *slog.Logger
	observer Observer
	store    Store
}

// trainingSet keeps the caller's samples for cross-validation. Folds are index lists
// into samples, so no sample is copied per fold.
type trainingSet struct {
	samples  [][]float64
	classIdx []int
}

// #endregion model

// #region collaborators

// Observer receives training and prediction events, e.g. for metrics.
type Observer interface {
	ObserveTrain(classes, samples int, elapsed time.Duration)
	ObserveGridPoint(tau, rate float64)
	ObserveTauSelected(tau float64)
	ObservePrediction(label int)
}

// Store persists models. Implemented by modelstore.FileStore.
type Store interface {
	SaveModel(path, name string, m *Model) error
	LoadModel(path, name string) (*Model, error)
	CanReadFile(path string) bool
	CanWriteFile(path string) bool
}

// Classifier is the train/predict/save/load contract of a classification model.
type Classifier interface {
	Train(samples [][]float64, labels []int) error
	Predict(sample []float64) (int, error)
	PredictWithConfidence(sample []float64) (int, float64, error)
	Save(path, name string) error
	Load(path, name string) error
	CanReadFile(path string) bool
	CanWriteFile(path string) bool
}

var _ Classifier = (*Model)(nil)

// #endregion collaborators

// #region options

// Option configures a Model.
type Option func(*Model)

// WithLogger sets the logger used for training and search events.
func WithLogger(l *slog.Logger) Option {
	return func(m *Model) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithObserver attaches an event observer.
func WithObserver(o Observer) Option {
	return func(m *Model) {
		m.observer = o
	}
}

// WithStore attaches the persistence backend used by Save and Load.
func WithStore(s Store) Option {
	return func(m *Model) {
		m.store = s
	}
}

// WithTau sets the initial regularization strength. Invalid values are rejected
// later by SetTau; here they are ignored.
func WithTau(tau float64) Option {
	return func(m *Model) {
		if validTau(tau) {
			m.tau = tau
		}
	}
}

// New creates an empty model.
func New(opts ...Option) *Model {
	m := &Model{logger: slog.Default()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// #endregion options

// #region accessors

// ClassCount returns the number of classes accumulated so far.
func (m *Model) ClassCount() int { return len(m.means) }

// FeatureCount returns the feature dimension d, or 0 before any statistics are added.
func (m *Model) FeatureCount() int { return m.featureCount }

// Tau returns the current regularization strength.
func (m *Model) Tau() float64 { return m.tau }

// Ready reports whether the model can predict.
func (m *Model) Ready() bool { return m.ready }

// GridSearchRates returns the cross-validated score per tested tau from the last
// TrainTau call, in grid order.
func (m *Model) GridSearchRates() []float64 {
	return append([]float64(nil), m.gridRates...)
}

// SampleCounts returns the per-class sample counts.
func (m *Model) SampleCounts() []int {
	return append([]int(nil), m.counts...)
}

// Proportions returns the per-class priors from the last UpdateProportions.
func (m *Model) Proportions() []float64 {
	return append([]float64(nil), m.proportions...)
}

// LabelMap returns the label/index mapping, or nil when none is set.
func (m *Model) LabelMap() *LabelMap { return m.labels }

// SetLabelMap fixes the label/index mapping. Train uses it instead of deriving one.
// A nil map restores derivation from the training labels; until the next Train,
// predictions then return class indices. A map whose size differs from the number
// of classes already held is rejected and the model is left unchanged.
func (m *Model) SetLabelMap(lm *LabelMap) error {
	if lm != nil && len(m.means) > 0 && lm.Len() != len(m.means) {
		return xerrors.New(xerrors.KindInvalidArgument, "gmm.SetLabelMap",
			"label map has %d entries, model has %d classes", lm.Len(), len(m.means))
	}
	m.labels = lm
	m.presetLabels = lm != nil
	return nil
}

// Class returns the view of class i.
func (m *Model) Class(i int) ClassModel {
	cm := ClassModel{
		Label:       i,
		Mean:        m.means[i],
		Covariance:  m.covs[i],
		SampleCount: m.counts[i],
	}
	if m.labels != nil {
		if l, ok := m.labels.Label(i); ok {
			cm.Label = l
		}
	}
	if i < len(m.proportions) {
		cm.Proportion = m.proportions[i]
	}
	if !m.eigStale && i < len(m.eigVals) {
		cm.Eigenvalues = m.eigVals[i]
		cm.Eigenvectors = m.eigVecs[i]
	}
	if m.ready {
		cm.RegularizedEigenvalues = m.regEigVals[i]
		cm.WhiteningTransform = m.lambdaQ[i]
		cm.DecisionConstant = m.cstDecision[i]
	}
	return cm
}

// #endregion accessors
