package eval

// #region eval-config
// EvalConfig holds thresholds for post-training validation.
type EvalConfig struct {
	MaxProportionError float64 // reject if |sum(proportions) - 1| exceeds this
	MaxConditionNumber float64 // warn if any regularized covariance is worse conditioned
	EnforceCondition   bool    // make the condition number check blocking
}

// DefaultEvalConfig returns the standard thresholds.
func DefaultEvalConfig() EvalConfig {
	return EvalConfig{
		MaxProportionError: 1e-9,
		MaxConditionNumber: 1e12,
	}
}

// #endregion eval-config

// #region eval-metric
// EvalMetric captures a single validation check result.
type EvalMetric struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Pass  bool    `json:"pass"`
}

// #endregion eval-metric

// #region eval-result
// EvalResult is the output of post-training validation.
type EvalResult struct {
	Passed  bool         `json:"passed"`
	Metrics []EvalMetric `json:"metrics"`
	Reason  string       `json:"reason"`
}

// #endregion eval-result
