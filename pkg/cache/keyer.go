package cache

// Keyer builds cache keys for the results of each pipeline stage.
//
// Implementations must be deterministic: equal inputs always yield equal
// keys, across processes and releases that share a backend. Options that do
// not change a result must not be part of its key.
type Keyer interface {
	// SolveKey keys a solved pose.
	SolveKey(modelHash string, opts SolveKeyOpts) string

	// SweepKey keys a sweep result.
	SweepKey(modelHash string, opts SweepKeyOpts) string

	// LoadsKey keys a quasi-static report.
	LoadsKey(modelHash string) string
}

// SolveKeyOpts are the solve options that change the solved pose.
type SolveKeyOpts struct {
	Accurate   bool   `json:"accurate"`
	Backend    string `json:"backend,omitempty"`
	Iterations int    `json:"iterations,omitempty"`
}

// SweepKeyOpts are the sweep options that change the frames.
type SweepKeyOpts struct {
	Start          float64 `json:"start"`
	End            float64 `json:"end"`
	Step           float64 `json:"step"`
	StepCount      int     `json:"step_count"`
	Solver         string  `json:"solver"`
	Backend        string  `json:"backend"`
	MaxEvaluations int     `json:"max_evaluations"`
	Iterations     int     `json:"iterations"`
	HardErrTol     float64 `json:"hard_err_tol"`
	SplineSoft     bool    `json:"spline_soft"`
}

// DefaultKeyer builds keys of the form "kind:sha256", hashing the model
// hash together with the key options as JSON.
type DefaultKeyer struct{}

// NewDefaultKeyer returns a DefaultKeyer.
func NewDefaultKeyer() Keyer {
	return DefaultKeyer{}
}

// SolveKey implements Keyer.
func (DefaultKeyer) SolveKey(modelHash string, opts SolveKeyOpts) string {
	return hashKey("solve", modelHash, opts)
}

// SweepKey implements Keyer.
func (DefaultKeyer) SweepKey(modelHash string, opts SweepKeyOpts) string {
	return hashKey("sweep", modelHash, opts)
}

// LoadsKey implements Keyer.
func (DefaultKeyer) LoadsKey(modelHash string) string {
	return hashKey("loads", modelHash)
}

var _ Keyer = DefaultKeyer{}
