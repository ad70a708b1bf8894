// Package runstore persists sweep and optimization runs.
//
// A [Run] bundles the model a sweep or design optimization was computed
// from, the options it used and its result, so a run can be listed,
// reopened, compared or reused as an optimization case later.
// [FileStore] keeps one directory per run; [MongoStore] keeps one document
// per run in a MongoDB collection.
package runstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no run has the requested id.
var ErrNotFound = errors.New("run not found")

// Run kinds. Runs saved without a kind are sweeps.
const (
	KindSweep    = "sweep"
	KindOptimize = "optimize"
)

// Run is a persisted sweep or design optimization. Options and Result hold
// the kind's own JSON: sweep options and result for sweeps, the problem and
// the optimization result for optimizations.
type Run struct {
	ID        string          `json:"id" bson:"_id"`
	Kind      string          `json:"kind,omitempty" bson:"kind,omitempty"`
	Name      string          `json:"name,omitempty" bson:"name,omitempty"`
	CreatedAt time.Time       `json:"created_at" bson:"created_at"`
	ModelHash string          `json:"model_hash" bson:"model_hash"`
	Model     json.RawMessage `json:"model" bson:"model"`
	Options   json.RawMessage `json:"options" bson:"options"`
	Result    json.RawMessage `json:"result" bson:"result"`

	// Success and Frames summarise Result for listings. For optimizations
	// Frames counts evaluations.
	Success bool `json:"success" bson:"success"`
	Frames  int  `json:"frames" bson:"frames"`
}

// Summary is the listing view of a run.
type Summary struct {
	ID        string    `json:"id" bson:"_id"`
	Kind      string    `json:"kind,omitempty" bson:"kind,omitempty"`
	Name      string    `json:"name,omitempty" bson:"name,omitempty"`
	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	ModelHash string    `json:"model_hash" bson:"model_hash"`
	Success   bool      `json:"success" bson:"success"`
	Frames    int       `json:"frames" bson:"frames"`
}

// Summary returns the listing view of r.
func (r *Run) Summary() Summary {
	return Summary{
		ID:        r.ID,
		Kind:      r.KindOrDefault(),
		Name:      r.Name,
		CreatedAt: r.CreatedAt,
		ModelHash: r.ModelHash,
		Success:   r.Success,
		Frames:    r.Frames,
	}
}

// KindOrDefault returns the run kind, defaulting to [KindSweep].
func (r *Run) KindOrDefault() string {
	if r.Kind == "" {
		return KindSweep
	}
	return r.Kind
}

// Store persists runs.
type Store interface {
	// Save stores run and returns its id. Save assigns an id and a
	// creation time when they are unset.
	Save(ctx context.Context, run *Run) (string, error)

	// Load returns the run with the given id or ErrNotFound.
	Load(ctx context.Context, id string) (*Run, error)

	// List returns all runs, newest first.
	List(ctx context.Context) ([]Summary, error)

	// Delete removes a run. Deleting a missing run returns ErrNotFound.
	Delete(ctx context.Context, id string) error

	Close() error
}

// prepare fills the id and creation time of a run about to be saved.
func prepare(run *Run) {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
}

// validID reports whether id is a UUID. Ids double as directory names, so
// anything else is rejected before touching storage.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}
