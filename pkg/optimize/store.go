package optimize

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/matzehuels/linkage/pkg/cache"
	"github.com/matzehuels/linkage/pkg/errors"
	"github.com/matzehuels/linkage/pkg/model"
	"github.com/matzehuels/linkage/pkg/runstore"
)

// Save persists a search as a run of kind [runstore.KindOptimize]. The run
// keeps the base model, the problem as its options and res as its result.
func Save(ctx context.Context, store runstore.Store, name string, m *model.Model, p *Problem, res *Result) (string, error) {
	modelData, err := model.Marshal(m)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInternal, err, "encode model")
	}
	problemData, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("encode problem: %w", err)
	}
	resData, err := json.Marshal(res)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return store.Save(ctx, &runstore.Run{
		Kind:      runstore.KindOptimize,
		Name:      name,
		ModelHash: cache.Hash(modelData),
		Model:     modelData,
		Options:   problemData,
		Result:    resData,
		Success:   res.Best != nil && res.Best.Feasible() && res.Best.Success(),
		Frames:    res.Evaluations,
	})
}

// CaseFromRun turns a saved sweep into an optimization case with the same
// sweep options. The case id is the run name, or the run id when unnamed.
func CaseFromRun(run *runstore.Run) (Case, error) {
	if kind := run.KindOrDefault(); kind != runstore.KindSweep {
		return Case{}, errors.New(errors.ErrCodeInvalidInput, "run %s is a %s run, not a sweep", run.ID, kind)
	}
	c := Case{ID: run.Name}
	if c.ID == "" {
		c.ID = run.ID
	}
	if err := json.Unmarshal(run.Options, &c.Sweep); err != nil {
		return Case{}, errors.Wrap(errors.ErrCodeInvalidInput, err, "decode options of run %s", run.ID)
	}
	return c, nil
}
