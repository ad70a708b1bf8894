package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/matzehuels/linkage/pkg/buildinfo"
	"github.com/matzehuels/linkage/pkg/dof"
	"github.com/matzehuels/linkage/pkg/errors"
	"github.com/matzehuels/linkage/pkg/model"
	"github.com/matzehuels/linkage/pkg/pipeline"
	"github.com/matzehuels/linkage/pkg/sweep"
)

// SolveResponse is the body of POST /v1/solve.
type SolveResponse struct {
	*pipeline.SolveResult
	Model json.RawMessage `json:"model"`
}

// CheckResponse is the body of POST /v1/check.
type CheckResponse struct {
	Over   bool       `json:"over"`
	Detail string     `json:"detail"`
	Report dof.Report `json:"report"`
}

// SweepRequest is the body of POST /v1/sweep.
type SweepRequest struct {
	Model   json.RawMessage `json:"model"`
	Options sweep.Options   `json:"options"`
	Save    bool            `json:"save,omitempty"`
	Name    string          `json:"name,omitempty"`
}

type healthResponse struct {
	Status string         `json:"status"`
	Build  buildinfo.Info `json:"build"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Build: buildinfo.Get()})
}

// handleSolve solves the posted project. Query parameters select the
// solver: accurate=true, backend, iterations.
func (s *Server) handleSolve(w http.ResponseWriter, r *http.Request) {
	m, err := readModel(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	opts, err := solveOptions(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.runner.Solve(r.Context(), m, opts)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	data, err := model.Marshal(m)
	if err != nil {
		s.writeError(w, r, errors.Wrap(errors.ErrCodeInternal, err, "encode model"))
		return
	}
	s.writeJSON(w, http.StatusOK, SolveResponse{SolveResult: res, Model: data})
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	m, err := readModel(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	over, detail := dof.Check(m)
	s.writeJSON(w, http.StatusOK, CheckResponse{Over: over, Detail: detail, Report: dof.Analyze(m)})
}

func (s *Server) handleLoads(w http.ResponseWriter, r *http.Request) {
	m, err := readModel(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.runner.Loads(r.Context(), m, pipeline.LoadsOptions{})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	var req SweepRequest
	if err := decode(w, r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if len(req.Model) == 0 {
		s.writeError(w, r, errors.New(errors.ErrCodeInvalidInput, "missing model"))
		return
	}
	m, err := model.Unmarshal(req.Model)
	if err != nil {
		s.writeError(w, r, modelError(err))
		return
	}
	if req.Save && s.runner.Store == nil {
		s.writeError(w, r, errors.New(errors.ErrCodeUnsupported, "this server has no run store"))
		return
	}

	req.Options.Logger = s.logger
	res, err := s.runner.Sweep(r.Context(), m, pipeline.SweepOptions{
		Sweep: req.Options,
		Save:  req.Save,
		Name:  req.Name,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func readModel(w http.ResponseWriter, r *http.Request) (*model.Model, error) {
	m, err := model.ReadJSON(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		return nil, modelError(err)
	}
	return m, nil
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodyBytes)).Decode(v); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "decode request")
	}
	return nil
}

// modelError keeps structured model errors and marks the rest as bad input.
func modelError(err error) error {
	if errors.GetCode(err) != "" {
		return err
	}
	return errors.Wrap(errors.ErrCodeInvalidInput, err, "decode model")
}

func solveOptions(r *http.Request) (pipeline.SolveOptions, error) {
	q := r.URL.Query()
	opts := pipeline.SolveOptions{Backend: q.Get("backend")}
	if v := q.Get("accurate"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return opts, errors.New(errors.ErrCodeInvalidInput, "invalid accurate=%q", v)
		}
		opts.Accurate = b
	}
	if v := q.Get("iterations"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return opts, errors.New(errors.ErrCodeInvalidInput, "invalid iterations=%q", v)
		}
		opts.Iterations = n
	}
	return opts, nil
}
