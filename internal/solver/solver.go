// Package solver defines the narrow contract between the optimizer and an
// integer programming backend.
package solver

import (
	"context"
	"fmt"
	"math"

	"github.com/haroldofalcao/optinutri/internal/model"
)

// Response is a backend's answer for one model. Values is keyed by column name
// and is only meaningful when Feasible is true.
type Response struct {
	Feasible  bool
	Objective float64
	Values    map[string]float64
}

// Solver solves a model. Implementations must not retain m.
type Solver interface {
	Solve(ctx context.Context, m *model.Model) (Response, error)
}

// Func adapts a plain function to the Solver interface.
type Func func(ctx context.Context, m *model.Model) (Response, error)

// Solve calls f.
func (f Func) Solve(ctx context.Context, m *model.Model) (Response, error) {
	return f(ctx, m)
}

// Fault reports a backend that failed to produce a usable answer.
type Fault struct {
	Reason string
	Err    error
}

func (f *Fault) Error() string {
	if f.Err != nil {
		return fmt.Sprintf("solver fault: %s: %v", f.Reason, f.Err)
	}
	return "solver fault: " + f.Reason
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Run solves m with s. Errors, panics and malformed responses are all
// returned as *Fault. The call returns early with a Fault when ctx ends before
// the backend answers.
func Run(ctx context.Context, s Solver, m *model.Model) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, &Fault{Reason: "cancelled before solve", Err: err}
	}

	type outcome struct {
		resp Response
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		resp, err := call(ctx, s, m)
		done <- outcome{resp, err}
	}()

	select {
	case out := <-done:
		return out.resp, out.err
	case <-ctx.Done():
		return Response{}, &Fault{Reason: "solve did not finish in time", Err: ctx.Err()}
	}
}

func call(ctx context.Context, s Solver, m *model.Model) (resp Response, err error) {
	defer func() {
		if r := recover(); r != nil {
			resp = Response{}
			err = &Fault{Reason: fmt.Sprintf("panic: %v", r)}
		}
	}()

	resp, err = s.Solve(ctx, m)
	if err != nil {
		return Response{}, &Fault{Reason: "backend error", Err: err}
	}
	if err := check(resp, m); err != nil {
		return Response{}, err
	}
	return resp, nil
}

func check(resp Response, m *model.Model) error {
	if !resp.Feasible {
		return nil
	}
	if math.IsNaN(resp.Objective) || math.IsInf(resp.Objective, 0) {
		return &Fault{Reason: fmt.Sprintf("non-finite objective %v", resp.Objective)}
	}
	for _, col := range m.Columns {
		v, ok := resp.Values[col.Name]
		if !ok {
			return &Fault{Reason: "missing value for column " + col.Name}
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return &Fault{Reason: fmt.Sprintf("non-finite value %v for column %s", v, col.Name)}
		}
	}
	return nil
}
