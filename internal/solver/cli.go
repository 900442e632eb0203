package solver

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"

	"energy-dispatch/internal/logging"
	"energy-dispatch/internal/lp"

	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// workspace returns the directory that holds the model and solution files
// and a cleanup func that honours KeepFiles.
func workspace(opts Options, solver string) (string, func(), error) {
	if opts.WorkDir != "" {
		if err := os.MkdirAll(opts.WorkDir, 0o755); err != nil {
			return "", nil, errors.Wrap(err, "create solver work dir")
		}
		dir, err := os.MkdirTemp(opts.WorkDir, solver+"-")
		if err != nil {
			return "", nil, errors.Wrap(err, "create solver work dir")
		}
		return dir, cleanupFunc(dir, opts.KeepFiles), nil
	}
	dir, err := os.MkdirTemp("", solver+"-")
	if err != nil {
		return "", nil, errors.Wrap(err, "create temp dir")
	}
	return dir, cleanupFunc(dir, opts.KeepFiles), nil
}

func cleanupFunc(dir string, keep bool) func() {
	return func() {
		if keep {
			logging.L().Info("keeping solver files", zap.String("dir", dir))
			return
		}
		os.RemoveAll(dir)
	}
}

func writeModelFile(p *lp.Problem, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, "create model file")
	}
	if err := lp.WriteLP(f, p); err != nil {
		f.Close()
		return errors.Wrap(err, "write model file")
	}
	return errors.Wrap(f.Close(), "close model file")
}

// runCommand executes a solver binary in dir and returns its combined
// output. With Tee the output is also streamed to opts.Output (or stdout).
func runCommand(ctx context.Context, opts Options, dir, binary string, args ...string) (string, error) {
	var buf bytes.Buffer
	var out io.Writer = &buf
	if opts.Tee {
		tee := opts.Output
		if tee == nil {
			tee = os.Stdout
		}
		out = io.MultiWriter(&buf, tee)
	}
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = dir
	cmd.Stdout = out
	cmd.Stderr = out
	logging.L().Debug("running solver", zap.String("binary", binary), zap.Strings("args", args))
	err := cmd.Run()
	if err != nil {
		return buf.String(), errors.Wrapf(err, "exec %s", binary)
	}
	return buf.String(), nil
}

// cmdlineArgs turns CmdlineOptions into "-key value" pairs in key order.
// A nil or empty-string value yields a bare flag.
func cmdlineArgs(opts map[string]any) []string {
	var args []string
	for _, k := range sortedKeys(opts) {
		args = append(args, "-"+k)
		if v := opts[k]; v != nil && fmt.Sprint(v) != "" {
			args = append(args, fmt.Sprint(v))
		}
	}
	return args
}

// finish turns a parsed solution into the adapter result: non-optimal
// terminations become a SolverError carrying the log.
func finish(name string, sol *Solution, log string, p *lp.Problem) (*Solution, error) {
	sol.Log = log
	if sol.Status != Optimal && sol.Status != Feasible {
		return nil, &SolverError{Solver: name, Status: sol.Status, Log: log}
	}
	if len(sol.Values) != p.NumVars() {
		return nil, &SolverError{Solver: name, Status: Error, Log: log,
			Err: fmt.Errorf("solution has %d values for %d variables", len(sol.Values), p.NumVars())}
	}
	return sol, nil
}

// solveWithCLI is the shared driver: write the model, run the binary,
// parse the solution file.
func solveWithCLI(ctx context.Context, name string, p *lp.Problem, opts Options,
	build func(dir, model, sol string) (binary string, args []string, err error),
	parse func(sol string, log string) (*Solution, error)) (*Solution, error) {
	if err := p.Err(); err != nil {
		return nil, &SolverError{Solver: name, Status: Error, Err: err}
	}
	dir, cleanup, err := workspace(opts, name)
	if err != nil {
		return nil, &SolverError{Solver: name, Status: Error, Err: err}
	}
	defer cleanup()

	model := filepath.Join(dir, "model.lp")
	solFile := filepath.Join(dir, "solution")
	if err := writeModelFile(p, model); err != nil {
		return nil, &SolverError{Solver: name, Status: Error, Err: err}
	}
	binary, args, err := build(dir, model, solFile)
	if err != nil {
		return nil, &SolverError{Solver: name, Status: Error, Err: err}
	}
	log, err := runCommand(ctx, opts, dir, binary, args...)
	if err != nil {
		return nil, &SolverError{Solver: name, Status: Error, Log: log, Err: err}
	}
	sol, err := parse(solFile, log)
	if err != nil {
		return nil, &SolverError{Solver: name, Status: Error, Log: log, Err: errors.Wrap(err, "parse solution")}
	}
	logging.L().Info("solver finished", zap.String("solver", name),
		zap.String("status", string(sol.Status)), zap.Float64("objective", sol.Objective))
	return finish(name, sol, log, p)
}

func openSolution(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "solution file missing")
	}
	return f, nil
}
