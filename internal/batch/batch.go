package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hashicorp/go-multierror"
	"github.com/sourcegraph/conc/pool"

	"penormalize/internal/config"
	"penormalize/pkg/mapview"
	"penormalize/pkg/pe"
)

type Status int

const (
	StatusNormalized Status = iota
	StatusSkipped
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusNormalized:
		return "normalized"
	case StatusSkipped:
		return "skipped"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Result is the outcome for one file.
type Result struct {
	Path    string
	Status  Status
	Patches []pe.Patch
	Err     error
}

func (r Result) String() string {
	switch r.Status {
	case StatusNormalized:
		return fmt.Sprintf("%s: normalized (%d fields)", r.Path, len(r.Patches))
	case StatusSkipped:
		return fmt.Sprintf("%s: skipped: %v", r.Path, r.Err)
	}
	return fmt.Sprintf("%s: failed: %v", r.Path, r.Err)
}

// Runner normalizes files with one mapping and one walker per file.
type Runner struct {
	cfg    *config.Config
	logger *slog.Logger
}

func NewRunner(cfg *config.Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{cfg: cfg, logger: logger}
}

// Run normalizes every path and returns one result per path, in order. The
// error aggregates every failed file; skipped (non-PE) files are not
// errors. Files not yet started when ctx is done fail with ctx's error.
func (r *Runner) Run(ctx context.Context, paths []string) ([]Result, error) {
	results := make([]Result, len(paths))

	p := pool.New().WithMaxGoroutines(max(r.cfg.Jobs, 1))
	for i, path := range paths {
		p.Go(func() {
			if err := ctx.Err(); err != nil {
				results[i] = Result{Path: path, Status: StatusFailed, Err: err}
				return
			}
			results[i] = r.NormalizeFile(path)
		})
	}
	p.Wait()

	var errs *multierror.Error
	for _, res := range results {
		if res.Status == StatusFailed {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", res.Path, res.Err))
		}
	}

	return results, errs.ErrorOrNil()
}

// NormalizeFile maps path and erases its nondeterministic fields in place.
func (r *Runner) NormalizeFile(path string) Result {
	logger := r.logger.With("file", path)

	mode := mapview.ReadWrite
	if r.cfg.DryRun {
		mode = mapview.CopyOnWrite
	}

	v, err := mapview.Open(path, mode)
	if err != nil {
		return Result{Path: path, Status: StatusFailed, Err: err}
	}
	defer func() {
		if cerr := v.Close(); cerr != nil {
			logger.Warn("failed to close mapping", "error", cerr)
		}
	}()

	walker := pe.NewWalker(
		pe.WithLogger(logger),
		pe.WithMaxResourceDepth(r.cfg.MaxResourceDepth),
	)

	err = walker.Process(v)
	switch {
	case errors.Is(err, pe.ErrNotPEImage):
		logger.Info("not a PE file")
		return Result{Path: path, Status: StatusSkipped, Err: err}
	case err != nil:
		logger.Error("failed to normalize", "error", err)
		return Result{Path: path, Status: StatusFailed, Patches: walker.Patches(), Err: err}
	}

	if !r.cfg.DryRun {
		if err = v.Flush(); err != nil {
			return Result{Path: path, Status: StatusFailed, Patches: walker.Patches(), Err: err}
		}
	}

	logger.Info("normalized",
		"fields", len(walker.Patches()),
		"sections", len(walker.Sections()),
		"pe32plus", walker.Is64(),
		"dry_run", r.cfg.DryRun)
	return Result{Path: path, Status: StatusNormalized, Patches: walker.Patches()}
}
