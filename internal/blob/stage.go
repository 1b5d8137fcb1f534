package blob

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sakif/retail-analytics/internal/apperror"
	"github.com/sakif/retail-analytics/internal/retry"
)

// StageOptions configures Stage.
type StageOptions struct {
	// Prefix limits the listing to names starting with it.
	Prefix string
	// Dir is the local staging directory; it is created if missing.
	Dir string
	// Timeout bounds each individual list or download attempt. Zero means
	// no per-attempt limit.
	Timeout time.Duration
	Retry   retry.Policy
	Logger  *slog.Logger
}

// Stage downloads every object under opts.Prefix into opts.Dir and returns
// the local paths written.
//
// Each file is written to a temp file in the same directory and renamed into
// place, so a reader never sees a half-written CSV and re-running Stage
// simply overwrites the previous copy. Object names that would land outside
// Dir (absolute paths, "..") are rejected before anything is written.
func Stage(ctx context.Context, store Store, opts StageOptions) ([]string, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Dir == "" {
		return nil, apperror.ValidationFailed("staging.dir", "staging directory is required")
	}

	var objects []Object
	err := retry.Do(ctx, opts.Retry, func(ctx context.Context) error {
		ctx, cancel := withTimeout(ctx, opts.Timeout)
		defer cancel()

		var err error
		objects, err = store.List(ctx, opts.Prefix)
		return permanentIfFinal(err)
	})
	if err != nil {
		return nil, wrapConnectivity(err)
	}

	type target struct {
		name, dest string
		size       int64
	}
	targets := make([]target, 0, len(objects))
	for _, obj := range objects {
		if strings.HasSuffix(obj.Name, "/") {
			continue // directory marker
		}
		dest, err := stagingPath(opts.Dir, obj.Name)
		if err != nil {
			return nil, err
		}
		targets = append(targets, target{name: obj.Name, dest: dest, size: obj.Size})
	}

	written := make([]string, 0, len(targets))
	for _, tg := range targets {
		start := time.Now()
		err := retry.Do(ctx, opts.Retry, func(ctx context.Context) error {
			ctx, cancel := withTimeout(ctx, opts.Timeout)
			defer cancel()
			return permanentIfFinal(download(ctx, store, tg.name, tg.dest))
		})
		if err != nil {
			return written, wrapConnectivity(err)
		}

		logger.Info("blob staged",
			slog.String("name", tg.name),
			slog.String("path", tg.dest),
			slog.Int64("size", tg.size),
			slog.Duration("duration", time.Since(start)),
		)
		written = append(written, tg.dest)
	}
	return written, nil
}

// stagingPath maps an object name to a path inside dir.
func stagingPath(dir, name string) (string, error) {
	if name == "" || filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", apperror.ValidationFailed("name", fmt.Sprintf("object name %q escapes the staging directory", name))
	}
	dest := filepath.Join(dir, filepath.FromSlash(name))
	rel, err := filepath.Rel(dir, dest)
	if err != nil || rel == "." || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", apperror.ValidationFailed("name", fmt.Sprintf("object name %q escapes the staging directory", name))
	}
	return dest, nil
}

func download(ctx context.Context, store Store, name, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return fmt.Errorf("blob: creating %s: %w", filepath.Dir(dest), err)
	}

	r, err := store.Open(ctx, name)
	if err != nil {
		return err
	}
	defer r.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".staging-*")
	if err != nil {
		return fmt.Errorf("blob: creating temp file: %w", err)
	}
	// removing after a successful rename fails harmlessly
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("blob: downloading %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("blob: writing %s: %w", dest, err)
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return fmt.Errorf("blob: renaming into %s: %w", dest, err)
	}
	return nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

// permanentIfFinal stops retrying errors a second attempt cannot fix.
func permanentIfFinal(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, apperror.ErrNotFound) || errors.Is(err, apperror.ErrValidation) {
		return retry.Permanent(err)
	}
	return err
}

// wrapConnectivity reports exhausted transient failures as connectivity
// errors and passes domain errors through.
func wrapConnectivity(err error) error {
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return err
	}
	return apperror.Connectivity("blob storage", err)
}
