// Package build encodes many sources into one archive. Sources are encoded
// on a bounded worker pool and handed to a single appender that restores
// input order, so the archive never depends on which worker finished first.
package build

import (
	"context"
	"time"

	"github.com/FocuswithJustin/srcmark/core/archive"
	"github.com/FocuswithJustin/srcmark/core/codec"
	"github.com/FocuswithJustin/srcmark/core/errors"
	"github.com/FocuswithJustin/srcmark/core/markup"
	"github.com/FocuswithJustin/srcmark/internal/logging"
)

// Input is one source to encode.
type Input struct {
	codec.Source
	// Load, when set, supplies Source.Data. It runs on a worker.
	Load func() ([]byte, error)
}

// Options configure a build.
type Options struct {
	Codec   codec.Options
	Mode    archive.Mode
	Archive archive.Options
	// Workers bounds concurrent encodes. Zero means GOMAXPROCS.
	Workers int
	// Strict makes a unit that cannot be encoded fail the whole build.
	// Otherwise it is reported and left out.
	Strict bool
}

// Result describes what happened to one input.
type Result struct {
	// Position is the 1-based input position.
	Position int
	Filename string
	// Index is the archive index, or -1 when the unit is not in the
	// archive.
	Index  int
	Report codec.Report
	Err    error
}

// Summary collects the results of a build in input order.
type Summary struct {
	BuildID  string
	Results  []Result
	Units    int
	Skipped  int
	Failed   int
	Warnings int
	Duration time.Duration
}

// windowPerWorker bounds how many inputs may be submitted past the next
// one to append, per worker. Results that finish early wait in memory, so
// one slow input cannot let the rest pile up.
const windowPerWorker = 2

type job struct {
	position int
	input    Input
}

type encoded struct {
	position int
	input    Input
	unit     *markup.Unit
	report   codec.Report
	err      error
	elapsed  time.Duration
}

// Run encodes inputs into a new archive and closes it. When ctx is
// cancelled, or a unit fails under Strict, the partial archive is discarded
// and only the error is returned.
func Run(ctx context.Context, inputs []Input, opts Options) (*archive.Archive, *Summary, error) {
	start := time.Now()
	if opts.Mode == "" {
		opts.Mode = archive.ModeCompound
	}
	a, err := archive.Open(opts.Mode, opts.Archive)
	if err != nil {
		return nil, nil, err
	}

	summary := &Summary{BuildID: logging.NewBuildID(), Results: make([]Result, 0, len(inputs))}
	ctx = logging.WithBuildID(ctx, summary.BuildID)
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	pool := NewWorkerPool[job, encoded](opts.Workers)
	pool.Start(func(j job) encoded {
		return encodeOne(ctx, j, opts.Codec)
	})
	// A slot is taken per submission and given back when that position is
	// appended, so pending never holds more than cap(slots) results.
	slots := make(chan struct{}, windowPerWorker*pool.Workers())
	go func() {
		defer pool.Close()
		for i, in := range inputs {
			select {
			case slots <- struct{}{}:
			case <-ctx.Done():
				return
			}
			if !pool.Submit(ctx, job{position: i + 1, input: in}) {
				return
			}
		}
	}()

	// Results arrive in completion order; pending holds them until every
	// earlier position has been appended.
	pending := make(map[int]encoded)
	next := 1
	var fatal error
	for r := range pool.Results() {
		if fatal != nil || ctx.Err() != nil {
			continue
		}
		pending[r.position] = r
		for {
			e, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			<-slots
			if err := appendOne(ctx, a, e, opts, summary); err != nil {
				fatal = err
				cancel()
				break
			}
		}
	}

	if fatal != nil {
		return nil, nil, fatal
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if err := a.Close(); err != nil {
		return nil, nil, err
	}
	summary.Duration = time.Since(start)
	logging.BuildFinished(ctx, summary.Units, summary.Skipped, summary.Failed, summary.Warnings, summary.Duration)
	return a, summary, nil
}

func encodeOne(ctx context.Context, j job, opts codec.Options) encoded {
	out := encoded{position: j.position, input: j.input}
	if err := ctx.Err(); err != nil {
		out.err = err
		return out
	}
	start := time.Now()
	src := j.input.Source
	if j.input.Load != nil {
		data, err := j.input.Load()
		if err != nil {
			out.err = errors.NewIO("read source", src.Filename, err)
			return out
		}
		src.Data = data
	}
	out.unit, out.report, out.err = codec.Encode(src, opts)
	out.elapsed = time.Since(start)
	return out
}

// appendOne is the single appender. It runs on the Run goroutine only.
func appendOne(ctx context.Context, a *archive.Archive, e encoded, opts Options, s *Summary) error {
	res := Result{Position: e.position, Filename: e.input.Filename, Index: -1, Report: e.report, Err: e.err}
	defer func() { s.Results = append(s.Results, res) }()

	if e.err != nil {
		s.Failed++
		logging.UnitSkipped(ctx, e.position, e.input.Filename, e.err)
		if opts.Strict {
			return errors.Wrapf(e.err, "unit %d (%s)", e.position, e.input.Filename)
		}
		return nil
	}

	for _, w := range e.report.Warnings {
		s.Warnings++
		logging.RecoveryWarning(ctx, e.position, w)
	}
	for _, ns := range e.report.Namespaces {
		if err := a.DeclareNamespace(ns.Prefix, ns.URI); err != nil {
			return err
		}
	}

	idx, err := a.Append(e.unit)
	if err != nil {
		return errors.Wrapf(err, "unit %d (%s)", e.position, e.input.Filename)
	}
	res.Index = idx
	if idx < 0 {
		s.Skipped++
		logging.UnitSkipped(ctx, e.position, e.input.Filename, nil)
		return nil
	}
	s.Units++
	logging.UnitEncoded(ctx, e.position, e.unit.Filename, e.unit.Language, string(e.report.Fidelity), e.elapsed)
	return nil
}
