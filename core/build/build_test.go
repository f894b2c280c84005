package build

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/FocuswithJustin/srcmark/core/archive"
	"github.com/FocuswithJustin/srcmark/core/codec"
	"github.com/FocuswithJustin/srcmark/core/errors"
	"github.com/FocuswithJustin/srcmark/core/markup"
)

func sources(n int) []Input {
	inputs := make([]Input, n)
	for i := range inputs {
		name := fmt.Sprintf("f%03d.c", i)
		delay := time.Duration(n-i) * time.Millisecond
		body := []byte(fmt.Sprintf("int v%d = %d;\n", i, i))
		inputs[i] = Input{
			Source: codec.Source{Filename: name},
			Load: func() ([]byte, error) {
				// Later inputs finish first.
				time.Sleep(delay)
				return body, nil
			},
		}
	}
	return inputs
}

func defaultOptions() Options {
	return Options{Codec: codec.DefaultOptions(), Workers: 4}
}

func TestRunPreservesInputOrder(t *testing.T) {
	inputs := sources(24)
	a, summary, err := Run(context.Background(), inputs, defaultOptions())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if !a.Closed() || a.Len() != 24 || summary.Units != 24 {
		t.Fatalf("archive has %d units, summary %+v", a.Len(), summary)
	}
	for i, u := range a.Iterate() {
		if u.Filename != inputs[i].Filename {
			t.Errorf("unit %d = %s, want %s", i, u.Filename, inputs[i].Filename)
		}
	}
	for i, r := range summary.Results {
		if r.Position != i+1 || r.Index != i || r.Err != nil {
			t.Errorf("result %d = %+v", i, r)
		}
	}
	if len(summary.BuildID) != 36 {
		t.Errorf("BuildID = %q", summary.BuildID)
	}
}

func TestRunSkipsFailedUnits(t *testing.T) {
	inputs := []Input{
		{Source: codec.Source{Filename: "a.c", Data: []byte("int a;\n")}},
		{Source: codec.Source{Filename: "b.rs", Data: []byte("fn b() {}\n")}},
		{Source: codec.Source{Filename: "c.c", Data: []byte("int c;\xff\n"), Encoding: "UTF-8"}},
		{Source: codec.Source{Filename: "d.c"}, Load: func() ([]byte, error) { return nil, fmt.Errorf("disk gone") }},
		{Source: codec.Source{Filename: "e.c", Data: []byte("int e; }\n")}},
	}
	a, summary, err := Run(context.Background(), inputs, defaultOptions())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if a.Len() != 2 || summary.Units != 2 || summary.Failed != 3 || summary.Warnings != 1 {
		t.Errorf("summary = %+v", summary)
	}
	wantSentinels := []error{nil, errors.ErrUnsupported, errors.ErrEncoding, nil, nil}
	for i, r := range summary.Results {
		if wantSentinels[i] != nil && !errors.Is(r.Err, wantSentinels[i]) {
			t.Errorf("result %d error = %v, want %v", i, r.Err, wantSentinels[i])
		}
	}
	var ioErr *errors.IOError
	if !errors.As(summary.Results[3].Err, &ioErr) {
		t.Errorf("load failure = %v", summary.Results[3].Err)
	}
	if summary.Results[4].Index != 1 || summary.Results[4].Report.Fidelity != codec.FidelityRecovered {
		t.Errorf("recovered unit result = %+v", summary.Results[4])
	}
}

func TestRunStrict(t *testing.T) {
	inputs := []Input{
		{Source: codec.Source{Filename: "a.c", Data: []byte("int a;\n")}},
		{Source: codec.Source{Filename: "b.rs", Data: []byte("fn b() {}\n")}},
		{Source: codec.Source{Filename: "c.c", Data: []byte("int c;\n")}},
	}
	opts := defaultOptions()
	opts.Strict = true
	a, summary, err := Run(context.Background(), inputs, opts)
	if !errors.Is(err, errors.ErrUnsupported) {
		t.Fatalf("Run() error = %v, want ErrUnsupported", err)
	}
	if a != nil || summary != nil {
		t.Error("a failed strict build must not return an archive")
	}
}

func TestRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	a, _, err := Run(ctx, sources(5), defaultOptions())
	if err != context.Canceled || a != nil {
		t.Errorf("Run() = %v, %v", a, err)
	}

	ctx, cancel = context.WithCancel(context.Background())
	defer cancel()
	var loads atomic.Int32
	inputs := sources(50)
	for i := range inputs {
		load := inputs[i].Load
		inputs[i].Load = func() ([]byte, error) {
			if loads.Add(1) == 3 {
				cancel()
			}
			return load()
		}
	}
	a, _, err = Run(ctx, inputs, defaultOptions())
	if err != context.Canceled || a != nil {
		t.Errorf("Run() after mid-build cancel = %v, %v", a, err)
	}
}

func TestRunBoundsResultsWaitingOnSlowInput(t *testing.T) {
	opts := defaultOptions()
	opts.Workers = 2
	window := int32(windowPerWorker * opts.Workers)

	var started, seen atomic.Int32
	inputs := sources(40)
	for i := range inputs {
		load := inputs[i].Load
		first := i == 0
		inputs[i].Load = func() ([]byte, error) {
			started.Add(1)
			if first {
				// Give the other worker time to run ahead.
				time.Sleep(50 * time.Millisecond)
				seen.Store(started.Load())
			}
			return load()
		}
	}
	a, _, err := Run(context.Background(), inputs, opts)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if a.Len() != 40 {
		t.Errorf("Len() = %d, want 40", a.Len())
	}
	if got := seen.Load(); got > window {
		t.Errorf("%d inputs loaded while the first was still loading, want at most %d", got, window)
	}
}

func TestRunSkipDefaultAndNamespaces(t *testing.T) {
	inputs := []Input{
		{Source: codec.Source{Filename: "a.c", Data: []byte("int a;\n")}},
		{Source: codec.Source{Filename: "empty.c", Data: nil}},
		{Source: codec.Source{Filename: "b.py", Data: []byte("b = 1\n")}},
	}
	opts := defaultOptions()
	opts.Archive.SkipDefault = true
	opts.Codec.Positions = true
	a, summary, err := Run(context.Background(), inputs, opts)
	if err != nil {
		t.Fatal(err)
	}
	if a.Len() != 2 || summary.Skipped != 1 || summary.Results[1].Index != -1 || summary.Results[2].Index != 1 {
		t.Errorf("summary = %+v", summary)
	}
	if uri, ok := a.Namespaces().Lookup(markup.PosPrefix); !ok || uri != markup.PosNamespace {
		t.Error("position namespace not declared")
	}
}

func TestRunSingleMode(t *testing.T) {
	inputs := []Input{
		{Source: codec.Source{Filename: "a.c", Data: []byte("int a;\n")}},
		{Source: codec.Source{Filename: "b.c", Data: []byte("int b;\n")}},
	}
	opts := defaultOptions()
	opts.Mode = archive.ModeSingle
	if _, _, err := Run(context.Background(), inputs, opts); !errors.Is(err, errors.ErrInvalidInput) {
		t.Errorf("Run() error = %v", err)
	}
	a, _, err := Run(context.Background(), inputs[:1], opts)
	if err != nil || a.Len() != 1 {
		t.Errorf("Run() = %v, %v", a, err)
	}
}

func TestRunEmpty(t *testing.T) {
	a, summary, err := Run(context.Background(), nil, defaultOptions())
	if err != nil || a.Len() != 0 || !a.Closed() || len(summary.Results) != 0 {
		t.Errorf("Run(nil) = %v, %+v, %v", a, summary, err)
	}
}

func TestWorkerPool(t *testing.T) {
	pool := NewWorkerPool[int, int](3)
	if pool.Workers() != 3 {
		t.Errorf("Workers() = %d", pool.Workers())
	}
	pool.Start(func(n int) int { return n * n })
	go func() {
		defer pool.Close()
		for i := 1; i <= 10; i++ {
			pool.Submit(context.Background(), i)
		}
	}()
	sum := 0
	for r := range pool.Results() {
		sum += r
	}
	if sum != 385 {
		t.Errorf("sum of squares = %d, want 385", sum)
	}

	if NewWorkerPool[int, int](0).Workers() < 1 {
		t.Error("default worker count should be positive")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	blocked := NewWorkerPool[int, int](1)
	blocked.Submit(context.Background(), 1)
	blocked.Submit(context.Background(), 2)
	if blocked.Submit(ctx, 3) {
		t.Error("Submit on a full queue with a done context should return false")
	}
}
