package orchestrator

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/local/collager/internal/imagerender"
	"github.com/local/collager/internal/layout"
)

type measured struct {
	ref layout.ImageRef
	err error
}

// measureAll reads the natural size of every file. With workers <= 1 it
// runs inline on the caller's goroutine; larger values read at most workers
// files at a time. Results keep the order of files. With skip set, files
// that fail to decode are fully checked up front, reported and left out;
// otherwise the first failure in input order ends the run.
func measureAll(l zerolog.Logger, files []string, skip bool, workers int) ([]layout.ImageRef, int, error) {
	measure := imagerender.Measure
	if skip {
		// header-only reads would let a truncated file through to painting
		measure = imagerender.MeasureFull
	}

	out := make([]measured, len(files))
	if workers <= 1 {
		for i, f := range files {
			ref, err := measure(f)
			out[i] = measured{ref: ref, err: err}
		}
	} else {
		sem := make(chan struct{}, workers)
		var wg sync.WaitGroup
		for i, f := range files {
			wg.Add(1)
			sem <- struct{}{}
			go func(i int, f string) {
				defer wg.Done()
				defer func() { <-sem }()
				ref, err := measure(f)
				out[i] = measured{ref: ref, err: err}
			}(i, f)
		}
		wg.Wait()
	}

	refs := make([]layout.ImageRef, 0, len(files))
	skipped := 0
	for i, m := range out {
		if m.err != nil {
			if !skip {
				return nil, 0, m.err
			}
			skipped++
			l.Warn().Err(m.err).Str("file", files[i]).Msg("skipping unreadable image")
			continue
		}
		refs = append(refs, m.ref)
	}
	return refs, skipped, nil
}
