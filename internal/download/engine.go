// Package download fetches manifest assets into the archive.
package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/keepsake/internal/models"
	"github.com/starford/keepsake/internal/namer"
	"github.com/starford/keepsake/internal/storage"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultConcurrency = 50
	DefaultRetries     = 3
	DefaultBackoff     = 300 * time.Millisecond
)

// Checkpoint is the durable record of completed downloads.
type Checkpoint interface {
	Contains(name string) bool
	Append(name string) error
}

// Options tunes the engine.
type Options struct {
	Concurrency    int
	Retries        int
	Backoff        time.Duration
	ResolveTimeout time.Duration
	FetchTimeout   time.Duration
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.Retries <= 0 {
		o.Retries = DefaultRetries
	}
	if o.Backoff <= 0 {
		o.Backoff = DefaultBackoff
	}
	return o
}

// Outcome classifies what happened to one record.
type Outcome string

// Per-record outcomes.
const (
	OutcomeDownloaded Outcome = "downloaded"
	OutcomeSkipped    Outcome = "skipped"
	OutcomeFailed     Outcome = "failed"
)

// Progress is reported once per record when it finishes.
type Progress struct {
	Name    string
	Outcome Outcome
	Bytes   int64
	Done    int
	Total   int
}

// Engine downloads every downloadable manifest record exactly once.
type Engine struct {
	client     *http.Client
	store      storage.Provider
	checkpoint Checkpoint
	opts       Options
	logger     *slog.Logger

	// OnProgress, when set, is called after each record completes.
	OnProgress func(Progress)
}

// NewEngine creates a download engine. A nil client uses http.DefaultClient.
func NewEngine(client *http.Client, store storage.Provider, cp Checkpoint, opts Options, logger *slog.Logger) *Engine {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		client:     client,
		store:      store,
		checkpoint: cp,
		opts:       opts.withDefaults(),
		logger:     logger.With(slog.String("component", "download")),
	}
}

// run holds the mutable state of a single Run call.
type run struct {
	mu       sync.Mutex
	stats    Stats
	failures []models.Failure
	finished int
}

func (r *run) record(p Progress, failure *models.Failure) Progress {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch p.Outcome {
	case OutcomeDownloaded:
		r.stats.Downloaded++
		r.stats.Bytes += p.Bytes
	case OutcomeSkipped:
		r.stats.Skipped++
	case OutcomeFailed:
		r.stats.Failed++
		if failure != nil {
			r.failures = append(r.failures, *failure)
		}
	}
	r.finished++
	p.Done = r.finished
	p.Total = r.stats.Total
	return p
}

// Run downloads all records. Per-asset failures are collected into the
// result; only context cancellation ends the run early.
func (e *Engine) Run(ctx context.Context, records []models.ManifestRecord) (*Result, error) {
	ids := namer.AssignAll(records)
	st := &run{stats: Stats{Total: len(ids)}}
	start := time.Now()

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)

	for _, id := range ids {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			p, failure := e.one(gctx, id)
			p = st.record(p, failure)
			if e.OnProgress != nil {
				e.OnProgress(p)
			}
			return nil
		})
	}
	_ = g.Wait()

	st.stats.Elapsed = time.Since(start)
	res := &Result{Stats: st.stats, Failures: st.failures}
	if err := ctx.Err(); err != nil {
		return res, fmt.Errorf("download: run interrupted: %w", err)
	}
	return res, nil
}

// one processes a single identity: skip, or resolve+fetch+persist with retries.
func (e *Engine) one(ctx context.Context, id models.AssetIdentity) (Progress, *models.Failure) {
	done, err := e.alreadyDone(id)
	if err != nil {
		e.logger.Error("check existing", slog.String("stem", id.Stem), slog.String("error", err.Error()))
		return Progress{Name: id.Stem, Outcome: OutcomeFailed}, &models.Failure{
			Source: id.Stem, URL: id.Record.DownloadLink, Error: err.Error(),
		}
	}
	if done != "" {
		return Progress{Name: done, Outcome: OutcomeSkipped}, nil
	}

	var lastErr error
	lastURL := id.Record.DownloadLink
	for attempt := 1; attempt <= e.opts.Retries; attempt++ {
		name, n, url, err := e.attempt(ctx, id)
		if url != "" {
			lastURL = url
		}
		if err == nil {
			e.logger.Debug("downloaded", slog.String("file", name), slog.Int64("bytes", n))
			return Progress{Name: name, Outcome: OutcomeDownloaded, Bytes: n}, nil
		}
		lastErr = err
		if ctx.Err() != nil || attempt == e.opts.Retries {
			break
		}
		e.logger.Debug("retrying",
			slog.String("stem", id.Stem),
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()),
		)
		if err := sleep(ctx, time.Duration(attempt)*e.opts.Backoff); err != nil {
			lastErr = err
			break
		}
	}

	e.logger.Warn("download failed", slog.String("stem", id.Stem), slog.String("error", lastErr.Error()))
	return Progress{Name: id.Stem, Outcome: OutcomeFailed}, &models.Failure{
		Source: id.Stem, URL: lastURL, Error: failureMessage(lastErr),
	}
}

// alreadyDone returns the existing canonical file name for id, if any.
func (e *Engine) alreadyDone(id models.AssetIdentity) (string, error) {
	for _, name := range id.Candidates() {
		if e.checkpoint.Contains(name) {
			return name, nil
		}
		ok, err := e.store.Exists(name)
		if err != nil {
			return "", err
		}
		if ok {
			return name, nil
		}
	}
	return e.legacyDone(id)
}

// legacyDone looks for id under its legacy name. A legacy file on disk is
// renamed to the canonical name and checkpointed under it.
func (e *Engine) legacyDone(id models.AssetIdentity) (string, error) {
	canonical := id.Candidates()
	for i, name := range id.LegacyCandidates() {
		if e.checkpoint.Contains(name) {
			return name, nil
		}
		ok, err := e.store.Exists(name)
		if err != nil {
			return "", err
		}
		if !ok {
			continue
		}
		if err := e.store.Move(name, canonical[i]); err != nil {
			return "", err
		}
		if err := e.checkpoint.Append(canonical[i]); err != nil {
			return "", err
		}
		e.logger.Info("renamed legacy file", slog.String("from", name), slog.String("to", canonical[i]))
		return canonical[i], nil
	}
	return "", nil
}

// attempt performs one resolve+fetch+persist cycle.
func (e *Engine) attempt(ctx context.Context, id models.AssetIdentity) (name string, n int64, url string, err error) {
	url, err = e.resolve(ctx, id.Record.DownloadLink)
	if err != nil {
		return "", 0, "", err
	}
	name = id.FileName(namer.ExtensionForURL(url))

	n, err = e.fetch(ctx, url, name)
	if err != nil {
		return name, 0, url, err
	}
	// The file is durable before it is checkpointed.
	if err := e.checkpoint.Append(name); err != nil {
		return name, n, url, err
	}
	return name, n, url, nil
}

// resolve exchanges a manifest link for the direct asset URL.
func (e *Engine) resolve(ctx context.Context, link string) (string, error) {
	if e.opts.ResolveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.ResolveTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, link, http.NoBody)
	if err != nil {
		return "", &ResolveError{Link: link, Err: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.client.Do(req)
	if err != nil {
		return "", &ResolveError{Link: link, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return "", &ResolveError{Link: link, StatusCode: resp.StatusCode}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return "", &ResolveError{Link: link, Err: err}
	}
	url := strings.TrimSpace(string(body))
	if url == "" {
		return "", &ResolveError{Link: link, Err: errors.New("empty direct url")}
	}
	return url, nil
}

// fetch streams the asset at url into the store under name.
func (e *Engine) fetch(ctx context.Context, url, name string) (int64, error) {
	if e.opts.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.FetchTimeout)
		defer cancel()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return 0, &FetchError{URL: url, Err: err}
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return 0, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return 0, &FetchError{URL: url, StatusCode: resp.StatusCode}
	}

	// A broken body surfaces as a copy error from the store.
	n, err := e.store.WriteStream(name, resp.Body)
	if err != nil {
		return 0, &FetchError{URL: url, Err: err}
	}
	return n, nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
