package usecase

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/user/cardshot/internal/entity"
	"github.com/user/cardshot/internal/repository"
)

type captureCall struct {
	opts entity.CaptureOptions
}

type fakeDriver struct {
	calls     []string
	waits     []entity.WaitStrategy
	captures  []captureCall
	viewports [][2]int
	scales    []float64

	openErr    error
	loadErr    error
	loadErrAt  int // 1-based load call that fails; 0 means every call when loadErr is set
	captureErr error
	closed     int
	loads      int
}

func (d *fakeDriver) Open(ctx context.Context) error {
	d.calls = append(d.calls, "open")
	return d.openErr
}

func (d *fakeDriver) SetViewport(ctx context.Context, width, height int, scale float64) error {
	d.calls = append(d.calls, "viewport")
	d.viewports = append(d.viewports, [2]int{width, height})
	d.scales = append(d.scales, scale)
	return nil
}

func (d *fakeDriver) Load(ctx context.Context, url string, wait entity.WaitStrategy) error {
	d.loads++
	d.calls = append(d.calls, "load")
	d.waits = append(d.waits, wait)
	if d.loadErr != nil && (d.loadErrAt == 0 || d.loadErrAt == d.loads) {
		return d.loadErr
	}
	return nil
}

func (d *fakeDriver) Capture(ctx context.Context, opts entity.CaptureOptions) ([]byte, error) {
	d.calls = append(d.calls, "capture")
	d.captures = append(d.captures, captureCall{opts: opts})
	if d.captureErr != nil {
		return nil, d.captureErr
	}
	return []byte("image/" + string(opts.Format)), nil
}

func (d *fakeDriver) Close() error {
	d.calls = append(d.calls, "close")
	d.closed++
	return nil
}

type fakeHost struct {
	docs []string
	dirs []string
}

func (h *fakeHost) Host(html string, assetDir string) (string, error) {
	h.docs = append(h.docs, html)
	h.dirs = append(h.dirs, assetDir)
	return fmt.Sprintf("http://127.0.0.1:1/documents/%d", len(h.docs)), nil
}

type fakeRecords struct {
	saved   []*entity.RenderRecord
	err     error
	listErr error
}

func (r *fakeRecords) Save(ctx context.Context, rec *entity.RenderRecord) error {
	if r.err != nil {
		return r.err
	}
	r.saved = append(r.saved, rec)
	return nil
}

func (r *fakeRecords) ListByRun(ctx context.Context, runID string) ([]*entity.RenderRecord, error) {
	if r.listErr != nil {
		return nil, r.listErr
	}
	var out []*entity.RenderRecord
	for _, rec := range r.saved {
		if rec.RunID == runID {
			out = append(out, rec)
		}
	}
	return out, nil
}

type fakePublisher struct {
	names    []string
	contents []string
}

func (p *fakePublisher) Publish(ctx context.Context, name string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	p.names = append(p.names, name)
	p.contents = append(p.contents, string(data))
	return nil
}

func (p *fakePublisher) Name() string { return "fake" }

type fakeProgress struct {
	mu       sync.Mutex
	started  map[string]int
	advanced []string
	finished map[string]string
}

func newFakeProgress() *fakeProgress {
	return &fakeProgress{started: map[string]int{}, finished: map[string]string{}}
}

func (p *fakeProgress) Start(ctx context.Context, runID string, total int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.started[runID] = total
	return nil
}

func (p *fakeProgress) Advance(ctx context.Context, runID string, path string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.advanced = append(p.advanced, path)
	return nil
}

func (p *fakeProgress) Finish(ctx context.Context, runID string, status string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.finished[runID] = status
	return nil
}

func (p *fakeProgress) Get(ctx context.Context, runID string) (*entity.BatchProgress, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.started[runID]; !ok {
		return nil, repository.ErrProgressNotFound
	}
	return &entity.BatchProgress{RunID: runID, Total: p.started[runID], Done: len(p.advanced), Status: p.finished[runID]}, nil
}
