package usecase

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/user/cardshot/internal/entity"
	"github.com/user/cardshot/internal/repository"
	"github.com/user/cardshot/pkg/metrics"
	"github.com/user/cardshot/pkg/utils"
)

var (
	ErrSessionNotOpen = errors.New("render session is not open")
	ErrSessionReused  = errors.New("render session was already opened")
)

// HTMLRenderer turns a job into an HTML document.
type HTMLRenderer interface {
	RenderJob(job entity.ImageJob) (string, error)
}

// Session is the browser resource a batch renders through.
type Session interface {
	Open(ctx context.Context) error
	RenderOne(ctx context.Context, job entity.ImageJob, isFirst bool) (entity.RenderResult, error)
	Close() error
}

type sessionState int

const (
	stateUnopened sessionState = iota
	stateOpen
	stateClosed
)

// SessionOptions configures a RenderSession. Records and Publisher are optional.
type SessionOptions struct {
	RunID     string
	Total     int
	Timeout   time.Duration
	WaitFirst entity.WaitStrategy
	WaitRest  entity.WaitStrategy
	Records   repository.RenderRecordRepository
	Publisher repository.ImagePublisher
}

// RenderSession owns the single page of a batch and renders jobs through it
// one at a time. Each job runs viewport, render, load, capture, write in order.
type RenderSession struct {
	driver   repository.PageDriver
	host     repository.DocumentHost
	renderer HTMLRenderer
	logger   *zap.Logger
	opts     SessionOptions
	state    sessionState
}

// NewRenderSession creates an unopened session.
func NewRenderSession(
	driver repository.PageDriver,
	host repository.DocumentHost,
	renderer HTMLRenderer,
	logger *zap.Logger,
	opts SessionOptions,
) *RenderSession {
	if opts.WaitFirst == "" {
		opts.WaitFirst = entity.WaitNetworkIdle
	}
	if opts.WaitRest == "" {
		opts.WaitRest = entity.WaitLoad
	}
	return &RenderSession{
		driver:   driver,
		host:     host,
		renderer: renderer,
		logger:   logger,
		opts:     opts,
	}
}

// Open launches the browser and page.
func (s *RenderSession) Open(ctx context.Context) error {
	if s.state != stateUnopened {
		return ErrSessionReused
	}
	if err := s.driver.Open(ctx); err != nil {
		return fmt.Errorf("%w: failed to launch browser: %w", entity.ErrResource, err)
	}
	s.state = stateOpen
	s.logger.Debug("Render session opened", zap.String("run_id", s.opts.RunID))
	return nil
}

// RenderOne renders a single job to its output path. isFirst selects the
// stricter network-idle wait for the cold page.
func (s *RenderSession) RenderOne(ctx context.Context, job entity.ImageJob, isFirst bool) (entity.RenderResult, error) {
	if s.state != stateOpen {
		return entity.RenderResult{}, ErrSessionNotOpen
	}

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	wait := s.opts.WaitRest
	if isFirst {
		wait = s.opts.WaitFirst
	}

	start := time.Now()

	// Viewport first: resizing after load does not reliably reflow the content.
	if err := s.driver.SetViewport(ctx, job.Width, job.Height, 1); err != nil {
		return entity.RenderResult{}, fmt.Errorf("%w: failed to set viewport %dx%d: %w", entity.ErrRender, job.Width, job.Height, err)
	}

	html, err := s.renderer.RenderJob(job)
	if err != nil {
		return entity.RenderResult{}, err
	}

	url, err := s.host.Host(html, assetDir(job))
	if err != nil {
		return entity.RenderResult{}, fmt.Errorf("%w: failed to host document: %w", entity.ErrRender, err)
	}

	if err := s.driver.Load(ctx, url, wait); err != nil {
		return entity.RenderResult{}, fmt.Errorf("%w: failed to load document (wait %s): %w", entity.ErrRender, wait, err)
	}

	opts, err := CaptureOptionsFor(job)
	if err != nil {
		return entity.RenderResult{}, fmt.Errorf("%w: %w", entity.ErrConfig, err)
	}
	img, err := s.driver.Capture(ctx, opts)
	if err != nil {
		return entity.RenderResult{}, fmt.Errorf("%w: failed to capture screenshot: %w", entity.ErrRender, err)
	}

	if err := writeImage(job.Path, img); err != nil {
		return entity.RenderResult{}, fmt.Errorf("%w: %w", entity.ErrRender, err)
	}

	elapsed := time.Since(start)
	metrics.RenderDuration.WithLabelValues(string(wait)).Observe(elapsed.Seconds())

	result := entity.RenderResult{
		Index:   job.Index,
		Total:   s.opts.Total,
		Path:    job.Path,
		Title:   ExtractTitle(html),
		Bytes:   int64(len(img)),
		Elapsed: elapsed,
	}

	if err := s.afterWrite(ctx, job, html, img, result); err != nil {
		return entity.RenderResult{}, fmt.Errorf("%w: %w", entity.ErrRender, err)
	}

	s.logger.Debug("Image rendered",
		zap.Int("index", job.Index+1),
		zap.String("path", job.Path),
		zap.String("wait", string(wait)),
		zap.Int64("bytes", result.Bytes),
		zap.Duration("elapsed", elapsed),
	)
	return result, nil
}

func (s *RenderSession) afterWrite(ctx context.Context, job entity.ImageJob, html string, img []byte, result entity.RenderResult) error {
	if s.opts.Records != nil {
		rec := &entity.RenderRecord{
			RunID:       s.opts.RunID,
			Index:       job.Index,
			Path:        job.Path,
			Template:    job.Template.String(),
			Title:       result.Title,
			ContentHash: utils.HashContent(html),
			Width:       job.Width,
			Height:      job.Height,
			Bytes:       result.Bytes,
			Elapsed:     result.Elapsed,
			RenderedAt:  time.Now().UTC(),
		}
		if err := s.opts.Records.Save(ctx, rec); err != nil {
			return fmt.Errorf("failed to save render record for %s: %w", job.Path, err)
		}
	}

	if s.opts.Publisher != nil {
		name := ObjectName(job.Path)
		if err := s.opts.Publisher.Publish(ctx, name, bytes.NewReader(img)); err != nil {
			return fmt.Errorf("failed to publish %s to %s: %w", job.Path, s.opts.Publisher.Name(), err)
		}
		s.logger.Debug("Image published", zap.String("backend", s.opts.Publisher.Name()), zap.String("object", name))
	}
	return nil
}

// Close releases the page and browser. Safe to call more than once and on an
// unopened session.
func (s *RenderSession) Close() error {
	if s.state != stateOpen {
		s.state = stateClosed
		return nil
	}
	s.state = stateClosed
	if err := s.driver.Close(); err != nil {
		return fmt.Errorf("%w: failed to close browser: %w", entity.ErrResource, err)
	}
	s.logger.Debug("Render session closed", zap.String("run_id", s.opts.RunID))
	return nil
}

// CaptureOptionsFor derives the screenshot options of a job: the background
// is omitted exactly when the job disables it, and quality is only passed for
// formats that take one.
func CaptureOptionsFor(job entity.ImageJob) (entity.CaptureOptions, error) {
	format, err := utils.FormatFromPath(job.Path)
	if err != nil {
		return entity.CaptureOptions{}, err
	}
	opts := entity.CaptureOptions{
		Format:         format,
		OmitBackground: !job.Background,
	}
	if utils.AcceptsQuality(job.Path) {
		q := job.Quality
		opts.Quality = &q
	}
	return opts, nil
}

// ObjectName maps an output path to the remote object name used by publishers.
func ObjectName(path string) string {
	name := filepath.ToSlash(filepath.Clean(path))
	name = strings.TrimLeft(name, "/")
	for strings.HasPrefix(name, "../") {
		name = strings.TrimPrefix(name, "../")
	}
	return name
}

func assetDir(job entity.ImageJob) string {
	if job.Template.Path == "" {
		return "."
	}
	return filepath.Dir(job.Template.Path)
}

func writeImage(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write image %s: %w", path, err)
	}
	return nil
}
