package chromedp_page

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/user/cardshot/internal/entity"
	"github.com/user/cardshot/internal/repository"
)

const userAgent = `Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/138.0.0.0 Safari/537.36 cardshot`

var errNotOpen = errors.New("page is not open")

// Options configures the browser launched for a batch.
type Options struct {
	// ExecPath overrides the Chrome binary; empty means chromedp's lookup.
	ExecPath string
	// NoSandbox passes --no-sandbox. The config layer enables it by default.
	NoSandbox bool
}

// PageDriver drives a single headless Chrome tab through chromedp.
type PageDriver struct {
	opts   Options
	logger *zap.Logger

	ctx         context.Context
	cancel      context.CancelFunc
	allocCancel context.CancelFunc

	mu        sync.Mutex
	mainFrame cdp.FrameID
	loaderID  cdp.LoaderID
	idle      chan struct{}
}

// NewPageDriver creates a driver. No browser is started until Open.
func NewPageDriver(opts Options, logger *zap.Logger) repository.PageDriver {
	return &PageDriver{opts: opts, logger: logger}
}

func (d *PageDriver) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.UserAgent(userAgent),
	)
	if d.opts.NoSandbox {
		opts = append(opts, chromedp.Flag("no-sandbox", true))
	}
	if d.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(d.opts.ExecPath))
	}
	return opts
}

// Open launches the browser, opens the tab and enables lifecycle events.
// chromedp starts Chrome lazily, so the first action doubles as the launch.
func (d *PageDriver) Open(ctx context.Context) error {
	if d.ctx != nil {
		return errors.New("page already open")
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), d.allocatorOptions()...)
	tabCtx, cancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(d.logger.Sugar().Debugf),
		chromedp.WithErrorf(d.logger.Sugar().Debugf),
	)
	d.ctx, d.cancel, d.allocCancel = tabCtx, cancel, allocCancel

	chromedp.ListenTarget(tabCtx, d.onEvent)

	runCtx, done := d.bind(ctx)
	defer done()
	var tree *page.FrameTree
	if err := chromedp.Run(runCtx,
		page.SetLifecycleEventsEnabled(true),
		chromedp.ActionFunc(func(ctx context.Context) error {
			var err error
			tree, err = page.GetFrameTree().Do(ctx)
			return err
		}),
	); err != nil {
		d.release()
		return fmt.Errorf("failed to start chrome: %w", err)
	}
	d.mu.Lock()
	d.mainFrame = tree.Frame.ID
	d.mu.Unlock()
	d.logger.Debug("Chrome started", zap.String("exec_path", d.opts.ExecPath), zap.Bool("no_sandbox", d.opts.NoSandbox))
	return nil
}

// onEvent runs on chromedp's event goroutine and must not block. Only the
// main frame's lifecycle counts; subframes load documents of their own.
func (d *PageDriver) onEvent(ev any) {
	e, ok := ev.(*page.EventLifecycleEvent)
	if !ok {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mainFrame == "" || e.FrameID != d.mainFrame {
		return
	}
	switch e.Name {
	case "init":
		d.loaderID = e.LoaderID
	case "networkIdle":
		if d.idle != nil && d.loaderID != "" && e.LoaderID == d.loaderID {
			close(d.idle)
			d.idle = nil
		}
	}
}

// bind derives a context from the tab that is also cancelled with ctx.
func (d *PageDriver) bind(ctx context.Context) (context.Context, func()) {
	runCtx, cancel := context.WithCancel(d.ctx)
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

// SetViewport sets the CSS viewport size and device scale factor.
func (d *PageDriver) SetViewport(ctx context.Context, width, height int, scale float64) error {
	if d.ctx == nil {
		return errNotOpen
	}
	runCtx, done := d.bind(ctx)
	defer done()
	return callerErr(ctx, chromedp.Run(runCtx,
		emulation.SetDeviceMetricsOverride(int64(width), int64(height), scale, false),
	))
}

// Load navigates to url. Navigate itself blocks until the load event; the
// network-idle strategy additionally waits for Chrome's networkIdle lifecycle
// event of the same document.
func (d *PageDriver) Load(ctx context.Context, url string, wait entity.WaitStrategy) error {
	if d.ctx == nil {
		return errNotOpen
	}

	idle := d.arm(wait)

	runCtx, done := d.bind(ctx)
	defer done()

	if err := chromedp.Run(runCtx, chromedp.Navigate(url)); err != nil {
		return callerErr(ctx, err)
	}
	if idle == nil {
		return nil
	}

	select {
	case <-idle:
		return nil
	case <-runCtx.Done():
		return callerErr(ctx, runCtx.Err())
	}
}

// arm forgets the previous document and, for the network-idle strategy,
// returns the channel closed by the next document's networkIdle event.
func (d *PageDriver) arm(wait entity.WaitStrategy) chan struct{} {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.loaderID = ""
	d.idle = nil
	if wait == entity.WaitNetworkIdle {
		d.idle = make(chan struct{})
	}
	return d.idle
}

// Capture screenshots the viewport. A transparent default background is
// installed for the capture when requested and removed afterwards.
func (d *PageDriver) Capture(ctx context.Context, opts entity.CaptureOptions) ([]byte, error) {
	if d.ctx == nil {
		return nil, errNotOpen
	}
	runCtx, done := d.bind(ctx)
	defer done()

	params := page.CaptureScreenshot().WithFormat(screenshotFormat(opts.Format))
	if opts.Quality != nil {
		params = params.WithQuality(int64(*opts.Quality))
	}

	var buf []byte
	actions := []chromedp.Action{}
	if opts.OmitBackground {
		actions = append(actions, emulation.SetDefaultBackgroundColorOverride().WithColor(&cdp.RGBA{R: 0, G: 0, B: 0, A: 0}))
	}
	actions = append(actions, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		buf, err = params.Do(ctx)
		return err
	}))
	if opts.OmitBackground {
		actions = append(actions, emulation.SetDefaultBackgroundColorOverride())
	}

	if err := chromedp.Run(runCtx, actions...); err != nil {
		return nil, callerErr(ctx, err)
	}
	return buf, nil
}

// Close closes the tab and terminates the browser process.
func (d *PageDriver) Close() error {
	if d.ctx == nil {
		return nil
	}
	err := chromedp.Cancel(d.ctx)
	d.release()
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("failed to close chrome: %w", err)
	}
	return nil
}

func (d *PageDriver) release() {
	if d.cancel != nil {
		d.cancel()
	}
	if d.allocCancel != nil {
		d.allocCancel()
	}
	d.ctx, d.cancel, d.allocCancel = nil, nil, nil
	d.mu.Lock()
	d.mainFrame, d.loaderID, d.idle = "", "", nil
	d.mu.Unlock()
}

func screenshotFormat(f entity.ImageFormat) page.CaptureScreenshotFormat {
	switch f {
	case entity.FormatJPEG:
		return page.CaptureScreenshotFormatJpeg
	case entity.FormatWebP:
		return page.CaptureScreenshotFormatWebp
	default:
		return page.CaptureScreenshotFormatPng
	}
}

// callerErr reports the caller's deadline or cancellation instead of the
// tab-level cancellation it caused.
func callerErr(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %w", ctxErr, err)
	}
	return err
}
