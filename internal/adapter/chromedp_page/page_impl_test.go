package chromedp_page

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os/exec"
	"testing"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"go.uber.org/zap/zaptest"

	"github.com/user/cardshot/internal/entity"
)

func TestScreenshotFormat(t *testing.T) {
	tests := []struct {
		in   entity.ImageFormat
		want page.CaptureScreenshotFormat
	}{
		{entity.FormatPNG, page.CaptureScreenshotFormatPng},
		{entity.FormatJPEG, page.CaptureScreenshotFormatJpeg},
		{entity.FormatWebP, page.CaptureScreenshotFormatWebp},
		{"", page.CaptureScreenshotFormatPng},
	}
	for _, tt := range tests {
		if got := screenshotFormat(tt.in); got != tt.want {
			t.Errorf("screenshotFormat(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAllocatorOptions(t *testing.T) {
	base := (&PageDriver{}).allocatorOptions()
	withAll := (&PageDriver{opts: Options{ExecPath: "/usr/bin/chromium", NoSandbox: true}}).allocatorOptions()
	if len(withAll) != len(base)+2 {
		t.Errorf("got %d options with exec path and no-sandbox, want %d", len(withAll), len(base)+2)
	}
}

func TestUnopenedDriver(t *testing.T) {
	d := NewPageDriver(Options{}, zaptest.NewLogger(t))
	ctx := context.Background()

	if err := d.SetViewport(ctx, 10, 10, 1); !errors.Is(err, errNotOpen) {
		t.Errorf("SetViewport() error = %v, want errNotOpen", err)
	}
	if err := d.Load(ctx, "about:blank", entity.WaitLoad); !errors.Is(err, errNotOpen) {
		t.Errorf("Load() error = %v, want errNotOpen", err)
	}
	if _, err := d.Capture(ctx, entity.CaptureOptions{Format: entity.FormatPNG}); !errors.Is(err, errNotOpen) {
		t.Errorf("Capture() error = %v, want errNotOpen", err)
	}
	if err := d.Close(); err != nil {
		t.Errorf("Close() on unopened driver error = %v", err)
	}
}

func lifecycle(frame, loader, name string) *page.EventLifecycleEvent {
	return &page.EventLifecycleEvent{FrameID: cdp.FrameID(frame), LoaderID: cdp.LoaderID(loader), Name: name}
}

func isClosed(ch chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}

func TestNetworkIdleGate(t *testing.T) {
	tests := []struct {
		name     string
		events   []*page.EventLifecycleEvent
		wantIdle bool
	}{
		{
			name:     "main frame idle releases",
			events:   []*page.EventLifecycleEvent{lifecycle("main", "L1", "init"), lifecycle("main", "L1", "networkIdle")},
			wantIdle: true,
		},
		{
			name: "subframe idle is ignored",
			events: []*page.EventLifecycleEvent{
				lifecycle("main", "L1", "init"),
				lifecycle("child", "L2", "init"),
				lifecycle("child", "L2", "networkIdle"),
			},
		},
		{
			name: "subframe init does not replace the main document",
			events: []*page.EventLifecycleEvent{
				lifecycle("main", "L1", "init"),
				lifecycle("child", "L2", "init"),
				lifecycle("main", "L1", "networkIdle"),
			},
			wantIdle: true,
		},
		{
			name:   "idle of the previous document is ignored",
			events: []*page.EventLifecycleEvent{lifecycle("main", "L0", "networkIdle"), lifecycle("main", "L1", "init")},
		},
		{
			name:   "idle of an older loader is ignored",
			events: []*page.EventLifecycleEvent{lifecycle("main", "L1", "init"), lifecycle("main", "L0", "networkIdle")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := &PageDriver{mainFrame: "main"}
			idle := d.arm(entity.WaitNetworkIdle)
			for _, ev := range tt.events {
				d.onEvent(ev)
			}
			if got := isClosed(idle); got != tt.wantIdle {
				t.Errorf("idle released = %v, want %v", got, tt.wantIdle)
			}
		})
	}
}

func TestNetworkIdleGateIgnoresEventsBeforeOpen(t *testing.T) {
	d := &PageDriver{}
	idle := d.arm(entity.WaitNetworkIdle)
	d.onEvent(lifecycle("main", "L1", "init"))
	d.onEvent(lifecycle("main", "L1", "networkIdle"))
	if isClosed(idle) {
		t.Error("idle released without a known main frame")
	}
}

func TestArmForLoadStrategy(t *testing.T) {
	d := &PageDriver{mainFrame: "main"}
	if idle := d.arm(entity.WaitLoad); idle != nil {
		t.Error("arm(load) returned a channel, want nil")
	}
	// A second networkIdle after release must not close twice.
	idle := d.arm(entity.WaitNetworkIdle)
	d.onEvent(lifecycle("main", "L1", "init"))
	d.onEvent(lifecycle("main", "L1", "networkIdle"))
	d.onEvent(lifecycle("main", "L1", "networkIdle"))
	if !isClosed(idle) {
		t.Error("idle not released")
	}
}

func lookupChrome(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping browser test in short mode")
	}
	for _, name := range []string{"headless-shell", "chromium", "chromium-browser", "google-chrome", "google-chrome-stable"} {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}
	t.Skip("no chrome binary found")
	return ""
}

func TestRenderThroughChrome(t *testing.T) {
	chrome := lookupChrome(t)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<html><body style="margin:0"><div style="width:50px;height:50px;background:red">%s</div></body></html>`, r.URL.Path)
	}))
	defer srv.Close()

	d := NewPageDriver(Options{ExecPath: chrome, NoSandbox: true}, zaptest.NewLogger(t))
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := d.Open(ctx); err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer d.Close()

	pngMagic := []byte("\x89PNG")
	jpegMagic := []byte("\xff\xd8")

	steps := []struct {
		path   string
		wait   entity.WaitStrategy
		format entity.ImageFormat
		omit   bool
		magic  []byte
	}{
		{"/first", entity.WaitNetworkIdle, entity.FormatPNG, false, pngMagic},
		{"/second", entity.WaitLoad, entity.FormatPNG, true, pngMagic},
		{"/third", entity.WaitLoad, entity.FormatJPEG, false, jpegMagic},
	}
	for _, step := range steps {
		if err := d.SetViewport(ctx, 200, 100, 1); err != nil {
			t.Fatalf("SetViewport() error = %v", err)
		}
		if err := d.Load(ctx, srv.URL+step.path, step.wait); err != nil {
			t.Fatalf("Load(%s) error = %v", step.path, err)
		}
		opts := entity.CaptureOptions{Format: step.format, OmitBackground: step.omit}
		if step.format != entity.FormatPNG {
			q := 80
			opts.Quality = &q
		}
		img, err := d.Capture(ctx, opts)
		if err != nil {
			t.Fatalf("Capture(%s) error = %v", step.path, err)
		}
		if !bytes.HasPrefix(img, step.magic) {
			t.Errorf("Capture(%s) returned %d bytes without the expected signature", step.path, len(img))
		}
	}

	if err := d.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}
