package entity

import "time"

// WaitStrategy is the readiness condition applied after loading a document.
type WaitStrategy string

const (
	// WaitNetworkIdle waits until the page has had no network activity for 500ms.
	WaitNetworkIdle WaitStrategy = "networkidle"
	// WaitLoad waits for the load event only.
	WaitLoad WaitStrategy = "load"
)

// ImageFormat is the raster format of a screenshot.
type ImageFormat string

const (
	FormatPNG  ImageFormat = "png"
	FormatJPEG ImageFormat = "jpeg"
	FormatWebP ImageFormat = "webp"
)

// CaptureOptions are the options passed to the page driver for one capture.
// Quality is nil for lossless formats.
type CaptureOptions struct {
	Format         ImageFormat
	Quality        *int
	OmitBackground bool
}

// RenderResult carries per-job diagnostics back to the runner.
type RenderResult struct {
	Index   int
	Total   int
	Path    string
	Title   string
	Bytes   int64
	Elapsed time.Duration
}

// RenderRecord is the history row stored for every written image.
type RenderRecord struct {
	RunID       string        `json:"run_id" yaml:"-"`
	Index       int           `json:"index" yaml:"index"`
	Path        string        `json:"path" yaml:"path"`
	Template    string        `json:"template" yaml:"template"`
	Title       string        `json:"title,omitempty" yaml:"title,omitempty"`
	ContentHash string        `json:"content_hash" yaml:"content_hash"`
	Width       int           `json:"width" yaml:"width"`
	Height      int           `json:"height" yaml:"height"`
	Bytes       int64         `json:"bytes" yaml:"bytes"`
	Elapsed     time.Duration `json:"elapsed" yaml:"elapsed"`
	RenderedAt  time.Time     `json:"rendered_at" yaml:"rendered_at"`
}

// Summary is returned by a batch run.
type Summary struct {
	RunID   string
	Count   int
	Elapsed time.Duration
	Debug   bool
}

// BatchProgress mirrors the progress hash kept for external monitors.
type BatchProgress struct {
	RunID     string    `yaml:"-"`
	Total     int       `yaml:"total"`
	Done      int       `yaml:"done"`
	Status    string    `yaml:"status"` // "running", "completed", "failed"
	LastPath  string    `yaml:"last_path,omitempty"`
	UpdatedAt time.Time `yaml:"updated_at"`
}

// RunReport is what the history and progress stores still know about a run.
type RunReport struct {
	RunID    string          `yaml:"run_id"`
	Progress *BatchProgress  `yaml:"progress,omitempty"`
	Records  []*RenderRecord `yaml:"images"`
}
