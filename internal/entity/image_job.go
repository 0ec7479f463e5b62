package entity

import "time"

// TemplateRef points at a template either on disk or inline. Exactly one of
// the two fields is set on a resolved job.
type TemplateRef struct {
	Path   string `json:"path,omitempty"`
	Inline string `json:"-"`
}

// IsZero reports whether the reference names no template at all.
func (r TemplateRef) IsZero() bool {
	return r.Path == "" && r.Inline == ""
}

// String returns the path, or a placeholder for inline templates.
func (r TemplateRef) String() string {
	if r.Path != "" {
		return r.Path
	}
	if r.Inline != "" {
		return "<inline>"
	}
	return ""
}

// GlobalOptions holds the run-wide defaults. Built once per run.
type GlobalOptions struct {
	Template     string         `json:"template,omitempty"`
	TemplateHTML string         `json:"-"`
	Width        int            `json:"width"`
	Height       int            `json:"height"`
	Quality      int            `json:"quality"`
	Background   bool           `json:"background"`
	Verbose      bool           `json:"verbose"`
	Debug        bool           `json:"debug"`
	Data         map[string]any `json:"data,omitempty"`
	Timeout      time.Duration  `json:"timeout"`
}

// ImageJob is one fully resolved unit of work producing exactly one image.
type ImageJob struct {
	Index      int            `json:"index"`
	Template   TemplateRef    `json:"template"`
	Data       map[string]any `json:"data,omitempty"`
	Width      int            `json:"width"`
	Height     int            `json:"height"`
	Quality    int            `json:"quality"`
	Background bool           `json:"background"`
	Path       string         `json:"path"`
}

// TemplateContext is the value handed to the template engine: the job's data
// plus the job geometry under their config key names, unless data already
// defines them.
func (j ImageJob) TemplateContext() map[string]any {
	ctx := make(map[string]any, len(j.Data)+6)
	ctx["width"] = j.Width
	ctx["height"] = j.Height
	ctx["quality"] = j.Quality
	ctx["background"] = j.Background
	ctx["path"] = j.Path
	if j.Template.Path != "" {
		ctx["template"] = j.Template.Path
	}
	for k, v := range j.Data {
		ctx[k] = v
	}
	return ctx
}
