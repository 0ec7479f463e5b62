package entity

import "errors"

var (
	// ErrConfig marks malformed or incomplete configuration. Raised before any browser work.
	ErrConfig = errors.New("config error")
	// ErrTemplate marks a template that fails to load or compile.
	ErrTemplate = errors.New("template error")
	// ErrRender marks a runtime failure while rendering, loading, capturing or writing a job.
	ErrRender = errors.New("render error")
	// ErrResource marks a failure to acquire the browser.
	ErrResource = errors.New("resource error")
)

// ErrorType returns the metrics label for err.
func ErrorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrConfig):
		return "config"
	case errors.Is(err, ErrTemplate):
		return "template"
	case errors.Is(err, ErrResource):
		return "resource"
	case errors.Is(err, ErrRender):
		return "render"
	default:
		return "unknown"
	}
}
