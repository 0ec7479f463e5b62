// Package template turns image jobs into HTML documents.
//
// Templates use html/template syntax. Data is lenient: a key missing from the
// job data renders as the empty string instead of failing, so cards degrade
// the way handlebars-style templates do. This holds for nested lookups too:
// {{.author.name}} without an author renders empty. Execution errors come
// from functions, such as index out of range.
//
// Compiled templates are cached by source content: jobs sharing a template
// compile it once, jobs with distinct templates compile independently.
package template

import (
	"bytes"
	"fmt"
	htmltemplate "html/template"
	"os"

	"github.com/yuin/goldmark"

	"github.com/user/cardshot/internal/entity"
	"github.com/user/cardshot/pkg/utils"
)

// Compiled is a parsed template ready for execution.
type Compiled struct {
	key  string
	tmpl *htmltemplate.Template
}

// Key returns the content hash of the template source.
func (c *Compiled) Key() string {
	return c.key
}

// Renderer compiles and executes templates. Not safe for concurrent use;
// a batch renders sequentially.
type Renderer struct {
	md       goldmark.Markdown
	compiled map[string]*Compiled
	sources  map[string]string
	readFile func(string) ([]byte, error)
}

// NewRenderer creates a renderer with an empty cache.
func NewRenderer() *Renderer {
	return &Renderer{
		md:       newMarkdown(),
		compiled: make(map[string]*Compiled),
		sources:  make(map[string]string),
		readFile: os.ReadFile,
	}
}

// Compile parses source, reusing an earlier compilation of identical source.
func (r *Renderer) Compile(source string) (*Compiled, error) {
	key := utils.HashContent(source)
	if c, ok := r.compiled[key]; ok {
		return c, nil
	}

	t, err := htmltemplate.New("card").
		Option("missingkey=default").
		Funcs(r.funcs()).
		Parse(source)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to compile template: %w", entity.ErrTemplate, err)
	}

	c := &Compiled{key: key, tmpl: t}
	r.compiled[key] = c
	return c, nil
}

// Render executes a compiled template against data. It performs no I/O.
func (r *Renderer) Render(c *Compiled, data map[string]any) (string, error) {
	var buf bytes.Buffer
	if err := c.tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("%w: failed to execute template: %w", entity.ErrRender, err)
	}
	return buf.String(), nil
}

// Load returns the compiled template a reference points at. Files are read
// once per path.
func (r *Renderer) Load(ref entity.TemplateRef) (*Compiled, error) {
	if ref.Inline != "" {
		return r.Compile(ref.Inline)
	}
	if ref.Path == "" {
		return nil, fmt.Errorf("%w: no template given", entity.ErrTemplate)
	}

	src, ok := r.sources[ref.Path]
	if !ok {
		data, err := r.readFile(ref.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to read template %s: %w", entity.ErrTemplate, ref.Path, err)
		}
		src = string(data)
		r.sources[ref.Path] = src
	}
	return r.Compile(src)
}

// RenderJob loads the job's template and renders it with the job's context.
func (r *Renderer) RenderJob(job entity.ImageJob) (string, error) {
	c, err := r.Load(job.Template)
	if err != nil {
		return "", err
	}
	return r.Render(c, job.TemplateContext())
}

// CacheSize returns the number of distinct compiled templates.
func (r *Renderer) CacheSize() int {
	return len(r.compiled)
}
