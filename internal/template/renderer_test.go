package template

import (
	"errors"
	"os"
	"testing"

	"github.com/gkampitakis/go-snaps/snaps"

	"github.com/user/cardshot/internal/entity"
)

func TestMain(m *testing.M) {
	v := m.Run()
	snaps.Clean(m)
	os.Exit(v)
}

func TestRender(t *testing.T) {
	tests := []struct {
		name   string
		source string
		data   map[string]any
		want   string
	}{
		{
			name:   "variable substitution",
			source: "<h1>{{.title}}</h1>",
			data:   map[string]any{"title": "Hello"},
			want:   "<h1>Hello</h1>",
		},
		{
			name:   "missing field renders empty",
			source: "<h1>{{.title}}</h1><p>{{.subtitle}}</p>",
			data:   map[string]any{"title": "Hello"},
			want:   "<h1>Hello</h1><p></p>",
		},
		{
			name:   "missing nested field under present parent renders empty",
			source: "<p>{{.author.name}}</p>",
			data:   map[string]any{"author": map[string]any{"handle": "@x"}},
			want:   "<p></p>",
		},
		{
			name:   "conditional on missing field is false",
			source: "{{if .subtitle}}<p>{{.subtitle}}</p>{{else}}none{{end}}",
			data:   map[string]any{},
			want:   "none",
		},
		{
			name:   "loop",
			source: "{{range .tags}}<li>{{.}}</li>{{end}}",
			data:   map[string]any{"tags": []any{"go", "chrome"}},
			want:   "<li>go</li><li>chrome</li>",
		},
		{
			name:   "values are escaped",
			source: "<p>{{.text}}</p>",
			data:   map[string]any{"text": "<b>&</b>"},
			want:   "<p>&lt;b&gt;&amp;&lt;/b&gt;</p>",
		},
		{
			name:   "default helper fills missing value",
			source: `<p>{{.tag | default "news"}}</p>`,
			data:   map[string]any{},
			want:   "<p>news</p>",
		},
		{
			name:   "default helper keeps present value",
			source: `<p>{{.tag | default "news"}}</p>`,
			data:   map[string]any{"tag": "sports"},
			want:   "<p>sports</p>",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRenderer()
			c, err := r.Compile(tt.source)
			if err != nil {
				t.Fatalf("Compile() error = %v", err)
			}
			got, err := r.Render(c, tt.data)
			if err != nil {
				t.Fatalf("Render() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("Render() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderIsDeterministic(t *testing.T) {
	r := NewRenderer()
	job := entity.ImageJob{
		Template: entity.TemplateRef{Inline: "<h1>{{.title}}</h1>{{range .tags}}<i>{{.}}</i>{{end}}"},
		Data:     map[string]any{"title": "Same", "tags": []any{"a", "b"}},
		Width:    1200,
		Height:   630,
		Path:     "out/a.png",
	}

	first, err := r.RenderJob(job)
	if err != nil {
		t.Fatalf("RenderJob() error = %v", err)
	}
	second, err := r.RenderJob(job)
	if err != nil {
		t.Fatalf("RenderJob() error = %v", err)
	}
	if first != second {
		t.Errorf("RenderJob() not deterministic:\n%q\n%q", first, second)
	}
}

func TestRenderJobContext(t *testing.T) {
	r := NewRenderer()
	job := entity.ImageJob{
		Template: entity.TemplateRef{Inline: "{{.width}}x{{.height}} {{.path}} {{.title}}"},
		Data:     map[string]any{"title": "T"},
		Width:    800,
		Height:   400,
		Path:     "out/card.jpg",
	}

	got, err := r.RenderJob(job)
	if err != nil {
		t.Fatalf("RenderJob() error = %v", err)
	}
	if want := "800x400 out/card.jpg T"; got != want {
		t.Errorf("RenderJob() = %q, want %q", got, want)
	}
}

func TestCompileCache(t *testing.T) {
	r := NewRenderer()

	a, err := r.Compile("<p>{{.a}}</p>")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	b, err := r.Compile("<p>{{.a}}</p>")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if a != b {
		t.Error("identical sources should share one compiled template")
	}
	if r.CacheSize() != 1 {
		t.Errorf("CacheSize() = %d, want 1", r.CacheSize())
	}

	c, err := r.Compile("<p>{{.b}}</p>")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	if c == a {
		t.Error("distinct sources should compile independently")
	}
	if r.CacheSize() != 2 {
		t.Errorf("CacheSize() = %d, want 2", r.CacheSize())
	}
}

func TestCompileSyntaxError(t *testing.T) {
	r := NewRenderer()
	_, err := r.Compile("<h1>{{.title</h1>")
	if !errors.Is(err, entity.ErrTemplate) {
		t.Errorf("Compile() error = %v, want ErrTemplate", err)
	}
}

func TestRenderThroughMissingParent(t *testing.T) {
	r := NewRenderer()
	c, err := r.Compile("<p>{{.author.name}}</p>")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	got, err := r.Render(c, map[string]any{})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if got != "<p></p>" {
		t.Errorf("Render() = %q, want %q", got, "<p></p>")
	}
}

func TestRenderExecutionError(t *testing.T) {
	r := NewRenderer()
	c, err := r.Compile("<p>{{index .title 99}}</p>")
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	_, err = r.Render(c, map[string]any{"title": "short"})
	if !errors.Is(err, entity.ErrRender) {
		t.Errorf("Render() error = %v, want ErrRender", err)
	}
}

func TestLoadReadsEachPathOnce(t *testing.T) {
	r := NewRenderer()
	reads := 0
	r.readFile = func(path string) ([]byte, error) {
		reads++
		switch path {
		case "a.html":
			return []byte("<p>{{.x}}</p>"), nil
		case "b.html":
			return []byte("<p>{{.x}}</p>"), nil
		}
		return nil, os.ErrNotExist
	}

	for _, p := range []string{"a.html", "a.html", "b.html"} {
		if _, err := r.Load(entity.TemplateRef{Path: p}); err != nil {
			t.Fatalf("Load(%q) error = %v", p, err)
		}
	}
	if reads != 2 {
		t.Errorf("reads = %d, want 2", reads)
	}
	// a.html and b.html have the same content.
	if r.CacheSize() != 1 {
		t.Errorf("CacheSize() = %d, want 1", r.CacheSize())
	}

	_, err := r.Load(entity.TemplateRef{Path: "missing.html"})
	if !errors.Is(err, entity.ErrTemplate) {
		t.Errorf("Load(missing) error = %v, want ErrTemplate", err)
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Load(missing) error = %v, want wrapped os.ErrNotExist", err)
	}
}

func TestLoadEmptyRef(t *testing.T) {
	r := NewRenderer()
	if _, err := r.Load(entity.TemplateRef{}); !errors.Is(err, entity.ErrTemplate) {
		t.Errorf("Load() error = %v, want ErrTemplate", err)
	}
}

func TestRenderCardSnapshot(t *testing.T) {
	r := NewRenderer()
	c, err := r.Compile(`<div class="card"><h1>{{.title}}</h1>{{markdown .body}}<span>{{.tag | default "news"}}</span></div>`)
	if err != nil {
		t.Fatalf("Compile() error = %v", err)
	}
	got, err := r.Render(c, map[string]any{
		"title": "Tom & Jerry",
		"body":  "**Hello** _world_",
	})
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	snaps.MatchSnapshot(t, got)
}
