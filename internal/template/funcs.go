package template

import (
	"bytes"
	htmltemplate "html/template"

	chromahtml "github.com/alecthomas/chroma/v2/formatters/html"
	"github.com/yuin/goldmark"
	highlighting "github.com/yuin/goldmark-highlighting/v2"
	"github.com/yuin/goldmark/extension"
)

func newMarkdown() goldmark.Markdown {
	return goldmark.New(
		goldmark.WithExtensions(
			extension.GFM,
			highlighting.NewHighlighting(
				highlighting.WithStyle("github"),
				highlighting.WithFormatOptions(chromahtml.WithLineNumbers(false)),
			),
		),
	)
}

func (r *Renderer) funcs() htmltemplate.FuncMap {
	return htmltemplate.FuncMap{
		"markdown": r.markdown,
		"default":  defaultValue,
	}
}

// markdown converts a data string to HTML. The output is trusted: card data
// comes from the operator's own config file.
func (r *Renderer) markdown(src any) (htmltemplate.HTML, error) {
	s, _ := src.(string)
	if s == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(s), &buf); err != nil {
		return "", err
	}
	return htmltemplate.HTML(buf.String()), nil
}

// defaultValue returns def when v is nil or an empty string.
func defaultValue(def, v any) any {
	if v == nil {
		return def
	}
	if s, ok := v.(string); ok && s == "" {
		return def
	}
	return v
}
