package memos

import (
	"bytes"
	"html/template"

	"github.com/gomarkdown/markdown"
	mdhtml "github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
	"github.com/microcosm-cc/bluemonday"
)

const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>{{.Title}}</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            line-height: 1.6;
            max-width: 800px;
            margin: 0 auto;
            padding: 2rem 1rem;
        }
        pre, code { background-color: #f5f5f5; border-radius: 3px; }
        pre { padding: 1rem; overflow-x: auto; }
    </style>
</head>
<body>
    <article data-memo-id="{{.ID}}">
        <h1>{{.Title}}</h1>
        {{.Body}}
    </article>
</body>
</html>`

var page = template.Must(template.New("memo").Parse(pageTemplate))

type pageData struct {
	ID    int64
	Title string
	Body  template.HTML
}

// RenderHTML renders a memo's contents as Markdown inside a standalone HTML
// page. The Markdown output is sanitized; the title is escaped by the template.
func RenderHTML(m Memo) ([]byte, error) {
	var buf bytes.Buffer
	err := page.Execute(&buf, pageData{
		ID:    m.ID,
		Title: m.Title,
		Body:  RenderMarkdown(m.Contents),
	})
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// RenderMarkdown converts Markdown to sanitized HTML.
func RenderMarkdown(s string) template.HTML {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs | parser.NoEmptyLineBeforeBlock)
	doc := p.Parse([]byte(s))

	renderer := mdhtml.NewRenderer(mdhtml.RendererOptions{
		Flags: mdhtml.CommonFlags | mdhtml.HrefTargetBlank,
	})
	raw := markdown.Render(doc, renderer)

	return template.HTML(bluemonday.UGCPolicy().SanitizeBytes(raw))
}
