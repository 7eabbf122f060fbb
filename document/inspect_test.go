package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspect_SelfContained(t *testing.T) {
	html := `<!doctype html><html><head>
<link rel="canonical" href="https://example.com/a">
<style>body { background: url(data:image/png;base64,AAAA) }</style>
</head><body>
<img src="data:image/gif;base64,R0lGOD">
<a href="https://example.com">link</a>
<script>console.log(1)</script>
<iframe src="about:blank"></iframe>
</body></html>`

	report, err := Inspect(html)
	require.NoError(t, err)
	assert.False(t, report.HasExternal(), "resources: %+v", report.Resources)
}

func TestInspect_External(t *testing.T) {
	html := `<html><head>
<link rel="stylesheet" href="https://cdn.example.com/site.css">
<style>@import "theme.css"; h1 { background: url('/bg.png') }</style>
<script src="//cdn.example.com/app.js"></script>
</head><body>
<img srcset="small.jpg 1x, large.jpg 2x">
<div style="background-image: url(https://example.com/hero.jpg)"></div>
</body></html>`

	report, err := Inspect(html)
	require.NoError(t, err)
	require.True(t, report.HasExternal())

	urls := make([]string, 0, len(report.Resources))
	for _, r := range report.Resources {
		urls = append(urls, r.URL)
	}
	assert.ElementsMatch(t, []string{
		"https://cdn.example.com/site.css",
		"theme.css",
		"/bg.png",
		"//cdn.example.com/app.js",
		"small.jpg",
		"large.jpg",
		"https://example.com/hero.jpg",
	}, urls)
}

func TestReport_NilHasNoExternal(t *testing.T) {
	var r *Report
	assert.False(t, r.HasExternal())
}
