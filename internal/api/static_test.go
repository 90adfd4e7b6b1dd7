package api

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func parseIndex(t *testing.T) *html.Node {
	t.Helper()
	doc, err := html.Parse(bytes.NewReader(indexHTML))
	require.NoError(t, err)
	return doc
}

// findElementByID walks the tree and returns the first element with the
// given id attribute.
func findElementByID(n *html.Node, id string) *html.Node {
	if n.Type == html.ElementNode && getAttribute(n, "id") == id {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElementByID(c, id); found != nil {
			return found
		}
	}
	return nil
}

// findElementByTag walks the tree and returns the first element with the
// given tag name.
func findElementByTag(n *html.Node, tag string) *html.Node {
	if n.Type == html.ElementNode && n.Data == tag {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElementByTag(c, tag); found != nil {
			return found
		}
	}
	return nil
}

func getAttribute(n *html.Node, key string) string {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return attr.Val
		}
	}
	return ""
}

func hasAttribute(n *html.Node, key string) bool {
	for _, attr := range n.Attr {
		if attr.Key == key {
			return true
		}
	}
	return false
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(getAttribute(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func textContent(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(textContent(c))
	}
	return sb.String()
}

func TestIndexHTML_Parses(t *testing.T) {
	doc := parseIndex(t)

	title := findElementByTag(doc, "title")
	require.NotNil(t, title, "page should have a title")
	assert.Equal(t, "recall", textContent(title))

	htmlEl := findElementByTag(doc, "html")
	require.NotNil(t, htmlEl)
	assert.Equal(t, "en", getAttribute(htmlEl, "lang"))
}

func TestIndexHTML_ChatElements(t *testing.T) {
	doc := parseIndex(t)

	messages := findElementByID(doc, "messages")
	require.NotNil(t, messages, "chat needs a message container")

	askForm := findElementByID(doc, "askForm")
	require.NotNil(t, askForm, "chat needs an ask form")
	assert.Equal(t, "form", askForm.Data)
	assert.True(t, hasClass(askForm, "ask"))

	query := findElementByID(doc, "query")
	require.NotNil(t, query)
	assert.Equal(t, "input", query.Data)
	assert.Equal(t, "text", getAttribute(query, "type"))

	askBtn := findElementByID(doc, "askBtn")
	require.NotNil(t, askBtn)
	assert.Equal(t, "submit", getAttribute(askBtn, "type"))
}

func TestIndexHTML_UploadElements(t *testing.T) {
	doc := parseIndex(t)

	uploadForm := findElementByID(doc, "uploadForm")
	require.NotNil(t, uploadForm, "sidebar needs a file upload form")

	fileInput := findElementByID(doc, "file")
	require.NotNil(t, fileInput)
	assert.Equal(t, "file", getAttribute(fileInput, "type"))
	assert.True(t, hasAttribute(fileInput, "multiple"),
		"batch upload needs multiple file selection")

	// accept list has to match the formats the ingestion pipeline parses
	for _, ext := range []string{".pdf", ".docx", ".txt", ".md", ".html"} {
		assert.Contains(t, getAttribute(fileInput, "accept"), ext)
	}

	urlForm := findElementByID(doc, "urlForm")
	require.NotNil(t, urlForm, "sidebar needs a URL ingestion form")

	pageURL := findElementByID(doc, "pageUrl")
	require.NotNil(t, pageURL)
	assert.Equal(t, "url", getAttribute(pageURL, "type"))

	docs := findElementByID(doc, "docs")
	require.NotNil(t, docs, "sidebar needs a document list container")
}

func TestIndexHTML_ScriptTargetsAPIRoutes(t *testing.T) {
	doc := parseIndex(t)

	script := findElementByTag(doc, "script")
	require.NotNil(t, script)
	body := textContent(script)

	for _, route := range []string{
		"/query", "/documents", "/upload", "/upload-batch", "/upload-url",
	} {
		assert.Contains(t, body, `"`+route+`"`, "script should call %s", route)
	}
}

func TestServeIndex_Headers(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	serveIndex(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "text/html; charset=utf-8", rec.Header().Get("Content-Type"))
	assert.Equal(t, "no-cache", rec.Header().Get("Cache-Control"))
	assert.Equal(t, indexHTML, rec.Body.Bytes())
}
