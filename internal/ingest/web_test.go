package ingest

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallhq/recall/internal/config"
	"github.com/recallhq/recall/internal/testutil"
)

const articleHTML = `<!DOCTYPE html>
<html lang="en">
<head><title>Solar Sails Explained</title></head>
<body>
<article>
<h1>Solar Sails Explained</h1>
<p>A solar sail is a spacecraft propulsion method that uses radiation
pressure from sunlight pushing on large reflective membranes. Because
photons carry momentum, a sufficiently large and light sail accelerates
continuously without carrying propellant.</p>
<p>The thrust is tiny compared to chemical rockets, but it never runs
out. Over months of sunlight a solar sail can reach speeds that would
require enormous amounts of fuel with conventional engines.</p>
<p>Missions such as IKAROS and LightSail 2 demonstrated controlled
solar sailing in orbit, steering by changing the angle of the sail
relative to the incoming light.</p>
</article>
</body>
</html>`

func fetchTestConfig() config.WebFetchConfig {
	// httptest servers listen on loopback, so the SSRF guard is off.
	return config.WebFetchConfig{Parallelism: 1, DelayMs: 0, TimeoutMs: 5000, AllowPrivateHosts: true}
}

func TestFetcher_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/article" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, articleHTML)
	}))
	defer srv.Close()

	f := NewFetcher(fetchTestConfig(), testutil.DiscardLogger())

	page, err := f.Fetch(context.Background(), srv.URL+"/article")
	require.NoError(t, err)

	assert.Equal(t, srv.URL+"/article", page.URL)
	assert.True(t, strings.Contains(page.Text, "solar sail") ||
		strings.Contains(page.Text, "Solar Sails"),
		"page text should contain article content, got: %q", page.Text)
	assert.NotContains(t, page.Text, "<p>")
}

func TestFetcher_Fetch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	f := NewFetcher(fetchTestConfig(), testutil.DiscardLogger())

	_, err := f.Fetch(context.Background(), srv.URL+"/missing")
	require.Error(t, err)
}

func TestFetcher_Fetch_BadScheme(t *testing.T) {
	f := NewFetcher(fetchTestConfig(), testutil.DiscardLogger())

	_, err := f.Fetch(context.Background(), "ftp://example.com/file")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "scheme")
}

func TestFetcher_Fetch_BlocksPrivateTargets(t *testing.T) {
	f := NewFetcher(config.WebFetchConfig{TimeoutMs: 5000}, testutil.DiscardLogger())

	for _, target := range []string{
		"http://127.0.0.1:8080/admin",
		"http://localhost/secrets",
		"http://169.254.169.254/latest/meta-data/",
		"http://192.168.1.1/router",
	} {
		_, err := f.Fetch(context.Background(), target)
		require.Error(t, err, "fetch of %s must be rejected", target)
	}
}

func TestFetcher_Fetch_ContextCanceled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, articleHTML)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewFetcher(fetchTestConfig(), testutil.DiscardLogger())

	_, err := f.Fetch(ctx, srv.URL)
	require.Error(t, err)
}
