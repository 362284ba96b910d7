package blocklist

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/fetch-manifest/internal/manifest"
)

func TestMatcher(t *testing.T) {
	t.Parallel()

	t.Run("exact match", func(t *testing.T) {
		t.Parallel()
		bl := New([]string{"Example.org"})
		require.NotNil(t, bl)
		assert.True(t, bl.IsBlocked("example.org"))
		assert.True(t, bl.IsBlocked("EXAMPLE.org."))
		assert.False(t, bl.IsBlocked("sub.example.org"), "subdomains do not match exact entries")
	})

	t.Run("wildcard suffix", func(t *testing.T) {
		t.Parallel()
		bl := New([]string{"*.internal", ".local", "*."})
		require.NotNil(t, bl)
		cases := []struct {
			host    string
			blocked bool
		}{
			{"metadata.internal", true},
			{"a.b.internal", true},
			{"internal", true},
			{"printer.local", true},
			{"example.com", false},
			{"notinternal", false},
		}
		for _, tc := range cases {
			assert.Equal(t, tc.blocked, bl.IsBlocked(tc.host), tc.host)
		}
	})

	t.Run("empty patterns", func(t *testing.T) {
		t.Parallel()
		assert.Nil(t, New([]string{" ", ""}))
	})

	t.Run("nil matcher", func(t *testing.T) {
		t.Parallel()
		var bl *Matcher
		assert.False(t, bl.IsBlocked("anything"))
	})
}

type stubFetcher struct {
	calls int
	last  manifest.FetchRequest
}

func (s *stubFetcher) Fetch(_ context.Context, req manifest.FetchRequest) (manifest.FetchResponse, error) {
	s.calls++
	s.last = req
	return manifest.FetchResponse{URL: req.URL, StatusCode: http.StatusOK}, nil
}

func TestFetcher(t *testing.T) {
	t.Parallel()

	next := &stubFetcher{}
	assert.Same(t, next, Wrap(next, nil))

	f := Wrap(next, New([]string{"localhost", "*.internal"}))

	_, err := f.Fetch(context.Background(), manifest.FetchRequest{URL: "http://localhost:8080/manifest.json"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrHostBlocked))
	assert.True(t, errors.Is(err, manifest.ErrFetchFailed))

	_, err = f.Fetch(context.Background(), manifest.FetchRequest{URL: "http://metadata.internal/"})
	require.ErrorIs(t, err, ErrHostBlocked)
	assert.Equal(t, 0, next.calls)

	resp, err := f.Fetch(context.Background(), manifest.FetchRequest{URL: "https://example.com/"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, next.calls)
}

func TestFetcherGuardsRedirectHosts(t *testing.T) {
	t.Parallel()

	next := &stubFetcher{}
	f := Wrap(next, New([]string{"*.internal"}))

	_, err := f.Fetch(context.Background(), manifest.FetchRequest{
		URL:       "https://example.com/",
		AllowHost: func(host string) bool { return host != "denied.example" },
	})
	require.NoError(t, err)
	require.NotNil(t, next.last.AllowHost)
	assert.False(t, next.last.HostAllowed("metadata.internal"))
	assert.False(t, next.last.HostAllowed("denied.example"), "an existing host check is kept")
	assert.True(t, next.last.HostAllowed("example.com"))
}
