package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		body        string
		contentType string
		want        Kind
	}{
		{name: "json object", body: `{"name":"x"}`, want: KindManifest},
		{name: "json with bom", body: "\ufeff  {\"name\":\"x\"}", want: KindManifest},
		{name: "json despite html type", body: `{}`, contentType: "text/html", want: KindManifest},
		{name: "json array", body: `[{"name":"x"}]`, want: KindUnknown},
		{name: "doctype", body: `<!DOCTYPE html><p>hi</p>`, want: KindDocument},
		{name: "body tag", body: `<BODY>hi</BODY>`, want: KindDocument},
		{name: "html content type", body: `<p>fragment</p>`, contentType: "text/html; charset=utf-8", want: KindDocument},
		{name: "plain text", body: `hello`, contentType: "text/plain", want: KindUnknown},
		{name: "broken json", body: `{"name":`, contentType: "application/json", want: KindUnknown},
		{name: "empty", body: ``, want: KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			got := Classify([]byte(tc.body), tc.contentType)
			assert.Equal(t, tc.want, got.Kind)
			if tc.want == KindManifest {
				assert.NotNil(t, got.Manifest)
			}
		})
	}
}

func TestOriginOf(t *testing.T) {
	t.Parallel()

	origin, ok := originOf("https://Ex.com:8443/a/b?q=1")
	assert.True(t, ok)
	assert.Equal(t, "https://Ex.com:8443/", origin)

	_, ok = originOf("ftp://ex.com/")
	assert.False(t, ok)
	_, ok = originOf("")
	assert.False(t, ok)
}

func TestIsRemote(t *testing.T) {
	t.Parallel()

	assert.True(t, IsRemote(" HTTPS://ex.com"))
	assert.True(t, IsRemote("http://ex.com"))
	assert.False(t, IsRemote("{}"))
	assert.False(t, IsRemote("ex.com"))
}
