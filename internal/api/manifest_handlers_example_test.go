package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"

	"go.uber.org/zap"
)

// ExampleManifestHandler_GetManifest shows the error shape returned for an
// invalid url parameter.
func ExampleManifestHandler_GetManifest() {
	handler := NewManifestHandler(&fakeResolver{}, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/manifest?url=example.com", nil)
	rec := httptest.NewRecorder()
	handler.GetManifest(rec, req)

	fmt.Println(rec.Code)
	fmt.Print(rec.Body.String())
	// Output:
	// 400
	// {"error":"\"url\" must be an http or https URL"}
}
