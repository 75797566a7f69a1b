package httputil

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter)
		status int
		body   string
	}{
		{"bad request", func(w http.ResponseWriter) { BadRequest(w, "nope") }, 400, `{"error":"nope"}`},
		{"not found", func(w http.ResponseWriter) { NotFound(w, "gone") }, 404, `{"error":"gone"}`},
		{"method", MethodNotAllowed, 405, `{"error":"method not allowed"}`},
		{"internal", func(w http.ResponseWriter) { InternalServerError(w, "boom") }, 500, `{"error":"boom"}`},
		{"ok", func(w http.ResponseWriter) { WriteJSONOK(w, []int{1, 2}) }, 200, `[1,2]`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			tt.write(rec)
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
			assert.JSONEq(t, tt.body, rec.Body.String())
		})
	}
}

func TestClient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/ok":
			WriteJSONOK(w, map[string]int{"n": 3})
		case "/form":
			WriteJSONOK(w, map[string]string{"got": r.FormValue("enabled")})
		case "/plain":
			http.Error(w, "teapot", http.StatusTeapot)
		default:
			NotFound(w, "no route")
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL+"/", srv.Client())
	ctx := context.Background()

	var got map[string]int
	require.NoError(t, c.GetJSON(ctx, "/ok", &got))
	assert.Equal(t, 3, got["n"])

	var form map[string]string
	require.NoError(t, c.PostForm(ctx, "/form", url.Values{"enabled": {"true"}}, &form))
	assert.Equal(t, "true", form["got"])
	require.NoError(t, c.PostForm(ctx, "/form", nil, nil))

	var serr *StatusError
	err := c.GetJSON(ctx, "/missing", &got)
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, &StatusError{Code: 404, Message: "no route"}, serr)

	err = c.GetJSON(ctx, "/plain", &got)
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, "http 418", serr.Error())
}
