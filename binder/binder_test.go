package binder_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/reviewhub/binder"
)

type subscribeRequest struct {
	CompanyID string   `path:"companyID"`
	PriceID   string   `json:"priceId"`
	Immediate bool     `query:"immediate"`
	Skip      int      `query:"skip"`
	Limit     *int     `query:"limit"`
	Tags      []string `query:"tag"`
	Internal  string
}

func TestJSON(t *testing.T) {
	t.Parallel()

	bind := binder.JSON()

	t.Run("decodes body", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"priceId":"price_1"}`))
		r.Header.Set("Content-Type", "application/json; charset=utf-8")

		var req subscribeRequest
		require.NoError(t, bind(r, &req))
		assert.Equal(t, "price_1", req.PriceID)
	})

	t.Run("skips body-less methods", func(t *testing.T) {
		t.Parallel()
		for _, method := range []string{http.MethodGet, http.MethodDelete} {
			r := httptest.NewRequest(method, "/", nil)
			var req subscribeRequest
			assert.ErrorIs(t, bind(r, &req), binder.ErrBinderNotApplicable)
		}
	})

	t.Run("missing content type", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
		var req subscribeRequest
		assert.ErrorIs(t, bind(r, &req), binder.ErrMissingContentType)
	})

	t.Run("wrong content type", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`a=b`))
		r.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		var req subscribeRequest
		assert.ErrorIs(t, bind(r, &req), binder.ErrUnsupportedMediaType)
	})

	t.Run("rejects malformed input", func(t *testing.T) {
		t.Parallel()
		bodies := map[string]string{
			"empty":         ``,
			"syntax":        `{"priceId":`,
			"unknown field": `{"priceId":"p","extra":1}`,
			"wrong type":    `{"priceId":1}`,
			"trailing data": `{"priceId":"p"} {"priceId":"q"}`,
		}
		for name, body := range bodies {
			r := httptest.NewRequest(http.MethodPut, "/", strings.NewReader(body))
			r.Header.Set("Content-Type", "application/json")
			var req subscribeRequest
			assert.ErrorIs(t, bind(r, &req), binder.ErrInvalidJSON, name)
		}
	})

	t.Run("rejects oversized body", func(t *testing.T) {
		t.Parallel()
		body := `{"priceId":"` + strings.Repeat("x", binder.DefaultMaxJSONSize) + `"}`
		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
		r.Header.Set("Content-Type", "application/json")
		var req subscribeRequest
		assert.ErrorIs(t, bind(r, &req), binder.ErrInvalidJSON)
	})
}

func TestQuery(t *testing.T) {
	t.Parallel()

	t.Run("binds tagged fields only", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodGet, "/?immediate=true&skip=20&limit=5&tag=a,b&tag=c&internal=x", nil)

		var req subscribeRequest
		require.NoError(t, binder.Query()(r, &req))
		assert.True(t, req.Immediate)
		assert.Equal(t, 20, req.Skip)
		require.NotNil(t, req.Limit)
		assert.Equal(t, 5, *req.Limit)
		assert.Equal(t, []string{"a", "b", "c"}, req.Tags)
		assert.Empty(t, req.Internal)
	})

	t.Run("absent optional stays nil", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		var req subscribeRequest
		require.NoError(t, binder.Query()(r, &req))
		assert.Nil(t, req.Limit)
		assert.False(t, req.Immediate)
	})

	t.Run("invalid number", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodGet, "/?skip=ten", nil)
		var req subscribeRequest
		assert.ErrorIs(t, binder.Query()(r, &req), binder.ErrInvalidQuery)
	})

	t.Run("lenient bools", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodGet, "/?immediate=yes", nil)
		var req subscribeRequest
		require.NoError(t, binder.Query()(r, &req))
		assert.True(t, req.Immediate)
	})

	t.Run("target must be struct pointer", func(t *testing.T) {
		t.Parallel()
		r := httptest.NewRequest(http.MethodGet, "/?skip=1", nil)
		var req subscribeRequest
		assert.ErrorIs(t, binder.Query()(r, req), binder.ErrInvalidQuery)
		var n int
		assert.ErrorIs(t, binder.Query()(r, &n), binder.ErrInvalidQuery)
	})
}

func TestPath(t *testing.T) {
	t.Parallel()

	params := map[string]string{"companyID": "c1"}
	extractor := func(_ *http.Request, name string) string { return params[name] }

	r := httptest.NewRequest(http.MethodGet, "/companies/c1", nil)
	var req subscribeRequest
	require.NoError(t, binder.Path(extractor)(r, &req))
	assert.Equal(t, "c1", req.CompanyID)

	assert.ErrorIs(t, binder.Path(nil)(r, &req), binder.ErrInvalidPath)
}
