package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/reviewhub/binder"
	"github.com/dmitrymomot/reviewhub/handler"
	"github.com/dmitrymomot/reviewhub/pkg/requestid"
)

type echoRequest struct {
	ID   string `path:"id"`
	Name string `json:"name"`
	Loud bool   `query:"loud"`
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) handler.JSONResponse {
	t.Helper()
	var body handler.JSONResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestWrap(t *testing.T) {
	t.Parallel()

	params := map[string]string{"id": "42"}
	path := binder.Path(func(_ *http.Request, name string) string { return params[name] })

	echo := func(ctx handler.Context, req echoRequest) handler.Response {
		name := req.Name
		if req.Loud {
			name = strings.ToUpper(name)
		}
		return handler.JSON(map[string]string{"id": req.ID, "name": name})
	}

	t.Run("applies binders in order", func(t *testing.T) {
		t.Parallel()
		h := handler.Wrap(echo, handler.WithBinders[handler.Context, echoRequest](path, binder.Query(), binder.JSON()))

		r := httptest.NewRequest(http.MethodPost, "/?loud=true", strings.NewReader(`{"name":"acme"}`))
		r.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h(rec, r)

		require.Equal(t, http.StatusOK, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, map[string]any{"id": "42", "name": "ACME"}, body.Data)
	})

	t.Run("skips non applicable binders", func(t *testing.T) {
		t.Parallel()
		h := handler.Wrap(echo, handler.WithBinders[handler.Context, echoRequest](path, binder.JSON()))

		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("binding failure goes to error handler", func(t *testing.T) {
		t.Parallel()
		var got error
		h := handler.Wrap(echo,
			handler.WithBinder[handler.Context, echoRequest](binder.JSON()),
			handler.WithErrorHandler[handler.Context, echoRequest](func(ctx handler.Context, err error) {
				got = err
				ctx.ResponseWriter().WriteHeader(http.StatusTeapot)
			}),
		)

		r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
		r.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h(rec, r)

		assert.Equal(t, http.StatusTeapot, rec.Code)
		assert.ErrorIs(t, got, binder.ErrInvalidJSON)
	})

	t.Run("default error handler maps binding errors", func(t *testing.T) {
		t.Parallel()
		h := handler.Wrap(echo, handler.WithBinder[handler.Context, echoRequest](binder.JSON()))

		rec := httptest.NewRecorder()
		h(rec, httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`)))

		assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
		assert.Equal(t, "unsupported_media_type", decode(t, rec).Error.Code)
	})

	t.Run("nil response", func(t *testing.T) {
		t.Parallel()
		var got error
		h := handler.Wrap(
			func(handler.Context, echoRequest) handler.Response { return nil },
			handler.WithErrorHandler[handler.Context, echoRequest](func(ctx handler.Context, err error) { got = err }),
		)
		h(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.ErrorIs(t, got, handler.ErrNilResponse)
	})

	t.Run("decorators run outermost first", func(t *testing.T) {
		t.Parallel()
		var order []string
		trace := func(name string) handler.Decorator[handler.Context, echoRequest] {
			return func(next handler.HandlerFunc[handler.Context, echoRequest]) handler.HandlerFunc[handler.Context, echoRequest] {
				return func(ctx handler.Context, req echoRequest) handler.Response {
					order = append(order, name)
					return next(ctx, req)
				}
			}
		}
		h := handler.Wrap(echo, handler.WithDecorators(trace("outer"), trace("inner")))
		h(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, []string{"outer", "inner"}, order)
	})
}

func TestJSONError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"http error", handler.ErrConflict, http.StatusConflict, "conflict", "conflict"},
		{"wrapped http error", fmt.Errorf("%w: busy", handler.ErrConflict), http.StatusConflict, "conflict", "conflict: busy"},
		{"server error hides cause", fmt.Errorf("%w: dial tcp", handler.ErrBadGateway), http.StatusBadGateway, "bad_gateway", "Bad Gateway"},
		{"plain error", errors.New("db down"), http.StatusInternalServerError, "internal_server_error", "Internal Server Error"},
		{"binding error", fmt.Errorf("%w: skip", binder.ErrInvalidQuery), http.StatusBadRequest, "bad_request", "invalid query parameter: skip"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			rec := httptest.NewRecorder()
			require.NoError(t, handler.JSONError(tt.err).Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)))

			assert.Equal(t, tt.status, rec.Code)
			body := decode(t, rec)
			require.NotNil(t, body.Error)
			assert.Equal(t, tt.code, body.Error.Code)
			assert.Equal(t, tt.message, body.Error.Message)
		})
	}

	t.Run("validation error", func(t *testing.T) {
		t.Parallel()
		verr := handler.NewValidationError()
		verr.Add("paymentMethodId", "is required")

		rec := httptest.NewRecorder()
		require.NoError(t, handler.JSONError(verr).Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)))

		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "validation_error", body.Error.Code)
		assert.Equal(t, []string{"is required"}, body.Error.Details["paymentMethodId"])
	})
}

func TestJSONOptions(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	resp := handler.JSON([]int{1}, handler.WithJSONStatus(http.StatusCreated), handler.WithJSONMeta(map[string]any{"total": 1}))
	require.NoError(t, resp.Render(rec, httptest.NewRequest(http.MethodGet, "/", nil)))

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "application/json; charset=utf-8", rec.Header().Get("Content-Type"))
	body := decode(t, rec)
	assert.Equal(t, []any{float64(1)}, body.Data)
	assert.Equal(t, float64(1), body.Meta["total"])
}

func TestEmpty(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	require.NoError(t, handler.Empty().Render(rec, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, rec.Body.Len())

	rec = httptest.NewRecorder()
	require.NoError(t, handler.EmptyWithStatus(http.StatusAccepted).Render(rec, nil))
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestNewErrorHandler(t *testing.T) {
	t.Parallel()

	errDomain := errors.New("already subscribed")
	mapper := func(err error) (handler.HTTPError, bool) {
		if errors.Is(err, errDomain) {
			return handler.ErrConflict, true
		}
		return handler.HTTPError{}, false
	}

	var logs bytes.Buffer
	log := slog.New(slog.NewJSONHandler(&logs, nil))
	onError := handler.NewErrorHandler(log, mapper)

	r := httptest.NewRequest(http.MethodPost, "/companies/c1/subscription", nil)
	r = r.WithContext(requestid.WithContext(r.Context(), "req-1"))

	t.Run("mapped domain error", func(t *testing.T) {
		rec := httptest.NewRecorder()
		onError(handler.NewContext(rec, r), fmt.Errorf("subscribe: %w", errDomain))

		assert.Equal(t, http.StatusConflict, rec.Code)
		body := decode(t, rec)
		assert.Equal(t, "conflict", body.Error.Code)
		assert.Equal(t, "subscribe: already subscribed", body.Error.Message)
		assert.Contains(t, logs.String(), `"request_id":"req-1"`)
		assert.Contains(t, logs.String(), `"level":"WARN"`)
	})

	t.Run("unmapped error is internal", func(t *testing.T) {
		logs.Reset()
		rec := httptest.NewRecorder()
		onError(handler.NewContext(rec, r), errors.New("boom"))

		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Equal(t, "Internal Server Error", decode(t, rec).Error.Message)
		assert.Contains(t, logs.String(), `"level":"ERROR"`)
	})
}

func TestContextValue(t *testing.T) {
	t.Parallel()

	key := handler.NewContextKey("user")
	assert.Equal(t, "user", key.String())

	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(context.WithValue(r.Context(), key, "u1"))
	ctx := handler.NewContext(httptest.NewRecorder(), r)

	assert.Equal(t, "u1", handler.ContextValue[string](ctx, key))
	_, ok := handler.ContextValueOK[int](ctx, key)
	assert.False(t, ok)
	assert.Same(t, r, ctx.Request())
}
