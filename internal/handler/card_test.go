package handler_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/deppfellow/cardrelay/internal/config"
	"github.com/deppfellow/cardrelay/internal/handler"
	"github.com/deppfellow/cardrelay/internal/middleware"
	"github.com/deppfellow/cardrelay/internal/router"
	"github.com/deppfellow/cardrelay/internal/server"
	"github.com/deppfellow/cardrelay/internal/service"
	"github.com/deppfellow/cardrelay/internal/trellotest"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type app struct {
	echo     *echo.Echo
	board    *trellotest.Server
	spoolDir string
}

func newApp(t *testing.T, configure ...func(*config.Config)) *app {
	t.Helper()

	board := trellotest.NewServer(t)
	spoolDir := t.TempDir()

	cfg := &config.Config{
		Primary: config.Primary{Env: "test"},
		Server: config.ServerConfig{
			Port:      "0",
			Path:      "/",
			BodyLimit: config.DefaultBodyLimit,
		},
		Trello: board.Config(),
		Upload: config.UploadConfig{
			FormVariant: config.FormVariantFixed,
			MaxFileSize: config.DefaultMaxFileSize,
			TempDir:     spoolDir,
		},
		Observability: config.DefaultObservabilityConfig(),
	}
	for _, fn := range configure {
		fn(cfg)
	}

	logger := zerolog.New(zerolog.NewTestWriter(t))
	srv, err := server.New(cfg, &logger, nil)
	require.NoError(t, err)

	services := service.NewServices(srv)
	handlers := handler.NewHandlers(srv, services)
	middlewares := middleware.NewMiddlewares(srv)

	return &app{
		echo:     router.NewRouter(srv, handlers, middlewares),
		board:    board,
		spoolDir: spoolDir,
	}
}

func (a *app) submit(t *testing.T, target string, form *trellotest.Form) *httptest.ResponseRecorder {
	t.Helper()

	body, contentType, err := form.Body()
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, target, body)
	req.Header.Set("Content-Type", contentType)
	return a.do(req)
}

func (a *app) do(req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	a.echo.ServeHTTP(rec, req)
	return rec
}

func (a *app) assertSpoolEmpty(t *testing.T) {
	t.Helper()

	entries, err := os.ReadDir(a.spoolDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "spooled files must be removed when the request ends")
}

func assertText(t *testing.T, rec *httptest.ResponseRecorder, status int, body string) {
	t.Helper()

	assert.Equal(t, status, rec.Code)
	assert.Equal(t, body, rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get(echo.HeaderContentType), echo.MIMETextPlain))
}

func validForm() *trellotest.Form {
	return trellotest.NewForm().
		Field("name", "Broken lamp").
		Field("desc", "Flickers").
		File("cover", "lamp.png", "image/png", trellotest.PNG()).
		File("attachments[]", "report.pdf", "application/pdf", trellotest.PDF())
}

func TestCreateCard_OK(t *testing.T) {
	a := newApp(t)

	rec := a.submit(t, "/", validForm())
	assertText(t, rec, http.StatusOK, "OK")

	cards := a.board.Cards(trellotest.TestListID)
	require.Len(t, cards, 1)
	assert.True(t, strings.HasPrefix(cards[0].Name, "Broken lamp ["))
	assert.Len(t, a.board.Attachments(cards[0].ID), 2)

	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
	a.assertSpoolEmpty(t)
}

func TestCreateCard_ClientErrors(t *testing.T) {
	tests := []struct {
		name    string
		form    *trellotest.Form
		status  int
		message string
	}{
		{
			name:    "missing fields",
			form:    trellotest.NewForm().Field("name", "n"),
			status:  http.StatusBadRequest,
			message: "insufficient data",
		},
		{
			name: "cover is not an image",
			form: trellotest.NewForm().Field("name", "n").Field("desc", "d").
				File("cover", "doc.pdf", "application/pdf", trellotest.PDF()),
			status:  http.StatusForbidden,
			message: "type application/pdf is not allowed for doc.pdf",
		},
		{
			name: "declared type does not match",
			form: trellotest.NewForm().Field("name", "n").Field("desc", "d").
				File("attachments", "a.png", "image/png", trellotest.Text()),
			status:  http.StatusBadRequest,
			message: "wrong type text/plain for a.png",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newApp(t)

			rec := a.submit(t, "/", tt.form)
			assertText(t, rec, tt.status, tt.message)

			assert.Zero(t, a.board.TotalCalls())
			a.assertSpoolEmpty(t)
		})
	}
}

func TestCreateCard_BoardFailure(t *testing.T) {
	a := newApp(t)
	a.board.Fail(trellotest.RouteCreateCard, http.StatusInternalServerError)

	rec := a.submit(t, "/", validForm())
	assertText(t, rec, http.StatusBadGateway, "unable to create card")

	assert.NotContains(t, rec.Body.String(), trellotest.TestToken)
	a.assertSpoolEmpty(t)
}

func TestCreateCard_UnreadableBodies(t *testing.T) {
	a := newApp(t)

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"n","desc":"d"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	assertText(t, a.do(req), http.StatusBadRequest, "insufficient data")

	req = httptest.NewRequest(http.MethodPost, "/", strings.NewReader("--x\r\ngarbage"))
	req.Header.Set(echo.HeaderContentType, "multipart/form-data; boundary=y")
	assertText(t, a.do(req), http.StatusBadRequest, "insufficient data")

	assert.Zero(t, a.board.TotalCalls())
}

func TestCreateCard_CustomPath(t *testing.T) {
	a := newApp(t, func(cfg *config.Config) { cfg.Server.Path = "/submit" })

	assertText(t, a.submit(t, "/submit", validForm()), http.StatusOK, "OK")
	assertText(t, a.submit(t, "/", validForm()), http.StatusNotFound, "route not found")
}

func TestCreateCard_BodyLimit(t *testing.T) {
	a := newApp(t, func(cfg *config.Config) { cfg.Server.BodyLimit = "1K" })

	form := trellotest.NewForm().Field("name", "n").Field("desc", "d").
		File("attachments", "big.txt", "text/plain", bytes.Repeat([]byte("a"), 4096))

	rec := a.submit(t, "/", form)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Zero(t, a.board.TotalCalls())
}

func TestCreateCard_BodyLimitChunked(t *testing.T) {
	tests := []struct {
		name string
		form *trellotest.Form
	}{
		{
			name: "file over the limit",
			form: trellotest.NewForm().Field("name", "n").Field("desc", "d").
				File("attachments", "big.txt", "text/plain", bytes.Repeat([]byte("a"), 4096)),
		},
		{
			name: "text field over the limit",
			form: trellotest.NewForm().Field("name", "n").Field("desc", strings.Repeat("d", 4096)),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := newApp(t, func(cfg *config.Config) { cfg.Server.BodyLimit = "1K" })

			body, contentType, err := tt.form.Body()
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodPost, "/", body)
			req.Header.Set(echo.HeaderContentType, contentType)
			// No declared length, so the limit is only hit while reading.
			req.ContentLength = -1

			rec := a.do(req)
			assertText(t, rec, http.StatusRequestEntityTooLarge, http.StatusText(http.StatusRequestEntityTooLarge))

			assert.Zero(t, a.board.TotalCalls())
			a.assertSpoolEmpty(t)
		})
	}
}

func TestCreateCard_RateLimit(t *testing.T) {
	a := newApp(t, func(cfg *config.Config) { cfg.Server.RateLimit = 1 })

	assertText(t, a.submit(t, "/", validForm()), http.StatusOK, "OK")
	assertText(t, a.submit(t, "/", validForm()), http.StatusTooManyRequests, "too many submissions")

	assert.Len(t, a.board.Cards(trellotest.TestListID), 1)
}

func TestRequestIDIsEchoed(t *testing.T) {
	a := newApp(t)

	body, contentType, err := validForm().Body()
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	req.Header.Set(middleware.RequestIDHeader, "req-123")

	rec := a.do(req)
	assert.Equal(t, "req-123", rec.Header().Get(middleware.RequestIDHeader))
}

func TestCheckHealth(t *testing.T) {
	t.Run("no checks", func(t *testing.T) {
		a := newApp(t)

		rec := a.do(httptest.NewRequest(http.MethodGet, "/status", nil))
		require.Equal(t, http.StatusOK, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "healthy", body["status"])
		assert.Equal(t, "test", body["environment"])
		assert.Zero(t, a.board.TotalCalls())
	})

	withTrelloCheck := func(cfg *config.Config) {
		cfg.Observability.HealthChecks.Checks = []string{config.CheckTrello}
	}

	t.Run("board reachable", func(t *testing.T) {
		a := newApp(t, withTrelloCheck)

		rec := a.do(httptest.NewRequest(http.MethodGet, "/status", nil))
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, 1, a.board.Calls(trellotest.RouteGetList))
	})

	t.Run("board failing", func(t *testing.T) {
		a := newApp(t, withTrelloCheck)
		a.board.Fail(trellotest.RouteGetList, http.StatusServiceUnavailable)

		rec := a.do(httptest.NewRequest(http.MethodGet, "/status", nil))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var body map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "unhealthy", body["status"])
	})
}
