package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"contentpay/backend/internal/auth"
	"contentpay/backend/internal/generator"
	"contentpay/backend/internal/ledger"
	"contentpay/backend/internal/logging"
	"contentpay/backend/internal/orchestrator"
	"contentpay/backend/internal/pipeline"
	"contentpay/backend/internal/registry"
	"contentpay/backend/internal/repository"
)

type testEnv struct {
	e      *echo.Echo
	server *Server
	svc    *pipeline.Service
}

func newTestEnv(t *testing.T, caller string) *testEnv {
	t.Helper()
	logger := logging.Nop()
	svc, err := pipeline.New(
		orchestrator.New(logger),
		ledger.New(repository.NewMemoryLedgerStore(), logger),
		registry.New(repository.NewMemoryContentStore(), logger),
		generator.NewMockGenerator(0, 0, logger),
		0,
		logger,
	)
	require.NoError(t, err)

	s := NewServer(svc, logger)
	e := echo.New()
	e.HTTPErrorHandler = s.ErrorHandler
	e.GET("/health", s.HandleHealth)

	group := e.Group("/api")
	if caller != "" {
		group.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
			return func(c echo.Context) error {
				c.SetRequest(c.Request().WithContext(auth.WithCaller(c.Request().Context(), caller)))
				return next(c)
			}
		})
	}
	RegisterHandlers(group, s)
	return &testEnv{e: e, server: s, svc: svc}
}

func (env *testEnv) do(t *testing.T, method, path, body string) (int, map[string]any) {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	env.e.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	}
	return rec.Code, out
}

func (env *testEnv) fund(t *testing.T, userID string, amount string) {
	t.Helper()
	code, _ := env.do(t, http.MethodPost, "/api/add-funds", `{"userId":"`+userID+`","amount":`+amount+`}`)
	require.Equal(t, http.StatusOK, code)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "")

	code, body := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ok", body["status"])

	env.server.AddHealthCheck("database", func(context.Context) error { return errors.New("connection refused") })
	code, body = env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "degraded", body["status"])
}

func TestGenerate_Success(t *testing.T) {
	env := newTestEnv(t, "")
	env.fund(t, "u", "50.00")

	code, body := env.do(t, http.MethodPost, "/api/generate", `{"prompt":"a haiku","contentType":"text-generation","userId":"u"}`)
	require.Equal(t, http.StatusOK, code, body)
	assert.Equal(t, true, body["success"])
	assert.True(t, strings.HasPrefix(body["jobId"].(string), "x402_"))

	payment := body["payment"].(map[string]any)
	assert.Equal(t, 0.05, payment["amount"])
	ownership := body["ownership"].(map[string]any)
	assert.Equal(t, "u", ownership["owner"])
	assert.Equal(t, payment["id"], ownership["paymentTransaction"])
	content := body["content"].(map[string]any)
	assert.Equal(t, ownership["id"], content["contentId"])

	results := body["results"].(map[string]any)
	assert.Len(t, results, 4)

	code, dash := env.do(t, http.MethodGet, "/api/dashboard/u", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 49.95, dash["balance"])
	stats := dash["stats"].(map[string]any)
	assert.Equal(t, float64(1), stats["totalContent"])
	assert.Equal(t, 0.05, stats["totalSpent"])
}

func TestGenerate_Failures(t *testing.T) {
	env := newTestEnv(t, "")
	env.fund(t, "poor", "0.10")

	tests := []struct {
		name   string
		body   string
		detail string
	}{
		{
			name:   "missing prompt",
			body:   `{"contentType":"text-generation","userId":"poor"}`,
			detail: "Missing required fields: prompt, contentType, userId",
		},
		{
			name:   "insufficient balance",
			body:   `{"prompt":"p","contentType":"image-generation","userId":"poor"}`,
			detail: "Insufficient balance. Required: $0.25, Available: $0.10",
		},
		{
			name:   "unknown service type",
			body:   `{"prompt":"p","contentType":"hologram","userId":"poor"}`,
			detail: "Unknown service type: hologram",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := env.do(t, http.MethodPost, "/api/generate", tt.body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, tt.detail, body["error"])
			assert.True(t, strings.HasPrefix(body["instance"].(string), "/api/jobs/x402_"))
		})
	}

	code, body := env.do(t, http.MethodPost, "/api/generate", `{not json`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, body["success"])
}

func TestGetJob(t *testing.T) {
	env := newTestEnv(t, "")
	env.fund(t, "u", "1.00")

	_, body := env.do(t, http.MethodPost, "/api/generate", `{"prompt":"p","contentType":"text-generation","userId":"u"}`)
	jobID := body["jobId"].(string)

	code, job := env.do(t, http.MethodGet, "/api/jobs/"+jobID, "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "completed", job["status"])

	code, _ = env.do(t, http.MethodGet, "/api/jobs/x402_missing", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestContentAndProof(t *testing.T) {
	env := newTestEnv(t, "")
	env.fund(t, "u", "1.00")

	_, body := env.do(t, http.MethodPost, "/api/generate", `{"prompt":"p","contentType":"image-generation","userId":"u"}`)
	contentID := body["ownership"].(map[string]any)["id"].(string)

	code, details := env.do(t, http.MethodGet, "/api/content/"+contentID, "")
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, details["ownershipHistory"], 1)
	assert.Equal(t, "high", details["metadata"].(map[string]any)["quality"])

	code, missing := env.do(t, http.MethodGet, "/api/content/content_nope", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Content not found", missing["error"])

	code, proof := env.do(t, http.MethodGet, "/api/proof/"+contentID+"/u", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, proof["success"])
	assert.Len(t, proof["proof"].(map[string]any)["proofHash"], 64)

	code, denied := env.do(t, http.MethodGet, "/api/proof/"+contentID+"/mallory", "")
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "Ownership proof not available", denied["error"])
}

func TestTransfer(t *testing.T) {
	env := newTestEnv(t, "")
	env.fund(t, "u", "1.00")

	_, body := env.do(t, http.MethodPost, "/api/generate", `{"prompt":"p","contentType":"text-generation","userId":"u"}`)
	contentID := body["ownership"].(map[string]any)["id"].(string)

	code, resp := env.do(t, http.MethodPost, "/api/transfer", `{"contentId":"`+contentID+`","currentOwner":"mallory","newOwner":"v"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "Only current owner can transfer ownership", resp["error"])

	code, resp = env.do(t, http.MethodPost, "/api/transfer", `{"contentId":"`+contentID+`","currentOwner":"u","newOwner":"v"}`)
	require.Equal(t, http.StatusOK, code, resp)
	assert.Equal(t, "v", resp["content"].(map[string]any)["owner"])

	code, _ = env.do(t, http.MethodPost, "/api/transfer", `{"contentId":"content_nope","currentOwner":"u","newOwner":"v"}`)
	assert.Equal(t, http.StatusNotFound, code)

	code, _ = env.do(t, http.MethodPost, "/api/transfer", `{"contentId":"`+contentID+`"}`)
	assert.Equal(t, http.StatusBadRequest, code)

	_, stats := env.do(t, http.MethodGet, "/api/stats", "")
	assert.Equal(t, float64(1), stats["platform"].(map[string]any)["totalTransfers"])
}

func TestAddFunds(t *testing.T) {
	env := newTestEnv(t, "")

	code, body := env.do(t, http.MethodPost, "/api/add-funds", `{"userId":"u","amount":10.5}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 10.5, body["newBalance"])

	code, body = env.do(t, http.MethodPost, "/api/add-funds", `{"userId":"u","amount":"2.25"}`)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 12.75, body["newBalance"])

	code, _ = env.do(t, http.MethodPost, "/api/add-funds", `{"userId":"u","amount":-1}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.do(t, http.MethodPost, "/api/add-funds", `{"userId":"u","amount":0.001}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.do(t, http.MethodPost, "/api/add-funds", `{"userId":"u","amount":184467440737095516.21}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, _ = env.do(t, http.MethodPost, "/api/add-funds", `{"userId":"big","amount":92233720368547758.07}`)
	require.Equal(t, http.StatusOK, code)
	code, _ = env.do(t, http.MethodPost, "/api/add-funds", `{"userId":"big","amount":0.01}`)
	assert.Equal(t, http.StatusBadRequest, code)

	code, body = env.do(t, http.MethodGet, "/api/dashboard/u", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 12.75, body["balance"])
}

func TestRatesAndStats(t *testing.T) {
	env := newTestEnv(t, "")

	code, body := env.do(t, http.MethodGet, "/api/rates", "")
	require.Equal(t, http.StatusOK, code)
	rates := body["rates"].(map[string]any)
	assert.Equal(t, 0.25, rates["image-generation"])
	assert.Equal(t, float64(1), rates["video-generation"])
	assert.NotEmpty(t, body["models"])

	code, body = env.do(t, http.MethodGet, "/api/stats", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []any{"ai-content-generation"}, body["workflows"])
}

func TestAuthenticatedCallerCannotActForOthers(t *testing.T) {
	env := newTestEnv(t, "alice@example.com")

	code, body := env.do(t, http.MethodGet, "/api/dashboard/bob@example.com", "")
	assert.Equal(t, http.StatusForbidden, code)
	assert.Equal(t, "Forbidden", body["title"])

	code, _ = env.do(t, http.MethodPost, "/api/add-funds", `{"userId":"bob@example.com","amount":1}`)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = env.do(t, http.MethodPost, "/api/generate", `{"prompt":"p","contentType":"text-generation","userId":"bob@example.com"}`)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = env.do(t, http.MethodGet, "/api/dashboard/alice@example.com", "")
	assert.Equal(t, http.StatusOK, code)
}

func TestSpecAndDocs(t *testing.T) {
	rec := httptest.NewRecorder()
	SpecHandler("https://example.okta.com/oauth2/default")(rec, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "https://example.okta.com/oauth2/default/v1/authorize")
	assert.NotContains(t, rec.Body.String(), "{oktaIssuer}")

	rec = httptest.NewRecorder()
	SwaggerHandler("swagger-client")(rec, httptest.NewRequest(http.MethodGet, "/docs", nil))
	assert.Contains(t, rec.Body.String(), `clientId: "swagger-client"`)
	assert.Contains(t, rec.Body.String(), "http://example.com/docs/oauth2-redirect.html")
}
