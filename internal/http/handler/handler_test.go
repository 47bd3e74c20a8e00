package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"webdsl/internal/auth"
	"webdsl/internal/broker"
	"webdsl/internal/connector"
	"webdsl/internal/http/middleware"
	"webdsl/internal/model"
	"webdsl/internal/repository"
	"webdsl/internal/restproxy"
	"webdsl/internal/service"
	serviceMocks "webdsl/internal/service/mocks"
	"webdsl/internal/storage"
	"webdsl/pkg/wire"
)

func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(b)
}

func postJSON(t *testing.T, path string, v any) *http.Request {
	req := httptest.NewRequest(http.MethodPost, path, jsonBody(t, v))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func decodeError(t *testing.T, resp *http.Response) errorPayload {
	t.Helper()
	var res errorPayload
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	return res
}

func TestHealthCheck(t *testing.T) {
	db, dbMock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer db.Close()

	app := fiber.New()
	app.Get("/health", HealthCheck(db))

	t.Run("healthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(nil)

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var body map[string]string
		json.NewDecoder(resp.Body).Decode(&body)
		assert.Equal(t, "healthy", body["status"])
	})

	t.Run("unhealthy", func(t *testing.T) {
		dbMock.ExpectPing().WillReturnError(errors.New("db error"))

		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
		assert.Equal(t, "SERVICE_UNAVAILABLE", decodeError(t, resp).Error.Code)
	})
}

func TestGatewayHealth(t *testing.T) {
	mockSvc := new(serviceMocks.MockProxyService)
	app := fiber.New()
	app.Get("/health", GatewayHealth(mockSvc))

	mockSvc.On("Health", mock.Anything).Return([]string(nil)).Once()
	resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	mockSvc.On("Health", mock.Anything).Return([]string{"broker:mqtt", "db:main"}).Once()
	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	res := decodeError(t, resp)
	assert.Equal(t, "SERVICE_UNAVAILABLE", res.Error.Code)
	assert.Contains(t, res.Error.Message, "broker:mqtt, db:main")
	mockSvc.AssertExpectations(t)
}

func TestLivenessProbe(t *testing.T) {
	app := fiber.New()
	app.Get("/healthz", LivenessProbe())

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	resp, _ := app.Test(req)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRestCall(t *testing.T) {
	tests := []struct {
		name       string
		resp       *restproxy.Response
		err        error
		wantStatus int
		wantCode   string
	}{
		{
			name:       "relays upstream status and body",
			resp:       &restproxy.Response{StatusCode: http.StatusCreated, Body: json.RawMessage(`{"temp":21.5}`)},
			wantStatus: http.StatusCreated,
		},
		{
			name:       "invalid target",
			err:        fmt.Errorf("%w: host or base_url is required", restproxy.ErrInvalidTarget),
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name:       "host not allowed",
			err:        fmt.Errorf("%w: evil.example", restproxy.ErrHostNotAllowed),
			wantStatus: http.StatusForbidden,
			wantCode:   "HOST_NOT_ALLOWED",
		},
		{
			name:       "non-JSON upstream",
			err:        restproxy.ErrUpstreamInvalidResponse,
			wantStatus: http.StatusBadGateway,
			wantCode:   "UPSTREAM_INVALID_RESPONSE",
		},
		{
			name:       "upstream down",
			err:        fmt.Errorf("%w: connection refused", restproxy.ErrUpstreamUnavailable),
			wantStatus: http.StatusBadGateway,
			wantCode:   "UPSTREAM_UNAVAILABLE",
		},
		{
			name:       "unexpected error",
			err:        errors.New("boom"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := new(serviceMocks.MockProxyService)
			app := fiber.New()
			app.Post("/restcall", RestCall(mockSvc))

			req := wire.RestCallRequest{Name: "weather", Path: "/now"}
			if tt.err != nil {
				mockSvc.On("RestCall", mock.Anything, req).Return(nil, tt.err).Once()
			} else {
				mockSvc.On("RestCall", mock.Anything, req).Return(tt.resp, nil).Once()
			}

			resp, err := app.Test(postJSON(t, "/restcall", req))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, resp).Error.Code)
			} else {
				b, _ := io.ReadAll(resp.Body)
				assert.JSONEq(t, string(tt.resp.Body), string(b))
				assert.Contains(t, resp.Header.Get("Content-Type"), "application/json")
			}
			mockSvc.AssertExpectations(t)
		})
	}

	t.Run("invalid body", func(t *testing.T) {
		app := fiber.New()
		app.Post("/restcall", RestCall(new(serviceMocks.MockProxyService)))
		req := httptest.NewRequest(http.MethodPost, "/restcall", bytes.NewBufferString("{"))
		req.Header.Set("Content-Type", "application/json")
		resp, _ := app.Test(req)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_BODY", decodeError(t, resp).Error.Code)
	})
}

func TestQueryDB(t *testing.T) {
	tests := []struct {
		name       string
		req        wire.DBQueryRequest
		setupMocks func(m *serviceMocks.MockProxyService)
		wantStatus int
		wantCode   string
	}{
		{
			name: "rows",
			req:  wire.DBQueryRequest{ConnectionName: "main", Database: "building", Query: "SELECT 1"},
			setupMocks: func(m *serviceMocks.MockProxyService) {
				m.On("QueryDB", mock.Anything, mock.Anything).
					Return([]map[string]any{{"id": 1}}, nil).Once()
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing connection name",
			req:        wire.DBQueryRequest{Query: "SELECT 1"},
			setupMocks: func(m *serviceMocks.MockProxyService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name: "unknown connection",
			req:  wire.DBQueryRequest{ConnectionName: "nope"},
			setupMocks: func(m *serviceMocks.MockProxyService) {
				m.On("QueryDB", mock.Anything, mock.Anything).
					Return(nil, fmt.Errorf("%w: nope", connector.ErrUnknownConnection)).Once()
			},
			wantStatus: http.StatusNotFound,
			wantCode:   "UNKNOWN_CONNECTION",
		},
		{
			name: "invalid request",
			req:  wire.DBQueryRequest{ConnectionName: "main"},
			setupMocks: func(m *serviceMocks.MockProxyService) {
				m.On("QueryDB", mock.Anything, mock.Anything).
					Return(nil, fmt.Errorf("%w: query is required", connector.ErrInvalidRequest)).Once()
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name: "driver failure",
			req:  wire.DBQueryRequest{ConnectionName: "main", Query: "SELEC"},
			setupMocks: func(m *serviceMocks.MockProxyService) {
				m.On("QueryDB", mock.Anything, mock.Anything).
					Return(nil, errors.New("syntax error")).Once()
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "DB_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := new(serviceMocks.MockProxyService)
			tt.setupMocks(mockSvc)
			app := fiber.New()
			app.Post("/queryDB", QueryDB(mockSvc))

			resp, err := app.Test(postJSON(t, "/queryDB", tt.req))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, resp).Error.Code)
			} else {
				var rows []map[string]any
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&rows))
				assert.Equal(t, float64(1), rows[0]["id"])
			}
			mockSvc.AssertExpectations(t)
		})
	}
}

func TestModifyDB(t *testing.T) {
	mockSvc := new(serviceMocks.MockProxyService)
	app := fiber.New()
	app.Post("/modifyDB", ModifyDB(mockSvc))

	req := wire.DBModifyRequest{ConnectionName: "docs", Collection: "lights", Modification: "insert", NewData: map[string]any{"on": true}}
	mockSvc.On("ModifyDB", mock.Anything, mock.Anything).
		Return(wire.ModifyResult{Status: wire.StatusSuccess, Affected: 1, InsertedID: "abc"}, nil).Once()

	resp, err := app.Test(postJSON(t, "/modifyDB", req))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var res wire.ModifyResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Equal(t, int64(1), res.Affected)
	assert.Equal(t, "abc", res.InsertedID)

	mockSvc.On("ModifyDB", mock.Anything, mock.Anything).
		Return(wire.ModifyResult{}, fmt.Errorf("%w: docs", connector.ErrUnknownConnection)).Once()
	resp, _ = app.Test(postJSON(t, "/modifyDB", req))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	mockSvc.AssertExpectations(t)
}

func TestPublish(t *testing.T) {
	tests := []struct {
		name       string
		status     wire.Status
		err        error
		wantStatus int
	}{
		{"published", wire.Status{Status: wire.StatusSuccess, Message: "Published message to lights"}, nil, http.StatusOK},
		{"unknown broker", wire.Status{Status: wire.StatusError, Message: "unknown broker: x"}, broker.ErrUnknownBroker, http.StatusNotFound},
		{"empty message", wire.Status{Status: wire.StatusError, Message: "empty message"}, broker.ErrEmptyMessage, http.StatusBadRequest},
		{"broker failure", wire.Status{Status: wire.StatusError, Message: "broker not connected"}, broker.ErrNotConnected, http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := new(serviceMocks.MockProxyService)
			app := fiber.New()
			app.Post("/publish", Publish(mockSvc))

			req := wire.PublishRequest{Broker: "mqtt", Topic: "lights", Message: map[string]any{"on": true}}
			mockSvc.On("Publish", mock.Anything, req).Return(tt.status, tt.err).Once()

			resp, err := app.Test(postJSON(t, "/publish", req))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			var got wire.Status
			require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
			assert.Equal(t, tt.status, got)
			mockSvc.AssertExpectations(t)
		})
	}
}

func TestAuthRoutes(t *testing.T) {
	sess := auth.Session{
		ID:        "sid-1",
		Username:  "alice",
		Roles:     []string{"admin"},
		WSToken:   "tok-1",
		ExpiresAt: time.Now().Add(time.Hour),
	}
	cookie := SessionCookie{Name: "webdsl_session"}

	newApp := func(authSvc *serviceMocks.MockAuthService) *fiber.App {
		app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
		app.Use(middleware.RequestID())
		RegisterGatewayRoutes(app, GatewayDeps{
			Proxy:  new(serviceMocks.MockProxyService),
			Auth:   authSvc,
			Cookie: cookie,
		})
		return app
	}

	t.Run("login sets cookie", func(t *testing.T) {
		authSvc := new(serviceMocks.MockAuthService)
		authSvc.On("Enabled").Return(true)
		authSvc.On("Login", mock.Anything, "alice", "pw").Return(sess, nil).Once()

		resp, err := newApp(authSvc).Test(postJSON(t, "/auth/login", wire.LoginRequest{Username: "alice", Password: "pw"}))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var me wire.Me
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&me))
		assert.Equal(t, wire.Me{Username: "alice", Roles: []string{"admin"}, WSToken: "tok-1"}, me)

		require.Len(t, resp.Cookies(), 1)
		assert.Equal(t, "webdsl_session", resp.Cookies()[0].Name)
		assert.Equal(t, "sid-1", resp.Cookies()[0].Value)
		assert.True(t, resp.Cookies()[0].HttpOnly)
		authSvc.AssertExpectations(t)
	})

	t.Run("wrong password", func(t *testing.T) {
		authSvc := new(serviceMocks.MockAuthService)
		authSvc.On("Enabled").Return(true)
		authSvc.On("Login", mock.Anything, "alice", "bad").Return(auth.Session{}, auth.ErrInvalidCredentials).Once()

		resp, _ := newApp(authSvc).Test(postJSON(t, "/auth/login", wire.LoginRequest{Username: "alice", Password: "bad"}))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		res := decodeError(t, resp)
		assert.Equal(t, "INVALID_CREDENTIALS", res.Error.Code)
		assert.NotEmpty(t, res.RequestID)
	})

	t.Run("auth disabled", func(t *testing.T) {
		authSvc := new(serviceMocks.MockAuthService)
		authSvc.On("Enabled").Return(false)

		resp, _ := newApp(authSvc).Test(postJSON(t, "/auth/login", wire.LoginRequest{Username: "alice", Password: "pw"}))
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "AUTH_DISABLED", decodeError(t, resp).Error.Code)
	})

	t.Run("me with session", func(t *testing.T) {
		authSvc := new(serviceMocks.MockAuthService)
		authSvc.On("Session", mock.Anything, "sid-1").Return(sess, nil).Once()

		req := httptest.NewRequest(http.MethodGet, "/me", nil)
		req.Header.Set("Cookie", "webdsl_session=sid-1")
		resp, _ := newApp(authSvc).Test(req)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var me wire.Me
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&me))
		assert.Equal(t, "tok-1", me.WSToken)
	})

	t.Run("me without session", func(t *testing.T) {
		resp, _ := newApp(new(serviceMocks.MockAuthService)).Test(httptest.NewRequest(http.MethodGet, "/me", nil))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "UNAUTHORIZED", decodeError(t, resp).Error.Code)
	})

	t.Run("logout", func(t *testing.T) {
		authSvc := new(serviceMocks.MockAuthService)
		authSvc.On("Logout", mock.Anything, "sid-1").Return(nil).Once()

		req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
		req.Header.Set("Cookie", "webdsl_session=sid-1")
		resp, _ := newApp(authSvc).Test(req)
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var st wire.Status
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&st))
		assert.Equal(t, wire.StatusSuccess, st.Status)
		authSvc.AssertExpectations(t)
	})
}

func TestGatewayRequireAuth(t *testing.T) {
	proxySvc := new(serviceMocks.MockProxyService)
	authSvc := new(serviceMocks.MockAuthService)
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	RegisterGatewayRoutes(app, GatewayDeps{Proxy: proxySvc, Auth: authSvc, RequireAuth: true})

	resp, err := app.Test(postJSON(t, "/queryDB", wire.DBQueryRequest{ConnectionName: "main"}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "UNAUTHORIZED", decodeError(t, resp).Error.Code)

	authSvc.On("Session", mock.Anything, "sid").Return(auth.Session{ID: "sid", Username: "bob"}, nil).Once()
	proxySvc.On("QueryDB", mock.Anything, mock.Anything).Return([]map[string]any{}, nil).Once()
	req := postJSON(t, "/queryDB", wire.DBQueryRequest{ConnectionName: "main"})
	req.Header.Set("Cookie", "webdsl_session=sid")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	proxySvc.AssertExpectations(t)
	authSvc.AssertExpectations(t)
}

func TestCreateDeployment(t *testing.T) {
	tests := []struct {
		name       string
		body       any
		setupMocks func(m *serviceMocks.MockDeploymentService)
		wantStatus int
		wantCode   string
	}{
		{
			name: "accepted",
			body: createDeploymentRequest{ModelStr: "Screen Home {}", UserID: "u1"},
			setupMocks: func(m *serviceMocks.MockDeploymentService) {
				m.On("Create", mock.Anything, service.CreateDeploymentInput{ModelStr: "Screen Home {}", UserID: "u1"}).
					Return(&service.CreateDeploymentResult{UID: "a1b2c3d4", Status: model.StatusPending}, nil).Once()
			},
			wantStatus: http.StatusAccepted,
		},
		{
			name: "missing model",
			body: createDeploymentRequest{UserID: "u1"},
			setupMocks: func(m *serviceMocks.MockDeploymentService) {
				m.On("Create", mock.Anything, mock.Anything).Return(nil, service.ErrModelRequired).Once()
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name: "storage failure",
			body: createDeploymentRequest{ModelStr: "x", UserID: "u1"},
			setupMocks: func(m *serviceMocks.MockDeploymentService) {
				m.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("upload model: timeout")).Once()
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := new(serviceMocks.MockDeploymentService)
			tt.setupMocks(mockSvc)
			app := fiber.New()
			app.Post("/deploy", CreateDeployment(mockSvc))

			resp, err := app.Test(postJSON(t, "/deploy", tt.body))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, resp).Error.Code)
			} else {
				var res service.CreateDeploymentResult
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
				assert.Equal(t, "a1b2c3d4", res.UID)
			}
			mockSvc.AssertExpectations(t)
		})
	}
}

func TestListDeployments(t *testing.T) {
	mockSvc := new(serviceMocks.MockDeploymentService)
	app := fiber.New()
	app.Get("/deploy", ListDeployments(mockSvc))
	app.Get("/deploy/public", ListPublicDeployments(mockSvc))
	app.Get("/deploy/user/:user_id", ListUserDeployments(mockSvc))

	list := &service.DeploymentListResult{Items: []model.Deployment{{UID: "a1b2c3d4"}}, Total: 1}

	t.Run("status filter and paging", func(t *testing.T) {
		mockSvc.On("List", mock.Anything, repository.DeploymentFilter{Status: "running"}, 10, 5).Return(list, nil).Once()
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/deploy?status=running&limit=10&offset=5", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		var res service.DeploymentListResult
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
		assert.Equal(t, 1, res.Total)
	})

	t.Run("public", func(t *testing.T) {
		f := repository.DeploymentFilter{Status: model.StatusRunning, PublicOnly: true}
		mockSvc.On("List", mock.Anything, f, 50, 0).Return(list, nil).Once()
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/deploy/public", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("by user", func(t *testing.T) {
		mockSvc.On("List", mock.Anything, repository.DeploymentFilter{UserID: "u1"}, 50, 0).Return(list, nil).Once()
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/deploy/user/u1", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("invalid limit", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/deploy?limit=abc", nil))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_LIMIT", decodeError(t, resp).Error.Code)
	})

	t.Run("invalid offset", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/deploy?offset=-1", nil))
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
		assert.Equal(t, "INVALID_OFFSET", decodeError(t, resp).Error.Code)
	})

	mockSvc.AssertExpectations(t)
}

func TestGetDeployment(t *testing.T) {
	mockSvc := new(serviceMocks.MockDeploymentService)
	app := fiber.New()
	app.Get("/deploy/:uid", GetDeployment(mockSvc))

	t.Run("success", func(t *testing.T) {
		mockSvc.On("Get", mock.Anything, "a1b2c3d4").
			Return(&model.Deployment{UID: "a1b2c3d4", AppPassword: "secret"}, nil).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/deploy/a1b2c3d4", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)

		b, _ := io.ReadAll(resp.Body)
		assert.Contains(t, string(b), `"deployment_uid":"a1b2c3d4"`)
		assert.NotContains(t, string(b), "secret")
	})

	t.Run("not found", func(t *testing.T) {
		mockSvc.On("Get", mock.Anything, "missing").Return(nil, service.ErrNotFound).Once()

		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/deploy/missing", nil))
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Error.Code)
	})

	mockSvc.AssertExpectations(t)
}

func TestUpdateDeploymentStatus(t *testing.T) {
	mockSvc := new(serviceMocks.MockDeploymentService)
	app := fiber.New()
	app.Put("/deploy/:uid/status", UpdateDeploymentStatus(mockSvc))

	url := "http://apps.local/apps/a1b2c3d4/"
	mockSvc.On("UpdateStatus", mock.Anything, "a1b2c3d4", service.StatusReport{Status: "running", URL: &url}).
		Return(&model.Deployment{UID: "a1b2c3d4", Status: "running"}, nil).Once()
	mockSvc.On("UpdateStatus", mock.Anything, "a1b2c3d4", service.StatusReport{Status: "exploded"}).
		Return(nil, fmt.Errorf("%w: %q", service.ErrInvalidStatus, "exploded")).Once()

	req := httptest.NewRequest(http.MethodPut, "/deploy/a1b2c3d4/status", jsonBody(t, service.StatusReport{Status: "running", URL: &url}))
	req.Header.Set("Content-Type", "application/json")
	resp, _ := app.Test(req)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req = httptest.NewRequest(http.MethodPut, "/deploy/a1b2c3d4/status", jsonBody(t, service.StatusReport{Status: "exploded"}))
	req.Header.Set("Content-Type", "application/json")
	resp, _ = app.Test(req)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_REQUEST", decodeError(t, resp).Error.Code)

	mockSvc.AssertExpectations(t)
}

func TestKillDeployment(t *testing.T) {
	tests := []struct {
		name       string
		msg        string
		err        error
		wantStatus int
	}{
		{"killed", "Deployment a1b2c3d4 killed.", nil, http.StatusOK},
		{"already killed", "Deployment a1b2c3d4 already killed.", nil, http.StatusOK},
		{"not owner", "", service.ErrForbidden, http.StatusForbidden},
		{"unknown", "", service.ErrNotFound, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := new(serviceMocks.MockDeploymentService)
			app := fiber.New()
			app.Post("/deploy/:uid/kill", KillDeployment(mockSvc))
			mockSvc.On("Kill", mock.Anything, "a1b2c3d4", "u1").Return(tt.msg, tt.err).Once()

			resp, err := app.Test(postJSON(t, "/deploy/a1b2c3d4/kill", killRequest{UserID: "u1"}))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.err == nil {
				var body map[string]string
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
				assert.Equal(t, tt.msg, body["message"])
			}
			mockSvc.AssertExpectations(t)
		})
	}
}

func TestKillAllModelAndDelete(t *testing.T) {
	mockSvc := new(serviceMocks.MockDeploymentService)
	app := fiber.New()
	app.Post("/deploy/user/:user_id/kill_all", KillAllDeployments(mockSvc))
	app.Get("/deploy/:uid/model", DeploymentModelURL(mockSvc))
	app.Delete("/deploy/:uid", DeleteDeployment(mockSvc))

	mockSvc.On("KillAll", mock.Anything, "u1").Return(&service.KillAllResult{
		Message: "Kill all for user u1 processed.",
		Results: []service.KillResult{{UID: "a1b2c3d4", Status: "success"}},
	}, nil).Once()
	resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/deploy/user/u1/kill_all", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	mockSvc.On("ModelURL", mock.Anything, "a1b2c3d4").Return("http://minio/models/a1b2c3d4?sig=1", nil).Once()
	resp, _ = app.Test(httptest.NewRequest(http.MethodGet, "/deploy/a1b2c3d4/model", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "http://minio/models/a1b2c3d4?sig=1", body["url"])

	mockSvc.On("Delete", mock.Anything, "a1b2c3d4").Return(nil).Once()
	resp, _ = app.Test(httptest.NewRequest(http.MethodDelete, "/deploy/a1b2c3d4", nil))
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	mockSvc.On("Delete", mock.Anything, "gone").Return(service.ErrNotFound).Once()
	resp, _ = app.Test(httptest.NewRequest(http.MethodDelete, "/deploy/gone", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	mockSvc.AssertExpectations(t)
}

type uploadPart struct {
	field, name, content string
}

func multipartRequest(t *testing.T, path string, files []uploadPart, fields map[string]string) *http.Request {
	t.Helper()
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	for _, f := range files {
		part, err := writer.CreateFormFile(f.field, f.name)
		require.NoError(t, err)
		_, _ = part.Write([]byte(f.content))
	}
	for k, v := range fields {
		require.NoError(t, writer.WriteField(k, v))
	}
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	return req
}

func TestCreateDeploymentFromFile(t *testing.T) {
	created := &service.CreateDeploymentResult{UID: "a1b2c3d4", Status: model.StatusPending}

	tests := []struct {
		name       string
		files      []uploadPart
		fields     map[string]string
		noForm     bool
		setupMocks func(m *serviceMocks.MockDeploymentService)
		wantStatus int
		wantCode   string
	}{
		{
			name:   "single file",
			files:  []uploadPart{{"model_files", "home.wdsl", "Webpage Home {}"}},
			fields: map[string]string{"user_id": "u1", "is_public": "true"},
			setupMocks: func(m *serviceMocks.MockDeploymentService) {
				m.On("Create", mock.Anything, service.CreateDeploymentInput{ModelStr: "Webpage Home {}", IsPublic: true, UserID: "u1"}).
					Return(created, nil).Once()
			},
			wantStatus: http.StatusCreated,
		},
		{
			name:   "file field",
			files:  []uploadPart{{"file", "home.wdsl", "Webpage Home {}"}},
			fields: map[string]string{"user_id": "u1"},
			setupMocks: func(m *serviceMocks.MockDeploymentService) {
				m.On("Create", mock.Anything, service.CreateDeploymentInput{ModelStr: "Webpage Home {}", UserID: "u1"}).
					Return(created, nil).Once()
			},
			wantStatus: http.StatusCreated,
		},
		{
			name: "main file picked by name",
			files: []uploadPart{
				{"model_files", "components.wdsl", "Component Gauge {}"},
				{"model_files", "app.wdsl", "import components.wdsl"},
			},
			fields: map[string]string{"user_id": "u1", "main_filename": "app.wdsl"},
			setupMocks: func(m *serviceMocks.MockDeploymentService) {
				m.On("Create", mock.Anything, service.CreateDeploymentInput{ModelStr: "import components.wdsl", UserID: "u1"}).
					Return(created, nil).Once()
			},
			wantStatus: http.StatusCreated,
		},
		{
			name: "several files without main",
			files: []uploadPart{
				{"model_files", "a.wdsl", "a"},
				{"model_files", "b.wdsl", "b"},
			},
			fields:     map[string]string{"user_id": "u1"},
			setupMocks: func(*serviceMocks.MockDeploymentService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "MAIN_FILE_AMBIGUOUS",
		},
		{
			name:       "unknown main file",
			files:      []uploadPart{{"model_files", "a.wdsl", "a"}},
			fields:     map[string]string{"user_id": "u1", "main_filename": "b.wdsl"},
			setupMocks: func(*serviceMocks.MockDeploymentService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "MAIN_FILE_AMBIGUOUS",
		},
		{
			name:       "no form",
			noForm:     true,
			setupMocks: func(*serviceMocks.MockDeploymentService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "FILE_REQUIRED",
		},
		{
			name:       "form without file",
			fields:     map[string]string{"user_id": "u1"},
			setupMocks: func(*serviceMocks.MockDeploymentService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "FILE_REQUIRED",
		},
		{
			name:       "bad is_public",
			files:      []uploadPart{{"model_files", "a.wdsl", "a"}},
			fields:     map[string]string{"user_id": "u1", "is_public": "maybe"},
			setupMocks: func(*serviceMocks.MockDeploymentService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name:       "binary file",
			files:      []uploadPart{{"model_files", "a.bin", "\xff\xfe\x00"}},
			fields:     map[string]string{"user_id": "u1"},
			setupMocks: func(*serviceMocks.MockDeploymentService) {},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_MODEL",
		},
		{
			name:   "empty file",
			files:  []uploadPart{{"model_files", "a.wdsl", ""}},
			fields: map[string]string{"user_id": "u1"},
			setupMocks: func(m *serviceMocks.MockDeploymentService) {
				m.On("Create", mock.Anything, service.CreateDeploymentInput{UserID: "u1"}).
					Return(nil, service.ErrModelRequired).Once()
			},
			wantStatus: http.StatusBadRequest,
			wantCode:   "INVALID_REQUEST",
		},
		{
			name:   "service error",
			files:  []uploadPart{{"model_files", "a.wdsl", "a"}},
			fields: map[string]string{"user_id": "u1"},
			setupMocks: func(m *serviceMocks.MockDeploymentService) {
				m.On("Create", mock.Anything, mock.Anything).Return(nil, errors.New("upload failed")).Once()
			},
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := new(serviceMocks.MockDeploymentService)
			app := fiber.New()
			app.Post("/deploy/file", CreateDeploymentFromFile(mockSvc))
			tt.setupMocks(mockSvc)

			req := httptest.NewRequest(http.MethodPost, "/deploy/file", nil)
			if !tt.noForm {
				req = multipartRequest(t, "/deploy/file", tt.files, tt.fields)
			}
			resp, err := app.Test(req)
			require.NoError(t, err)

			assert.Equal(t, tt.wantStatus, resp.StatusCode)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeError(t, resp).Error.Code)
			} else {
				var res service.CreateDeploymentResult
				require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
				assert.Equal(t, "a1b2c3d4", res.UID)
			}
			mockSvc.AssertExpectations(t)
		})
	}
}

func TestDeploymentModelDownload(t *testing.T) {
	mockSvc := new(serviceMocks.MockDeploymentService)
	app := fiber.New()
	app.Get("/deploy/:uid/model", DeploymentModelURL(mockSvc))

	t.Run("streams the model", func(t *testing.T) {
		mockSvc.On("OpenModel", mock.Anything, "a1b2c3d4").Return(
			io.NopCloser(strings.NewReader("Webpage Home {}")),
			storage.ObjectInfo{Size: 15, ContentType: storage.ModelContentType},
			nil,
		).Once()

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/deploy/a1b2c3d4/model?download=1", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, storage.ModelContentType, resp.Header.Get("Content-Type"))
		assert.Equal(t, `attachment; filename="model-a1b2c3d4.wdsl"`, resp.Header.Get("Content-Disposition"))
		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "Webpage Home {}", string(b))
	})

	t.Run("missing object", func(t *testing.T) {
		mockSvc.On("OpenModel", mock.Anything, "gone").Return(nil, storage.ObjectInfo{}, service.ErrModelNotFound).Once()

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/deploy/gone/model?download=true", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		res := decodeError(t, resp)
		assert.Equal(t, "NOT_FOUND", res.Error.Code)
		assert.Equal(t, "model source not found", res.Error.Message)
	})

	t.Run("download=0 keeps the presigned url", func(t *testing.T) {
		mockSvc.On("ModelURL", mock.Anything, "a1b2c3d4").Return("http://minio/signed", nil).Once()

		resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/deploy/a1b2c3d4/model?download=0", nil))
		require.NoError(t, err)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	mockSvc.AssertExpectations(t)
}

func TestRouting(t *testing.T) {
	app := fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler(),
	})

	mockSvc := new(serviceMocks.MockDeploymentService)
	RegisterPlatformRoutes(app, nil, mockSvc, "s3cret", prometheus.NewRegistry())

	t.Run("not found route", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/non-existent", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
		assert.Equal(t, "NOT_FOUND", decodeError(t, resp).Error.Code)
	})

	t.Run("method not allowed", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/health", nil)
		resp, _ := app.Test(req)

		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
		assert.Equal(t, "METHOD_NOT_ALLOWED", decodeError(t, resp).Error.Code)
	})

	t.Run("api key required", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/deploy", nil))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		assert.Equal(t, "UNAUTHORIZED", decodeError(t, resp).Error.Code)
	})

	t.Run("api key accepted", func(t *testing.T) {
		mockSvc.On("Get", mock.Anything, "a1b2c3d4").Return(&model.Deployment{UID: "a1b2c3d4"}, nil).Once()
		req := httptest.NewRequest(http.MethodGet, "/deploy/a1b2c3d4", nil)
		req.Header.Set(middleware.APIKeyHeader, "s3cret")
		resp, _ := app.Test(req)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("file upload is registered behind the api key", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodPost, "/deploy/file", nil))
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

		mockSvc.On("Create", mock.Anything, service.CreateDeploymentInput{ModelStr: "Webpage Home {}", UserID: "u1"}).
			Return(&service.CreateDeploymentResult{UID: "a1b2c3d4"}, nil).Once()
		req := multipartRequest(t, "/deploy/file", []uploadPart{{"file", "home.wdsl", "Webpage Home {}"}}, map[string]string{"user_id": "u1"})
		req.Header.Set(middleware.APIKeyHeader, "s3cret")
		resp, _ = app.Test(req)
		assert.Equal(t, http.StatusCreated, resp.StatusCode)
	})

	t.Run("public listing is open", func(t *testing.T) {
		mockSvc.On("List", mock.Anything, mock.Anything, 50, 0).
			Return(&service.DeploymentListResult{Items: []model.Deployment{}}, nil).Once()
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/deploy/public", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	t.Run("metrics", func(t *testing.T) {
		resp, _ := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil))
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})

	mockSvc.AssertExpectations(t)
}

func TestErrorHandler(t *testing.T) {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler()})
	app.Use(middleware.RequestID())
	app.Get("/plain", func(c *fiber.Ctx) error { return errors.New("secret detail") })
	app.Get("/wrapped", func(c *fiber.Ctx) error {
		return fmt.Errorf("auth: %w", fiber.ErrForbidden)
	})
	app.Get("/teapot", func(c *fiber.Ctx) error { return fiber.ErrTeapot })

	tests := []struct {
		path       string
		wantStatus int
		wantCode   string
	}{
		{"/plain", http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"/wrapped", http.StatusForbidden, "FORBIDDEN"},
		{"/teapot", http.StatusTeapot, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			resp, err := app.Test(httptest.NewRequest(http.MethodGet, tt.path, nil))
			require.NoError(t, err)
			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			res := decodeError(t, resp)
			assert.Equal(t, tt.wantCode, res.Error.Code)
			assert.NotContains(t, res.Error.Message, "secret")
			assert.Equal(t, resp.Header.Get(middleware.RequestIDHeader), res.RequestID)
		})
	}
}
