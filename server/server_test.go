package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"pixgate/audit"
	"pixgate/cache"
	"pixgate/dashboard"
	"pixgate/internal"
	"pixgate/internal/config"
	"pixgate/internal/memdb"
	"pixgate/models"
	"pixgate/payments"
	"pixgate/providers"
	"pixgate/providers/sandbox"
	"pixgate/security"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const password = "s3cret-pass"

type plain struct{}

func (plain) Decrypt(encoded string) (string, error) {
	return encoded, nil
}

type fixture struct {
	db      *memdb.DB
	server  *Server
	handler http.Handler
	apiKey  string
}

func testConfig() *config.Config {
	conf := &config.Config{TimeZone: "UTC"}
	conf.RateLimit.Rps = 1000
	conf.RateLimit.Burst = 1000
	conf.Audit.Enabled = true
	conf.Audit.RetentionYears = 5
	return conf
}

func setup(t *testing.T, conf *config.Config) *fixture {
	db := memdb.New()
	now := time.Now()
	require.NoError(t, db.AddMerchant(&models.Merchant{Id: "m1", Name: "Loja", Active: true, CreatedAt: now}))
	require.NoError(t, db.AddProvider(&models.Provider{Id: "p1", Code: sandbox.Code, Name: "Sandbox", Active: true, Priority: 1}))
	require.NoError(t, db.AddMerchantProvider(&models.MerchantProvider{
		Id:           "mp1",
		MerchantId:   "m1",
		ProviderId:   "p1",
		ProviderCode: sandbox.Code,
		Active:       true,
		ClientId:     "m1",
		ClientSecret: "secret",
		PixKey:       "loja@example.com",
		PixKeyType:   models.PixKeyTypeEmail,
	}))

	hash, err := security.HashPassword(password)
	require.NoError(t, err)
	require.NoError(t, db.AddUser(&models.User{Id: "u1", MerchantId: "m1", Email: "ana@loja.com", Password: hash, Role: models.RoleMerchant, Active: true}))
	require.NoError(t, db.AddUser(&models.User{Id: "u2", Email: "admin@pixgate.com", Password: hash, Role: models.RoleAdmin, Active: true}))

	key, keyHash, prefix, err := security.NewApiKey()
	require.NoError(t, err)
	require.NoError(t, db.AddApiKey(&models.ApiKey{Id: "k1", MerchantId: "m1", Name: "erp", Hash: keyHash, Prefix: prefix, Active: true, CreatedAt: now}))

	registry := providers.NewRegistry()
	registry.Register(sandbox.New())
	manager := providers.NewManager(registry, db, plain{}, cache.NewMemoryStore())

	logger := internal.NewLogger(time.UTC)
	t.Cleanup(logger.Close)
	auditService := audit.NewService(db, conf.Audit.RetentionYears)
	t.Cleanup(auditService.Close)

	service := payments.NewService(db, manager)
	service.SetLogger(logger)

	server := NewServer(conf, db, security.NewTokenService([]byte("test-secret"), 15*time.Minute, time.Hour))
	server.SetLogger(logger)
	server.SetPaymentService(service)
	server.SetAuditService(auditService)
	server.SetDashboard(dashboard.NewBuilder(db, time.UTC))
	server.SetProviders(manager, providers.NewHealthMonitor(registry, db, time.Minute))
	return &fixture{db: db, server: server, handler: server.Handler(), apiKey: key}
}

func (f *fixture) do(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	return f.doFrom("192.0.2.1:1234", method, path, body, headers)
}

// doFrom sends a request arriving from the connection address remote
func (f *fixture) doFrom(remote, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.RemoteAddr = remote
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *fixture) withKey(method, path string, body interface{}) *httptest.ResponseRecorder {
	return f.do(method, path, body, map[string]string{"X-API-Key": f.apiKey})
}

func (f *fixture) login(t *testing.T, email string) *loginResponse {
	rec := f.do(http.MethodPost, "/v1/auth/login", map[string]string{"email": email, "password": password}, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp loginResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return &resp
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body
}

func transferBody(external string, amount int64) map[string]interface{} {
	return map[string]interface{}{
		"external_id":        external,
		"amount":             amount,
		"payee_name":         "Maria",
		"payee_pix_key":      "52998224725",
		"payee_pix_key_type": "cpf",
	}
}

func TestHealth(t *testing.T) {
	f := setup(t, testConfig())
	rec := f.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", decode(t, rec)["status"])
}

func TestLoginMeAndLogout(t *testing.T) {
	f := setup(t, testConfig())
	resp := f.login(t, "Ana@Loja.com")
	assert.NotEmpty(t, resp.AccessToken)
	assert.NotEmpty(t, resp.RefreshToken)
	assert.Equal(t, "u1", resp.User.Id)

	user, err := f.db.GetUser("u1")
	require.NoError(t, err)
	assert.NotNil(t, user.LastLogin)

	rec := f.do(http.MethodGet, "/v1/auth/me", nil, bearer(resp.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "ana@loja.com", body["email"])
	assert.NotContains(t, body, "password")

	rec = f.do(http.MethodPost, "/v1/auth/refresh", map[string]string{"refresh_token": resp.RefreshToken}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/v1/auth/logout", nil, bearer(resp.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(http.MethodPost, "/v1/auth/refresh", map[string]string{"refresh_token": resp.RefreshToken}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLoginRejected(t *testing.T) {
	f := setup(t, testConfig())
	rec := f.do(http.MethodPost, "/v1/auth/login", map[string]string{"email": "ana@loja.com", "password": "wrong-password"}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPost, "/v1/auth/login", map[string]string{"email": "nobody@loja.com", "password": password}, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodPost, "/v1/auth/login", map[string]string{"email": "ana@loja.com"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(http.MethodGet, "/v1/auth/me", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = f.do(http.MethodGet, "/v1/auth/me", nil, bearer("not-a-token"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestApiKeyAuthentication(t *testing.T) {
	f := setup(t, testConfig())
	rec := f.withKey(http.MethodGet, "/v1/auth/me", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, "m1", body["merchant_id"])
	assert.Equal(t, "k1", body["api_key_id"])

	keys, err := f.db.GetApiKeysByPrefix(security.ApiKeyLookupPrefix(f.apiKey))
	require.NoError(t, err)
	require.Len(t, keys, 1)
	assert.NotNil(t, keys[0].LastUsedAt)

	other, _, _, err := security.NewApiKey()
	require.NoError(t, err)
	rec = f.do(http.MethodGet, "/v1/auth/me", nil, map[string]string{"X-API-Key": other})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestApiKeyIPWhitelist(t *testing.T) {
	f := setup(t, testConfig())
	merchant, err := f.db.GetMerchant("m1")
	require.NoError(t, err)
	merchant.IPWhitelist = []string{"10.0.0.5"}
	require.NoError(t, f.db.UpdateMerchant(merchant))

	key := map[string]string{"X-API-Key": f.apiKey}
	rec := f.doFrom("10.0.0.9:5000", http.MethodGet, "/v1/auth/me", nil, key)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = f.doFrom("10.0.0.5:5000", http.MethodGet, "/v1/auth/me", nil, key)
	assert.Equal(t, http.StatusOK, rec.Code)

	spoofed := map[string]string{"X-API-Key": f.apiKey, "X-Forwarded-For": "10.0.0.5", "X-Real-IP": "10.0.0.5"}
	rec = f.doFrom("203.0.113.66:5000", http.MethodGet, "/v1/auth/me", nil, spoofed)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestForwardedHeadersFromTrustedProxy(t *testing.T) {
	conf := testConfig()
	conf.Listen.TrustedProxies = []string{"172.16.0.0/12", "192.0.2.10", "not-an-address"}
	f := setup(t, conf)
	merchant, err := f.db.GetMerchant("m1")
	require.NoError(t, err)
	merchant.IPWhitelist = []string{"10.0.0.5"}
	require.NoError(t, f.db.UpdateMerchant(merchant))

	forwarded := func(remote, header, value string) int {
		headers := map[string]string{"X-API-Key": f.apiKey, header: value}
		return f.doFrom(remote, http.MethodGet, "/v1/auth/me", nil, headers).Code
	}
	assert.Equal(t, http.StatusOK, forwarded("172.16.0.1:4000", "X-Forwarded-For", "10.0.0.5"))
	assert.Equal(t, http.StatusOK, forwarded("172.16.0.1:4000", "X-Forwarded-For", "10.0.0.5, 192.0.2.10"))
	assert.Equal(t, http.StatusForbidden, forwarded("172.16.0.1:4000", "X-Forwarded-For", "10.0.0.5, 203.0.113.66"))
	assert.Equal(t, http.StatusOK, forwarded("192.0.2.10:4000", "X-Real-IP", "10.0.0.5"))
	assert.Equal(t, http.StatusForbidden, forwarded("192.0.2.11:4000", "X-Real-IP", "10.0.0.5"))
}

func TestAddressRateLimitIgnoresSpoofedHeaders(t *testing.T) {
	conf := testConfig()
	conf.RateLimit.Rps = 1
	conf.RateLimit.Burst = 1
	f := setup(t, conf)
	credentials := map[string]string{"email": "ana@loja.com", "password": "wrong-password"}

	rec := f.doFrom("203.0.113.66:4000", http.MethodPost, "/v1/auth/login", credentials, map[string]string{"X-Forwarded-For": "10.1.1.1"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	rec = f.doFrom("203.0.113.66:4000", http.MethodPost, "/v1/auth/login", credentials, map[string]string{"X-Forwarded-For": "10.2.2.2"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	rec = f.doFrom("203.0.113.67:4000", http.MethodPost, "/v1/auth/login", credentials, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCreateTransfer(t *testing.T) {
	f := setup(t, testConfig())
	rec := f.withKey(http.MethodPost, "/v1/transactions/transfer", transferBody("order-1", 10000))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.Equal(t, string(models.StatusCompleted), body["status"])
	id := body["id"].(string)

	rec = f.withKey(http.MethodGet, "/v1/transactions/"+id, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "order-1", decode(t, rec)["external_id"])

	rec = f.withKey(http.MethodPost, "/v1/transactions/transfer", transferBody("order-1", 500))
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.withKey(http.MethodPost, "/v1/transactions/transfer", transferBody("order-2", 0))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.withKey(http.MethodPost, "/v1/transactions/transfer", map[string]interface{}{"external_id": "x", "unknown": 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.withKey(http.MethodGet, "/v1/transactions?status=completed", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 1, decode(t, rec)["total"])
}

func TestCreateTransferProviderFailure(t *testing.T) {
	f := setup(t, testConfig())
	rec := f.withKey(http.MethodPost, "/v1/transactions/transfer", transferBody("order-66", 1066))
	require.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode(t, rec)
	tx, ok := body["transaction"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, string(models.StatusFailed), tx["status"])
}

func TestCreateQRCodeAndCancel(t *testing.T) {
	f := setup(t, testConfig())
	rec := f.withKey(http.MethodPost, "/v1/transactions/qrcode", map[string]interface{}{
		"external_id": "qr-1",
		"type":        "dynamic",
		"amount":      2500,
		"expires_in":  600,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := decode(t, rec)["id"].(string)

	rec = f.withKey(http.MethodPost, "/v1/transactions/"+id+"/cancel", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, string(models.StatusCancelled), decode(t, rec)["status"])

	rec = f.withKey(http.MethodPost, "/v1/transactions/"+id+"/archive", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.withKey(http.MethodPost, "/v1/transactions/unknown", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTransactionOfOtherMerchant(t *testing.T) {
	f := setup(t, testConfig())
	require.NoError(t, f.db.AddTransaction(&models.Transaction{
		Id:         "t-other",
		MerchantId: "m2",
		ExternalId: "other",
		Type:       models.TransactionTypeTransfer,
		Status:     models.StatusPending,
		Amount:     100,
		CreatedAt:  time.Now(),
	}))
	rec := f.withKey(http.MethodGet, "/v1/transactions/t-other", nil)
	assert.Contains(t, []int{http.StatusForbidden, http.StatusNotFound}, rec.Code)
}

func TestRateLimit(t *testing.T) {
	conf := testConfig()
	conf.RateLimit.Rps = 1
	conf.RateLimit.Burst = 2
	f := setup(t, conf)

	for i := 0; i < 2; i++ {
		rec := f.withKey(http.MethodGet, "/v1/auth/me", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	rec := f.withKey(http.MethodGet, "/v1/auth/me", nil)
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.EqualValues(t, 1, decode(t, rec)["retry_after"])
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	limiter := newRateLimiter(1, 1)
	ok, _ := limiter.reserve("a")
	assert.True(t, ok)
	ok, wait := limiter.reserve("a")
	assert.False(t, ok)
	assert.Greater(t, wait, time.Duration(0))
	ok, _ = limiter.reserve("b")
	assert.True(t, ok)

	assert.Nil(t, newRateLimiter(0, 10))
}

func TestCorsAndSecurityHeaders(t *testing.T) {
	conf := testConfig()
	conf.Cors.AllowedOrigins = []string{"https://app.loja.com"}
	f := setup(t, conf)

	rec := f.do(http.MethodOptions, "/v1/transactions", nil, map[string]string{
		"Origin":                        "https://app.loja.com",
		"Access-Control-Request-Method": "POST",
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.loja.com", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = f.do(http.MethodGet, "/health", nil, map[string]string{"Origin": "https://evil.example"})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rec.Header().Get("Content-Security-Policy"))
}

func TestUnknownRoute(t *testing.T) {
	f := setup(t, testConfig())
	rec := f.do(http.MethodGet, "/v1/nothing", nil, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "route not found", decode(t, rec)["error"])
}

func TestWebhookLifecycle(t *testing.T) {
	f := setup(t, testConfig())
	rec := f.withKey(http.MethodPost, "/v1/webhooks", map[string]interface{}{
		"url":    "https://erp.loja.com/pix",
		"events": []string{models.EventTransactionCompleted},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	body := decode(t, rec)
	assert.NotEmpty(t, body["secret"])
	id := body["id"].(string)

	rec = f.withKey(http.MethodGet, "/v1/webhooks", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), body["secret"].(string))

	rec = f.withKey(http.MethodDelete, "/v1/webhooks/"+id, nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.withKey(http.MethodDelete, "/v1/webhooks/"+id, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.withKey(http.MethodPost, "/v1/webhooks", map[string]interface{}{"url": "ftp://erp", "events": []string{"*"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.withKey(http.MethodPost, "/v1/webhooks", map[string]interface{}{"url": "https://erp", "events": []string{"unknown"}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookRejectsPrivateTargets(t *testing.T) {
	f := setup(t, testConfig())
	for _, target := range []string{"http://localhost:9000/hook", "http://127.0.0.1/hook", "http://169.254.169.254/latest", "https://10.0.0.5/pix"} {
		rec := f.withKey(http.MethodPost, "/v1/webhooks", map[string]interface{}{"url": target, "events": []string{"*"}})
		assert.Equal(t, http.StatusBadRequest, rec.Code, target)
	}

	conf := testConfig()
	conf.Webhooks.AllowPrivate = true
	f = setup(t, conf)
	rec := f.withKey(http.MethodPost, "/v1/webhooks", map[string]interface{}{"url": "http://127.0.0.1:9000/hook", "events": []string{"*"}})
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestAdminRoutes(t *testing.T) {
	f := setup(t, testConfig())
	rec := f.withKey(http.MethodGet, "/v1/admin/providers", nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	admin := f.login(t, "admin@pixgate.com")
	rec = f.do(http.MethodGet, "/v1/admin/providers", nil, bearer(admin.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), sandbox.Code)

	rec = f.do(http.MethodGet, "/v1/admin/merchants", nil, bearer(admin.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Loja")

	rec = f.do(http.MethodGet, "/v1/admin/audit", nil, bearer(admin.AccessToken))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestAdminListsFilteredMerchants(t *testing.T) {
	f := setup(t, testConfig())
	require.NoError(t, f.db.AddMerchant(&models.Merchant{Id: "m0", Name: "Antiga", Active: false, CreatedAt: time.Now()}))
	admin := f.login(t, "admin@pixgate.com")

	rec := f.do(http.MethodGet, "/v1/admin/merchants?active=false", nil, bearer(admin.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Antiga")
	assert.NotContains(t, rec.Body.String(), "Loja")

	rec = f.do(http.MethodGet, "/v1/admin/merchants", nil, bearer(admin.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)
	var all []map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Len(t, all, 2)

	rec = f.do(http.MethodGet, "/v1/admin/merchants?active=true", nil, bearer(admin.AccessToken))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Antiga")
}

func TestAuditPageReportsAppliedLimit(t *testing.T) {
	f := setup(t, testConfig())
	admin := f.login(t, "admin@pixgate.com")
	for limit, want := range map[string]float64{"": 100, "20": 20, "1000": 500} {
		rec := f.do(http.MethodGet, "/v1/admin/audit?limit="+limit, nil, bearer(admin.AccessToken))
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, want, decode(t, rec)["limit"], limit)
	}
}

func TestDashboardApi(t *testing.T) {
	f := setup(t, testConfig())
	rec := f.withKey(http.MethodPost, "/v1/transactions/transfer", transferBody("order-1", 10000))
	require.Equal(t, http.StatusCreated, rec.Code)
	id := decode(t, rec)["id"].(string)

	rec = f.withKey(http.MethodGet, "/v1/dashboard", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Len(t, body["stats"], 4)
	assert.Contains(t, rec.Body.String(), id)
}

func TestLandingAndDocs(t *testing.T) {
	f := setup(t, testConfig())
	rec := f.do(http.MethodGet, "/", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "PIX")
	assert.Contains(t, rec.Body.String(), time.Now().UTC().Format("2006"))

	rec = f.do(http.MethodGet, "/docs", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/v1/transactions/transfer")

	rec = f.do(http.MethodGet, "/static/style.css", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestDashboardPageSession(t *testing.T) {
	f := setup(t, testConfig())
	rec := f.do(http.MethodGet, "/dashboard", nil, nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/login", rec.Header().Get("Location"))

	form := url.Values{"email": {"ana@loja.com"}, "password": {"wrong-password"}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	form.Set("password", password)
	req = httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, sessionCookie, cookies[0].Name)
	assert.True(t, cookies[0].HttpOnly)

	req = httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(cookies[0])
	rec = httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ana@loja.com")
	assert.Contains(t, rec.Body.String(), `id="stats"`)
}

func TestCorsDefaultsToSameOrigin(t *testing.T) {
	f := setup(t, testConfig())
	preflight := map[string]string{"Origin": "https://evil.example", "Access-Control-Request-Method": "POST"}
	rec := f.do(http.MethodOptions, "/v1/transactions", nil, preflight)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))

	rec = f.do(http.MethodGet, "/health", nil, map[string]string{"Origin": "https://evil.example"})
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	rec = f.do(http.MethodGet, "/health", nil, map[string]string{"Origin": "http://example.com"})
	assert.Equal(t, "http://example.com", rec.Header().Get("Access-Control-Allow-Origin"))
}

// session signs in through the login form and returns the session cookie
func (f *fixture) session(t *testing.T, email string) *http.Cookie {
	form := url.Values{"email": {email}, "password": {password}}
	req := httptest.NewRequest(http.MethodPost, "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	cookies := rec.Result().Cookies()
	require.Len(t, cookies, 1)
	return cookies[0]
}

func TestDashboardFeedChecksOrigin(t *testing.T) {
	f := setup(t, testConfig())
	f.server.SetHub(NewHub(dashboard.NewBuilder(f.db, time.UTC), time.Second))
	cookie := f.session(t, "ana@loja.com")
	server := httptest.NewServer(f.handler)
	defer server.Close()
	address := "ws" + strings.TrimPrefix(server.URL, "http") + wsEndpoint

	dial := func(origin string) (*websocket.Conn, *http.Response, error) {
		header := http.Header{}
		header.Set("Cookie", cookie.Name+"="+cookie.Value)
		header.Set("Origin", origin)
		return websocket.DefaultDialer.Dial(address, header)
	}

	_, resp, err := dial("https://evil.example")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	conn, _, err := dial(server.URL)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, message, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(message), "stats")
}
