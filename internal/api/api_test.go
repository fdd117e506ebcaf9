package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"apotek/m/domain"
	"apotek/m/internal/config"
	"apotek/m/internal/imagestore"
	"apotek/m/internal/store"
	"apotek/m/internal/testutil"
)

type recordingPublisher struct {
	mu    sync.Mutex
	sales []domain.Sale
}

func (p *recordingPublisher) PublishSaleRecorded(_ context.Context, sale domain.Sale) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sales = append(p.sales, sale)
	return nil
}

func (p *recordingPublisher) Close() error { return nil }

type testServer struct {
	t         *testing.T
	handler   *Handler
	router    http.Handler
	published *recordingPublisher
}

func testConfig() config.Config {
	return config.Config{
		Secret:      "test-secret",
		TokenTTL:    time.Hour,
		BcryptCost:  bcrypt.MinCost,
		APIPrefix:   "/api",
		CORSOrigins: []string{"*"},
		MaxUpload:   1 << 20,
		Location:    time.UTC,
		LoginRate:   100,
		LoginBurst:  100,
	}
}

func newTestServer(t *testing.T, cfg config.Config) *testServer {
	t.Helper()
	images, err := imagestore.New(t.TempDir(), StaticPrefix)
	require.NoError(t, err)
	published := &recordingPublisher{}
	h := New(testutil.NewDB(t), cfg, images, published, zerolog.Nop())

	_, err = h.accounts.Create(context.Background(), "admin", domain.RoleAdmin, "admin123")
	require.NoError(t, err)
	return &testServer{t: t, handler: h, router: h.Router(), published: published}
}

func (s *testServer) do(method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	s.t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) json(method, path, token string, payload any) *httptest.ResponseRecorder {
	s.t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(s.t, err)
	return s.do(method, path, token, bytes.NewReader(body), "application/json")
}

func (s *testServer) login(username, password string) string {
	s.t.Helper()
	rec := s.json(http.MethodPost, "/api/login", "", map[string]string{"username": username, "password": password})
	require.Equal(s.t, http.StatusOK, rec.Code, rec.Body.String())
	var resp loginResponse
	require.NoError(s.t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp.Token
}

func (s *testServer) cashier(username string) string {
	s.t.Helper()
	_, err := s.handler.accounts.Create(context.Background(), username, domain.RoleCashier, "secret")
	require.NoError(s.t, err)
	return s.login(username, "secret")
}

func (s *testServer) medicine(name string, stock int64, price string) domain.Medicine {
	s.t.Helper()
	m, err := s.handler.medicines.Create(context.Background(), store.NewMedicine{
		Name: name, Stock: stock, UnitPrice: decimal.RequireFromString(price),
	}, nil)
	require.NoError(s.t, err)
	return m
}

func multipartBody(t *testing.T, fields map[string]string, filename, content string) (io.Reader, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	if filename != "" {
		fw, err := mw.CreateFormFile("image", filename)
		require.NoError(t, err)
		_, err = fw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	s := newTestServer(t, testConfig())
	rec := s.do(http.MethodGet, "/health", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestLogin(t *testing.T) {
	s := newTestServer(t, testConfig())

	rec := s.json(http.MethodPost, "/api/login", "", map[string]string{"username": "admin", "password": "admin123"})
	require.Equal(t, http.StatusOK, rec.Code)
	resp := decode[loginResponse](t, rec)
	assert.NotEmpty(t, resp.Token)
	assert.Equal(t, "admin", resp.User.Username)
	assert.Equal(t, domain.RoleAdmin, resp.User.Role)

	rec = s.json(http.MethodPost, "/api/login", "", map[string]string{"username": "admin", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid credentials"}`, rec.Body.String())

	rec = s.json(http.MethodPost, "/api/login", "", map[string]string{"username": "ghost", "password": "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.json(http.MethodPost, "/api/login", "", map[string]string{"username": "admin"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginRateLimitedPerClient(t *testing.T) {
	cfg := testConfig()
	cfg.LoginRate = 0.001
	cfg.LoginBurst = 2
	s := newTestServer(t, cfg)

	for i := 0; i < 2; i++ {
		rec := s.json(http.MethodPost, "/api/login", "", map[string]string{"username": "admin", "password": "wrong"})
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
	rec := s.json(http.MethodPost, "/api/login", "", map[string]string{"username": "admin", "password": "admin123"})
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "admin123"})
	req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
	req.RemoteAddr = "198.51.100.7:5555"
	other := httptest.NewRecorder()
	s.router.ServeHTTP(other, req)
	assert.Equal(t, http.StatusOK, other.Code)
}

func TestGateway(t *testing.T) {
	s := newTestServer(t, testConfig())
	admin := s.login("admin", "admin123")
	cashier := s.cashier("kasir1")

	rec := s.do(http.MethodGet, "/api/admin/medicine", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"missing bearer token"}`, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/admin/medicine", "not-a-token", nil, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.JSONEq(t, `{"error":"invalid token"}`, rec.Body.String())

	rec = s.do(http.MethodGet, "/api/admin/medicine", cashier, nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodGet, "/api/cashier/sale", admin, nil, "")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(http.MethodGet, "/api/admin/medicine", admin, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(http.MethodGet, "/api/cashier/medicine", cashier, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMedicineLifecycle(t *testing.T) {
	s := newTestServer(t, testConfig())
	admin := s.login("admin", "admin123")

	body, ct := multipartBody(t, map[string]string{"name": "Paracetamol", "stock": "10", "unit_price": "5"}, "para.png", "png-bytes")
	rec := s.do(http.MethodPost, "/api/admin/medicine", admin, body, ct)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[medicineView](t, rec)
	assert.Equal(t, "5.00", created.UnitPrice)
	assert.Equal(t, StaticPrefix+"/"+imagestore.FileName(created.ID, ".png"), created.Image)

	rec = s.do(http.MethodGet, created.Image, "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png-bytes", rec.Body.String())

	body, ct = multipartBody(t, map[string]string{"name": "NoImage", "stock": "1", "unit_price": "1"}, "", "")
	rec = s.do(http.MethodPost, "/api/admin/medicine", admin, body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	body, ct = multipartBody(t, map[string]string{"name": "Bad", "stock": "ten", "unit_price": "1"}, "a.png", "x")
	rec = s.do(http.MethodPost, "/api/admin/medicine", admin, body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	path := "/api/admin/medicine/" + itoa(created.ID)
	rec = s.json(http.MethodPut, path, admin, map[string]any{"stock": 3})
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)

	body, ct = multipartBody(t, map[string]string{"stock": "3", "unit_price": "6.5"}, "", "")
	rec = s.do(http.MethodPut, path, admin, body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[medicineView](t, rec)
	assert.Equal(t, "Paracetamol", updated.Name)
	assert.Equal(t, int64(3), updated.Stock)
	assert.Equal(t, "6.50", updated.UnitPrice)
	assert.Equal(t, created.Image, updated.Image)

	rec = s.do(http.MethodGet, path, admin, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = s.do(http.MethodDelete, path, admin, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(http.MethodGet, path, admin, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(http.MethodGet, created.Image, "", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/api/admin/medicine/abc", admin, nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCashierManagement(t *testing.T) {
	s := newTestServer(t, testConfig())
	admin := s.login("admin", "admin123")

	rec := s.json(http.MethodPost, "/api/admin/cashier", admin, map[string]string{"username": "kasir1", "password": "pw1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[accountView](t, rec)
	assert.Equal(t, domain.RoleCashier, created.Role)

	rec = s.json(http.MethodPost, "/api/admin/cashier", admin, map[string]string{"username": "kasir1", "password": "pw2"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.json(http.MethodPost, "/api/admin/cashier", admin, map[string]string{"username": "kasir2"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodGet, "/api/admin/cashier", admin, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]accountView](t, rec), 1)

	path := "/api/admin/cashier/" + itoa(created.ID)
	rec = s.json(http.MethodPut, path, admin, map[string]string{"password": "newpw"})
	require.Equal(t, http.StatusOK, rec.Code)
	s.login("kasir1", "newpw")

	rec = s.json(http.MethodPut, path, admin, map[string]string{"username": "kasir-satu"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "kasir-satu", decode[accountView](t, rec).Username)

	adminAcc, err := s.handler.accounts.GetByUsername(context.Background(), "admin")
	require.NoError(t, err)
	rec = s.json(http.MethodPut, "/api/admin/cashier/"+itoa(adminAcc.ID), admin, map[string]string{"password": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = s.do(http.MethodDelete, "/api/admin/cashier/"+itoa(adminAcc.ID), admin, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodDelete, path, admin, nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(http.MethodDelete, path, admin, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSaleFlow(t *testing.T) {
	s := newTestServer(t, testConfig())
	admin := s.login("admin", "admin123")
	kasir := s.cashier("kasir1")
	other := s.cashier("kasir2")
	a := s.medicine("Item A", 10, "5.00")

	rec := s.json(http.MethodPost, "/api/cashier/sale", kasir, map[string]any{
		"items": []map[string]any{{"itemId": a.ID, "quantity": 3}},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	sale := decode[saleView](t, rec)
	assert.Equal(t, "15.00", sale.Total)
	require.Len(t, sale.Items, 1)
	assert.Equal(t, "Item A", sale.Items[0].MedicineName)
	assert.Equal(t, "15.00", sale.Items[0].Subtotal)

	m, err := s.handler.medicines.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), m.Stock)
	require.Len(t, s.published.sales, 1)
	assert.Equal(t, sale.ID, s.published.sales[0].ID)

	rec = s.json(http.MethodPost, "/api/cashier/sale", kasir, map[string]any{
		"items": []map[string]any{{"itemId": a.ID, "quantity": 20}},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "insufficient stock for Item A")

	rec = s.json(http.MethodPost, "/api/cashier/sale", kasir, map[string]any{
		"items": []map[string]any{{"itemId": 999, "quantity": 1}},
	})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.json(http.MethodPost, "/api/cashier/sale", kasir, map[string]any{"items": []any{}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/api/cashier/sale", kasir, strings.NewReader(`{"items":[{"itemId":1,"quantity":"two"}]}`), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	m, err = s.handler.medicines.Get(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(7), m.Stock)
	assert.Len(t, s.published.sales, 1)

	rec = s.do(http.MethodGet, "/api/cashier/sale", kasir, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]saleView](t, rec), 1)

	rec = s.do(http.MethodGet, "/api/cashier/sale", other, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]saleView](t, rec))

	rec = s.do(http.MethodGet, "/api/cashier/sale/"+itoa(sale.ID), kasir, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "15.00", decode[saleView](t, rec).Total)

	rec = s.do(http.MethodGet, "/api/cashier/sale/"+itoa(sale.ID), other, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodGet, "/api/admin/report/weekly", admin, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	report := decode[weeklyReportView](t, rec)
	assert.Equal(t, "15.00", report.TotalRevenue)
	assert.Equal(t, int64(3), report.TotalUnitsSold)
	require.Len(t, report.Transactions, 1)
	assert.Equal(t, "kasir1", report.Transactions[0].Cashier)

	rec = s.do(http.MethodDelete, "/api/admin/medicine/"+itoa(a.ID), admin, nil, "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}

func TestLoginRateLimitIgnoresForwardedHeaders(t *testing.T) {
	cfg := testConfig()
	cfg.LoginRate = 0.001
	cfg.LoginBurst = 1
	s := newTestServer(t, cfg)

	limited := 0
	for i := 0; i < 20; i++ {
		body, _ := json.Marshal(map[string]string{"username": "admin", "password": "wrong"})
		req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
		req.Header.Set("X-Forwarded-For", "203.0.113."+strconv.Itoa(i))
		req.Header.Set("X-Real-IP", "203.0.113."+strconv.Itoa(i))
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited++
		}
	}
	assert.Equal(t, 19, limited)
}

func TestLoginRateLimitUsesForwardedHeadersBehindProxy(t *testing.T) {
	cfg := testConfig()
	cfg.LoginRate = 0.001
	cfg.LoginBurst = 1
	cfg.TrustProxy = true
	s := newTestServer(t, cfg)

	for i := 0; i < 3; i++ {
		body, _ := json.Marshal(map[string]string{"username": "admin", "password": "wrong"})
		req := httptest.NewRequest(http.MethodPost, "/api/login", bytes.NewReader(body))
		req.Header.Set("X-Real-IP", "203.0.113."+strconv.Itoa(i))
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	}
}

func TestStaticUploadsServeFilesOnly(t *testing.T) {
	s := newTestServer(t, testConfig())
	dir := s.handler.images.Dir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "obat-1.png"), []byte("png"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".upload-pending.png"), []byte("tmp"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))

	rec := s.do(http.MethodGet, StaticPrefix+"/obat-1.png", "", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "png", rec.Body.String())

	for _, p := range []string{StaticPrefix + "/", StaticPrefix + "/nested/", StaticPrefix + "/.upload-pending.png"} {
		rec = s.do(http.MethodGet, p, "", nil, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, p)
		assert.NotContains(t, rec.Body.String(), "obat-1.png", p)
		assert.NotContains(t, rec.Body.String(), ".upload-", p)
	}
}

func TestCORSDoesNotAllowCredentials(t *testing.T) {
	s := newTestServer(t, testConfig())

	req := httptest.NewRequest(http.MethodOptions, "/api/login", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Credentials"))
}
