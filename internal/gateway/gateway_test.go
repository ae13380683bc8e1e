package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/porus-labs/porus/internal/credential"
	"github.com/porus-labs/porus/internal/registry"
	"github.com/porus-labs/porus/internal/settlement"
	"github.com/porus-labs/porus/internal/x402"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeSettler struct {
	calls int
	resp  *x402.SettleResponse
	err   error
}

func (f *fakeSettler) Settle(ctx context.Context, payload x402.PaymentPayload, reqs x402.PaymentRequirements) (*x402.SettleResponse, error) {
	f.calls++
	return f.resp, f.err
}

type testEnv struct {
	router   *gin.Engine
	registry registry.Registry
	settler  *fakeSettler
	creds    *credential.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	reg := registry.NewFileStore(filepath.Join(t.TempDir(), "protected-websites.json"))
	creds := credential.New("test-secret")
	settler := &fakeSettler{resp: &x402.SettleResponse{Success: true, TransactionHash: "0x1"}}
	srv := New(Config{}, reg, creds, settler, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return &testEnv{router: srv.Router(), registry: reg, settler: settler, creds: creds}
}

func (e *testEnv) seedResource(t *testing.T, origin string) {
	t.Helper()
	_, err := e.registry.Create(context.Background(), origin, registry.Resource{
		WalletAddress: "0xABC",
		Price:         "100",
		Network:       "polygon-amoy",
		Description:   "d",
	})
	if err != nil {
		t.Fatalf("seed resource: %v", err)
	}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func assertionBody(t *testing.T) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"paymentPayload": x402.PaymentPayload{
			X402Version: x402.Version,
			Scheme:      x402.SchemeExact,
			Network:     "polygon-amoy",
			Payload: x402.ExactPayload{
				Signature:     "0xsig",
				Authorization: x402.Authorization{From: "0xpayer", To: "0xABC", Value: "100"},
			},
		},
		"paymentRequirements": x402.PaymentRequirements{
			Scheme:  x402.SchemeExact,
			Network: "polygon-amoy",
			PayTo:   "0xABC",
		},
	})
	if err != nil {
		t.Fatalf("marshal assertion: %v", err)
	}
	return bytes.NewReader(body)
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", w.Body.String(), err)
	}
	return body
}

func accessTokenCookie(w *httptest.ResponseRecorder) *http.Cookie {
	resp := http.Response{Header: w.Header()}
	for _, c := range resp.Cookies() {
		if c.Name == cookieName {
			return c
		}
	}
	return nil
}

// --- resource management routes ---

func TestCreateAndGetResource(t *testing.T) {
	env := newTestEnv(t)

	body := bytes.NewReader([]byte(`{
		"website": "https://example.com",
		"walletAddress": "0xABC",
		"price": "100",
		"network": "polygon-amoy",
		"description": "d"
	}`))
	req := httptest.NewRequest(http.MethodPost, "/resources", body)
	req.Header.Set("Content-Type", "application/json")
	w := env.do(t, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, body = %s", w.Code, w.Body.String())
	}

	w = env.do(t, httptest.NewRequest(http.MethodGet, "/resources/https://example.com", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	data := decodeBody(t, w)["data"].(map[string]any)
	if data["walletAddress"] != "0xABC" || data["price"] != "100" || data["network"] != "polygon-amoy" || data["description"] != "d" {
		t.Errorf("unexpected resource data: %v", data)
	}
	if data["enabled"] != true {
		t.Error("created resource not enabled")
	}
}

func TestCreateResourceInvalidOrigin(t *testing.T) {
	env := newTestEnv(t)

	body := bytes.NewReader([]byte(`{
		"website": "not-a-url",
		"walletAddress": "0xABC",
		"price": "100",
		"network": "polygon-amoy",
		"description": "d"
	}`))
	req := httptest.NewRequest(http.MethodPost, "/resources", body)
	req.Header.Set("Content-Type", "application/json")
	w := env.do(t, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestCreateResourceConflict(t *testing.T) {
	env := newTestEnv(t)
	env.seedResource(t, "https://example.com")

	body := bytes.NewReader([]byte(`{
		"website": "https://example.com",
		"walletAddress": "0xDEF",
		"price": "1",
		"network": "polygon-amoy",
		"description": "other"
	}`))
	req := httptest.NewRequest(http.MethodPost, "/resources", body)
	req.Header.Set("Content-Type", "application/json")
	w := env.do(t, req)
	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want 409", w.Code)
	}
}

func TestUpdateAndDeleteResource(t *testing.T) {
	env := newTestEnv(t)
	env.seedResource(t, "https://example.com")

	req := httptest.NewRequest(http.MethodPut, "/resources/https://example.com", bytes.NewReader([]byte(`{"price":"250"}`)))
	req.Header.Set("Content-Type", "application/json")
	w := env.do(t, req)
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d", w.Code)
	}
	data := decodeBody(t, w)["data"].(map[string]any)
	if data["price"] != "250" || data["walletAddress"] != "0xABC" {
		t.Errorf("partial update wrong: %v", data)
	}

	w = env.do(t, httptest.NewRequest(http.MethodDelete, "/resources/https://example.com", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d", w.Code)
	}
	w = env.do(t, httptest.NewRequest(http.MethodGet, "/resources/https://example.com", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", w.Code)
	}
}

// --- authorization state machine ---

func TestFailOpenWithoutOrigin(t *testing.T) {
	env := newTestEnv(t)
	env.seedResource(t, "https://example.com")

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/premium", nil))
	if w.Code != http.StatusOK {
		t.Errorf("no origin should fail open, got %d", w.Code)
	}
}

func TestFailOpenWithMalformedOrigin(t *testing.T) {
	env := newTestEnv(t)
	env.seedResource(t, "https://example.com")

	req := httptest.NewRequest(http.MethodGet, "/premium", nil)
	req.Header.Set("Origin", "not a url at all")
	w := env.do(t, req)
	if w.Code != http.StatusOK {
		t.Errorf("malformed origin should fail open, got %d", w.Code)
	}
}

func TestFailOpenForUnregisteredOrigin(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodGet, "/premium", nil)
	req.Header.Set("Origin", "https://unknown.example.com")
	w := env.do(t, req)
	if w.Code != http.StatusOK {
		t.Errorf("unregistered origin should pass, got %d", w.Code)
	}
	if env.settler.calls != 0 {
		t.Error("settlement called for unprotected request")
	}
}

func TestDisabledResourceFailsOpen(t *testing.T) {
	env := newTestEnv(t)
	env.seedResource(t, "https://example.com")
	enabled := false
	if _, err := env.registry.Update(context.Background(), "https://example.com", registry.Update{Enabled: &enabled}); err != nil {
		t.Fatalf("disable: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/premium", nil)
	req.Header.Set("Origin", "https://example.com")
	w := env.do(t, req)
	if w.Code != http.StatusOK {
		t.Errorf("disabled resource should fail open, got %d", w.Code)
	}
}

func TestPaymentRequiredWithRequirements(t *testing.T) {
	env := newTestEnv(t)
	env.seedResource(t, "https://example.com")

	req := httptest.NewRequest(http.MethodGet, "/premium", nil)
	req.Header.Set("Origin", "https://example.com")
	w := env.do(t, req)
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", w.Code)
	}

	body := decodeBody(t, w)
	reqs := body["paymentRequirements"].(map[string]any)
	if reqs["payTo"] != "0xABC" {
		t.Errorf("payTo = %v", reqs["payTo"])
	}
	if reqs["network"] != "polygon-amoy" {
		t.Errorf("network = %v", reqs["network"])
	}
	if reqs["asset"] != x402.AssetForNetwork("polygon-amoy") {
		t.Errorf("asset = %v", reqs["asset"])
	}
	if reqs["description"] != "d" {
		t.Errorf("description = %v", reqs["description"])
	}
	if reqs["scheme"] != "exact" {
		t.Errorf("scheme = %v", reqs["scheme"])
	}
	if env.settler.calls != 0 {
		t.Error("settlement called without an assertion")
	}
}

func TestReferrerFallback(t *testing.T) {
	env := newTestEnv(t)
	env.seedResource(t, "https://example.com")

	req := httptest.NewRequest(http.MethodGet, "/premium", nil)
	req.Header.Set("Referer", "https://example.com/landing/page")
	w := env.do(t, req)
	if w.Code != http.StatusPaymentRequired {
		t.Errorf("referer-derived origin should protect, got %d", w.Code)
	}
}

func TestSettlementIssuesCredential(t *testing.T) {
	env := newTestEnv(t)
	env.seedResource(t, "https://example.com")

	req := httptest.NewRequest(http.MethodPost, "/premium", assertionBody(t))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "https://example.com")
	w := env.do(t, req)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	if env.settler.calls != 1 {
		t.Fatalf("settler calls = %d, want 1", env.settler.calls)
	}

	cookie := accessTokenCookie(w)
	if cookie == nil {
		t.Fatal("no credential cookie attached")
	}
	if !cookie.HttpOnly || cookie.SameSite != http.SameSiteLaxMode || cookie.MaxAge != cookieMaxAge {
		t.Errorf("cookie attributes wrong: %+v", cookie)
	}
	claims := env.creds.TryVerify(cookie.Value)
	if claims == nil {
		t.Fatal("issued cookie does not verify")
	}
	if claims.Resource != "https://example.com" || claims.SettlementID != "0x1" || claims.Price != "100" || !claims.Paid {
		t.Errorf("unexpected claims: %+v", claims)
	}

	// follow-up request reusing the credential settles nothing
	req = httptest.NewRequest(http.MethodGet, "/premium", nil)
	req.Header.Set("Origin", "https://example.com")
	req.AddCookie(&http.Cookie{Name: cookieName, Value: cookie.Value})
	w = env.do(t, req)
	if w.Code != http.StatusOK {
		t.Fatalf("follow-up status = %d", w.Code)
	}
	if env.settler.calls != 1 {
		t.Errorf("settler called again for credentialed request: %d", env.settler.calls)
	}
}

func TestBearerHeaderFallback(t *testing.T) {
	env := newTestEnv(t)
	env.seedResource(t, "https://example.com")

	token, err := env.creds.Issue("https://example.com", "100", "0x1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/premium", nil)
	req.Header.Set("Origin", "https://example.com")
	req.Header.Set("Authorization", "Bearer "+token)
	w := env.do(t, req)
	if w.Code != http.StatusOK {
		t.Errorf("bearer credential rejected: %d", w.Code)
	}
}

func TestCredentialBoundToResource(t *testing.T) {
	env := newTestEnv(t)
	env.seedResource(t, "https://example.com")
	env.seedResource(t, "https://other.example.com")

	token, err := env.creds.Issue("https://example.com", "100", "0x1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/premium", nil)
	req.Header.Set("Origin", "https://other.example.com")
	req.AddCookie(&http.Cookie{Name: cookieName, Value: token})
	w := env.do(t, req)
	if w.Code != http.StatusPaymentRequired {
		t.Errorf("credential for another origin should not admit, got %d", w.Code)
	}
}

func TestSettlementReportedFailure(t *testing.T) {
	env := newTestEnv(t)
	env.seedResource(t, "https://example.com")
	env.settler.resp = &x402.SettleResponse{Success: false}

	req := httptest.NewRequest(http.MethodPost, "/premium", assertionBody(t))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "https://example.com")
	w := env.do(t, req)
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want 402", w.Code)
	}
	if decodeBody(t, w)["error"] != "Payment settlement failed" {
		t.Errorf("body = %s", w.Body.String())
	}
	if accessTokenCookie(w) != nil {
		t.Error("credential issued despite failed settlement")
	}
}

func TestSettlementErrorPassthrough(t *testing.T) {
	env := newTestEnv(t)
	env.seedResource(t, "https://example.com")
	env.settler.resp = nil
	env.settler.err = &settlement.FacilitatorError{StatusCode: http.StatusBadRequest, Message: "Invalid request"}

	req := httptest.NewRequest(http.MethodPost, "/premium", assertionBody(t))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "https://example.com")
	w := env.do(t, req)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want facilitator status", w.Code)
	}
	if decodeBody(t, w)["error"] != "Invalid request" {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestSettlementTransportFailure(t *testing.T) {
	env := newTestEnv(t)
	env.seedResource(t, "https://example.com")
	env.settler.resp = nil
	env.settler.err = context.DeadlineExceeded

	req := httptest.NewRequest(http.MethodPost, "/premium", assertionBody(t))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Origin", "https://example.com")
	w := env.do(t, req)
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}

// --- credential-only route, status, logout ---

func TestCredentialOnlyRoute(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/premium/credential-only", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}

	token, err := env.creds.Issue("https://example.com", "100", "0x1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/premium/credential-only", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: token})
	w = env.do(t, req)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}

func TestAuthStatus(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, httptest.NewRequest(http.MethodGet, "/auth/status", nil))
	if decodeBody(t, w)["authenticated"] != false {
		t.Error("expected unauthenticated")
	}

	token, err := env.creds.Issue("https://example.com", "100", "0x1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/auth/status", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: token})
	w = env.do(t, req)
	body := decodeBody(t, w)
	if body["authenticated"] != true {
		t.Error("expected authenticated")
	}
	user := body["user"].(map[string]any)
	if user["resource"] != "https://example.com" {
		t.Errorf("user claims = %v", user)
	}
}

func TestLogoutClearsCookie(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, httptest.NewRequest(http.MethodPost, "/logout", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	cookie := accessTokenCookie(w)
	if cookie == nil {
		t.Fatal("logout did not touch the cookie")
	}
	if cookie.Value != "" || cookie.MaxAge >= 0 {
		t.Errorf("cookie not cleared: %+v", cookie)
	}
}

func TestExpiredCredentialIsUnauthenticated(t *testing.T) {
	env := newTestEnv(t)
	env.seedResource(t, "https://example.com")

	// token signed with a different secret reads as no token at all
	stale, err := credential.New("other-secret").Issue("https://example.com", "100", "0x1")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	req := httptest.NewRequest(http.MethodGet, "/premium", nil)
	req.Header.Set("Origin", "https://example.com")
	req.AddCookie(&http.Cookie{Name: cookieName, Value: stale})
	w := env.do(t, req)
	if w.Code != http.StatusPaymentRequired {
		t.Errorf("invalid credential should fall through to payment, got %d", w.Code)
	}
}

func TestErrorLogsCarryRequestID(t *testing.T) {
	var buf bytes.Buffer
	reg := registry.NewFileStore(filepath.Join(t.TempDir(), "protected-websites.json"))
	settler := &fakeSettler{err: errors.New("connection refused")}
	srv := New(Config{}, reg, credential.New("test-secret"), settler,
		slog.New(slog.NewTextHandler(&buf, nil)))
	router := srv.Router()

	_, err := reg.Create(context.Background(), "https://example.com", registry.Resource{
		WalletAddress: "0xABC",
		Price:         "100",
		Network:       "polygon-amoy",
		Description:   "d",
	})
	if err != nil {
		t.Fatalf("seed resource: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/premium", assertionBody(t))
	req.Header.Set("Origin", "https://example.com")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}

	var errLine, reqLine string
	for _, line := range strings.Split(buf.String(), "\n") {
		switch {
		case strings.Contains(line, "settlement call failed"):
			errLine = line
		case strings.Contains(line, "msg=request"):
			reqLine = line
		}
	}
	if errLine == "" || reqLine == "" {
		t.Fatalf("missing expected log lines:\n%s", buf.String())
	}
	id := logAttr(errLine, "id")
	if id == "" {
		t.Fatalf("error line has no request id: %s", errLine)
	}
	if got := logAttr(reqLine, "id"); got != id {
		t.Errorf("request line id = %q, error line id = %q", got, id)
	}
}

func logAttr(line, key string) string {
	for _, field := range strings.Fields(line) {
		if v, ok := strings.CutPrefix(field, key+"="); ok {
			return v
		}
	}
	return ""
}
