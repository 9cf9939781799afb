package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"dropship-platform/internal/apperr"
	"dropship-platform/internal/audit"
	"dropship-platform/internal/auth"
	"dropship-platform/internal/chat"
	"dropship-platform/internal/config"
	"dropship-platform/internal/domain"
	"dropship-platform/internal/notify"
	"dropship-platform/internal/orders"
	"dropship-platform/internal/payout"
	"dropship-platform/internal/postpaid"
	"dropship-platform/internal/ratelimit"
	"dropship-platform/internal/rbac"
	"dropship-platform/internal/reporting"
	"dropship-platform/internal/settings"
	"dropship-platform/internal/store/memstore"
	"dropship-platform/internal/wallet"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

type testAPI struct {
	router *gin.Engine
	auth   *auth.Manager
	store  *memstore.Store
	audits *audit.MemoryRepo
}

func newTestAPI(t *testing.T, limits RateLimits) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m, err := auth.NewManager(config.AuthConfig{
		JWTSecret:       "secret",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: time.Hour,
	})
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	st := memstore.New()
	audits := audit.NewMemoryRepo()
	au := audit.NewService(audits)
	cfg := settings.NewService(settings.NewMemoryRepo())
	rec := &notify.Recorder{}

	h := Handlers{
		Auth:          m,
		Wallet:        wallet.NewService(st, nil, au),
		Postpaid:      postpaid.NewService(st, nil, rec, nil, au),
		Payouts:       payout.NewService(st, cfg, rec, nil, au),
		Orders:        orders.NewService(st, rec, nil, au),
		Chat:          chat.NewService(st, chat.Deps{Settings: cfg, Notifier: rec, Audit: au}),
		Reporting:     reporting.NewService(st),
		Settings:      cfg,
		Audit:         au,
		Notifications: notify.NewMemoryRepo(),
		Limiter:       ratelimit.NewMemoryLimiter(),
		RateLimit:     limits,
	}
	r := gin.New()
	v1 := r.Group("/v1")
	v1.Use(auth.RequireAccessToken(m))
	h.Register(v1)
	return &testAPI{router: r, auth: m, store: st, audits: audits}
}

func (a *testAPI) do(t *testing.T, method, path, userID, role string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		pair, err := a.auth.IssuePair(time.Now(), userID, role)
		if err != nil {
			t.Fatalf("token: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode %q: %v", w.Body.String(), err)
	}
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperr.ErrInvalidAmount, http.StatusBadRequest},
		{apperr.ErrInsufficientBalance, http.StatusPaymentRequired},
		{apperr.ErrDuesBlocked, http.StatusUnprocessableEntity},
		{apperr.ErrRateLimited, http.StatusTooManyRequests},
		{apperr.ErrPayoutNotFound, http.StatusNotFound},
		{apperr.ErrStaleStatus, http.StatusConflict},
		{apperr.Remote("invoke", errors.New("boom")), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := statusOf(tc.err); got != tc.want {
			t.Errorf("statusOf(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestRoutes_AuthAndRBAC(t *testing.T) {
	api := newTestAPI(t, RateLimits{})

	if w := api.do(t, http.MethodGet, "/v1/wallet", "", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("no token: %d", w.Code)
	}
	if w := api.do(t, http.MethodGet, "/v1/wallet", "ghost", rbac.RoleDropshipper, nil); w.Code != http.StatusNotFound {
		t.Fatalf("unprovisioned: %d", w.Code)
	}
	if w := api.do(t, http.MethodGet, "/v1/admin/payouts", "u1", rbac.RoleDropshipper, nil); w.Code != http.StatusForbidden {
		t.Fatalf("dropshipper on admin route: %d", w.Code)
	}
	if w := api.do(t, http.MethodGet, "/v1/admin/chats", "agent-1", rbac.RoleSupportAgent, nil); w.Code != http.StatusOK {
		t.Fatalf("support agent on chat dashboard: %d", w.Code)
	}
	if w := api.do(t, http.MethodGet, "/v1/admin/payouts", "agent-1", rbac.RoleSupportAgent, nil); w.Code != http.StatusForbidden {
		t.Fatalf("support agent on payouts: %d", w.Code)
	}
}

func TestRoutes_PostpaidOrderFlow(t *testing.T) {
	api := newTestAPI(t, RateLimits{})
	admin := func(method, path string, body any) *httptest.ResponseRecorder {
		return api.do(t, method, path, "admin-1", rbac.RoleAdmin, body)
	}
	user := func(method, path string, body any) *httptest.ResponseRecorder {
		return api.do(t, method, path, "u1", rbac.RoleDropshipper, body)
	}

	if w := admin(http.MethodPost, "/v1/admin/users", gin.H{"user_id": "u1", "full_name": "Una"}); w.Code != http.StatusCreated {
		t.Fatalf("provision: %d %s", w.Code, w.Body)
	}
	if w := admin(http.MethodPatch, "/v1/admin/users/u1/postpaid", gin.H{"credit_limit": "500"}); w.Code != http.StatusOK {
		t.Fatalf("credit limit: %d %s", w.Code, w.Body)
	}

	w := user(http.MethodPost, "/v1/orders", gin.H{"base_price": "100", "selling_price": "150", "quantity": 2})
	if w.Code != http.StatusCreated {
		t.Fatalf("create order: %d %s", w.Code, w.Body)
	}
	var o domain.Order
	decode(t, w, &o)

	w = user(http.MethodPost, "/v1/orders/"+o.ID+"/postpaid", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("charge: %d %s", w.Code, w.Body)
	}
	var charged struct {
		Order    domain.Order    `json:"order"`
		Postpaid postpaid.Status `json:"postpaid"`
	}
	decode(t, w, &charged)
	if charged.Order.Status != domain.OrderPostpaidPending || !charged.Postpaid.UsedCredit.Equal(decimal.NewFromInt(200)) {
		t.Fatalf("unexpected charge result %+v", charged)
	}

	if w := admin(http.MethodPost, "/v1/admin/orders/"+o.ID+"/status", gin.H{"status": "completed"}); w.Code != http.StatusOK {
		t.Fatalf("complete: %d %s", w.Code, w.Body)
	}
	var bal wallet.Statement
	decode(t, user(http.MethodGet, "/v1/wallet", nil), &bal)
	if !bal.Balance.Balance.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("wallet = %s, want 100", bal.Balance.Balance)
	}

	// Dues of 200 exceed the wallet, so repaying 150 is refused with 402.
	w = user(http.MethodPost, "/v1/postpaid/repay", gin.H{"amount": "150"})
	if w.Code != http.StatusPaymentRequired {
		t.Fatalf("repay over wallet: %d %s", w.Code, w.Body)
	}
	var body map[string]string
	decode(t, w, &body)
	if body["code"] != apperr.ErrInsufficientBalance.Code {
		t.Fatalf("code = %q", body["code"])
	}

	if w := user(http.MethodPost, "/v1/payouts", gin.H{"amount": "50", "method": "bank"}); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("payout with dues: %d %s", w.Code, w.Body)
	}
}

func TestRoutes_PayoutRateLimited(t *testing.T) {
	api := newTestAPI(t, RateLimits{Payouts: 1, Window: time.Minute})
	api.store.PutProfile(domain.Profile{UserID: "u1", WalletBalance: decimal.NewFromInt(100)})

	first := api.do(t, http.MethodPost, "/v1/payouts", "u1", rbac.RoleDropshipper, gin.H{"amount": "20", "method": "bank"})
	if first.Code != http.StatusCreated {
		t.Fatalf("first payout: %d %s", first.Code, first.Body)
	}
	second := api.do(t, http.MethodPost, "/v1/payouts", "u1", rbac.RoleDropshipper, gin.H{"amount": "20", "method": "bank"})
	if second.Code != http.StatusTooManyRequests {
		t.Fatalf("second payout: %d", second.Code)
	}
	if second.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After")
	}
}

func TestRoutes_SettingsUpdateAudited(t *testing.T) {
	api := newTestAPI(t, RateLimits{})

	w := api.do(t, http.MethodPut, "/v1/admin/settings/payout", "admin-1", rbac.RoleAdmin, gin.H{"min_payout": "25", "enabled_methods": []string{"bank"}})
	if w.Code != http.StatusOK {
		t.Fatalf("update: %d %s", w.Code, w.Body)
	}
	if w := api.do(t, http.MethodPut, "/v1/admin/settings/theme", "admin-1", rbac.RoleAdmin, gin.H{}); w.Code != http.StatusNotFound {
		t.Fatalf("unknown key: %d", w.Code)
	}

	events := api.audits.Events()
	if len(events) != 1 || events[0].Type != audit.EventSettingsChanged || events[0].EntityID != "payout" {
		t.Fatalf("unexpected audit events %+v", events)
	}

	var got settings.Payout
	decode(t, api.do(t, http.MethodGet, "/v1/settings/payout", "admin-1", rbac.RoleAdmin, nil), &got)
	if !got.MinPayout.Equal(decimal.NewFromInt(25)) {
		t.Fatalf("min payout = %s", got.MinPayout)
	}
}

func TestRoutes_ChatRoundTrip(t *testing.T) {
	api := newTestAPI(t, RateLimits{})
	api.store.PutProfile(domain.Profile{UserID: "u1"})

	w := api.do(t, http.MethodPost, "/v1/chat/messages", "u1", rbac.RoleDropshipper, gin.H{"message": "hello"})
	if w.Code != http.StatusCreated {
		t.Fatalf("send: %d %s", w.Code, w.Body)
	}
	var res chat.SendResult
	decode(t, w, &res)
	if res.Welcome == nil || res.Session.Status != domain.ChatWaitingForSupport {
		t.Fatalf("unexpected send result %+v", res)
	}

	if w := api.do(t, http.MethodPost, "/v1/admin/chats/u1/messages", "agent-1", rbac.RoleSupportAgent, gin.H{"message": "hi"}); w.Code != http.StatusCreated {
		t.Fatalf("reply: %d %s", w.Code, w.Body)
	}

	var unread struct {
		Unread int `json:"unread"`
	}
	decode(t, api.do(t, http.MethodGet, "/v1/chat/unread", "u1", rbac.RoleDropshipper, nil), &unread)
	if unread.Unread != 2 {
		t.Fatalf("unread = %d, want 2 (welcome + reply)", unread.Unread)
	}
}
