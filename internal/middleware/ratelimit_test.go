package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/hitoshi/estadias/internal/model"
)

func testRateConfig(generalBurst, authBurst int) RateLimiterConfig {
	return RateLimiterConfig{
		GeneralRate:     1,
		GeneralBurst:    generalBurst,
		AuthRate:        1,
		AuthBurst:       authBurst,
		CleanupInterval: time.Minute,
	}
}

func requestAs(principal *model.Principal, remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/api/companies", nil)
	req.RemoteAddr = remoteAddr
	if principal != nil {
		req = req.WithContext(ContextWithPrincipal(req.Context(), *principal))
	}
	return req
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// --- GeneralMiddleware ---

func TestGeneralMiddleware_AllowsRequestsWithinBurst(t *testing.T) {
	rl := NewRateLimiter(testRateConfig(5, 1))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())
	p := &model.Principal{ID: "A001", Role: model.RoleStudent}

	// バースト内の5リクエストは全て通る
	for i := 0; i < 5; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestAs(p, "10.0.0.1:1234"))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want %d", i, w.Code, http.StatusOK)
		}
	}
}

func TestGeneralMiddleware_Returns429WithRetryAfter(t *testing.T) {
	rl := NewRateLimiter(testRateConfig(1, 1))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())
	p := &model.Principal{ID: "A001", Role: model.RoleStudent}

	handler.ServeHTTP(httptest.NewRecorder(), requestAs(p, "10.0.0.1:1234"))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs(p, "10.0.0.1:1234"))

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusTooManyRequests)
	}
	retry, err := strconv.Atoi(w.Header().Get("Retry-After"))
	if err != nil || retry < 1 {
		t.Errorf("Retry-After = %q, want positive integer", w.Header().Get("Retry-After"))
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != "RATE_LIMIT_EXCEEDED" || body.Category != "system" {
		t.Errorf("body = %+v", body)
	}
}

// 主体ごとに独立して制限する。同じIDでもロールが違えば別の主体として扱う
func TestGeneralMiddleware_IsolatesPrincipals(t *testing.T) {
	rl := NewRateLimiter(testRateConfig(1, 1))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())
	a := &model.Principal{ID: "1", Role: model.RoleStudent}
	b := &model.Principal{ID: "1", Role: model.RoleAdmin}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs(a, "10.0.0.1:1"))
	if w.Code != http.StatusOK {
		t.Fatalf("a first: status = %d", w.Code)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs(a, "10.0.0.1:1"))
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("a second: status = %d, want 429", w.Code)
	}

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs(b, "10.0.0.1:1"))
	if w.Code != http.StatusOK {
		t.Errorf("b first: status = %d, want 200", w.Code)
	}

	if n := rl.GeneralLimiterCount(); n != 2 {
		t.Errorf("GeneralLimiterCount = %d, want 2", n)
	}
}

// 主体がない場合はIPで制限する
func TestGeneralMiddleware_FallsBackToIP(t *testing.T) {
	rl := NewRateLimiter(testRateConfig(1, 1))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	handler.ServeHTTP(httptest.NewRecorder(), requestAs(nil, "10.0.0.9:1000"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs(nil, "10.0.0.9:2000"))

	if w.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429 for same IP", w.Code)
	}
}

// --- AuthMiddleware ---

func TestAuthMiddleware_LimitsPerIP(t *testing.T) {
	rl := NewRateLimiter(testRateConfig(10, 2))
	defer rl.Stop()

	handler := rl.AuthMiddleware()(okHandler())

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, requestAs(nil, "192.168.1.10:5000"))
		if w.Code != http.StatusOK {
			t.Errorf("request %d: status = %d, want 200", i, w.Code)
		}
	}

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs(nil, "192.168.1.10:5001"))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("third request: status = %d, want 429", w.Code)
	}

	// 別IPは影響を受けない
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, requestAs(nil, "192.168.1.11:5000"))
	if w.Code != http.StatusOK {
		t.Errorf("other IP: status = %d, want 200", w.Code)
	}

	if n := rl.AuthLimiterCount(); n != 2 {
		t.Errorf("AuthLimiterCount = %d, want 2", n)
	}
}

// 認証エンドポイントの制限はAPI全般の制限と独立している
func TestAuthMiddleware_IndependentFromGeneral(t *testing.T) {
	rl := NewRateLimiter(testRateConfig(1, 1))
	defer rl.Stop()

	auth := rl.AuthMiddleware()(okHandler())
	general := rl.GeneralMiddleware()(okHandler())

	auth.ServeHTTP(httptest.NewRecorder(), requestAs(nil, "10.0.0.1:1"))

	w := httptest.NewRecorder()
	general.ServeHTTP(w, requestAs(nil, "10.0.0.1:1"))
	if w.Code != http.StatusOK {
		t.Errorf("general status = %d, want 200", w.Code)
	}
}

// --- クリーンアップと設定 ---

func TestRateLimiter_CleanupRemovesStaleEntries(t *testing.T) {
	rl := NewRateLimiter(testRateConfig(5, 5))
	defer rl.Stop()

	rl.GeneralMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), requestAs(&model.Principal{ID: "A001", Role: model.RoleStudent}, "10.0.0.1:1"))
	rl.AuthMiddleware()(okHandler()).ServeHTTP(httptest.NewRecorder(), requestAs(nil, "10.0.0.1:1"))

	// 最終アクセスを過去に戻す
	stale := time.Now().Add(-time.Hour)
	for _, set := range []*limiterSet{rl.general, rl.auth} {
		set.mu.Lock()
		for _, kl := range set.limiters {
			kl.lastAccess = stale
		}
		set.mu.Unlock()
	}

	rl.cleanup()

	if rl.GeneralLimiterCount() != 0 || rl.AuthLimiterCount() != 0 {
		t.Errorf("counts = %d/%d, want 0/0", rl.GeneralLimiterCount(), rl.AuthLimiterCount())
	}
}

func TestRateLimiter_ConcurrentAccess(t *testing.T) {
	rl := NewRateLimiter(testRateConfig(1000, 1000))
	defer rl.Stop()

	handler := rl.GeneralMiddleware()(okHandler())

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			p := &model.Principal{ID: strconv.Itoa(i % 5), Role: model.RoleStudent}
			handler.ServeHTTP(httptest.NewRecorder(), requestAs(p, "10.0.0.1:1"))
		}(i)
	}
	wg.Wait()

	if n := rl.GeneralLimiterCount(); n != 5 {
		t.Errorf("GeneralLimiterCount = %d, want 5", n)
	}
}

func TestRateLimiter_StopIsIdempotent(t *testing.T) {
	rl := NewRateLimiter(testRateConfig(1, 1))
	rl.Stop()
	rl.Stop()
}

func TestRateLimiterConfigPerMinute(t *testing.T) {
	cfg := RateLimiterConfigPerMinute(120, 30)
	if cfg.GeneralRate != 2 || cfg.GeneralBurst != 120 {
		t.Errorf("general = %v/%d, want 2/120", cfg.GeneralRate, cfg.GeneralBurst)
	}
	if cfg.AuthRate != 0.5 || cfg.AuthBurst != 30 {
		t.Errorf("auth = %v/%d, want 0.5/30", cfg.AuthRate, cfg.AuthBurst)
	}

	// 0以下はデフォルト
	if got := RateLimiterConfigPerMinute(0, -1); got.GeneralBurst != 120 || got.AuthBurst != 30 {
		t.Errorf("defaults = %d/%d, want 120/30", got.GeneralBurst, got.AuthBurst)
	}
}
