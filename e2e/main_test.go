package e2e

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/sanosuguru/go-table-reservation/internal/api/middleware"
	"github.com/sanosuguru/go-table-reservation/internal/bootstrap"
	"github.com/sanosuguru/go-table-reservation/internal/config"
	"github.com/sanosuguru/go-table-reservation/internal/pkg/clock"
	"github.com/sanosuguru/go-table-reservation/internal/pkg/metrics"
)

const testSecret = "e2e-secret"

// TestServer はE2Eテスト用のサーバー。インメモリストアで外部依存なしに動く
type TestServer struct {
	App            *bootstrap.App
	Clock          *clock.Fake
	OrganizerToken string
	AdminToken     string
}

// NewTestServer はテストごとに独立したサーバーを作成する
func NewTestServer(t *testing.T, mutate ...func(*config.Config)) *TestServer {
	t.Helper()

	cfg := &config.Config{
		App:    config.AppConfig{Env: "test", Storage: bootstrap.StorageMemory},
		Server: config.ServerConfig{ReadTimeout: 5 * time.Second, WriteTimeout: 5 * time.Second},
		Redis:  config.RedisConfig{Enabled: false},
		Reservation: config.ReservationConfig{
			HoldDuration:      15 * time.Minute,
			ReaperInterval:    time.Hour,
			InitialStatus:     "reserved",
			DirectPayment:     true,
			SideEffectWorkers: 2,
			SideEffectQueue:   16,
		},
		Ticket: config.TicketConfig{OutputDir: t.TempDir()},
		Auth:   config.AuthConfig{JWTSecret: testSecret},
	}
	for _, fn := range mutate {
		fn(cfg)
	}

	fake := clock.NewFake(time.Date(2026, 12, 1, 12, 0, 0, 0, time.UTC))
	reg := prometheus.NewRegistry()
	app, err := bootstrap.New(cfg, bootstrap.Options{
		Metrics:  metrics.NewWithRegistry(reg),
		Gatherer: reg,
		Clock:    fake,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	organizer, err := middleware.IssueToken(testSecret, "org-e2e", middleware.RoleOrganizer, jwt.RegisteredClaims{})
	require.NoError(t, err)
	admin, err := middleware.IssueToken(testSecret, "ops-e2e", middleware.RoleAdmin, jwt.RegisteredClaims{})
	require.NoError(t, err)

	return &TestServer{App: app, Clock: fake, OrganizerToken: organizer, AdminToken: admin}
}

// Request はHTTPリクエストを実行する
func (s *TestServer) Request(method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody []byte
	if body != nil {
		reqBody, _ = json.Marshal(body)
	}

	req := httptest.NewRequest(method, path, bytes.NewReader(reqBody))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	rec := httptest.NewRecorder()
	s.App.Echo.ServeHTTP(rec, req)
	return rec
}

// AsOrganizer は主催者トークン付きのヘッダー
func (s *TestServer) AsOrganizer() map[string]string {
	return map[string]string{"Authorization": "Bearer " + s.OrganizerToken}
}

// AsRequester は予約者ヘッダー
func AsRequester(requester string) map[string]string {
	return map[string]string{middleware.HeaderRequester: requester}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return resp
}

// PublishedEvent はテーブル付きのイベントを作成して公開し、イベントIDとテーブルID（番号順）を返す
func (s *TestServer) PublishedEvent(t *testing.T, seats ...int) (string, []string) {
	t.Helper()

	tables := make([]map[string]interface{}, len(seats))
	for i, n := range seats {
		tables[i] = map[string]interface{}{"number": i + 1, "seats_total": n, "price": 1000 * (i + 1)}
	}
	rec := s.Request(http.MethodPost, "/api/v1/events", map[string]interface{}{
		"name":            "ジャズナイト",
		"venue":           "ブルーホール",
		"cover_image_url": "https://cdn.example.com/floor.png",
		"start_at":        "2026-12-31T18:00:00+09:00",
		"end_at":          "2026-12-31T21:00:00+09:00",
		"tables":          tables,
	}, s.AsOrganizer())
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode(t, rec)
	eventID := created["id"].(string)

	rec = s.Request(http.MethodPost, "/api/v1/events/"+eventID+"/publish", nil, s.AsOrganizer())
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	ids := make([]string, 0, len(seats))
	for _, raw := range decode(t, rec)["tables"].([]interface{}) {
		ids = append(ids, raw.(map[string]interface{})["id"].(string))
	}
	return eventID, ids
}
