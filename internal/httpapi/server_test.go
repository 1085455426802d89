package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/service"
	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/store"
	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/store/memory"
	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/gym/types"
	"github.com/GonzaloRamosEngineer/DMGFit-sub000/internal/httpapi"
)

type testEnv struct {
	members *memory.MembershipStore
	plans   *memory.PlanCatalog
	billing *memory.BillingLedger
	ledger  *memory.AccessLedger
}

type envOpts struct {
	members    store.MemberStore
	health     httpapi.Probe
	kioskRate  float64
	kioskBurst int
}

// newTestServer wires up the full dependency graph using in-memory stores
// and returns an httptest.Server whose URL can be hit with a plain http.Client.
func newTestServer(t *testing.T, o envOpts) (*httptest.Server, *testEnv) {
	t.Helper()

	env := &testEnv{
		members: memory.NewMembershipStore(),
		plans:   memory.NewPlanCatalog(),
		billing: memory.NewBillingLedger(),
		ledger:  memory.NewAccessLedger(),
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := service.NewKioskRegistry(memory.NewKioskStore([]string{"kiosk-front"}))
	stores := service.Stores{Members: env.members, Plans: env.plans, Billing: env.billing, Ledger: env.ledger}
	if o.members != nil {
		stores.Members = o.members
	}

	srv := httpapi.NewServer(httpapi.Dependencies{
		Logger:           logger,
		Addr:             ":0",
		HeartbeatService: service.NewHeartbeatService(memory.NewHeartbeatStore(), registry),
		AccessService:    service.NewAccessService(registry, stores, service.AccessPolicy{DuplicateWindow: 10 * time.Minute}, logger),
		Health:           o.health,
		KioskRate:        o.kioskRate,
		KioskBurst:       o.kioskBurst,
	})

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts, env
}

type downMembers struct{}

func (downMembers) ResolveMember(context.Context, string) (types.Member, error) {
	return types.Member{}, errors.New("connection refused")
}

func (e *testEnv) activeMember(key string) types.Member {
	limit := 8
	e.plans.Put(types.Plan{ID: "plan-8", Name: "8 Clases", VisitLimit: &limit, CycleLengthDays: 30})
	m := types.Member{ID: "mem-" + key, ExternalKey: key, Name: "Ana", Status: types.MemberActive, PlanRef: "plan-8"}
	e.members.Put(m)
	e.billing.Record(types.PaymentEvent{MemberID: m.ID, Date: time.Now().AddDate(0, 0, -5), Status: types.PaymentPaid})
	return m
}

func postJSON(t *testing.T, url, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, "application/json", bytes.NewReader([]byte(body)))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

// ── Heartbeat ────────────────────────────────────────────────────────────────

func TestHeartbeat_KnownKiosk_OK(t *testing.T) {
	ts, _ := newTestServer(t, envOpts{})

	resp := postJSON(t, ts.URL+"/v1/kiosks/heartbeat", `{"kiosk_id":"kiosk-front","uptime_s":42}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var hb types.HeartbeatResponse
	decode(t, resp, &hb)
	if !hb.OK {
		t.Error("expected ok=true")
	}
	if !hb.Known {
		t.Error("expected known=true for a configured kiosk")
	}
	if hb.KioskID != "kiosk-front" {
		t.Errorf("expected kiosk_id=kiosk-front, got %q", hb.KioskID)
	}
}

func TestHeartbeat_UnknownKiosk_StillAccepted(t *testing.T) {
	ts, _ := newTestServer(t, envOpts{})

	resp := postJSON(t, ts.URL+"/v1/kiosks/heartbeat", `{"kiosk_id":"tablet-9","uptime_s":1}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var hb types.HeartbeatResponse
	decode(t, resp, &hb)
	if hb.Known {
		t.Error("expected known=false for an unknown kiosk")
	}
}

func TestHeartbeat_MissingKioskID_400(t *testing.T) {
	ts, _ := newTestServer(t, envOpts{})

	resp := postJSON(t, ts.URL+"/v1/kiosks/heartbeat", `{"uptime_s":42}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestHeartbeat_InvalidJSON_400(t *testing.T) {
	ts, _ := newTestServer(t, envOpts{})

	resp := postJSON(t, ts.URL+"/v1/kiosks/heartbeat", `not json at all`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

// ── Check-in ─────────────────────────────────────────────────────────────────

func TestCheckIn_Granted(t *testing.T) {
	ts, env := newTestServer(t, envOpts{})
	env.activeMember("QR-ANA")

	resp := postJSON(t, ts.URL+"/v1/checkin", `{"external_key":"QR-ANA","kiosk_id":"kiosk-front"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var out types.CheckInResponse
	decode(t, resp, &out)
	if !out.Allowed || out.ReasonCode != types.ReasonOK {
		t.Fatalf("expected OK grant, got allowed=%v reason=%s", out.Allowed, out.ReasonCode)
	}
	if out.Remaining == nil || *out.Remaining != 7 {
		t.Errorf("expected remaining=7, got %v", out.Remaining)
	}
	if out.MemberName != "Ana" {
		t.Errorf("expected member_name=Ana, got %q", out.MemberName)
	}
}

func TestCheckIn_DoubleTap_DeniedWith200(t *testing.T) {
	ts, env := newTestServer(t, envOpts{})
	env.activeMember("QR-ANA")

	postJSON(t, ts.URL+"/v1/checkin", `{"external_key":"QR-ANA","kiosk_id":"kiosk-front"}`)
	resp := postJSON(t, ts.URL+"/v1/checkin", `{"external_key":"QR-ANA","kiosk_id":"kiosk-front"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 for a policy denial, got %d", resp.StatusCode)
	}

	var out types.CheckInResponse
	decode(t, resp, &out)
	if out.Allowed || out.ReasonCode != types.ReasonDuplicateCheckIn {
		t.Fatalf("expected DUPLICATE_CHECKIN, got allowed=%v reason=%s", out.Allowed, out.ReasonCode)
	}
}

func TestCheckIn_UnknownKey_NoAssignment(t *testing.T) {
	ts, env := newTestServer(t, envOpts{})

	resp := postJSON(t, ts.URL+"/v1/checkin", `{"external_key":"QR-NOBODY","kiosk_id":"kiosk-front"}`)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var out types.CheckInResponse
	decode(t, resp, &out)
	if out.ReasonCode != types.ReasonNoAssignment {
		t.Errorf("expected NO_ASSIGNMENT, got %s", out.ReasonCode)
	}
	if n := len(env.ledger.Attempts()); n != 1 {
		t.Errorf("expected the attempt to be recorded, got %d rows", n)
	}
}

func TestCheckIn_MissingKioskID_400(t *testing.T) {
	ts, env := newTestServer(t, envOpts{})

	resp := postJSON(t, ts.URL+"/v1/checkin", `{"external_key":"QR-ANA"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	var out struct {
		Error string `json:"error"`
	}
	decode(t, resp, &out)
	if out.Error != string(types.ErrCodeValidationKioskID) {
		t.Errorf("expected error=%s, got %q", types.ErrCodeValidationKioskID, out.Error)
	}
	if n := len(env.ledger.Attempts()); n != 0 {
		t.Errorf("input errors must not be recorded, got %d rows", n)
	}
}

func TestCheckIn_UnknownField_400(t *testing.T) {
	ts, _ := newTestServer(t, envOpts{})

	resp := postJSON(t, ts.URL+"/v1/checkin", `{"external_key":"QR-ANA","kiosk_id":"kiosk-front","door":"north"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestCheckIn_StoreDown_503SystemError(t *testing.T) {
	ts, _ := newTestServer(t, envOpts{
		members: downMembers{},
	})

	resp := postJSON(t, ts.URL+"/v1/checkin", `{"external_key":"QR-ANA","kiosk_id":"kiosk-front"}`)
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.StatusCode)
	}

	var out types.CheckInResponse
	decode(t, resp, &out)
	if out.Allowed {
		t.Fatal("expected fail-closed denial")
	}
	if out.ReasonCode != types.ReasonSystemError {
		t.Errorf("expected SYSTEM_ERROR, got %s", out.ReasonCode)
	}
	if out.Message == "" {
		t.Error("expected a displayable message")
	}
}

func TestCheckIn_Protobuf_RoundTrip(t *testing.T) {
	ts, env := newTestServer(t, envOpts{})
	env.activeMember("QR-ANA")

	req, err := structpb.NewStruct(map[string]any{
		"external_key": "QR-ANA",
		"kiosk_id":     "kiosk-front",
	})
	if err != nil {
		t.Fatalf("new struct: %v", err)
	}
	body, err := proto.Marshal(req)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	resp, err := http.Post(ts.URL+"/v1/checkin", "application/x-protobuf", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-protobuf" {
		t.Fatalf("expected protobuf response, got %q", ct)
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var out structpb.Struct
	if err := proto.Unmarshal(raw, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	fields := out.GetFields()
	if !fields["allowed"].GetBoolValue() {
		t.Error("expected allowed=true")
	}
	if got := fields["reason_code"].GetStringValue(); got != string(types.ReasonOK) {
		t.Errorf("expected reason_code=OK, got %q", got)
	}
	if got := fields["remaining"].GetNumberValue(); got != 7 {
		t.Errorf("expected remaining=7, got %v", got)
	}
}

func TestCheckIn_RateLimited_429(t *testing.T) {
	ts, _ := newTestServer(t, envOpts{kioskRate: 0.001, kioskBurst: 2})

	send := func() int {
		req, _ := http.NewRequest(http.MethodPost, ts.URL+"/v1/checkin",
			bytes.NewReader([]byte(`{"external_key":"QR-X","kiosk_id":"kiosk-front"}`)))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("X-Kiosk-ID", "kiosk-front")
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("do: %v", err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	for i := range 2 {
		if code := send(); code != http.StatusOK {
			t.Fatalf("request %d: expected 200, got %d", i, code)
		}
	}
	if code := send(); code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 once burst is spent, got %d", code)
	}
}

// ── Usage ────────────────────────────────────────────────────────────────────

func TestUsage_OK(t *testing.T) {
	ts, env := newTestServer(t, envOpts{})
	env.activeMember("QR-ANA")
	postJSON(t, ts.URL+"/v1/checkin", `{"external_key":"QR-ANA","kiosk_id":"kiosk-front"}`)

	resp, err := http.Get(ts.URL + "/v1/members/QR-ANA/usage")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var u types.UsageResponse
	decode(t, resp, &u)
	if u.Used != 1 {
		t.Errorf("expected used=1, got %d", u.Used)
	}
	if u.Remaining == nil || *u.Remaining != 7 {
		t.Errorf("expected remaining=7, got %v", u.Remaining)
	}
}

func TestUsage_UnknownMember_404(t *testing.T) {
	ts, _ := newTestServer(t, envOpts{})

	resp, err := http.Get(ts.URL + "/v1/members/QR-NOBODY/usage")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

// ── Health ───────────────────────────────────────────────────────────────────

func TestHealth(t *testing.T) {
	tests := []struct {
		name   string
		probe  httpapi.Probe
		status int
	}{
		{"no probe", nil, http.StatusOK},
		{"probe ok", func(context.Context) error { return nil }, http.StatusOK},
		{"probe failing", func(context.Context) error { return errors.New("db gone") }, http.StatusServiceUnavailable},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ts, _ := newTestServer(t, envOpts{health: tc.probe})

			resp, err := http.Get(ts.URL + "/healthz")
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			defer resp.Body.Close()

			if resp.StatusCode != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, resp.StatusCode)
			}
		})
	}
}
