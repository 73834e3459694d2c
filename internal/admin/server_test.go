package admin

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opennms-forks/alertbridge/internal/model"
)

type fakeAlarms struct {
	entries map[string]*model.CachedAlarm
	cleared bool
}

func (f *fakeAlarms) Iterate() map[string]*model.CachedAlarm { return f.entries }
func (f *fakeAlarms) Size() int                              { return len(f.entries) }
func (f *fakeAlarms) Clear()                                 { f.cleared = true; f.entries = map[string]*model.CachedAlarm{} }

type fakeNodes struct {
	nodes map[string]*model.Node
}

func (f *fakeNodes) Snapshot() []*model.Node {
	out := make([]*model.Node, 0, len(f.nodes))
	for _, n := range f.nodes {
		out = append(out, n)
	}
	return out
}
func (f *fakeNodes) GetByKey(key string) (*model.Node, bool) { n, ok := f.nodes[key]; return n, ok }
func (f *fakeNodes) Size() int                               { return len(f.nodes) }

type fakeAM struct {
	healthy bool
	status  string
}

func (f fakeAM) Healthy(context.Context) bool                  { return f.healthy }
func (f fakeAM) StatusBody(context.Context) (string, bool)     { return f.status, f.status != "" }

func newTestServer() (*Server, *fakeAlarms, *fakeNodes, chan struct{}) {
	alarms := &fakeAlarms{entries: map[string]*model.CachedAlarm{
		"key-1": {Alarm: model.Alarm{ReductionKey: "key-1"}},
	}}
	nodes := &fakeNodes{nodes: map[string]*model.Node{
		"Fortinet:edge-1": {ID: 1, ForeignSource: "Fortinet", ForeignID: "edge-1"},
	}}
	resend := make(chan struct{}, 1)
	s := New(alarms, nodes, fakeAM{healthy: true, status: `{"cluster":"ready"}`}, resend, func() bool { return true },
		"http://alertmanager.example:9093/api/v2/alerts", true)
	return s, alarms, nodes, resend
}

func TestHealthz(t *testing.T) {
	s, _, _, _ := newTestServer()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestReadyzNotReady(t *testing.T) {
	alarms := &fakeAlarms{entries: map[string]*model.CachedAlarm{}}
	nodes := &fakeNodes{nodes: map[string]*model.Node{}}
	s := New(alarms, nodes, nil, make(chan struct{}, 1), func() bool { return false }, "", false)

	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
}

func TestStatusReportsSizes(t *testing.T) {
	s, _, _, _ := newTestServer()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/bridge/status", nil))

	var resp statusResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.ActiveAlarms != 1 || resp.CachedNodes != 1 || !resp.AlertmanagerHealthy {
		t.Errorf("resp = %+v", resp)
	}
	if resp.Timestamp == "" {
		t.Error("expected a non-empty timestamp")
	}
	if resp.AlertmanagerURL != "http://alertmanager.example:9093/api/v2/alerts" || !resp.AlertmanagerEnabled {
		t.Errorf("resp = %+v", resp)
	}
}

func TestAlarmsEndpoint(t *testing.T) {
	s, _, _, _ := newTestServer()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/bridge/alarms", nil))

	var out map[string]alarmSummary
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if _, ok := out["key-1"]; !ok {
		t.Errorf("expected key-1 in response, got %v", out)
	}
}

func TestNodeDetailFound(t *testing.T) {
	s, _, _, _ := newTestServer()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/bridge/nodes/Fortinet:edge-1", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestNodeDetailNotFound(t *testing.T) {
	s, _, _, _ := newTestServer()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/bridge/nodes/unknown", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestResendTriggersChannel(t *testing.T) {
	s, _, _, resend := newTestServer()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/bridge/alarms/resend", nil))

	if rec.Code != http.StatusAccepted {
		t.Errorf("status = %d, want 202", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Error("expected a plain-text acknowledgement body")
	}
	select {
	case <-resend:
	default:
		t.Error("expected resend trigger to be sent on the channel")
	}
}

func TestResendRejectsGet(t *testing.T) {
	s, _, _, _ := newTestServer()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/bridge/alarms/resend", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestClearEmptiesTable(t *testing.T) {
	s, alarms, _, _ := newTestServer()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/bridge/clear", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.Len() == 0 {
		t.Error("expected a plain-text acknowledgement body")
	}
	if !alarms.cleared {
		t.Error("expected Clear() to be called")
	}
}

func TestAlertmanagerStatusProxiesBody(t *testing.T) {
	s, _, _, _ := newTestServer()
	rec := httptest.NewRecorder()
	s.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/bridge/alertmanager/status", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != `{"cluster":"ready"}` {
		t.Errorf("body = %q", rec.Body.String())
	}
}
