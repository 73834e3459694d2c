// Package admin exposes the bridge's operator HTTP surface: read-only
// views into the node cache and active-alarm table, a manual resend
// trigger, a cache-clear endpoint, and liveness/readiness probes. Routing
// follows the teacher's http.HandleFunc + ServeMux style
// (cmd/bd/monitor.go) rather than a router framework.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/opennms-forks/alertbridge/internal/model"
)

// AlarmTable is the narrow capability the admin surface needs from
// alarmtable.Table.
type AlarmTable interface {
	Iterate() map[string]*model.CachedAlarm
	Size() int
	Clear()
}

// NodeCache is the narrow capability the admin surface needs from
// nodecache.Cache.
type NodeCache interface {
	Snapshot() []*model.Node
	GetByKey(key string) (*model.Node, bool)
	Size() int
}

// AlertmanagerProbe is the narrow capability the admin surface needs from
// sink.AlertSink for the health/status endpoints.
type AlertmanagerProbe interface {
	Healthy(ctx context.Context) bool
	StatusBody(ctx context.Context) (string, bool)
}

// Server is the bridge's admin HTTP server.
type Server struct {
	mux    *http.ServeMux
	alarms AlarmTable
	nodes  NodeCache
	am     AlertmanagerProbe
	resend chan<- struct{}
	ready  func() bool

	alertmanagerURL     string
	alertmanagerEnabled bool
}

// New wires up every admin route. resend is the channel the resend
// scheduler listens on for a manual trigger; ready reports whether the
// bridge has finished its startup sequence (every component goroutine
// launched) for the /readyz probe. amURL/amEnabled are surfaced
// verbatim in the status response.
func New(alarms AlarmTable, nodes NodeCache, am AlertmanagerProbe, resend chan<- struct{}, ready func() bool, amURL string, amEnabled bool) *Server {
	s := &Server{
		alarms:              alarms,
		nodes:               nodes,
		am:                  am,
		resend:              resend,
		ready:               ready,
		alertmanagerURL:     amURL,
		alertmanagerEnabled: amEnabled,
		mux:                 http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/readyz", s.handleReadyz)
	s.mux.HandleFunc("/api/v1/bridge/status", s.handleStatus)
	s.mux.HandleFunc("/api/v1/bridge/alarms", s.handleAlarms)
	s.mux.HandleFunc("/api/v1/bridge/nodes", s.handleNodes)
	s.mux.HandleFunc("/api/v1/bridge/nodes/", s.handleNodeDetail)
	s.mux.HandleFunc("/api/v1/bridge/alarms/resend", s.handleResend)
	s.mux.HandleFunc("/api/v1/bridge/clear", s.handleClear)
	s.mux.HandleFunc("/api/v1/bridge/alertmanager/status", s.handleAlertmanagerStatus)
}

// ServeHTTP satisfies http.Handler so Server can be passed directly to
// http.ListenAndServe.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil && !s.ready() {
		http.Error(w, "not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ready"))
}

type statusResponse struct {
	Timestamp           string `json:"timestamp"`
	ActiveAlarms        int    `json:"activeAlarms"`
	CachedNodes         int    `json:"cachedNodes"`
	AlertmanagerURL     string `json:"alertmanagerUrl"`
	AlertmanagerEnabled bool   `json:"alertmanagerEnabled"`
	AlertmanagerHealthy bool   `json:"alertmanagerHealthy"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Timestamp:           time.Now().UTC().Format(time.RFC3339),
		ActiveAlarms:        s.alarms.Size(),
		CachedNodes:         s.nodes.Size(),
		AlertmanagerURL:     s.alertmanagerURL,
		AlertmanagerEnabled: s.alertmanagerEnabled,
	}
	if s.am != nil {
		resp.AlertmanagerHealthy = s.am.Healthy(r.Context())
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// alarmSummary is the admin-surface shape for an active alarm: enough to
// triage without shipping the full wire record.
type alarmSummary struct {
	AlarmID   int64  `json:"alarmId"`
	UEI       string `json:"uei"`
	Severity  string `json:"severity"`
	NodeLabel string `json:"nodeLabel"`
	LastSent  string `json:"lastSent"`
}

func (s *Server) handleAlarms(w http.ResponseWriter, r *http.Request) {
	entries := s.alarms.Iterate()
	out := make(map[string]alarmSummary, len(entries))
	for k, v := range entries {
		nodeLabel := v.Alarm.NodeCriteria.Label
		if nodeLabel == "" {
			if n, ok := s.nodes.GetByKey(nodeCacheKey(v.Alarm)); ok {
				nodeLabel = n.Label
			}
		}
		out[k] = alarmSummary{
			AlarmID:   v.Alarm.ID,
			UEI:       v.Alarm.UEI,
			Severity:  v.Alarm.Severity.String(),
			NodeLabel: nodeLabel,
			LastSent:  v.LastSent.UTC().Format(time.RFC3339),
		}
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

// nodeCacheKey mirrors model.Node.Key() for the NodeCriteria carried on an
// alarm, so an alarm can be resolved to a node label without a node ID
// lookup method on NodeCache.
func nodeCacheKey(a model.Alarm) string {
	if a.NodeCriteria.ForeignSource != "" && a.NodeCriteria.ForeignID != "" {
		return a.NodeCriteria.ForeignSource + ":" + a.NodeCriteria.ForeignID
	}
	return fmt.Sprintf("%d", a.NodeCriteria.ID)
}

// nodeSummary is the admin-surface shape for a cached node: identity and
// grouping fields, without the full interface/metadata payload.
type nodeSummary struct {
	ID            int64    `json:"id"`
	Label         string   `json:"label"`
	ForeignSource string   `json:"foreignSource,omitempty"`
	ForeignID     string   `json:"foreignId,omitempty"`
	Location      string   `json:"location,omitempty"`
	Categories    []string `json:"categories,omitempty"`
	MetadataCount int      `json:"metadataCount"`
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	snapshot := s.nodes.Snapshot()
	out := make([]nodeSummary, 0, len(snapshot))
	for _, n := range snapshot {
		out = append(out, nodeSummary{
			ID:            n.ID,
			Label:         n.Label,
			ForeignSource: n.ForeignSource,
			ForeignID:     n.ForeignID,
			Location:      n.Location,
			Categories:    n.Categories,
			MetadataCount: len(n.FlatMetadata),
		})
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(out)
}

func (s *Server) handleNodeDetail(w http.ResponseWriter, r *http.Request) {
	key := strings.TrimPrefix(r.URL.Path, "/api/v1/bridge/nodes/")
	if key == "" {
		http.Error(w, "node key required", http.StatusBadRequest)
		return
	}
	n, ok := s.nodes.GetByKey(key)
	if !ok {
		http.Error(w, fmt.Sprintf("node %q not found", key), http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(n)
}

func (s *Server) handleResend(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	select {
	case s.resend <- struct{}{}:
	default:
		// A resend is already pending; the scheduler will pick this
		// trigger up on its next cycle regardless.
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusAccepted)
	fmt.Fprintln(w, "resend triggered")
}

func (s *Server) handleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	s.alarms.Clear()
	if c, ok := s.nodes.(interface{ Clear() }); ok {
		c.Clear()
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "caches cleared")
}

func (s *Server) handleAlertmanagerStatus(w http.ResponseWriter, r *http.Request) {
	if s.am == nil {
		http.Error(w, "alertmanager sink not configured", http.StatusServiceUnavailable)
		return
	}
	body, ok := s.am.StatusBody(r.Context())
	if !ok {
		http.Error(w, "alertmanager status probe failed", http.StatusBadGateway)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(body))
}

// ListenAndServe starts the admin HTTP server on addr, blocking until ctx
// is canceled or the server errors.
func ListenAndServe(ctx context.Context, addr string, s *Server) error {
	srv := &http.Server{Addr: addr, Handler: s}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Shutdown(context.Background())
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
