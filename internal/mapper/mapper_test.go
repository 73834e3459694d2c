package mapper

import (
	"testing"
	"time"

	"github.com/opennms-forks/alertbridge/internal/config"
	"github.com/opennms-forks/alertbridge/internal/model"
)

type fakeNodes struct {
	nodes map[string]*model.Node
}

func (f fakeNodes) GetByCriteria(crit model.NodeCriteria) (*model.Node, bool) {
	if crit.ForeignSource != "" && crit.ForeignID != "" {
		n, ok := f.nodes[crit.ForeignSource+":"+crit.ForeignID]
		return n, ok
	}
	return nil, false
}

func TestMapBasicAlert(t *testing.T) {
	m := New(config.AlertConfig{}, "http://opennms.example/opennms", fakeNodes{})
	alarm := model.Alarm{
		ID:           101,
		ReductionKey: "uei.opennms.org/nodes/nodeDown:101",
		UEI:          "uei.opennms.org/nodes/nodeDown",
		Severity:     model.SeverityMajor,
		Type:         model.AlarmTypeRaise,
		LogMessage:   "Node went down",
	}

	alert, ok := m.Map(alarm, time.Now())
	if !ok {
		t.Fatal("Map() rejected alarm, want accepted")
	}
	if alert.Labels["alertname"] != "opennms_nodes_nodeDown" {
		t.Errorf("alertname = %q", alert.Labels["alertname"])
	}
	if alert.Labels["severity"] != "major" {
		t.Errorf("severity = %q", alert.Labels["severity"])
	}
	if alert.Labels["opennms_reduction_key"] != alarm.ReductionKey {
		t.Errorf("opennms_reduction_key = %q", alert.Labels["opennms_reduction_key"])
	}
	if alert.Annotations["summary"] != "Node went down" {
		t.Errorf("summary = %q", alert.Annotations["summary"])
	}
	if alert.EndsAt != "" {
		t.Errorf("EndsAt = %q, want empty for a live alarm", alert.EndsAt)
	}
}

func TestMapFilterIncludeSeverities(t *testing.T) {
	cfg := config.AlertConfig{IncludeSeverities: map[string]bool{"critical": true}}
	m := New(cfg, "http://x", fakeNodes{})

	_, ok := m.Map(model.Alarm{UEI: "uei.opennms.org/x", Severity: model.SeverityMinor}, time.Now())
	if ok {
		t.Error("Map() accepted a severity outside IncludeSeverities")
	}

	alert, ok := m.Map(model.Alarm{UEI: "uei.opennms.org/x", Severity: model.SeverityCritical}, time.Now())
	if !ok {
		t.Fatal("Map() rejected a severity inside IncludeSeverities")
	}
	if alert.Labels["severity"] != "critical" {
		t.Errorf("severity = %q", alert.Labels["severity"])
	}
}

func TestMapFilterExcludeUEIs(t *testing.T) {
	cfg := config.AlertConfig{ExcludeUEIs: map[string]bool{"uei.opennms.org/internal/discovery/newSuspect": true}}
	m := New(cfg, "http://x", fakeNodes{})

	_, ok := m.Map(model.Alarm{UEI: "uei.opennms.org/internal/discovery/newSuspect", Severity: model.SeverityWarning}, time.Now())
	if ok {
		t.Error("Map() accepted an excluded UEI")
	}
}

func TestAlertNamePreservesCase(t *testing.T) {
	m := New(config.AlertConfig{}, "http://x", fakeNodes{})
	alert, ok := m.Map(model.Alarm{UEI: "uei.opennms.org/nodes/nodeUpBGPPeer", Severity: model.SeverityNormal}, time.Now())
	if !ok {
		t.Fatal("Map() rejected alarm")
	}
	if alert.Labels["alertname"] != "opennms_nodes_nodeUpBGPPeer" {
		t.Errorf("alertname = %q, want case preserved", alert.Labels["alertname"])
	}
}

func TestLabelKeysAreLowercasedAndSanitized(t *testing.T) {
	cfg := config.AlertConfig{StaticLabels: map[string]string{"Team-Name": "netops"}}
	m := New(cfg, "http://x", fakeNodes{})
	alert, ok := m.Map(model.Alarm{UEI: "uei.opennms.org/x", Severity: model.SeverityWarning}, time.Now())
	if !ok {
		t.Fatal("Map() rejected alarm")
	}
	if alert.Labels["team_name"] != "netops" {
		t.Errorf("label keys should be lowercased/sanitized: %v", alert.Labels)
	}
	if _, bad := alert.Labels["Team-Name"]; bad {
		t.Error("unsanitized key should not be present")
	}
}

func TestStaticLabelsOverrideComputedLabels(t *testing.T) {
	cfg := config.AlertConfig{StaticLabels: map[string]string{"severity": "forced"}}
	m := New(cfg, "http://x", fakeNodes{})
	alert, ok := m.Map(model.Alarm{UEI: "uei.opennms.org/x", Severity: model.SeverityCritical}, time.Now())
	if !ok {
		t.Fatal("Map() rejected alarm")
	}
	if alert.Labels["severity"] != "forced" {
		t.Errorf("static label should override computed severity, got %q", alert.Labels["severity"])
	}
}

func TestMapEnrichesFromNodeCache(t *testing.T) {
	nodes := fakeNodes{nodes: map[string]*model.Node{
		"Fortinet:edge-1": {
			ID: 42, ForeignSource: "Fortinet", ForeignID: "edge-1",
			Categories: []string{"Routers", "Production"},
			SysObjectID: "1.3.6.1.4.1.12356.101.1.xxxx",
		},
	}}
	cfg := config.AlertConfig{LabelMappings: config.LabelMappingsConfig{IncludeNodeCategories: true, CategoriesLabel: "opennms_categories"}}
	m := New(cfg, "http://x", nodes)

	alarm := model.Alarm{
		UEI:      "uei.opennms.org/x",
		Severity: model.SeverityWarning,
		NodeCriteria: model.NodeCriteria{ID: 42, ForeignSource: "Fortinet", ForeignID: "edge-1"},
	}
	alert, ok := m.Map(alarm, time.Now())
	if !ok {
		t.Fatal("Map() rejected alarm")
	}
	if alert.Labels["opennms_categories"] != "Routers,Production" {
		t.Errorf("opennms_categories = %q", alert.Labels["opennms_categories"])
	}
	if alert.Labels["sys_object_id"] == "" {
		t.Error("sys_object_id label missing")
	}
}

func TestMapResolveBypassesFilter(t *testing.T) {
	cfg := config.AlertConfig{IncludeSeverities: map[string]bool{"critical": true}}
	m := New(cfg, "http://x", fakeNodes{})

	alarm := model.Alarm{UEI: "uei.opennms.org/x", Severity: model.SeverityWarning, Type: model.AlarmTypeClear}
	alert := m.MapResolve(alarm, time.Now())
	if alert.EndsAt == "" {
		t.Error("MapResolve() should always set EndsAt")
	}
}

func TestDeletedAlertSynthesizesReductionKeyOnly(t *testing.T) {
	alert := DeletedAlert("uei.opennms.org/x:404", time.Now())
	if alert.Labels["alertname"] != "opennms_alarm_deleted" {
		t.Errorf("alertname = %q", alert.Labels["alertname"])
	}
	if alert.Labels["opennms_reduction_key"] != "uei.opennms.org/x:404" {
		t.Errorf("opennms_reduction_key = %q", alert.Labels["opennms_reduction_key"])
	}
	if alert.EndsAt == "" {
		t.Error("DeletedAlert() should set EndsAt")
	}
}

func TestAlertNameEmptyUEI(t *testing.T) {
	if got := alertName(""); got != "opennms_unknown" {
		t.Errorf("alertName(\"\") = %q", got)
	}
}
