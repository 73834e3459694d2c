// Package mapper implements the pure alarm-to-alert translation: label and
// annotation synthesis, severity and alertname derivation, node
// enrichment, and the inclusion/exclusion filter. Mapper never mutates the
// caches it reads and never aborts — failures degrade the output instead
// of stopping the pipeline.
package mapper

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/opennms-forks/alertbridge/internal/config"
	"github.com/opennms-forks/alertbridge/internal/model"
)

// NodeLookup is the narrow capability Mapper needs from the node cache. It
// depends on this interface rather than *nodecache.Cache so tests (and any
// future alternative node source) only have to satisfy one method.
type NodeLookup interface {
	GetByCriteria(crit model.NodeCriteria) (*model.Node, bool)
}

// Mapper turns an Alarm into an Alertmanager-shaped Alert. It is
// constructed once and reused across the resend scheduler and the stream
// consumer; it carries no mutable state of its own.
type Mapper struct {
	cfg     config.AlertConfig
	baseURL string
	nodes   NodeLookup
}

// New builds a Mapper. baseURL is opennms.baseUrl, used to construct each
// alert's generatorURL.
func New(cfg config.AlertConfig, baseURL string, nodes NodeLookup) *Mapper {
	return &Mapper{cfg: cfg, baseURL: baseURL, nodes: nodes}
}

// Map applies the filter policy and, if accepted, builds the alert for a
// live (non-resolve) alarm record. The second return value is false when
// the filter rejected the record, in which case the Alert is the zero
// value and must not be sent.
func (m *Mapper) Map(alarm model.Alarm, now time.Time) (model.Alert, bool) {
	severity := mapSeverity(alarm.Severity)
	if !m.passesFilter(alarm, severity) {
		return model.Alert{}, false
	}
	return m.build(alarm, severity, now, alarm.Type == model.AlarmTypeClear), true
}

// MapResolve builds a resolve alert unconditionally, bypassing the
// inclusion/exclusion filter. Resolves are emitted even for alarms that
// would otherwise have been filtered out, because the aggregator needs to
// see the matching endsAt for whatever alert it may already hold.
func (m *Mapper) MapResolve(alarm model.Alarm, now time.Time) model.Alert {
	severity := mapSeverity(alarm.Severity)
	return m.build(alarm, severity, now, true)
}

// DeletedAlert builds the synthetic resolve emitted when a tombstone
// arrives for a reduction key ActiveAlarmTable holds no entry for — there
// is no cached alert and no raw alarm to re-map, only the key. (A clear
// record for such a key is re-mapped through MapResolve instead.)
func DeletedAlert(reductionKey string, now time.Time) model.Alert {
	return model.Alert{
		Labels: map[string]string{
			"alertname":             "opennms_alarm_deleted",
			"opennms_reduction_key": reductionKey,
		},
		Annotations: map[string]string{
			"summary": "alarm deleted upstream with no known prior state",
		},
		EndsAt: now.UTC().Format(time.RFC3339),
	}
}

func (m *Mapper) passesFilter(alarm model.Alarm, severity string) bool {
	if len(m.cfg.IncludeSeverities) > 0 && !m.cfg.IncludeSeverities[severity] {
		return false
	}
	if m.cfg.ExcludeUEIs[alarm.UEI] {
		return false
	}
	return true
}

func (m *Mapper) build(alarm model.Alarm, severity string, now time.Time, resolved bool) model.Alert {
	labels := m.buildLabels(alarm, severity)
	annotations := m.buildAnnotations(alarm)

	alert := model.Alert{
		Labels:       labels,
		Annotations:  annotations,
		GeneratorURL: fmt.Sprintf("%s/alarm/detail.htm?id=%d", strings.TrimRight(m.baseURL, "/"), alarm.ID),
	}
	if alarm.FirstEventTime > 0 {
		alert.StartsAt = time.UnixMilli(alarm.FirstEventTime).UTC().Format(time.RFC3339)
	}
	if resolved {
		alert.EndsAt = now.UTC().Format(time.RFC3339)
	}
	return alert
}

func (m *Mapper) buildLabels(alarm model.Alarm, severity string) map[string]string {
	labels := make(map[string]string)

	set := func(key, value string) {
		if value == "" {
			return
		}
		labels[key] = value
	}

	labels["alertname"] = alertName(alarm.UEI)
	set("opennms_alarm_id", strconv.FormatInt(alarm.ID, 10))
	set("opennms_reduction_key", alarm.ReductionKey)
	set("severity", severity)
	set("opennms_alarm_type", strings.ToLower(alarm.Type.String()))

	set("service", alarm.Service)
	if alarm.IPAddress != "" {
		set("instance", alarm.IPAddress)
		set("ip_address", alarm.IPAddress)
	}
	if alarm.IfIndex > 0 {
		set("if_index", strconv.Itoa(alarm.IfIndex))
	}
	set("trouble_ticket_id", alarm.TroubleTicketID)
	set("trouble_ticket_state", alarm.TroubleTicketState)
	set("managed_object_type", alarm.ManagedObjectType)
	set("managed_object_instance", alarm.ManagedObjectInstance)

	crit := alarm.NodeCriteria
	if crit.ID > 0 {
		set("node_id", strconv.FormatInt(crit.ID, 10))
		set("node_label", crit.Label)
		set("foreign_source", crit.ForeignSource)
		set("foreign_id", crit.ForeignID)
		set("location", crit.Location)

		if node, ok := m.nodes.GetByCriteria(crit); ok {
			m.applyNodeLabels(labels, node, set)
		}
	}

	for k, v := range m.cfg.StaticLabels {
		set(sanitizeLabelKey(k), v)
	}

	return sanitizeLabelKeysInPlace(labels)
}

func (m *Mapper) applyNodeLabels(labels map[string]string, node *model.Node, set func(string, string)) {
	if m.cfg.LabelMappings.IncludeNodeCategories && len(node.Categories) > 0 {
		key := m.cfg.LabelMappings.CategoriesLabel
		if key == "" {
			key = "opennms_categories"
		}
		set(key, strings.Join(node.Categories, ","))
	}

	if m.cfg.LabelMappings.IncludeNodeMetadata {
		prefix := m.cfg.LabelMappings.NodeMetadataPrefix
		for k, v := range node.FlatMetadata {
			set(prefix+sanitizeLabelKey(k), v)
		}
	}

	set("sys_object_id", node.SysObjectID)
}

func (m *Mapper) buildAnnotations(alarm model.Alarm) map[string]string {
	ann := make(map[string]string)

	set := func(key, value string) {
		if value == "" {
			return
		}
		ann[key] = value
	}

	set("summary", alarm.LogMessage)
	if m.cfg.AnnotationMappings.IncludeDescription {
		set("description", alarm.Description)
	}
	if m.cfg.AnnotationMappings.IncludeOperatorInstructions {
		set("runbook", alarm.OperatorInstructions)
	}
	if alarm.Count > 0 {
		set("alarm_count", strconv.Itoa(alarm.Count))
	}
	set("opennms_uei", alarm.UEI)

	if alarm.AckUser != "" {
		set("acknowledged_by", alarm.AckUser)
		if alarm.AckTime != nil {
			set("acknowledged_at", alarm.AckTime.UTC().Format(time.RFC3339))
		}
	}

	if m.cfg.AnnotationMappings.IncludeNodeDetails && alarm.NodeCriteria.ID > 0 {
		if node, ok := m.nodes.GetByCriteria(alarm.NodeCriteria); ok {
			if data, err := json.Marshal(node); err == nil {
				key := m.cfg.AnnotationMappings.NodeDetailsKey
				if key == "" {
					key = "opennms_node"
				}
				ann[key] = string(data)
			}
			// Marshal failure: the annotation is simply omitted. The rest
			// of the alert is unaffected.
		}
	}

	if len(alarm.RelatedAlarms) > 0 {
		keys := make([]string, 0, len(alarm.RelatedAlarms))
		for _, r := range alarm.RelatedAlarms {
			keys = append(keys, r.ReductionKey)
		}
		set("related_alarms", strings.Join(keys, ","))
	}

	return ann
}

// mapSeverity converts an OpenNMS severity to the Alertmanager severity
// vocabulary used as the "severity" label value.
func mapSeverity(s model.Severity) string {
	switch s {
	case model.SeverityCritical:
		return "critical"
	case model.SeverityMajor:
		return "major"
	case model.SeverityMinor:
		return "minor"
	case model.SeverityWarning:
		return "warning"
	case model.SeverityNormal:
		return "info"
	case model.SeverityCleared:
		return "resolved"
	case model.SeverityIndeterminate:
		return "unknown"
	default:
		return "unknown"
	}
}

// alertName derives the alertname label VALUE from a UEI. Only the longest
// matching prefix is stripped and disallowed characters are substituted;
// case is preserved deliberately — unlike every other label, alertname is
// not lowercased (the upstream source only lowercases label keys).
func alertName(uei string) string {
	if uei == "" {
		return "opennms_unknown"
	}
	body := uei
	switch {
	case strings.HasPrefix(body, "uei.opennms.org/"):
		body = strings.TrimPrefix(body, "uei.opennms.org/")
	case strings.HasPrefix(body, "uei."):
		body = strings.TrimPrefix(body, "uei.")
	}

	var b strings.Builder
	for _, r := range body {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	sanitized := b.String()
	if sanitized == "" {
		return "opennms_unknown"
	}
	if sanitized[0] >= '0' && sanitized[0] <= '9' {
		sanitized = "_" + sanitized
	}
	return "opennms_" + sanitized
}

// sanitizeLabelKey lowercases a label key and replaces any character
// outside [A-Za-z0-9_] with '_', prefixing '_' if the result would
// otherwise start with a digit. This is what I5 requires of every label
// key except "alertname", whose key name is already the literal lowercase
// string "alertname".
func sanitizeLabelKey(key string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(key) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	out := b.String()
	if out == "" {
		return "_"
	}
	if out[0] >= '0' && out[0] <= '9' {
		out = "_" + out
	}
	return out
}

// sanitizeLabelKeysInPlace rewrites a label map so every key (other than
// "alertname") satisfies I5, merging collisions deterministically (last
// key wins, in a stable lexical pass over the original keys).
func sanitizeLabelKeysInPlace(labels map[string]string) map[string]string {
	out := make(map[string]string, len(labels))
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		if k == "alertname" {
			out[k] = labels[k]
			continue
		}
		out[sanitizeLabelKey(k)] = labels[k]
	}
	return out
}
