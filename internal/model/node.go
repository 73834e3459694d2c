// Package model defines the data types shared across the bridge: the
// monitored-node directory, fault alarms, and the Alertmanager-shaped
// alerts produced from them.
package model

import (
	"strconv"
	"time"
)

// IPInterface is an IP-layer interface recorded against a Node.
type IPInterface struct {
	ID          int64    `json:"id"`
	Address     string   `json:"address"`
	IfIndex     int      `json:"ifIndex"`
	PrimaryType string   `json:"primaryType"`
	Services    []string `json:"services,omitempty"`
}

// SnmpInterface is an SNMP-layer interface recorded against a Node.
type SnmpInterface struct {
	ID          int64  `json:"id"`
	IfIndex     int    `json:"ifIndex"`
	Descr       string `json:"descr"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	Speed       int64  `json:"speed"`
	PhysAddr    string `json:"physAddr"`
	AdminStatus string `json:"adminStatus"`
	OperStatus  string `json:"operStatus"`
	Alias       string `json:"alias"`
}

// Node is an immutable snapshot of a monitored node as known at the time
// it was read off the node-inventory stream.
type Node struct {
	ID             int64                        `json:"id"`
	ForeignSource  string                       `json:"foreignSource,omitempty"`
	ForeignID      string                       `json:"foreignId,omitempty"`
	Location       string                       `json:"location,omitempty"`
	Label          string                       `json:"label,omitempty"`
	CreatedAt      time.Time                    `json:"createdAt"`
	SysContact     string                       `json:"sysContact,omitempty"`
	SysDescription string                       `json:"sysDescription,omitempty"`
	SysObjectID    string                       `json:"sysObjectId,omitempty"`
	Categories     []string                     `json:"categories,omitempty"`
	IPInterfaces   []IPInterface                `json:"ipInterfaces,omitempty"`
	SnmpInterfaces []SnmpInterface               `json:"snmpInterfaces,omitempty"`
	Metadata       map[string]map[string]string `json:"metadata,omitempty"`

	// FlatMetadata is derived from Metadata as "context:key" -> value. It is
	// computed once by Flatten rather than on every lookup, since the
	// mapper reads it on every resend tick.
	FlatMetadata map[string]string `json:"-"`
}

// Key returns the node's identity key: "foreignSource:foreignId" when both
// are non-empty, else the decimal node id. This is the primary-map key used
// by NodeCache.
func (n *Node) Key() string {
	if n.ForeignSource != "" && n.ForeignID != "" {
		return n.ForeignSource + ":" + n.ForeignID
	}
	return strconv.FormatInt(n.ID, 10)
}

// Flatten recomputes FlatMetadata from Metadata. Callers that construct a
// Node directly (e.g. decoders) must call this before handing the node to
// NodeCache.Put so the mapper sees a consistent flattened view.
func (n *Node) Flatten() {
	if len(n.Metadata) == 0 {
		n.FlatMetadata = nil
		return
	}
	flat := make(map[string]string)
	for ctx, kv := range n.Metadata {
		for k, v := range kv {
			flat[ctx+":"+k] = v
		}
	}
	n.FlatMetadata = flat
}

// NodeCriteria is the reference carried on an Alarm back to the node it
// concerns. It mirrors a subset of Node fields as known by the alarm
// source at the time the alarm was raised, which may be stale relative to
// the current NodeCache entry.
type NodeCriteria struct {
	ID            int64  `json:"id"`
	ForeignSource string `json:"foreignSource,omitempty"`
	ForeignID     string `json:"foreignId,omitempty"`
	Label         string `json:"label,omitempty"`
	Location      string `json:"location,omitempty"`
}
