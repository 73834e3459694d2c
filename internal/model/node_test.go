package model

import "testing"

func TestNodeKey(t *testing.T) {
	cases := []struct {
		name string
		node Node
		want string
	}{
		{"foreign source and id", Node{ID: 42, ForeignSource: "Fortinet", ForeignID: "edge-1"}, "Fortinet:edge-1"},
		{"numeric id only", Node{ID: 42}, "42"},
		{"foreign source without id falls back to numeric", Node{ID: 7, ForeignSource: "Fortinet"}, "7"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.node.Key(); got != tc.want {
				t.Errorf("Key() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestNodeFlatten(t *testing.T) {
	n := Node{
		Metadata: map[string]map[string]string{
			"requisition": {"region": "east1"},
			"custom":      {"owner": "netops"},
		},
	}
	n.Flatten()

	if n.FlatMetadata["requisition:region"] != "east1" {
		t.Errorf("FlatMetadata[requisition:region] = %q", n.FlatMetadata["requisition:region"])
	}
	if n.FlatMetadata["custom:owner"] != "netops" {
		t.Errorf("FlatMetadata[custom:owner] = %q", n.FlatMetadata["custom:owner"])
	}
}

func TestNodeFlattenEmpty(t *testing.T) {
	n := Node{}
	n.Flatten()
	if n.FlatMetadata != nil {
		t.Errorf("FlatMetadata = %v, want nil", n.FlatMetadata)
	}
}
