package domain

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// TopologyNode is a vertex of the network graph.
type TopologyNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// TopologyLink is a directed edge between two nodes.
type TopologyLink struct {
	SourceID      string  `json:"source_id"`
	DestinationID string  `json:"destination_id"`
	BandwidthMbps float64 `json:"bandwidth_mbps"`
}

// Key identifies the link independently of its bandwidth.
func (l TopologyLink) Key() string {
	return l.SourceID + "->" + l.DestinationID
}

// Topology is an immutable, validated node/link graph.
// The zero value is the empty topology.
type Topology struct {
	nodes []TopologyNode
	links []TopologyLink
}

// NewTopology validates referential integrity and builds a Topology.
// Node ids must be non-empty and unique; both endpoints of every link must exist.
func NewTopology(nodes []TopologyNode, links []TopologyLink) (Topology, error) {
	ids := make(map[string]struct{}, len(nodes))
	for _, n := range nodes {
		if strings.TrimSpace(n.ID) == "" {
			return Topology{}, fmt.Errorf("%w: node with empty id", ErrInvalidTopology)
		}
		if _, dup := ids[n.ID]; dup {
			return Topology{}, fmt.Errorf("%w: duplicate node id %q", ErrInvalidTopology, n.ID)
		}
		ids[n.ID] = struct{}{}
	}

	seen := make(map[string]struct{}, len(links))
	for _, l := range links {
		if _, ok := ids[l.SourceID]; !ok {
			return Topology{}, fmt.Errorf("%w: link %s references unknown source %q", ErrInvalidTopology, l.Key(), l.SourceID)
		}
		if _, ok := ids[l.DestinationID]; !ok {
			return Topology{}, fmt.Errorf("%w: link %s references unknown destination %q", ErrInvalidTopology, l.Key(), l.DestinationID)
		}
		if l.BandwidthMbps < 0 {
			return Topology{}, fmt.Errorf("%w: link %s has negative bandwidth", ErrInvalidTopology, l.Key())
		}
		if _, dup := seen[l.Key()]; dup {
			return Topology{}, fmt.Errorf("%w: duplicate link %s", ErrInvalidTopology, l.Key())
		}
		seen[l.Key()] = struct{}{}
	}

	t := Topology{
		nodes: append([]TopologyNode(nil), nodes...),
		links: append([]TopologyLink(nil), links...),
	}
	sort.Slice(t.nodes, func(i, j int) bool { return t.nodes[i].ID < t.nodes[j].ID })
	sort.Slice(t.links, func(i, j int) bool { return t.links[i].Key() < t.links[j].Key() })
	return t, nil
}

// Nodes returns a copy of the nodes, sorted by id.
func (t Topology) Nodes() []TopologyNode {
	return append([]TopologyNode(nil), t.nodes...)
}

// Links returns a copy of the links, sorted by key.
func (t Topology) Links() []TopologyLink {
	return append([]TopologyLink(nil), t.links...)
}

// IsEmpty reports whether the topology has no nodes.
func (t Topology) IsEmpty() bool {
	return len(t.nodes) == 0
}

type topologyJSON struct {
	Nodes []TopologyNode `json:"nodes"`
	Links []TopologyLink `json:"links"`
}

// MarshalJSON exposes the graph to API and websocket clients.
func (t Topology) MarshalJSON() ([]byte, error) {
	out := topologyJSON{Nodes: t.nodes, Links: t.links}
	if out.Nodes == nil {
		out.Nodes = []TopologyNode{}
	}
	if out.Links == nil {
		out.Links = []TopologyLink{}
	}
	return json.Marshal(out)
}

// UnmarshalJSON rebuilds a Topology, enforcing the same integrity rules as NewTopology.
func (t *Topology) UnmarshalJSON(data []byte) error {
	var in topologyJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	topo, err := NewTopology(in.Nodes, in.Links)
	if err != nil {
		return err
	}
	*t = topo
	return nil
}

// TopologyDiff lists the changes between two topologies.
// Nodes are keyed by ID and links by (SourceID, DestinationID); a label or
// bandwidth change is reported in the Changed lists.
type TopologyDiff struct {
	AddedNodes   []TopologyNode `json:"added_nodes,omitempty"`
	RemovedNodes []TopologyNode `json:"removed_nodes,omitempty"`
	ChangedNodes []TopologyNode `json:"changed_nodes,omitempty"`
	AddedLinks   []TopologyLink `json:"added_links,omitempty"`
	RemovedLinks []TopologyLink `json:"removed_links,omitempty"`
	ChangedLinks []TopologyLink `json:"changed_links,omitempty"`
}

// IsEmpty reports whether nothing changed.
func (d TopologyDiff) IsEmpty() bool {
	return len(d.AddedNodes) == 0 && len(d.RemovedNodes) == 0 && len(d.ChangedNodes) == 0 &&
		len(d.AddedLinks) == 0 && len(d.RemovedLinks) == 0 && len(d.ChangedLinks) == 0
}

// DiffTopology computes the minimal change set from previous to current.
// Output slices are ordered like Topology.Nodes and Topology.Links.
func DiffTopology(previous, current Topology) TopologyDiff {
	var diff TopologyDiff

	prevNodes := make(map[string]TopologyNode, len(previous.nodes))
	for _, n := range previous.nodes {
		prevNodes[n.ID] = n
	}
	curNodes := make(map[string]struct{}, len(current.nodes))
	for _, n := range current.nodes {
		curNodes[n.ID] = struct{}{}
		old, ok := prevNodes[n.ID]
		switch {
		case !ok:
			diff.AddedNodes = append(diff.AddedNodes, n)
		case old != n:
			diff.ChangedNodes = append(diff.ChangedNodes, n)
		}
	}
	for _, n := range previous.nodes {
		if _, ok := curNodes[n.ID]; !ok {
			diff.RemovedNodes = append(diff.RemovedNodes, n)
		}
	}

	prevLinks := make(map[string]TopologyLink, len(previous.links))
	for _, l := range previous.links {
		prevLinks[l.Key()] = l
	}
	curLinks := make(map[string]struct{}, len(current.links))
	for _, l := range current.links {
		curLinks[l.Key()] = struct{}{}
		old, ok := prevLinks[l.Key()]
		switch {
		case !ok:
			diff.AddedLinks = append(diff.AddedLinks, l)
		case old != l:
			diff.ChangedLinks = append(diff.ChangedLinks, l)
		}
	}
	for _, l := range previous.links {
		if _, ok := curLinks[l.Key()]; !ok {
			diff.RemovedLinks = append(diff.RemovedLinks, l)
		}
	}

	return diff
}
