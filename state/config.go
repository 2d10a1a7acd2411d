package state

import (
	"cmp"
	"fmt"
	"maps"
	"net/netip"
	"slices"
	"strconv"
	"strings"
)

type NodeCfg struct {
	Id        NodeId
	Addresses []netip.Addr   `yaml:",omitempty"`
	Prefixes  []netip.Prefix `yaml:",omitempty"`
}

// LinkCfg is a bidirectional link between two nodes
type LinkCfg struct {
	A      NodeId
	B      NodeId
	Weight Metric `yaml:",omitempty"` // defaults to DefaultLinkWeight
	Down   bool   `yaml:",omitempty"` // link starts down
}

// EventCfg changes a link at a given tick. Exactly one of Up, Down or Weight should be set.
type EventCfg struct {
	At     Tick
	A      NodeId
	B      NodeId
	Up     bool   `yaml:",omitempty"`
	Down   bool   `yaml:",omitempty"`
	Weight Metric `yaml:",omitempty"`
}

// SimCfg describes a simulated network
type SimCfg struct {
	UpdateInterval Tick      `yaml:"update_interval,omitempty"`
	PoisonReverse  bool      `yaml:"poison_reverse,omitempty"`
	AllowExpire    bool      `yaml:"allow_expire,omitempty"`
	Nodes          []NodeCfg
	Graph          []string   `yaml:",omitempty"` // links of weight DefaultLinkWeight, see ParseGraph
	Links          []LinkCfg  `yaml:",omitempty"`
	Events         []EventCfg `yaml:",omitempty"`
}

func (c *SimCfg) NodeIds() []NodeId {
	ids := make([]NodeId, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		ids = append(ids, n.Id)
	}
	return ids
}

func (c *SimCfg) TryGetNode(node NodeId) *NodeCfg {
	idx := slices.IndexFunc(c.Nodes, func(cfg NodeCfg) bool {
		return cfg.Id == node
	})
	if idx == -1 {
		return nil
	}
	return &c.Nodes[idx]
}

func (c *SimCfg) IsNode(node NodeId) bool {
	return c.TryGetNode(node) != nil
}

// AllLinks returns the links expanded from the graph followed by the explicit links
func (c *SimCfg) AllLinks() ([]LinkCfg, error) {
	names := make([]string, 0, len(c.Nodes))
	for _, n := range c.Nodes {
		names = append(names, strconv.FormatInt(int64(n.Id), 10))
	}
	links := make([]LinkCfg, 0, len(c.Links))
	if len(c.Graph) != 0 {
		pairs, err := ParseGraph(c.Graph, names)
		if err != nil {
			return nil, err
		}
		for _, p := range pairs {
			a, _ := strconv.ParseInt(p.V1, 10, 64)
			b, _ := strconv.ParseInt(p.V2, 10, 64)
			pair := MakeSortedPair(NodeId(a), NodeId(b))
			links = append(links, LinkCfg{A: pair.V1, B: pair.V2, Weight: DefaultLinkWeight})
		}
		slices.SortFunc(links, func(x, y LinkCfg) int {
			return cmp.Or(cmp.Compare(x.A, y.A), cmp.Compare(x.B, y.B))
		})
	}
	for _, l := range c.Links {
		if l.Weight == 0 {
			l.Weight = DefaultLinkWeight
		}
		links = append(links, l)
	}
	return links, nil
}

// ExpandConfig fills in defaults
func ExpandConfig(cfg *SimCfg) {
	if cfg.UpdateInterval <= 0 {
		cfg.UpdateInterval = DefaultUpdateInterval
	}
	for idx, node := range cfg.Nodes {
		// advertise addresses as host prefixes (/32 or /128)
		for _, addr := range node.Addresses {
			node.Prefixes = append([]netip.Prefix{AddrToPrefix(addr)}, node.Prefixes...)
		}
		node.Addresses = nil
		cfg.Nodes[idx] = node
	}
}

func AddrToPrefix(addr netip.Addr) netip.Prefix {
	res, err := addr.Prefix(addr.BitLen())
	if err != nil {
		panic(err)
	}
	return res
}

func parseSymbolList(s string, validSymbols []string) ([]string, error) {
	spl := strings.Split(strings.TrimSpace(s), ",")
	line := make([]string, 0)
	for _, s := range spl {
		x := strings.TrimSpace(s)
		if x == "" {
			continue
		}
		if !slices.Contains(validSymbols, x) {
			return nil, fmt.Errorf(`%s is not a valid node/group`, x)
		}
		line = append(line, x)
	}
	if len(line) == 0 {
		return nil, fmt.Errorf(`node/group list must not be empty`)
	}
	slices.Sort(line)
	return line, nil
}

/*
ParseGraph Graph syntax is something like this:

Group1 = 1, 2, 3

Group2 = 4, 5

Group1, Group2, 6 // Group1, Group2, 6 will all be interconnected, but not within Group1 or Group2

Group1, Group1 // every node is connected to every other node

8, 9 // 8 and 9 will be connected

graph represents the above graph
nodes represents a set of unique terminal nodes that the graph will evaluate down to
*/
func ParseGraph(graph []string, nodes []string) ([]Pair[string, string], error) {
	parsedPairings := make([]Pair[string, string], 0)

	groups := make(map[string][]string)

	symbols := slices.Clone(nodes)

	// pass 0, collect all symbols

	for _, line := range graph {
		line = strings.ToLower(strings.TrimSpace(line))
		if strings.Contains(line, "=") {
			// group definition
			spl := strings.Split(line, "=")
			if len(spl) != 2 {
				return nil, fmt.Errorf("invalid graph: %s. group definition must contain one '='", line)
			}
			grp := strings.TrimSpace(spl[0])
			if slices.Contains(nodes, grp) {
				return nil, fmt.Errorf("group name must not be a node name: %s", grp)
			}
			symbols = append(symbols, grp)
		}
	}
	slices.Sort(symbols)
	symbols = slices.Compact(symbols)

	// used for topological sorting
	// map: group -> []<groups that the group depends on>
	topo := make(map[string][]string)
	expansion := make(map[string][]string)

	// pass 1, parse graph
	for _, line := range graph {
		line = strings.ToLower(strings.TrimSpace(line))
		if strings.Contains(line, "=") {
			spl := strings.Split(line, "=")
			grp := strings.TrimSpace(spl[0])
			if _, ok := groups[grp]; ok {
				return nil, fmt.Errorf("duplicate group name: %s", grp)
			}
			lst, err := parseSymbolList(spl[1], symbols)
			if err != nil {
				return nil, err
			}
			deps := make([]string, 0)
			for _, l := range lst {
				if !slices.Contains(nodes, l) {
					deps = append(deps, l)
				} else {
					expansion[grp] = append(expansion[grp], l)
				}
			}
			slices.Sort(deps)
			deps = slices.Compact(deps)

			topo[grp] = deps
			groups[grp] = lst
		} else {
			names, err := parseSymbolList(line, symbols)
			if err != nil {
				return nil, err
			}
			if len(names) < 2 {
				return nil, fmt.Errorf("invalid pairing, %v", names)
			}
			interconnect := make([]string, 0)
			for _, name := range names {
				for _, node := range interconnect {
					parsedPairings = append(parsedPairings, MakeSortedPair(node, name))
				}
				interconnect = append(interconnect, name)
			}
			SortPairs(parsedPairings)
			parsedPairings = slices.Compact(parsedPairings)
		}
	}

	// pass 2, expand group names in topological order
	for len(topo) > 0 {
		var group string
		for _, k := range slices.Sorted(maps.Keys(topo)) {
			if len(topo[k]) == 0 {
				group = k
				break
			}
		}
		if group == "" {
			cycleNodes := slices.Sorted(maps.Keys(topo))
			return nil, fmt.Errorf("cycle detected in graph: %v", cycleNodes)
		}
		delete(topo, group)

		for k, deps := range topo {
			if slices.Contains(deps, group) {
				expansion[k] = append(expansion[k], expansion[group]...)
				slices.Sort(expansion[k])
				expansion[k] = slices.Compact(expansion[k])
				topo[k] = slices.DeleteFunc(deps, func(dep string) bool {
					return dep == group
				})
			}
		}
	}

	// pass 3, rewrite pairings
	pairings := make([]Pair[string, string], 0)
	expand := func(sym string) []string {
		if slices.Contains(nodes, sym) {
			return []string{sym}
		}
		return expansion[sym]
	}
	for _, pair := range parsedPairings {
		for _, x := range expand(pair.V1) {
			for _, y := range expand(pair.V2) {
				if x != y {
					pairings = append(pairings, MakeSortedPair(x, y))
				}
			}
		}
	}
	SortPairs(pairings)
	pairings = slices.Compact(pairings)
	return pairings, nil
}
