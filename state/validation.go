package state

import (
	"fmt"
)

func NodeConfigValidator(node *NodeCfg) error {
	if node.Id <= 0 {
		return fmt.Errorf("node id %d is invalid, must be positive", node.Id)
	}
	for _, p := range node.Prefixes {
		if !p.IsValid() {
			return fmt.Errorf("node %d has an invalid prefix %s", node.Id, p)
		}
	}
	return nil
}

func LinkValidator(cfg *SimCfg, link LinkCfg) error {
	if !cfg.IsNode(link.A) {
		return fmt.Errorf("node %d not defined", link.A)
	}
	if !cfg.IsNode(link.B) {
		return fmt.Errorf("node %d not defined", link.B)
	}
	if link.A == link.B {
		return fmt.Errorf("link from node %d to itself", link.A)
	}
	if link.Weight >= INF {
		return fmt.Errorf("link %d-%d weight %d must be less than %d", link.A, link.B, link.Weight, INF)
	}
	return nil
}

func ConfigValidator(cfg *SimCfg) error {
	if cfg.UpdateInterval < 0 {
		return fmt.Errorf("update_interval must not be negative, got %d", cfg.UpdateInterval)
	}
	seen := make(map[NodeId]struct{})
	for _, node := range cfg.Nodes {
		err := NodeConfigValidator(&node)
		if err != nil {
			return err
		}
		if _, ok := seen[node.Id]; ok {
			return fmt.Errorf("duplicate node id: %d", node.Id)
		}
		seen[node.Id] = struct{}{}
	}
	links, err := cfg.AllLinks()
	if err != nil {
		return err
	}
	nodeRel := make(map[Pair[NodeId, NodeId]]struct{})
	for _, link := range links {
		err := LinkValidator(cfg, link)
		if err != nil {
			return err
		}
		edge := MakeSortedPair(link.A, link.B)
		if _, ok := nodeRel[edge]; ok {
			return fmt.Errorf("duplicate link found: %d, %d", edge.V1, edge.V2)
		}
		nodeRel[edge] = struct{}{}
	}
	for _, ev := range cfg.Events {
		if ev.At < 1 {
			return fmt.Errorf("event on link %d-%d must happen at tick 1 or later", ev.A, ev.B)
		}
		if _, ok := nodeRel[MakeSortedPair(ev.A, ev.B)]; !ok {
			return fmt.Errorf("event at tick %d references unknown link %d-%d", ev.At, ev.A, ev.B)
		}
		if ev.Weight >= INF {
			return fmt.Errorf("event at tick %d sets weight %d, must be less than %d", ev.At, ev.Weight, INF)
		}
		if ev.Up && ev.Down {
			return fmt.Errorf("event at tick %d sets link %d-%d both up and down", ev.At, ev.A, ev.B)
		}
		if !ev.Up && !ev.Down && ev.Weight == 0 {
			return fmt.Errorf("event at tick %d on link %d-%d does nothing", ev.At, ev.A, ev.B)
		}
	}
	return nil
}
