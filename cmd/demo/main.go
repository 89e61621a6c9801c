// cmd/demo is a CLI entry-point built with Cobra. Unlike a client/server
// pair, every command builds a fresh in-process engine from flags,
// exercises it, and prints the result — there is no network surface.
//
// Usage:
//
//	placementctl locate mykey --nodes 1,2,3,4,5 --replicas 3
//	placementctl stats --nodes 1,2,3,4,5
//	placementctl rebalance --old 1,2,3 --new 1,3,4
//	placementctl affinity mykey --nodes 1,2,3,4,5 --rack-spread 2
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"placementcore/internal/affinity"
	"placementcore/internal/engine"
	"placementcore/internal/ring"
	"placementcore/internal/strategy"
	"placementcore/internal/topology"
)

var (
	strategyName string
	seed         uint64
	nodeSpec     string
	replicas     int
)

func main() {
	root := &cobra.Command{
		Use:   "placementctl",
		Short: "Exercise the placement engine in-process",
	}

	root.PersistentFlags().StringVar(&strategyName, "strategy", "ketama",
		"placement strategy: ketama|jump|rendezvous|maglev|bounded")
	root.PersistentFlags().Uint64Var(&seed, "seed", 1, "hash seed")
	root.PersistentFlags().StringVar(&nodeSpec, "nodes", "1,2,3,4,5",
		"comma-separated node IDs (optionally id:weight:rack)")
	root.PersistentFlags().IntVar(&replicas, "replicas", 3, "replica count for locate/affinity")

	root.AddCommand(locateCmd(), statsCmd(), rebalanceCmd(), affinityCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// parsedNode is one entry from --nodes: "id", "id:weight", or
// "id:weight:rack".
type parsedNode struct {
	id     uint64
	weight uint32
	rack   uint32
}

func parseNodeSpec(spec string) ([]parsedNode, error) {
	parts := strings.Split(spec, ",")
	out := make([]parsedNode, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		fields := strings.Split(p, ":")
		id, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid node id %q: %w", fields[0], err)
		}
		pn := parsedNode{id: id, weight: 100, rack: uint32(id)}
		if len(fields) > 1 {
			w, err := strconv.ParseUint(fields[1], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid weight %q: %w", fields[1], err)
			}
			pn.weight = uint32(w)
		}
		if len(fields) > 2 {
			rk, err := strconv.ParseUint(fields[2], 10, 32)
			if err != nil {
				return nil, fmt.Errorf("invalid rack %q: %w", fields[2], err)
			}
			pn.rack = uint32(rk)
		}
		out = append(out, pn)
	}
	return out, nil
}

func buildStrategy(name string, seed uint64) (strategy.Strategy, ring.StrategyKind, error) {
	switch name {
	case "ketama":
		return strategy.NewKetama(strategy.DefaultKetamaConfig(seed)), ring.StrategyKetama, nil
	case "jump":
		return strategy.NewJump(seed), ring.StrategyJump, nil
	case "rendezvous":
		return strategy.NewRendezvous(seed), ring.StrategyRendezvous, nil
	case "maglev":
		return strategy.NewMaglev(seed), ring.StrategyMaglev, nil
	case "bounded":
		return strategy.NewBounded(strategy.DefaultKetamaConfig(seed), 1.25), ring.StrategyBounded, nil
	default:
		return nil, 0, fmt.Errorf("unknown strategy %q", name)
	}
}

// buildEngine constructs an engine from the persistent flags and
// populates it with the nodes named by --nodes, all Up.
func buildEngine() (*engine.Engine, error) {
	strat, kind, err := buildStrategy(strategyName, seed)
	if err != nil {
		return nil, err
	}
	e, err := engine.New(engine.Config{
		Name:         "demo-ring",
		StrategyKind: kind,
		Strategy:     strat,
		Seed:         seed,
	})
	if err != nil {
		return nil, err
	}
	nodes, err := parseNodeSpec(nodeSpec)
	if err != nil {
		return nil, err
	}
	for _, n := range nodes {
		if err := e.AddNode(ring.NodeConfig{
			ID:           n.id,
			Name:         fmt.Sprintf("node-%d", n.id),
			Weight:       n.weight,
			Location:     topology.Location{Rack: n.rack},
			InitialState: topology.Up,
		}); err != nil {
			return nil, err
		}
	}
	return e, nil
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(data))
}

func locateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "locate <key>",
		Short: "Locate the replica set for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEngine()
			if err != nil {
				return err
			}
			q := e.Ring().DefaultQuorum()
			q.ReplicaCount = replicas
			p, err := e.Locate([]byte(args[0]), &q)
			if err != nil {
				return err
			}
			printJSON(p)
			return nil
		},
	}
}

func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print ring statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEngine()
			if err != nil {
				return err
			}
			printJSON(e.GetStats())
			return nil
		},
	}
}

func rebalanceCmd() *cobra.Command {
	var oldSpec, newSpec string
	cmd := &cobra.Command{
		Use:   "rebalance",
		Short: "Compute a rebalance plan between two membership sets",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEngine()
			if err != nil {
				return err
			}
			oldIDs, err := idsFromSpec(oldSpec)
			if err != nil {
				return err
			}
			newIDs, err := idsFromSpec(newSpec)
			if err != nil {
				return err
			}
			plan := e.PlanRebalance(oldIDs, newIDs)
			printJSON(plan)
			return nil
		},
	}
	cmd.Flags().StringVar(&oldSpec, "old", "", "comma-separated node IDs before the change")
	cmd.Flags().StringVar(&newSpec, "new", "", "comma-separated node IDs after the change")
	return cmd
}

func idsFromSpec(spec string) ([]uint64, error) {
	parsed, err := parseNodeSpec(spec)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, len(parsed))
	for i, p := range parsed {
		ids[i] = p.id
	}
	return ids, nil
}

func affinityCmd() *cobra.Command {
	var rackSpread int
	cmd := &cobra.Command{
		Use:   "affinity <key>",
		Short: "Locate a key and check rack-spread affinity over the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := buildEngine()
			if err != nil {
				return err
			}
			q := e.Ring().DefaultQuorum()
			q.ReplicaCount = replicas
			p, err := e.Locate([]byte(args[0]), &q)
			if err != nil {
				return err
			}
			report := e.CheckAffinity(p.Replicas, []affinity.Rule{affinity.RackSpread(rackSpread)})
			printJSON(struct {
				Replicas []uint64        `json:"replicas"`
				Affinity affinity.Report `json:"affinity"`
			}{p.Replicas, report})
			return nil
		},
	}
	cmd.Flags().IntVar(&rackSpread, "rack-spread", 2, "minimum distinct racks required")
	return cmd
}
