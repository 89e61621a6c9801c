// Package topology defines the small set of enums and the location
// value shared by every other package in the placement engine: node
// state, the eight-level topology hierarchy used for affinity checks,
// and the spread levels that index into it. Nothing here depends on
// any other internal package, which keeps it safe for dedup, strategy,
// ring, placement, and affinity to all import it without cycles.
package topology

import "fmt"

// NodeState is the lifecycle state of a cluster node. The zero value
// is Down so a zero-valued Node never appears healthy by accident.
type NodeState int

const (
	Down NodeState = iota
	Up
	Joining
	Leaving
	Suspect
	Recovering
	Maintenance
)

func (s NodeState) String() string {
	switch s {
	case Up:
		return "Up"
	case Joining:
		return "Joining"
	case Leaving:
		return "Leaving"
	case Down:
		return "Down"
	case Suspect:
		return "Suspect"
	case Recovering:
		return "Recovering"
	case Maintenance:
		return "Maintenance"
	default:
		return fmt.Sprintf("NodeState(%d)", int(s))
	}
}

// SpreadLevel names one of the eight fields in Location, used by
// affinity rules to say which granularity a replica set must spread
// across.
type SpreadLevel int

const (
	LevelNode SpreadLevel = iota
	LevelRack
	LevelCage
	LevelDatacenter
	LevelAvailabilityZone
	LevelRegion
	LevelCountry
	LevelContinent
)

func (l SpreadLevel) String() string {
	switch l {
	case LevelNode:
		return "node"
	case LevelRack:
		return "rack"
	case LevelCage:
		return "cage"
	case LevelDatacenter:
		return "datacenter"
	case LevelAvailabilityZone:
		return "availability_zone"
	case LevelRegion:
		return "region"
	case LevelCountry:
		return "country"
	case LevelContinent:
		return "continent"
	default:
		return fmt.Sprintf("SpreadLevel(%d)", int(l))
	}
}

// Location pins a node to a position in the physical topology. Country
// and continent are deliberately narrower than the other fields: there
// are only ever a few hundred countries and a handful of continents,
// so a full 32-bit identifier would be wasted space across a large
// fleet of nodes.
type Location struct {
	Node             uint32
	Rack             uint32
	Cage             uint32
	Datacenter       uint32
	AvailabilityZone uint32
	Region           uint32
	Country          uint16
	Continent        uint8
}

// ValueAt extracts the field named by level as a uint32, so affinity
// checks can treat all eight levels uniformly.
func (l Location) ValueAt(level SpreadLevel) uint32 {
	switch level {
	case LevelNode:
		return l.Node
	case LevelRack:
		return l.Rack
	case LevelCage:
		return l.Cage
	case LevelDatacenter:
		return l.Datacenter
	case LevelAvailabilityZone:
		return l.AvailabilityZone
	case LevelRegion:
		return l.Region
	case LevelCountry:
		return uint32(l.Country)
	case LevelContinent:
		return uint32(l.Continent)
	default:
		return 0
	}
}
