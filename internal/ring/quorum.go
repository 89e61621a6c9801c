package ring

// ConsistencyLevel names the read/write consistency a Quorum
// expresses, independent of the raw replica-count arithmetic.
type ConsistencyLevel int

const (
	One ConsistencyLevel = iota
	QuorumLevel
	All
	LocalQuorum
	EachQuorum
	LocalOne
)

func (c ConsistencyLevel) String() string {
	switch c {
	case One:
		return "one"
	case QuorumLevel:
		return "quorum"
	case All:
		return "all"
	case LocalQuorum:
		return "local_quorum"
	case EachQuorum:
		return "each_quorum"
	case LocalOne:
		return "local_one"
	default:
		return "unknown"
	}
}

// Quorum is carried as part of a Ring's serialized state (its
// default) and may additionally be overridden per-keyspace. It lives
// here rather than in internal/placement because the snapshot format
// embeds a default-quorum block directly in the ring header (spec
// §4.7); hosting the type in placement, which must import ring to
// operate on *Ring, would close an import cycle.
type Quorum struct {
	ReplicaCount int
	WriteQuorum  int
	WriteSync    int
	ReadQuorum   int
	ReadRepair   bool
	Consistency  ConsistencyLevel
}

// StrongQuorum requires every replica to ack both writes and reads.
func StrongQuorum() Quorum {
	return Quorum{ReplicaCount: 3, WriteQuorum: 3, WriteSync: 3, ReadQuorum: 3, ReadRepair: true, Consistency: All}
}

// EventualQuorum accepts a single replica for both writes and reads.
func EventualQuorum() Quorum {
	return Quorum{ReplicaCount: 3, WriteQuorum: 1, WriteSync: 1, ReadQuorum: 1, ReadRepair: false, Consistency: One}
}

// BalancedQuorum is the default used whenever no Quorum is given.
func BalancedQuorum() Quorum {
	return Quorum{ReplicaCount: 3, WriteQuorum: 2, WriteSync: 2, ReadQuorum: 2, ReadRepair: true, Consistency: QuorumLevel}
}

// ReadHeavyQuorum widens the replica set and relaxes the read quorum,
// trading write cost for read fan-out and read-repair coverage.
func ReadHeavyQuorum() Quorum {
	return Quorum{ReplicaCount: 5, WriteQuorum: 2, WriteSync: 2, ReadQuorum: 1, ReadRepair: true, Consistency: One}
}

// WriteHeavyQuorum relaxes the write quorum to minimize write
// latency, compensating with a stronger read quorum.
func WriteHeavyQuorum() Quorum {
	return Quorum{ReplicaCount: 3, WriteQuorum: 1, WriteSync: 1, ReadQuorum: 3, ReadRepair: false, Consistency: QuorumLevel}
}
