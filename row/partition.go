package row

// DecoratedKey is a partition key paired with its token, the unit the
// partition-range scan (C6) and the promoted index (C5) both order by.
// Token ordering is primary; PartitionKey only breaks ties within the rare
// (and, for the murmur3 partitioner, vanishingly rare) token collision.
type DecoratedKey struct {
	Token        uint64
	PartitionKey []byte
}

// Compare orders two decorated keys the way a partition-range scan expects:
// by token, then by raw partition-key bytes.
func (d DecoratedKey) Compare(other DecoratedKey) int {
	switch {
	case d.Token < other.Token:
		return -1
	case d.Token > other.Token:
		return 1
	}
	return compareBytes(d.PartitionKey, other.PartitionKey)
}

func compareBytes(a, b []byte) int {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// Partition is one partition's full decoded contents: its key, an optional
// partition-level deletion, the static row, and its clustered rows and
// range tombstones in clustering order.
type Partition struct {
	Key       DecoratedKey
	Deletion  DeletionTime
	Static    *Row
	Rows      []Row
	Tombstones []RangeTombstone
}
