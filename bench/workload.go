package bench

import "math/rand"

// WorkloadType names a mixed-operation shape, following the teacher's
// workload.go three-constant scheme.
type WorkloadType string

const (
	// OLTP is read-heavy: 90% point lookups, 10% inserts.
	OLTP WorkloadType = "OLTP (90/10)"
	// OLAP is write-heavy: 10% point lookups, 90% inserts.
	OLAP WorkloadType = "OLAP (10/90)"
	// Reporting issues short range scans over the key space.
	Reporting WorkloadType = "Reporting (Range)"
)

// ExecuteWorkload runs ops operations of the given shape against idx, using
// rng for both the operation choice and the key. Keys are drawn from
// [0, ops) so repeated runs exercise overlapping hot keys, matching the
// teacher's workload generator.
func ExecuteWorkload(idx Index, rng *rand.Rand, wType WorkloadType, ops int) error {
	for i := 0; i < ops; i++ {
		choice := rng.Intn(100)
		key := int64(rng.Intn(ops))

		switch wType {
		case OLTP:
			if choice < 90 {
				if _, err := idx.Get(key); err != nil && err != ErrNotFound {
					return err
				}
			} else if err := idx.Insert(key, []byte("x")); err != nil {
				return err
			}
		case OLAP:
			if choice < 10 {
				if _, err := idx.Get(key); err != nil && err != ErrNotFound {
					return err
				}
			} else if err := idx.Insert(key, []byte("x")); err != nil {
				return err
			}
		case Reporting:
			it, err := idx.Range(key, key+100)
			if err != nil {
				return err
			}
			for it.Next() {
			}
			if err := it.Error(); err != nil {
				it.Close()
				return err
			}
			if err := it.Close(); err != nil {
				return err
			}
		}
	}
	return nil
}
