// Package budget enforces one device-memory ceiling across independent caches.
//
// A Coordinator does not own any cache entry. Caches register themselves as
// Tenants for their whole lifetime and report, on demand, how many bytes
// they occupy and how many of those could be reclaimed (unpinned). The
// coordinator's running total is never stored; it is summed from the
// tenants each time a decision is made.
//
// # Admission
//
//	total + requested <= max              admitted, nothing evicted
//	total + requested <= max + reclaimable every tenant evicts all of its
//	                                      unpinned entries, then admitted
//	otherwise                             *OutOfBudgetError, nothing changes
//
// The sweep is deliberately coarse: once eviction is needed, everything that
// may be evicted is evicted, in every tenant. It never touches pinned
// entries, so it is always safe to run.
//
// # Locking
//
// The coordinator mutex is the single lock for every tenant's bookkeeping.
// Tenants run their mutations inside Exclusive, so the decision to evict,
// the eviction and the insert of the new entry form one critical section:
//
//	err := coord.Exclusive(func(tx *budget.Txn) error {
//	    if err := tx.Admit(size); err != nil {
//	        return err
//	    }
//	    // upload and insert while still holding the lock
//	    return nil
//	})
//
// Tenant methods are always invoked with that lock held and must not call
// back into the coordinator.
package budget
