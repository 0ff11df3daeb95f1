// Package txnproxy implements the transaction-coordination core of a
// FoundationDB-style database: a read-version proxy and a commit proxy.
//
// The read-version proxy (internal/grv) admits GetReadVersion requests onto
// three priority queues, confirms the current epoch against the master on a
// fixed tick, and answers admission-controlled key-server-location lookups.
//
// The commit proxy (internal/commitproxy) batches incoming transactions,
// requests a commit version from the master, partitions mutations across
// resolver shards for conflict detection, applies the resulting writes to the
// replicated log, and reports outcomes back to clients — all pinned to a
// single logical thread of execution per spec.md section 5.
//
// Collaborators outside this core's scope (the master/version-oracle, the
// conflict resolvers, the replicated log, and the rate keeper) are consumed
// through the interfaces in internal/clients.
package txnproxy
