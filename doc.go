// Package docsync keeps an in-memory view of a documents REST store (folders,
// documents, search results and the recency log) consistent with the remote
// side while tolerating latency and failure.
//
// Components:
//   - Store: one entry per query Key with status, staleness and request
//     de-duplication. Payload bytes live in a Provider (memory, BigCache,
//     Ristretto, Redis) framed with the entry's data version.
//   - Query[T]: typed access to the Store through a Codec[T].
//   - Coordinator: runs mutations. Optimistic writes land in the Store before
//     the remote call, are rolled back on failure, and the kind's key
//     prefixes are invalidated once it settles.
//   - Record / Normalize: the bounded, deduplicated recency log.
//   - Client: the documents API wired through all of the above.
//
// Keys:
//
//	["folders"]
//	["documents", folderID]
//	["document", id]
//	["search", query]
//	["history"]
//
// Invalidating ["documents"] makes every per-folder listing stale.
//
// Typical use:
//
//	c, _ := docsync.New(docsync.Options{Remote: remote.Config{BaseURL: url}})
//	docs, err := c.Documents(ctx, folderID)
//	_, err = c.UpdateDocument(ctx, docs[0].ID, "new content")
package docsync
