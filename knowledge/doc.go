// Package knowledge provides the in-process vector index that backs context
// retrieval, and a loader that turns documents into indexed chunks.
//
// The index keeps every entry in memory with a unit-length copy of its vector,
// so a search is a dot product per entry followed by a bounded top-k selection.
// Results are ordered by score and then by entry ID, which makes them
// deterministic for a given index state.
//
// When built WithRepository, every Upsert and Remove is persisted before it
// becomes visible, and Load restores the index after a restart:
//
//	index, err := knowledge.NewIndex(knowledge.WithRepository(repos.Knowledge))
//	if err := index.Load(ctx); err != nil { ... }
//	hits, err := index.Search(vector, 5)
package knowledge
