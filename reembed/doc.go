// Package reembed regenerates the vectors of every stored knowledge entry.
//
// Re-embedding is needed after switching embedding models. Entries are read
// from the knowledge repository in batches, embedded again, and written back;
// the in-memory index is then rebuilt so searches use the new vectors.
package reembed
