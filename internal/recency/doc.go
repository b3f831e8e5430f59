// Package recency implements an index-linked recency list.
//
// Nodes live in a flat arena and link to each other by slot index, so
// touching, inserting and removing are O(1) and a slot stays a stable
// handle for the lifetime of the value it holds. Freed slots are kept in
// a roaring bitmap and reused lowest-first, which keeps the arena dense.
//
// The list is ordered from least-recently used (front) to most-recently
// used (back). It is not safe for concurrent use.
package recency
