// Package materialize merges the staging trees of a source unit into its import tree.
//
// Packages are merged in ascending name order. The first package shipping a path owns it.
// A later package shipping the same content at that path shares it, and any other content
// is a conflict which fails the whole unit.
package materialize
