package model

// MatchKind tells how a recipe location was found
type MatchKind string

// Recipe location match kinds
const (
	MatchExact  MatchKind = "exact"
	MatchFolded MatchKind = "folded" // case-insensitive, hyphen/underscore normalized
	MatchCached MatchKind = "cached" // served from the lookup cache
	MatchNone   MatchKind = "none"
)

// RecipeLocation is where a source unit lives in the recipe monorepo.
type RecipeLocation struct {
	ID       string    `json:"id" yaml:"id"`
	Path     string    `json:"path,omitempty" yaml:"path,omitempty"`
	Resolved bool      `json:"resolved" yaml:"resolved"`
	Match    MatchKind `json:"match" yaml:"match"`
	_        struct{}
}

// Unresolved location for some source unit
func Unresolved(id string) RecipeLocation {
	return RecipeLocation{ID: id, Match: MatchNone}
}
