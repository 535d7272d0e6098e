// Package model describes the base objects manipulated by pisi.
//
// The object model is composed of:
//
//	PackageRecords:
//	  One binary package listed by the eopkg index: name, source, version, release,
//	  declared files and the location of its payload archive.
//
//	SourceUnits:
//	  All the binary packages built from a single source recipe. A source unit yields
//	  exactly one stone.yml.
//
//	StagingTrees:
//	  The extracted payload of a single binary package.
//
//	ImportTrees:
//	  The merged payloads of all packages of a source unit, with the owner of every path.
//
//	RecipeLocations:
//	  Where a source unit lives in the recipe monorepo, if anywhere.
package model
