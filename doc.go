/*
Package pisi converts the binary packages of an eopkg distribution into stone.yml recipes.

The conversion groups packages by source unit, resolves the recipe location of each
unit in the recipe monorepo, extracts the payloads of its packages and merges them into
a single import tree. The emitted recipe reinstalls this tree, and lists per package the
globs covering the files it shipped.

Outputs are bit-reproducible: converting the same index twice yields identical trees
and manifests.

The pisi command line is under cmd/pisi. The building blocks live under pkg/:

	pkg/index        eopkg index documents
	pkg/grouper      source units and path ownership
	pkg/recipes      recipe monorepo lookups, with a persistent cache
	pkg/filter       unit selection
	pkg/payload      local and remote package payloads
	pkg/archive      eopkg extraction
	pkg/materialize  import tree assembly
	pkg/manifest     stone.yml emission
	pkg/pipeline     the conversion run
*/
package pisi
