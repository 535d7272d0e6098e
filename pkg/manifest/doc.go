// Package manifest builds the stone.yml recipe of a source unit from its import tree.
//
// The recipe installs the pre-built import tree as is:
//
//	install: |
//	    %install_dir %(installroot)
//	    cp -a %(pkgdir)/import/. %(installroot)/
//
// Its path globs are computed by collapsing directories wholly owned by the unit
// (or by a single package, for the per-package sections) into "dir/**" entries.
// Output is byte-for-byte stable for identical inputs.
package manifest
