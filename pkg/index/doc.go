// Package index reads the eopkg repository index.
//
// The index is an XML document (eopkg-index.xml), usually xz compressed:
//
//	<PISI>
//	  <Distribution>...</Distribution>
//	  <Package>
//	    <Name>zlib-devel</Name>
//	    <History><Update release="26"><Date>...</Date><Version>1.3</Version></Update></History>
//	    <Source><Name>zlib</Name><Homepage>...</Homepage></Source>
//	    ...
//	  </Package>
//	</PISI>
//
// A YAML rendition of the same records is also accepted, mostly for tests and tooling.
package index
