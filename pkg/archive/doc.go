// Package archive reads eopkg archives and extracts their payload.
//
// An eopkg is a zip archive holding:
//   - metadata.xml: the package description
//   - files.xml: the list of installed files, with sizes and sha1 digests
//   - install.tar.xz (or install.tar.zst): the file tree to install
//
// Extraction writes under a caller supplied staging root only. Files are written
// atomically, and entries which would resolve outside the root abort the extraction.
package archive
