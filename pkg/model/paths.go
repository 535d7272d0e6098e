package model

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

const (
	// ManifestFile is the name of the recipe emitted for every source unit
	ManifestFile = "stone.yml"

	// SummaryFile is the name of the run report, at the output root
	SummaryFile = "summary.yaml"

	// importTreeDir is relative to a unit directory. Boulder exposes it as %(pkgdir)/import
	importTreeDir = "pkg/import"

	// outputStageDir holds units under construction, before they are renamed into place
	outputStageDir = ".pisi-stage"

	stagingDir = "staging"
)

// GetUnitPath is the directory of a source unit in the output repository
func GetUnitPath(outputRoot, unit string) string {
	return filepath.Join(outputRoot, unit)
}

// GetManifestPath is the path of the stone.yml of a source unit
func GetManifestPath(outputRoot, unit string) string {
	return filepath.Join(outputRoot, unit, ManifestFile)
}

// GetImportTreePath is the root of the import tree of a source unit
func GetImportTreePath(outputRoot, unit string) string {
	return filepath.Join(outputRoot, unit, filepath.FromSlash(importTreeDir))
}

// GetImportTreeRelPath is the import tree relative to a unit directory
func GetImportTreeRelPath() string {
	return importTreeDir
}

// GetSummaryPath is the default location of the run summary
func GetSummaryPath(outputRoot string) string {
	return filepath.Join(outputRoot, SummaryFile)
}

// GetOutputStagePath is where units are assembled before being moved to their final destination
func GetOutputStagePath(outputRoot string) string {
	return filepath.Join(outputRoot, outputStageDir)
}

// GetStagingPath is the extraction root of one package of a source unit
func GetStagingPath(workRoot, unit, pkg string) string {
	return filepath.Join(workRoot, stagingDir, unit, pkg)
}

// GetStagingRoot is the parent of all extraction roots
func GetStagingRoot(workRoot string) string {
	return filepath.Join(workRoot, stagingDir)
}

// GetUnitStagingPath is the parent of all extraction roots for a source unit
func GetUnitStagingPath(workRoot, unit string) string {
	return filepath.Join(workRoot, stagingDir, unit)
}

// ValidateName checks that an identifier (source unit or package name) can be safely used
// as a single path segment.
func ValidateName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("empty name")
	case name == "." || name == "..":
		return fmt.Errorf("name %q is not a valid path segment", name)
	case strings.HasPrefix(name, "."):
		return fmt.Errorf("name %q must not start with a dot", name)
	case strings.ContainsAny(name, `/\`+"\x00"):
		return fmt.Errorf("name %q must not contain path separators", name)
	}
	return nil
}

// CleanEntryPath normalizes an archive entry name to a rooted, slash-separated path.
// Backslashes are ordinary file name characters.
//
// It reports false when the name escapes the root, e.g. "../../etc/passwd".
func CleanEntryPath(name string) (string, bool) {
	for _, part := range strings.Split(name, "/") {
		if part == ".." {
			// any ".." component is rejected, even one that cleans back under the root
			return "", false
		}
	}
	cleaned := path.Clean("/" + name)
	if cleaned == "/" {
		return "", true
	}
	return cleaned, true
}
