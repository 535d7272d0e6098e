package model

import (
	"fmt"
	"path"
	"strings"
)

// DeclaredFile is a file announced by the index (or the archive's files.xml) for some package.
type DeclaredFile struct {
	Path string `json:"path" yaml:"path"`
	Size int64  `json:"size,omitempty" yaml:"size,omitempty"`
	Hash string `json:"hash,omitempty" yaml:"hash,omitempty"` // sha1, as computed by eopkg
	_    struct{}
}

// PackageRecord is a binary package entry from the eopkg index.
//
// Records are immutable once loaded: the pipeline only ever reads them.
type PackageRecord struct {
	Name        string         `json:"name" yaml:"name"`
	Source      string         `json:"source,omitempty" yaml:"source,omitempty"`
	Version     string         `json:"version" yaml:"version"`
	Release     uint64         `json:"release" yaml:"release"`
	Summary     string         `json:"summary,omitempty" yaml:"summary,omitempty"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Homepage    string         `json:"homepage,omitempty" yaml:"homepage,omitempty"`
	Licenses    []string       `json:"licenses,omitempty" yaml:"licenses,omitempty"`
	PartOf      string         `json:"partOf,omitempty" yaml:"partOf,omitempty"`
	RuntimeDeps []string       `json:"runtimeDeps,omitempty" yaml:"runtimeDeps,omitempty"`
	Files       []DeclaredFile `json:"files,omitempty" yaml:"files,omitempty"`
	PackageURI  string         `json:"packageURI" yaml:"packageURI"`
	PackageSize int64          `json:"packageSize,omitempty" yaml:"packageSize,omitempty"`
	PackageHash string         `json:"packageHash,omitempty" yaml:"packageHash,omitempty"`
	_           struct{}
}

// SourceID returns the identifier of the source unit this package belongs to.
//
// Packages which do not declare a source are their own singleton unit.
func (p PackageRecord) SourceID() string {
	if s := strings.TrimSpace(p.Source); s != "" {
		return s
	}
	return p.Name
}

// License returns the primary license identifier
func (p PackageRecord) License() string {
	if len(p.Licenses) == 0 {
		return ""
	}
	return p.Licenses[0]
}

// PayloadName is the file name of the payload archive, e.g. zlib-1.3-26-1-x86_64.eopkg
func (p PackageRecord) PayloadName() string {
	return path.Base(p.PackageURI)
}

// Validate reports the first missing required field of a record.
func (p PackageRecord) Validate() error {
	switch {
	case strings.TrimSpace(p.Name) == "":
		return fmt.Errorf("package without a name")
	case strings.TrimSpace(p.Version) == "":
		return fmt.Errorf("package %s: missing version", p.Name)
	case p.Release == 0:
		return fmt.Errorf("package %s: missing release", p.Name)
	case strings.TrimSpace(p.PackageURI) == "":
		return fmt.Errorf("package %s: missing payload location", p.Name)
	}
	return nil
}

func (p PackageRecord) String() string {
	return fmt.Sprintf("%s-%s-%d", p.Name, p.Version, p.Release)
}
