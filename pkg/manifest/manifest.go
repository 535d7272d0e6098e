package manifest

import (
	"bytes"
	"io"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/serpent-os/pisi/pkg/grouper"
	"github.com/serpent-os/pisi/pkg/manifest/status"
	"github.com/serpent-os/pisi/pkg/model"
	"go.uber.org/zap"
	"gopkg.in/yaml.v2"
)

const (
	// DefaultHomepage is used for units without homepage
	DefaultHomepage = "no-homepage-set"

	// InstallScript copies the import tree into the install root
	InstallScript = "%install_dir %(installroot)\ncp -a %(pkgdir)/import/. %(installroot)/\n"
)

// DefaultSharedDirs are directories shipped into by many units
var DefaultSharedDirs = []string{
	"/*",
	"/*/*",
	"/usr/lib/girepository-1.0",
	"/usr/lib/modules",
	"/usr/lib/firmware",
	"/usr/lib/pkgconfig",
	"/usr/lib/python*",
	"/usr/lib/python*/site-packages",
	"/usr/lib/systemd",
	"/usr/lib/systemd/*",
	"/usr/lib/udev",
	"/usr/lib/udev/*",
	"/usr/share/applications",
	"/usr/share/bash-completion",
	"/usr/share/bash-completion/*",
	"/usr/share/dbus-1",
	"/usr/share/dbus-1/*",
	"/usr/share/doc",
	"/usr/share/fonts",
	"/usr/share/fonts/*",
	"/usr/share/gir-1.0",
	"/usr/share/glib-2.0",
	"/usr/share/glib-2.0/*",
	"/usr/share/help",
	"/usr/share/help/*",
	"/usr/share/icons",
	"/usr/share/icons/*",
	"/usr/share/icons/*/*",
	"/usr/share/icons/*/*/*",
	"/usr/share/info",
	"/usr/share/licenses",
	"/usr/share/locale",
	"/usr/share/locale/*",
	"/usr/share/locale/*/*",
	"/usr/share/man",
	"/usr/share/man/*",
	"/usr/share/mime",
	"/usr/share/mime/*",
	"/usr/share/pkgconfig",
}

// Package is the section of a member package
type Package struct {
	Summary string   `yaml:"summary"`
	Paths   []string `yaml:"paths"`
}

// Manifest is a stone.yml document
type Manifest struct {
	Name        string
	Version     string
	Release     uint64
	Homepage    string
	Upstreams   []Upstream
	Summary     string
	Description string
	Strip       bool
	License     []string
	Recipe      string
	Install     string
	Paths       []string
	Packages    map[string]Package
}

// Emitter builds manifests. It is safe for concurrent use.
type Emitter struct {
	l        *zap.Logger
	owners   *grouper.OwnerIndex
	shared   []string
	homepage string
	baseURI  string
	base     *url.URL
}

// New emitter
func New(opts ...Option) (*Emitter, error) {
	e := &Emitter{
		l:        zap.NewNop(),
		shared:   DefaultSharedDirs,
		homepage: DefaultHomepage,
		baseURI:  DefaultUpstreamBase,
	}
	for _, apply := range opts {
		apply(e)
	}
	if e.baseURI != "" {
		base, err := url.Parse(e.baseURI)
		if err != nil || !base.IsAbs() {
			return nil, status.ErrEncode.Wrapf("invalid upstream base %q", e.baseURI)
		}
		if !strings.HasSuffix(base.Path, "/") {
			base.Path += "/"
		}
		e.base = base
	}
	for _, p := range e.shared {
		if !doublestar.ValidatePattern(p) {
			return nil, doublestar.ErrBadPattern
		}
	}
	return e, nil
}

func oneLine(s string) string {
	return strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
}

// Build the manifest of a unit
func (e *Emitter) Build(unit *model.SourceUnit, loc model.RecipeLocation, tree *model.ImportTree) (*Manifest, error) {
	if !loc.Resolved {
		return nil, status.ErrUnresolved.WithDetail(unit.ID)
	}
	if tree == nil || len(tree.Entries) == 0 {
		return nil, status.ErrEmptyTree.WithDetail(unit.ID)
	}

	primary := unit.Primary()
	m := &Manifest{
		Name:        unit.ID,
		Version:     primary.Version,
		Release:     primary.Release,
		Homepage:    primary.Homepage,
		Upstreams:   e.upstreams(unit),
		Summary:     oneLine(primary.Summary),
		Description: oneLine(primary.Description),
		License:     append([]string{}, primary.Licenses...),
		Recipe:      loc.Path,
		Install:     InstallScript,
		Packages:    make(map[string]Package, len(unit.Members)),
	}
	if m.Homepage == "" {
		m.Homepage = e.homepage
	}

	dirs := newTrie(tree)
	m.Paths = e.collapse(dirs, unit.ID, func(string) bool { return true }, true)
	for _, member := range unit.Members {
		name := member.Name
		summary := oneLine(member.Summary)
		if summary == "" {
			summary = m.Summary
		}
		m.Packages[name] = Package{
			Summary: summary,
			Paths:   e.collapse(dirs, unit.ID, func(owner string) bool { return owner == name }, false),
		}
	}

	e.l.Debug("built manifest",
		zap.String("unit", unit.ID),
		zap.Int("files", len(tree.Entries)),
		zap.Int("globs", len(m.Paths)),
	)
	return m, nil
}

// Emit builds the manifest of a unit, checks its globs and writes it
func (e *Emitter) Emit(unit *model.SourceUnit, loc model.RecipeLocation, tree *model.ImportTree, w io.Writer) error {
	m, err := e.Build(unit, loc, tree)
	if err != nil {
		return err
	}
	if err = Verify(m, tree); err != nil {
		return err
	}
	return m.Encode(w)
}

type field struct {
	key   string
	value interface{}
}

// Encode the manifest as YAML, with a fixed field order
func (m *Manifest) Encode(w io.Writer) error {
	var buf bytes.Buffer
	for _, f := range []field{
		{"name", m.Name},
		{"version", m.Version},
		{"release", m.Release},
		{"homepage", m.Homepage},
		{"upstreams", m.Upstreams},
		{"summary", m.Summary},
		{"description", m.Description},
		{"strip", m.Strip},
		{"license", m.License},
		{"recipe", m.Recipe},
		{"install", m.Install},
		{"paths", m.Paths},
		{"packages", m.Packages},
	} {
		if f.key == "version" {
			// always quoted: "1.10" must not read back as a float
			buf.WriteString("version: " + strconv.Quote(m.Version) + "\n")
			continue
		}
		b, err := yaml.Marshal(yaml.MapSlice{{Key: f.key, Value: f.value}})
		if err != nil {
			return status.ErrEncode.Wrap(err)
		}
		buf.Write(b)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return status.ErrEncode.Wrap(err)
	}
	return nil
}

// Decode a manifest written by Encode
func Decode(r io.Reader) (*Manifest, error) {
	var doc struct {
		Name        string             `yaml:"name"`
		Version     string             `yaml:"version"`
		Release     uint64             `yaml:"release"`
		Homepage    string             `yaml:"homepage"`
		Upstreams   []Upstream         `yaml:"upstreams"`
		Summary     string             `yaml:"summary"`
		Description string             `yaml:"description"`
		Strip       bool               `yaml:"strip"`
		License     []string           `yaml:"license"`
		Recipe      string             `yaml:"recipe"`
		Install     string             `yaml:"install"`
		Paths       []string           `yaml:"paths"`
		Packages    map[string]Package `yaml:"packages"`
	}
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, err
	}
	m := Manifest(doc)
	return &m, nil
}

// Verify that expanding the globs of a manifest against the import tree yields exactly
// its files, for the unit and for each member package.
func Verify(m *Manifest, tree *model.ImportTree) error {
	names := make([]string, 0, len(m.Packages))
	for name := range m.Packages {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, entry := range tree.Entries {
		if !matchAny(m.Paths, entry.Path) {
			return status.ErrGlobMismatch.Wrapf("%s is not covered", entry.Path)
		}
		for _, name := range names {
			matched := matchAny(m.Packages[name].Paths, entry.Path)
			switch {
			case matched && entry.Owner != name:
				return status.ErrGlobMismatch.Wrapf("%s is owned by %s but matched by package %s", entry.Path, entry.Owner, name)
			case !matched && entry.Owner == name:
				return status.ErrGlobMismatch.Wrapf("%s is not covered by package %s", entry.Path, name)
			}
		}
	}
	return nil
}

func matchAny(patterns []string, pth string) bool {
	for _, p := range patterns {
		if ok, _ := doublestar.Match(p, pth); ok {
			return true
		}
	}
	return false
}
