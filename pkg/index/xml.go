package index

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/serpent-os/pisi/pkg/model"
)

type xmlLocalized struct {
	Lang  string `xml:"http://www.w3.org/XML/1998/namespace lang,attr"`
	Value string `xml:",chardata"`
}

// numeric fields are decoded as text: a malformed value only invalidates its own record
type xmlUpdate struct {
	Release string `xml:"release,attr"`
	Date    string `xml:"Date"`
	Version string `xml:"Version"`
}

type xmlFile struct {
	Path string `xml:"Path"`
	Type string `xml:"Type"`
	Size string `xml:"Size"`
	Mode string `xml:"Mode"`
	Hash string `xml:"Hash"`
}

type xmlFiles struct {
	Files []xmlFile `xml:"File"`
}

type xmlPackage struct {
	Name        string         `xml:"Name"`
	Summary     []xmlLocalized `xml:"Summary"`
	Description []xmlLocalized `xml:"Description"`
	PartOf      string         `xml:"PartOf"`
	PackageURI  string         `xml:"PackageURI"`
	PackageSize string         `xml:"PackageSize"`
	PackageHash string         `xml:"PackageHash"`
	History     struct {
		Updates []xmlUpdate `xml:"Update"`
	} `xml:"History"`
	Source struct {
		Name     string `xml:"Name"`
		Homepage string `xml:"Homepage"`
	} `xml:"Source"`
	Licenses            []string `xml:"License"`
	RuntimeDependencies struct {
		Deps []string `xml:"Dependency"`
	} `xml:"RuntimeDependencies"`
	Files *xmlFiles `xml:"Files"`
}

type xmlDistribution struct {
	SourceName string `xml:"SourceName"`
	Version    string `xml:"Version"`
	Type       string `xml:"Type"`
	Obsoletes  struct {
		Packages []string `xml:"Package"`
	} `xml:"Obsoletes"`
}

// pick the untranslated (or english) text of a localized element
func pick(values []xmlLocalized) string {
	for _, v := range values {
		if v.Lang == "" || v.Lang == "en" {
			return strings.TrimSpace(v.Value)
		}
	}
	if len(values) > 0 {
		return strings.TrimSpace(values[0].Value)
	}
	return ""
}

// parseInt reads an optional integer element, empty meaning 0
func parseInt(field, value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q", field, value)
	}
	return n, nil
}

func (f xmlFile) declared() (model.DeclaredFile, bool, error) {
	pth, ok := model.CleanEntryPath(strings.TrimSpace(f.Path))
	if !ok || pth == "" {
		return model.DeclaredFile{}, false, nil
	}
	size, err := parseInt("size of "+pth, f.Size)
	if err != nil {
		return model.DeclaredFile{}, false, err
	}
	return model.DeclaredFile{Path: pth, Size: size, Hash: strings.TrimSpace(f.Hash)}, true, nil
}

func (fs *xmlFiles) declared() ([]model.DeclaredFile, error) {
	if fs == nil {
		return nil, nil
	}
	res := make([]model.DeclaredFile, 0, len(fs.Files))
	for _, f := range fs.Files {
		// directories are not tracked as declared files
		if f.Type == "dir" || strings.HasSuffix(f.Path, "/") {
			continue
		}
		d, ok, err := f.declared()
		if err != nil {
			return nil, err
		}
		if ok {
			res = append(res, d)
		}
	}
	return res, nil
}

func (p *xmlPackage) record() (model.PackageRecord, error) {
	rec := model.PackageRecord{
		Name:        strings.TrimSpace(p.Name),
		Source:      strings.TrimSpace(p.Source.Name),
		Summary:     pick(p.Summary),
		Description: pick(p.Description),
		Homepage:    strings.TrimSpace(p.Source.Homepage),
		Licenses:    trimAll(p.Licenses),
		PartOf:      strings.TrimSpace(p.PartOf),
		RuntimeDeps: trimAll(p.RuntimeDependencies.Deps),
		PackageURI:  strings.TrimSpace(p.PackageURI),
		PackageHash: strings.TrimSpace(p.PackageHash),
	}
	var err error
	if rec.PackageSize, err = parseInt("package size", p.PackageSize); err != nil {
		return rec, err
	}
	if rec.Files, err = p.Files.declared(); err != nil {
		return rec, err
	}
	// the first update is the most recent one
	if len(p.History.Updates) > 0 {
		latest := p.History.Updates[0]
		rec.Version = strings.TrimSpace(latest.Version)
		var release int64
		if release, err = parseInt("release", latest.Release); err != nil {
			return rec, err
		}
		rec.Release = uint64(release)
	}
	return rec, nil
}

func trimAll(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	res := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			res = append(res, v)
		}
	}
	return res
}

// decodeXML streams the packages of the index one at a time
func decodeXML(r io.Reader, doc *Document, collect func(int, model.PackageRecord, error)) error {
	dec := xml.NewDecoder(r)
	position := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch start.Name.Local {
		case "Package":
			var p xmlPackage
			if err := dec.DecodeElement(&p, &start); err != nil {
				return err
			}
			position++
			rec, err := p.record()
			collect(position, rec, err)
		case "Distribution":
			var d xmlDistribution
			if err := dec.DecodeElement(&d, &start); err != nil {
				return err
			}
			doc.Distribution = Distribution{
				Name:      strings.TrimSpace(d.SourceName),
				Version:   strings.TrimSpace(d.Version),
				Type:      strings.TrimSpace(d.Type),
				Obsoletes: trimAll(d.Obsoletes.Packages),
			}
		}
	}
}

// ParseFiles reads a files.xml document, as shipped inside eopkg archives
func ParseFiles(r io.Reader) ([]model.DeclaredFile, error) {
	var files xmlFiles
	if err := xml.NewDecoder(r).Decode(&files); err != nil {
		return nil, err
	}
	return files.declared()
}
