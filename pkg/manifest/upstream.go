package manifest

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/serpent-os/pisi/pkg/model"
	"gopkg.in/yaml.v2"
)

// DefaultUpstreamBase is the repository against which relative package URIs are resolved
const DefaultUpstreamBase = "https://packages.getsol.us/unstable/"

// Upstream is a source of the recipe: the eopkg payload of a member, fetched but not unpacked.
//
// It is written as a single key mapping:
//
//	- https://packages.getsol.us/unstable/z/zlib/zlib-1.3-26-1-x86_64.eopkg:
//	    unpack: false
//	    hash: 0123...
type Upstream struct {
	URI    string
	Hash   string
	Unpack bool
}

type upstreamAttrs struct {
	Unpack bool   `yaml:"unpack"`
	Hash   string `yaml:"hash,omitempty"`
}

// MarshalYAML implements yaml.Marshaler
func (u Upstream) MarshalYAML() (interface{}, error) {
	attrs := yaml.MapSlice{{Key: "unpack", Value: u.Unpack}}
	if u.Hash != "" {
		attrs = append(attrs, yaml.MapItem{Key: "hash", Value: u.Hash})
	}
	return yaml.MapSlice{{Key: u.URI, Value: attrs}}, nil
}

// UnmarshalYAML implements yaml.Unmarshaler
func (u *Upstream) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var doc map[string]upstreamAttrs
	if err := unmarshal(&doc); err != nil {
		return err
	}
	if len(doc) != 1 {
		return fmt.Errorf("upstream: expected a single uri, got %d", len(doc))
	}
	for uri, attrs := range doc {
		*u = Upstream{URI: uri, Hash: attrs.Hash, Unpack: attrs.Unpack}
	}
	return nil
}

// upstreams of a unit, one per member with a payload, in member order
func (e *Emitter) upstreams(unit *model.SourceUnit) []Upstream {
	res := make([]Upstream, 0, len(unit.Members))
	for _, member := range unit.Members {
		if member.PackageURI == "" {
			continue
		}
		res = append(res, Upstream{
			URI:  e.resolveURI(member.PackageURI),
			Hash: strings.TrimSpace(member.PackageHash),
		})
	}
	return res
}

func (e *Emitter) resolveURI(uri string) string {
	ref, err := url.Parse(uri)
	if err != nil || ref.IsAbs() || e.base == nil {
		return uri
	}
	return e.base.ResolveReference(&url.URL{Path: strings.TrimPrefix(ref.Path, "/")}).String()
}
