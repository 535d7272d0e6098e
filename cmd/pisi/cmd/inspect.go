package cmd

import (
	"archive/tar"
	"fmt"
	"io"
	"os"

	units "github.com/docker/go-units"
	"github.com/gosuri/uitable"
	"github.com/serpent-os/pisi/pkg/archive"
	"github.com/serpent-os/pisi/pkg/model"
	"github.com/spf13/cobra"
)

type payloadEntry struct {
	Path string         `json:"path" yaml:"path"`
	Type string         `json:"type" yaml:"type"`
	Mode model.FileMode `json:"mode" yaml:"mode"`
	Size int64          `json:"size" yaml:"size"`
	Link string         `json:"link,omitempty" yaml:"link,omitempty"`
}

func entryType(flag byte) string {
	switch flag {
	case tar.TypeDir:
		return "dir"
	case tar.TypeReg:
		return "file"
	case tar.TypeSymlink:
		return "symlink"
	case tar.TypeLink:
		return "hardlink"
	default:
		return fmt.Sprintf("type-%c", flag)
	}
}

// listPayload reads the install payload of an eopkg file, without extracting it
func listPayload(pth string) ([]payloadEntry, error) {
	f, err := os.Open(pth)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = f.Close()
	}()
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	tr, closer, err := archive.OpenTar(f, info.Size())
	if err != nil {
		return nil, err
	}
	defer closer()

	var entries []payloadEntry
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return entries, err
		}
		name, ok := model.CleanEntryPath(hdr.Name)
		if !ok {
			name = hdr.Name + " (escapes the install root)"
		}
		if name == "" {
			continue
		}
		entries = append(entries, payloadEntry{
			Path: name,
			Type: entryType(hdr.Typeflag),
			Mode: model.FileMode(hdr.FileInfo().Mode().Perm()),
			Size: hdr.Size,
			Link: hdr.Linkname,
		})
	}
}

var payloadTable = FormatterFunc(func(w io.Writer, data interface{}) error {
	entries := data.([]payloadEntry)
	table := uitable.New()
	table.AddRow("MODE", "TYPE", "SIZE", "PATH")
	var total int64
	for _, e := range entries {
		pth := e.Path
		if e.Link != "" {
			pth += " -> " + e.Link
		}
		table.AddRow(e.Mode, e.Type, units.HumanSize(float64(e.Size)), pth)
		total += e.Size
	}
	_, err := fmt.Fprintf(w, "%s\n\n%d entries, %s\n", table, len(entries), units.HumanSize(float64(total)))
	return err
})

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <package.eopkg>",
		Short: "List the files shipped by an eopkg archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			present, err := formatter(payloadTable)
			if err != nil {
				return err
			}
			entries, err := listPayload(args[0])
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}
			return present.Format(outWriter, entries)
		},
	}
	addFormatFlag(cmd, formatTable, formatTable, formatYAML, formatJSON)
	return cmd
}
