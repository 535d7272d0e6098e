package cmd

import (
	"fmt"
	"io"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v2"
)

const (
	formatTable = "table"
	formatYAML  = "yaml"
	formatJSON  = "json"
	formatNone  = "none"
)

// Formatter renders some command output
type Formatter interface {
	Format(io.Writer, interface{}) error
}

// FormatterFunc adapts a function to a Formatter
type FormatterFunc func(io.Writer, interface{}) error

// Format implements Formatter
func (f FormatterFunc) Format(w io.Writer, data interface{}) error {
	return f(w, data)
}

var (
	yamlFormatter = FormatterFunc(func(w io.Writer, data interface{}) error {
		b, err := yaml.Marshal(data)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	})

	jsonFormatter = FormatterFunc(func(w io.Writer, data interface{}) error {
		enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	})

	noneFormatter = FormatterFunc(func(io.Writer, interface{}) error { return nil })
)

func joinFormats(formats []string) string {
	return strings.Join(formats, ", ")
}

// formatter picks the formatter selected by the format flag. The table format is command specific.
func formatter(table Formatter) (Formatter, error) {
	switch format := config.GetString(formatKey); format {
	case formatTable, "":
		return table, nil
	case formatYAML:
		return yamlFormatter, nil
	case formatJSON:
		return jsonFormatter, nil
	case formatNone:
		return noneFormatter, nil
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}
