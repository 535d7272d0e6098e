package pipeline

import (
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"
	"github.com/serpent-os/pisi/pkg/model"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v2"
)

// UnitReport is the outcome of a single source unit
type UnitReport struct {
	Unit     string                   `json:"unit" yaml:"unit"`
	State    State                    `json:"state" yaml:"state"`
	Error    string                   `json:"error,omitempty" yaml:"error,omitempty"`
	Recipe   string                   `json:"recipe,omitempty" yaml:"recipe,omitempty"`
	Match    model.MatchKind          `json:"match,omitempty" yaml:"match,omitempty"`
	Version  string                   `json:"version,omitempty" yaml:"version,omitempty"`
	Packages []string                 `json:"packages,omitempty" yaml:"packages,omitempty"`
	Files    int                      `json:"files,omitempty" yaml:"files,omitempty"`
	Size     int64                    `json:"size,omitempty" yaml:"size,omitempty"`
	Digest   string                   `json:"digest,omitempty" yaml:"digest,omitempty"`
	Warnings []model.IntegrityWarning `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Failures PackageFailures          `json:"failures,omitempty" yaml:"failures,omitempty"`
	Duration time.Duration            `json:"duration" yaml:"duration"`
}

// PackageFailure is a member package which could not be extracted
type PackageFailure struct {
	Package string `json:"package" yaml:"package"`
	Error   string `json:"error" yaml:"error"`
}

// PackageFailures of a unit, in member order
type PackageFailures []PackageFailure

func (f PackageFailures) err() error {
	var err error
	for _, failure := range f {
		err = multierr.Append(err, fmt.Errorf("package %s: %s", failure.Package, failure.Error))
	}
	return err
}

// Summary of a run. Units are sorted by id.
type Summary struct {
	RunID    string         `json:"runID" yaml:"runID"`
	Started  time.Time      `json:"started" yaml:"started"`
	Finished time.Time      `json:"finished" yaml:"finished"`
	Index    string         `json:"index,omitempty" yaml:"index,omitempty"`
	Skipped  []string       `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Missing  []string       `json:"missing,omitempty" yaml:"missing,omitempty"`
	Counts   map[State]int  `json:"counts" yaml:"counts"`
	Units    []UnitReport   `json:"units" yaml:"units"`
	byUnit   map[string]int
}

// Get the report of a unit
func (s *Summary) Get(unit string) (UnitReport, bool) {
	if s.byUnit == nil {
		s.byUnit = make(map[string]int, len(s.Units))
		for i, u := range s.Units {
			s.byUnit[u.Unit] = i
		}
	}
	i, ok := s.byUnit[unit]
	if !ok {
		return UnitReport{}, false
	}
	return s.Units[i], true
}

// Failed units
func (s *Summary) Failed() []UnitReport {
	var res []UnitReport
	for _, u := range s.Units {
		if u.State.Failed() {
			res = append(res, u)
		}
	}
	return res
}

// ExitCode of the run: 1 when any unit failed, 0 otherwise
func (s *Summary) ExitCode() int {
	if len(s.Failed()) > 0 {
		return 1
	}
	return 0
}

// Write the summary as YAML
func (s *Summary) Write(w io.Writer) error {
	b, err := yaml.Marshal(s)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// WriteJSON writes the summary as indented JSON
func (s *Summary) WriteJSON(w io.Writer) error {
	enc := jsoniter.ConfigCompatibleWithStandardLibrary.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// ReadSummary reads a summary written as YAML
func ReadSummary(r io.Reader) (*Summary, error) {
	var s Summary
	if err := yaml.NewDecoder(r).Decode(&s); err != nil {
		return nil, err
	}
	return &s, nil
}

// collector gathers unit reports from concurrent workers
type collector struct {
	mu      sync.Mutex
	reports []UnitReport
}

func (c *collector) add(r UnitReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, r)
}

func (c *collector) summary(s *Summary) *Summary {
	c.mu.Lock()
	defer c.mu.Unlock()
	s.Units = append([]UnitReport(nil), c.reports...)
	sort.Slice(s.Units, func(i, j int) bool { return s.Units[i].Unit < s.Units[j].Unit })
	s.Counts = make(map[State]int)
	for _, u := range s.Units {
		s.Counts[u.State]++
	}
	return s
}
