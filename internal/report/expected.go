package report

import (
	"fmt"
	"math"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/pointcount/avifauna/internal/errors"
)

// ExpectedCheck is one recorded statistic from the published analysis. A
// rerun must reproduce Value within Tolerance.
type ExpectedCheck struct {
	Name      string  `yaml:"name"`
	Value     float64 `yaml:"value"`
	Tolerance float64 `yaml:"tolerance"`
}

// Manifest is the set of recorded expected statistics.
type Manifest struct {
	Checks []ExpectedCheck `yaml:"checks"`
}

// CheckResult pairs one expected statistic with the rerun's value.
type CheckResult struct {
	Name      string
	Expected  float64
	Actual    float64
	Tolerance float64
	Pass      bool
}

// LoadManifest reads the expected-statistics manifest from a YAML file.
func LoadManifest(path string) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.New(err).
			Component("report").
			Category(errors.CategoryFileIO).
			Context("path", path).
			Build()
	}
	var m Manifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, errors.New(err).
			Component("report").
			Category(errors.CategoryFileParsing).
			Context("path", path).
			Build()
	}
	for i := range m.Checks {
		if m.Checks[i].Name == "" {
			return nil, errors.StructureError("manifest check %d has no name", i)
		}
		if m.Checks[i].Tolerance < 0 {
			return nil, errors.StructureError("manifest check %q has negative tolerance", m.Checks[i].Name)
		}
	}
	return &m, nil
}

// Compare evaluates every manifest check against the rerun's statistics.
// A check whose statistic is missing from actual fails. Results come back
// in the manifest's order.
func (m *Manifest) Compare(actual map[string]float64) []CheckResult {
	results := make([]CheckResult, len(m.Checks))
	for i, c := range m.Checks {
		res := CheckResult{
			Name:      c.Name,
			Expected:  c.Value,
			Tolerance: c.Tolerance,
			Actual:    math.NaN(),
		}
		if v, ok := actual[c.Name]; ok {
			res.Actual = v
			res.Pass = math.Abs(v-c.Value) <= c.Tolerance
		}
		results[i] = res
	}
	return results
}

// Verify runs Compare and turns failures into one joined error, so a rerun
// that drifts from the recorded results fails loudly.
func (m *Manifest) Verify(actual map[string]float64) ([]CheckResult, error) {
	results := m.Compare(actual)
	var errs []error
	for _, r := range results {
		if r.Pass {
			continue
		}
		errs = append(errs, errors.AssertionError(
			"statistic %q: expected %.6g +/- %.2g, got %.6g",
			r.Name, r.Expected, r.Tolerance, r.Actual))
	}
	if len(errs) > 0 {
		return results, errors.Join(errs...)
	}
	return results, nil
}

// UnknownStatistics lists statistics present in actual that the manifest
// does not record, sorted for stable logs.
func (m *Manifest) UnknownStatistics(actual map[string]float64) []string {
	known := make(map[string]bool, len(m.Checks))
	for _, c := range m.Checks {
		known[c.Name] = true
	}
	var out []string
	for name := range actual {
		if !known[name] {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// FormatValue renders a statistic the way the report table shows it.
func FormatValue(v float64) string {
	if math.IsNaN(v) {
		return "missing"
	}
	return fmt.Sprintf("%.4g", v)
}
