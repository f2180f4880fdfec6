// Command validate dry-runs trip normalization over a directory of extracted
// CSVs without touching a database. It reports each file's detected layout,
// row counts, and how many values per column were nulled during coercion, and
// exits non-zero if any file would fail the load.
//
// Usage:
//
//	go run ./cmd/validate --csv-dir bikeshare_csv
//	go run ./cmd/validate --csv-dir bikeshare_csv --allow-unknown-shape
package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/pflag"

	"github.com/couchcryptid/bikeshare-etl/internal/domain"
	"github.com/couchcryptid/bikeshare-etl/internal/tabular"
)

// phase tracks pass/fail for a validation phase.
type phase struct {
	name   string
	errors []string
}

func (p *phase) errorf(format string, args ...any) {
	p.errors = append(p.errors, fmt.Sprintf(format, args...))
}

func (p *phase) passed() bool { return len(p.errors) == 0 }

// fileReport is the dry-run result for one CSV.
type fileReport struct {
	name   string
	shape  domain.Shape
	rows   int
	nulled map[string]int
	tags   map[string]int
}

var knownMemberTypes = map[string]bool{"member": true, "casual": true}

func main() {
	csvDir := pflag.String("csv-dir", "bikeshare_csv", "directory of extracted trip CSVs")
	allowUnknown := pflag.Bool("allow-unknown-shape", false, "read unrecognized headers as canonical")
	pflag.Parse()

	os.Exit(run(*csvDir, *allowUnknown, os.Stdout))
}

func run(dir string, allowUnknown bool, out io.Writer) int {
	fmt.Fprintln(out, "=== Trip CSV Dry Run ===")
	fmt.Fprintln(out)

	discovery := &phase{name: "Trip files discovered"}
	files, err := listCSVs(dir)
	if err != nil {
		discovery.errorf("%v", err)
	} else if len(files) == 0 {
		discovery.errorf("no .csv files in %s", dir)
	}

	shapes := &phase{name: "Headers match a known layout"}
	parsing := &phase{name: "Files read to completion"}
	tags := &phase{name: "Member types are member or casual"}

	var reports []fileReport
	for _, path := range files {
		rep, err := dryRun(path, allowUnknown)
		switch {
		case errors.Is(err, domain.ErrUnrecognizedShape):
			shapes.errorf("%s: %v", filepath.Base(path), err)
			continue
		case err != nil:
			parsing.errorf("%s: %v", filepath.Base(path), err)
			continue
		}
		if rep.shape == domain.ShapeUnknown {
			shapes.errorf("%s: read as canonical without a recognized header", rep.name)
		}
		for tag, n := range rep.tags {
			if !knownMemberTypes[tag] {
				tags.errorf("%s: %d rows with member type %q", rep.name, n, tag)
			}
		}
		reports = append(reports, rep)
	}

	phases := []*phase{discovery, shapes, parsing, tags}

	for _, rep := range reports {
		fmt.Fprintf(out, "  %-48s %-9s %8d rows", rep.name, rep.shape, rep.rows)
		if len(rep.nulled) > 0 {
			fmt.Fprintf(out, "  nulled: %s", formatCounts(rep.nulled))
		}
		fmt.Fprintln(out)
	}

	fmt.Fprintln(out)
	allPassed := true
	for _, p := range phases {
		status := "PASS"
		if !p.passed() {
			status = fmt.Sprintf("FAIL (%d errors)", len(p.errors))
			allPassed = false
		}
		fmt.Fprintf(out, "  %-42s %s\n", p.name, status)
	}

	for _, p := range phases {
		if p.passed() {
			continue
		}
		fmt.Fprintf(out, "\n--- %s ---\n", p.name)
		for i, e := range p.errors {
			fmt.Fprintf(out, "  [%d] %s\n", i+1, e)
		}
	}

	if allPassed {
		fmt.Fprintln(out, "\nAll files would load.")
		return 0
	}
	fmt.Fprintln(out, "\nDry run FAILED.")
	return 1
}

func listCSVs(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.Type().IsRegular() && strings.HasSuffix(strings.ToLower(e.Name()), ".csv") {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

func dryRun(path string, allowUnknown bool) (fileReport, error) {
	rep := fileReport{
		name:   filepath.Base(path),
		nulled: map[string]int{},
		tags:   map[string]int{},
	}

	f, err := os.Open(path)
	if err != nil {
		return rep, err
	}
	defer f.Close()

	src, err := tabular.NewCSVReader(f)
	if err != nil {
		return rep, err
	}
	n := domain.Normalizer{
		AllowUnrecognized: allowUnknown,
		CoercionFailed:    func(col string) { rep.nulled[col]++ },
	}
	rows, err := n.Normalize(src)
	if err != nil {
		return rep, err
	}
	if s, ok := rows.(interface{ Shape() domain.Shape }); ok {
		rep.shape = s.Shape()
	}

	memberIdx := -1
	for i, c := range rows.Columns() {
		if c == domain.ColMemberCasual {
			memberIdx = i
		}
	}

	for {
		row, err := rows.Next()
		if errors.Is(err, io.EOF) {
			return rep, nil
		}
		if err != nil {
			return rep, fmt.Errorf("row %d: %w", rep.rows+1, err)
		}
		rep.rows++
		if memberIdx >= 0 {
			if tag, ok := row[memberIdx].(string); ok {
				rep.tags[tag]++
			}
		}
	}
}

func formatCounts(m map[string]int) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, m[k])
	}
	return strings.Join(parts, " ")
}
