// Package report writes run results as CSV files, plus optional .npy
// presence matrices.
package report

import (
	"bufio"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"lta/internal/frame"
	"lta/internal/models"
	"lta/internal/pipeline"

	"github.com/kshedden/gonpy"
	log "github.com/sirupsen/logrus"
)

// Writer writes into Dir, creating it if needed.
type Writer struct {
	Dir string
	NPY bool
}

// Write writes every table, count, similarity and fold change of res and
// returns the files written.
func (w Writer) Write(res *pipeline.Result) ([]string, error) {
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return nil, err
	}
	var files []string
	add := func(name string, err error) error {
		if err != nil {
			return fmt.Errorf("report: %s: %w", name, err)
		}
		files = append(files, name)
		return nil
	}

	for _, cs := range res.Classes() {
		for _, key := range cs.Keys() {
			t, _ := cs.Get(key)
			base := fmt.Sprintf("%s_lipids_%s", cs.Class, key)
			if err := add(w.create(base+".csv", func(cw *csv.Writer) error { return writeTable(cw, t) })); err != nil {
				return nil, err
			}
			if err := add(w.create(base+"_counts.csv", func(cw *csv.Writer) error { return writeCounts(cw, t) })); err != nil {
				return nil, err
			}
			if w.NPY {
				if err := add(w.writeNumpy(base+".npy", t)); err != nil {
					return nil, err
				}
			}
		}
		rows := similaritiesOf(res.Similarities, cs.Class)
		if len(rows) == 0 {
			continue
		}
		name := fmt.Sprintf("%s_lipids_jaccard.csv", cs.Class)
		if err := add(w.create(name, func(cw *csv.Writer) error { return writeJaccard(cw, rows) })); err != nil {
			return nil, err
		}
	}

	byMode := make(map[string][]models.FoldChange)
	for _, fc := range res.FoldChanges {
		byMode[fc.Mode] = append(byMode[fc.Mode], fc)
	}
	modes := make([]string, 0, len(byMode))
	for m := range byMode {
		modes = append(modes, m)
	}
	sort.Strings(modes)
	for _, mode := range modes {
		rows := byMode[mode]
		name := fmt.Sprintf("enfc_%s.csv", mode)
		if err := add(w.create(name, func(cw *csv.Writer) error { return writeENFC(cw, rows) })); err != nil {
			return nil, err
		}
	}

	log.WithFields(log.Fields{"dir": w.Dir, "files": len(files)}).Info("wrote report")
	return files, nil
}

func (w Writer) create(name string, fill func(*csv.Writer) error) (string, error) {
	f, err := os.Create(filepath.Join(w.Dir, name))
	if err != nil {
		return name, err
	}
	defer f.Close()
	cw := csv.NewWriter(f)
	if err := fill(cw); err != nil {
		return name, err
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return name, err
	}
	return name, f.Close()
}

func entityCells(e models.Entity) []string {
	return []string{e.Name, e.Category, e.MZ}
}

func writeTable(cw *csv.Writer, t *frame.Table) error {
	header := append([]string{"Lipid", "Category", "m/z"}, t.Conditions...)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i, e := range t.Entities {
		rec := entityCells(e)
		for j := range t.Conditions {
			rec = append(rec, formatBool(t.At(i, j)))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

func writeCounts(cw *csv.Writer, t *frame.Table) error {
	if err := cw.Write(append([]string{"Category"}, t.Conditions...)); err != nil {
		return err
	}
	cats, counts := t.CategoryCounts()
	for k, c := range cats {
		rec := []string{c}
		for _, n := range counts[k] {
			rec = append(rec, strconv.Itoa(n))
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

func writeJaccard(cw *csv.Writer, rows []models.SimilarityResult) error {
	if err := cw.Write([]string{"Key", "Category", "J_dist", "p-val"}); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write([]string{r.Key, r.Category, formatFloat(r.Distance), formatFloat(r.PValue)}); err != nil {
			return err
		}
	}
	return nil
}

func writeENFC(cw *csv.Writer, rows []models.FoldChange) error {
	if err := cw.Write([]string{"Lipid", "Category", "m/z", "Compartment", "ENFC"}); err != nil {
		return err
	}
	for _, r := range rows {
		rec := append(entityCells(r.Entity), r.Compartment, formatFloat(r.ENFC))
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

// writeNumpy stores the table as an entities x conditions int8 0/1 array.
func (w Writer) writeNumpy(name string, t *frame.Table) (string, error) {
	rows, cols := t.Len(), len(t.Conditions)
	out := make([]int8, 0, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			var v int8
			if t.At(i, j) {
				v = 1
			}
			out = append(out, v)
		}
	}

	fnm := filepath.Join(w.Dir, name)
	output, err := os.Create(fnm)
	if err != nil {
		return name, err
	}
	defer output.Close()
	bufw := bufio.NewWriter(output)
	npw, err := gonpy.NewWriter(nopCloser{bufw})
	if err != nil {
		return name, err
	}
	log.WithFields(log.Fields{
		"filename": fnm,
		"rows":     rows,
		"cols":     cols,
	}).Debug("writing numpy")
	npw.Shape = []int{rows, cols}
	if err := npw.WriteInt8(out); err != nil {
		return name, err
	}
	if err := bufw.Flush(); err != nil {
		return name, err
	}
	return name, output.Close()
}

type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

func similaritiesOf(all []models.SimilarityResult, class string) []models.SimilarityResult {
	var out []models.SimilarityResult
	for _, r := range all {
		if r.Class == class {
			out = append(out, r)
		}
	}
	return out
}

func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// formatFloat leaves NaN cells empty.
func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
