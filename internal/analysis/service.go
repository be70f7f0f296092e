package analysis

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"lta/internal/frame"
	"lta/internal/models"

	log "github.com/sirupsen/logrus"
)

var (
	ErrNotDirectory = errors.New("not a directory")
	ErrNoData       = errors.New("contains no data")
)

// indexColumns are the leading (Lipid, Category, m/z) cells of every row.
const indexColumns = 3

type CSVService struct {
	Levels models.Levels
}

func NewCSVService(levels models.Levels) *CSVService {
	return &CSVService{Levels: levels}
}

// ReadMatrix reads one measurement export.
//
// Rows whose first two cells are empty are column metadata: the third cell
// names the level and the rest hold one label per sample. Every other
// non-empty row is an entity (Lipid, Category, m/z) followed by its values.
// Empty rows and columns are dropped and empty value cells read as zero.
func (s *CSVService) ReadMatrix(filePath string) (*frame.Matrix, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	m, err := s.Read(file)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filePath, err)
	}
	return m, nil
}

// Read parses a measurement export from r. See ReadMatrix.
func (s *CSVService) Read(r io.Reader) (*frame.Matrix, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	var records [][]string
	width := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if blank(record) {
			continue
		}
		records = append(records, record)
		if len(record) > width {
			width = len(record)
		}
	}

	// Columns with nothing in them are layout padding.
	var cols []int
	for j := indexColumns; j < width; j++ {
		for _, rec := range records {
			if j < len(rec) && strings.TrimSpace(rec[j]) != "" {
				cols = append(cols, j)
				break
			}
		}
	}
	if len(cols) == 0 {
		return nil, frame.ErrEmptyMatrix
	}

	metadata := make(map[string][]string)
	var levelOrder []string
	var entities []models.Entity
	var rows [][]float64
	for i, rec := range records {
		if cell(rec, 0) == "" && cell(rec, 1) == "" {
			level := cell(rec, 2)
			if level == "" {
				continue
			}
			labels := make([]string, len(cols))
			for k, j := range cols {
				labels[k] = cell(rec, j)
			}
			if _, ok := metadata[level]; !ok {
				levelOrder = append(levelOrder, level)
			}
			metadata[level] = labels
			continue
		}

		entities = append(entities, models.Entity{Name: cell(rec, 0), Category: cell(rec, 1), MZ: cell(rec, 2)})
		values := make([]float64, len(cols))
		for k, j := range cols {
			raw := cell(rec, j)
			if raw == "" {
				continue
			}
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d, column %d: %q is not numeric", i+1, j+1, raw)
			}
			values[k] = v
		}
		rows = append(rows, values)
	}

	samples, err := s.samples(metadata, levelOrder, len(cols))
	if err != nil {
		return nil, err
	}
	return frame.FromRows(entities, samples, rows)
}

func (s *CSVService) samples(metadata map[string][]string, levelOrder []string, n int) ([]models.Sample, error) {
	for _, level := range []string{s.Levels.Condition, s.Levels.Compartment, s.Levels.Mode} {
		if _, ok := metadata[level]; !ok {
			return nil, fmt.Errorf("%w: %q (found %v)", models.ErrUnknownLevel, level, levelOrder)
		}
	}
	samples := make([]models.Sample, n)
	for k := range samples {
		sm := models.Sample{
			ID:          strconv.Itoa(k),
			Condition:   metadata[s.Levels.Condition][k],
			Compartment: metadata[s.Levels.Compartment][k],
			Mode:        metadata[s.Levels.Mode][k],
		}
		if ids, ok := metadata[s.Levels.SampleID]; ok && ids[k] != "" {
			sm.ID = ids[k]
		}
		for _, level := range levelOrder {
			if _, known := s.Levels.Role(level); known {
				continue
			}
			if sm.Extra == nil {
				sm.Extra = make(map[string]string)
			}
			sm.Extra[level] = metadata[level][k]
		}
		samples[k] = sm
	}
	return samples, nil
}

// LoadFolder reads every .csv file in dir and groups the matrices by mode.
// A file spanning modes is split.
func (s *CSVService) LoadFolder(dir string) (map[string][]*frame.Matrix, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("%s does not exist: %w", dir, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s: %w", dir, ErrNotDirectory)
	}
	paths, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, err
	}
	sort.Strings(paths)

	data := make(map[string][]*frame.Matrix)
	for _, p := range paths {
		m, err := s.ReadMatrix(p)
		if err != nil {
			return nil, err
		}
		if err := SplitModes(m, data); err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		ents, samps := m.Dims()
		log.WithFields(log.Fields{"file": filepath.Base(p), "entities": ents, "samples": samps}).Info("loaded measurements")
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%s: %w", dir, ErrNoData)
	}
	return data, nil
}

// SplitModes adds m to data, one matrix per mode.
func SplitModes(m *frame.Matrix, data map[string][]*frame.Matrix) error {
	split, err := m.SplitBy(models.RoleMode)
	if err != nil {
		return err
	}
	for mode, sub := range split {
		data[mode] = append(data[mode], sub)
	}
	return nil
}

// Modes lists the distinct modes of a matrix.
func Modes(m *frame.Matrix) []string {
	modes, _ := m.Labels(models.RoleMode)
	sort.Strings(modes)
	return modes
}

func cell(rec []string, j int) string {
	if j >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[j])
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
