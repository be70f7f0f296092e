package state

import (
	"crypto/rand"
	"encoding/hex"
	"sort"
	"sync"
	"time"

	"lta/internal/frame"
	"lta/internal/pipeline"
)

// Dataset is an uploaded measurement file
type Dataset struct {
	ID       string
	FileName string
	Matrix   *frame.Matrix
	Loaded   time.Time
}

// Run is a finished pipeline run
type Run struct {
	ID         string
	DatasetIDs []string
	Result     *pipeline.Result
	Persisted  bool
	Finished   time.Time
}

// AppState holds the global application state
type AppState struct {
	mu sync.RWMutex

	datasets map[string]*Dataset
	runs     map[string]*Run
}

func New() *AppState {
	return &AppState{
		datasets: make(map[string]*Dataset),
		runs:     make(map[string]*Run),
	}
}

// Global state instance
var State = New()

// NewID returns a random identifier
func NewID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return time.Now().Format("20060102150405.000000000")
	}
	return hex.EncodeToString(b)
}

// AddDataset stores a dataset and returns its id
func (s *AppState) AddDataset(name string, m *frame.Matrix) *Dataset {
	d := &Dataset{ID: NewID(), FileName: name, Matrix: m, Loaded: time.Now()}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[d.ID] = d
	return d
}

// GetDataset retrieves a dataset by id
func (s *AppState) GetDataset(id string) (*Dataset, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.datasets[id]
	return d, ok
}

// Datasets lists datasets, oldest first
func (s *AppState) Datasets() []*Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Dataset, 0, len(s.datasets))
	for _, d := range s.datasets {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Loaded.Equal(out[j].Loaded) {
			return out[i].Loaded.Before(out[j].Loaded)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// AddRun stores a finished run
func (s *AppState) AddRun(r *Run) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs[r.ID] = r
}

// GetRun retrieves a run by id
func (s *AppState) GetRun(id string) (*Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runs[id]
	return r, ok
}
