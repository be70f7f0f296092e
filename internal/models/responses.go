package models

// UploadResponse is returned after a measurement file is uploaded
type UploadResponse struct {
	Message   string   `json:"message"`
	DatasetID string   `json:"dataset_id"`
	Entities  int      `json:"entities"`
	Samples   int      `json:"samples"`
	Modes     []string `json:"modes"`
}

// DatasetStatus represents a loaded measurement file
type DatasetStatus struct {
	DatasetID string   `json:"dataset_id"`
	Filename  string   `json:"filename"`
	Entities  int      `json:"entities"`
	Samples   int      `json:"samples"`
	Modes     []string `json:"modes"`
}

// RunRequest for POST /api/runs
type RunRequest struct {
	DatasetIDs []string  `json:"dataset_ids"`
	Threshold  *float64  `json:"threshold,omitempty"`
	BootReps   int       `json:"boot_reps,omitempty"`
	Seed       *int64    `json:"seed,omitempty"`
	Order      [2]string `json:"order,omitempty"`
}

// ClassSummary describes one class set of a run
type ClassSummary struct {
	Class   string         `json:"class"`
	Tables  int            `json:"tables"`
	Members map[string]int `json:"members"`
}

// RunResponse is returned by /api/runs endpoints
type RunResponse struct {
	RunID        string         `json:"run_id"`
	Modes        []string       `json:"modes"`
	Classes      []ClassSummary `json:"classes"`
	Similarities int            `json:"similarities"`
	Persisted    bool           `json:"persisted"`
}

// ClassTableResponse is a serialisable class table
type ClassTableResponse struct {
	Key          string   `json:"key"`
	Mode         string   `json:"mode"`
	Compartments []string `json:"compartments"`
	Conditions   []string `json:"conditions"`
	Entities     []Entity `json:"entities"`
	Present      [][]bool `json:"present"`
}

// SimilarityRequest for POST /api/similarity
// X and Y are decoded loosely so shape and type errors can be reported.
type SimilarityRequest struct {
	X        any      `json:"x"`
	Y        any      `json:"y"`
	PX       *float64 `json:"px,omitempty"`
	PY       *float64 `json:"py,omitempty"`
	BootReps int      `json:"boot_reps,omitempty"`
	Seed     *int64   `json:"seed,omitempty"`
}

// SimilarityResponse for POST /api/similarity
type SimilarityResponse struct {
	Similarity float64 `json:"j_sim"`
	Distance   float64 `json:"j_dist"`
	PValue     float64 `json:"p_val"`
	Degenerate string  `json:"degenerate,omitempty"`
}

// ClusterRequest for POST /api/cluster
type ClusterRequest struct {
	DatasetID  string `json:"dataset_id"`
	Mode       string `json:"mode"`
	Clusters   int    `json:"clusters"`
	Linkage    string `json:"linkage"`
	Metric     string `json:"metric"`
	Components int    `json:"components"`
}

// ClusterResponse assigns each sample a cluster label
type ClusterResponse struct {
	Samples []string `json:"samples"`
	Labels  []int    `json:"labels"`
}
