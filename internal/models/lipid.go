package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrUnknownLevel is returned when a metadata level name or role is not
// present in the data.
var ErrUnknownLevel = errors.New("unknown metadata level")

// Role identifies one of the four metadata dimensions every sample carries.
type Role int

const (
	RoleCondition Role = iota
	RoleCompartment
	RoleMode
	RoleSampleID
)

func (r Role) String() string {
	switch r {
	case RoleCondition:
		return "condition"
	case RoleCompartment:
		return "compartment"
	case RoleMode:
		return "mode"
	case RoleSampleID:
		return "sample"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// Levels binds each Role to the metadata level name used in the input files.
type Levels struct {
	Condition   string `json:"phenotype"`
	Compartment string `json:"tissue"`
	Mode        string `json:"mode"`
	SampleID    string `json:"sample"`
}

// DefaultLevels returns the level names used by the lipidomics exports.
func DefaultLevels() Levels {
	return Levels{
		Condition:   "Phenotype",
		Compartment: "Tissue",
		Mode:        "Mode",
		SampleID:    "Sample",
	}
}

// Role returns the role bound to a level name.
func (l Levels) Role(name string) (Role, bool) {
	switch name {
	case l.Condition:
		return RoleCondition, true
	case l.Compartment:
		return RoleCompartment, true
	case l.Mode:
		return RoleMode, true
	case l.SampleID:
		return RoleSampleID, true
	}
	return 0, false
}

// Names returns the level names in Role order.
func (l Levels) Names() []string {
	return []string{l.Condition, l.Compartment, l.Mode, l.SampleID}
}

// Entity is a measured lipid. The full triple is its identity.
type Entity struct {
	Name     string `json:"lipid"`
	Category string `json:"category"`
	MZ       string `json:"mz"`
}

func (e Entity) String() string {
	return fmt.Sprintf("%s (%s, m/z %s)", e.Name, e.Category, e.MZ)
}

// Sample holds the metadata of one measurement column.
type Sample struct {
	ID          string            `json:"sample"`
	Condition   string            `json:"condition"`
	Compartment string            `json:"compartment"`
	Mode        string            `json:"mode"`
	Extra       map[string]string `json:"extra,omitempty"`
}

// Label returns the sample's label for a role.
func (s Sample) Label(r Role) (string, error) {
	switch r {
	case RoleCondition:
		return s.Condition, nil
	case RoleCompartment:
		return s.Compartment, nil
	case RoleMode:
		return s.Mode, nil
	case RoleSampleID:
		return s.ID, nil
	}
	return "", fmt.Errorf("%w: %s", ErrUnknownLevel, r)
}

// SimilarityResult is one row of the Jaccard report: the similarity between
// the two order conditions for one category of one class table.
type SimilarityResult struct {
	Class      string  `json:"class"`
	Key        string  `json:"key"`
	Mode       string  `json:"mode"`
	Category   string  `json:"category"`
	Similarity float64 `json:"j_sim"`
	Distance   float64 `json:"j_dist"`
	PValue     float64 `json:"p_val"`
	Degenerate bool    `json:"degenerate,omitempty"`
}

// FoldChange is the error-normalised fold change of one entity within one
// compartment.
type FoldChange struct {
	Mode        string  `json:"mode"`
	Compartment string  `json:"compartment"`
	Entity      Entity  `json:"entity"`
	ENFC        float64 `json:"enfc"`
}

// finite maps NaN and infinities to null in JSON.
func finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}
	return &v
}

func (r SimilarityResult) MarshalJSON() ([]byte, error) {
	type plain SimilarityResult
	return json.Marshal(struct {
		plain
		Similarity *float64 `json:"j_sim"`
		Distance   *float64 `json:"j_dist"`
	}{plain(r), finite(r.Similarity), finite(r.Distance)})
}

func (r SimilarityResponse) MarshalJSON() ([]byte, error) {
	type plain SimilarityResponse
	return json.Marshal(struct {
		plain
		Similarity *float64 `json:"j_sim"`
		Distance   *float64 `json:"j_dist"`
	}{plain(r), finite(r.Similarity), finite(r.Distance)})
}

func (f FoldChange) MarshalJSON() ([]byte, error) {
	type plain FoldChange
	return json.Marshal(struct {
		plain
		ENFC *float64 `json:"enfc"`
	}{plain(f), finite(f.ENFC)})
}
