package model

// Workflow is the top-level declarative pipeline document
type Workflow struct {
	APIVersion string       `yaml:"apiVersion" json:"apiVersion"`
	Kind       string       `yaml:"kind" json:"kind"`
	Metadata   Metadata     `yaml:"metadata" json:"metadata"`
	Jobs       []JobSpec    `yaml:"jobs" json:"jobs"`
	Release    *ReleaseSpec `yaml:"release,omitempty" json:"release,omitempty"`
}

// Metadata holds standard object metadata
type Metadata struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// JobSpec defines a complete job specification with steps, predecessors
// and optional matrix parameterization
type JobSpec struct {
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description,omitempty" json:"description,omitempty"`
	Needs       []string          `yaml:"needs,omitempty" json:"needs,omitempty"`
	If          RunCondition      `yaml:"if,omitempty" json:"if,omitempty"`
	Required    bool              `yaml:"required,omitempty" json:"required,omitempty"`
	Matrix      *MatrixSpec       `yaml:"matrix,omitempty" json:"matrix,omitempty"`
	Env         map[string]string `yaml:"env,omitempty" json:"env,omitempty"`
	Consumes    []string          `yaml:"consumes,omitempty" json:"consumes,omitempty"`
	Steps       []StepSpec        `yaml:"steps" json:"steps"`
}

// StepSpec is a single execution unit within a job
type StepSpec struct {
	Name     string        `yaml:"name" json:"name"`
	Run      string        `yaml:"run" json:"run"`
	Artifact *ArtifactDecl `yaml:"artifact,omitempty" json:"artifact,omitempty"`
}

// ArtifactDecl declares that a step produces a named artifact at a path
type ArtifactDecl struct {
	Name string `yaml:"name" json:"name"`
	Path string `yaml:"path" json:"path"`
}

// MatrixSpec parameterizes a job over the Cartesian product of its axes
type MatrixSpec struct {
	Axes     []Axis `yaml:"axes" json:"axes"`
	FailFast bool   `yaml:"failFast,omitempty" json:"failFast,omitempty"`
}

// Axis is one named matrix dimension with an ordered value set
type Axis struct {
	Name   string   `yaml:"name" json:"name"`
	Values []string `yaml:"values" json:"values"`
}

// ReleaseSpec configures the conditionally-triggered publish at the end of
// a run: which job acts as the gate set's sentinel, what ref shape counts
// as a release, and the ordered distribution targets.
type ReleaseSpec struct {
	TagPattern string          `yaml:"tagPattern" json:"tagPattern"`
	Targets    []ReleaseTarget `yaml:"targets" json:"targets"`
}

// ReleaseTarget names one distribution destination and the artifact it ships
type ReleaseTarget struct {
	Name     string `yaml:"name" json:"name"`
	Artifact string `yaml:"artifact" json:"artifact"`
}
