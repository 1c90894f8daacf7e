// Package render materializes run results for humans and files.
package render

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sourceplane/flowci/internal/engine"
	"github.com/sourceplane/flowci/internal/graph"
	"gopkg.in/yaml.v3"
)

// ReportDoc is the serializable form of a run report.
type ReportDoc struct {
	APIVersion string         `json:"apiVersion" yaml:"apiVersion"`
	Kind       string         `json:"kind" yaml:"kind"`
	RunID      string         `json:"runID" yaml:"runID"`
	Jobs       []ReportJob    `json:"jobs" yaml:"jobs"`
	Gate       ReportGate     `json:"gate" yaml:"gate"`
	Release    *ReportRelease `json:"release,omitempty" yaml:"release,omitempty"`
}

// ReportJob is one job's terminal state in the report.
type ReportJob struct {
	Name      string           `json:"name" yaml:"name"`
	Outcome   string           `json:"outcome" yaml:"outcome"`
	Error     string           `json:"error,omitempty" yaml:"error,omitempty"`
	Instances []ReportInstance `json:"instances,omitempty" yaml:"instances,omitempty"`
}

// ReportInstance is one matrix leg's terminal state.
type ReportInstance struct {
	ID     string `json:"id" yaml:"id"`
	Status string `json:"status" yaml:"status"`
	Error  string `json:"error,omitempty" yaml:"error,omitempty"`
}

// ReportGate is the gate verdict with per-job blocking reasons.
type ReportGate struct {
	Success  bool     `json:"success" yaml:"success"`
	Blocking []string `json:"blocking,omitempty" yaml:"blocking,omitempty"`
}

// ReportRelease records what the release trigger did.
type ReportRelease struct {
	Fired   bool           `json:"fired" yaml:"fired"`
	Reason  string         `json:"reason,omitempty" yaml:"reason,omitempty"`
	Version string         `json:"version,omitempty" yaml:"version,omitempty"`
	Targets []ReportTarget `json:"targets,omitempty" yaml:"targets,omitempty"`
}

// ReportTarget is one distribution target's distinct outcome.
type ReportTarget struct {
	Name    string `json:"name" yaml:"name"`
	Outcome string `json:"outcome" yaml:"outcome"`
	Error   string `json:"error,omitempty" yaml:"error,omitempty"`
}

// BuildReport converts an engine run report into its serializable form.
func BuildReport(report *engine.RunReport) *ReportDoc {
	doc := &ReportDoc{
		APIVersion: "flowci.sourceplane.io/v1",
		Kind:       "RunReport",
		RunID:      report.RunID,
		Gate:       ReportGate{Success: report.Gate.Success},
	}

	names := make([]string, 0, len(report.Jobs))
	for name := range report.Jobs {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		res := report.Jobs[name]
		job := ReportJob{Name: name, Outcome: res.Outcome.String()}
		if res.Err != nil {
			job.Error = res.Err.Error()
		}
		for _, inst := range res.Instances {
			ri := ReportInstance{ID: inst.ID(), Status: inst.Status.String()}
			if inst.Err != nil {
				ri.Error = inst.Err.Error()
			}
			job.Instances = append(job.Instances, ri)
		}
		doc.Jobs = append(doc.Jobs, job)
	}

	for _, reason := range report.Gate.Blocking {
		doc.Gate.Blocking = append(doc.Gate.Blocking, fmt.Sprintf("%s: %s", reason.Job, reason.Reason))
	}

	if report.Release != nil {
		rel := &ReportRelease{
			Fired:   report.Release.Fired,
			Reason:  report.Release.Reason,
			Version: report.Release.Version,
		}
		for _, tr := range report.Release.Results {
			rt := ReportTarget{Name: tr.Target, Outcome: tr.Outcome.String()}
			if tr.Err != nil {
				rt.Error = tr.Err.Error()
			}
			rel.Targets = append(rel.Targets, rt)
		}
		doc.Release = rel
	}

	return doc
}

// WriteReport writes the report to a file, JSON or YAML by extension.
func WriteReport(doc *ReportDoc, path string) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory: %w", err)
		}
	}

	var data []byte
	var err error
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(doc)
	default:
		data, err = json.MarshalIndent(doc, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to render report: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return nil
}

// Summary renders a short human-readable run summary.
func Summary(doc *ReportDoc) string {
	var sb strings.Builder

	for _, job := range doc.Jobs {
		sb.WriteString(fmt.Sprintf("  %-24s %s\n", job.Name, job.Outcome))
		for _, inst := range job.Instances {
			if inst.ID != job.Name {
				sb.WriteString(fmt.Sprintf("    %-22s %s\n", inst.ID, inst.Status))
			}
		}
	}

	if doc.Gate.Success {
		sb.WriteString("\nGate: passed\n")
	} else {
		sb.WriteString("\nGate: FAILED\n")
		for _, reason := range doc.Gate.Blocking {
			sb.WriteString(fmt.Sprintf("  - %s\n", reason))
		}
	}

	if doc.Release != nil {
		if doc.Release.Fired {
			sb.WriteString(fmt.Sprintf("Release: fired (version %s)\n", doc.Release.Version))
			for _, target := range doc.Release.Targets {
				sb.WriteString(fmt.Sprintf("  - %-16s %s\n", target.Name, target.Outcome))
			}
		} else {
			sb.WriteString(fmt.Sprintf("Release: not fired (%s)\n", doc.Release.Reason))
		}
	}

	return sb.String()
}

// GraphView returns a human-readable listing of the DAG in execution
// order, with each job's predecessors.
func GraphView(g *graph.Graph) string {
	var sb strings.Builder

	jobs := g.Jobs()
	for i, name := range jobs {
		prefix := "├─ "
		if i == len(jobs)-1 {
			prefix = "└─ "
		}

		spec := g.Spec(name)
		attrs := []string{}
		if len(spec.Needs) > 0 {
			attrs = append(attrs, fmt.Sprintf("needs: %s", strings.Join(spec.Needs, ", ")))
		}
		if spec.Matrix != nil {
			legs := 1
			for _, axis := range spec.Matrix.Axes {
				legs *= len(axis.Values)
			}
			attrs = append(attrs, fmt.Sprintf("matrix: %d legs", legs))
		}
		if spec.Required {
			attrs = append(attrs, "required")
		}
		if spec.If != "" && spec.If != "on-success" {
			attrs = append(attrs, fmt.Sprintf("if: %s", spec.If))
		}

		if len(attrs) > 0 {
			sb.WriteString(fmt.Sprintf("%s%s (%s)\n", prefix, name, strings.Join(attrs, "; ")))
		} else {
			sb.WriteString(fmt.Sprintf("%s%s\n", prefix, name))
		}
	}

	return sb.String()
}
