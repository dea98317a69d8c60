// Package models defines the domain models for the workflow registry service
package models

// WorkflowTypeJTracker is the only workflow type with an execution engine.
const WorkflowTypeJTracker = "JTracker"

// Owner is the external identity namespace under which workflows are
// registered. It is resolved through the account service and never stored.
type Owner struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// Workflow is a named, owned, versioned pipeline definition.
type Workflow struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	Owner        Owner             `json:"owner"`
	WorkflowType string            `json:"workflow_type"`
	GitAccount   string            `json:"git_account"`
	GitRepo      string            `json:"git_repo"`
	Versions     []WorkflowVersion `json:"versions"`
}

// Version returns the named version, or nil when the workflow doesn't carry it.
func (w *Workflow) Version(version string) *WorkflowVersion {
	for i := range w.Versions {
		if w.Versions[i].Version == version {
			return &w.Versions[i]
		}
	}
	return nil
}

// WorkflowVersion holds the fields written once per registered version.
type WorkflowVersion struct {
	Version         string `json:"version"`
	GitPath         string `json:"git_path"`
	GitTag          string `json:"git_tag"`
	Workflowfile    string `json:"workflowfile,omitempty"`
	WorkflowPackage []byte `json:"-"`
	HasPackage      bool   `json:"has_workflow_package"`
	IsReleased      bool   `json:"is_released"`
}

// WorkflowEntry is the registration request for one workflow version.
type WorkflowEntry struct {
	Name            string `json:"name"`
	Version         string `json:"version"`
	WorkflowType    string `json:"workflow_type"`
	GitAccount      string `json:"git_account"`
	GitRepo         string `json:"git_repo"`
	GitPath         string `json:"git_path"`
	GitTag          string `json:"git_tag"`
	WorkflowPackage []byte `json:"workflow_package,omitempty"`
}

// ArtifactKind selects one of the per-version blobs.
type ArtifactKind string

const (
	ArtifactWorkflowfile    ArtifactKind = "workflowfile"
	ArtifactWorkflowPackage ArtifactKind = "workflow_package"
)

// Valid reports whether k names a known artifact.
func (k ArtifactKind) Valid() bool {
	return k == ArtifactWorkflowfile || k == ArtifactWorkflowPackage
}
