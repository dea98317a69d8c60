package keyschema

import (
	"fmt"
	"sort"
	"strings"

	"jt-wrs/backend/pkg/models"
)

// Workflow document field names.
const (
	FieldWorkflowType    = "workflow_type"
	FieldGitAccount      = "git_account"
	FieldGitRepo         = "git_repo"
	FieldName            = "name"
	FieldOwnerID         = "owner.id"
	FieldGitPath         = "git_path"
	FieldGitTag          = "git_tag"
	FieldWorkflowfile    = "workflowfile"
	FieldWorkflowPackage = "workflow_package"
	FieldIsReleased      = "is_released"
)

// WorkflowPolicy is the encoding table for workflow documents.
var WorkflowPolicy = Policy{
	FieldWorkflowType:    {Placement: OutOfBand, Kind: Text},
	FieldGitAccount:      {Placement: OutOfBand, Kind: Text},
	FieldGitRepo:         {Placement: OutOfBand, Kind: Text},
	FieldName:            {Placement: OutOfBand, Kind: Text},
	FieldOwnerID:         {Placement: OutOfBand, Kind: Text},
	FieldGitPath:         {Placement: OutOfBand, Kind: Text},
	FieldGitTag:          {Placement: OutOfBand, Kind: Text},
	FieldWorkflowfile:    {Placement: OutOfBand, Kind: Text, Escaped: true},
	FieldWorkflowPackage: {Placement: OutOfBand, Kind: Binary},
	FieldIsReleased:      {Placement: Inline, Kind: Flag},
}

// Schema lays out workflow keys below a configurable root.
//
//	<root>/owner.id:<owner>/workflow/name:<name>/id -> <workflow id>
//	<root>/workflow/id:<id>/<field>
//	<root>/workflow/id:<id>/ver:<version>/<field>
type Schema struct {
	root string
}

// New returns a Schema rooted at root; a trailing separator is dropped.
func New(root string) Schema {
	return Schema{root: strings.TrimRight(root, sep)}
}

// IndexPrefix is the prefix of all secondary index keys of one owner.
func (s Schema) IndexPrefix(ownerID string) string {
	return s.root + sep + "owner.id:" + Escape(ownerID) + sep + "workflow" + sep + "name:"
}

// IndexKey maps (owner, name) to the workflow id.
func (s Schema) IndexKey(ownerID, name string) string {
	return s.IndexPrefix(ownerID) + Escape(name) + sep + "id"
}

// NameFromIndexKey extracts the workflow name from an index key of ownerID.
func (s Schema) NameFromIndexKey(ownerID, key string) (string, bool) {
	rest, ok := strings.CutPrefix(key, s.IndexPrefix(ownerID))
	if !ok {
		return "", false
	}
	escaped, ok := strings.CutSuffix(rest, sep+"id")
	if !ok || escaped == "" || strings.Contains(escaped, sep) {
		return "", false
	}
	return Unescape(escaped), true
}

// WorkflowPrefix is the prefix of the full key range of one workflow.
func (s Schema) WorkflowPrefix(id string) string {
	return s.root + sep + "workflow" + sep + "id:" + Escape(id) + sep
}

// VersionPrefix is the prefix of one version partition.
func (s Schema) VersionPrefix(id, version string) string {
	return s.WorkflowPrefix(id) + versionPrefix + Escape(version) + sep
}

// ArtifactKey is the single key holding a per-version blob.
func (s Schema) ArtifactKey(id, version string, kind models.ArtifactKind) string {
	return s.VersionPrefix(id, version) + string(kind)
}

// VersionMarkerKey is written for every registered version and used to
// detect an existing version inside a transaction.
func (s Schema) VersionMarkerKey(id, version string) string {
	return s.VersionPrefix(id, version) + FieldGitTag
}

// CreateSet is the write set of a brand-new workflow: top-level fields, the
// first version and the secondary index key.
func (s Schema) CreateSet(wf models.Workflow, v models.WorkflowVersion) ([]Pair, error) {
	if wf.ID == "" || wf.Owner.ID == "" || wf.Name == "" {
		return nil, fmt.Errorf("%w: workflow id, owner id and name are required", ErrInvalidField)
	}
	doc := NewDocument()
	doc.Fields = workflowFields(wf)
	doc.Versions[v.Version] = versionFields(v)

	pairs, err := Encode(s.WorkflowPrefix(wf.ID), doc, WorkflowPolicy)
	if err != nil {
		return nil, err
	}
	return append(pairs, Pair{Key: s.IndexKey(wf.Owner.ID, wf.Name), Value: []byte(wf.ID)}), nil
}

// AddVersionSet is the write set of a new version of an existing workflow.
// Top-level fields are never part of it.
func (s Schema) AddVersionSet(id string, v models.WorkflowVersion) ([]Pair, error) {
	if id == "" {
		return nil, fmt.Errorf("%w: workflow id is required", ErrInvalidField)
	}
	doc := NewDocument()
	doc.Versions[v.Version] = versionFields(v)
	return Encode(s.WorkflowPrefix(id), doc, WorkflowPolicy)
}

// DecodeWorkflow rebuilds workflow id from its key range. The bool is false
// when the range is empty or versionFilter names a version that isn't
// there.
func (s Schema) DecodeWorkflow(id string, pairs []Pair, versionFilter string) (*models.Workflow, bool, error) {
	doc, err := Decode(s.WorkflowPrefix(id), pairs, WorkflowPolicy, versionFilter)
	if err != nil {
		return nil, false, err
	}
	if doc.Empty() || (versionFilter != "" && !doc.HasVersion(versionFilter)) {
		return nil, false, nil
	}

	wf := &models.Workflow{
		ID:           id,
		Name:         string(doc.Values[FieldName]),
		Owner:        models.Owner{ID: string(doc.Values[FieldOwnerID])},
		WorkflowType: string(doc.Values[FieldWorkflowType]),
		GitAccount:   string(doc.Values[FieldGitAccount]),
		GitRepo:      string(doc.Values[FieldGitRepo]),
		Versions:     []models.WorkflowVersion{},
	}

	// scan order of the partitions
	versions := make([]string, 0, len(doc.Versions))
	for v := range doc.Versions {
		versions = append(versions, v)
	}
	sort.Slice(versions, func(i, j int) bool { return Escape(versions[i]) < Escape(versions[j]) })

	for _, v := range versions {
		f := doc.Versions[v]
		pkg := f.Values[FieldWorkflowPackage]
		wf.Versions = append(wf.Versions, models.WorkflowVersion{
			Version:         v,
			GitPath:         string(f.Values[FieldGitPath]),
			GitTag:          string(f.Values[FieldGitTag]),
			Workflowfile:    string(f.Values[FieldWorkflowfile]),
			WorkflowPackage: pkg,
			HasPackage:      len(pkg) > 0,
			IsReleased:      f.Flags[FieldIsReleased],
		})
	}
	return wf, true, nil
}

func workflowFields(wf models.Workflow) Fields {
	f := NewFields()
	f.Values[FieldWorkflowType] = []byte(wf.WorkflowType)
	f.Values[FieldGitAccount] = []byte(wf.GitAccount)
	f.Values[FieldGitRepo] = []byte(wf.GitRepo)
	f.Values[FieldName] = []byte(wf.Name)
	f.Values[FieldOwnerID] = []byte(wf.Owner.ID)
	return f
}

func versionFields(v models.WorkflowVersion) Fields {
	f := NewFields()
	f.Values[FieldGitPath] = []byte(v.GitPath)
	f.Values[FieldGitTag] = []byte(v.GitTag)
	f.Values[FieldWorkflowfile] = []byte(v.Workflowfile)
	if len(v.WorkflowPackage) > 0 {
		f.Values[FieldWorkflowPackage] = v.WorkflowPackage
	}
	// only a released version carries the flag; registration never sets it
	if v.IsReleased {
		f.Flags[FieldIsReleased] = true
	}
	return f
}
