package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"jt-wrs/backend/internal/keyschema"
	"jt-wrs/backend/internal/repository"
	"jt-wrs/backend/pkg/models"
)

const (
	branchCreate     = "create"
	branchAddVersion = "add_version"

	// maxRegisterAttempts bounds retries after losing a create race.
	maxRegisterAttempts = 3
)

// WorkflowRegistry is the read and write surface of the registry.
type WorkflowRegistry struct {
	store     repository.Store
	artifacts *repository.ArtifactStore
	owners    OwnerResolver
	fetcher   ArchiveFetcher
	engines   Engines
	schema    keyschema.Schema
	logger    Logger
	telemetry *telemetry
	newID     func() string
}

// NewWorkflowRegistry creates a new WorkflowRegistry storing keys below root.
func NewWorkflowRegistry(store repository.Store, owners OwnerResolver, fetcher ArchiveFetcher, engines Engines, root string, logger Logger) *WorkflowRegistry {
	return &WorkflowRegistry{
		store:     store,
		artifacts: repository.NewArtifactStore(store),
		owners:    owners,
		fetcher:   fetcher,
		engines:   engines,
		schema:    keyschema.New(root),
		logger:    logger,
		telemetry: newTelemetry(),
		newID:     uuid.NewString,
	}
}

// Ping checks the store.
func (r *WorkflowRegistry) Ping(ctx context.Context) error {
	return r.store.Ping(ctx)
}

// ListWorkflows returns the workflows of ownerName, optionally narrowed to
// one name and to one version. Workflows lacking the requested version are
// skipped. The result is empty, not nil, when nothing matches.
func (r *WorkflowRegistry) ListWorkflows(ctx context.Context, ownerName, nameFilter, versionFilter string) (_ []*models.Workflow, err error) {
	ctx, span := r.telemetry.start(ctx, "ListWorkflows",
		attribute.String("owner.name", ownerName),
		attribute.String("workflow.name", nameFilter),
		attribute.String("workflow.version", versionFilter))
	defer func() { end(span, err) }()

	ownerID, err := r.owners.ResolveID(ctx, ownerName)
	if err != nil {
		return nil, err
	}
	return r.list(ctx, models.Owner{ID: ownerID, Name: ownerName}, nameFilter, versionFilter)
}

// GetWorkflow returns one workflow, narrowed to version when set, or nil
// when there is no match.
func (r *WorkflowRegistry) GetWorkflow(ctx context.Context, ownerName, name, version string) (*models.Workflow, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: workflow name is required", ErrInvalidEntry)
	}
	workflows, err := r.ListWorkflows(ctx, ownerName, name, version)
	if err != nil || len(workflows) == 0 {
		return nil, err
	}
	return workflows[0], nil
}

// GetWorkflowByID returns a workflow by its generated id, or nil when it
// doesn't exist. The owner name is resolved from the stored owner id.
func (r *WorkflowRegistry) GetWorkflowByID(ctx context.Context, id, version string) (_ *models.Workflow, err error) {
	ctx, span := r.telemetry.start(ctx, "GetWorkflowByID", attribute.String("workflow.id", id))
	defer func() { end(span, err) }()

	wf, err := r.decode(ctx, id, version)
	if err != nil || wf == nil {
		return nil, err
	}
	if wf.Owner.ID != "" {
		name, err := r.owners.ResolveName(ctx, wf.Owner.ID)
		if err != nil {
			return nil, err
		}
		wf.Owner.Name = name
	}
	return wf, nil
}

// GetVersionedArtifact reads one per-version blob. The bool is false when
// the owner, the workflow, the version or the artifact doesn't exist.
func (r *WorkflowRegistry) GetVersionedArtifact(ctx context.Context, ownerName, name, version string, kind models.ArtifactKind) (_ []byte, _ bool, err error) {
	ctx, span := r.telemetry.start(ctx, "GetVersionedArtifact",
		attribute.String("owner.name", ownerName),
		attribute.String("workflow.name", name),
		attribute.String("workflow.version", version),
		attribute.String("artifact", string(kind)))
	defer func() { end(span, err) }()

	if !kind.Valid() {
		return nil, false, fmt.Errorf("%w: unknown artifact %q", ErrInvalidEntry, kind)
	}

	ownerID, err := r.owners.ResolveID(ctx, ownerName)
	if errors.Is(err, ErrOwnerNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	raw, found, err := r.store.Get(ctx, r.schema.IndexKey(ownerID, name))
	if err != nil || !found {
		return nil, false, err
	}
	key := r.schema.ArtifactKey(string(raw), version, kind)

	if kind == models.ArtifactWorkflowPackage {
		return r.artifacts.GetBytes(ctx, key)
	}
	text, found, err := r.artifacts.GetText(ctx, key)
	if err != nil || !found {
		return nil, false, err
	}
	return []byte(keyschema.Unescape(text)), true, nil
}

// GetWorkflowfile returns the workflow definition text of a version.
func (r *WorkflowRegistry) GetWorkflowfile(ctx context.Context, ownerName, name, version string) (string, bool, error) {
	b, found, err := r.GetVersionedArtifact(ctx, ownerName, name, version, models.ArtifactWorkflowfile)
	return string(b), found, err
}

// GetWorkflowPackage returns the opaque package of a version.
func (r *WorkflowRegistry) GetWorkflowPackage(ctx context.Context, ownerName, name, version string) ([]byte, bool, error) {
	return r.GetVersionedArtifact(ctx, ownerName, name, version, models.ArtifactWorkflowPackage)
}

// RegisterWorkflow validates entry against its source archive and stores it
// as a new version, creating the workflow on its first version.
func (r *WorkflowRegistry) RegisterWorkflow(ctx context.Context, ownerName string, entry models.WorkflowEntry) (_ *models.Workflow, err error) {
	ctx, span := r.telemetry.start(ctx, "RegisterWorkflow",
		attribute.String("owner.name", ownerName),
		attribute.String("workflow.name", entry.Name),
		attribute.String("workflow.version", entry.Version))
	defer func() {
		if err != nil {
			r.telemetry.failed(ctx, err)
		}
		end(span, err)
	}()

	if err := normalizeEntry(&entry); err != nil {
		return nil, err
	}

	ownerID, err := r.owners.ResolveID(ctx, ownerName)
	if err != nil {
		return nil, err
	}
	owner := models.Owner{ID: ownerID, Name: ownerName}

	existing, err := r.list(ctx, owner, entry.Name, entry.Version)
	if err != nil {
		return nil, err
	}
	if len(existing) > 0 {
		return nil, fmt.Errorf("%w: %s/%s %s", ErrDuplicateRegistration, ownerName, entry.Name, entry.Version)
	}

	if err := CheckVersionTag(entry.Name, entry.Version, entry.GitTag); err != nil {
		return nil, err
	}

	construct, ok := r.engines[entry.WorkflowType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedWorkflowType, entry.WorkflowType)
	}

	definition, err := r.fetchDefinition(ctx, entry)
	if err != nil {
		return nil, err
	}
	if _, err := construct(definition); err != nil {
		r.logger.Warn("workflow definition rejected by engine",
			"owner", ownerName, "workflow", entry.Name, "version", entry.Version, "error", err)
		return nil, fmt.Errorf("%w: %s %s", ErrInvalidWorkflowDefinition, entry.Name, entry.Version)
	}

	version := models.WorkflowVersion{
		Version:         entry.Version,
		GitPath:         entry.GitPath,
		GitTag:          entry.GitTag,
		Workflowfile:    definition,
		WorkflowPackage: entry.WorkflowPackage,
	}
	branch, err := r.commit(ctx, owner, entry, version)
	if err != nil {
		return nil, err
	}
	r.telemetry.registered(ctx, branch)
	r.logger.Info("workflow version registered",
		"owner", ownerName, "workflow", entry.Name, "version", entry.Version, "branch", branch)

	registered, err := r.list(ctx, owner, entry.Name, entry.Version)
	if err != nil {
		return nil, err
	}
	if len(registered) == 0 {
		return nil, fmt.Errorf("%w: %s %s vanished after registration", ErrStoreUnavailable, entry.Name, entry.Version)
	}
	return registered[0], nil
}

// commit writes the version in one conditional transaction keyed on the
// secondary index: an existing index selects the add-version write set, an
// absent one the create write set. A create that loses the race to a
// concurrent writer writes nothing and is retried as an add-version.
func (r *WorkflowRegistry) commit(ctx context.Context, owner models.Owner, entry models.WorkflowEntry, version models.WorkflowVersion) (string, error) {
	indexKey := r.schema.IndexKey(owner.ID, entry.Name)

	for attempt := 1; attempt <= maxRegisterAttempts; attempt++ {
		raw, exists, err := r.store.Get(ctx, indexKey)
		if err != nil {
			return "", err
		}

		if exists {
			id := string(raw)
			pairs, err := r.schema.AddVersionSet(id, version)
			if err != nil {
				return "", err
			}
			applied, err := r.store.Txn(ctx,
				[]repository.Condition{
					{Key: indexKey, Exists: true},
					{Key: r.schema.VersionMarkerKey(id, version.Version), Exists: false},
				},
				toKVs(pairs), nil)
			if err != nil {
				return "", err
			}
			if !applied {
				// the index is never removed, so the version marker exists
				return "", fmt.Errorf("%w: %s/%s %s", ErrDuplicateRegistration, owner.Name, entry.Name, version.Version)
			}
			return branchAddVersion, nil
		}

		wf := models.Workflow{
			ID:           r.newID(),
			Name:         entry.Name,
			Owner:        owner,
			WorkflowType: entry.WorkflowType,
			GitAccount:   entry.GitAccount,
			GitRepo:      entry.GitRepo,
		}
		pairs, err := r.schema.CreateSet(wf, version)
		if err != nil {
			return "", err
		}
		indexExists, err := r.store.Txn(ctx,
			[]repository.Condition{{Key: indexKey, Exists: true}},
			nil, toKVs(pairs))
		if err != nil {
			return "", err
		}
		if !indexExists {
			return branchCreate, nil
		}
		r.logger.Info("workflow created concurrently, retrying as new version",
			"owner", owner.Name, "workflow", entry.Name, "attempt", attempt)
	}
	return "", fmt.Errorf("%w: %s/%s", ErrRegistrationConflict, owner.Name, entry.Name)
}

// GetExecutionPlan hands the job document to the engine of the workflow's
// type. Engine results and failures are passed through unchanged.
func (r *WorkflowRegistry) GetExecutionPlan(ctx context.Context, ownerName, name, version string, job map[string]any) (_ map[string]any, err error) {
	ctx, span := r.telemetry.start(ctx, "GetExecutionPlan",
		attribute.String("owner.name", ownerName),
		attribute.String("workflow.name", name),
		attribute.String("workflow.version", version))
	defer func() { end(span, err) }()

	if version == "" {
		return nil, fmt.Errorf("%w: workflow version is required", ErrInvalidEntry)
	}
	wf, err := r.GetWorkflow(ctx, ownerName, name, version)
	if err != nil {
		return nil, err
	}
	if wf == nil {
		return nil, fmt.Errorf("%w: %s/%s %s", ErrArtifactNotFound, ownerName, name, version)
	}

	construct, ok := r.engines[wf.WorkflowType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedWorkflowType, wf.WorkflowType)
	}
	engine, err := construct(wf.Version(version).Workflowfile)
	if err != nil {
		return nil, err
	}
	return engine.ExecutionPlan(ctx, job)
}

// GetJobTemplate, DeleteWorkflow and ReleaseWorkflow are reserved
// operations of the registry API without an implementation.
func (r *WorkflowRegistry) GetJobTemplate(ctx context.Context, ownerName, name, version string) (map[string]any, error) {
	return nil, fmt.Errorf("%w: job template", ErrNotImplemented)
}

func (r *WorkflowRegistry) DeleteWorkflow(ctx context.Context, ownerName, name, version string) error {
	return fmt.Errorf("%w: workflow deletion", ErrNotImplemented)
}

func (r *WorkflowRegistry) ReleaseWorkflow(ctx context.Context, ownerName, name, version string) error {
	return fmt.Errorf("%w: workflow release", ErrNotImplemented)
}

// list decodes the workflows of an already resolved owner.
func (r *WorkflowRegistry) list(ctx context.Context, owner models.Owner, nameFilter, versionFilter string) ([]*models.Workflow, error) {
	var ids []string
	if nameFilter != "" {
		raw, found, err := r.store.Get(ctx, r.schema.IndexKey(owner.ID, nameFilter))
		if err != nil {
			return nil, err
		}
		if found {
			ids = append(ids, string(raw))
		}
	} else {
		kvs, err := r.store.GetPrefix(ctx, r.schema.IndexPrefix(owner.ID))
		if err != nil {
			return nil, err
		}
		for _, kv := range kvs {
			if _, ok := r.schema.NameFromIndexKey(owner.ID, kv.Key); !ok {
				r.logger.Debug("skipping foreign key below owner index", "key", kv.Key)
				continue
			}
			ids = append(ids, string(kv.Value))
		}
	}

	workflows := make([]*models.Workflow, 0, len(ids))
	for _, id := range ids {
		wf, err := r.decode(ctx, id, versionFilter)
		if err != nil {
			return nil, err
		}
		if wf == nil {
			continue
		}
		if wf.Owner.ID == "" {
			wf.Owner.ID = owner.ID
		}
		wf.Owner.Name = owner.Name
		workflows = append(workflows, wf)
	}
	return workflows, nil
}

func (r *WorkflowRegistry) decode(ctx context.Context, id, versionFilter string) (*models.Workflow, error) {
	kvs, err := r.store.GetPrefix(ctx, r.schema.WorkflowPrefix(id))
	if err != nil {
		return nil, err
	}
	pairs := make([]keyschema.Pair, len(kvs))
	for i, kv := range kvs {
		pairs[i] = keyschema.Pair{Key: kv.Key, Value: kv.Value}
	}
	wf, found, err := r.schema.DecodeWorkflow(id, pairs, versionFilter)
	if err != nil {
		return nil, fmt.Errorf("workflow %s: %w", id, err)
	}
	if !found {
		return nil, nil
	}
	return wf, nil
}

func (r *WorkflowRegistry) fetchDefinition(ctx context.Context, entry models.WorkflowEntry) (string, error) {
	dir, cleanup, err := r.fetcher.Fetch(ctx, entry.GitAccount, entry.GitRepo, entry.GitTag)
	if err != nil {
		return "", err
	}
	defer cleanup()
	return LocateDefinition(dir, entry.GitRepo, entry.GitTag, entry.GitPath, entry.Name)
}

// CheckVersionTag requires the git tag to be the version itself or the
// version qualified by the workflow name, as in "wf.2.0".
func CheckVersionTag(name, version, tag string) error {
	if tag == version || tag == name+"."+version {
		return nil
	}
	return fmt.Errorf("%w: version %q requires git tag %q or %q, got %q",
		ErrVersionTagMismatch, version, version, name+"."+version, tag)
}

func normalizeEntry(entry *models.WorkflowEntry) error {
	entry.Name = strings.TrimSpace(entry.Name)
	entry.Version = strings.TrimSpace(entry.Version)
	if entry.WorkflowType == "" {
		entry.WorkflowType = models.WorkflowTypeJTracker
	}

	var missing []string
	for field, value := range map[string]string{
		"name":        entry.Name,
		"version":     entry.Version,
		"git_account": entry.GitAccount,
		"git_repo":    entry.GitRepo,
		"git_tag":     entry.GitTag,
	} {
		if value == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return fmt.Errorf("%w: missing %s", ErrInvalidEntry, strings.Join(missing, ", "))
	}
	return nil
}

func toKVs(pairs []keyschema.Pair) []repository.KV {
	kvs := make([]repository.KV, len(pairs))
	for i, p := range pairs {
		kvs[i] = repository.KV{Key: p.Key, Value: p.Value}
	}
	return kvs
}
