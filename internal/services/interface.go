package services

import (
	"context"
)

// Logger defines the logging interface compatible with the application logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// OwnerResolver translates between owner names and owner ids.
type OwnerResolver interface {
	// ResolveID returns the id of the named owner.
	ResolveID(ctx context.Context, name string) (string, error)
	// ResolveName returns the name of the owner with the given id.
	ResolveName(ctx context.Context, id string) (string, error)
}

// ArchiveFetcher downloads and extracts a source archive. The returned
// cleanup removes the extracted tree.
type ArchiveFetcher interface {
	Fetch(ctx context.Context, account, repo, tag string) (dir string, cleanup func(), err error)
}

// Engine produces execution plans for one parsed workflow definition.
type Engine interface {
	ExecutionPlan(ctx context.Context, job map[string]any) (map[string]any, error)
}

// EngineConstructor parses a workflow definition; a parse failure means the
// definition is invalid.
type EngineConstructor func(definition string) (Engine, error)

// Engines maps a workflow type to its engine constructor.
type Engines map[string]EngineConstructor
