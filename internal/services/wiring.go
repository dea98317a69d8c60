package services

import (
	"jt-wrs/backend/internal/config"
	"jt-wrs/backend/internal/repository"
)

// NewRegistryFromConfig assembles a WorkflowRegistry over store with the
// account service resolver, the git archive fetcher and the default engines
// configured by cfg.
func NewRegistryFromConfig(cfg *config.Config, store repository.Store, logger Logger) *WorkflowRegistry {
	var owners OwnerResolver = NewHTTPOwnerResolver(cfg.AMS.URL, cfg.AMS.Timeout)
	if cfg.AMS.CacheTTL > 0 {
		owners = NewCachedOwnerResolver(owners, cfg.AMS.CacheTTL)
	}

	fetcher := NewGitArchiveFetcher(GitArchiveConfig{
		Server:     cfg.Git.Server,
		Token:      cfg.Git.Token,
		Timeout:    cfg.Git.Timeout,
		ScratchDir: cfg.Git.ScratchDir,
	})

	return NewWorkflowRegistry(store, owners, fetcher, DefaultEngines(), cfg.Store.Root, logger)
}
