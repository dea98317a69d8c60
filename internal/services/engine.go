package services

import (
	"jt-wrs/backend/internal/jtracker"
	"jt-wrs/backend/pkg/models"
)

// DefaultEngines returns the engines shipped with the service.
func DefaultEngines() Engines {
	return Engines{
		models.WorkflowTypeJTracker: func(definition string) (Engine, error) {
			jt, err := jtracker.New(definition)
			if err != nil {
				return nil, err
			}
			return jt, nil
		},
	}
}
