package service

import (
	"errors"

	"geoipsql/internal/repository"
	"geoipsql/internal/source"
)

// Fatal errors. Anything else that aborts a run is an I/O or store failure.
var (
	ErrSourceMissing        = source.ErrMissing
	ErrSchemaNotInitialized = repository.ErrSchemaNotInitialized
	ErrNoLocations          = errors.New("no effective locations selected")
)
