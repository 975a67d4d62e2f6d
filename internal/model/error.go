package model

import "errors"

// Error definitions for the model package.
var (
	ErrNotFound  = errors.New("artifact not found in registry")
	ErrNotLoaded = errors.New("model artifacts are not loaded")
)
