package model

import "errors"

// Errors shared by the stores and the services that consume them.
var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicateDigest = errors.New("digest already present in ticket")
	ErrDuplicateName   = errors.New("name already taken")
)
