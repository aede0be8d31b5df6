package models

import "errors"

// ErrIntegrity marks canonical data that violates a structural invariant, such
// as a contest with duplicate participants or a view orphaned from its contest
var ErrIntegrity = errors.New("integrity violation")
