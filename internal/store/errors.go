package store

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidPosition = errors.New("invalid position")
	ErrDuplicate       = errors.New("duplicate")
	ErrLastOwner       = errors.New("cannot remove the only owner")
	ErrCrossBoardMove  = errors.New("destination list belongs to another board")
)
