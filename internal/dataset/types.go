package dataset

import (
	"errors"
	"time"
)

// Dataset is a named collection of data under management. The CRUD surface
// around it is deliberately plain; access control happens in the middleware
// layer, not here.
type Dataset struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Update carries the optional fields of a dataset update; nil means unchanged.
type Update struct {
	Name        *string
	Description *string
}

// Filter narrows List; zero values mean "no filter".
type Filter struct {
	Name  string
	Skip  int
	Limit int
}

var (
	ErrNotFound     = errors.New("dataset: not found")
	ErrConflict     = errors.New("dataset: already exists")
	ErrInvalidInput = errors.New("dataset: invalid input")
)
