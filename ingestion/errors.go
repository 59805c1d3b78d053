package ingestion

import (
	"errors"
	"fmt"
)

// ErrInvalidFilenameFormat rejects an upload before any row is processed.
var ErrInvalidFilenameFormat = errors.New("invalid filename format")

// RowError describes one malformed row. Row errors are collected and
// reported; they never abort the batch.
type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %s", e.Row, e.Reason)
}
