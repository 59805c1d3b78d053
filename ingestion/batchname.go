package ingestion

import (
	"fmt"
	"path/filepath"
	"strings"
)

// FileFormat is the decoded upload encoding.
type FileFormat string

const (
	FormatXLSX FileFormat = "xlsx"
	FormatCSV  FileFormat = "csv"
)

// BatchName is the descriptor parsed out of an upload's filename.
// Grammar: BRAND-SALESCHANNEL-DATE-BATCH.(xlsx|csv), e.g.
// "SAFNCO-JUBELIO-28-4.xlsx".
type BatchName struct {
	Brand        string
	SalesChannel string
	DateToken    string
	BatchNumber  string
	Format       FileFormat
	Filename     string
}

// ParseBatchFilename splits a filename into its four batch tokens. Token
// count other than four, empty tokens, or an unrecognized extension all
// reject the whole upload.
func ParseBatchFilename(name string) (BatchName, error) {
	base := filepath.Base(strings.TrimSpace(name))
	ext := strings.ToLower(filepath.Ext(base))

	var format FileFormat
	switch ext {
	case ".xlsx":
		format = FormatXLSX
	case ".csv":
		format = FormatCSV
	default:
		return BatchName{}, fmt.Errorf("%w: unrecognized extension %q", ErrInvalidFilenameFormat, ext)
	}

	stem := strings.TrimSuffix(base, ext)
	tokens := strings.Split(stem, "-")
	if len(tokens) != 4 {
		return BatchName{}, fmt.Errorf("%w: expected BRAND-CHANNEL-DATE-BATCH, got %d token(s)", ErrInvalidFilenameFormat, len(tokens))
	}
	for _, token := range tokens {
		if strings.TrimSpace(token) == "" {
			return BatchName{}, fmt.Errorf("%w: empty token", ErrInvalidFilenameFormat)
		}
	}

	return BatchName{
		Brand:        strings.TrimSpace(tokens[0]),
		SalesChannel: strings.TrimSpace(tokens[1]),
		DateToken:    strings.TrimSpace(tokens[2]),
		BatchNumber:  strings.TrimSpace(tokens[3]),
		Format:       format,
		Filename:     base,
	}, nil
}
