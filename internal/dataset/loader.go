// Package dataset turns uploaded CSV files into core datasets.
//
// The loader streams the file, drops a byte-order mark, repairs invalid UTF-8,
// sniffs the delimiter from the header line and detects the pay-group column
// used by the base priority heuristic.
package dataset

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/JonMunkholm/InvoiceDesk/internal/core"
)

// DefaultMaxFileSize is the maximum accepted upload size (100MB).
const DefaultMaxFileSize int64 = 100 * 1024 * 1024

// MaxHeaderSearchRows is how many leading blank rows may precede the header.
const MaxHeaderSearchRows = 20

// ContextCheckInterval is how often, in rows, the loader checks for cancellation.
const ContextCheckInterval = 500

var (
	// ErrTooLarge is returned when the upload exceeds the configured size.
	ErrTooLarge = &core.Error{Kind: core.ErrValidation, Msg: "file too large"}

	// ErrEmpty is returned when the file holds no header or no data rows.
	ErrEmpty = &core.Error{Kind: core.ErrValidation, Msg: "empty file"}
)

// payGroupHeaders are the header names recognized as the pay-group column.
var payGroupHeaders = []string{"pay group", "paygroup", "pay_group", "grupo de pago"}

// Options controls a single load.
type Options struct {
	FileName string
	MaxSize  int64 // 0 uses DefaultMaxFileSize
}

// Load parses a CSV stream into a dataset.
//
// Header cells are cleaned of spreadsheet artifacts; blank headers become
// "Column N" and repeated headers get a numeric suffix. Blank rows are
// skipped, short rows are padded with empty values and extra cells are
// ignored.
func Load(ctx context.Context, r io.Reader, opts Options) (core.Dataset, error) {
	maxSize := opts.MaxSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	src, limited := wrapSource(r, maxSize)
	br := bufio.NewReader(src)

	cr := csv.NewReader(br)
	cr.Comma = sniffDelimiter(br)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = true

	readErr := func(err error) error {
		if errors.Is(err, ErrTooLarge) || limited.bytesRead > maxSize {
			return ErrTooLarge
		}
		return &core.Error{Kind: core.ErrValidation, Msg: "invalid csv", Err: err}
	}

	var header []string
	for i := 0; i < MaxHeaderSearchRows; i++ {
		rec, err := cr.Read()
		if err == io.EOF {
			return core.Dataset{}, ErrEmpty
		}
		if err != nil {
			return core.Dataset{}, readErr(err)
		}
		if !isEmptyRow(rec) {
			header = buildHeader(rec)
			break
		}
	}
	if header == nil {
		return core.Dataset{}, ErrEmpty
	}

	ds := core.Dataset{
		Columns:        header,
		GroupingColumn: DetectPayGroupColumn(header),
		FileName:       opts.FileName,
	}

	for line := 0; ; line++ {
		if line%ContextCheckInterval == 0 && ctx.Err() != nil {
			return core.Dataset{}, ctx.Err()
		}

		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return core.Dataset{}, readErr(err)
		}
		if isEmptyRow(rec) {
			continue
		}

		row := make(map[string]string, len(header))
		for i, col := range header {
			if i < len(rec) {
				row[col] = core.CleanCell(rec[i])
			} else {
				row[col] = ""
			}
		}
		ds.Records = append(ds.Records, row)
	}

	if len(ds.Records) == 0 {
		return core.Dataset{}, ErrEmpty
	}
	if err := ds.Validate(); err != nil {
		return core.Dataset{}, err
	}
	return ds, nil
}

// DetectPayGroupColumn returns the first header naming a pay group, or "".
func DetectPayGroupColumn(columns []string) string {
	for _, c := range columns {
		norm := strings.ToLower(strings.TrimSpace(c))
		for _, name := range payGroupHeaders {
			if norm == name {
				return c
			}
		}
	}
	return ""
}

// buildHeader cleans header cells and makes them unique.
func buildHeader(rec []string) []string {
	header := make([]string, len(rec))
	seen := make(map[string]int, len(rec))
	for i, cell := range rec {
		name := core.CleanCell(cell)
		if name == "" {
			name = "Column " + strconv.Itoa(i+1)
		}
		if n, dup := seen[name]; dup {
			seen[name] = n + 1
			name = fmt.Sprintf("%s.%d", name, n)
		} else {
			seen[name] = 1
		}
		header[i] = name
	}
	return header
}

// sniffDelimiter picks ';' or tab when either outnumbers ',' on the first line.
func sniffDelimiter(br *bufio.Reader) rune {
	peek, _ := br.Peek(4096)
	if i := bytes.IndexByte(peek, '\n'); i >= 0 {
		peek = peek[:i]
	}

	best, bestCount := ',', bytes.Count(peek, []byte{','})
	for _, d := range []rune{';', '\t'} {
		if n := bytes.Count(peek, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
