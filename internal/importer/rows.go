package importer

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Row is one data row of an import sheet. Line is the 1-indexed line (CSV)
// or row (XLSX) number in the source file, counting the header.
type Row struct {
	Line   int
	Fields []string
}

// ReadCSV decodes content and splits it into rows. The first line is a
// header and is skipped; blank lines are skipped.
func ReadCSV(content []byte) ([]Row, error) {
	text, err := Decode(content, DetectEncoding(content))
	if err != nil {
		return nil, err
	}
	delim := DetectDelimiter(text)

	lines := splitLines(text)
	rows := make([]Row, 0, len(lines))
	for i, line := range lines {
		if i == 0 || strings.TrimSpace(line) == "" {
			continue
		}
		fields := SplitCSVLine(line, delim, '"')
		for k := range fields {
			fields[k] = strings.TrimSpace(fields[k])
		}
		rows = append(rows, Row{Line: i + 1, Fields: fields})
	}
	return rows, nil
}

// ReadXLSX reads rows from the first sheet of a workbook. Rows are padded to
// the header width because trailing empty cells are not stored.
func ReadXLSX(content []byte) ([]Row, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets")
	}
	raw, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheets[0], err)
	}
	if len(raw) == 0 {
		return []Row{}, nil
	}

	width := len(raw[0])
	rows := make([]Row, 0, len(raw))
	for i := 1; i < len(raw); i++ {
		if isEmptyRow(raw[i]) {
			continue
		}
		fields := make([]string, max(width, len(raw[i])))
		for k, cell := range raw[i] {
			fields[k] = strings.TrimSpace(cell)
		}
		rows = append(rows, Row{Line: i + 1, Fields: fields})
	}
	return rows, nil
}

// DetectDelimiter picks the separator with the most consistent per-line
// count over the first five non-empty lines. Comma wins ties.
func DetectDelimiter(content string) rune {
	sample := make([]string, 0, 5)
	for _, line := range splitLines(content) {
		if strings.TrimSpace(line) != "" {
			sample = append(sample, line)
			if len(sample) == 5 {
				break
			}
		}
	}

	best, bestScore := ',', 0.0
	for _, delim := range []rune{',', '\t', ';'} {
		sum := 0
		counts := make([]int, len(sample))
		for i, line := range sample {
			counts[i] = strings.Count(line, string(delim))
			sum += counts[i]
		}
		if sum == 0 {
			continue
		}
		avg := float64(sum) / float64(len(sample))
		variance := 0.0
		for _, c := range counts {
			d := float64(c) - avg
			variance += d * d
		}
		variance /= float64(len(sample))
		if score := avg / (1 + variance); score > bestScore {
			best, bestScore = delim, score
		}
	}
	return best
}

// SplitCSVLine splits one line on delimiter. Fields may be wrapped in
// quoteChar; a doubled quoteChar inside a quoted field is a literal quote.
// Lines without quotes split exactly like strings.Split.
func SplitCSVLine(line string, delimiter, quoteChar rune) []string {
	fields := make([]string, 0, 8)
	var cur strings.Builder
	inQuotes := false

	runes := []rune(line)
	for i := 0; i < len(runes); i++ {
		r := runes[i]
		if inQuotes {
			if r == quoteChar {
				if i+1 < len(runes) && runes[i+1] == quoteChar {
					cur.WriteRune(quoteChar)
					i++
					continue
				}
				inQuotes = false
				continue
			}
			cur.WriteRune(r)
			continue
		}
		switch r {
		case quoteChar:
			inQuotes = true
		case delimiter:
			fields = append(fields, cur.String())
			cur.Reset()
		default:
			cur.WriteRune(r)
		}
	}
	return append(fields, cur.String())
}

// splitLines splits content on \n, \r\n and \r.
func splitLines(content string) []string {
	content = strings.ReplaceAll(content, "\r\n", "\n")
	content = strings.ReplaceAll(content, "\r", "\n")
	return strings.Split(content, "\n")
}

func isEmptyRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
