package core

// parse.go decodes raw catalog bytes into ordered row records.
//
// Every parser returns the complete row sequence or an error; there is no
// resumable mid-file state. A job that needs the rows again re-parses the
// bytes. Zero data rows is always ErrEmptyFile, and malformed content is a
// *ParseError naming the format.

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Parse decodes data according to its import type.
func Parse(t ImportType, data []byte) ([]*Record, error) {
	switch t {
	case ImportCSV:
		return ParseCSV(data)
	case ImportExcel:
		return ParseSpreadsheet(data)
	case ImportJSON:
		return ParseJSON(data)
	}
	return nil, &UnsupportedFormatError{Extension: string(t)}
}

// ParseCSV reads a header line followed by data lines. All values are kept
// as strings; cells missing from short lines are null and cells beyond the
// header are dropped. Header names are normalized as for spreadsheets.
func ParseCSV(data []byte) ([]*Record, error) {
	text, err := decodeText(data)
	if err != nil {
		return nil, &ParseError{Format: ImportCSV, Err: err}
	}
	if len(bytes.TrimSpace(text)) == 0 {
		return nil, ErrEmptyFile
	}

	r := csv.NewReader(bytes.NewReader(text))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmptyFile
		}
		return nil, csvParseError(err)
	}
	header = normalizeHeader(header)

	var rows []*Record
	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, csvParseError(err)
		}

		rec := NewRecord()
		for i, name := range header {
			if i < len(fields) {
				rec.Set(name, String(fields[i]))
			} else {
				rec.Set(name, Null())
			}
		}
		rows = append(rows, rec)
	}

	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}
	return rows, nil
}

func csvParseError(err error) error {
	var pe *csv.ParseError
	if errors.As(err, &pe) {
		return &ParseError{Format: ImportCSV, Line: pe.Line, Err: pe.Err}
	}
	return &ParseError{Format: ImportCSV, Err: err}
}

// decodeText converts CSV bytes to UTF-8. A byte order mark selects UTF-8 or
// UTF-16 and is stripped. Without one, valid UTF-8 passes through and
// anything else is read as Windows-1252.
func decodeText(data []byte) ([]byte, error) {
	var fallback transform.Transformer = unicode.UTF8.NewDecoder()
	if !utf8.Valid(data) {
		fallback = charmap.Windows1252.NewDecoder()
	}
	out, _, err := transform.Bytes(unicode.BOMOverride(fallback), data)
	if err != nil {
		return nil, fmt.Errorf("decode text: %w", err)
	}
	return out, nil
}

// ParseSpreadsheet reads the first sheet of a workbook. The first row is the
// header; each later row maps header names to cell values with their native
// types. Entirely empty rows are skipped. Legacy BIFF (.xls) workbooks are
// recognised by their compound file signature.
func ParseSpreadsheet(data []byte) ([]*Record, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	if bytes.HasPrefix(data, compoundFileSignature) {
		return parseLegacyWorkbook(data)
	}

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, &ParseError{Format: ImportExcel, Err: err}
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	sr := &sheetReader{f: f, sheet: sheets[0], formats: make(map[int]dateKind)}
	if props, err := f.GetWorkbookProps(); err == nil && props.Date1904 != nil {
		sr.date1904 = *props.Date1904
	}

	rows, err := f.GetRows(sr.sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, &ParseError{Format: ImportExcel, Err: err}
	}

	var (
		header  []string
		records []*Record
	)
	for i, cells := range rows {
		rowNum := i + 1
		if isBlankRow(cells) {
			continue
		}
		if header == nil {
			header = normalizeHeader(cells)
			continue
		}

		rec := NewRecord()
		for col, name := range header {
			if col >= len(cells) || cells[col] == "" {
				rec.Set(name, Null())
				continue
			}
			v, err := sr.value(col, rowNum, cells[col])
			if err != nil {
				return nil, &ParseError{Format: ImportExcel, Line: rowNum, Err: err}
			}
			rec.Set(name, v)
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, ErrEmptyFile
	}
	return records, nil
}

type dateKind int

const (
	notDate dateKind = iota
	dateOnly
	dateTime
	timeOnly
)

// sheetReader converts raw cells of one sheet, caching the date kind of each
// style it has seen.
type sheetReader struct {
	f        *excelize.File
	sheet    string
	date1904 bool
	formats  map[int]dateKind
}

func (s *sheetReader) value(col, row int, raw string) (Value, error) {
	ref, err := excelize.CoordinatesToCellName(col+1, row)
	if err != nil {
		return Value{}, err
	}
	t, err := s.f.GetCellType(s.sheet, ref)
	if err != nil {
		return Value{}, err
	}
	v := spreadsheetValue(t, raw)
	if v.Kind() != KindInt && v.Kind() != KindFloat {
		return v, nil
	}

	kind, err := s.dateKind(ref)
	if err != nil || kind == notDate {
		return v, err
	}
	serial, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return v, nil
	}
	tm, err := excelize.ExcelDateToTime(serial, s.date1904)
	if err != nil {
		return v, nil
	}
	return String(formatDate(tm.Round(time.Second), kind)), nil
}

func (s *sheetReader) dateKind(ref string) (dateKind, error) {
	idx, err := s.f.GetCellStyle(s.sheet, ref)
	if err != nil {
		return notDate, err
	}
	if kind, ok := s.formats[idx]; ok {
		return kind, nil
	}
	kind := notDate
	if style, err := s.f.GetStyle(idx); err == nil && style != nil {
		kind = numFmtDateKind(style.NumFmt, style.CustomNumFmt)
	}
	s.formats[idx] = kind
	return kind, nil
}

// numFmtDateKind classifies a number format. Built-in ids 14-22 and 45-47
// are the date and time formats; custom codes are scanned for date and time
// tokens outside quoted text and bracketed sections.
func numFmtDateKind(id int, custom *string) dateKind {
	switch {
	case id >= 14 && id <= 17:
		return dateOnly
	case id == 22:
		return dateTime
	case id >= 18 && id <= 21, id >= 45 && id <= 47:
		return timeOnly
	}
	if custom == nil {
		return notDate
	}

	var hasDate, hasTime, quoted, bracket bool
	for _, r := range strings.ToLower(*custom) {
		switch {
		case r == '"':
			quoted = !quoted
		case quoted:
		case r == '[':
			bracket = true
		case r == ']':
			bracket = false
		case bracket:
		case r == 'y' || r == 'd':
			hasDate = true
		case r == 'h' || r == 's':
			hasTime = true
		}
	}
	switch {
	case hasDate && hasTime:
		return dateTime
	case hasDate:
		return dateOnly
	case hasTime:
		return timeOnly
	}
	return notDate
}

func formatDate(t time.Time, kind dateKind) string {
	switch kind {
	case timeOnly:
		return t.Format("15:04:05")
	case dateOnly:
		if t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 {
			return t.Format("2006-01-02")
		}
	}
	return t.Format("2006-01-02T15:04:05")
}

// compoundFileSignature opens every OLE2 compound document, the container
// of BIFF workbooks.
var compoundFileSignature = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

// parseLegacyWorkbook reads the first sheet of a BIFF workbook. The decoder
// renders every cell as text, so text that round-trips as a number becomes a
// number and everything else stays a string.
func parseLegacyWorkbook(data []byte) (records []*Record, err error) {
	defer func() {
		if r := recover(); r != nil {
			records, err = nil, &ParseError{Format: ImportExcel, Err: fmt.Errorf("corrupt workbook: %v", r)}
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, &ParseError{Format: ImportExcel, Err: err}
	}
	if wb == nil {
		return nil, &ParseError{Format: ImportExcel, Err: errors.New("no workbook stream")}
	}
	if wb.NumSheets() == 0 {
		return nil, ErrEmptyFile
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, ErrEmptyFile
	}

	var header []string
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			continue
		}
		cells := legacyCells(row)
		if isBlankRow(cells) {
			continue
		}
		if header == nil {
			header = normalizeHeader(cells)
			continue
		}

		rec := NewRecord()
		for col, name := range header {
			if col >= len(cells) || cells[col] == "" {
				rec.Set(name, Null())
				continue
			}
			rec.Set(name, legacyValue(cells[col]))
		}
		records = append(records, rec)
	}

	if len(records) == 0 {
		return nil, ErrEmptyFile
	}
	return records, nil
}

// legacyCells returns a row's cell text up to its last non-empty cell.
func legacyCells(row *xls.Row) []string {
	var cells []string
	for c := 0; c <= row.LastCol(); c++ {
		cells = append(cells, row.Col(c))
	}
	for len(cells) > 0 && strings.TrimSpace(cells[len(cells)-1]) == "" {
		cells = cells[:len(cells)-1]
	}
	return cells
}

func legacyValue(text string) Value {
	if i, err := strconv.ParseInt(text, 10, 64); err == nil && strconv.FormatInt(i, 10) == text {
		return Int(i)
	}
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || strconv.FormatFloat(f, 'f', -1, 64) != text {
		return String(text)
	}
	return Float(f)
}

// normalizeHeader names unnamed columns "Unnamed: N" and suffixes repeated
// names with ".1", ".2", ... so every column keeps its own key.
func normalizeHeader(cells []string) []string {
	header := make([]string, len(cells))
	used := make(map[string]bool, len(cells))
	repeats := make(map[string]int)
	for i, c := range cells {
		name := strings.TrimSpace(c)
		if name == "" {
			name = "Unnamed: " + strconv.Itoa(i)
		}
		if used[name] {
			base := name
			for n := repeats[base] + 1; ; n++ {
				name = base + "." + strconv.Itoa(n)
				if !used[name] {
					repeats[base] = n
					break
				}
			}
		}
		used[name] = true
		header[i] = name
	}
	return header
}

func isBlankRow(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// spreadsheetValue converts a raw cell value using its stored type. Numeric
// cells without an explicit type are numbers in the workbook format.
func spreadsheetValue(t excelize.CellType, raw string) Value {
	switch t {
	case excelize.CellTypeBool:
		switch strings.ToUpper(raw) {
		case "1", "TRUE":
			return Bool(true)
		case "0", "FALSE":
			return Bool(false)
		}
		return String(raw)
	case excelize.CellTypeUnset, excelize.CellTypeNumber:
		if i, err := strconv.ParseInt(raw, 10, 64); err == nil {
			return Int(i)
		}
		f, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return String(raw)
		}
		if f == math.Trunc(f) && math.Abs(f) < 1<<53 {
			return Int(int64(f))
		}
		return Float(f)
	default:
		return String(raw)
	}
}

// ParseJSON accepts a single object, treated as one row, or an array of
// objects. Any other top-level value or array element is a ParseError.
func ParseJSON(data []byte) ([]*Record, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, ErrEmptyFile
	}

	var doc Value
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, &ParseError{Format: ImportJSON, Err: err}
	}

	switch doc.Kind() {
	case KindObject:
		return []*Record{doc.ObjectValue()}, nil
	case KindArray:
		elems := doc.ArrayValue()
		if len(elems) == 0 {
			return nil, ErrEmptyFile
		}
		rows := make([]*Record, 0, len(elems))
		for i, e := range elems {
			if e.Kind() != KindObject {
				return nil, &ParseError{
					Format: ImportJSON,
					Err:    fmt.Errorf("element %d is %s, want object", i, e.Kind()),
				}
			}
			rows = append(rows, e.ObjectValue())
		}
		return rows, nil
	}
	return nil, &ParseError{
		Format: ImportJSON,
		Err:    fmt.Errorf("top-level value is %s, want object or array", doc.Kind()),
	}
}
