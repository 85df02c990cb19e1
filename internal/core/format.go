package core

import (
	"path/filepath"
	"strings"
)

// ImportType is the file format of a catalog upload.
type ImportType string

const (
	ImportCSV   ImportType = "csv"
	ImportExcel ImportType = "excel"
	ImportJSON  ImportType = "json"
)

var extensionTypes = map[string]ImportType{
	".csv":  ImportCSV,
	".xls":  ImportExcel,
	".xlsx": ImportExcel,
	".json": ImportJSON,
}

// DetectFormat classifies a file by its extension, case-insensitively.
// Declared content types are advisory and never consulted.
func DetectFormat(filename string) (ImportType, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	if t, ok := extensionTypes[ext]; ok {
		return t, nil
	}
	return "", &UnsupportedFormatError{Extension: strings.TrimPrefix(ext, ".")}
}

// Valid reports whether t is one of the supported import types.
func (t ImportType) Valid() bool {
	switch t {
	case ImportCSV, ImportExcel, ImportJSON:
		return true
	}
	return false
}
