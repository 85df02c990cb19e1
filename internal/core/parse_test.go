package core

import (
	"errors"
	"os"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestParseCSV(t *testing.T) {
	rows, err := ParseCSV([]byte("id,name,price\n1,Widget,9.99\n2,Gadget\n"))
	if err != nil {
		t.Fatalf("ParseCSV error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2", len(rows))
	}

	if got := rows[0].String(); got != `{"id":"1","name":"Widget","price":"9.99"}` {
		t.Errorf("rows[0] = %s", got)
	}
	price, ok := rows[1].Get("price")
	if !ok || !price.IsNull() {
		t.Errorf("short row price = %v (present %v), want null", price, ok)
	}
}

func TestParseCSV_Headers(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"repeated name", "sku,price,price\nA,1,2\n", `{"sku":"A","price":"1","price.1":"2"}`},
		{"three repeats", "a,a,a\n1,2,3\n", `{"a":"1","a.1":"2","a.2":"3"}`},
		{"suffix already taken", "a,a.1,a\n1,2,3\n", `{"a":"1","a.1":"2","a.2":"3"}`},
		{"blank name", "sku,,qty\nA,x,3\n", `{"sku":"A","Unnamed: 1":"x","qty":"3"}`},
		{"padded name", " sku ,qty\nA,3\n", `{"sku":"A","qty":"3"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := ParseCSV([]byte(tt.data))
			if err != nil {
				t.Fatalf("ParseCSV error: %v", err)
			}
			if got := rows[0].String(); got != tt.want {
				t.Errorf("rows[0] = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestParseCSV_Encodings(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"utf-8 bom stripped", []byte("\xef\xbb\xbfname\ncafé\n"), "café"},
		{"windows-1252 fallback", []byte("name\ncaf\xe9 \x93x\x94\n"), "café “x”"},
		{"utf-16le bom", []byte("\xff\xfen\x00a\x00m\x00e\x00\n\x00z\x00\n\x00"), "z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := ParseCSV(tt.data)
			if err != nil {
				t.Fatalf("ParseCSV error: %v", err)
			}
			v, ok := rows[0].Get("name")
			if !ok {
				t.Fatalf("column name missing, keys = %v", rows[0].Keys())
			}
			if v.Text() != tt.want {
				t.Errorf("name = %q, want %q", v.Text(), tt.want)
			}
		})
	}
}

func TestParseCSV_Errors(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		wantEmpty bool
	}{
		{"no bytes", "", true},
		{"whitespace only", " \n\n", true},
		{"header only", "id,name\n", true},
		{"bare quote", "id,name\n1,wid\"get\n", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCSV([]byte(tt.data))
			if tt.wantEmpty {
				if !errors.Is(err, ErrEmptyFile) {
					t.Errorf("error = %v, want ErrEmptyFile", err)
				}
				return
			}
			var pe *ParseError
			if !errors.As(err, &pe) {
				t.Fatalf("error = %v, want *ParseError", err)
			}
			if pe.Format != ImportCSV || pe.Line != 2 {
				t.Errorf("ParseError = %+v, want csv line 2", pe)
			}
		})
	}
}

func TestParseJSON(t *testing.T) {
	tests := []struct {
		name     string
		data     string
		wantRows int
		wantErr  error
		parseErr bool
	}{
		{"single object", `{"sku":"A1","qty":"abc"}`, 1, nil, false},
		{"array of objects", `[{"a":1},{"a":2},{"b":null}]`, 3, nil, false},
		{"empty array", `[]`, 0, ErrEmptyFile, false},
		{"empty input", ``, 0, ErrEmptyFile, false},
		{"malformed", `{"a":`, 0, nil, true},
		{"scalar", `42`, 0, nil, true},
		{"array with scalar", `[{"a":1},2]`, 0, nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, err := ParseJSON([]byte(tt.data))
			switch {
			case tt.wantErr != nil:
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("error = %v, want %v", err, tt.wantErr)
				}
			case tt.parseErr:
				var pe *ParseError
				if !errors.As(err, &pe) || pe.Format != ImportJSON {
					t.Errorf("error = %v, want json *ParseError", err)
				}
			default:
				if err != nil {
					t.Fatalf("ParseJSON error: %v", err)
				}
				if len(rows) != tt.wantRows {
					t.Errorf("len(rows) = %d, want %d", len(rows), tt.wantRows)
				}
			}
		})
	}
}

func TestParseJSON_KeepsTypesAndOrder(t *testing.T) {
	rows, err := ParseJSON([]byte(`[{"sku":"A1","qty":3,"price":2.5,"tags":["x"],"dims":{"w":1},"ok":true}]`))
	if err != nil {
		t.Fatalf("ParseJSON error: %v", err)
	}
	want := []struct {
		key  string
		kind Kind
	}{
		{"sku", KindString},
		{"qty", KindInt},
		{"price", KindFloat},
		{"tags", KindArray},
		{"dims", KindObject},
		{"ok", KindBool},
	}
	keys := rows[0].Keys()
	for i, w := range want {
		if keys[i] != w.key {
			t.Errorf("key %d = %q, want %q", i, keys[i], w.key)
		}
		v, _ := rows[0].Get(w.key)
		if v.Kind() != w.kind {
			t.Errorf("%s kind = %s, want %s", w.key, v.Kind(), w.kind)
		}
	}
}

func buildWorkbook(t *testing.T, cells map[string]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	for ref, v := range cells {
		if err := f.SetCellValue(sheet, ref, v); err != nil {
			t.Fatalf("SetCellValue(%s): %v", ref, err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}
	return buf.Bytes()
}

func TestParseSpreadsheet(t *testing.T) {
	data := buildWorkbook(t, map[string]any{
		"A1": "sku", "B1": "qty", "C1": "price", "D1": "active", "E1": "", "F1": "qty",
		"A2": "A1", "B2": 3, "C2": 9.99, "D2": true, "E2": "x", "F2": 4,
		// row 3 left blank
		"A4": "B2", "C4": 12.0,
	})

	rows, err := ParseSpreadsheet(data)
	if err != nil {
		t.Fatalf("ParseSpreadsheet error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2 (blank row skipped)", len(rows))
	}

	wantKeys := []string{"sku", "qty", "price", "active", "Unnamed: 4", "qty.1"}
	keys := rows[0].Keys()
	if len(keys) != len(wantKeys) {
		t.Fatalf("keys = %v, want %v", keys, wantKeys)
	}
	for i := range wantKeys {
		if keys[i] != wantKeys[i] {
			t.Errorf("key %d = %q, want %q", i, keys[i], wantKeys[i])
		}
	}

	first := map[string]Value{
		"sku":    String("A1"),
		"qty":    Int(3),
		"price":  Float(9.99),
		"active": Bool(true),
		"qty.1":  Int(4),
	}
	for k, want := range first {
		got, _ := rows[0].Get(k)
		if !got.Equal(want) {
			t.Errorf("row 0 %s = %v (%s), want %v (%s)", k, got, got.Kind(), want, want.Kind())
		}
	}

	qty, _ := rows[1].Get("qty")
	if !qty.IsNull() {
		t.Errorf("row 1 qty = %v, want null", qty)
	}
	price, _ := rows[1].Get("price")
	if !price.Equal(Int(12)) {
		t.Errorf("row 1 price = %v (%s), want integral 12", price, price.Kind())
	}
}

func TestParseSpreadsheet_Legacy(t *testing.T) {
	data, err := os.ReadFile("testdata/legacy.xls")
	if err != nil {
		t.Fatalf("read fixture: %v", err)
	}

	rows, err := ParseSpreadsheet(data)
	if err != nil {
		t.Fatalf("ParseSpreadsheet error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("len(rows) = %d, want 2 (blank row skipped)", len(rows))
	}

	want := []string{
		`{"sku":"007","name":"Bolt","price":9.5,"price.1":12}`,
		`{"sku":"B2","name":"Nut","price":0.25,"price.1":null}`,
	}
	for i, w := range want {
		if got := rows[i].String(); got != w {
			t.Errorf("rows[%d] = %s, want %s", i, got, w)
		}
	}
	qty, _ := rows[0].Get("price.1")
	if qty.Kind() != KindInt {
		t.Errorf("price.1 kind = %s, want int", qty.Kind())
	}
}

func TestParseSpreadsheet_Dates(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	sheet := f.GetSheetName(0)

	custom := "yyyy/mm/dd"
	styles := map[string]*excelize.Style{
		"B": {NumFmt: 14},
		"C": {NumFmt: 22},
		"D": {CustomNumFmt: &custom},
		"E": {NumFmt: 20},
		"F": {NumFmt: 2},
	}
	header := map[string]string{"A": "sku", "B": "released", "C": "updated", "D": "custom", "E": "cutoff", "F": "price"}
	values := map[string]float64{"B": 45123, "C": 45123.5, "D": 45000, "E": 0.75, "F": 45123}

	for col, name := range header {
		if err := f.SetCellValue(sheet, col+"1", name); err != nil {
			t.Fatalf("SetCellValue: %v", err)
		}
	}
	if err := f.SetCellValue(sheet, "A2", "A1"); err != nil {
		t.Fatalf("SetCellValue: %v", err)
	}
	for col, v := range values {
		if err := f.SetCellValue(sheet, col+"2", v); err != nil {
			t.Fatalf("SetCellValue: %v", err)
		}
		id, err := f.NewStyle(styles[col])
		if err != nil {
			t.Fatalf("NewStyle(%s): %v", col, err)
		}
		if err := f.SetCellStyle(sheet, col+"2", col+"2", id); err != nil {
			t.Fatalf("SetCellStyle: %v", err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatalf("WriteToBuffer: %v", err)
	}

	rows, err := ParseSpreadsheet(buf.Bytes())
	if err != nil {
		t.Fatalf("ParseSpreadsheet error: %v", err)
	}

	tests := []struct {
		key  string
		want Value
	}{
		{"released", String("2023-07-16")},
		{"updated", String("2023-07-16T12:00:00")},
		{"custom", String("2023-03-15")},
		{"cutoff", String("18:00:00")},
		{"price", Int(45123)},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, _ := rows[0].Get(tt.key)
			if !got.Equal(tt.want) {
				t.Errorf("%s = %v (%s), want %v (%s)", tt.key, got, got.Kind(), tt.want, tt.want.Kind())
			}
		})
	}
}

func TestNumFmtDateKind(t *testing.T) {
	str := func(s string) *string { return &s }
	tests := []struct {
		name   string
		id     int
		custom *string
		want   dateKind
	}{
		{"general", 0, nil, notDate},
		{"fixed decimals", 2, nil, notDate},
		{"short date", 14, nil, dateOnly},
		{"date time", 22, nil, dateTime},
		{"clock time", 21, nil, timeOnly},
		{"custom date", 164, str("dd-mmm-yyyy"), dateOnly},
		{"custom date time", 165, str("yyyy-mm-dd hh:mm"), dateTime},
		{"custom minutes seconds", 166, str("mm:ss"), timeOnly},
		{"quoted letters", 167, str(`0 "days"`), notDate},
		{"locale prefix", 168, str("[$-409]#,##0.00"), notDate},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := numFmtDateKind(tt.id, tt.custom); got != tt.want {
				t.Errorf("numFmtDateKind(%d) = %v, want %v", tt.id, got, tt.want)
			}
		})
	}
}

func TestLegacyValue(t *testing.T) {
	tests := []struct {
		text string
		want Value
	}{
		{"12", Int(12)},
		{"-3", Int(-3)},
		{"9.5", Float(9.5)},
		{"007", String("007")},
		{"1e3", String("1e3")},
		{"NaN", String("NaN")},
		{"Bolt", String("Bolt")},
	}

	for _, tt := range tests {
		if got := legacyValue(tt.text); !got.Equal(tt.want) {
			t.Errorf("legacyValue(%q) = %v (%s), want %v (%s)", tt.text, got, got.Kind(), tt.want, tt.want.Kind())
		}
	}
}

func TestParseSpreadsheet_Errors(t *testing.T) {
	if _, err := ParseSpreadsheet(nil); !errors.Is(err, ErrEmptyFile) {
		t.Errorf("nil data error = %v, want ErrEmptyFile", err)
	}

	headerOnly := buildWorkbook(t, map[string]any{"A1": "sku"})
	if _, err := ParseSpreadsheet(headerOnly); !errors.Is(err, ErrEmptyFile) {
		t.Errorf("header only error = %v, want ErrEmptyFile", err)
	}

	var pe *ParseError
	if _, err := ParseSpreadsheet([]byte("not a workbook")); !errors.As(err, &pe) {
		t.Errorf("garbage error = %v, want *ParseError", err)
	}

	truncated := append(append([]byte{}, compoundFileSignature...), make([]byte, 64)...)
	if _, err := ParseSpreadsheet(truncated); !errors.As(err, &pe) {
		t.Errorf("truncated legacy workbook error = %v, want *ParseError", err)
	}
}

func TestParse_Dispatch(t *testing.T) {
	if _, err := Parse(ImportJSON, []byte(`[]`)); !errors.Is(err, ErrEmptyFile) {
		t.Errorf("Parse(json, []) error = %v, want ErrEmptyFile", err)
	}
	var ufe *UnsupportedFormatError
	if _, err := Parse(ImportType("xml"), []byte("<a/>")); !errors.As(err, &ufe) {
		t.Errorf("Parse(xml) error = %v, want *UnsupportedFormatError", err)
	}
}
