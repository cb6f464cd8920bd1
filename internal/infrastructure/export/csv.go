package export

import (
	"bytes"
	"strings"
)

const (
	csvSeparator  = ';'
	csvTerminator = "\r\n"
	utf8BOM       = "\ufeff"
)

// EncodeCSV renders t as semicolon separated values with a UTF-8 BOM so that
// spreadsheet applications pick the right encoding. A placeholder table is
// written as its bare message.
func EncodeCSV(t *Table) []byte {
	if t.Placeholder != "" {
		return []byte(t.Placeholder)
	}

	var buf bytes.Buffer
	buf.WriteString(utf8BOM)
	writeCSVRow(&buf, t.Headers)
	for _, row := range t.Rows {
		buf.WriteString(csvTerminator)
		writeCSVRow(&buf, row)
	}
	return buf.Bytes()
}

func writeCSVRow(buf *bytes.Buffer, fields []string) {
	for i, f := range fields {
		if i > 0 {
			buf.WriteByte(csvSeparator)
		}
		buf.WriteString(EscapeField(f))
	}
}

// EscapeField quotes a field when it contains the separator, a quote or a line
// break, doubling embedded quotes. Other fields are returned unchanged.
func EscapeField(s string) string {
	if !strings.ContainsAny(s, ";\"\n\r") {
		return s
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}
