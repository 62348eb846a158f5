package pipeline

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"
	"testing"

	pdf "github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"
)

func mkXLSX(rows [][]any) []byte {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	for r, row := range rows {
		for c, v := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+1)
			_ = f.SetCellValue(sheet, cell, v)
		}
	}
	buf := bytes.NewBuffer(nil)
	_, _ = f.WriteTo(buf)
	return buf.Bytes()
}

func writeFile(t *testing.T, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadXLSX(t *testing.T) {
	path := writeFile(t, "order.xlsx", mkXLSX([][]any{
		{"Наименование", "Кол-во", "Ед", "Цена"},
		{},
		{"Кабель ВВГ 3х2,5", 10, "шт", 150.5},
		{"Провод ПВС 2х0,75", 2, "м", 45},
	}))

	in, err := LoadDocument(path)
	if err != nil {
		t.Fatal(err)
	}
	if in.Format != "xlsx" || in.Path != "" {
		t.Fatalf("format=%q path=%q", in.Format, in.Path)
	}
	if len(in.Tables) != 1 {
		t.Fatalf("tables=%d", len(in.Tables))
	}
	table := in.Tables[0]
	if table.Header[0] != "Наименование" || len(table.Rows) != 2 {
		t.Fatalf("table=%+v", table)
	}
	if table.Rows[0][0] != "Кабель ВВГ 3х2,5" || table.Rows[1][1] != "2" {
		t.Fatalf("rows=%v", table.Rows)
	}
	if !strings.Contains(in.Text, "Провод ПВС 2х0,75\t2\tм\t45") {
		t.Fatalf("text=%q", in.Text)
	}
}

func TestLoadXLSXSkipsPreamble(t *testing.T) {
	path := writeFile(t, "offer.xlsx", mkXLSX([][]any{
		{"Коммерческое предложение ООО «Балтийский кабель»"},
		{"ИНН 7801234567, КПП 780101001"},
		{"№", "Артикул", "Товары", "Кол-во", "Ед.", "Цена", "Сумма"},
		{1, "ВВГ-325", "Кабель ВВГнг-LS 3х2,5", 100, "м", 150.5, 15050},
	}))

	in, err := LoadDocument(path)
	if err != nil {
		t.Fatal(err)
	}
	table := in.Tables[0]
	if len(table.Header) != 7 || table.Header[2] != "Товары" {
		t.Fatalf("header=%v", table.Header)
	}
	if len(table.Rows) != 1 || table.Rows[0][2] != "Кабель ВВГнг-LS 3х2,5" {
		t.Fatalf("rows=%v", table.Rows)
	}
	if !strings.Contains(in.Text, "Коммерческое предложение") {
		t.Fatalf("preamble missing from text: %q", in.Text)
	}
}

func TestHeaderRowIndex(t *testing.T) {
	tests := []struct {
		name string
		grid [][]string
		want int
	}{
		{"first row", [][]string{{"Наименование", "Кол-во", "Цена"}, {"Кабель", "1", "2"}}, 0},
		{"after title", [][]string{{"Счет № 15"}, {"Наименование", "Кол-во", "Цена"}}, 1},
		{"below scanned rows", [][]string{{"a"}, {"b"}, {"c"}, {"Наименование", "Цена"}}, 0},
		{"no captions", [][]string{{"Кабель", "1"}, {"Провод", "2"}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := headerRowIndex(tt.grid); got != tt.want {
				t.Fatalf("got %d want %d", got, tt.want)
			}
		})
	}
}

func TestLoadHTML(t *testing.T) {
	html := `<html><head><style>td{color:red}</style></head><body>
<p>Коммерческое предложение</p>
<table>
<tr><th>Наименование</th><th>Кол-во</th><th>Цена</th></tr>
<tr><td>Кабель ВВГ 3х2,5</td><td>100</td><td>150,50</td></tr>
<tr><td></td><td></td><td></td></tr>
</table>
<script>var x = 1;</script>
</body></html>`
	in, err := LoadDocument(writeFile(t, "offer.html", []byte(html)))
	if err != nil {
		t.Fatal(err)
	}
	if in.Text != "Коммерческое предложение" {
		t.Fatalf("text=%q", in.Text)
	}
	if len(in.Tables) != 1 {
		t.Fatalf("tables=%d", len(in.Tables))
	}
	table := in.Tables[0]
	if len(table.Header) != 3 || table.Header[2] != "Цена" {
		t.Fatalf("header=%v", table.Header)
	}
	if len(table.Rows) != 1 || table.Rows[0][1] != "100" {
		t.Fatalf("rows=%v", table.Rows)
	}
}

func TestLoadText(t *testing.T) {
	in, err := LoadDocument(writeFile(t, "note.txt", []byte("Кабель ВВГ 3х2.5 100 шт 150.50\r\n")))
	if err != nil {
		t.Fatal(err)
	}
	if in.Format != "txt" || !strings.Contains(in.Text, "Кабель ВВГ 3х2.5") {
		t.Fatalf("input=%+v", in)
	}
}

func TestLoadUnsupported(t *testing.T) {
	_, err := LoadDocument(writeFile(t, "scan.jpg", []byte{0xff, 0xd8}))
	if !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("err=%v", err)
	}
}

func mkEmail(subject, body, html, attachName string, attachment []byte) []byte {
	const boundary = "b1"
	var b strings.Builder
	fmt.Fprintf(&b, "From: buyer@example.com\r\nTo: sales@example.com\r\n")
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.BEncoding.Encode("UTF-8", subject))
	fmt.Fprintf(&b, "MIME-Version: 1.0\r\nContent-Type: multipart/mixed; boundary=%q\r\n\r\n", boundary)
	fmt.Fprintf(&b, "--%s\r\nContent-Type: text/plain; charset=utf-8\r\nContent-Transfer-Encoding: base64\r\n\r\n%s\r\n",
		boundary, base64.StdEncoding.EncodeToString([]byte(body)))
	if html != "" {
		fmt.Fprintf(&b, "--%s\r\nContent-Type: text/html; charset=utf-8\r\nContent-Transfer-Encoding: base64\r\n\r\n%s\r\n",
			boundary, base64.StdEncoding.EncodeToString([]byte(html)))
	}
	if attachName != "" {
		fmt.Fprintf(&b, "--%s\r\nContent-Type: application/octet-stream\r\nContent-Disposition: attachment; filename=%q\r\nContent-Transfer-Encoding: base64\r\n\r\n%s\r\n",
			boundary, attachName, base64.StdEncoding.EncodeToString(attachment))
	}
	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String())
}

func TestLoadEmail(t *testing.T) {
	xlsx := mkXLSX([][]any{
		{"Наименование", "Кол-во", "Цена"},
		{"Провод ПуГВ 1х6", 200, 45.2},
	})
	html := `<table><tr><th>Товар</th><th>Кол-во</th></tr><tr><td>Кабель ВВГ</td><td>5</td></tr></table>`
	raw := mkEmail("Заявка на кабель", "Прошу счет на позиции ниже.", html, "order.xlsx", xlsx)

	in, err := LoadDocument(writeFile(t, "mail.eml", raw))
	if err != nil {
		t.Fatal(err)
	}
	defer in.Close()

	if in.Format != "eml" || in.Subject != "Заявка на кабель" {
		t.Fatalf("format=%q subject=%q", in.Format, in.Subject)
	}
	if len(in.Attachments) != 1 || in.Attachments[0] != "order.xlsx" {
		t.Fatalf("attachments=%v", in.Attachments)
	}
	if len(in.Tables) != 2 {
		t.Fatalf("tables=%d", len(in.Tables))
	}
	if !strings.Contains(in.Text, "Прошу счет") || !strings.Contains(in.Text, "Провод ПуГВ 1х6") {
		t.Fatalf("text=%q", in.Text)
	}
}

func TestInputCloseRemovesTemp(t *testing.T) {
	path := writeFile(t, "x.pdf", []byte("%PDF"))
	in := Input{temp: []string{path, filepath.Join(t.TempDir(), "gone.pdf")}}
	if err := in.Close(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("temp file kept: %v", err)
	}
}

func glyphs(x float64, s string) []pdf.Text {
	var out []pdf.Text
	for _, r := range s {
		out = append(out, pdf.Text{FontSize: 10, X: x, W: 5, S: string(r)})
		x += 5
	}
	return out
}

func pdfRow(cells ...string) *pdf.Row {
	row := &pdf.Row{}
	x := 0.0
	for _, c := range cells {
		row.Content = append(row.Content, glyphs(x, c)...)
		x += float64(len([]rune(c)))*5 + 40
	}
	return row
}

func TestRowCellsSplitsOnGaps(t *testing.T) {
	cells := rowCells(pdfRow("Кабель ВВГ", "100", "150,50").Content)
	want := []string{"Кабель ВВГ", "100", "150,50"}
	if strings.Join(cells, "|") != strings.Join(want, "|") {
		t.Fatalf("cells=%q", cells)
	}
}

func TestTablesFromRows(t *testing.T) {
	rows := pdf.Rows{
		pdfRow("Коммерческое предложение"),
		pdfRow("Наименование", "Кол-во", "Цена"),
		pdfRow("Кабель ВВГ", "100", "150,50"),
		pdfRow("Итого", "15050"),
		pdfRow("a", "b", "c"),
	}
	tables := tablesFromRows(2, rows)
	if len(tables) != 1 {
		t.Fatalf("tables=%d", len(tables))
	}
	if tables[0].Page != 2 || len(tables[0].Rows) != 2 || tables[0].Origin != "pdf_layout" {
		t.Fatalf("table=%+v", tables[0])
	}
}
