package pipeline

import (
	"bytes"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jhillyerd/enmime"
	pdf "github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"procparse/internal"
	"procparse/internal/extract"
	"procparse/internal/util"
)

var ErrUnsupportedFormat = errors.New("unsupported document format")

// DefaultMinTextLayerChars is the PDF text length under which the text layer is
// considered missing.
const DefaultMinTextLayerChars = 50

const (
	headerScanRows = 3
	minHeaderCells  = 2
)

var headerMarkers = extract.NewClassifier()

// Input is what the extraction core consumes: page text, raw grids and optionally a
// PDF path for OCR to reopen.
type Input struct {
	Text         string
	Tables       []internal.Table
	Path         string
	Format       string
	LowTextLayer bool
	Subject      string
	Attachments  []string

	temp []string
}

// Close removes temporary files written while loading e-mail attachments.
func (in *Input) Close() error {
	var errs []error
	for _, p := range in.temp {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	in.temp = nil
	return errors.Join(errs...)
}

// SupportedExtension reports whether LoadDocument can open files with this extension.
func SupportedExtension(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf", ".xlsx", ".html", ".htm", ".eml", ".txt":
		return true
	}
	return false
}

type Loader struct {
	MinTextLayerChars int
	TempDir           string
}

func LoadDocument(path string) (Input, error) {
	return Loader{}.Load(path)
}

func (l Loader) Load(path string) (Input, error) {
	blob, err := os.ReadFile(path)
	if err != nil {
		return Input{}, err
	}
	in, err := l.loadBytes(filepath.Base(path), blob)
	if err != nil {
		return Input{}, fmt.Errorf("load %s: %w", path, err)
	}
	if in.Format == "pdf" {
		in.Path = path
	}
	return in, nil
}

func (l Loader) loadBytes(name string, blob []byte) (Input, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return l.loadPDF(blob)
	case ".xlsx":
		return loadXLSX(blob)
	case ".html", ".htm":
		return loadHTML(string(blob))
	case ".eml":
		return l.loadEmail(blob)
	case ".txt":
		return Input{Format: "txt", Text: util.CleanText(string(blob))}, nil
	default:
		return Input{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
}

func (l Loader) minTextLayer() int {
	if l.MinTextLayerChars > 0 {
		return l.MinTextLayerChars
	}
	return DefaultMinTextLayerChars
}

func (l Loader) loadPDF(content []byte) (Input, error) {
	r, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return Input{}, err
	}

	in := Input{Format: "pdf"}
	pages := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		text, err := p.GetPlainText(nil)
		if err == nil && strings.TrimSpace(text) != "" {
			pages = append(pages, util.CleanText(text))
		}
		rows, err := p.GetTextByRow()
		if err != nil {
			continue
		}
		in.Tables = append(in.Tables, tablesFromRows(i, rows)...)
	}
	in.Text = strings.Join(pages, "\n\n")
	in.LowTextLayer = len([]rune(strings.TrimSpace(in.Text))) < l.minTextLayer()
	return in, nil
}

// tablesFromRows groups positioned text into cells by horizontal gaps and keeps runs
// of consecutive rows with at least three cells as tables.
func tablesFromRows(page int, rows pdf.Rows) []internal.Table {
	var (
		out     []internal.Table
		current [][]string
	)
	flush := func() {
		if len(current) >= 2 {
			out = append(out, internal.Table{Rows: current, Page: page, Origin: "pdf_layout"})
		}
		current = nil
	}
	for _, row := range rows {
		cells := rowCells(row.Content)
		if len(cells) < 3 {
			flush()
			continue
		}
		current = append(current, cells)
	}
	flush()
	return out
}

func rowCells(texts []pdf.Text) []string {
	if len(texts) == 0 {
		return nil
	}
	sorted := append([]pdf.Text(nil), texts...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].X < sorted[j].X })

	var (
		cells []string
		cell  strings.Builder
	)
	end := sorted[0].X
	for i, t := range sorted {
		gap := math.Max(t.FontSize*1.5, 6)
		if i > 0 && t.X-end > gap {
			cells = append(cells, util.NormalizeSpaces(cell.String()))
			cell.Reset()
		}
		cell.WriteString(t.S)
		end = math.Max(end, t.X+t.W)
	}
	cells = append(cells, util.NormalizeSpaces(cell.String()))

	out := cells[:0]
	for _, c := range cells {
		if c != "" {
			out = append(out, c)
		}
	}
	return out
}

func loadXLSX(content []byte) (Input, error) {
	f, err := excelize.OpenReader(bytes.NewReader(content))
	if err != nil {
		return Input{}, err
	}
	defer f.Close()

	in := Input{Format: "xlsx"}
	var text []string
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			continue
		}
		var grid [][]string
		for _, row := range rows {
			cells := normalizeCells(row)
			if rowBlank(cells) {
				continue
			}
			text = append(text, strings.Join(cells, "\t"))
			grid = append(grid, cells)
		}
		if len(grid) == 0 {
			continue
		}
		h := headerRowIndex(grid)
		in.Tables = append(in.Tables, internal.Table{Origin: sheet, Header: grid[h], Rows: grid[h+1:]})
	}
	in.Text = strings.Join(text, "\n")
	return in, nil
}

// headerRowIndex skips title and requisites rows above the column captions. Without a
// recognizable caption row the first row is the header.
func headerRowIndex(grid [][]string) int {
	for i := 0; i < len(grid) && i < headerScanRows; i++ {
		if headerMarkers.HeaderCells(grid[i]) >= minHeaderCells {
			return i
		}
	}
	return 0
}

func loadHTML(html string) (Input, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Input{}, err
	}

	in := Input{Format: "html", Tables: htmlTables(doc)}
	doc.Find("script,style,table").Remove()
	var lines []string
	for _, line := range strings.Split(doc.Text(), "\n") {
		if line = util.NormalizeSpaces(line); line != "" {
			lines = append(lines, line)
		}
	}
	in.Text = util.CleanText(strings.Join(lines, "\n"))
	return in, nil
}

func htmlTables(doc *goquery.Document) []internal.Table {
	var out []internal.Table
	doc.Find("table").Each(func(_ int, table *goquery.Selection) {
		t := internal.Table{Origin: "html"}
		table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			var cells []string
			headerRow := tr.Find("th").Length() > 0 && tr.Find("td").Length() == 0
			tr.Find("th,td").Each(func(_ int, cell *goquery.Selection) {
				cells = append(cells, util.NormalizeSpaces(util.CleanText(cell.Text())))
			})
			if rowBlank(cells) {
				return
			}
			if headerRow && t.Header == nil && len(t.Rows) == 0 {
				t.Header = cells
				return
			}
			t.Rows = append(t.Rows, cells)
		})
		if len(t.Rows) > 0 {
			out = append(out, t)
		}
	})
	return out
}

func (l Loader) loadEmail(raw []byte) (Input, error) {
	env, err := enmime.ReadEnvelope(bytes.NewReader(raw))
	if err != nil {
		return Input{}, err
	}

	in := Input{Format: "eml", Subject: env.GetHeader("Subject")}
	var texts []string
	if body := strings.TrimSpace(env.Text); body != "" {
		texts = append(texts, util.CleanText(body))
	}
	if env.HTML != "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(env.HTML)); err == nil {
			in.Tables = append(in.Tables, htmlTables(doc)...)
		}
	}

	for _, att := range env.Attachments {
		name := strings.TrimSpace(att.FileName)
		if name == "" {
			name = "attachment"
		}
		in.Attachments = append(in.Attachments, name)
		if !SupportedExtension(name) {
			continue
		}
		sub, err := l.loadBytes(name, att.Content)
		if err != nil {
			continue
		}
		if sub.Format == "pdf" {
			if path, err := l.keepTemp(name, att.Content); err == nil {
				in.temp = append(in.temp, path)
				if in.Path == "" {
					in.Path = path
				}
			}
			in.LowTextLayer = in.LowTextLayer || sub.LowTextLayer
		}
		in.temp = append(in.temp, sub.temp...)
		if sub.Text != "" {
			texts = append(texts, sub.Text)
		}
		in.Tables = append(in.Tables, sub.Tables...)
	}

	in.Text = strings.Join(texts, "\n\n")
	return in, nil
}

func (l Loader) keepTemp(name string, content []byte) (string, error) {
	f, err := os.CreateTemp(l.TempDir, "procparse-*"+filepath.Ext(name))
	if err != nil {
		return "", err
	}
	if _, err := f.Write(content); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	return f.Name(), f.Close()
}

func normalizeCells(row []string) []string {
	out := make([]string, 0, len(row))
	for _, c := range row {
		out = append(out, util.NormalizeSpaces(util.CleanText(c)))
	}
	return out
}

func rowBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
