package extract

import (
	"regexp"
	"strings"

	"procparse/internal/util"
)

// DefaultHeaderMarkers mark a table row as a repeated header when found in its first cell.
var DefaultHeaderMarkers = []string{
	"№", "номер", "артикул", "товары", "наименование", "наимен", "количество", "кол-во", "цена", "сумма",
}

// DefaultServiceWords mark banking, legal, address and summary content.
var DefaultServiceWords = []string{
	"инн", "кпп", "счет", "банк", "бик", "р/с", "к/с", "получатель", "плательщик",
	"оплата", "платеж", "договор", "итого", "всего", "сумма", "назначение", "важно",
	"примечание", "подготовлено", "для", "от", "дата", "номер", "адрес", "телефон", "email",
	"россия", "область", "край", "город", "улица", "дом", "корпус", "комната",
	"почтовое", "индекс", "код", "вид", "срок", "плат", "наз", "пл", "очер",
	"технические", "условия", "сертификат", "соответствия",
}

// DefaultLineHeaders mark a free-text line as a column caption.
var DefaultLineHeaders = []string{
	"наименование", "название", "количество", "кол-во", "цена", "стоимость",
	"единица", "валюта", "сумма", "итого", "поставщик",
}

// WordSet matches a word list against text. Words of up to three runes must stand
// alone; longer ones match anywhere.
type WordSet struct {
	long  []string
	short *regexp.Regexp
}

func NewWordSet(words []string) *WordSet {
	ws := &WordSet{}
	var short []string
	for _, w := range words {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" {
			continue
		}
		if len([]rune(w)) <= 3 && util.HasLetter(w) {
			short = append(short, regexp.QuoteMeta(w))
			continue
		}
		ws.long = append(ws.long, w)
	}
	if len(short) > 0 {
		ws.short = regexp.MustCompile(`(?:^|[^\p{L}\d])(` + strings.Join(short, "|") + `)(?:$|[^\p{L}\d])`)
	}
	return ws
}

// Find returns the first listed word present in s, or "".
func (ws *WordSet) Find(s string) string {
	lower := strings.ReplaceAll(strings.ToLower(s), "ё", "е")
	for _, w := range ws.long {
		if strings.Contains(lower, w) {
			return w
		}
	}
	if ws.short != nil {
		if m := ws.short.FindStringSubmatch(lower); len(m) > 1 {
			return m[1]
		}
	}
	return ""
}

func (ws *WordSet) Contains(s string) bool {
	return ws.Find(s) != ""
}

// Classifier decides whether a row or line is a header, service content or a candidate.
// It holds no per-document state.
type Classifier struct {
	headers     *WordSet
	service     *WordSet
	lineHeaders *WordSet
}

func NewClassifier() *Classifier {
	return NewClassifierWith(DefaultHeaderMarkers, DefaultServiceWords, DefaultLineHeaders)
}

func NewClassifierWith(headerMarkers, serviceWords, lineHeaders []string) *Classifier {
	return &Classifier{
		headers:     NewWordSet(headerMarkers),
		service:     NewWordSet(serviceWords),
		lineHeaders: NewWordSet(lineHeaders),
	}
}

// IsHeaderRow looks only at the first cell.
func (c *Classifier) IsHeaderRow(cells []string) bool {
	if len(cells) == 0 {
		return false
	}
	return c.headers.Contains(cells[0])
}

// HeaderCells counts the cells carrying a header marker.
func (c *Classifier) HeaderCells(cells []string) int {
	n := 0
	for _, cell := range cells {
		if c.headers.Contains(cell) {
			n++
		}
	}
	return n
}

// ServiceWord returns the service word found in any cell, or "".
func (c *Classifier) ServiceWord(cells []string) string {
	for _, cell := range cells {
		if w := c.service.Find(cell); w != "" {
			return w
		}
	}
	return ""
}

func (c *Classifier) IsServiceRow(cells []string) bool {
	return c.ServiceWord(cells) != ""
}

func (c *Classifier) IsServiceText(s string) bool {
	return c.service.Contains(s)
}

func (c *Classifier) IsHeaderLine(line string) bool {
	return c.lineHeaders.Contains(line)
}
