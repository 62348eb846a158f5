package internal

// Field names a semantic column of a line-item table.
type Field string

const (
	FieldNumber   Field = "number"
	FieldArticle  Field = "article"
	FieldName     Field = "name"
	FieldQty      Field = "qty"
	FieldUnit     Field = "unit"
	FieldPrice    Field = "price"
	FieldTotal    Field = "total"
	FieldCurrency Field = "currency"
	FieldSupplier Field = "supplier"
)

// FieldOrder is the order in which fields compete for a column.
var FieldOrder = []Field{
	FieldNumber, FieldArticle, FieldName, FieldQty, FieldUnit,
	FieldPrice, FieldTotal, FieldCurrency, FieldSupplier,
}

func (f Field) Numeric() bool {
	return f == FieldQty || f == FieldPrice || f == FieldTotal
}

const DefaultCurrency = "RUB"

// Table is a raw grid as delivered by the extraction collaborator.
// Header is optional; Rows may be ragged.
type Table struct {
	Header []string
	Rows   [][]string
	Page   int
	Origin string
}

func (t Table) Width() int {
	w := len(t.Header)
	for _, row := range t.Rows {
		if len(row) > w {
			w = len(row)
		}
	}
	return w
}

// LineItem is one extracted product row.
type LineItem struct {
	Name          string   `json:"name"`
	Number        string   `json:"number,omitempty"`
	Article       string   `json:"article,omitempty"`
	Qty           *float64 `json:"qty"`
	Unit          string   `json:"unit"`
	Price         *float64 `json:"price"`
	Currency      string   `json:"currency"`
	Total         *float64 `json:"total"`
	TotalComputed bool     `json:"total_computed"`
	Confidence    float64  `json:"confidence"`
	Source        string   `json:"source"`
	Supplier      string   `json:"supplier,omitempty"`
	SupplierID    string   `json:"supplier_id,omitempty"`
}

func (it LineItem) QtyValue() float64 {
	if it.Qty == nil {
		return 0
	}
	return *it.Qty
}

func (it LineItem) PriceValue() float64 {
	if it.Price == nil {
		return 0
	}
	return *it.Price
}

func (it LineItem) TotalValue() float64 {
	if it.Total == nil {
		return 0
	}
	return *it.Total
}

type DocumentType string

const (
	DocInvoice     DocumentType = "invoice"
	DocCommercial  DocumentType = "commercial_proposal"
	DocCompetitive DocumentType = "competitive_document"
	DocContract    DocumentType = "contract"
	DocUnknown     DocumentType = "unknown"
)

var DocumentTypes = []DocumentType{DocInvoice, DocCommercial, DocCompetitive, DocContract}

type DocumentTypeEstimate struct {
	Scores   map[DocumentType]float64 `json:"scores"`
	Dominant DocumentType             `json:"dominant"`
}

// OCRReport describes the OCR gate decision and what enhancement did.
type OCRReport struct {
	Requested       bool     `json:"requested"`
	Available       bool     `json:"available"`
	NeedsOCR        bool     `json:"needs_ocr"`
	Reasons         []string `json:"reasons,omitempty"`
	Applied         bool     `json:"applied"`
	OriginalLength  int      `json:"original_length"`
	ImagesProcessed int      `json:"images_processed"`
	OCRAdditions    int      `json:"ocr_additions"`
	TotalOCRText    int      `json:"total_ocr_text"`
	TimedOut        bool     `json:"timed_out"`
	Error           string   `json:"error,omitempty"`
}

type QualityReport struct {
	TextQuality     float64   `json:"text_quality"`
	TableQuality    float64   `json:"table_quality"`
	Overall         float64   `json:"overall"`
	Issues          []string  `json:"issues,omitempty"`
	Recommendations []string  `json:"recommendations,omitempty"`
	OCR             OCRReport `json:"ocr"`
}

// StrategySummary is the per-strategy record kept in the final result.
type StrategySummary struct {
	Name          string  `json:"name"`
	Count         int     `json:"count"`
	TotalCost     float64 `json:"total_cost"`
	AvgConfidence float64 `json:"avg_confidence"`
	ValidCount    int     `json:"valid_count"`
	Score         float64 `json:"score"`
	Error         string  `json:"error,omitempty"`
}

type ArbitrationResult struct {
	BestStrategy    string               `json:"best_strategy"`
	BestItems       []LineItem           `json:"best_items"`
	DocumentType    DocumentTypeEstimate `json:"document_type"`
	Quality         QualityReport        `json:"quality_report"`
	Recommendations []string             `json:"recommendations"`
	Strategies      []StrategySummary    `json:"strategies"`
	SupplierID      string               `json:"supplier_id,omitempty"`
}

type MatchStatus string

type MatchReason string

const (
	MatchAuto     MatchStatus = "AUTO"
	MatchSuggest  MatchStatus = "SUGGEST"
	MatchNotFound MatchStatus = "NOT_FOUND"

	ReasonCode   MatchReason = "CODE"
	ReasonHeader MatchReason = "HEADER"
	ReasonFuzzy  MatchReason = "FUZZY"
	ReasonNone   MatchReason = "NONE"
)

type ProductRecord struct {
	ID           int
	SKU          string
	Name         string
	Article      *string
	Unit         *string
	Manufacturer *string
	Codes        []string
	UpdatedAt    *string
	RawJSON      string
}

type MatchCandidate struct {
	ID    int     `json:"id"`
	SKU   string  `json:"sku"`
	Name  string  `json:"name"`
	Score float64 `json:"score"`
}

type MatchResult struct {
	Status     MatchStatus      `json:"status"`
	Confidence float64          `json:"confidence"`
	Reason     MatchReason      `json:"reason"`
	Product    *MatchCandidate  `json:"product"`
	Candidates []MatchCandidate `json:"candidates"`
}

type DocumentRow struct {
	ID         int
	Source     string
	ExternalID string
	Filename   string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	Path       string
}

// RunRow is one pipeline execution over a stored document.
type RunRow struct {
	RunID           string
	DocumentID      int
	BestStrategy    string
	DocumentType    string
	SupplierID      string
	Timings         map[string]float64
	Counts          map[string]int
	Recommendations []string
	CreatedAt       string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	// Attachments names the processable documents the mailbox reported for the message.
	Attachments []string
	Raw         []byte
}

type ExportRow struct {
	Ordinal      int
	Item         LineItem
	MatchStatus  string
	MatchScore   float64
	MatchReason  string
	ProductSKU   *string
	ProductName  *string
	Candidate2   *string
	Candidate2Sc *float64
}
