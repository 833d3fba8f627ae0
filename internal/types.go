package internal

// PageRecord is what the page extractor managed to read from one invoice
// page. Field contents come from an LLM and are noisy evidence, not ground
// truth; the reconciler owns the record for the duration of one file.
type PageRecord struct {
	DocumentMarking string
	InvoiceID       string
	Date            string
	PurchaseOrder   string
	Vendor          string
	Customer        string
	TotalAmount     *float64
	Items           []LineItem
}

// LineItem is the wire-level item shape. Pointer fields keep absence
// explicit; defaulting happens once, when the reconciler emits ItemRows.
type LineItem struct {
	ModelCode   *string
	Description *string
	Quantity    *int
	UnitPrice   *float64
	Origin      *string
	LineTotal   *float64
}

// ItemRow is a reconciled line item: all base fields populated, tagged with
// the resolved invoice id and the source file.
type ItemRow struct {
	ModelCode   string   `json:"modelCode"`
	Description string   `json:"description"`
	Quantity    int      `json:"quantity"`
	UnitPrice   float64  `json:"unitPrice"`
	Origin      string   `json:"origin"`
	LineTotal   *float64 `json:"lineTotal,omitempty"`
	InvoiceID   string   `json:"invoiceId"`
	SourceFile  string   `json:"sourceFile"`
	Page        int      `json:"page"`
}

type SummaryRow struct {
	SourceFile  string   `json:"sourceFile"`
	InvoiceID   string   `json:"invoiceId"`
	TotalAmount *float64 `json:"totalAmount"`
	Customer    string   `json:"customer"`
}

type PageFailure struct {
	Page   int    `json:"page"`
	Reason string `json:"reason"`
}

// FileResult is one file's reconciliation output. Error is set when the
// whole file aborted (unreadable source); per-page problems land in
// Failures and do not stop the file.
type FileResult struct {
	SourceFile string        `json:"sourceFile"`
	Pages      int           `json:"pages"`
	Items      []ItemRow     `json:"items"`
	Summary    []SummaryRow  `json:"summary"`
	Failures   []PageFailure `json:"failures,omitempty"`
	Error      string        `json:"error,omitempty"`
}

// BatchResult aggregates one processing run. Items and Summary are the
// files' collections concatenated in upload order.
type BatchResult struct {
	BatchID string       `json:"batchId"`
	Files   []FileResult `json:"files"`
	Items   []ItemRow    `json:"items"`
	Summary []SummaryRow `json:"summary"`
}

func (b *BatchResult) ItemCount() int {
	return len(b.Items)
}

type BatchRow struct {
	ID        string `json:"id"`
	CreatedAt string `json:"createdAt"`
	Template  string `json:"template"`
	Source    string `json:"source"`
	Status    string `json:"status"`
	FileCount int    `json:"fileCount"`
	ItemCount int    `json:"itemCount"`
	ErrorText string `json:"errorText,omitempty"`
}

type DocumentRow struct {
	ID        int    `json:"id"`
	BatchID   string `json:"batchId"`
	Filename  string `json:"filename"`
	Hash      string `json:"hash,omitempty"`
	Pages     int    `json:"pages"`
	Status    string `json:"status"`
	ErrorText string `json:"errorText,omitempty"`
	CreatedAt string `json:"createdAt"`
}

type EmailRow struct {
	ID         int
	Provider   string
	MessageID  string
	Subject    string
	Sender     string
	ReceivedAt string
	Hash       string
	Status     string
	RawRef     string
	BatchID    string
}

type FetchedMailMessage struct {
	Provider   string
	MessageID  string
	Subject    string
	From       string
	ReceivedAt string
	Raw        []byte
}
