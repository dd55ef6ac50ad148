package service

import (
	"context"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/mashareq-erp/be-procurement/internal/apperrors"
	"github.com/mashareq-erp/be-procurement/internal/logger"
)

// ── Comparison data structures ────────────────────────────────────────────────
// These are ephemeral: recomputed per analysis run, never persisted.

// SupplierInfo identifies one quoting supplier.
type SupplierInfo struct {
	Name          string `json:"name"`
	ContactPerson string `json:"contact_person,omitempty"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
}

// QuotationItem is one line item in an extracted quotation.
type QuotationItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	Unit        string  `json:"unit"`
	UnitPrice   float64 `json:"unit_price"`
	Total       float64 `json:"total"`
}

// CommercialTerms are the money and contract terms of one quotation.
type CommercialTerms struct {
	Subtotal      float64 `json:"subtotal"`
	Tax           float64 `json:"tax"`
	Total         float64 `json:"total"`
	Currency      string  `json:"currency"`
	PaymentTerms  string  `json:"payment_terms,omitempty"`
	DeliveryTerms string  `json:"delivery_terms,omitempty"`
	Validity      string  `json:"validity,omitempty"`
	Warranty      string  `json:"warranty,omitempty"`
}

// ExtractedQuotation is the structured result of AI extraction for one file.
// Placeholder quotations stand in for files whose extraction failed so the
// rest of the batch can proceed.
type ExtractedQuotation struct {
	Supplier    SupplierInfo      `json:"supplier"`
	Items       []QuotationItem   `json:"items"`
	Commercial  CommercialTerms   `json:"commercial"`
	Technical   map[string]string `json:"technical,omitempty"`
	SourceFile  string            `json:"source_file,omitempty"`
	Placeholder bool              `json:"placeholder,omitempty"`
}

// SupplierQuote is one supplier's price for one item.
type SupplierQuote struct {
	UnitPrice float64 `json:"unit_price"`
	Total     float64 `json:"total"`
}

// ItemComparisonEntry is one row of the item comparison matrix.
type ItemComparisonEntry struct {
	Item           string                   `json:"item"`
	Quantity       float64                  `json:"quantity"`
	Unit           string                   `json:"unit"`
	Suppliers      map[string]SupplierQuote `json:"suppliers"`
	LowestSupplier string                   `json:"lowest_supplier"`
	LowestTotal    float64                  `json:"lowest_total"`
	AverageTotal   float64                  `json:"average_total"`
}

// SupplierRanking is one entry of the recommendation ranking.
type SupplierRanking struct {
	Rank       int     `json:"rank"`
	Supplier   string  `json:"supplier"`
	GrandTotal float64 `json:"grand_total"`
}

// ComparisonAnalysis is the full result of one analysis run.
type ComparisonAnalysis struct {
	Quotations     []ExtractedQuotation         `json:"quotations"`
	Items          []ItemComparisonEntry        `json:"items"`
	Commercial     map[string]CommercialTerms   `json:"commercial"`
	Technical      map[string]map[string]string `json:"technical"`
	Ranking        []SupplierRanking            `json:"ranking"`
	Recommendation string                       `json:"recommendation"`
	Currency       string                       `json:"currency"`
	GeneratedAt    time.Time                    `json:"generated_at"`
}

// QuotationFile is one uploaded quotation document.
type QuotationFile struct {
	FileName    string `json:"file_name"`
	MimeType    string `json:"mime_type"`
	Content     []byte `json:"content"`
	DocTypeHint string `json:"doc_type_hint,omitempty"`
}

// AIClientInterface is the AI collaborator: best-effort document extraction
// and quotation comparison. Calls are single-shot; failures degrade, they are
// never retried.
type AIClientInterface interface {
	ExtractQuotation(ctx context.Context, file QuotationFile) (*ExtractedQuotation, error)
	CompareQuotations(ctx context.Context, quotations []ExtractedQuotation) (*AIComparison, error)
}

// AIComparison is the parsed response of the AI comparison collaborator.
type AIComparison struct {
	Ranking        []SupplierRanking `json:"ranking"`
	Recommendation string            `json:"recommendation"`
}

// ── Service ───────────────────────────────────────────────────────────────────

// ComparisonService runs the quotation analysis pipeline: extraction with
// placeholder degradation, supplier-name canonicalization, the item
// comparison matrix and the ranking (AI with local fallback).
type ComparisonService struct {
	ai  AIClientInterface
	log *logger.Logger
}

// NewComparisonService creates a new ComparisonService.
func NewComparisonService(ai AIClientInterface, log *logger.Logger) *ComparisonService {
	return &ComparisonService{ai: ai, log: log}
}

// Analyze extracts every file, builds the comparison matrices and ranks the
// suppliers. A failed extraction of one file yields a placeholder quotation;
// the batch always proceeds.
func (s *ComparisonService) Analyze(ctx context.Context, files []QuotationFile) (*ComparisonAnalysis, error) {
	if len(files) == 0 {
		return nil, apperrors.InvalidInput("files", "at least one quotation file is required")
	}

	quotations := make([]ExtractedQuotation, 0, len(files))
	for _, f := range files {
		q, err := s.ai.ExtractQuotation(ctx, f)
		if err != nil {
			s.log.Warn().Err(err).Str("file", f.FileName).Msg("Extraction failed; using placeholder quotation")
			quotations = append(quotations, placeholderQuotation(f.FileName))
			continue
		}
		q.SourceFile = f.FileName
		if q.Supplier.Name == "" {
			q.Supplier.Name = baseName(f.FileName)
		}
		quotations = append(quotations, *q)
	}

	analysis := &ComparisonAnalysis{
		Quotations:  quotations,
		Items:       BuildItemComparison(quotations),
		Commercial:  commercialBySupplier(quotations),
		Technical:   technicalBySupplier(quotations),
		Currency:    firstCurrency(quotations),
		GeneratedAt: time.Now(),
	}

	cmp, err := s.ai.CompareQuotations(ctx, quotations)
	if err != nil || cmp == nil || len(cmp.Ranking) == 0 {
		if err != nil {
			s.log.Warn().Err(err).Msg("AI comparison failed; falling back to local analysis")
		}
		cmp = DefaultAnalysis(quotations)
	}
	analysis.Ranking = cmp.Ranking
	analysis.Recommendation = cmp.Recommendation

	return analysis, nil
}

func placeholderQuotation(fileName string) ExtractedQuotation {
	return ExtractedQuotation{
		Supplier:    SupplierInfo{Name: baseName(fileName)},
		SourceFile:  fileName,
		Placeholder: true,
	}
}

func baseName(fileName string) string {
	name := filepath.Base(fileName)
	if ext := filepath.Ext(name); ext != "" {
		name = strings.TrimSuffix(name, ext)
	}
	return name
}

// ── Canonical supplier ordering ───────────────────────────────────────────────

// SupplierColumns resolves the canonical, order-stable supplier list used as
// table columns everywhere. Priority: extracted-quotation order, then item
// matrix keys, then commercial keys, then technical keys. The first non-empty
// source wins.
func SupplierColumns(a *ComparisonAnalysis) []string {
	if len(a.Quotations) > 0 {
		names := make([]string, 0, len(a.Quotations))
		for _, q := range a.Quotations {
			names = append(names, q.Supplier.Name)
		}
		return names
	}
	if names := itemMatrixSuppliers(a.Items); len(names) > 0 {
		return names
	}
	if names := sortedKeys(a.Commercial); len(names) > 0 {
		return names
	}
	return sortedKeysNested(a.Technical)
}

// itemMatrixSuppliers collects supplier keys from the item matrix in
// first-seen order, visiting each row's keys sorted so the result is stable.
func itemMatrixSuppliers(items []ItemComparisonEntry) []string {
	var names []string
	seen := make(map[string]struct{})
	for _, entry := range items {
		for _, key := range sortedKeys(entry.Suppliers) {
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			names = append(names, key)
		}
	}
	return names
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedKeysNested(m map[string]map[string]string) []string {
	return sortedKeys(m)
}

// ── Fuzzy supplier matching ───────────────────────────────────────────────────

// normalizeName lowercases and strips every non-alphanumeric rune so that
// "Al-Futtaim Trading LLC" and "al futtaim trading llc" compare equal.
func normalizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FindSupplierData locates target's entry in a supplier-keyed map whose keys
// may be truncated or formatted differently. Tried in order, first hit wins:
// exact key, normalized prefix (either direction), normalized substring
// (either direction), then relaying through the extracted quotations to
// recover the full name and re-resolving. Keys are visited in sorted order so
// matching is deterministic for fixed inputs.
func FindSupplierData[V any](suppliers map[string]V, target string, extracted []ExtractedQuotation) (V, bool) {
	var zero V
	if len(suppliers) == 0 {
		return zero, false
	}

	if v, ok := suppliers[target]; ok {
		return v, true
	}

	keys := sortedKeys(suppliers)
	nt := normalizeName(target)

	if nt != "" {
		for _, k := range keys {
			nk := normalizeName(k)
			if nk == "" {
				continue
			}
			if strings.HasPrefix(nk, nt) || strings.HasPrefix(nt, nk) {
				return suppliers[k], true
			}
		}
		for _, k := range keys {
			nk := normalizeName(k)
			if nk == "" {
				continue
			}
			if strings.Contains(nk, nt) || strings.Contains(nt, nk) {
				return suppliers[k], true
			}
		}
	}

	// Relay: find the target among the extracted quotations, then re-resolve
	// the matched full name against the map.
	for _, q := range extracted {
		full := q.Supplier.Name
		if full == "" || full == target {
			continue
		}
		nf := normalizeName(full)
		if nf == "" || nt == "" {
			continue
		}
		if strings.HasPrefix(nf, nt) || strings.HasPrefix(nt, nf) ||
			strings.Contains(nf, nt) || strings.Contains(nt, nf) {
			if v, ok := suppliers[full]; ok {
				return v, true
			}
			for _, k := range keys {
				nk := normalizeName(k)
				if nk == "" {
					continue
				}
				if strings.HasPrefix(nk, nf) || strings.HasPrefix(nf, nk) ||
					strings.Contains(nk, nf) || strings.Contains(nf, nk) {
					return suppliers[k], true
				}
			}
		}
	}

	return zero, false
}

// ── Item comparison matrix ────────────────────────────────────────────────────

// BuildItemComparison builds the per-item comparison matrix. Items appear in
// first-seen order across quotations; placeholder quotations contribute no
// prices and are skipped for lowest/average calculations.
func BuildItemComparison(quotations []ExtractedQuotation) []ItemComparisonEntry {
	var order []string
	entries := make(map[string]*ItemComparisonEntry)

	for _, q := range quotations {
		for _, item := range q.Items {
			key := item.Description
			entry, ok := entries[key]
			if !ok {
				entry = &ItemComparisonEntry{
					Item:      item.Description,
					Quantity:  item.Quantity,
					Unit:      item.Unit,
					Suppliers: make(map[string]SupplierQuote),
				}
				entries[key] = entry
				order = append(order, key)
			}
			entry.Suppliers[q.Supplier.Name] = SupplierQuote{
				UnitPrice: item.UnitPrice,
				Total:     item.Total,
			}
		}
	}

	result := make([]ItemComparisonEntry, 0, len(order))
	for _, key := range order {
		entry := entries[key]
		finalizeEntry(entry)
		result = append(result, *entry)
	}
	return result
}

// finalizeEntry computes the lowest and average totals over the suppliers
// that actually quoted the item. Supplier keys are visited sorted so ties
// resolve deterministically.
func finalizeEntry(entry *ItemComparisonEntry) {
	var sum float64
	count := 0
	for _, supplier := range sortedKeys(entry.Suppliers) {
		quote := entry.Suppliers[supplier]
		sum += quote.Total
		count++
		if entry.LowestSupplier == "" || quote.Total < entry.LowestTotal {
			entry.LowestSupplier = supplier
			entry.LowestTotal = quote.Total
		}
	}
	if count > 0 {
		entry.AverageTotal = sum / float64(count)
	}
}

// ── Local fallback analysis ───────────────────────────────────────────────────

// DefaultAnalysis ranks suppliers by lowest grand total. Used when the AI
// comparison response cannot be parsed; placeholder quotations rank last.
func DefaultAnalysis(quotations []ExtractedQuotation) *AIComparison {
	type candidate struct {
		name        string
		total       float64
		placeholder bool
	}

	candidates := make([]candidate, 0, len(quotations))
	for _, q := range quotations {
		candidates = append(candidates, candidate{
			name:        q.Supplier.Name,
			total:       q.Commercial.Total,
			placeholder: q.Placeholder,
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].placeholder != candidates[j].placeholder {
			return !candidates[i].placeholder
		}
		return candidates[i].total < candidates[j].total
	})

	cmp := &AIComparison{}
	for i, c := range candidates {
		cmp.Ranking = append(cmp.Ranking, SupplierRanking{
			Rank:       i + 1,
			Supplier:   c.name,
			GrandTotal: c.total,
		})
	}
	if len(cmp.Ranking) > 0 {
		cmp.Recommendation = "Lowest total price: " + cmp.Ranking[0].Supplier
	}
	return cmp
}

// ── Map assembly helpers ──────────────────────────────────────────────────────

func commercialBySupplier(quotations []ExtractedQuotation) map[string]CommercialTerms {
	m := make(map[string]CommercialTerms, len(quotations))
	for _, q := range quotations {
		if q.Placeholder {
			continue
		}
		m[q.Supplier.Name] = q.Commercial
	}
	return m
}

func technicalBySupplier(quotations []ExtractedQuotation) map[string]map[string]string {
	m := make(map[string]map[string]string)
	for _, q := range quotations {
		if len(q.Technical) == 0 {
			continue
		}
		m[q.Supplier.Name] = q.Technical
	}
	return m
}

func firstCurrency(quotations []ExtractedQuotation) string {
	for _, q := range quotations {
		if q.Commercial.Currency != "" {
			return q.Commercial.Currency
		}
	}
	return ""
}
