package scraper

import (
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/qkbintel/registry/internal/domain"
)

// rawDocumentCap bounds how much of the source document is retained verbatim.
const rawDocumentCap = 50000

// ExtractionError marks a detail document whose structure does not match the
// expected shape. Not retried: a structural mismatch will not change on
// re-fetch, it signals upstream format drift.
type ExtractionError struct {
	NIPT   string
	Reason string
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("extract %s: %s", e.NIPT, e.Reason)
}

// ListedShareholder is one entry of the structured "Shareholders/Ownership"
// list section, kept with its link target so the parser can recover a parent
// identifier from the href.
type ListedShareholder struct {
	Text string
	Href string
}

// DetailRecord is the flat result of structurally parsing one detail
// document: typed scalar fields plus the opaque free-text blocks that the
// entity parser interprets separately. Structural drift upstream breaks only
// this extractor, never the entity parser.
type DetailRecord struct {
	NIPT      string
	SourceURL string
	RawHTML   string

	Name             string
	LegalForm        domain.LegalForm
	Status           domain.CompanyStatus
	RegistrationDate *time.Time
	Capital          *float64
	City             string
	Address          string
	ActivityDesc     string

	// Free-text blocks, passed through uninterpreted.
	OwnerText string
	AdminText string
	BoardText string

	// Structured fallback used when OwnerText yields nothing.
	ListedShareholders []ListedShareholder
}

// label pairs: the mirror serves English or Albanian labels depending on the
// page variant.
var (
	labelLegalForm = []string{"legal form", "forma ligjore"}
	labelStatus    = []string{"status", "statusi"}
	labelFounded   = []string{"foundation year", "data e themelimit"}
	labelCapital   = []string{"initial capital", "kapitali fillestar"}
	labelDistrict  = []string{"district", "rrethi"}
	labelAddress   = []string{"address", "adresa"}
	labelScope     = []string{"scope", "objekti"}
	labelAdmins    = []string{"administrators", "administratori"}
	labelBoard     = []string{"board members", "anëtarë të bordit"}
	labelOwner     = []string{"parent company / owner", "shoqëria mëmë/ ortaku"}
)

// Extract structurally parses a raw detail document into a DetailRecord. It
// is a pure function over the input text; it fails with ExtractionError when
// the document body is empty, the info table is missing, or no identity
// label could be located.
func Extract(nipt, sourceURL, rawHTML string) (DetailRecord, error) {
	record := DetailRecord{
		NIPT:      nipt,
		SourceURL: sourceURL,
		LegalForm: domain.LegalFormOther,
		Status:    domain.StatusActive,
	}

	if strings.TrimSpace(rawHTML) == "" {
		return record, &ExtractionError{NIPT: nipt, Reason: "empty document body"}
	}

	record.RawHTML = rawHTML
	if len(record.RawHTML) > rawDocumentCap {
		record.RawHTML = record.RawHTML[:rawDocumentCap]
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return record, &ExtractionError{NIPT: nipt, Reason: fmt.Sprintf("unparseable html: %v", err)}
	}

	// Company name lives in <title>; the h1 carries the site name.
	record.Name = strings.TrimSpace(doc.Find("title").First().Text())

	fields := extractLabelTable(doc)
	if len(fields) == 0 {
		return record, &ExtractionError{NIPT: nipt, Reason: "info table missing or empty"}
	}
	if record.Name == "" {
		return record, &ExtractionError{NIPT: nipt, Reason: "identity label missing"}
	}

	if value, ok := lookupField(fields, labelLegalForm); ok {
		record.LegalForm = domain.MapLegalForm(value)
	}
	if value, ok := lookupField(fields, labelStatus); ok {
		record.Status = domain.MapStatus(value)
	}
	if value, ok := lookupField(fields, labelFounded); ok {
		record.RegistrationDate = parseDate(value)
	}
	if value, ok := lookupField(fields, labelCapital); ok {
		record.Capital = parseCapital(value)
	}
	if value, ok := lookupField(fields, labelDistrict); ok {
		// Take the first district when multiple are listed.
		record.City = strings.TrimSpace(strings.SplitN(value, ",", 2)[0])
	}
	if value, ok := lookupField(fields, labelAddress); ok {
		record.Address = value
	}
	if value, ok := lookupField(fields, labelScope); ok {
		if len(value) > 500 {
			value = value[:500]
		}
		record.ActivityDesc = value
	}

	record.AdminText, _ = lookupField(fields, labelAdmins)
	record.BoardText, _ = lookupField(fields, labelBoard)
	record.OwnerText, _ = lookupField(fields, labelOwner)
	record.ListedShareholders = extractShareholderList(doc)

	return record, nil
}

// extractLabelTable walks the first info table and collects th/td label-value
// pairs, with labels lowercased and stripped of trailing colons.
func extractLabelTable(doc *goquery.Document) map[string]string {
	fields := make(map[string]string)

	table := doc.Find("table").First()
	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		label := strings.TrimSpace(row.Find("th").First().Text())
		value := strings.TrimSpace(row.Find("td").First().Text())
		if label == "" || value == "" {
			return
		}
		label = strings.TrimSuffix(strings.ToLower(label), ":")
		fields[label] = value
	})

	return fields
}

func lookupField(fields map[string]string, labels []string) (string, bool) {
	for _, label := range labels {
		if value, ok := fields[label]; ok {
			return value, true
		}
	}
	return "", false
}

// extractShareholderList pulls the <ul class="list-group"> under the
// "Shareholders/Ownership" heading, when present. Each item's link target is
// kept so a parent NIPT can be recovered from the href.
func extractShareholderList(doc *goquery.Document) []ListedShareholder {
	var heading *goquery.Selection
	doc.Find("span").EachWithBreak(func(_ int, span *goquery.Selection) bool {
		text := span.Text()
		if strings.Contains(text, "Shareholders") || strings.Contains(text, "Ortakë") {
			heading = span
			return false
		}
		return true
	})
	if heading == nil {
		return nil
	}

	parent := heading.Closest("div.title-divider")
	if parent.Length() == 0 {
		parent = heading.Closest("div")
	}
	list := parent.NextAllFiltered("ul.list-group").First()
	if list.Length() == 0 {
		list = parent.Parent().Find("ul.list-group").First()
	}
	if list.Length() == 0 {
		return nil
	}

	var items []ListedShareholder
	list.Find("li.list-group-item").Each(func(_ int, li *goquery.Selection) {
		item := ListedShareholder{}
		link := li.Find("a").First()
		if link.Length() > 0 {
			item.Text = strings.TrimSpace(link.Text())
			item.Href, _ = link.Attr("href")
		} else {
			item.Text = strings.TrimSpace(li.Text())
		}
		if len(item.Text) < 2 {
			return
		}
		items = append(items, item)
	})
	return items
}
