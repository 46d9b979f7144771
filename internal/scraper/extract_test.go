package scraper

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/qkbintel/registry/internal/domain"
)

const sampleDetailHTML = `<html>
<head><title>ALPHA CONSTRUCTION SHPK</title></head>
<body>
<h1>OpenCorporates Albania</h1>
<table class="table">
<tr><th>Legal Form:</th><td>Shoqëri me Përgjegjësi të Kufizuar</td></tr>
<tr><th>Status:</th><td>Aktiv</td></tr>
<tr><th>Foundation Year:</th><td>12/07/1994</td></tr>
<tr><th>Initial Capital:</th><td>14 178 593 030,00</td></tr>
<tr><th>District:</th><td>Tiranë, Durrës</td></tr>
<tr><th>Address:</th><td>Rruga e Kavajës, Tiranë</td></tr>
<tr><th>Scope:</th><td>Ndërtim banesash dhe objektesh civile.</td></tr>
<tr><th>Administrators:</th><td>Elira Meta</td></tr>
<tr><th>Parent Company / Owner:</th><td>Artan Hoxha, 51%</td></tr>
</table>
<div class="title-divider"><span>Shareholders / Ownership</span></div>
<ul class="list-group">
<li class="list-group-item"><a href="/sq/nipt/K21836229J">BETA GROUP SH.A - 49%</a></li>
</ul>
</body>
</html>`

func TestExtractFullDetailDocument(t *testing.T) {
	record, err := Extract("J61827501H", "https://example.test/en/nipt/J61827501H", sampleDetailHTML)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}

	if record.Name != "ALPHA CONSTRUCTION SHPK" {
		t.Errorf("expected name from title, got %q", record.Name)
	}
	if record.LegalForm != domain.LegalFormShpk {
		t.Errorf("expected shpk, got %s", record.LegalForm)
	}
	if record.Status != domain.StatusActive {
		t.Errorf("expected active, got %s", record.Status)
	}
	want := time.Date(1994, time.July, 12, 0, 0, 0, 0, time.UTC)
	if record.RegistrationDate == nil || !record.RegistrationDate.Equal(want) {
		t.Errorf("expected 1994-07-12, got %v", record.RegistrationDate)
	}
	if record.Capital == nil || *record.Capital != 14178593030.00 {
		t.Errorf("expected capital 14178593030, got %v", record.Capital)
	}
	if record.City != "Tiranë" {
		t.Errorf("expected first district only, got %q", record.City)
	}
	if record.OwnerText != "Artan Hoxha, 51%" {
		t.Errorf("owner block not captured, got %q", record.OwnerText)
	}
	if record.AdminText != "Elira Meta" {
		t.Errorf("admin block not captured, got %q", record.AdminText)
	}
	if len(record.ListedShareholders) != 1 {
		t.Fatalf("expected 1 listed shareholder, got %d", len(record.ListedShareholders))
	}
	if record.ListedShareholders[0].Href != "/sq/nipt/K21836229J" {
		t.Errorf("shareholder href not captured, got %q", record.ListedShareholders[0].Href)
	}
}

func TestExtractFailsOnEmptyBody(t *testing.T) {
	_, err := Extract("J61827501H", "https://example.test", "   ")
	var ee *ExtractionError
	if !errors.As(err, &ee) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
}

func TestExtractFailsWithoutInfoTable(t *testing.T) {
	_, err := Extract("J61827501H", "https://example.test", "<html><title>X</title><body><p>nothing</p></body></html>")
	var ee *ExtractionError
	if !errors.As(err, &ee) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
	if ee.NIPT != "J61827501H" {
		t.Errorf("error should carry the identifier, got %q", ee.NIPT)
	}
}

func TestExtractFailsWithoutTitle(t *testing.T) {
	html := `<html><body><table><tr><th>Status:</th><td>Aktiv</td></tr></table></body></html>`
	_, err := Extract("J61827501H", "https://example.test", html)
	var ee *ExtractionError
	if !errors.As(err, &ee) {
		t.Fatalf("expected ExtractionError, got %v", err)
	}
}

func TestExtractCapsRawDocument(t *testing.T) {
	var b strings.Builder
	b.WriteString(`<html><head><title>BIG CO</title></head><body><table><tr><th>Status:</th><td>Aktiv</td></tr></table>`)
	b.WriteString(strings.Repeat("<p>padding padding padding</p>", 5000))
	b.WriteString("</body></html>")

	record, err := Extract("J61827501H", "https://example.test", b.String())
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if len(record.RawHTML) != rawDocumentCap {
		t.Errorf("raw document should be capped at %d bytes, got %d", rawDocumentCap, len(record.RawHTML))
	}
}

func TestExtractAlbanianLabels(t *testing.T) {
	html := `<html><head><title>BESA SHPK</title></head><body><table>
<tr><th>Forma Ligjore:</th><td>Shoqëri Aksionare</td></tr>
<tr><th>Statusi:</th><td>Çregjistruar</td></tr>
<tr><th>Rrethi:</th><td>Vlorë</td></tr>
</table></body></html>`

	record, err := Extract("J61827501H", "https://example.test", html)
	if err != nil {
		t.Fatalf("extract failed: %v", err)
	}
	if record.LegalForm != domain.LegalFormSha {
		t.Errorf("expected sha from Albanian label, got %s", record.LegalForm)
	}
	if record.Status != domain.StatusDissolved {
		t.Errorf("expected dissolved, got %s", record.Status)
	}
	if record.City != "Vlorë" {
		t.Errorf("expected Vlorë, got %q", record.City)
	}
}
