package extract

import (
	"strings"
	"testing"
)

func TestHTMLPrefersMainContainer(t *testing.T) {
	doc := `<html><head><title>Visa Rules</title></head><body>
<nav>Skip me</nav>
<main><p>Applicants must hold a valid passport.</p></main>
<footer>Skip me too</footer>
</body></html>`

	text, err := HTML(doc)
	if err != nil {
		t.Fatalf("HTML() error = %v", err)
	}
	if !strings.Contains(text, "Applicants must hold a valid passport.") {
		t.Errorf("expected main content in output, got %q", text)
	}
	if strings.Contains(text, "Skip me") {
		t.Errorf("expected stripped nav/footer content to be absent, got %q", text)
	}
}

func TestHTMLMatchesPostBodyClassContainer(t *testing.T) {
	doc := `<html><body>
<nav>Skip me</nav>
<div class="post-body"><p>Work permits require an employer sponsor.</p></div>
<footer>Skip me too</footer>
</body></html>`

	text, err := HTML(doc)
	if err != nil {
		t.Fatalf("HTML() error = %v", err)
	}
	if !strings.Contains(text, "Work permits require an employer sponsor.") {
		t.Errorf("expected post-body div content in output, got %q", text)
	}
	if strings.Contains(text, "Skip me") {
		t.Errorf("expected stripped nav/footer content to be absent, got %q", text)
	}
}

func TestHTMLMatchesEntryClassContainer(t *testing.T) {
	doc := `<html><body>
<nav>Skip me</nav>
<div class="entry"><p>Student visas require proof of enrollment.</p></div>
<footer>Skip me too</footer>
</body></html>`

	text, err := HTML(doc)
	if err != nil {
		t.Fatalf("HTML() error = %v", err)
	}
	if !strings.Contains(text, "Student visas require proof of enrollment.") {
		t.Errorf("expected entry div content in output, got %q", text)
	}
	if strings.Contains(text, "Skip me") {
		t.Errorf("expected stripped nav/footer content to be absent, got %q", text)
	}
}

func TestHTMLFallsBackToBodyWhenNoContainerMatches(t *testing.T) {
	doc := `<html><body><p>Whole page is the container.</p></body></html>`

	text, err := HTML(doc)
	if err != nil {
		t.Fatalf("HTML() error = %v", err)
	}
	if !strings.Contains(text, "Whole page is the container.") {
		t.Errorf("expected body fallback content in output, got %q", text)
	}
}

func TestHTMLCollapsesBlankLines(t *testing.T) {
	doc := "<html><body><main><p>A</p>\n\n\n\n<p>B</p></main></body></html>"
	text, err := HTML(doc)
	if err != nil {
		t.Fatalf("HTML() error = %v", err)
	}
	if strings.Contains(text, "\n\n\n") {
		t.Errorf("expected no run of 3+ newlines, got %q", text)
	}
}

func TestHTMLMetadataPrefersHeaderOverMetaTag(t *testing.T) {
	doc := `<html><head><title>X</title><meta name="last-modified" content="2024-01-01"></head><body></body></html>`
	md, err := HTMLMetadata(doc, "2024-06-01T00:00:00Z")
	if err != nil {
		t.Fatalf("HTMLMetadata() error = %v", err)
	}
	if md.LastModified != "2024-06-01T00:00:00Z" {
		t.Errorf("expected header value to win, got %q", md.LastModified)
	}
	if md.PageTitle != "X" {
		t.Errorf("expected page title X, got %q", md.PageTitle)
	}
}
