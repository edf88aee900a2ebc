package sanitize

import "testing"

func TestTextPlain(t *testing.T) {
	if got := Text("  Sim,   quero saber mais  "); got != "Sim, quero saber mais" {
		t.Fatalf("Text() = %q", got)
	}
}

func TestTextDropsQuotedHistory(t *testing.T) {
	body := `<html><body><div>Pode parar de mandar</div>` +
		`<div class="gmail_quote">On Mon you wrote: <blockquote>Oferta especial</blockquote></div>` +
		`<script>alert(1)</script></body></html>`

	got := Text(body)
	if got != "Pode parar de mandar" {
		t.Fatalf("Text() = %q, want only the reply line", got)
	}
}

func TestStripHTMLEncodedTags(t *testing.T) {
	if got := StripHTML("ok &lt;script&gt;x&lt;/script&gt;"); got != "ok x" {
		t.Fatalf("StripHTML() = %q", got)
	}
}
