package service

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/renandiiias/build-automated-outreach/internal/leadenrichment/client"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const page = `<!doctype html>
<html><head><style>.x{background:url(logo@2x.png)}</style><script>var a="tracker@cdn.example";</script></head>
<body>
<h1>Padaria Sol</h1>
<a href="mailto:Contato@PadariaSol.com.br?subject=Oi">Fale conosco</a>
<a href="tel:+55 11 98765-4321">Ligue</a>
<p>Vendas: vendas@padariasol.com.br. Telefone fixo (11) 3456-7890</p>
<img src="/img/banner@2x.png">
</body></html>`

func TestExtractFindsLinksAndText(t *testing.T) {
	got := Extract(page)

	assert.Equal(t, []string{"contato@padariasol.com.br", "vendas@padariasol.com.br"}, got.Emails)
	assert.Equal(t, []string{"+551134567890", "+5511987654321"}, got.Phones)
}

func TestExtractCapsResults(t *testing.T) {
	html := "<p>"
	for _, c := range "abcdefghijkl" {
		html += string(c) + "@loja.example "
	}
	html += "</p>"

	got := Extract(html)
	assert.Len(t, got.Emails, maxContacts)
	assert.Equal(t, "a@loja.example", got.Emails[0])
	assert.True(t, Contacts{}.Empty())
	assert.False(t, got.Empty())
}

func TestWebsiteContactsFetchesOnceThenCaches(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		assert.Contains(t, r.UserAgent(), "LeadGenerator")
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(page))
	}))
	defer srv.Close()

	svc := New(client.NewWithHTTPClient(srv.Client(), nil), nil)

	first, err := svc.WebsiteContacts(context.Background(), srv.URL+"/")
	require.NoError(t, err)
	assert.Equal(t, "website", first.Provider)
	assert.Len(t, first.Emails, 2)

	second, err := svc.WebsiteContacts(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), hits.Load())
}

func TestWebsiteContactsErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	svc := New(client.NewWithHTTPClient(srv.Client(), nil), nil)

	_, err := svc.WebsiteContacts(context.Background(), srv.URL)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 403")

	_, err = svc.WebsiteContacts(context.Background(), "ftp://padaria.example")
	assert.ErrorIs(t, err, client.ErrInvalidURL)
}
