package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/renandiiias/build-automated-outreach/internal/outreach/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const unsubscribeURL = "https://outreach.example/unsubscribe?token=abc"

func TestRenderConsentRequest(t *testing.T) {
	subject, body, err := Render(domain.MessageConsentRequest, Content{
		BusinessName:   "Padaria & Cia",
		City:           "Campinas",
		PT:             true,
		UnsubscribeURL: unsubscribeURL,
	})
	require.NoError(t, err)
	assert.Equal(t, "Padaria & Cia: posso te enviar uma ideia gratuita da sua pagina?", subject)
	assert.Contains(t, body, "Padaria &amp; Cia")
	assert.Contains(t, body, "Campinas")
	assert.Contains(t, body, unsubscribeURL[:40])
	assert.Contains(t, body, `lang="pt-BR"`)
}

func TestRenderFollowUpSteps(t *testing.T) {
	subject, _, err := Render(domain.MessageFollowUp, Content{BusinessName: "Acme", Step: 1, UnsubscribeURL: unsubscribeURL})
	require.NoError(t, err)
	assert.Equal(t, "Acme: 3 fast upgrades to get more enquiries", subject)

	subject, body, err := Render(domain.MessageFollowUp, Content{BusinessName: "Acme", Step: 2, UnsubscribeURL: unsubscribeURL})
	require.NoError(t, err)
	assert.Equal(t, "Acme: should I close this thread?", subject)
	assert.Contains(t, body, "last follow-up")
}

func TestRenderOfferShowsBothPrices(t *testing.T) {
	_, body, err := Render(domain.MessageOffer, Content{
		BusinessName:   "Acme",
		PriceCompleto:  "EUR 300",
		PriceSimples:   "EUR 100",
		UnsubscribeURL: unsubscribeURL,
	})
	require.NoError(t, err)
	assert.Contains(t, body, "Complete: EUR 300")
	assert.Contains(t, body, "Simple: EUR 100")
	assert.NotContains(t, body, "concept is ready", "no preview link given")
}

func TestRenderRequiresUnsubscribeLink(t *testing.T) {
	_, _, err := Render(domain.MessageConsentRequest, Content{BusinessName: "Acme"})
	assert.Error(t, err)
	_, _, err = Render("PROMO", Content{BusinessName: "Acme", UnsubscribeURL: unsubscribeURL})
	assert.Error(t, err)
}

func TestBrevoSenderPostsMessage(t *testing.T) {
	var got brevoEmailRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-1", r.Header.Get("api-key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"messageId":"<abc@brevo>"}`))
	}))
	defer srv.Close()

	b := NewBrevoSender("key-1", "hello@outreach.example", "Outreach")
	b.endpoint = srv.URL
	id, err := b.Send(context.Background(), Message{To: "dono@acme.com", Subject: "Oi", HTML: "<p>Oi</p>", UnsubscribeURL: unsubscribeURL})
	require.NoError(t, err)
	assert.Equal(t, "<abc@brevo>", id)
	assert.Equal(t, "dono@acme.com", got.To[0].Email)
	assert.True(t, strings.HasPrefix(got.Headers["List-Unsubscribe"], "<https://"))
}

func TestBrevoSenderFailsOnErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "bad key", http.StatusUnauthorized)
	}))
	defer srv.Close()

	b := NewBrevoSender("bad", "hello@outreach.example", "Outreach")
	b.endpoint = srv.URL
	_, err := b.Send(context.Background(), Message{To: "dono@acme.com"})
	assert.ErrorContains(t, err, "status 401")
}
