package handler

import (
	"html/template"
	"net/http"

	"github.com/renandiiias/build-automated-outreach/internal/outreach/service"
	"github.com/renandiiias/build-automated-outreach/platform/apperr"

	"github.com/gin-gonic/gin"
)

// PublicHandler serves the unauthenticated unsubscribe link.
type PublicHandler struct {
	svc *service.Service
}

func NewPublicHandler(svc *service.Service) *PublicHandler {
	return &PublicHandler{svc: svc}
}

func (h *PublicHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/unsubscribe", h.Unsubscribe)
	rg.POST("/unsubscribe", h.Unsubscribe)
}

var unsubscribePage = template.Must(template.New("unsubscribe").Parse(`<!doctype html>
<html><head><meta charset="utf-8"><meta name="viewport" content="width=device-width, initial-scale=1"><title>{{.Title}}</title></head>
<body style="font-family:sans-serif;max-width:32rem;margin:4rem auto;padding:0 1rem">
<h1>{{.Title}}</h1>
<p>{{.Body}}</p>
</body></html>`))

type pageData struct {
	Title string
	Body  string
}

// Unsubscribe answers GET clicks and one-click POSTs (RFC 8058) alike.
func (h *PublicHandler) Unsubscribe(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		h.render(c, http.StatusBadRequest, pageData{
			Title: "Link inválido / Invalid link",
			Body:  "Este link de descadastro está incompleto. This unsubscribe link is incomplete.",
		})
		return
	}
	if _, err := h.svc.Unsubscribe(c.Request.Context(), token); err != nil {
		status := http.StatusInternalServerError
		body := "Não foi possível concluir agora, tente novamente. We could not complete this right now, please try again."
		switch {
		case apperr.Is(err, apperr.KindValidation):
			status = http.StatusBadRequest
			body = "Este link expirou ou é inválido. This link is invalid or expired."
		case apperr.Is(err, apperr.KindNotFound):
			status = http.StatusNotFound
			body = "Contato não encontrado. Contact not found."
		}
		h.render(c, status, pageData{Title: "Descadastro / Unsubscribe", Body: body})
		return
	}
	h.render(c, http.StatusOK, pageData{
		Title: "Descadastro confirmado / Unsubscribed",
		Body:  "Você não receberá mais mensagens nossas. You will not hear from us again.",
	})
}

func (h *PublicHandler) render(c *gin.Context, status int, data pageData) {
	c.Header("Content-Type", "text/html; charset=utf-8")
	c.Status(status)
	_ = unsubscribePage.Execute(c.Writer, data)
}
