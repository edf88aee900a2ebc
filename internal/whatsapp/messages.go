package whatsapp

import "fmt"

// Text holds what a WhatsApp message can show.
type Text struct {
	BusinessName  string
	HasWebsite    bool
	PT            bool
	Step          int
	PriceCompleto string
	PriceSimples  string
	PreviewURL    string
}

// ConsentRequest asks permission to send a free concept.
func ConsentRequest(t Text) string {
	if t.PT {
		pitch := "Vi o perfil de voces no Google e consigo montar uma pagina de alta conversao."
		if t.HasWebsite {
			pitch = "Vi o site atual de voces e consigo fazer uma versao muito mais impactante para conversao."
		}
		return fmt.Sprintf("Oi %s! %s Quer que eu te envie uma ideia gratuita? Responde SIM. Para parar, responde PARAR.", t.BusinessName, pitch)
	}
	pitch := "I found your Google listing and I can build a high-converting page for your business."
	if t.HasWebsite {
		pitch = "I saw your current website and I can build a way more impactful version for conversions."
	}
	return fmt.Sprintf("Hi %s! %s Want me to send a free concept? Reply YES. To stop messages, reply STOP.", t.BusinessName, pitch)
}

// FollowUp nudges after silence; step 2 and later is the last touch.
func FollowUp(t Text) string {
	switch {
	case t.PT && t.Step >= 2:
		return fmt.Sprintf("%s, ultimo toque sobre o conceito gratuito. Se quiser, responde SIM e te envio hoje. Para parar, responde PARAR.", t.BusinessName)
	case t.PT:
		return fmt.Sprintf("%s, ainda tem interesse em receber o conceito gratuito? Posso preparar hoje. Para parar mensagens, responde PARAR.", t.BusinessName)
	case t.Step >= 2:
		return fmt.Sprintf("%s, quick last follow-up on the free concept. If you want it, reply YES and I send it today. To stop, reply STOP.", t.BusinessName)
	}
	return fmt.Sprintf("%s, still open to receiving the free concept? I can prep it quickly today. To stop messages, reply STOP.", t.BusinessName)
}

// Offer presents both plans.
func Offer(t Text) string {
	if t.PT {
		framing := "Fiz esse conceito para destacar seu negocio e converter melhor."
		if t.HasWebsite {
			framing = "Fiz esse conceito como upgrade de conversao do site atual."
		}
		head := t.BusinessName + ", seu conceito ficou pronto."
		if t.PreviewURL != "" {
			head = fmt.Sprintf("%s, seu conceito ficou pronto: %s", t.BusinessName, t.PreviewURL)
		}
		return fmt.Sprintf("%s\n\n%s\n\nOpcoes para publicar hoje:\n- COMPLETO (%s)\n- SIMPLES (%s)\n\nResponde COMPLETO ou SIMPLES. Para parar mensagens, responda PARAR.",
			head, framing, t.PriceCompleto, t.PriceSimples)
	}
	framing := "I built this to make your business stand out and convert better."
	if t.HasWebsite {
		framing = "I built this as a stronger conversion-focused upgrade to your current site."
	}
	head := t.BusinessName + ", your concept is ready."
	if t.PreviewURL != "" {
		head = fmt.Sprintf("%s, your concept is ready: %s", t.BusinessName, t.PreviewURL)
	}
	return fmt.Sprintf("%s\n\n%s\n\nOptions to publish today:\n- COMPLETE (%s)\n- SIMPLE (%s)\n\nReply COMPLETE or SIMPLE. To stop messages, reply STOP.",
		head, framing, t.PriceCompleto, t.PriceSimples)
}
