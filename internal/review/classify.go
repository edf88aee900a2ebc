package review

import (
	"strings"
	"unicode"

	"github.com/renandiiias/build-automated-outreach/internal/outreach/domain"
)

// Intents attached to replies classified as other.
const (
	IntentObjectionPrice = "objection_price"
	IntentNotNow         = "not_now"
	IntentObjectionTrust = "objection_trust"
)

// Classification is an advisory label. It never changes lead state by itself.
type Classification struct {
	Label      domain.Decision `json:"label"`
	Confidence float64         `json:"confidence"`
	Intent     string          `json:"intent,omitempty"`
}

var optOutWords = map[string]struct{}{
	"parar": {}, "sair": {}, "stop": {}, "unsubscribe": {}, "cancelar": {}, "remove": {},
}

var positiveWords = []string{"sim", "quero", "pode", "interesse", "interested", "ok", "yes", "sure"}

var positivePhrases = []string{"sounds good", "let's do it", "go ahead", "send it"}

var intentRules = []struct {
	intent     string
	confidence float64
	needles    []string
}{
	{IntentObjectionPrice, 0.8, []string{"price", "expensive", "preco", "preço", "caro"}},
	{IntentNotNow, 0.8, []string{"later", "not now", "depois", "agora nao", "agora não"}},
	{IntentObjectionTrust, 0.75, []string{"trust", "guarantee", "confi", "garantia"}},
}

// Classify labels a sanitized reply. Opt-out requires the whole message to be
// an opt-out word; positive keywords match whole words.
func Classify(text string) Classification {
	t := strings.ToLower(strings.TrimSpace(text))
	if _, ok := optOutWords[strings.Trim(t, ".!? ")]; ok {
		return Classification{Label: domain.DecisionOptOut, Confidence: 0.99}
	}

	words := strings.FieldsFunc(t, func(r rune) bool { return !unicode.IsLetter(r) && r != '\'' })
	for _, w := range words {
		for _, p := range positiveWords {
			if w == p {
				return Classification{Label: domain.DecisionPositive, Confidence: 0.85}
			}
		}
	}
	for _, phrase := range positivePhrases {
		if strings.Contains(t, phrase) {
			return Classification{Label: domain.DecisionPositive, Confidence: 0.85}
		}
	}

	for _, rule := range intentRules {
		for _, n := range rule.needles {
			if strings.Contains(t, n) {
				return Classification{Label: domain.DecisionOther, Confidence: rule.confidence, Intent: rule.intent}
			}
		}
	}
	return Classification{Label: domain.DecisionOther, Confidence: 0.5}
}

// DetectPlan reads a plan choice from a reply, defaulting to COMPLETO.
func DetectPlan(text string) domain.Plan {
	t := strings.ToLower(text)
	for _, k := range []string{"simples", "simple"} {
		if strings.Contains(t, k) {
			return domain.PlanSimples
		}
	}
	return domain.PlanCompleto
}
