package triage

// Canned reply templates, one per intent. The budget template must always
// ask for the four pieces of information sales needs to prepare a quote:
// average consumption, installation CEP, electrical phase, contact phone.
const (
	greetingReply = "Olá! Como posso ajudar?"
	statusReply   = "Estamos verificando seu pedido. Em breve retornaremos."
	humanReply    = "Claro, vou encaminhar para um atendente humano."
	fallbackReply = "Desculpe, não entendi. Pode reformular?"

	budgetReply = "Ótimo! Para preparar seu orçamento, preciso de alguns dados:\n" +
		"- consumo médio mensal em kWh (veja na conta de luz)\n" +
		"- CEP do local de instalação\n" +
		"- fase da instalação elétrica (monofásica, bifásica ou trifásica)\n" +
		"- telefone para contato"
)

var defaultTemplates = map[Intent]string{
	IntentGreeting: greetingReply,
	IntentBudget:   budgetReply,
	IntentStatus:   statusReply,
	IntentHuman:    humanReply,
	IntentUnknown:  fallbackReply,
}

// Composer maps an intent and retrieved snippets to the final reply text.
type Composer struct {
	templates map[Intent]string
}

// NewComposer creates a composer with the default templates. Entries in
// overrides replace individual templates.
func NewComposer(overrides map[Intent]string) *Composer {
	templates := make(map[Intent]string, len(defaultTemplates))
	for intent, text := range defaultTemplates {
		templates[intent] = text
	}
	for intent, text := range overrides {
		templates[intent] = text
	}
	return &Composer{templates: templates}
}

// Compose renders the template for the intent and, when snippets were
// retrieved, appends the top snippet after a blank line. With no snippets
// the template output is returned unchanged.
func (c *Composer) Compose(intent Intent, snippets []string) string {
	reply, ok := c.templates[intent]
	if !ok {
		reply = c.templates[IntentUnknown]
	}
	if len(snippets) > 0 {
		reply += "\n\n" + snippets[0]
	}
	return reply
}
