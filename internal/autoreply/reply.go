// ABOUTME: Canonical bot reply selection per classification branch
// ABOUTME: Greeting, general queue and department hand-off each have one fixed reply

package autoreply

import "github.com/2389/coven-desk/internal/classify"

const (
	GreetingReply     = "Olá! Seja bem-vindo. Como podemos ajudar você hoje?"
	GeneralQueueReply = "Obrigado pelo contato! Um atendente irá responder em breve."
	DepartmentReply   = "Estamos encaminhando você para um atendente especializado..."
)

// CanonicalReply picks the single automatic reply for a message. department
// is the routing result, empty when no department was resolved.
func CanonicalReply(category classify.Category, department string) string {
	switch {
	case category == classify.Greeting:
		return GreetingReply
	case department == "":
		return GeneralQueueReply
	default:
		return DepartmentReply
	}
}
