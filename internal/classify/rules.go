// ABOUTME: Ordered keyword rule table for support message triage
// ABOUTME: Each rule carries a fixed confidence, agent reply templates and an escalation base

package classify

// Category is the triage bucket of a visitor message
type Category string

const (
	Greeting          Category = "greeting"
	CourseInquiry     Category = "course_inquiry"
	FinancialInquiry  Category = "financial_inquiry"
	EnrollmentInquiry Category = "enrollment_inquiry"
	ContactRequest    Category = "contact_request"
	Complaint         Category = "complaint"
	Compliment        Category = "compliment"
	Other             Category = "other"
)

// Categories lists every category in evaluation order, Other last.
var Categories = []Category{
	Greeting,
	CourseInquiry,
	FinancialInquiry,
	EnrollmentInquiry,
	ContactRequest,
	Complaint,
	Compliment,
	Other,
}

type rule struct {
	category      Category
	keywords      []string
	confidence    int
	replies       [3]string
	requiresHuman bool
}

// rules is evaluated top to bottom; the first rule with a keyword hit wins.
// Keywords are matched on whole words after normalization.
var rules = []rule{
	{
		category:   Greeting,
		keywords:   []string{"oi", "ola", "bom dia", "boa tarde", "boa noite", "e ai", "hello", "hi", "hey", "saudacoes"},
		confidence: 95,
		replies: [3]string{
			"Olá! Como posso ajudar você hoje?",
			"Oi! Seja bem-vindo. Em que posso ser útil?",
			"Olá! Fico feliz em falar com você. Qual é a sua dúvida?",
		},
	},
	{
		category:   CourseInquiry,
		keywords:   []string{"curso", "cursos", "disciplina", "disciplinas", "aula", "aulas", "conteudo", "grade curricular", "modulo", "modulos", "certificado", "carga horaria", "professor"},
		confidence: 85,
		replies: [3]string{
			"Temos diversos cursos disponíveis. Qual área desperta o seu interesse?",
			"Posso enviar a grade curricular completa do curso. Deseja recebê-la?",
			"Todos os cursos incluem certificado de conclusão. Quer saber mais detalhes?",
		},
	},
	{
		category:   FinancialInquiry,
		keywords:   []string{"preco", "precos", "valor", "valores", "pagamento", "pagar", "boleto", "mensalidade", "desconto", "parcela", "parcelas", "parcelamento", "cartao", "pix", "reembolso", "quanto custa"},
		confidence: 85,
		replies: [3]string{
			"Os valores variam conforme o curso. Qual curso você está considerando?",
			"Aceitamos boleto, cartão de crédito e Pix, com parcelamento disponível.",
			"Posso verificar as condições de desconto vigentes para você.",
		},
	},
	{
		category:   EnrollmentInquiry,
		keywords:   []string{"matricula", "matricular", "rematricula", "inscricao", "inscrever", "inscrevo", "cadastro", "cadastrar", "vaga", "vagas", "processo seletivo"},
		confidence: 85,
		replies: [3]string{
			"A matrícula pode ser feita online em poucos minutos. Posso enviar o link?",
			"Para se matricular, você precisa de um documento com foto e CPF.",
			"As inscrições estão abertas. Deseja que eu reserve sua vaga?",
		},
	},
	{
		category:   ContactRequest,
		keywords:   []string{"atendente", "atendentes", "falar com", "contato", "telefone", "whatsapp", "email", "e mail", "ligar", "ligacao", "humano", "pessoa"},
		confidence: 90,
		replies: [3]string{
			"Vou transferir você para um atendente agora mesmo.",
			"Um de nossos atendentes entrará em contato em breve.",
			"Pode deixar seu telefone ou e-mail para retornarmos o contato?",
		},
		requiresHuman: true,
	},
	{
		category:   Complaint,
		keywords:   []string{"reclamacao", "reclamar", "problema", "problemas", "insatisfeito", "insatisfeita", "pessimo", "pessima", "ruim", "nao funciona", "erro", "absurdo", "decepcionado", "decepcionada"},
		confidence: 80,
		replies: [3]string{
			"Sinto muito pelo transtorno. Pode me contar mais detalhes do ocorrido?",
			"Lamentamos a situação. Vou encaminhar o seu caso para a nossa equipe.",
			"Entendo a sua insatisfação e vamos resolver isso o quanto antes.",
		},
		requiresHuman: true,
	},
	{
		category:   Compliment,
		keywords:   []string{"obrigado", "obrigada", "parabens", "excelente", "otimo", "otima", "adorei", "gostei", "maravilhoso", "muito bom", "agradeco"},
		confidence: 90,
		replies: [3]string{
			"Muito obrigado pelo retorno! Ficamos felizes em ajudar.",
			"Agradecemos o seu elogio, ele será compartilhado com a equipe.",
			"Que bom saber disso! Precisa de mais alguma coisa?",
		},
	},
}

var otherRule = rule{
	category:   Other,
	confidence: 30,
	replies: [3]string{
		"Pode me dar mais detalhes sobre a sua dúvida?",
		"Não tenho certeza se entendi. Poderia reformular a pergunta?",
		"Vou verificar essa informação e já retorno.",
	},
}

// humanRequestPhrases escalate regardless of the matched category.
var humanRequestPhrases = []string{
	"falar com um atendente",
	"falar com atendente",
	"falar com uma pessoa",
	"falar com alguem",
	"falar com um humano",
	"atendente humano",
	"atendimento humano",
	"pessoa real",
	"quero um humano",
}
