// ABOUTME: Tests for the message classification engine
// ABOUTME: Covers rule priority, normalization, word boundaries and escalation overrides

package classify

import (
	"math/rand/v2"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify_Categories(t *testing.T) {
	tests := []struct {
		name string
		text string
		want Category
	}{
		{"greeting", "Oi, bom dia", Greeting},
		{"greeting english", "hello there", Greeting},
		{"course", "Quais cursos vocês oferecem?", CourseInquiry},
		{"financial", "Qual o valor da mensalidade?", FinancialInquiry},
		{"enrollment", "Como faço minha matrícula?", EnrollmentInquiry},
		{"contact", "Qual o telefone de vocês?", ContactRequest},
		{"complaint", "Estou muito insatisfeito com a plataforma", Complaint},
		{"compliment", "Parabéns pelo ótimo trabalho", Compliment},
		{"other", "Qual a previsão do tempo amanhã?", Other},
		{"greeting wins over course", "Olá, quero saber dos cursos", Greeting},
		{"course wins over financial", "Quanto custa o curso de inglês?", CourseInquiry},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.text).Category)
		})
	}
}

func TestClassify_EmptyIsOther(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t", "?!..."} {
		got := Classify(text)
		assert.Equal(t, Other, got.Category, "text %q", text)
		assert.False(t, got.RequiresHuman, "text %q", text)
	}
}

func TestClassify_AttendantRequest(t *testing.T) {
	got := Classify("Quero falar com um atendente")

	assert.Equal(t, ContactRequest, got.Category)
	assert.True(t, got.RequiresHuman)
}

func TestClassify_LongTextRequiresHuman(t *testing.T) {
	text := strings.Repeat("lorem ipsum dolor sit amet ", 10)
	assert.Greater(t, len([]rune(text)), LongMessageRunes)

	got := Classify(text)
	assert.Equal(t, Other, got.Category)
	assert.True(t, got.RequiresHuman)

	greeting := Classify("Oi! " + text)
	assert.Equal(t, Greeting, greeting.Category)
	assert.True(t, greeting.RequiresHuman)
}

func TestClassify_LongTextWithoutWordsRequiresHuman(t *testing.T) {
	for _, text := range []string{strings.Repeat("?", 201), strings.Repeat("😀", 201)} {
		got := Classify(text)
		assert.Equal(t, Other, got.Category)
		assert.True(t, got.RequiresHuman, "%d runes", len([]rune(text)))
	}

	assert.False(t, Classify(strings.Repeat("?", 200)).RequiresHuman)
}

func TestClassify_LengthCountsRunes(t *testing.T) {
	// 150 two-byte runes is over 200 bytes but under the limit
	text := strings.Repeat("é", 150)
	assert.False(t, Classify(text).RequiresHuman)
}

func TestClassify_HumanPhraseOverridesCategory(t *testing.T) {
	got := Classify("Bom dia, preciso de atendimento humano")

	assert.Equal(t, Greeting, got.Category)
	assert.True(t, got.RequiresHuman)
}

func TestClassify_EscalationBase(t *testing.T) {
	assert.True(t, Classify("Tenho uma reclamação").RequiresHuman)
	assert.True(t, Classify("me passa o whatsapp").RequiresHuman)
	assert.False(t, Classify("Quais disciplinas tem no curso?").RequiresHuman)
	assert.False(t, Classify("obrigada").RequiresHuman)
}

func TestClassify_AccentAndCaseInsensitive(t *testing.T) {
	for _, text := range []string{"MATRÍCULA", "matricula", "Matrícula", "mAtRiCuLa"} {
		assert.Equal(t, EnrollmentInquiry, Classify(text).Category, "text %q", text)
	}
}

func TestClassify_WholeWords(t *testing.T) {
	// "oi" inside "oito" and "pix" inside "pixel" must not match
	assert.Equal(t, Other, Classify("Tenho oito perguntas").Category)
	assert.Equal(t, Other, Classify("um pixel a mais").Category)
}

func TestClassify_ThreeSuggestedReplies(t *testing.T) {
	for _, text := range []string{"oi", "curso", "boleto", "vaga", "contato", "erro", "adorei", "xyz", ""} {
		got := Classify(text)
		for i, reply := range got.SuggestedReplies {
			assert.NotEmpty(t, reply, "text %q reply %d", text, i)
		}
		assert.GreaterOrEqual(t, got.Confidence, 0)
		assert.LessOrEqual(t, got.Confidence, 100)
	}
}

func TestClassify_TotalOverRandomInput(t *testing.T) {
	alphabet := []rune("abcdeéãçõ oiOI!?.,\n0123456789")
	words := []string{"oi", "curso", "pix", "vaga", "atendente", "ruim", "obrigado", "falar com uma pessoa"}
	rng := rand.New(rand.NewPCG(1, 2))

	for range 500 {
		var b strings.Builder
		n := rng.IntN(400)
		for b.Len() < n {
			if rng.IntN(8) == 0 {
				b.WriteString(" " + words[rng.IntN(len(words))] + " ")
				continue
			}
			b.WriteRune(alphabet[rng.IntN(len(alphabet))])
		}
		text := b.String()

		got := Classify(text)
		assert.True(t, slices.Contains(Categories, got.Category), "unknown category for %q", text)
		if len([]rune(text)) > LongMessageRunes {
			assert.True(t, got.RequiresHuman, "long text must escalate: %q", text)
		}
		if got.Category == Complaint || got.Category == ContactRequest {
			assert.True(t, got.RequiresHuman)
		}
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "ola tudo bem", Normalize("  Olá,   TUDO bem?! "))
	assert.Equal(t, "e mail", Normalize("e-mail"))
	assert.Equal(t, "", Normalize("..."))
}

func TestRulesAreNormalized(t *testing.T) {
	for _, r := range rules {
		for _, kw := range r.keywords {
			assert.Equal(t, Normalize(kw), kw, "keyword %q of %s", kw, r.category)
		}
	}
	for _, p := range humanRequestPhrases {
		assert.Equal(t, Normalize(p), p)
	}
}
