package chatbot

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractName(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"João Silva", "João Silva", true},
		{"maria", "Maria", true},
		{"Meu nome é ana paula", "Ana Paula", true},
		{"Oi, me chamo Carlos.", "Carlos", true},
		{"sou a Beatriz de Souza", "Beatriz de Souza", true},
		{"my name is john smith", "John Smith", true},
		{"meu nome é João Silva e meu telefone é 61999998888", "João Silva", true},
		{"João Silva, (61) 99999-8888", "João Silva", true},
		{"sim", "", false},
		{"whatsapp", "", false},
		{"Oi", "", false},
		{"bom dia", "", false},
		{"12345", "", false},
		{"!!!", "", false},
		{"", "", false},
		{"quero saber o preço do arroz", "", false},
		{"sou de Brasília", "", false},
		{"x", "", false},
		{"joão da silva", "João da Silva", true},
		{"Maria das Dores Souza", "Maria das Dores Souza", true},
		{"Ana da", "", false},
		{"da Silva", "", false},
		{"Tem feijão?", "", false},
		{"Quanto custa?", "", false},
		{"quanto custa", "", false},
		{"Ana?", "", false},
		{"onde fica", "", false},
		{"vocês entregam", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ExtractName(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractName_NoFalsePositivesOnSymbolsAndDigits(t *testing.T) {
	for _, input := range []string{"0", "42", "(61) 99999-8888", "#$%", "--", "3.14", "@@", "1 2"} {
		_, ok := ExtractName(input)
		assert.False(t, ok, input)
	}
}

func TestExtractPhone(t *testing.T) {
	tests := []struct {
		input string
		want  string
		ok    bool
	}{
		{"(61) 99999-8888", "(61) 99999-8888", true},
		{"meu número é 61999998888", "(61) 99999-8888", true},
		{"61 9999-8888", "(61) 9999-8888", true},
		{"61.99999.8888 obrigado", "(61) 99999-8888", true},
		{"+55 61 99999-8888", "(61) 99999-8888", true},
		{"(11)3333-4444", "(11) 3333-4444", true},
		{"999998888", "", false},
		{"619999988881", "", false},
		{"5561999998888", "", false},
		{"sem telefone", "", false},
		{"12/03/2024", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, ok := ExtractPhone(tt.input)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExtractPhone_AllSeparators(t *testing.T) {
	for _, sep := range []string{"", " ", "-", ".", "  "} {
		got, ok := ExtractPhone("liga no 61" + sep + "99999" + sep + "8888 por favor")
		assert.True(t, ok, sep)
		assert.Equal(t, "(61) 99999-8888", got)

		got, ok = ExtractPhone("fixo 61" + sep + "3333" + sep + "4444")
		assert.True(t, ok, sep)
		assert.Equal(t, "(61) 3333-4444", got)
	}
}

func TestExtractEmail(t *testing.T) {
	got, ok := ExtractEmail("contact me at a@b.com please")
	assert.True(t, ok)
	assert.Equal(t, "a@b.com", got)

	got, ok = ExtractEmail("Meu e-mail: Joao.Silva@Empresa.com.br.")
	assert.True(t, ok)
	assert.Equal(t, "joao.silva@empresa.com.br", got)

	_, ok = ExtractEmail("no email here")
	assert.False(t, ok)

	_, ok = ExtractEmail("joao@localhost")
	assert.False(t, ok)
}

func TestExtractorsWithDefaults(t *testing.T) {
	custom := Extractors{Phone: func(string) (string, bool) { return "fixed", true }}.withDefaults()
	v, ok := custom.Phone("anything")
	assert.True(t, ok)
	assert.Equal(t, "fixed", v)
	assert.NotNil(t, custom.Name)
	assert.NotNil(t, custom.Email)
}
