package chatbot

import (
	"regexp"
	"strings"
)

// ScriptKey names a table of scripted replies.
type ScriptKey string

const (
	ScriptWelcome          ScriptKey = "welcome"
	ScriptAskName          ScriptKey = "ask_name"
	ScriptAskPhone         ScriptKey = "ask_phone"
	ScriptRetryPhone       ScriptKey = "retry_phone"
	ScriptAskEmail         ScriptKey = "ask_email"
	ScriptRetryEmail       ScriptKey = "retry_email"
	ScriptDataComplete     ScriptKey = "data_complete"
	ScriptSalesIntro       ScriptKey = "sales_intro"
	ScriptExtendedIntro    ScriptKey = "extended_intro"
	ScriptClosing          ScriptKey = "closing"
	ScriptClosedNotice     ScriptKey = "closed_notice"
	ScriptFallback         ScriptKey = "fallback"
	ScriptPriceDeferral    ScriptKey = "price_deferral"
	ScriptRetryName        ScriptKey = "retry_name"
	ScriptEmailSkipped     ScriptKey = "email_skipped"
	ScriptAskEmailOptional ScriptKey = "ask_email_optional"
)

// Script maps each key to its candidate templates. Templates may reference
// {nome}, {telefone}, {email} and {empresa}.
type Script map[ScriptKey][]string

// DefaultScript returns the built-in Portuguese replies.
func DefaultScript() Script {
	return Script{
		ScriptWelcome: {
			"Olá! 👋 Bem-vindo ao {empresa}. Sou o assistente virtual e vou te ajudar com nossos produtos no atacado. Para começar, qual é o seu nome?",
			"Oi! Seja bem-vindo ao {empresa}. Antes de falarmos de produtos e preços, como posso te chamar?",
		},
		ScriptAskName: {
			"Para continuar, qual é o seu nome?",
			"Como posso te chamar?",
		},
		ScriptRetryName: {
			"Desculpe, não consegui entender seu nome. Pode me dizer só o seu nome, por favor? Por exemplo: Maria Souza.",
			"Não peguei seu nome. Pode escrever apenas o nome, como \"João Silva\"?",
		},
		ScriptAskPhone: {
			"Prazer, {nome}! Qual é o seu telefone com DDD? Assim nossa equipe pode te enviar as condições de atacado.",
			"Obrigado, {nome}! Agora me passa um telefone ou WhatsApp com DDD, por favor.",
		},
		ScriptRetryPhone: {
			"Não consegui identificar o número. Pode enviar com DDD? Exemplo: (61) 99999-8888.",
			"Hmm, esse número parece incompleto. Envie com DDD, por exemplo (11) 3333-4444 ou (61) 99999-8888.",
		},
		ScriptAskEmail: {
			"Perfeito! E qual é o seu e-mail?",
			"Anotado, {nome}! Para finalizar o cadastro, qual é o seu e-mail?",
		},
		ScriptAskEmailOptional: {
			"Anotado, {nome}! Se quiser, me passe também seu e-mail. Se preferir não informar, é só dizer \"pular\".",
		},
		ScriptRetryEmail: {
			"Esse e-mail não parece válido. Pode conferir? Exemplo: nome@empresa.com.br.",
			"Não consegui ler o e-mail. Envie no formato nome@dominio.com, por favor.",
		},
		ScriptEmailSkipped: {
			"Sem problemas, {nome}! Já tenho o que preciso para nossa equipe falar com você.",
		},
		ScriptDataComplete: {
			"Obrigado, {nome}! Seus dados foram registrados e nossa equipe entrará em contato pelo {telefone}. 😊",
			"Tudo certo, {nome}! Cadastro concluído. Um dos nossos vendedores vai falar com você em breve.",
		},
		ScriptSalesIntro: {
			"Enquanto isso, posso tirar suas dúvidas sobre nossos produtos e condições de atacado. O que você procura?",
			"Agora me conta: quais produtos te interessam? Posso ajudar com preços, unidades e disponibilidade.",
		},
		ScriptExtendedIntro: {
			"Foi ótimo conversar sobre os produtos! Se tiver mais alguma dúvida sobre entregas, pagamento ou a loja, pode perguntar.",
		},
		ScriptClosing: {
			"Obrigado pela conversa, {nome}! Nossa equipe vai entrar em contato pelo {telefone} para finalizar seu pedido. Até logo!",
			"Foi um prazer te atender, {nome}! Em breve um vendedor liga no {telefone} com todas as condições. Até mais!",
		},
		ScriptClosedNotice: {
			"Esta conversa foi encerrada. Nossa equipe entrará em contato em breve.",
		},
		ScriptFallback: {
			"Desculpe, tive um problema para responder agora. Pode repetir a pergunta em instantes?",
			"Estou com dificuldade para consultar as informações neste momento. Nossa equipe pode te ajudar diretamente pelo telefone.",
		},
		ScriptPriceDeferral: {
			"No momento não tenho a tabela de preços atualizada aqui. Nossa equipe vai te passar os valores e condições exatas pelo telefone informado.",
		},
	}
}

// merged returns the defaults overlaid with s.
func (s Script) merged() Script {
	out := DefaultScript()
	for key, templates := range s {
		if len(templates) > 0 {
			out[key] = templates
		}
	}
	return out
}

var (
	spaceBeforePunct = regexp.MustCompile(`\s+([,.!?])`)
	multiSpace       = regexp.MustCompile(`[ \t]{2,}`)
)

// interpolate fills template placeholders. Missing fields collapse cleanly.
func interpolate(template string, lead LeadRecord, business string) string {
	r := strings.NewReplacer(
		"{nome}", lead.FirstName(),
		"{telefone}", phoneOrFallback(lead.Phone),
		"{email}", lead.Email,
		"{empresa}", business,
	)
	out := r.Replace(template)
	out = spaceBeforePunct.ReplaceAllString(out, "$1")
	out = multiSpace.ReplaceAllString(out, " ")
	return strings.TrimSpace(out)
}

func phoneOrFallback(phone string) string {
	if phone == "" {
		return "telefone informado"
	}
	return phone
}
