package chat

import (
	"strings"

	"github.com/aionmedia/aion/internal/gemini"
	"github.com/aionmedia/aion/internal/memory"
)

const (
	historyLimit    = 10
	factLimit       = 5
	titleMaxRunes   = 100
	MaxMessageRunes = 10000

	acknowledgment = "Understood. I'm ready to help."
)

type factLine struct {
	key   string
	value string
}

func buildSystemInstruction(facts []factLine) string {
	var b strings.Builder
	b.WriteString("You are an AI assistant from AION Media Developers.\n")
	b.WriteString("You are helpful and precise, and you keep the context of earlier conversations.\n")
	if len(facts) > 0 {
		b.WriteString("\nUser memory:\n")
		for _, f := range facts {
			b.WriteString("- ")
			b.WriteString(f.key)
			b.WriteString(": ")
			b.WriteString(f.value)
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}
	b.WriteString("Answer clearly and concisely.")
	return b.String()
}

// buildHistory prepends the system exchange to prior messages. Prior messages must
// already be decrypted and must not include the message being sent.
func buildHistory(systemInstruction string, prior []memory.Message) []gemini.Content {
	out := make([]gemini.Content, 0, len(prior)+2)
	out = append(out,
		gemini.TextContent(gemini.RoleUser, systemInstruction),
		gemini.TextContent(gemini.RoleModel, acknowledgment),
	)
	for _, m := range prior {
		role := gemini.RoleModel
		if m.Role == memory.RoleUser {
			role = gemini.RoleUser
		}
		out = append(out, gemini.TextContent(role, m.Content))
	}
	return out
}

func conversationTitle(message string) string {
	runes := []rune(strings.TrimSpace(message))
	if len(runes) > titleMaxRunes {
		runes = runes[:titleMaxRunes]
	}
	return string(runes)
}
