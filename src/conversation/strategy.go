package conversation

import (
	"convmem/pkg"
	"strings"

	"github.com/cloudwego/eino/schema"
)

const presentationTime = "2006-01-02 15:04"

// ContextStrategy renders an assembled context for one kind of downstream model.
type ContextStrategy interface {
	BuildContext(assembled *pkg.AssembledContext) string
}

// ====================== Presentation ======================
// PresentationStrategy renders timestamped plain text for a response generator.
type PresentationStrategy struct{}

func (PresentationStrategy) BuildContext(assembled *pkg.AssembledContext) string {
	return FormatForPresentation(assembled)
}

// FormatForPresentation renders the selected turns oldest first. An empty
// context renders as the empty string so callers can skip injection.
func FormatForPresentation(assembled *pkg.AssembledContext) string {
	if assembled.Empty() {
		return ""
	}

	var b strings.Builder
	b.WriteString("### Relevant Conversation History:\n")
	for _, c := range assembled.Turns {
		ts := c.Turn.CreatedAt.Format(presentationTime)
		b.WriteString("[" + ts + "] User: " + c.Turn.Message + "\n")
		b.WriteString("[" + ts + "] Bot: " + c.Turn.Response + "\n")
		b.WriteString("\n")
	}
	b.WriteString("### End of History")
	return b.String()
}

// ====================== NLU ======================
// NLUStrategy renders the last maxTurns turns in the tagged form an intent
// classifier prompt expects.
type NLUStrategy struct {
	maxTurns int
}

func NewNLUStrategy(maxTurns int) *NLUStrategy {
	if maxTurns <= 0 {
		maxTurns = 5
	}
	return &NLUStrategy{maxTurns: maxTurns}
}

func (s *NLUStrategy) BuildContext(assembled *pkg.AssembledContext) string {
	messages := trimTail(FormatMessages(assembled), s.maxTurns*2)

	var contextBuilder strings.Builder
	contextBuilder.WriteString("<conversation_context>\n")
	for _, msg := range messages {
		switch msg.Role {
		case schema.User:
			contextBuilder.WriteString("UserMessage(" + msg.Content + ")\n")
		case schema.Assistant:
			contextBuilder.WriteString("AssistantMessage(" + msg.Content + ")\n")
		}
	}
	contextBuilder.WriteString("</conversation_context>")
	return contextBuilder.String()
}

// FormatMessages expands each selected turn into a user and an assistant message.
func FormatMessages(assembled *pkg.AssembledContext) []*schema.Message {
	if assembled.Empty() {
		return []*schema.Message{}
	}
	messages := make([]*schema.Message, 0, len(assembled.Turns)*2)
	for _, c := range assembled.Turns {
		messages = append(messages, schema.UserMessage(c.Turn.Message))
		if c.Turn.Response != "" {
			messages = append(messages, schema.AssistantMessage(c.Turn.Response, nil))
		}
	}
	return messages
}

func trimTail(messages []*schema.Message, n int) []*schema.Message {
	if len(messages) <= n {
		return messages
	}
	return messages[len(messages)-n:]
}
