package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/generative-ai-go/genai"

	"harfy-backend/models"
)

var ErrEmptyConversation = errors.New("conversation has no user message")

// LLM generates the assistant reply for a conversation. The first message is
// the system instruction.
type LLM interface {
	Generate(ctx context.Context, messages []models.ChatMessage) (string, error)
}

// GeminiLLM generates replies through the Gemini chat API.
type GeminiLLM struct {
	client      *genai.Client
	model       string
	temperature float32
}

func NewGeminiLLM(client *genai.Client, model string, temperature float32) *GeminiLLM {
	return &GeminiLLM{client: client, model: model, temperature: temperature}
}

// Generate sends the last message to a chat session seeded with the earlier
// messages as history. System messages become the system instruction.
func (l *GeminiLLM) Generate(ctx context.Context, messages []models.ChatMessage) (string, error) {
	if l.client == nil {
		return "", errors.New("gemini client not set")
	}

	system, history, last, err := toGeminiContents(messages)
	if err != nil {
		return "", err
	}

	model := l.client.GenerativeModel(l.model)
	model.SetTemperature(l.temperature)
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	cs := model.StartChat()
	cs.History = history

	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return "", fmt.Errorf("failed to generate reply: %w", err)
	}
	return responseText(resp)
}

// toGeminiContents splits messages into the system instruction, the chat
// history and the final user text.
func toGeminiContents(messages []models.ChatMessage) (string, []*genai.Content, string, error) {
	var system []string
	var history []*genai.Content
	for _, m := range messages {
		text := m.Content.PlainText()
		if m.Role == models.RoleSystem {
			system = append(system, text)
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		role := "user"
		if m.Role == models.RoleAssistant {
			role = "model"
		}
		// Consecutive turns of the same role are merged.
		if n := len(history); n > 0 && history[n-1].Role == role {
			history[n-1].Parts = append(history[n-1].Parts, genai.Text(text))
			continue
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(text)}})
	}

	if len(history) == 0 || history[len(history)-1].Role != "user" {
		return "", nil, "", ErrEmptyConversation
	}
	last := history[len(history)-1]
	texts := make([]string, 0, len(last.Parts))
	for _, p := range last.Parts {
		if t, ok := p.(genai.Text); ok {
			texts = append(texts, string(t))
		}
	}
	return strings.Join(system, "\n\n"), history[:len(history)-1], strings.Join(texts, "\n"), nil
}

func responseText(resp *genai.GenerateContentResponse) (string, error) {
	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return "", fmt.Errorf("API blocked prompt: %s", resp.PromptFeedback.BlockReason)
	}
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("API returned no candidates")
	}

	var b strings.Builder
	for i, candidate := range resp.Candidates {
		if candidate.FinishReason != genai.FinishReasonUnspecified && candidate.FinishReason != genai.FinishReasonStop {
			log.Printf("Warning: Candidate %d finished with reason: %s", i, candidate.FinishReason)
		}
		if candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if t, ok := part.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		// Only the first candidate is used.
		break
	}

	if b.Len() == 0 {
		return "", fmt.Errorf("API returned empty content")
	}
	return b.String(), nil
}
