package chat

import (
	"context"
	"strings"
)

// MockGenerator is a keyless local fallback used when OpenAI is not
// configured. It produces a deterministic canned reply.
type MockGenerator struct{}

func NewMockGenerator() *MockGenerator { return &MockGenerator{} }

func (*MockGenerator) Generate(_ context.Context, _, _ string, userMessage string) (string, error) {
	msg := strings.TrimSpace(userMessage)
	if msg == "" {
		return "I'm here with you.", nil
	}
	return "I hear you. Tell me more about that.", nil
}

// MockSynthesizer reports no artifact, exercising the text-only path.
type MockSynthesizer struct{}

func NewMockSynthesizer() *MockSynthesizer { return &MockSynthesizer{} }

func (*MockSynthesizer) Synthesize(context.Context, string) (string, error) {
	return "", nil
}
