package genai

import (
	"context"
	"fmt"
	"testing"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

type mockCompletions struct {
	content string
	err     error
	calls   int
}

func (m *mockCompletions) New(ctx context.Context, body openai.ChatCompletionNewParams, opts ...option.RequestOption) (*openai.ChatCompletion, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.content == "" {
		return &openai.ChatCompletion{}, nil
	}
	return &openai.ChatCompletion{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: m.content}},
		},
	}, nil
}

func TestNewEnhancer_RequiresKey(t *testing.T) {
	if _, err := NewEnhancer(""); err == nil {
		t.Error("expected error for empty api key")
	}
}

func TestEnhanceCaption(t *testing.T) {
	mock := &mockCompletions{content: "  65% of 2026 gone already.  "}
	e := &Enhancer{completions: mock, model: openai.ChatModelGPT4oMini}

	got, err := e.EnhanceCaption(context.Background(), "65% of 2026 is behind us")
	if err != nil {
		t.Fatalf("EnhanceCaption failed: %v", err)
	}
	if got != "65% of 2026 gone already." {
		t.Errorf("unexpected caption %q", got)
	}
	if mock.calls != 1 {
		t.Errorf("expected 1 API call, got %d", mock.calls)
	}
}

func TestEnhanceCaption_Errors(t *testing.T) {
	cases := []struct {
		name string
		mock *mockCompletions
	}{
		{"api error", &mockCompletions{err: fmt.Errorf("rate limited")}},
		{"no choices", &mockCompletions{}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			e := &Enhancer{completions: c.mock, model: openai.ChatModelGPT4oMini}
			if _, err := e.EnhanceCaption(context.Background(), "caption"); err == nil {
				t.Error("expected error")
			}
		})
	}
}
