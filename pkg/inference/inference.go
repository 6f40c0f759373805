// Package inference talks to chat-completion models for the characters.
//
// Client speaks the OpenAI-compatible /chat/completions API, so it also
// covers Ollama, vLLM or Groq through WithBaseURL. Gemini uses the Google
// GenAI SDK. Chain puts one in front of the other:
//
//	primary, _ := inference.NewClient(inference.WithAPIKey(key), inference.WithModel("gpt-4o"))
//	backup, _ := inference.NewGemini(ctx, inference.WithAPIKey(googleKey))
//	chain, _ := inference.NewChain(logger, primary, backup)
//
//	resp, err := chain.Chat(ctx, &inference.ChatRequest{
//	    Messages: []inference.Message{
//	        inference.NewSystemMessage("You are Captain Redbeard, a pirate on a stream."),
//	        inference.NewUserMessage("[Chat] ahoy!"),
//	    },
//	})
package inference

import "context"

// Provider generates chat completions.
type Provider interface {
	// Name identifies the provider in logs and errors.
	Name() string

	Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error)

	// Health checks connectivity and the API key.
	Health(ctx context.Context) error

	Close() error
}

// ChatRequest is one completion over a character's history. Zero values
// fall back to the provider's configuration.
type ChatRequest struct {
	Messages    []Message
	Model       string
	MaxTokens   int
	Temperature float64
	Stop        []string
}

// ChatResponse is the assistant message plus bookkeeping.
type ChatResponse struct {
	Message      Message
	FinishReason string
	Usage        Usage
	Model        string

	// Provider is the Name of the provider that answered.
	Provider  string
	LatencyMs int64
}

// Text returns the reply content.
func (r *ChatResponse) Text() string { return r.Message.Content }

// Usage counts tokens as reported by the service.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
