// Package nlp provides clients for the vision-language models that describe
// what the robot sees.
//
// The Client interface takes a conversation whose messages may carry camera
// frames and returns the model's text. OpenAIClient talks to OpenAI and to
// OpenAI-compatible services (Ollama, vLLM, LM Studio) through a custom base
// URL.
//
// # Client Wrappers
//
//   - RetryClient: retry with exponential backoff on rate limits and server errors
//
// # Usage
//
//	base, err := nlp.NewOpenAIClient(apiKey, nlp.Config{
//		BaseURL: "http://localhost:11434",
//		Model:   "llava:13b",
//	})
//	if err != nil {
//		return err
//	}
//	client := nlp.NewRetryClient(base, nil)
//
//	resp, err := client.Chat(ctx, []nlp.Message{
//		nlp.NewSystemMessage(systemPrompt),
//		nlp.NewImageMessage("Describe the scene.", jpeg),
//	}, true)
package nlp
