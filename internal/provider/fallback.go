package provider

import "strings"

// Fallback produces canned replies when every provider path has failed.
// Replies are keyed off simple substring matches so the assistant still
// answers common questions (identity, greetings, capabilities) offline.
type Fallback struct{}

// NewFallback creates a fallback generator.
func NewFallback() *Fallback {
	return &Fallback{}
}

// Generate returns a canned reply for the message.
// Always succeeds; the default reply explains the degraded state.
func (f *Fallback) Generate(message string) string {
	lower := strings.ToLower(message)

	switch {
	case strings.Contains(lower, "chatgpt") || strings.Contains(lower, "chat gpt"):
		return "I'm not ChatGPT — I'm LashivGPT, an AI assistant built by Lashiv, a DevOps engineer. I'm currently running in offline mode, but I'm happy to help once my AI services are back."

	case strings.Contains(lower, "hello") || strings.Contains(lower, "hi "):
		return "Hello! I'm LashivGPT. My AI services are temporarily unavailable, so I'm running in offline mode. Please try again in a few minutes for full responses."

	case strings.Contains(lower, "help") || strings.Contains(lower, "what can you do"):
		return "I'm LashivGPT, built by Lashiv. Normally I can answer questions about cloud infrastructure, Kubernetes, CI/CD, and general software engineering, and generate images on request. Right now my AI services are unavailable — please retry shortly."

	case strings.Contains(lower, "image") || strings.Contains(lower, "picture") || strings.Contains(lower, "draw"):
		return "Image generation is temporarily unavailable. Please try again in a few minutes and I'll create that image for you."

	case strings.Contains(lower, "kubernetes") || strings.Contains(lower, "k8s") || strings.Contains(lower, "docker"):
		return "I'd love to dig into that Kubernetes/container question, but my AI services are temporarily unavailable. In the meantime, `kubectl describe` and `kubectl logs` are usually the fastest first steps for debugging. Please retry shortly for a full answer."

	case strings.Contains(lower, "aws") || strings.Contains(lower, "azure") || strings.Contains(lower, "gcp") || strings.Contains(lower, "cloud"):
		return "Cloud questions are my specialty, but my AI services are temporarily unavailable. Please try again in a few minutes and I'll give you a proper answer."

	default:
		return "I'm LashivGPT, an AI assistant built by Lashiv. My AI services are temporarily unavailable — this is a fallback response. Please try again in a few minutes."
	}
}
