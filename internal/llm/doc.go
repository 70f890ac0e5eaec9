// Package llm generates chat answers as streamed token fragments. Providers
// speak their native server-sent-event dialects (Gemini streamGenerateContent,
// Mistral chat completions) behind a single Generator interface.
package llm
