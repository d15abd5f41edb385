// Package openaicompat implements the provider contract for services that
// speak the OpenAI chat-completions wire protocol: OpenAI itself, xAI, and
// DeepSeek. One adapter serves all three families; they differ only in
// base URL, credential key, recognized model names, and whether the stream
// interleaves a reasoning_content auxiliary channel with the answer text.
package openaicompat
