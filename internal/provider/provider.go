// Package provider holds one gateway per supported summarization backend.
// Each gateway turns a Request into a single outbound call and returns the
// summary text or a *Error.
package provider

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Name identifies a summarization backend. The set is closed.
type Name string

const (
	GPT4       Name = "gpt4"
	Claude     Name = "claude"
	Gemini     Name = "gemini"
	Mistral    Name = "mistral"
	DeepSeekR1 Name = "deepseek-r1"
	BART       Name = "bart"
	T5         Name = "t5"
	Pegasus    Name = "google-pegasus"
)

var allNames = []Name{GPT4, Claude, Gemini, Mistral, DeepSeekR1, BART, T5, Pegasus}

// Names returns every supported backend in a stable order.
func Names() []Name {
	out := make([]Name, len(allNames))
	copy(out, allNames)
	return out
}

// Parse resolves s case-insensitively.
func Parse(s string) (Name, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, n := range allNames {
		if string(n) == s {
			return n, true
		}
	}
	return "", false
}

// MaxOutputTokens caps every generation request.
const MaxOutputTokens = 650

const (
	DefaultTemperature = 0.3

	SystemPersona = "You are a military intelligence analyst tasked with summarizing reports. " +
		"Provide accurate, concise summaries that capture key information while maintaining an appropriate security posture " +
		"and taking care of ethical considerations. Respond in plain text without markdown."

	userPromptPrefix = "Summarize this report. Here is the report text:\n\n"
)

type Request struct {
	Text               string
	SystemInstructions string
	MaxOutputTokens    int
	Temperature        float64
}

// NewRequest builds a request with the default persona and limits.
func NewRequest(text string) Request {
	return Request{
		Text:               text,
		SystemInstructions: SystemPersona,
		MaxOutputTokens:    MaxOutputTokens,
		Temperature:        DefaultTemperature,
	}
}

func (r Request) maxTokens() int64 {
	if r.MaxOutputTokens <= 0 || r.MaxOutputTokens > MaxOutputTokens {
		return MaxOutputTokens
	}
	return int64(r.MaxOutputTokens)
}

func (r Request) system() string {
	if strings.TrimSpace(r.SystemInstructions) == "" {
		return SystemPersona
	}
	return r.SystemInstructions
}

func (r Request) userPrompt() string {
	return userPromptPrefix + r.Text
}

type Gateway interface {
	Summarize(ctx context.Context, req Request) (string, error)
}

// Registry maps every configured backend to its gateway. It is built once at
// start-up and only read afterwards.
type Registry map[Name]Gateway

// Error is the single failure type returned by gateways.
type Error struct {
	Provider Name
	Cause    string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Provider, e.Cause, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Provider, e.Cause)
}

func (e *Error) Unwrap() error { return e.Err }

var (
	errMissingCredentials = errors.New("missing credentials")
	errEmptyOutput        = errors.New("empty output")
)

func newError(p Name, cause string, err error) *Error {
	return &Error{Provider: p, Cause: cause, Err: err}
}

const reasoningEndMarker = "</think>"

// StripReasoning drops everything up to and including the last reasoning end
// marker. Text without the marker is only trimmed.
func StripReasoning(s string) string {
	if i := strings.LastIndex(s, reasoningEndMarker); i >= 0 {
		s = s[i+len(reasoningEndMarker):]
	}
	return strings.TrimSpace(s)
}
