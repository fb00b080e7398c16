package llm

import (
	"context"
	"fmt"
	"os"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// DefaultModel is used when OPENAI_MODEL is not set.
const DefaultModel = "gpt-4o-mini"

const promptTemplate = `You are a software supply-chain security analyst.
Inspect the following install-time script shipped by the package %q and
decide whether it is malicious or suspicious (obfuscation, remote code
download, credential theft, data exfiltration, reverse shells).

Respond with ONLY a JSON object matching exactly this schema:
{"is_suspicious": bool, "confidence": number between 0 and 1,
 "severity": "critical"|"high"|"medium"|"low",
 "threats": [string], "reasoning": string}

Script:
---
%s
---`

// OpenAI analyzes scripts through the OpenAI chat completions API.
type OpenAI struct {
	model llms.Model
	name  string
}

// NewOpenAI constructs an analyzer from the environment. It returns
// ErrUnavailable when OPENAI_API_KEY is unset, so callers can treat the
// absence of credentials like any other provider outage.
func NewOpenAI() (*OpenAI, error) {
	if os.Getenv("OPENAI_API_KEY") == "" {
		return nil, fmt.Errorf("%w: OPENAI_API_KEY not set", ErrUnavailable)
	}
	name := os.Getenv("OPENAI_MODEL")
	if name == "" {
		name = DefaultModel
	}
	model, err := openai.New(openai.WithModel(name))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return &OpenAI{model: model, name: name}, nil
}

// Model returns the configured model name.
func (o *OpenAI) Model() string { return o.name }

// AnalyzeScript sends the script to the model and parses the JSON verdict.
func (o *OpenAI) AnalyzeScript(ctx context.Context, pkg, script string) (*Verdict, error) {
	prompt := fmt.Sprintf(promptTemplate, pkg, script)
	resp, err := llms.GenerateFromSinglePrompt(ctx, o.model, prompt,
		llms.WithTemperature(0), llms.WithJSONMode())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	v, err := ParseVerdict(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return v, nil
}
