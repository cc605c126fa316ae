package model

type OutputFormat string

const (
	OutputNone OutputFormat = "none"
	OutputJSON OutputFormat = "json"
	OutputXML  OutputFormat = "xml"
)

// GenerationParams 会话级生成参数快照，挂在 Chat 上，可在两轮之间修改
type GenerationParams struct {
	Temperature  *float64     `json:"temperature,omitempty"`
	MaxTokens    *int         `json:"max_tokens,omitempty"`
	TopP         *float64     `json:"top_p,omitempty"`
	SystemPrompt string       `json:"system_prompt,omitempty"`
	Stream       bool         `json:"stream"`
	OutputFormat OutputFormat `json:"output_format,omitempty"`
	// 结构化输出的 schema 文本，为空时使用内置默认 schema
	OutputSchema string     `json:"output_schema,omitempty"`
	Directives   Directives `json:"directives,omitempty"`
}

// Directives 文本塑形指令，派发时编译进 system 提示文本，
// 不会作为独立的请求字段发给提供方
type Directives struct {
	Style           string `json:"style,omitempty"`
	Length          string `json:"length,omitempty"` // short | medium | long
	Language        string `json:"language,omitempty"`
	IncludeExamples bool   `json:"include_examples,omitempty"`
	Format          string `json:"format,omitempty"` // 如 markdown、bullet-list
}

func (d Directives) Empty() bool {
	return d.Style == "" && d.Length == "" && d.Language == "" && !d.IncludeExamples && d.Format == ""
}
