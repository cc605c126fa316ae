package provider

import (
	"fmt"
	"strings"

	"defendend-backend/internal/model"
)

// 结构化输出未提供 schema 时使用的缺省 schema 文本
const defaultJSONSchema = `{"type": "object"}`

// compileDirectives 把文本塑形指令编译为附加的 system 提示文本。
// 指令永远走提示词，不映射成提供方的请求字段
func compileDirectives(d model.Directives) string {
	if d.Empty() {
		return ""
	}

	var lines []string
	if d.Style != "" {
		lines = append(lines, fmt.Sprintf("Respond in a %s style.", d.Style))
	}
	switch d.Length {
	case "short":
		lines = append(lines, "Keep the response brief and to the point.")
	case "medium":
		lines = append(lines, "Keep the response to a moderate length.")
	case "long":
		lines = append(lines, "Provide a detailed, thorough response.")
	}
	if d.Language != "" {
		lines = append(lines, fmt.Sprintf("Respond in %s.", d.Language))
	}
	if d.IncludeExamples {
		lines = append(lines, "Include concrete examples in the response.")
	}
	if d.Format != "" {
		lines = append(lines, fmt.Sprintf("Format the response as %s.", d.Format))
	}

	return strings.Join(lines, " ")
}

// buildSystemPrompt 合并 system 提示、编译后的指令文本和结构化输出指令。
// nativeJSON 为真表示该提供方有原生 JSON 响应格式开关，json 模式不再注入提示词
func buildSystemPrompt(params model.GenerationParams, nativeJSON bool) string {
	var parts []string

	if params.SystemPrompt != "" {
		parts = append(parts, params.SystemPrompt)
	}
	if directives := compileDirectives(params.Directives); directives != "" {
		parts = append(parts, directives)
	}

	switch params.OutputFormat {
	case model.OutputJSON:
		if !nativeJSON {
			schema := params.OutputSchema
			if schema == "" {
				schema = defaultJSONSchema
			}
			parts = append(parts, fmt.Sprintf(
				"You must respond with a single valid JSON document matching this schema: %s. Do not output any text outside the JSON.", schema))
		}
	case model.OutputXML:
		// 没有提供方支持原生 XML 模式，只能走提示词
		instruction := "You must respond with a single well-formed XML document. Do not output any text outside the XML."
		if params.OutputSchema != "" {
			instruction = fmt.Sprintf(
				"You must respond with a single well-formed XML document matching this schema: %s. Do not output any text outside the XML.", params.OutputSchema)
		}
		parts = append(parts, instruction)
	}

	return strings.Join(parts, "\n\n")
}
