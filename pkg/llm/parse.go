package llm

import "strings"

// ExtractJSONBlock 从模型回复中提取 JSON 文本。
// 优先截取 ```json ... ``` 围栏代码块的内部；没有围栏时返回整段文本。
// 模型经常在 JSON 前后附加解释性文字，因此只做宽松扫描，不保证结果可解析。
func ExtractJSONBlock(raw string) string {
	const fenceStart = "```json"
	const fence = "```"

	start := strings.Index(raw, fenceStart)
	if start < 0 {
		// 兼容不带语言标记的围栏
		start = strings.Index(raw, fence)
		if start < 0 {
			return strings.TrimSpace(raw)
		}
		inner := raw[start+len(fence):]
		if end := strings.Index(inner, fence); end >= 0 {
			return strings.TrimSpace(inner[:end])
		}
		return strings.TrimSpace(raw)
	}

	inner := raw[start+len(fenceStart):]
	if end := strings.Index(inner, fence); end >= 0 {
		return strings.TrimSpace(inner[:end])
	}
	return strings.TrimSpace(raw)
}
