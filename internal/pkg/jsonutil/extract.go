// Package jsonutil вырезает JSON объект из свободного текста ответа модели.
package jsonutil

import "strings"

const codeFence = "```"

// ExtractObject возвращает первый сбалансированный JSON объект.
// Блок в ``` ... ``` имеет приоритет над текстом вокруг него.
func ExtractObject(raw string) (string, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", false
	}
	if block, ok := fenced(raw); ok {
		if obj, ok := balancedObject(block); ok {
			return obj, true
		}
	}
	return balancedObject(raw)
}

func fenced(raw string) (string, bool) {
	start := strings.Index(raw, codeFence)
	if start == -1 {
		return "", false
	}
	rest := raw[start+len(codeFence):]
	end := strings.Index(rest, codeFence)
	if end == -1 {
		return "", false
	}
	block := strings.TrimLeft(rest[:end], "\r\n")
	// Первая строка вида "json" - метка языка
	if idx := strings.Index(block, "\n"); idx != -1 {
		if first := strings.TrimSpace(block[:idx]); first != "" && !strings.ContainsAny(first, "[{") {
			block = block[idx+1:]
		}
	}
	block = strings.TrimSpace(block)
	return block, block != ""
}

// balancedObject ищет объект с учетом строк и экранирования
func balancedObject(raw string) (string, bool) {
	start := strings.Index(raw, "{")
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escape := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			switch {
			case escape:
				escape = false
			case ch == '\\':
				escape = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1], true
			}
		}
	}
	return "", false
}
