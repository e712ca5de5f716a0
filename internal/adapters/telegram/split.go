package telegram

import "strings"

const messageLimit = 4096

// SplitMessage делит текст на части не длиннее лимита Telegram.
func SplitMessage(text string) []string {
	return splitText(text, messageLimit)
}

// splitText режет текст по границе абзаца, затем строки, затем слова.
// Если подходящей границы в окне нет, часть обрезается ровно по лимиту.
func splitText(text string, limit int) []string {
	rest := []rune(strings.TrimSpace(text))
	if len(rest) == 0 {
		return nil
	}
	var parts []string
	for len(rest) > limit {
		cut := lastBreak(rest[:limit+1])
		if cut <= 0 {
			cut = limit
		}
		if chunk := strings.TrimSpace(string(rest[:cut])); chunk != "" {
			parts = append(parts, chunk)
		}
		rest = []rune(strings.TrimLeft(string(rest[cut:]), " \n"))
	}
	if chunk := strings.TrimSpace(string(rest)); chunk != "" {
		parts = append(parts, chunk)
	}
	return parts
}

func lastBreak(window []rune) int {
	s := string(window)
	for _, sep := range []string{"\n\n", "\n", " "} {
		if i := strings.LastIndex(s, sep); i > 0 {
			return len([]rune(s[:i]))
		}
	}
	return -1
}
