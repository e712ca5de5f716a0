package instant

import (
	"strings"

	"newspulse-bot/internal/domain"
)

// FormatItem формирует сообщение с одной новостью.
func FormatItem(category string, item domain.NewsItem) string {
	var b strings.Builder
	b.WriteString("📰 " + strings.ToUpper(strings.TrimSpace(category)))
	if title := strings.TrimSpace(item.Title); title != "" {
		b.WriteString("\n\n" + title)
	}
	if summary := strings.TrimSpace(item.SummaryText); summary != "" && summary != strings.TrimSpace(item.Title) {
		b.WriteString("\n\n" + summary)
	}
	if url := strings.TrimSpace(item.SourceURL); url != "" {
		b.WriteString("\n\n🔗 Read More: " + url)
	}
	return b.String()
}

// FormatSummary формирует сообщение для сохранённой новости.
func FormatSummary(s domain.NewsSummary) string {
	return FormatItem(s.Category, domain.NewsItem{Title: s.Title, SummaryText: s.SummaryText, SourceURL: s.SourceURL})
}
