package providers

import "strings"

// ContentPlaceholder is replaced with the post content in prompt templates.
const ContentPlaceholder = "{content}"

// Render substitutes every {content} placeholder in template. A template
// without a placeholder gets the content appended after a blank line, and an
// empty template yields the content itself.
func Render(template, content string) string {
	if strings.TrimSpace(template) == "" {
		return content
	}
	if !strings.Contains(template, ContentPlaceholder) {
		return template + "\n\n" + content
	}
	return strings.ReplaceAll(template, ContentPlaceholder, content)
}
