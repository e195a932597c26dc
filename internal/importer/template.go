package importer

import (
	"context"
	"fmt"
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`\{\{([a-zA-Z0-9_ -]+)\}\}`)

// applyTemplate substitutes {{column}} placeholders in the template body
// with values from the row. {{title}} and {{content}} fall back to the
// row's resolved title/content when no column of that name exists.
// Unmatched placeholders are replaced with the empty string.
func applyTemplate(body string, row map[string]string, title, content string) string {
	return placeholderPattern.ReplaceAllStringFunc(body, func(match string) string {
		name := strings.TrimSpace(placeholderPattern.FindStringSubmatch(match)[1])

		if v, ok := row[name]; ok {
			return v
		}
		switch name {
		case "title":
			return title
		case "content":
			return content
		}
		return ""
	})
}

// loadTemplateBody resolves the configured template record and returns its
// body for placeholder substitution.
func loadTemplateBody(ctx context.Context, store ContentStore, templateID int64) (string, error) {
	rec, err := store.GetRecord(ctx, templateID)
	if err != nil {
		return "", fmt.Errorf("loading template %d: %w", templateID, err)
	}
	if rec == nil {
		return "", fmt.Errorf("template %d not found", templateID)
	}
	return rec.Body, nil
}
