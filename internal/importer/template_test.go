package importer

import (
	"context"
	"testing"
)

func TestApplyTemplate(t *testing.T) {
	row := map[string]string{
		"post_title": "My Post",
		"color":      "blue",
		"size":       "large",
	}

	tests := []struct {
		name string
		body string
		want string
	}{
		{
			"column substitution",
			"Color: {{color}}, Size: {{size}}",
			"Color: blue, Size: large",
		},
		{
			"title and content fallbacks",
			"<h1>{{title}}</h1><div>{{content}}</div>",
			"<h1>Resolved Title</h1><div>Resolved Content</div>",
		},
		{
			"row column beats fallback",
			"{{post_title}}",
			"My Post",
		},
		{
			"unknown placeholder empties",
			"before {{nothing_here}} after",
			"before  after",
		},
		{
			"whitespace inside braces",
			"{{ color }}",
			"blue",
		},
		{
			"no placeholders",
			"static body",
			"static body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := applyTemplate(tt.body, row, "Resolved Title", "Resolved Content")
			if got != tt.want {
				t.Errorf("applyTemplate() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLoadTemplateBody(t *testing.T) {
	store := newMemContent()
	ctx := context.Background()

	id, err := store.CreateRecord(ctx, RecordFields{ContentType: "page", Title: "Layout", Slug: "layout", Body: "tpl {{title}}"})
	if err != nil {
		t.Fatal(err)
	}

	body, err := loadTemplateBody(ctx, store, id)
	if err != nil {
		t.Fatalf("loadTemplateBody() error = %v", err)
	}
	if body != "tpl {{title}}" {
		t.Errorf("body = %q", body)
	}

	if _, err := loadTemplateBody(ctx, store, 9999); err == nil {
		t.Error("loadTemplateBody(missing) error = nil, want error")
	}
}
