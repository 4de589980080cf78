// Package export renders a project's scenes as a single manuscript.
package export

import (
	"bytes"
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	gmhtml "github.com/yuin/goldmark/renderer/html"

	"writingway/models"
)

// digestLimit bounds the manuscript digest, in runes.
const digestLimit = 120

// Source is the read side of the story store.
type Source interface {
	Project(ctx context.Context, id string) (models.Project, error)
	Chapters(ctx context.Context, projectID string) ([]models.Chapter, error)
	Scenes(ctx context.Context, projectID string) ([]models.Scene, error)
	SceneText(ctx context.Context, sceneID string) (string, error)
}

// Document is a rendered manuscript.
type Document struct {
	Title     string
	Digest    string
	Markdown  string
	HTML      string
	WordCount int
}

var md = goldmark.New(
	goldmark.WithExtensions(extension.Typographer),
	goldmark.WithRendererOptions(gmhtml.WithHardWraps()),
)

// Manuscript assembles every scene of the project in story order, one
// level-one heading per chapter and one level-two heading per scene.
func Manuscript(ctx context.Context, src Source, projectID string) (*Document, error) {
	project, err := src.Project(ctx, projectID)
	if err != nil {
		return nil, err
	}
	chapters, err := src.Chapters(ctx, projectID)
	if err != nil {
		return nil, err
	}
	scenes, err := src.Scenes(ctx, projectID)
	if err != nil {
		return nil, err
	}

	byChapter := make(map[string][]models.Scene)
	for _, sc := range scenes {
		byChapter[sc.ChapterID] = append(byChapter[sc.ChapterID], sc)
	}

	var b strings.Builder
	var body []string
	for _, ch := range chapters {
		fmt.Fprintf(&b, "# %s\n\n", heading(ch.Title, "Untitled chapter"))
		for _, sc := range byChapter[ch.ID] {
			fmt.Fprintf(&b, "## %s\n\n", heading(sc.Title, "Untitled scene"))
			text, err := src.SceneText(ctx, sc.ID)
			if err != nil {
				return nil, fmt.Errorf("export: scene %s: %w", sc.ID, err)
			}
			if text = strings.TrimSpace(text); text != "" {
				b.WriteString(text)
				b.WriteString("\n\n")
				body = append(body, text)
			}
		}
	}

	markdown := strings.TrimRight(b.String(), "\n") + "\n"
	rendered, err := toHTML(markdown)
	if err != nil {
		return nil, fmt.Errorf("export: render: %w", err)
	}
	prose := strings.Join(body, " ")
	return &Document{
		Title:     project.Name,
		Digest:    digest(prose, digestLimit),
		Markdown:  markdown,
		HTML:      rendered,
		WordCount: len(strings.Fields(prose)),
	}, nil
}

// Page wraps the manuscript in a standalone HTML page.
func (d *Document) Page() string {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&b, "<title>%s</title>\n", html.EscapeString(d.Title))
	if d.Digest != "" {
		fmt.Fprintf(&b, "<meta name=\"description\" content=\"%s\">\n", html.EscapeString(d.Digest))
	}
	b.WriteString("</head>\n<body>\n")
	b.WriteString(d.HTML)
	b.WriteString("</body>\n</html>\n")
	return b.String()
}

func toHTML(markdown string) (string, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

func heading(title, fallback string) string {
	title = strings.Join(strings.Fields(title), " ")
	if title == "" {
		return fallback
	}
	return title
}

// digest collapses whitespace and keeps at most limit runes.
func digest(text string, limit int) string {
	joined := strings.Join(strings.Fields(text), " ")
	r := []rune(joined)
	if len(r) <= limit {
		return joined
	}
	return strings.TrimSpace(string(r[:limit])) + "…"
}
