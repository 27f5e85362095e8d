package presentation

import (
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"tasknest/internal/models"
)

// Formatter turns internal results into chat-ready plain text. Model output
// often arrives as Markdown; chat channels want plain text, so Markdown is
// parsed and flattened rather than regex-stripped.
type Formatter struct {
	markdown goldmark.Markdown
}

// NewFormatter creates a reply formatter.
func NewFormatter() *Formatter {
	return &Formatter{markdown: goldmark.New()}
}

// PlainText flattens a Markdown fragment to plain text, one line per block.
func (f *Formatter) PlainText(md string) string {
	source := []byte(md)
	doc := f.markdown.Parser().Parse(text.NewReader(source))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		switch node := n.(type) {
		case *ast.Text:
			b.Write(node.Segment.Value(source))
			if node.SoftLineBreak() || node.HardLineBreak() {
				b.WriteByte('\n')
			}
		case *ast.Paragraph, *ast.Heading, *ast.ListItem:
			if b.Len() > 0 && !strings.HasSuffix(b.String(), "\n") {
				b.WriteByte('\n')
			}
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimSpace(b.String())
}

// FormatTaskList renders tasks as a numbered list and returns the display
// items backing it, so the session can remember the list for ordinal
// references ("the second one").
func (f *Formatter) FormatTaskList(header string, tasks []models.Task) (string, []models.DisplayedListItem) {
	if len(tasks) == 0 {
		return "Nothing on the list right now.", nil
	}

	var b strings.Builder
	if header != "" {
		b.WriteString(header)
		b.WriteString("\n")
	}

	items := make([]models.DisplayedListItem, 0, len(tasks))
	for i, task := range tasks {
		line := fmt.Sprintf("%d. %s", i+1, task.Summary)
		if task.Priority == models.TaskPriorityHigh {
			line += " (!)"
		}
		if task.DueDate != nil {
			line += " - due " + task.DueDate.Format("Mon Jan 2")
		}
		b.WriteString(line)
		b.WriteString("\n")

		items = append(items, models.DisplayedListItem{
			TaskID:   task.ID,
			Summary:  task.Summary,
			Position: i + 1,
		})
	}
	return strings.TrimSpace(b.String()), items
}

// FormatBriefing renders the morning briefing from a task list.
func (f *Formatter) FormatBriefing(tasks []models.Task) (string, []models.DisplayedListItem) {
	if len(tasks) == 0 {
		return "Good morning! Nothing due today. Enjoy it.", nil
	}
	return f.FormatTaskList("Good morning! On your plate today:", tasks)
}
