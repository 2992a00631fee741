package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"golang.org/x/net/html"

	"engram/internal/logging"
	"engram/internal/tool"
	"engram/internal/types"
)

// textExtensions are read directly without an extraction service.
var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".markdown": true, ".rst": true,
	".log": true, ".csv": true, ".json": true, ".yaml": true,
	".yml": true, ".toml": true, ".ini": true, ".xml": true,
}

var htmlExtensions = map[string]bool{
	".html": true, ".htm": true, ".xhtml": true,
}

type docParseTool struct {
	deps Deps
}

func (t *docParseTool) Name() string    { return "doc_parse" }
func (t *docParseTool) Version() string { return "1.1.0" }

func (t *docParseTool) Execute(ctx context.Context, env *tool.Envelope) (map[string]any, error) {
	path := stringInput(env.Inputs, "path")
	mime := stringInput(env.Inputs, "mime")

	// Pre-read content short-circuits the parse entirely.
	if pre := stringInput(env.Inputs, "text"); pre != "" {
		return outputs(pre, mime, "pre_read"), nil
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case textExtensions[ext]:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &tool.Error{Type: "doc_parse_failed", Message: fmt.Sprintf("read %s: %v", path, err)}
		}
		return outputs(string(data), mime, "text"), nil

	case htmlExtensions[ext]:
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &tool.Error{Type: "doc_parse_failed", Message: fmt.Sprintf("read %s: %v", path, err)}
		}
		text, err := StripHTML(string(data))
		if err != nil {
			return nil, &tool.Error{Type: "doc_parse_failed", Message: fmt.Sprintf("parse html %s: %v", path, err)}
		}
		return outputs(text, mime, "html"), nil

	case ext == ".go":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &tool.Error{Type: "doc_parse_failed", Message: fmt.Sprintf("read %s: %v", path, err)}
		}
		text, err := goSourceText(ctx, filepath.Base(path), data)
		if err != nil {
			logging.Tools("Go outline failed for %s, keeping raw source: %v", path, err)
			text = string(data)
		}
		return outputs(text, mime, "go_source"), nil

	default:
		if t.deps.Tika == nil {
			return nil, &tool.Error{Type: "doc_parse_failed", Message: "no text-extraction service configured"}
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &tool.Error{Type: "doc_parse_failed", Message: fmt.Sprintf("read %s: %v", path, err)}
		}
		text, err := t.deps.Tika.ExtractText(ctx, data)
		if err != nil {
			return nil, &tool.Error{Type: "doc_parse_failed", Message: fmt.Sprintf("extraction failed: %v", err)}
		}
		return outputs(text, mime, "tika"), nil
	}
}

func outputs(text, mime, parser string) map[string]any {
	if len(text) > types.MaxContentChars {
		text = text[:types.MaxContentChars]
	}
	return map[string]any{
		"content_text": text,
		"mime":         mime,
		"parser":       parser,
	}
}

// StripHTML returns the visible text of an HTML document, skipping
// script and style subtrees.
func StripHTML(src string) (string, error) {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && (n.Data == "script" || n.Data == "style") {
			return
		}
		if n.Type == html.TextNode {
			if trimmed := strings.TrimSpace(n.Data); trimmed != "" {
				sb.WriteString(trimmed)
				sb.WriteByte('\n')
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.TrimSpace(sb.String()), nil
}

// goSourceText prefixes Go source with a declaration outline so the
// summary and entity passes see the structure, not just the body.
func goSourceText(ctx context.Context, name string, src []byte) (string, error) {
	parser := sitter.NewParser()
	parser.SetLanguage(golang.GetLanguage())
	tree, err := parser.ParseCtx(ctx, nil, src)
	if err != nil {
		return "", err
	}
	defer tree.Close()

	var outline []string
	root := tree.RootNode()
	for i := 0; i < int(root.NamedChildCount()); i++ {
		child := root.NamedChild(i)
		switch child.Type() {
		case "package_clause":
			outline = append(outline, strings.TrimSpace(child.Content(src)))
		case "function_declaration", "method_declaration":
			if nameNode := child.ChildByFieldName("name"); nameNode != nil {
				outline = append(outline, "func "+nameNode.Content(src))
			}
		case "type_declaration":
			for j := 0; j < int(child.NamedChildCount()); j++ {
				spec := child.NamedChild(j)
				if spec.Type() == "type_spec" {
					if nameNode := spec.ChildByFieldName("name"); nameNode != nil {
						outline = append(outline, "type "+nameNode.Content(src))
					}
				}
			}
		}
	}

	var sb strings.Builder
	sb.WriteString("Go source: " + name + "\n")
	if len(outline) > 0 {
		sb.WriteString("Declarations:\n")
		for _, line := range outline {
			sb.WriteString("  " + line + "\n")
		}
	}
	sb.WriteString("\n")
	sb.Write(src)
	return sb.String(), nil
}
