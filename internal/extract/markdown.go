package extract

import (
	"os"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	extast "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.GFM))

func extractMarkdown(path string) (string, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return markdownText(src)
}

// markdownText renders the visible prose of a markdown document. Code blocks,
// images and raw HTML are dropped; link text is kept.
func markdownText(src []byte) (string, error) {
	src = []byte(decodeText(src))
	doc := markdown.Parser().Parse(text.NewReader(src))

	var sb strings.Builder
	err := ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch n.Kind() {
		case ast.KindFencedCodeBlock, ast.KindCodeBlock, ast.KindHTMLBlock, ast.KindImage, ast.KindRawHTML:
			return ast.WalkSkipChildren, nil
		}

		if entering {
			switch node := n.(type) {
			case *ast.Text:
				sb.Write(node.Value(src))
				if node.HardLineBreak() || node.SoftLineBreak() {
					sb.WriteString("\n")
				}
			case *ast.String:
				sb.Write(node.Value)
			case *ast.AutoLink:
				sb.Write(node.Label(src))
			}
			return ast.WalkContinue, nil
		}

		switch n.Kind() {
		case ast.KindParagraph, ast.KindHeading, ast.KindThematicBreak:
			sb.WriteString("\n\n")
		case ast.KindTextBlock, extast.KindTableRow, extast.KindTableHeader:
			sb.WriteString("\n")
		case extast.KindTableCell:
			sb.WriteString("\t")
		}
		return ast.WalkContinue, nil
	})
	if err != nil {
		return "", err
	}

	return sb.String(), nil
}
