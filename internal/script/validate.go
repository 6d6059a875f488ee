package script

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/javascript"
)

// ValidateJS parses src with the tree-sitter javascript grammar and reports
// the first syntax error. The registry runs it over custom and extract code
// at registration time so malformed author code fails fast instead of inside
// a live page.
func ValidateJS(src string) error {
	parser := sitter.NewParser()
	parser.SetLanguage(javascript.GetLanguage())

	tree, err := parser.ParseCtx(context.Background(), nil, []byte(src))
	if err != nil {
		return fmt.Errorf("failed to parse javascript: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if !root.HasError() {
		return nil
	}

	if node := firstErrorNode(root); node != nil {
		start, end := node.StartByte(), node.EndByte()
		if int(end) > len(src) {
			end = uint32(len(src))
		}
		snippet := src[start:end]
		if len(snippet) > 40 {
			snippet = snippet[:40] + "..."
		}
		return fmt.Errorf("javascript syntax error at offset %d near %q", start, snippet)
	}
	return fmt.Errorf("javascript syntax error")
}

// firstErrorNode walks the tree depth-first for the first ERROR or missing
// node.
func firstErrorNode(node *sitter.Node) *sitter.Node {
	if node.Type() == "ERROR" || node.IsMissing() {
		return node
	}
	for i := 0; i < int(node.ChildCount()); i++ {
		if found := firstErrorNode(node.Child(i)); found != nil {
			return found
		}
	}
	return nil
}
