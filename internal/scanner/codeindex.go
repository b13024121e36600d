package scanner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/python"
)

// Language is a source language the code index can parse.
type Language string

const (
	LanguagePython Language = "python"
	LanguageGo     Language = "go"
)

// LanguageFor picks the parser for path by extension.
func LanguageFor(path string) (Language, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".py", ".pyw":
		return LanguagePython, true
	case ".go":
		return LanguageGo, true
	}
	return "", false
}

// Symbol is a function or method declaration. Lines are 1-based.
type Symbol struct {
	Name     string
	Receiver string
	Language Language
	File     string
	Line     int
	// HeaderEnd is the line on which the signature ends.
	HeaderEnd int
	// Header is the raw source text of lines Line..HeaderEnd, carriage
	// returns included, so it can be matched against the file as is.
	Header string
	// Newline is the line ending used by the declaration, "\n" or "\r\n".
	Newline string
	// BodyLine and BodyFirst locate the first statement of the body (python).
	BodyLine     int
	BodyFirst    string
	BodyIndent   string
	SameLineBody bool
	Documented   bool
}

// QualifiedName is Receiver.Name for methods, Name otherwise.
func (s Symbol) QualifiedName() string {
	if s.Receiver != "" {
		return s.Receiver + "." + s.Name
	}
	return s.Name
}

// SymbolNotFoundError is returned by Find when no declaration matches.
type SymbolNotFoundError struct {
	Path   string
	Symbol string
}

func (e *SymbolNotFoundError) Error() string {
	return fmt.Sprintf("symbol %q not found in %s", e.Symbol, e.Path)
}

// CodeIndex parses source files with tree-sitter. A fresh parser is used per
// call so the index is safe for concurrent use.
type CodeIndex struct{}

func NewCodeIndex() *CodeIndex {
	return &CodeIndex{}
}

// Parse returns every function and method declared in content.
func (ix *CodeIndex) Parse(ctx context.Context, path string, content []byte) ([]Symbol, error) {
	lang, ok := LanguageFor(path)
	if !ok {
		return nil, fmt.Errorf("unsupported source language: %s", path)
	}

	parser := sitter.NewParser()
	defer parser.Close()
	switch lang {
	case LanguagePython:
		parser.SetLanguage(python.GetLanguage())
	case LanguageGo:
		parser.SetLanguage(golang.GetLanguage())
	}

	tree, err := parser.ParseCtx(ctx, nil, content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	defer tree.Close()

	w := &symbolWalker{path: path, content: content, lines: strings.Split(string(content), "\n")}
	if lang == LanguagePython {
		w.walkPython(tree.RootNode())
	} else {
		w.walkGo(tree.RootNode())
	}
	return w.symbols, nil
}

// Find parses the file at path and returns the declaration of symbol, which
// may be a bare name or Receiver.Name.
func (ix *CodeIndex) Find(ctx context.Context, path, symbol string) (Symbol, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return Symbol{}, err
	}
	symbols, err := ix.Parse(ctx, path, content)
	if err != nil {
		return Symbol{}, err
	}
	for _, s := range symbols {
		if s.QualifiedName() == symbol {
			return s, nil
		}
	}
	for _, s := range symbols {
		if s.Name == symbol {
			return s, nil
		}
	}
	return Symbol{}, &SymbolNotFoundError{Path: path, Symbol: symbol}
}

type symbolWalker struct {
	path    string
	content []byte
	lines   []string
	symbols []Symbol
}

func (w *symbolWalker) text(n *sitter.Node) string {
	return n.Content(w.content)
}

func (w *symbolWalker) line(row int) string {
	if row < 0 || row >= len(w.lines) {
		return ""
	}
	return w.lines[row]
}

func (w *symbolWalker) newline(row int) string {
	if strings.HasSuffix(w.line(row), "\r") {
		return "\r\n"
	}
	return "\n"
}

func (w *symbolWalker) header(from, to int) string {
	parts := make([]string, 0, to-from+1)
	for row := from; row <= to; row++ {
		parts = append(parts, w.line(row))
	}
	return strings.Join(parts, "\n")
}

func leadingWhitespace(s string) string {
	return s[:len(s)-len(strings.TrimLeft(s, " \t"))]
}

func (w *symbolWalker) walkPython(node *sitter.Node) {
	for i := 0; i < int(node.NamedChildCount()); i++ {
		child := node.NamedChild(i)
		switch child.Type() {
		case "function_definition":
			w.addPythonFunc(child, "")
		case "class_definition":
			w.walkPythonClass(child)
		case "decorated_definition":
			if def := child.ChildByFieldName("definition"); def != nil {
				switch def.Type() {
				case "function_definition":
					w.addPythonFunc(def, "")
				case "class_definition":
					w.walkPythonClass(def)
				}
			}
		default:
			w.walkPython(child)
		}
	}
}

func (w *symbolWalker) walkPythonClass(class *sitter.Node) {
	name := class.ChildByFieldName("name")
	body := class.ChildByFieldName("body")
	if name == nil || body == nil {
		return
	}
	className := w.text(name)
	for i := 0; i < int(body.NamedChildCount()); i++ {
		child := body.NamedChild(i)
		if child.Type() == "decorated_definition" {
			child = child.ChildByFieldName("definition")
		}
		if child != nil && child.Type() == "function_definition" {
			w.addPythonFunc(child, className)
		}
	}
}

func (w *symbolWalker) addPythonFunc(fn *sitter.Node, receiver string) {
	name := fn.ChildByFieldName("name")
	body := fn.ChildByFieldName("body")
	if name == nil || body == nil {
		return
	}

	startRow := int(fn.StartPoint().Row)
	colonRow := startRow
	for i := 0; i < int(fn.ChildCount()); i++ {
		if c := fn.Child(i); c.Type() == ":" {
			colonRow = int(c.StartPoint().Row)
		}
	}

	var first *sitter.Node
	for i := 0; i < int(body.NamedChildCount()); i++ {
		if c := body.NamedChild(i); c.Type() != "comment" {
			first = c
			break
		}
	}

	sym := Symbol{
		Name:      w.text(name),
		Receiver:  receiver,
		Language:  LanguagePython,
		File:      w.path,
		Line:      startRow + 1,
		HeaderEnd: colonRow + 1,
		Header:    w.header(startRow, colonRow),
		Newline:   w.newline(colonRow),
	}
	if first != nil {
		row := int(first.StartPoint().Row)
		sym.BodyLine = row + 1
		sym.BodyFirst = w.line(row)
		sym.BodyIndent = leadingWhitespace(sym.BodyFirst)
		sym.SameLineBody = row == colonRow
		sym.Documented = first.Type() == "expression_statement" &&
			first.NamedChildCount() > 0 && first.NamedChild(0).Type() == "string"
	}
	w.symbols = append(w.symbols, sym)
}

func (w *symbolWalker) walkGo(root *sitter.Node) {
	for i := 0; i < int(root.NamedChildCount()); i++ {
		decl := root.NamedChild(i)
		if decl.Type() != "function_declaration" && decl.Type() != "method_declaration" {
			continue
		}
		name := decl.ChildByFieldName("name")
		if name == nil {
			continue
		}

		startRow := int(decl.StartPoint().Row)
		headerEnd := startRow
		if body := decl.ChildByFieldName("body"); body != nil {
			headerEnd = int(body.StartPoint().Row)
		}

		documented := false
		if i > 0 {
			prev := root.NamedChild(i - 1)
			documented = prev.Type() == "comment" && int(prev.EndPoint().Row)+1 == startRow
		}

		sym := Symbol{
			Name:       w.text(name),
			Language:   LanguageGo,
			File:       w.path,
			Line:       startRow + 1,
			HeaderEnd:  headerEnd + 1,
			Header:     w.header(startRow, headerEnd),
			Newline:    w.newline(startRow),
			Documented: documented,
		}
		if recv := decl.ChildByFieldName("receiver"); recv != nil {
			sym.Receiver = receiverType(w.text(recv))
		}
		w.symbols = append(w.symbols, sym)
	}
}

// receiverType extracts "Server" from "(s *Server)" or "(c *Cache[K, V])".
func receiverType(recv string) string {
	recv = strings.Trim(recv, "()")
	if i := strings.IndexByte(recv, '['); i >= 0 {
		recv = recv[:i]
	}
	fields := strings.Fields(recv)
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimLeft(fields[len(fields)-1], "*")
}
