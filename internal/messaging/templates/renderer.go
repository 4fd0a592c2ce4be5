package templates

import (
	"bytes"
	"errors"
	"fmt"
	"sort"
	"strings"
	"text/template"
	"text/template/parse"
)

// ErrMissingParams is matched by MissingParamsError.
var ErrMissingParams = errors.New("templates: missing params")

// MissingParamsError lists the placeholders a send did not supply.
type MissingParamsError struct {
	Template string
	Missing  []string
}

func (e *MissingParamsError) Error() string {
	return fmt.Sprintf("templates: %s: missing params %s", e.Template, strings.Join(e.Missing, ", "))
}

func (e *MissingParamsError) Is(target error) bool { return target == ErrMissingParams }

// smsText is the parsed plain-text rendition of one provider template.
type smsText struct {
	name   string
	tmpl   *template.Template
	params []string
}

// parseSMSText compiles text and records the {{.param}} placeholders it uses.
func parseSMSText(name, text string) (*smsText, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("templates: %s: text required", name)
	}
	tmpl, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("templates: %s: parse: %w", name, err)
	}
	seen := map[string]bool{}
	collectParams(tmpl.Tree.Root, seen)
	params := make([]string, 0, len(seen))
	for p := range seen {
		params = append(params, p)
	}
	sort.Strings(params)
	return &smsText{name: name, tmpl: tmpl, params: params}, nil
}

func collectParams(node parse.Node, seen map[string]bool) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}
		for _, child := range n.Nodes {
			collectParams(child, seen)
		}
	case *parse.ActionNode:
		collectParams(n.Pipe, seen)
	case *parse.PipeNode:
		if n == nil {
			return
		}
		for _, cmd := range n.Cmds {
			for _, arg := range cmd.Args {
				collectParams(arg, seen)
			}
		}
	case *parse.FieldNode:
		if len(n.Ident) > 0 {
			seen[n.Ident[0]] = true
		}
	case *parse.IfNode:
		collectParams(n.Pipe, seen)
		collectParams(n.List, seen)
		collectParams(n.ElseList, seen)
	case *parse.RangeNode:
		collectParams(n.Pipe, seen)
		collectParams(n.List, seen)
		collectParams(n.ElseList, seen)
	case *parse.WithNode:
		collectParams(n.Pipe, seen)
		collectParams(n.List, seen)
		collectParams(n.ElseList, seen)
	}
}

// render fills the text with params. Every placeholder must be supplied;
// blank values count as missing.
func (s *smsText) render(params map[string]string) (string, error) {
	var missing []string
	for _, p := range s.params {
		if strings.TrimSpace(params[p]) == "" {
			missing = append(missing, p)
		}
	}
	if len(missing) > 0 {
		return "", &MissingParamsError{Template: s.name, Missing: missing}
	}
	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, params); err != nil {
		return "", fmt.Errorf("templates: %s: execute: %w", s.name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}
