package fnagent

import (
	"fmt"
	"strings"
)

// paramDoc is one documented parameter, in documentation order.
type paramDoc struct {
	Name        string
	Description string
}

// docstring is a parsed Google-style docstring.
type docstring struct {
	Summary string
	Params  []paramDoc
}

var (
	paramSections = map[string]bool{
		"args": true, "arguments": true, "parameters": true, "params": true,
	}
	otherSections = map[string]bool{
		"returns": true, "return": true, "raises": true, "yields": true,
		"example": true, "examples": true, "note": true, "notes": true,
		"attributes": true, "see also": true, "todo": true,
	}
)

// parseDocstring splits doc into a one-line summary and the entries of its
// parameter section. An empty doc yields an empty summary and no parameters.
func parseDocstring(doc string) (docstring, error) {
	lines := cleanDoc(doc)
	var out docstring

	i := 0
	for i < len(lines) && !isSectionHeader(lines[i]) {
		if out.Summary == "" {
			out.Summary = strings.TrimSpace(lines[i])
		}
		i++
	}

	seen := make(map[string]bool)
	for i < len(lines) {
		header := sectionName(lines[i])
		i++
		end := i
		for end < len(lines) && (lines[end] == "" || indentOf(lines[end]) > 0) {
			end++
		}
		if paramSections[header] {
			params, err := parseParamSection(lines[i:end])
			if err != nil {
				return docstring{}, err
			}
			for _, p := range params {
				if seen[p.Name] {
					return docstring{}, fmt.Errorf("%w: parameter %q documented twice", ErrMalformedDoc, p.Name)
				}
				seen[p.Name] = true
				out.Params = append(out.Params, p)
			}
		}
		i = end
	}
	return out, nil
}

// parseParamSection parses "name: description" or "name (type): description"
// entries. Lines indented deeper than the entry are continuation lines.
func parseParamSection(lines []string) ([]paramDoc, error) {
	entryIndent := -1
	var params []paramDoc
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		ind := indentOf(line)
		if entryIndent < 0 {
			entryIndent = ind
		}
		text := strings.TrimSpace(line)
		if ind > entryIndent && len(params) > 0 {
			last := &params[len(params)-1]
			if last.Description == "" {
				last.Description = text
			} else {
				last.Description += "\n" + text
			}
			continue
		}
		head, desc, ok := strings.Cut(text, ":")
		if !ok {
			return nil, fmt.Errorf("%w: expected \"name: description\", got %q", ErrMalformedDoc, text)
		}
		name := strings.TrimSpace(head)
		if open := strings.Index(name, "("); open >= 0 && strings.HasSuffix(name, ")") {
			name = strings.TrimSpace(name[:open])
		}
		if name == "" || strings.ContainsAny(name, " \t") {
			return nil, fmt.Errorf("%w: invalid parameter name in %q", ErrMalformedDoc, text)
		}
		params = append(params, paramDoc{Name: name, Description: strings.TrimSpace(desc)})
	}
	return params, nil
}

// cleanDoc expands tabs, removes the common indentation of every line after the
// first and trims leading and trailing blank lines.
func cleanDoc(doc string) []string {
	doc = strings.ReplaceAll(doc, "\t", "    ")
	doc = strings.ReplaceAll(doc, "\r\n", "\n")
	lines := strings.Split(doc, "\n")
	if len(lines) == 0 {
		return nil
	}
	margin := -1
	for _, l := range lines[1:] {
		if strings.TrimSpace(l) == "" {
			continue
		}
		if ind := indentOf(l); margin < 0 || ind < margin {
			margin = ind
		}
	}
	lines[0] = strings.TrimSpace(lines[0])
	for i := 1; i < len(lines); i++ {
		if strings.TrimSpace(lines[i]) == "" {
			lines[i] = ""
			continue
		}
		if margin > 0 {
			lines[i] = lines[i][margin:]
		}
		lines[i] = strings.TrimRight(lines[i], " ")
	}
	for len(lines) > 0 && lines[0] == "" {
		lines = lines[1:]
	}
	for len(lines) > 0 && lines[len(lines)-1] == "" {
		lines = lines[:len(lines)-1]
	}
	return lines
}

func indentOf(line string) int {
	return len(line) - len(strings.TrimLeft(line, " "))
}

func sectionName(line string) string {
	return strings.ToLower(strings.TrimSuffix(strings.TrimSpace(line), ":"))
}

func isSectionHeader(line string) bool {
	trimmed := strings.TrimSpace(line)
	if !strings.HasSuffix(trimmed, ":") {
		return false
	}
	name := sectionName(line)
	return paramSections[name] || otherSections[name]
}
