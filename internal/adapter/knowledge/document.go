// Package knowledge implements domain.Retriever over a directory of
// per-agent markdown documents.
//
// Layout:
//
//	<dir>/<agent-id>/**/*.md   documents for one agent
//	<dir>/shared/**/*.md       documents offered to every agent
//
// A document may start with YAML front matter carrying a title and tags.
package knowledge

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// SharedDir is the directory name whose documents every agent can see.
const SharedDir = "shared"

// contextHeader opens every formatted knowledge context.
const contextHeader = "RELEVANT KNOWLEDGE BASE DOCUMENTS:\n"

// Document is one knowledge file.
type Document struct {
	Agent   string   // agent directory the file lives in, or SharedDir
	Path    string   // slash-separated path relative to the knowledge dir
	Title   string   // front matter title, else the file name without .md
	Tags    []string // front matter tags
	Content string   // body without front matter
}

type frontMatter struct {
	Title string   `yaml:"title"`
	Tags  []string `yaml:"tags"`
}

// parseDocument splits optional front matter from the body.
func parseDocument(data []byte, fallbackTitle string) (Document, error) {
	doc := Document{Title: fallbackTitle, Content: string(data)}

	rest, ok := bytes.CutPrefix(data, []byte("---\n"))
	if !ok {
		return doc, nil
	}
	head, body, found := bytes.Cut(rest, []byte("\n---"))
	if !found {
		return doc, nil
	}
	var fm frontMatter
	if err := yaml.Unmarshal(head, &fm); err != nil {
		return doc, fmt.Errorf("parse front matter: %w", err)
	}
	if fm.Title != "" {
		doc.Title = fm.Title
	}
	doc.Tags = fm.Tags
	if i := bytes.IndexByte(body, '\n'); i >= 0 {
		body = body[i+1:]
	} else {
		body = nil
	}
	doc.Content = strings.TrimLeft(string(body), "\n")
	return doc, nil
}

// renderDocument writes front matter followed by the body.
func renderDocument(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("---\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(frontMatter{Title: doc.Title, Tags: doc.Tags}); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	buf.WriteString("---\n\n")
	buf.WriteString(strings.TrimSpace(doc.Content))
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// loadAgentDocs reads every .md file under <dir>/<agent>. A missing
// directory yields no documents. Unreadable files are skipped.
func loadAgentDocs(dir, agent string) ([]Document, error) {
	root := filepath.Join(dir, agent)
	var docs []Document
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return fs.SkipAll
			}
			return err
		}
		if d.IsDir() || !strings.EqualFold(filepath.Ext(path), ".md") {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		title := strings.TrimSuffix(d.Name(), filepath.Ext(d.Name()))
		doc, err := parseDocument(data, title)
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(dir, path)
		doc.Agent = agent
		doc.Path = filepath.ToSlash(rel)
		docs = append(docs, doc)
		return nil
	})
	return docs, err
}

// loadAllDocs reads the documents of every agent directory and shared.
func loadAllDocs(dir string) ([]Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var docs []Document
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		agentDocs, err := loadAgentDocs(dir, e.Name())
		if err != nil {
			return nil, err
		}
		docs = append(docs, agentDocs...)
	}
	return docs, nil
}

// formatContext renders docs under the knowledge header, each body cut to
// maxChars runes.
func formatContext(docs []Document, maxChars int) string {
	if len(docs) == 0 {
		return ""
	}
	parts := []string{contextHeader}
	for _, d := range docs {
		parts = append(parts, "\n## "+d.Title, truncateRunes(d.Content, maxChars), "...\n")
	}
	return strings.Join(parts, "\n")
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// validateAgentDir rejects ids that would escape the knowledge directory.
func validateAgentDir(agentID string) error {
	if agentID == "" {
		return fmt.Errorf("knowledge: agent ID must not be empty")
	}
	if strings.ContainsAny(agentID, `/\`) || strings.Contains(agentID, "..") || strings.HasPrefix(agentID, ".") {
		return fmt.Errorf("knowledge: agent ID %q contains invalid path characters", agentID)
	}
	return nil
}
