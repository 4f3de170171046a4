package knowledge

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// LoadDir builds a corpus from the markdown files in dir. Files load in
// filename order, so a numeric prefix ("01_overview.md") fixes document
// order. The prefix and extension are stripped to form the document ID.
//
// A file may start with a minimal front matter block:
//
//	---
//	title: Bucket operations
//	tags: buckets, s3
//	pinned: true
//	---
//
// Without one, the title falls back to the first markdown heading, then
// to the ID.
func LoadDir(dir string, logger *slog.Logger) (*Corpus, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read knowledge dir: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".md") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	corpus := NewCorpus()
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read document %s: %w", name, err)
		}
		doc := parseDocument(name, string(data))
		if err := corpus.Add(doc); err != nil {
			return nil, fmt.Errorf("load document %s: %w", name, err)
		}
	}

	logger.Info("knowledge corpus loaded",
		slog.String("dir", dir),
		slog.Int("documents", corpus.Len()),
		slog.String("version", corpus.Version()))
	return corpus, nil
}

func parseDocument(filename, content string) Document {
	doc := Document{ID: docID(filename)}

	body := content
	if meta, rest, ok := splitFrontMatter(content); ok {
		body = rest
		for key, value := range meta {
			switch key {
			case "title":
				doc.Title = value
			case "tags":
				for _, t := range strings.Split(value, ",") {
					if t = strings.TrimSpace(t); t != "" {
						doc.Tags = append(doc.Tags, t)
					}
				}
			case "pinned":
				doc.Pinned = value == "true"
			}
		}
	}

	doc.Content = strings.TrimSpace(body)
	if doc.Title == "" {
		doc.Title = firstHeading(doc.Content)
	}
	if doc.Title == "" {
		doc.Title = doc.ID
	}
	return doc
}

// docID strips a numeric order prefix and the .md extension:
// "02_query-syntax.md" becomes "query-syntax".
func docID(filename string) string {
	id := strings.TrimSuffix(filename, ".md")
	if i := strings.IndexAny(id, "_-"); i > 0 {
		prefix := id[:i]
		if _, err := fmt.Sscanf(prefix, "%d", new(int)); err == nil && len(prefix) <= 3 {
			id = id[i+1:]
		}
	}
	return id
}

func firstHeading(content string) string {
	for _, line := range strings.Split(content, "\n") {
		if after, ok := strings.CutPrefix(line, "#"); ok {
			return strings.TrimSpace(strings.TrimLeft(after, "#"))
		}
	}
	return ""
}

func splitFrontMatter(content string) (map[string]string, string, bool) {
	if !strings.HasPrefix(content, "---\n") {
		return nil, "", false
	}
	rest := content[len("---\n"):]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return nil, "", false
	}

	meta := make(map[string]string)
	for _, line := range strings.Split(rest[:end], "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		meta[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}

	body := rest[end+len("\n---"):]
	body = strings.TrimPrefix(body, "\n")
	return meta, body, true
}
