// Package assembler builds the bounded context handed to the response
// composer: identity preamble, relevant knowledge, tool catalog summary
// and recent history, truncated deterministically to a character budget.
package assembler

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/novaops/nova/internal/knowledge"
	"github.com/novaops/nova/internal/session"
)

// DefaultPreamble is the identity and policy block that opens every
// assembled context. It is never dropped by truncation.
const DefaultPreamble = `You are NOVA, an assistant for an object-storage cluster.
You answer questions about buckets, objects and cluster metadata, and you
perform storage operations only through the registered tools. Destructive
operations always require explicit confirmation. Never invent data: every
figure you present comes from a tool result.`

// MaxDocs bounds how many relevance-ranked documents enter the context.
const MaxDocs = 4

// Context is one assembled, reproducible prompt context. For a fixed
// (history, catalog version, corpus version, utterance) input the Text
// is byte-identical.
type Context struct {
	Text           string   `json:"text"`
	DocIDs         []string `json:"doc_ids"`
	TurnsIncluded  int      `json:"turns_included"`
	TurnsDropped   int      `json:"turns_dropped"`
	CatalogVersion string   `json:"catalog_version"`
	CorpusVersion  string   `json:"corpus_version"`
}

// Assembler merges corpus, catalog and history into bounded contexts.
type Assembler struct {
	preamble string
	budget   int
	maxTurns int
	logger   *slog.Logger
}

// New creates an assembler. budget is the context size in characters,
// maxTurns bounds the history window before any budget pressure.
func New(preamble string, budget, maxTurns int, logger *slog.Logger) *Assembler {
	if preamble == "" {
		preamble = DefaultPreamble
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Assembler{preamble: preamble, budget: budget, maxTurns: maxTurns, logger: logger}
}

// Build assembles the context for one utterance. When the budget is
// exceeded, oldest turns drop first, then the least relevant non-pinned
// documents; the preamble and the utterance always survive.
func (a *Assembler) Build(corpus *knowledge.Corpus, catalogSummary, catalogVersion string, history []session.Turn, utterance string) Context {
	docs := corpus.Relevant(utterance, MaxDocs)

	turns := history
	droppedTurns := 0
	if a.maxTurns > 0 && len(turns) > a.maxTurns {
		droppedTurns = len(turns) - a.maxTurns
		turns = turns[droppedTurns:]
	}

	text := render(a.preamble, docs, catalogSummary, turns, utterance)
	for len(text) > a.budget {
		switch {
		case len(turns) > 0:
			turns = turns[1:]
			droppedTurns++
		case len(docs) > 0 && dropOneDoc(&docs):
			// dropped the least relevant non-pinned document
		default:
			// only fixed sections are left; cut the catalog summary
			// before giving up, the preamble and utterance stay whole
			if catalogSummary != "" {
				catalogSummary = ""
				break
			}
			text = render(a.preamble, docs, catalogSummary, turns, utterance)
			a.logger.Warn("context exceeds budget after full truncation",
				slog.Int("size", len(text)), slog.Int("budget", a.budget))
			return a.finish(text, docs, len(turns), droppedTurns, catalogVersion, corpus.Version())
		}
		text = render(a.preamble, docs, catalogSummary, turns, utterance)
	}
	return a.finish(text, docs, len(turns), droppedTurns, catalogVersion, corpus.Version())
}

func (a *Assembler) finish(text string, docs []knowledge.Document, included, dropped int, catalogVersion, corpusVersion string) Context {
	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
	}
	a.logger.Debug("context assembled",
		slog.Int("size", len(text)),
		slog.Int("turns", included),
		slog.Int("dropped_turns", dropped),
		slog.Int("docs", len(docs)))
	return Context{
		Text:           text,
		DocIDs:         ids,
		TurnsIncluded:  included,
		TurnsDropped:   dropped,
		CatalogVersion: catalogVersion,
		CorpusVersion:  corpusVersion,
	}
}

// dropOneDoc removes the last non-pinned document, which Relevant
// ranked lowest. Returns false when only pinned documents remain.
func dropOneDoc(docs *[]knowledge.Document) bool {
	d := *docs
	for i := len(d) - 1; i >= 0; i-- {
		if !d[i].Pinned {
			*docs = append(d[:i], d[i+1:]...)
			return true
		}
	}
	return false
}

func render(preamble string, docs []knowledge.Document, catalogSummary string, turns []session.Turn, utterance string) string {
	var b strings.Builder
	b.WriteString(preamble)
	b.WriteString("\n")

	for _, d := range docs {
		fmt.Fprintf(&b, "\n## %s\n%s\n", d.Title, d.Content)
	}

	if catalogSummary != "" {
		b.WriteString("\n## Available tools\n")
		b.WriteString(catalogSummary)
		b.WriteString("\n")
	}

	if len(turns) > 0 {
		b.WriteString("\n## Conversation so far\n")
		for _, t := range turns {
			fmt.Fprintf(&b, "%s: %s\n", t.Role, t.Content)
			if t.InvokedTool != "" {
				fmt.Fprintf(&b, "  [tool %s] %s\n", t.InvokedTool, t.ToolResult)
			}
		}
	}

	b.WriteString("\nuser: ")
	b.WriteString(utterance)
	return b.String()
}
