// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package knowledge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/poiesic/triage/ai"
	"github.com/poiesic/triage/core"
	"github.com/tmc/langchaingo/textsplitter"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 100
	defaultConcurrency  = 4

	// ExchangeCategory tags entries learned from sent replies.
	ExchangeCategory = "email_context"
)

// Document is a unit of source material for the knowledge base.
type Document struct {
	Title    string   `json:"title"`
	Content  string   `json:"content"`
	Category string   `json:"category"`
	Tags     []string `json:"tags"`
	Source   string   `json:"source"`
}

// Loader chunks documents, embeds the chunks, and upserts them into an Index.
type Loader struct {
	index       *Index
	embedder    ai.Embedder
	splitter    textsplitter.RecursiveCharacter
	concurrency int
	logger      *slog.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*loaderConfig) error

type loaderConfig struct {
	chunkSize    int
	chunkOverlap int
	concurrency  int
	logger       *slog.Logger
}

// WithChunking sets the splitter chunk size and overlap in characters.
func WithChunking(size, overlap int) LoaderOption {
	return func(c *loaderConfig) error {
		if size <= 0 || overlap < 0 || overlap >= size {
			return ErrInvalidChunking
		}
		c.chunkSize = size
		c.chunkOverlap = overlap
		return nil
	}
}

// WithEmbedConcurrency bounds concurrent embedding calls per document.
func WithEmbedConcurrency(n int) LoaderOption {
	return func(c *loaderConfig) error {
		if n > 0 {
			c.concurrency = n
		}
		return nil
	}
}

// WithLoaderLogger sets a custom logger.
func WithLoaderLogger(logger *slog.Logger) LoaderOption {
	return func(c *loaderConfig) error {
		if logger != nil {
			c.logger = logger
		}
		return nil
	}
}

// NewLoader creates a loader that writes into index using embedder.
func NewLoader(index *Index, embedder ai.Embedder, opts ...LoaderOption) (*Loader, error) {
	if index == nil {
		return nil, ErrIndexRequired
	}
	if embedder == nil {
		return nil, ErrEmbedderRequired
	}

	cfg := loaderConfig{
		chunkSize:    DefaultChunkSize,
		chunkOverlap: DefaultChunkOverlap,
		concurrency:  defaultConcurrency,
		logger:       slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return nil, err
		}
	}

	return &Loader{
		index:    index,
		embedder: embedder,
		splitter: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(cfg.chunkSize),
			textsplitter.WithChunkOverlap(cfg.chunkOverlap),
		),
		concurrency: cfg.concurrency,
		logger:      cfg.logger.With("component", "knowledge-loader"),
	}, nil
}

// AddDocument splits doc into chunks and upserts one entry per chunk.
// Chunk IDs derive from the title, chunk position, and chunk text, so
// importing the same document twice replaces rather than duplicates.
// Returns the entry IDs.
func (l *Loader) AddDocument(ctx context.Context, doc Document) ([]string, error) {
	if strings.TrimSpace(doc.Content) == "" {
		return nil, fmt.Errorf("%w: document %q: %w", core.ErrValidation, doc.Title, core.ErrEmptyContent)
	}

	chunks, err := l.splitter.SplitText(doc.Content)
	if err != nil {
		return nil, fmt.Errorf("splitting document %q: %w", doc.Title, err)
	}
	chunks = slices.DeleteFunc(chunks, func(c string) bool { return strings.TrimSpace(c) == "" })
	if len(chunks) == 0 {
		return nil, fmt.Errorf("%w: document %q: %w", core.ErrValidation, doc.Title, core.ErrEmptyContent)
	}

	vectors := make([][]float32, len(chunks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(l.concurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			vec, err := l.embedder.EmbedText(gctx, chunk)
			if err != nil {
				return fmt.Errorf("embedding chunk %d of %q: %w", i, doc.Title, err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		l.logger.Error("failed to embed document", "title", doc.Title, "err", err)
		return nil, err
	}

	entries := make([]*core.KnowledgeEntry, len(chunks))
	ids := make([]string, len(chunks))
	for i, chunk := range chunks {
		ids[i] = core.IDFromContent(fmt.Sprintf("%s\x00%d\x00%s", doc.Title, i, chunk)).Hex()
		entries[i] = &core.KnowledgeEntry{
			ID:     ids[i],
			Text:   chunk,
			Vector: vectors[i],
			Metadata: core.KnowledgeMetadata{
				Title:      doc.Title,
				Category:   doc.Category,
				Tags:       doc.Tags,
				Source:     doc.Source,
				ChunkIndex: i,
			},
		}
	}
	if err := l.index.Upsert(ctx, entries...); err != nil {
		return nil, err
	}

	l.logger.Info("added document", "title", doc.Title, "chunks", len(chunks))
	return ids, nil
}

// LoadDirectory imports every .txt and .json file directly under dir.
// A .txt file becomes one document titled by its file name without extension.
// A .json file holds either one Document or an array of them.
// Other files are skipped. Returns the number of documents added.
func (l *Loader) LoadDirectory(ctx context.Context, dir string) (int, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	added := 0
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		path := filepath.Join(dir, f.Name())
		var docs []Document
		switch strings.ToLower(filepath.Ext(f.Name())) {
		case ".txt":
			data, err := os.ReadFile(path)
			if err != nil {
				return added, err
			}
			docs = []Document{{
				Title:   strings.TrimSuffix(f.Name(), filepath.Ext(f.Name())),
				Content: string(data),
			}}
		case ".json":
			docs, err = readJSONDocuments(path)
			if err != nil {
				return added, err
			}
		default:
			l.logger.Debug("skipping unsupported file", "path", path)
			continue
		}

		for _, doc := range docs {
			if doc.Source == "" {
				doc.Source = path
			}
			if _, err := l.AddDocument(ctx, doc); err != nil {
				return added, err
			}
			added++
		}
	}
	return added, nil
}

// AddExchange learns from a reply that was sent.
func (l *Loader) AddExchange(ctx context.Context, subject, body, reply string) ([]string, error) {
	content := fmt.Sprintf("Subject: %s\nEmail: %s\nResponse: %s", subject, body, reply)
	return l.AddDocument(ctx, Document{
		Title:    "Re: " + subject,
		Content:  content,
		Category: ExchangeCategory,
		Tags:     []string{"email", "context"},
		Source:   "sent",
	})
}

func readJSONDocuments(path string) ([]Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "[") {
		var docs []Document
		if err := json.Unmarshal(data, &docs); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", core.ErrValidation, path, err)
		}
		return docs, nil
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", core.ErrValidation, path, err)
	}
	return []Document{doc}, nil
}
