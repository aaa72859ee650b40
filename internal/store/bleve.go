package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/google/uuid"

	"github.com/Aman-CERP/ftsync/internal/tokenizer"
)

const (
	// EntryAnalyzerName is the analyzer applied to subject and body.
	EntryAnalyzerName = "ftsync_entry"

	bleveDefaultTokenizer = "bleve:unicode+lowercase"

	fieldSubject = "subject"
	fieldBody    = "body"
)

// Internal (non-document) keys kept inside the Bleve index.
var (
	internalKeyNextID    = []byte("ftsync:next_id")
	internalKeyTokenizer = []byte("ftsync:tokenizer")
	internalKeyIdentity  = []byte("ftsync:identity")
)

// Custom tokenizers are registered with Bleve's global registry by name.
// The registered constructor resolves the name through this table so that a
// name can be re-bound without touching the registry again.
var (
	customTokenizersMu sync.RWMutex
	customTokenizers   = map[string]tokenizer.Tokenizer{}
)

func registerBleveTokenizer(tok tokenizer.Tokenizer) {
	customTokenizersMu.Lock()
	_, known := customTokenizers[tok.Name()]
	customTokenizers[tok.Name()] = tok
	customTokenizersMu.Unlock()

	if known {
		return
	}
	name := tok.Name()
	_ = registry.RegisterTokenizer(name, func(map[string]interface{}, *registry.Cache) (analysis.Tokenizer, error) {
		customTokenizersMu.RLock()
		t, ok := customTokenizers[name]
		customTokenizersMu.RUnlock()
		if !ok {
			return nil, fmt.Errorf("tokenizer %q not registered", name)
		}
		return &bleveTokenizer{tok: t}, nil
	})
}

// bleveTokenizer adapts a tokenizer.Tokenizer to analysis.Tokenizer.
type bleveTokenizer struct {
	tok tokenizer.Tokenizer
}

// Tokenize implements analysis.Tokenizer.
func (b *bleveTokenizer) Tokenize(input []byte) analysis.TokenStream {
	stream := analysis.TokenStream{}
	pos := 1
	for t := range b.tok.Tokenize(string(input)) {
		stream = append(stream, &analysis.Token{
			Term:     []byte(t.Term),
			Start:    t.Start,
			End:      t.End,
			Position: pos,
			Type:     analysis.AlphaNumeric,
		})
		pos++
	}
	return stream
}

// bleveEntry is the document stored for each index entry.
type bleveEntry struct {
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// BleveIndex implements FullTextIndex with Bleve v2.
type BleveIndex struct {
	mu       sync.RWMutex
	index    bleve.Index
	path     string
	tok      tokenizer.Tokenizer
	identity string
	closed   bool
}

// Verify interface implementation at compile time
var _ FullTextIndex = (*BleveIndex)(nil)

// NewBleveIndex opens (creating if absent) a Bleve index at path.
// If path is empty, an in-memory index is used.
func NewBleveIndex(path string, opts IndexOptions) (*BleveIndex, error) {
	if opts.Tokenizer != nil {
		registerBleveTokenizer(opts.Tokenizer)
	}

	indexMapping, err := createEntryMapping(opts.Tokenizer)
	if err != nil {
		return nil, fmt.Errorf("failed to create index mapping: %w", err)
	}

	var idx bleve.Index
	if path == "" {
		idx, err = bleve.NewMemOnly(indexMapping)
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory %s: %w", filepath.Dir(path), err)
		}

		if validErr := validateBleveIntegrity(path); validErr != nil {
			slog.Warn("bleve_index_corrupted",
				slog.String("path", path),
				slog.String("error", validErr.Error()))
			if removeErr := os.RemoveAll(path); removeErr != nil {
				return nil, fmt.Errorf("index corrupted at %s and cannot remove: %w (original error: %v)", path, removeErr, validErr)
			}
		}

		idx, err = bleve.Open(path)
		if errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
			idx, err = bleve.New(path, indexMapping)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create/open index: %w", err)
	}

	b := &BleveIndex{index: idx, path: path, tok: opts.Tokenizer}
	if err := b.checkTokenizer(); err != nil {
		_ = idx.Close()
		return nil, err
	}
	if err := b.loadIdentity(); err != nil {
		_ = idx.Close()
		return nil, err
	}
	return b, nil
}

// loadIdentity reads the index identity, assigning one on first use.
func (b *BleveIndex) loadIdentity() error {
	existing, err := b.index.GetInternal(internalKeyIdentity)
	if err != nil {
		return fmt.Errorf("failed to read index identity: %w", err)
	}
	if existing != nil {
		b.identity = string(existing)
		return nil
	}
	b.identity = uuid.NewString()
	if err := b.index.SetInternal(internalKeyIdentity, []byte(b.identity)); err != nil {
		return fmt.Errorf("failed to write index identity: %w", err)
	}
	return nil
}

// Identity implements FullTextIndex.
func (b *BleveIndex) Identity() string {
	return b.identity
}

func (b *BleveIndex) tokenizerName() string {
	if b.tok == nil {
		return bleveDefaultTokenizer
	}
	return b.tok.Name()
}

// checkTokenizer records the tokenizer on first use and rejects a mismatch.
func (b *BleveIndex) checkTokenizer() error {
	existing, err := b.index.GetInternal(internalKeyTokenizer)
	if err != nil {
		return fmt.Errorf("failed to read index metadata: %w", err)
	}
	if existing == nil {
		return b.index.SetInternal(internalKeyTokenizer, []byte(b.tokenizerName()))
	}
	if string(existing) != b.tokenizerName() {
		return fmt.Errorf("index built with %q, opened with %q: %w", existing, b.tokenizerName(), ErrTokenizerMismatch)
	}
	return nil
}

// createEntryMapping maps subject and body as stored text fields analysed by
// the custom tokenizer, or by Unicode segmentation plus lowercasing.
func createEntryMapping(tok tokenizer.Tokenizer) (*mapping.IndexMappingImpl, error) {
	indexMapping := bleve.NewIndexMapping()

	analyzer := map[string]interface{}{
		"type":          custom.Name,
		"tokenizer":     unicode.Name,
		"token_filters": []string{lowercase.Name},
	}
	if tok != nil {
		analyzer = map[string]interface{}{
			"type":      custom.Name,
			"tokenizer": tok.Name(),
		}
	}
	if err := indexMapping.AddCustomAnalyzer(EntryAnalyzerName, analyzer); err != nil {
		return nil, fmt.Errorf("failed to add custom analyzer: %w", err)
	}
	indexMapping.DefaultAnalyzer = EntryAnalyzerName

	textField := func() *mapping.FieldMapping {
		f := bleve.NewTextFieldMapping()
		f.Analyzer = EntryAnalyzerName
		f.Store = true
		f.IncludeTermVectors = true
		return f
	}
	entryMapping := bleve.NewDocumentMapping()
	entryMapping.AddFieldMappingsAt(fieldSubject, textField())
	entryMapping.AddFieldMappingsAt(fieldBody, textField())
	indexMapping.DefaultMapping = entryMapping

	return indexMapping, nil
}

// validateBleveIntegrity checks that an existing index directory has
// readable metadata. Returns nil when the index does not exist yet.
func validateBleveIntegrity(path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	data, err := os.ReadFile(filepath.Join(path, "index_meta.json"))
	if err != nil {
		return fmt.Errorf("cannot read index_meta.json: %w", err)
	}
	var meta map[string]interface{}
	if err := json.Unmarshal(data, &meta); err != nil {
		return fmt.Errorf("index_meta.json is corrupt: %w", err)
	}
	return nil
}

func docID(id int64) string {
	return strconv.FormatInt(id, 10)
}

// Insert implements FullTextIndex.
func (b *BleveIndex) Insert(ctx context.Context, subject, body string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrClosed
	}

	id := int64(1)
	raw, err := b.index.GetInternal(internalKeyNextID)
	if err != nil {
		return 0, fmt.Errorf("failed to allocate entry id: %w", err)
	}
	if raw != nil {
		if id, err = strconv.ParseInt(string(raw), 10, 64); err != nil {
			return 0, fmt.Errorf("corrupt entry id counter %q: %w", raw, err)
		}
	}

	// The entry and the advanced counter are applied as one batch, so an
	// indexed entry's id is never handed out again.
	batch := b.index.NewBatch()
	if err := batch.Index(docID(id), bleveEntry{Subject: subject, Body: body}); err != nil {
		return 0, fmt.Errorf("failed to insert entry: %w", err)
	}
	batch.SetInternal(internalKeyNextID, []byte(docID(id+1)))
	if err := b.index.Batch(batch); err != nil {
		return 0, fmt.Errorf("failed to insert entry: %w", err)
	}
	return id, nil
}

// exists reports whether a document with id is present. Caller holds mu.
func (b *BleveIndex) exists(id int64) (bool, error) {
	doc, err := b.index.Document(docID(id))
	if err != nil {
		return false, err
	}
	return doc != nil, nil
}

// UpdateByID implements FullTextIndex.
func (b *BleveIndex) UpdateByID(ctx context.Context, id int64, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	ok, err := b.exists(id)
	if err != nil {
		return fmt.Errorf("failed to update entry %d: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("update entry %d: %w", id, ErrEntryNotFound)
	}
	if err := b.index.Index(docID(id), bleveEntry{Subject: subject, Body: body}); err != nil {
		return fmt.Errorf("failed to update entry %d: %w", id, err)
	}
	return nil
}

// DeleteByID implements FullTextIndex.
func (b *BleveIndex) DeleteByID(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}

	ok, err := b.exists(id)
	if err != nil {
		return fmt.Errorf("failed to delete entry %d: %w", id, err)
	}
	if !ok {
		return fmt.Errorf("delete entry %d: %w", id, ErrEntryNotFound)
	}
	if err := b.index.Delete(docID(id)); err != nil {
		return fmt.Errorf("failed to delete entry %d: %w", id, err)
	}
	return nil
}

// buildQuery translates expr into a Bleve query, or nil if it matches nothing.
// Each clause must match in the subject or the body.
func (b *BleveIndex) buildQuery(expr string) query.Query {
	q := ParseQuery(expr)
	if b.tok != nil {
		q = q.Normalize(b.tok)
	}
	if q.Empty() {
		return nil
	}

	clauses := make([]query.Query, 0, len(q.Clauses))
	for _, c := range q.Clauses {
		clauses = append(clauses, bleve.NewDisjunctionQuery(
			b.fieldQuery(c, fieldSubject),
			b.fieldQuery(c, fieldBody),
		))
	}
	return bleve.NewConjunctionQuery(clauses...)
}

func (b *BleveIndex) fieldQuery(c Clause, field string) query.Query {
	text := strings.Join(c.Terms, " ")

	if b.tok != nil {
		// Terms are already in indexed form.
		switch c.Kind {
		case ClausePrefix:
			pq := bleve.NewPrefixQuery(text)
			pq.SetField(field)
			return pq
		case ClausePhrase:
			return bleve.NewPhraseQuery(c.Terms, field)
		default:
			tq := bleve.NewTermQuery(text)
			tq.SetField(field)
			return tq
		}
	}

	switch c.Kind {
	case ClausePrefix:
		pq := bleve.NewPrefixQuery(strings.ToLower(text))
		pq.SetField(field)
		return pq
	case ClausePhrase:
		mq := bleve.NewMatchPhraseQuery(text)
		mq.SetField(field)
		return mq
	default:
		mq := bleve.NewMatchQuery(text)
		mq.SetField(field)
		mq.SetOperator(query.MatchQueryOperatorAnd)
		return mq
	}
}

// MatchCount implements FullTextIndex.
func (b *BleveIndex) MatchCount(ctx context.Context, expr string) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, ErrClosed
	}

	q := b.buildQuery(expr)
	if q == nil {
		return 0, nil
	}

	req := bleve.NewSearchRequestOptions(q, 0, 0, false)
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return 0, fmt.Errorf("match count failed: %w", err)
	}
	return int(res.Total), nil
}

// MatchAll implements FullTextIndex. Results are ordered by score.
func (b *BleveIndex) MatchAll(ctx context.Context, expr string, limit int) ([]*Match, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrClosed
	}

	q := b.buildQuery(expr)
	if q == nil {
		return []*Match{}, nil
	}

	size := limit
	if size <= 0 {
		n, err := b.index.DocCount()
		if err != nil {
			return nil, fmt.Errorf("failed to count entries: %w", err)
		}
		size = int(n)
	}

	req := bleve.NewSearchRequestOptions(q, size, 0, false)
	req.Fields = []string{fieldSubject, fieldBody}
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("match failed: %w", err)
	}

	matches := make([]*Match, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		m := &Match{ID: id}
		m.Subject, _ = hit.Fields[fieldSubject].(string)
		m.Body, _ = hit.Fields[fieldBody].(string)
		matches = append(matches, m)
	}
	return matches, nil
}

// AllIDs implements FullTextIndex.
func (b *BleveIndex) AllIDs(ctx context.Context) ([]int64, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return nil, ErrClosed
	}

	n, err := b.index.DocCount()
	if err != nil {
		return nil, fmt.Errorf("failed to count entries: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	req := bleve.NewSearchRequestOptions(bleve.NewMatchAllQuery(), int(n), 0, false)
	res, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("failed to query IDs: %w", err)
	}

	ids := make([]int64, 0, len(res.Hits))
	for _, hit := range res.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// Count implements FullTextIndex.
func (b *BleveIndex) Count(ctx context.Context) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return 0, ErrClosed
	}

	n, err := b.index.DocCount()
	if err != nil {
		return 0, fmt.Errorf("failed to count entries: %w", err)
	}
	return int(n), nil
}

// Close closes the index. It is safe to call more than once.
func (b *BleveIndex) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.index.Close()
}
