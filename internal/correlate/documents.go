package correlate

import (
	"path"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/chriserin/ftr/internal/parser"
)

// Document is a resolved source. Feature is nil when the source did not parse;
// such a document has no structure and the reporter falls back to runtime
// names.
type Document struct {
	URI        string
	Source     string
	Feature    *parser.Feature
	Background *parser.Background
	Errors     []parser.ParseError
}

// Degraded reports whether the document has no usable structure.
func (d *Document) Degraded() bool {
	return d.Feature == nil
}

type docEntry struct {
	uri    string
	source string
	once   sync.Once
	doc    *Document
}

// Documents holds raw sources by normalized path and parses each at most once,
// on first Resolve.
type Documents struct {
	entries sync.Map // normalized path -> *docEntry
	logger  *log.Logger
}

func NewDocuments(logger *log.Logger) *Documents {
	return &Documents{logger: logger}
}

// RecordSource stores the raw text for uri. The first recording of a path wins.
func (d *Documents) RecordSource(uri, text string) {
	_, loaded := d.entries.LoadOrStore(NormalizePath(uri), &docEntry{uri: uri, source: text})
	if loaded && d.logger != nil {
		d.logger.Debug("source already recorded", "uri", uri)
	}
}

// Resolve returns the parsed document for uri.
func (d *Documents) Resolve(uri string) (*Document, error) {
	v, ok := d.entries.Load(NormalizePath(uri))
	if !ok {
		return nil, inconsistent(ErrSourceNotRecorded, uri, 0, "no source_read event before first test case")
	}
	e := v.(*docEntry)
	e.once.Do(func() {
		e.doc = d.parse(e.uri, e.source)
	})
	return e.doc, nil
}

func (d *Documents) parse(uri, source string) *Document {
	ast, errs := parser.Parse(uri, []byte(source))
	doc := &Document{URI: uri, Source: source, Errors: errs}
	if len(errs) > 0 || ast.Feature == nil {
		if d.logger != nil {
			args := []any{"uri", uri}
			if len(errs) > 0 {
				args = append(args, "errors", len(errs), "first", errs[0].Error())
			}
			d.logger.Warn("document has no usable structure", args...)
		}
		return doc
	}
	doc.Feature = ast.Feature
	doc.Background = ast.Feature.Background()
	return doc
}

// NormalizePath turns a feature URI into the key documents and features are
// stored under: scheme stripped, forward slashes, cleaned.
func NormalizePath(uri string) string {
	p := strings.TrimPrefix(uri, "file://")
	p = strings.TrimPrefix(p, "file:")
	p = filepath.ToSlash(p)
	p = strings.ReplaceAll(p, "\\", "/")
	if p == "" {
		return p
	}
	return path.Clean(p)
}
