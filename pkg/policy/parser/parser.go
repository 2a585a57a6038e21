package parser

import (
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mercator-hq/tribune/pkg/policy/domain"
	"mercator-hq/tribune/pkg/policy/template"
)

// Parser reads bundle files into domain objects.
type Parser struct {
	maxFileSize int64 // Maximum file size in bytes (default: 10MB)
	maxDepth    int   // Maximum expression nesting depth (default: 16)
	templates   *template.Engine
	clock       func() time.Time
	logger      *slog.Logger
}

// NewParser creates a parser with default limits and the built-in
// templates.
func NewParser() *Parser {
	return &Parser{
		maxFileSize: 10 * 1024 * 1024,
		maxDepth:    16,
		clock:       time.Now,
		logger:      slog.Default().With("component", "policy.parser"),
	}
}

// WithMaxFileSize sets the maximum file size limit.
func (p *Parser) WithMaxFileSize(size int64) *Parser {
	p.maxFileSize = size
	return p
}

// WithMaxDepth sets the maximum expression nesting depth.
func (p *Parser) WithMaxDepth(depth int) *Parser {
	p.maxDepth = depth
	return p
}

// WithTemplates sets the engine used for template-based policies.
func (p *Parser) WithTemplates(e *template.Engine) *Parser {
	p.templates = e
	return p
}

// WithClock sets the time stamped on created policies and sets.
func (p *Parser) WithClock(clock func() time.Time) *Parser {
	p.clock = clock
	return p
}

// WithLogger sets the logger.
func (p *Parser) WithLogger(l *slog.Logger) *Parser {
	p.logger = l
	return p
}

func (p *Parser) newBuilder() *builder {
	if p.templates == nil {
		p.templates = template.NewEngine(template.WithClock(p.clock))
	}
	return newBuilder(p.maxDepth, p.clock().UTC(), p.templates)
}

// Parse reads a bundle from a file or from every YAML file under a
// directory.
func (p *Parser) Parse(path string) (*Bundle, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &Error{Kind: ErrStructure, Message: err.Error(), Location: Location{File: path}}
	}
	if info.IsDir() {
		return p.ParseDir(path)
	}
	return p.ParseFile(path)
}

// ParseFile reads a single bundle file.
func (p *Parser) ParseFile(path string) (*Bundle, error) {
	data, err := p.read(path)
	if err != nil {
		return nil, err
	}
	return p.ParseBytes(data, path)
}

// ParseBytes parses bundle YAML held in memory. source names the input in
// error locations.
func (p *Parser) ParseBytes(data []byte, source string) (*Bundle, error) {
	if int64(len(data)) > p.maxFileSize {
		return nil, &Error{
			Kind:     ErrTooLarge,
			Message:  fmt.Sprintf("%d bytes exceeds maximum %d", len(data), p.maxFileSize),
			Location: Location{File: source},
		}
	}
	b := p.newBuilder()
	b.add(source, data)
	return p.finish(b)
}

// ParseDir parses every .yaml and .yml file under dir as one bundle, in
// lexical path order. Hidden files and directories are skipped. References
// may cross files.
func (p *Parser) ParseDir(dir string) (*Bundle, error) {
	files, err := BundleFiles(dir)
	if err != nil {
		return nil, err
	}
	b := p.newBuilder()
	for _, file := range files {
		data, err := p.read(file)
		if err != nil {
			return nil, err
		}
		b.add(file, data)
	}
	return p.finish(b)
}

func (p *Parser) finish(b *builder) (*Bundle, error) {
	bundle, err := b.build()
	if err != nil {
		return nil, err
	}
	p.logger.Debug("bundle parsed",
		"sources", len(bundle.Sources),
		"policies", len(bundle.Policies),
		"policy_sets", len(bundle.Sets),
		"exemptions", len(bundle.Exemptions),
	)
	return bundle, nil
}

func (p *Parser) read(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, &Error{Kind: ErrStructure, Message: err.Error(), Location: Location{File: path}}
	}
	if info.Size() > p.maxFileSize {
		return nil, &Error{
			Kind:     ErrTooLarge,
			Message:  fmt.Sprintf("file size %d exceeds maximum %d bytes", info.Size(), p.maxFileSize),
			Location: Location{File: path},
		}
	}
	return os.ReadFile(path)
}

// ParseContext parses an evaluation context document:
//
//	requester: alice
//	timestamp: 2026-05-04T10:30:00Z
//	environment: {region: eu-west-1}
//	fields:
//	  key_size: 2048
//	  algorithm: RSA
//
// A missing timestamp defaults to the parser clock.
func (p *Parser) ParseContext(data []byte, source string) (domain.Context, error) {
	return p.newBuilder().context(source, data)
}

// ParseContextFile reads and parses a context document.
func (p *Parser) ParseContextFile(path string) (domain.Context, error) {
	data, err := p.read(path)
	if err != nil {
		return domain.Context{}, err
	}
	return p.ParseContext(data, path)
}

// BundleFiles lists the bundle files under dir in lexical order.
func BundleFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && IsBundleFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	return files, nil
}

// IsBundleFile reports whether path has a bundle file extension.
func IsBundleFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	default:
		return false
	}
}
