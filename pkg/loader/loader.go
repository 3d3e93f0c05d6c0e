// Package loader reads EPAS sections from a directory tree.
//
// Two layouts are understood. JSON Lines files (*.jsonl) hold one section
// object per line, as produced by the PDF extraction step. Markdown files
// (*.md) below a directory named after a volume ("I", "II", "III") are split
// on headings, one section per heading.
package loader

import (
	"bufio"
	"bytes"
	"fmt"
	"io/fs"
	"path"
	"strings"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"

	"github.com/perbu/epasrag/pkg/epas"
)

// maxLineSize bounds a single JSONL record.
const maxLineSize = 16 << 20

type options struct {
	log *zap.Logger
}

// Option configures loading.
type Option func(*options)

// WithLogger sets the logger used to report skipped records.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// LoadSections walks root in lexical order and returns every section found.
// Malformed records are logged and skipped; I/O errors abort the walk.
func LoadSections(fsys fs.FS, root string, opts ...Option) ([]epas.Section, error) {
	o := options{log: zap.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}

	var sections []epas.Section
	files := 0
	err := fs.WalkDir(fsys, root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		var found []epas.Section
		switch path.Ext(p) {
		case ".jsonl":
			found, err = readJSONL(fsys, p, o.log)
		case ".md":
			found, err = readMarkdown(fsys, root, p, o.log)
		default:
			return nil
		}
		if err != nil {
			return err
		}
		files++
		sections = append(sections, found...)
		return nil
	})
	if err != nil {
		return nil, err
	}

	o.log.Info("loaded sections",
		zap.String("root", root),
		zap.Int("files", files),
		zap.Int("sections", len(sections)))
	return sections, nil
}

func readJSONL(fsys fs.FS, p string, log *zap.Logger) ([]epas.Section, error) {
	f, err := fsys.Open(p)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", p, err)
	}
	defer f.Close()

	var sections []epas.Section
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var sec epas.Section
		if err := sonic.ConfigStd.Unmarshal(raw, &sec); err != nil {
			log.Warn("skipping malformed section",
				zap.String("file", p), zap.Int("line", line), zap.Error(err))
			continue
		}
		if sec.Volume == "" || strings.TrimSpace(sec.Text) == "" {
			log.Warn("skipping section without volume or text",
				zap.String("file", p), zap.Int("line", line), zap.String("section_id", sec.SectionID))
			continue
		}
		sections = append(sections, withCatalog(sec))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading %s: %w", p, err)
	}
	return sections, nil
}

func readMarkdown(fsys fs.FS, root, p string, log *zap.Logger) ([]epas.Section, error) {
	volume := volumeOf(root, p)
	if volume == "" {
		log.Warn("skipping markdown outside a volume directory", zap.String("file", p))
		return nil, nil
	}

	content, err := fs.ReadFile(fsys, p)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", p, err)
	}

	// Markdown carries no page numbers, so the section id alone has to keep
	// chunk ids apart. Unnumbered and repeated headings get an id derived
	// from the file name and their position in the file.
	stem := strings.TrimSuffix(path.Base(p), path.Ext(p))
	seen := make(map[string]bool)
	var sections []epas.Section
	for i, s := range SplitMarkdown(string(content)) {
		if s.SectionID == "" || seen[s.SectionID] {
			s.SectionID = fmt.Sprintf("%s.%d", stem, i+1)
		}
		seen[s.SectionID] = true
		s.Volume = volume
		sections = append(sections, withCatalog(s))
	}
	return sections, nil
}

// volumeOf returns the first directory below root when it names a catalog
// volume.
func volumeOf(root, p string) string {
	rel := strings.TrimPrefix(p, strings.TrimSuffix(root, "/")+"/")
	if root == "." {
		rel = p
	}
	dir, _, ok := strings.Cut(rel, "/")
	if !ok {
		return ""
	}
	if _, known := epas.LookupVolume(dir); !known {
		return ""
	}
	return dir
}

// SplitMarkdown splits a markdown document into sections at headings. The
// heading text becomes the section title and, when its first word contains
// a digit (e.g. "ORO.GEN.200 Management system"), that word becomes the
// section id. Text before the first heading forms an untitled section.
// The returned sections have no volume set.
func SplitMarkdown(content string) []epas.Section {
	var sections []epas.Section

	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var heading string
	var body strings.Builder

	flush := func() {
		text := strings.TrimSpace(body.String())
		if text == "" {
			return
		}
		sections = append(sections, epas.Section{
			Text:         text,
			SectionID:    sectionID(heading),
			SectionTitle: heading,
		})
	}

	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			flush()
			heading = strings.TrimSpace(strings.TrimLeft(line, "#"))
			body.Reset()
			continue
		}
		if body.Len() > 0 {
			body.WriteString("\n")
		}
		body.WriteString(line)
	}
	flush()

	return sections
}

func sectionID(heading string) string {
	fields := strings.Fields(heading)
	if len(fields) == 0 {
		return ""
	}
	if strings.ContainsAny(fields[0], "0123456789") {
		return strings.TrimRight(fields[0], ".:")
	}
	return ""
}

func withCatalog(s epas.Section) epas.Section {
	if s.DocumentType == "" {
		if v, ok := epas.LookupVolume(s.Volume); ok {
			s.DocumentType = v.DocumentType
		}
	}
	return s
}
