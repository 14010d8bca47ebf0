package mailer

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/flosch/pongo2/v6"
)

// Template names known to the notifier.
const (
	TemplateVerification  = "verification_email"
	TemplateInvite        = "invite_email"
	TemplatePasswordReset = "password_reset_email"

	manifestFile = "manifest.json"
)

//go:embed templates/*
var defaultTemplates embed.FS

var placeholderPattern = regexp.MustCompile(`{{\s*([a-zA-Z0-9_]+)\s*}}`)

// ErrUnknownTemplate is returned by Render for a name missing from the manifest.
var ErrUnknownTemplate = errors.New("unknown email template")

// Source reads template files by name, relative to the template root.
type Source interface {
	ReadFile(ctx context.Context, name string) ([]byte, error)
}

// FSSource serves templates from an fs.FS, e.g. a directory or the
// embedded defaults.
type FSSource struct {
	FS fs.FS
}

func (s FSSource) ReadFile(_ context.Context, name string) ([]byte, error) {
	return fs.ReadFile(s.FS, name)
}

// DefaultSource returns the templates compiled into the binary.
func DefaultSource() Source {
	sub, err := fs.Sub(defaultTemplates, "templates")
	if err != nil {
		panic(err)
	}
	return FSSource{FS: sub}
}

// DirSource serves templates from a directory on disk.
func DirSource(dir string) Source {
	return FSSource{FS: os.DirFS(dir)}
}

type manifestEntry struct {
	Subject string `json:"subject"`
	HTML    string `json:"html"`
	Text    string `json:"text"`
}

type template struct {
	subjectSrc string
	htmlSrc    string
	textSrc    string
	subject    *pongo2.Template
	html       *pongo2.Template
	text       *pongo2.Template
}

// Templates is a parsed template set.
type Templates struct {
	byName map[string]*template
}

// Content is a rendered email.
type Content struct {
	Subject string
	HTML    string
	Text    string
}

// LoadTemplates reads manifest.json from src and parses every template it
// lists. Any missing or malformed file fails the whole load.
func LoadTemplates(ctx context.Context, src Source) (*Templates, error) {
	raw, err := src.ReadFile(ctx, manifestFile)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	var manifest map[string]manifestEntry
	if err := json.Unmarshal(raw, &manifest); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	if len(manifest) == 0 {
		return nil, errors.New("manifest lists no templates")
	}

	set := &Templates{byName: make(map[string]*template, len(manifest))}
	for name, entry := range manifest {
		t, err := loadTemplate(ctx, src, entry)
		if err != nil {
			return nil, fmt.Errorf("template %q: %w", name, err)
		}
		set.byName[name] = t
	}
	return set, nil
}

func loadTemplate(ctx context.Context, src Source, entry manifestEntry) (*template, error) {
	htmlSrc, err := src.ReadFile(ctx, path.Clean(entry.HTML))
	if err != nil {
		return nil, err
	}
	textSrc, err := src.ReadFile(ctx, path.Clean(entry.Text))
	if err != nil {
		return nil, err
	}

	t := &template{subjectSrc: entry.Subject, htmlSrc: string(htmlSrc), textSrc: string(textSrc)}

	if t.subject, err = pongo2.FromString(raw(t.subjectSrc)); err != nil {
		return nil, fmt.Errorf("parse subject: %w", err)
	}
	if t.html, err = pongo2.FromString(t.htmlSrc); err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}
	if t.text, err = pongo2.FromString(raw(t.textSrc)); err != nil {
		return nil, fmt.Errorf("parse text: %w", err)
	}
	return t, nil
}

// raw disables HTML escaping for subjects and plain-text bodies.
func raw(src string) string {
	return "{% autoescape off %}" + src + "{% endautoescape %}"
}

// Names lists the loaded templates, sorted.
func (s *Templates) Names() []string {
	names := make([]string, 0, len(s.byName))
	for name := range s.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Render fills the named template. Every {{ placeholder }} used by the
// template must have a value in vars.
func (s *Templates) Render(name string, vars map[string]string) (*Content, error) {
	t, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTemplate, name)
	}

	if missing := unresolved(vars, t.subjectSrc, t.htmlSrc, t.textSrc); len(missing) > 0 {
		return nil, fmt.Errorf("missing replacements for placeholders in template %q: [%s]",
			name, strings.Join(missing, ", "))
	}

	ctx := make(pongo2.Context, len(vars))
	for k, v := range vars {
		ctx[k] = v
	}

	subject, err := t.subject.Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("render subject: %w", err)
	}
	html, err := t.html.Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	text, err := t.text.Execute(ctx)
	if err != nil {
		return nil, fmt.Errorf("render text: %w", err)
	}

	return &Content{Subject: subject, HTML: html, Text: text}, nil
}

func unresolved(vars map[string]string, sources ...string) []string {
	seen := map[string]bool{}
	var missing []string
	for _, src := range sources {
		for _, m := range placeholderPattern.FindAllStringSubmatch(src, -1) {
			name := m[1]
			if _, ok := vars[name]; ok || seen[name] {
				continue
			}
			seen[name] = true
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	return missing
}
