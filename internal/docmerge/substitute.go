package docmerge

import (
	"context"
	"regexp"
	"sort"
	"strings"

	"github.com/beevik/etree"
)

// TokenPrefix starts every placeholder
const TokenPrefix = "$"

const ctxCheckEvery = 1024

// NewReplacer builds the substitution table: "$key" becomes values[key].
// Longer tokens are tried first, so "$identifier" is not consumed by "$id".
func NewReplacer(values map[string]string) *strings.Replacer {
	keys := make([]string, 0, len(values))
	for k := range values {
		if k != "" {
			keys = append(keys, k)
		}
	}
	sort.Slice(keys, func(i, j int) bool {
		if len(keys[i]) != len(keys[j]) {
			return len(keys[i]) > len(keys[j])
		}
		return keys[i] < keys[j]
	})

	pairs := make([]string, 0, len(keys)*2)
	for _, k := range keys {
		pairs = append(pairs, TokenPrefix+k, values[k])
	}
	return strings.NewReplacer(pairs...)
}

// substituter rewrites the text and tail of every element below a root
type substituter struct {
	ctx      context.Context
	replacer *strings.Replacer
	visited  int
	changed  int
}

func (s *substituter) replace(text string) (string, bool) {
	if !strings.Contains(text, TokenPrefix) {
		return text, false
	}
	out := s.replacer.Replace(text)
	return out, out != text
}

// walk visits el and all of its descendants depth-first
func (s *substituter) walk(el *etree.Element) error {
	s.visited++
	if s.visited%ctxCheckEvery == 0 {
		if err := s.ctx.Err(); err != nil {
			return err
		}
	}

	if text, ok := s.replace(el.Text()); ok {
		el.SetText(text)
		s.changed++
	}
	for _, child := range el.ChildElements() {
		if err := s.walk(child); err != nil {
			return err
		}
	}
	if tail, ok := s.replace(el.Tail()); ok {
		el.SetTail(tail)
		s.changed++
	}
	return nil
}

// Substitute replaces placeholders throughout doc and returns how many text runs changed
func Substitute(ctx context.Context, doc *etree.Document, values map[string]string) (int, error) {
	root := doc.Root()
	if root == nil {
		return 0, ErrContentMissing
	}
	s := &substituter{ctx: ctx, replacer: NewReplacer(values)}
	if err := s.walk(root); err != nil {
		return s.changed, err
	}
	return s.changed, nil
}

var (
	declVersion  = regexp.MustCompile(`\bversion\s*=\s*("[^"]*"|'[^']*')`)
	declEncoding = regexp.MustCompile(`\bencoding\s*=\s*("[^"]*"|'[^']*')`)
)

const utf8Encoding = `encoding="UTF-8"`

// ensureDeclaration makes the document declare UTF-8 explicitly. An existing
// declaration keeps its other pseudo-attributes (version, standalone).
func ensureDeclaration(doc *etree.Document) {
	for _, tok := range doc.Child {
		if pi, ok := tok.(*etree.ProcInst); ok && pi.Target == "xml" {
			pi.Inst = withUTF8(pi.Inst)
			return
		}
	}
	doc.InsertChildAt(0, etree.NewProcInst("xml", `version="1.0" `+utf8Encoding))
}

func withUTF8(inst string) string {
	if declEncoding.MatchString(inst) {
		return declEncoding.ReplaceAllLiteralString(inst, utf8Encoding)
	}
	if loc := declVersion.FindStringIndex(inst); loc != nil {
		return inst[:loc[1]] + " " + utf8Encoding + inst[loc[1]:]
	}
	return strings.TrimSpace(`version="1.0" ` + utf8Encoding + " " + inst)
}
