// Package message rewrites opaque identifiers in notification text into names.
package message

import (
	"context"
	"regexp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/care-notify/internal/domain"
	"github.com/rs/zerolog/log"
)

// NameResolver maps an identifier to a display name.
type NameResolver interface {
	ResolveName(ctx context.Context, id string) (string, error)
}

// minIDLength is the shortest token treated as an identifier.
const minIDLength = 6

// candidate matches a space-free token after a connector word.
var candidate = regexp.MustCompile(`(?i)\b(?:at|with|to)\s+([^\s,.;:!?()"]+)`)

// labels mark a token as the first word of a readable name ("Riverside Clinic").
var labels = map[string]bool{
	"clinic":   true,
	"hospital": true,
	"center":   true,
	"centre":   true,
	"medical":  true,
	"practice": true,
}

// Processor is best-effort: it never fails and never blanks a message.
// Processing an already processed message returns it unchanged.
type Processor struct {
	resolver NameResolver
}

func NewProcessor(resolver NameResolver) *Processor {
	return &Processor{resolver: resolver}
}

// Process returns msg with every resolvable identifier replaced by its name.
// Only whole-token occurrences are replaced; "clinic-1" never rewrites part of
// "clinic-12".
func (p *Processor) Process(ctx context.Context, msg string) string {
	var spans []span
	seen := map[string]bool{}
	for _, m := range candidate.FindAllStringSubmatchIndex(msg, -1) {
		token := msg[m[2]:m[3]]
		if seen[token] {
			continue
		}
		seen[token] = true
		if !isOpaqueID(token, msg[m[3]:]) {
			continue
		}
		name, err := p.resolver.ResolveName(ctx, token)
		if err != nil || strings.TrimSpace(name) == "" {
			log.Debug().Err(err).Str("id", token).Msg("identifier left unresolved")
			continue
		}
		for _, at := range occurrences(msg, token) {
			spans = append(spans, span{start: at, end: at + len(token), name: name})
		}
	}
	if len(spans) == 0 {
		return msg
	}

	slices.SortFunc(spans, func(a, b span) int { return a.start - b.start })
	out := msg
	for i := len(spans) - 1; i >= 0; i-- {
		sp := spans[i]
		out = out[:sp.start] + sp.name + out[sp.end:]
	}
	return out
}

type span struct {
	start, end int
	name       string
}

// Apply processes the messages of ns in place.
func (p *Processor) Apply(ctx context.Context, ns []domain.Notification) {
	for i := range ns {
		ns[i].Message = p.Process(ctx, ns[i].Message)
	}
}

func isOpaqueID(token, rest string) bool {
	if utf8.RuneCountInString(token) < minIDLength {
		return false
	}
	if looksLikeName(token) || labels[strings.ToLower(nextWord(rest))] {
		return false
	}
	return strings.ContainsAny(token, "0123456789-_")
}

func looksLikeName(token string) bool {
	first, _ := utf8.DecodeRuneInString(token)
	if !unicode.IsUpper(first) {
		return false
	}
	for _, r := range token {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

// occurrences returns the byte offsets at which token stands as a whole token.
func occurrences(msg, token string) []int {
	var at []int
	for i := 0; i < len(msg); {
		j := strings.Index(msg[i:], token)
		if j < 0 {
			break
		}
		start := i + j
		if bounded(msg, start, start+len(token)) {
			at = append(at, start)
		}
		i = start + 1
	}
	return at
}

func bounded(msg string, start, end int) bool {
	if start > 0 {
		if r, _ := utf8.DecodeLastRuneInString(msg[:start]); !isDelimiter(r) {
			return false
		}
	}
	if end < len(msg) {
		if r, _ := utf8.DecodeRuneInString(msg[end:]); !isDelimiter(r) {
			return false
		}
	}
	return true
}

// isDelimiter mirrors the characters candidate stops a token at.
func isDelimiter(r rune) bool {
	return unicode.IsSpace(r) || strings.ContainsRune(`,.;:!?()"`, r)
}

func nextWord(s string) string {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return ""
	}
	return strings.TrimRight(fields[0], ",.;:!?)")
}
