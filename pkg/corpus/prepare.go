package corpus

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// DropReason says why Prepare left a line out. Values appear in JSONL output.
type DropReason string

const (
	DropMalformed DropReason = "malformed"
	DropTooShort  DropReason = "too_short"
	DropLowValue  DropReason = "low_value"
	DropSensitive DropReason = "sensitive"
	DropDuplicate DropReason = "duplicate"
	DropOverLimit DropReason = "over_limit"
)

// PrepareOptions tune which pairs survive preparation.
type PrepareOptions struct {
	// MinPromptChars and MinCompletionChars count runes after trimming.
	MinPromptChars     int
	MinCompletionChars int

	// LowValuePrompts are whole prompts (case-insensitive) carrying no
	// training signal.
	LowValuePrompts []string

	// SensitiveTerms drop a pair when either side contains one
	// (case-insensitive).
	SensitiveTerms []string

	// MaxPairs keeps only the highest scoring pairs when positive.
	MaxPairs int
}

// DefaultPrepareOptions returns the filters applied by `loratune prepare`.
func DefaultPrepareOptions() PrepareOptions {
	return PrepareOptions{
		MinPromptChars:     5,
		MinCompletionChars: 10,
		LowValuePrompts: []string{
			"ok", "okay", "yes", "no", "sure", "thanks", "thank you",
			"bye", "goodbye", "good night", "good morning", "hi", "hello",
			"haha", "lol", "???", "!!!", "...",
		},
		SensitiveTerms: []string{
			"password", "passwd", "api_key", "apikey", "secret",
			"credit card", "card number", "bank account", "social security number",
		},
	}
}

// PrepareStats counts what happened to each input line.
type PrepareStats struct {
	Lines      int                `json:"lines"`
	BlankLines int                `json:"blank_lines"`
	Kept       int                `json:"kept"`
	Dropped    map[DropReason]int `json:"dropped"`
}

// DroppedTotal is the number of non-blank lines left out.
func (s *PrepareStats) DroppedTotal() int {
	n := 0
	for _, c := range s.Dropped {
		n += c
	}
	return n
}

// Preparer filters a loose prompt/completion corpus into one that passes
// Validator and carries less noise.
type Preparer struct {
	opts      PrepareOptions
	lowValue  map[string]bool
	sensitive []string
	logger    *zap.Logger
}

// NewPreparer creates a preparer. A nil logger disables logging.
func NewPreparer(opts PrepareOptions, logger *zap.Logger) *Preparer {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Preparer{opts: opts, lowValue: make(map[string]bool), logger: logger}
	for _, s := range opts.LowValuePrompts {
		p.lowValue[strings.ToLower(strings.TrimSpace(s))] = true
	}
	for _, s := range opts.SensitiveTerms {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			p.sensitive = append(p.sensitive, s)
		}
	}
	return p
}

// pair is a candidate line. The trimmed source bytes are written back
// unchanged so extra fields survive.
type pair struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
	Topic      any    `json:"topic,omitempty"`

	line  []byte
	index int
	score float64
}

// Prepare reads JSONL pairs from r and writes the surviving lines to w in
// input order. Lines that would fail Validator are dropped as malformed
// instead of stopping the run; only a read or write failure is an error.
func (p *Preparer) Prepare(r io.Reader, w io.Writer) (*PrepareStats, error) {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, initialLineBytes), MaxLineBytes)

	stats := &PrepareStats{Dropped: make(map[DropReason]int)}
	seen := make(map[string]bool)
	var kept []*pair

	for s.Scan() {
		stats.Lines++
		line := bytes.TrimSpace(s.Bytes())
		if len(line) == 0 {
			stats.BlankLines++
			continue
		}

		c, reason := p.screen(stats.Lines, line)
		if reason == "" {
			key := strings.TrimSpace(c.Prompt) + "\x00" + strings.TrimSpace(c.Completion)
			if seen[key] {
				reason = DropDuplicate
			}
			seen[key] = true
		}
		if reason != "" {
			stats.Dropped[reason]++
			continue
		}
		c.index = len(kept)
		kept = append(kept, c)
	}
	if err := s.Err(); err != nil {
		if !errors.Is(err, bufio.ErrTooLong) {
			return nil, fmt.Errorf("read training data: %w", err)
		}
		// The scanner cannot resume past an oversized line.
		stats.Dropped[DropMalformed]++
		p.logger.Warn("Stopped at oversized line", zap.Int("line", stats.Lines+1))
	}

	if limit := p.opts.MaxPairs; limit > 0 && len(kept) > limit {
		stats.Dropped[DropOverLimit] += len(kept) - limit
		kept = selectBest(kept, limit)
	}

	bw := bufio.NewWriter(w)
	for _, c := range kept {
		if _, err := bw.Write(c.line); err != nil {
			return nil, fmt.Errorf("write prepared data: %w", err)
		}
		if err := bw.WriteByte('\n'); err != nil {
			return nil, fmt.Errorf("write prepared data: %w", err)
		}
	}
	if err := bw.Flush(); err != nil {
		return nil, fmt.Errorf("write prepared data: %w", err)
	}
	stats.Kept = len(kept)

	p.logger.Debug("Corpus prepared",
		zap.Int("lines", stats.Lines),
		zap.Int("kept", stats.Kept),
		zap.Int("dropped", stats.DroppedTotal()))
	return stats, nil
}

// screen decodes one non-blank line and applies the per-pair filters.
func (p *Preparer) screen(lineNo int, line []byte) (*pair, DropReason) {
	if err := checkLine(lineNo, line); err != nil {
		return nil, DropMalformed
	}
	c := &pair{}
	if err := json.Unmarshal(line, c); err != nil {
		// Present but not strings.
		return nil, DropMalformed
	}
	c.line = append([]byte(nil), line...)

	prompt := strings.TrimSpace(c.Prompt)
	completion := strings.TrimSpace(c.Completion)
	switch {
	case utf8.RuneCountInString(prompt) < p.opts.MinPromptChars,
		utf8.RuneCountInString(completion) < p.opts.MinCompletionChars:
		return nil, DropTooShort
	case p.lowValue[strings.ToLower(prompt)]:
		return nil, DropLowValue
	case p.isSensitive(prompt), p.isSensitive(completion):
		return nil, DropSensitive
	}
	return c, ""
}

func (p *Preparer) isSensitive(text string) bool {
	lower := strings.ToLower(text)
	for _, term := range p.sensitive {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}

// selectBest keeps the n highest scoring pairs, restoring input order.
// Ties keep the earlier line.
func selectBest(pairs []*pair, n int) []*pair {
	for _, c := range pairs {
		c.score = qualityScore(c)
	}
	ranked := append([]*pair(nil), pairs...)
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })
	ranked = ranked[:n]
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].index < ranked[j].index })
	return ranked
}

// qualityScore favours mid-length prompts and answers, varied vocabulary,
// and a topic label.
func qualityScore(c *pair) float64 {
	promptLen := utf8.RuneCountInString(c.Prompt)
	completionLen := utf8.RuneCountInString(c.Completion)

	score := 0.0
	switch {
	case promptLen >= 20 && promptLen <= 500:
		score += 20
	case promptLen > 500 && promptLen <= 1000:
		score += 15
	case promptLen > 1000:
		score += 10
	}
	switch {
	case completionLen >= 50 && completionLen <= 800:
		score += 30
	case completionLen > 800 && completionLen <= 1500:
		score += 25
	case completionLen > 1500:
		score += 15
	}

	if total := promptLen + completionLen; total > 0 {
		distinct := make(map[rune]struct{})
		for _, r := range c.Prompt + c.Completion {
			distinct[r] = struct{}{}
		}
		score += float64(len(distinct)) / float64(total) * 30
	}

	if topic, ok := c.Topic.(string); ok && utf8.RuneCountInString(topic) > 5 {
		score += 20
	}
	return score
}
