package filterlist

import (
	"bufio"
	"io"
	"log/slog"
	"maps"
	"slices"
	"strings"

	"github.com/AdguardTeam/adengine/rules"
	"github.com/AdguardTeam/golibs/errors"
	"github.com/AdguardTeam/golibs/logutil/slogutil"
)

// maxLineLength is the maximum length of a line in a rule list.  Longer lines
// are skipped.
const maxLineLength = 64 * 1024

// RuleScanner implements an interface for reading filtering rules.  Lines that
// cannot be parsed are logged and skipped.
type RuleScanner struct {
	logger  *slog.Logger
	reader  *bufio.Reader
	current rules.Rule

	// parsed is the sorted list of the rules of a [ParsedRuleList], if the
	// scanner reads one.
	parsed []rules.Rule

	listID         int
	currentIdx     int
	currentPos     int
	ignoreCosmetic bool
}

// NewRuleScanner returns a new RuleScanner to read from r.  r is the reader
// of the list contents, listID is the rule list identifier and
// ignoreCosmetic tells whether cosmetic rules should be skipped.
func NewRuleScanner(r io.Reader, listID int, ignoreCosmetic bool) (s *RuleScanner) {
	return &RuleScanner{
		logger:         slogutil.NewDiscardLogger(),
		reader:         bufio.NewReaderSize(r, 4096),
		listID:         listID,
		ignoreCosmetic: ignoreCosmetic,
	}
}

// newParsedRuleScanner returns a scanner over already parsed rules.
func newParsedRuleScanner(rs map[int]rules.Rule) (s *RuleScanner) {
	idxs := slices.Sorted(maps.Keys(rs))
	parsed := make([]rules.Rule, 0, len(idxs))
	for _, idx := range idxs {
		parsed = append(parsed, rs[idx])
	}

	return &RuleScanner{
		logger: slogutil.NewDiscardLogger(),
		parsed: parsed,
	}
}

// SetLogger sets the logger used to report the lines that were skipped.
func (s *RuleScanner) SetLogger(l *slog.Logger) {
	if l != nil {
		s.logger = l
	}
}

// Scan advances the RuleScanner to the next rule, which will then be available
// through the Rule method.  It returns false when the scan stops, either by
// reaching the end of the input or an error.
func (s *RuleScanner) Scan() (ok bool) {
	if s.parsed != nil {
		return s.scanParsed()
	}

	if s.reader == nil {
		return false
	}

	for {
		line, idx, err := s.readLine()
		if line != "" {
			r := s.parseLine(line, idx)
			if r != nil {
				s.current = r
				s.currentIdx = idx

				return true
			}
		}

		if err != nil {
			if !errors.Is(err, io.EOF) {
				s.logger.Error("reading rule list", "list_id", s.listID, slogutil.KeyError, err)
			}

			s.current = nil
			s.reader = nil

			return false
		}
	}
}

// scanParsed advances the scanner of a [ParsedRuleList].
func (s *RuleScanner) scanParsed() (ok bool) {
	if len(s.parsed) == 0 {
		s.current = nil

		return false
	}

	s.current = s.parsed[0]
	_, s.currentIdx = StorageIdxToRuleListIdx(ruleID(s.current))
	s.parsed = s.parsed[1:]

	return true
}

// readLine reads the next line and returns it along with the index of its
// first byte.  Lines longer than [maxLineLength] are returned empty.
func (s *RuleScanner) readLine() (line string, idx int, err error) {
	idx = s.currentPos

	line, err = s.reader.ReadString('\n')
	s.currentPos += len(line)

	line = strings.TrimRight(line, "\r\n")
	if len(line) > maxLineLength {
		s.logger.Debug("skipping long line", "list_id", s.listID, "idx", idx)

		return "", idx, err
	}

	return line, idx, err
}

// parseLine parses a line and returns the rule or nil if the line should be
// skipped.
func (s *RuleScanner) parseLine(line string, idx int) (r rules.Rule) {
	r, err := rules.NewRule(line, s.listID)
	if err != nil {
		s.logger.Debug(
			"skipping rule",
			"list_id", s.listID,
			"idx", idx,
			"text", line,
			slogutil.KeyError, err,
		)

		return nil
	}

	if r == nil {
		return nil
	}

	if _, ok := r.(*rules.CosmeticRule); ok && s.ignoreCosmetic {
		return nil
	}

	setRuleID(r, StorageIdx(s.listID, idx))

	return r
}

// Rule returns the most recent rule generated by a call to Scan, and the
// index of this rule's text.
func (s *RuleScanner) Rule() (r rules.Rule, idx int) {
	return s.current, s.currentIdx
}
