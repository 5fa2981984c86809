package services

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"fmt"
	"log"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	prose "github.com/jdkato/prose/v2"

	"zerorag/internal/models"
)

// ParseResult is the normalized output of a format parser.
type ParseResult struct {
	Text        string
	ContentHash string
	ContentType models.ContentType
	Encoding    string
	HasTables   bool
	HasImages   bool
	HasLinks    bool
	Metadata    map[string]interface{}
	Stats       ContentStats
}

// ContentStats captures document-level text statistics.
type ContentStats struct {
	WordCount      int `json:"word_count"`
	CharCount      int `json:"char_count"`
	SentenceCount  int `json:"sentence_count"`
	ParagraphCount int `json:"paragraph_count"`
	LineCount      int `json:"line_count"`
}

var (
	urlRe          = regexp.MustCompile(`https?://\S+`)
	mdImageRe      = regexp.MustCompile(`!\[([^\]]*)\]\(([^)]*)\)`)
	mdLinkRe       = regexp.MustCompile(`\[([^\]]+)\]\(([^)]+)\)`)
	mdBoldRe       = regexp.MustCompile(`\*\*(.+?)\*\*`)
	mdBoldUnderRe  = regexp.MustCompile(`__(.+?)__`)
	mdItalicRe     = regexp.MustCompile(`\*([^*\n]+)\*`)
	mdInlineCodeRe = regexp.MustCompile("`([^`]*)`")
	mdHeaderRe     = regexp.MustCompile(`^#{1,6}\s+(.*)$`)
	mdHRRe         = regexp.MustCompile(`^\s*[-*_]{3,}\s*$`)
	mdListItemRe   = regexp.MustCompile(`^\s*(?:[-*+]|\d+\.)\s+(.*)$`)
	mdTableCellsRe = regexp.MustCompile(`^[|\s:-]+$`)

	multiNewlineRe = regexp.MustCompile(`\n{3,}`)
	lineSpacesRe   = regexp.MustCompile(`[ \t]+`)
)

// csvDateLayouts are tried in order when sniffing column types.
var csvDateLayouts = []string{
	"2006-01-02",
	"2006/01/02",
	"01/02/2006",
	"Jan 2, 2006",
}

// DocumentParser turns raw upload bytes into normalized text plus the
// structural metadata the document record carries.
type DocumentParser struct {
	logger *log.Logger
}

// NewDocumentParser creates a parser for the supported upload formats.
func NewDocumentParser(logger *log.Logger) *DocumentParser {
	if logger == nil {
		logger = log.Default()
	}
	return &DocumentParser{logger: logger}
}

// Parse extracts text from content according to the file type.
func (p *DocumentParser) Parse(content []byte, fileType string) (*ParseResult, error) {
	var (
		result *ParseResult
		err    error
	)
	switch normalizeFileType(fileType) {
	case "txt", "text":
		result, err = p.parseText(content)
	case "csv":
		result, err = p.parseCSV(content)
	case "md", "markdown":
		result, err = p.parseMarkdown(content)
	default:
		return nil, models.NewValidationError("pipeline.parse",
			fmt.Sprintf("unsupported file type %q", fileType)).
			WithCode("UNSUPPORTED_FORMAT")
	}
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(result.Text) == "" {
		return nil, models.NewValidationError("pipeline.parse", "file contains no extractable text").
			WithCode("EMPTY_DOCUMENT")
	}

	result.ContentHash = fmt.Sprintf("%x", sha256.Sum256([]byte(result.Text)))
	result.Stats = AnalyzeContent(result.Text)

	p.logger.Printf("📄 Parsed %s content: %d chars, %d words, %d sentences",
		normalizeFileType(fileType), result.Stats.CharCount, result.Stats.WordCount, result.Stats.SentenceCount)
	return result, nil
}

func (p *DocumentParser) parseText(content []byte) (*ParseResult, error) {
	text, encoding := decodeText(content)
	text = cleanText(text)
	return &ParseResult{
		Text:        text,
		ContentType: models.ContentTypeText,
		Encoding:    encoding,
		HasLinks:    urlRe.MatchString(text),
	}, nil
}

// parseCSV keeps the header line and flattens every data row into
// "col=val; " pairs so row context survives chunking. Column types are
// sniffed from the first rows for metadata only.
func (p *DocumentParser) parseCSV(content []byte) (*ParseResult, error) {
	decoded, encoding := decodeText(content)

	reader := csv.NewReader(strings.NewReader(decoded))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, models.NewValidationError("pipeline.parse",
			fmt.Sprintf("malformed CSV: %v", err)).
			WithCode("MALFORMED_CSV")
	}
	if len(rows) == 0 {
		return nil, models.NewValidationError("pipeline.parse", "CSV contains no rows").
			WithCode("EMPTY_DOCUMENT")
	}

	header := rows[0]
	data := rows[1:]

	var sb strings.Builder
	sb.WriteString(strings.Join(header, ", "))
	sb.WriteString("\n")
	for _, row := range data {
		pairs := make([]string, 0, len(row))
		for i, col := range header {
			value := "(empty)"
			if i < len(row) && strings.TrimSpace(row[i]) != "" {
				value = strings.TrimSpace(row[i])
			}
			pairs = append(pairs, col+"="+value)
		}
		for i := len(header); i < len(row); i++ {
			pairs = append(pairs, fmt.Sprintf("column_%d=%s", i+1, strings.TrimSpace(row[i])))
		}
		sb.WriteString(strings.Join(pairs, "; "))
		sb.WriteString("\n")
	}

	return &ParseResult{
		Text:        cleanText(sb.String()),
		ContentType: models.ContentTypeStructured,
		Encoding:    encoding,
		HasTables:   true,
		Metadata: map[string]interface{}{
			"columns":      append([]string(nil), header...),
			"column_count": len(header),
			"row_count":    len(data),
			"column_types": detectColumnTypes(header, data),
		},
	}, nil
}

// parseMarkdown flattens markup into plain text. Headers normalize to a
// "## " prefix, tables serialize row-wise with the header repeated on each
// row, and links and images keep their text content.
func (p *DocumentParser) parseMarkdown(content []byte) (*ParseResult, error) {
	decoded, encoding := decodeText(content)
	lines := strings.Split(strings.ReplaceAll(decoded, "\r\n", "\n"), "\n")

	result := &ParseResult{
		ContentType: models.ContentTypeText,
		Encoding:    encoding,
	}

	var out []string
	inCodeBlock := false
	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			if !inCodeBlock {
				lang := strings.TrimSpace(strings.TrimLeft(trimmed, "`~"))
				if lang != "" {
					out = append(out, "[Code Block: "+lang+"]")
				} else {
					out = append(out, "[Code Block]")
				}
			}
			inCodeBlock = !inCodeBlock
			continue
		}
		if inCodeBlock {
			out = append(out, line)
			continue
		}

		if m := mdHeaderRe.FindStringSubmatch(trimmed); m != nil {
			out = append(out, "## "+inlineMarkdown(result, m[1]))
			continue
		}

		if isTableRow(trimmed) && i+1 < len(lines) && isTableSeparator(strings.TrimSpace(lines[i+1])) {
			headerCells := splitTableRow(trimmed)
			i++ // skip separator
			out = append(out, "Table:")
			for i+1 < len(lines) && isTableRow(strings.TrimSpace(lines[i+1])) {
				i++
				cells := splitTableRow(strings.TrimSpace(lines[i]))
				pairs := make([]string, 0, len(headerCells))
				for c, name := range headerCells {
					value := ""
					if c < len(cells) {
						value = cells[c]
					}
					pairs = append(pairs, inlineMarkdown(result, name)+": "+inlineMarkdown(result, value))
				}
				out = append(out, strings.Join(pairs, " | "))
			}
			result.HasTables = true
			continue
		}

		if mdHRRe.MatchString(trimmed) {
			out = append(out, "---")
			continue
		}

		if m := mdListItemRe.FindStringSubmatch(line); m != nil {
			out = append(out, "• "+inlineMarkdown(result, m[1]))
			continue
		}

		if strings.HasPrefix(trimmed, ">") {
			quoted := strings.TrimSpace(strings.TrimPrefix(trimmed, ">"))
			out = append(out, "Quote: "+inlineMarkdown(result, quoted))
			continue
		}

		out = append(out, inlineMarkdown(result, line))
	}

	if result.HasTables {
		result.ContentType = models.ContentTypeMixed
	}
	result.Text = cleanText(strings.Join(out, "\n"))
	return result, nil
}

// inlineMarkdown strips inline markup, recording which features were seen.
func inlineMarkdown(result *ParseResult, text string) string {
	if mdImageRe.MatchString(text) {
		result.HasImages = true
		text = mdImageRe.ReplaceAllString(text, "[Image: $1]")
	}
	if mdLinkRe.MatchString(text) {
		result.HasLinks = true
		text = mdLinkRe.ReplaceAllString(text, "$1 (URL: $2)")
	}
	if urlRe.MatchString(text) {
		result.HasLinks = true
	}
	text = mdInlineCodeRe.ReplaceAllString(text, "$1")
	text = mdBoldRe.ReplaceAllString(text, "$1")
	text = mdBoldUnderRe.ReplaceAllString(text, "$1")
	text = mdItalicRe.ReplaceAllString(text, "$1")
	return text
}

func isTableRow(line string) bool {
	return strings.HasPrefix(line, "|") && strings.Count(line, "|") >= 2
}

func isTableSeparator(line string) bool {
	return isTableRow(line) && mdTableCellsRe.MatchString(line) && strings.Contains(line, "-")
}

func splitTableRow(line string) []string {
	line = strings.Trim(line, "|")
	parts := strings.Split(line, "|")
	cells := make([]string, len(parts))
	for i, part := range parts {
		cells[i] = strings.TrimSpace(part)
	}
	return cells
}

// detectColumnTypes classifies each column as integer, float, date, or
// string by sampling up to the first ten data rows.
func detectColumnTypes(header []string, data [][]string) map[string]string {
	sample := data
	if len(sample) > 10 {
		sample = sample[:10]
	}

	types := make(map[string]string, len(header))
	for col, name := range header {
		values := make([]string, 0, len(sample))
		for _, row := range sample {
			if col < len(row) && strings.TrimSpace(row[col]) != "" {
				values = append(values, strings.TrimSpace(row[col]))
			}
		}
		types[name] = classifyValues(values)
	}
	return types
}

func classifyValues(values []string) string {
	if len(values) == 0 {
		return "string"
	}
	if allMatch(values, func(v string) bool {
		_, err := strconv.ParseInt(v, 10, 64)
		return err == nil
	}) {
		return "integer"
	}
	if allMatch(values, func(v string) bool {
		_, err := strconv.ParseFloat(v, 64)
		return err == nil
	}) {
		return "float"
	}
	if allMatch(values, isDateValue) {
		return "date"
	}
	return "string"
}

func allMatch(values []string, match func(string) bool) bool {
	for _, v := range values {
		if !match(v) {
			return false
		}
	}
	return true
}

func isDateValue(v string) bool {
	for _, layout := range csvDateLayouts {
		if _, err := time.Parse(layout, v); err == nil {
			return true
		}
	}
	return false
}

// normalizeFileType lowercases and strips a leading dot.
func normalizeFileType(fileType string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(fileType)), ".")
}

// decodeText decodes bytes as UTF-8, falling back to a Windows-1252 read
// with replacement characters for undefined bytes. A UTF-8 BOM is stripped.
func decodeText(content []byte) (string, string) {
	content = bytes.TrimPrefix(content, []byte{0xEF, 0xBB, 0xBF})
	if utf8.Valid(content) {
		return string(content), "utf-8"
	}

	runes := make([]rune, 0, len(content))
	for _, b := range content {
		runes = append(runes, cp1252Rune(b))
	}
	return string(runes), "cp1252"
}

// cp1252Rune maps a byte through Windows-1252. The 0x80-0x9F range holds
// printable characters there, unlike Latin-1.
func cp1252Rune(b byte) rune {
	if b < 0x80 || b > 0x9F {
		return rune(b)
	}
	switch b {
	case 0x80:
		return '€'
	case 0x82:
		return '‚'
	case 0x83:
		return 'ƒ'
	case 0x84:
		return '„'
	case 0x85:
		return '…'
	case 0x86:
		return '†'
	case 0x87:
		return '‡'
	case 0x88:
		return 'ˆ'
	case 0x89:
		return '‰'
	case 0x8A:
		return 'Š'
	case 0x8B:
		return '‹'
	case 0x8C:
		return 'Œ'
	case 0x8E:
		return 'Ž'
	case 0x91:
		return '‘'
	case 0x92:
		return '’'
	case 0x93:
		return '“'
	case 0x94:
		return '”'
	case 0x95:
		return '•'
	case 0x96:
		return '–'
	case 0x97:
		return '—'
	case 0x98:
		return '˜'
	case 0x99:
		return '™'
	case 0x9A:
		return 'š'
	case 0x9B:
		return '›'
	case 0x9C:
		return 'œ'
	case 0x9E:
		return 'ž'
	case 0x9F:
		return 'Ÿ'
	default:
		return unicode.ReplacementChar
	}
}

// cleanText normalizes line endings, strips control characters, collapses
// horizontal whitespace, and caps blank runs at one empty line.
func cleanText(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	var sb strings.Builder
	sb.Grow(len(text))
	for _, r := range text {
		if r == '\n' || r == '\t' || !unicode.IsControl(r) {
			sb.WriteRune(r)
		}
	}
	text = sb.String()

	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(lineSpacesRe.ReplaceAllString(line, " "), " ")
	}
	text = strings.Join(lines, "\n")
	text = multiNewlineRe.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}

// AnalyzeContent computes document-level statistics. Sentence boundaries
// come from prose's segmenter, with a punctuation count as fallback.
func AnalyzeContent(text string) ContentStats {
	stats := ContentStats{
		CharCount: len([]rune(text)),
		WordCount: len(strings.Fields(text)),
	}
	if strings.TrimSpace(text) == "" {
		return stats
	}
	stats.LineCount = strings.Count(text, "\n") + 1
	for _, paragraph := range paragraphBreakRe.Split(text, -1) {
		if strings.TrimSpace(paragraph) != "" {
			stats.ParagraphCount++
		}
	}

	doc, err := prose.NewDocument(text, prose.WithTagging(false), prose.WithExtraction(false))
	if err == nil {
		stats.SentenceCount = len(doc.Sentences())
	}
	if stats.SentenceCount == 0 {
		stats.SentenceCount = countSentences(text)
	}
	return stats
}
