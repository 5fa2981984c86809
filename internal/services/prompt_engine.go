package services

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"zerorag/internal/models"
)

// Prompt templates use {context} and {query} placeholders. The general type
// maps to the base template; the fallback template is substituted whenever the
// packed context is empty.
var promptTemplates = map[models.QueryType]string{
	models.QueryTypeGeneral: `You are ZeroRAG, an intelligent AI assistant that provides accurate, helpful, and contextually relevant answers based on the provided documents. Your responses should be:

1. **Accurate**: Based only on the information provided in the context
2. **Helpful**: Address the user's question directly and completely
3. **Transparent**: Clearly indicate when information is not available in the context
4. **Ethical**: Follow safety guidelines and avoid harmful content
5. **Well-structured**: Organize information clearly and logically

Context Information:
{context}

User Question: {query}

Instructions:
- Use only the information from the provided context
- If the context doesn't contain enough information, say so clearly
- Cite specific sources when possible
- Provide a comprehensive but concise answer
- Maintain a helpful and professional tone

Answer:`,

	models.QueryTypeFactual: `You are ZeroRAG, a factual information assistant. Your task is to provide precise, accurate answers based on the provided documents.

Context Information:
{context}

Factual Question: {query}

Instructions:
- Provide specific facts and data from the context
- Include exact numbers, dates, names, and details when available
- If information is missing or unclear, state this explicitly
- Cite the specific source documents for each fact
- Avoid speculation or interpretation beyond the provided facts

Answer:`,

	models.QueryTypeAnalytical: `You are ZeroRAG, an analytical assistant. Your task is to analyze the provided information and offer insights.

Context Information:
{context}

Analytical Question: {query}

Instructions:
- Analyze patterns, trends, and relationships in the data
- Provide logical reasoning and conclusions
- Consider multiple perspectives from the context
- Identify key insights and implications
- Support your analysis with specific evidence from the context
- Acknowledge limitations or gaps in the analysis

Answer:`,

	models.QueryTypeComparative: `You are ZeroRAG, a comparative analysis assistant. Your task is to compare and contrast information from the provided documents.

Context Information:
{context}

Comparative Question: {query}

Instructions:
- Identify similarities and differences clearly
- Organize your response with clear comparisons
- Use structured format (e.g., similarities vs differences)
- Provide specific examples from the context
- Highlight key distinctions and implications
- Maintain objectivity in comparisons

Answer:`,

	models.QueryTypeSummarization: `You are ZeroRAG, a summarization assistant. Your task is to create concise, comprehensive summaries of the provided information.

Context Information:
{context}

Summarization Request: {query}

Instructions:
- Create a well-structured summary covering key points
- Maintain the most important information
- Use clear, concise language
- Organize information logically
- Include main themes and conclusions
- Ensure the summary is complete but not overly detailed

Answer:`,

	models.QueryTypeCreative: `You are ZeroRAG, a creative assistant. Your task is to provide innovative insights and creative solutions based on the provided information.

Context Information:
{context}

Creative Request: {query}

Instructions:
- Use the context as inspiration for creative thinking
- Generate innovative ideas and solutions
- Think outside the box while staying relevant
- Provide multiple creative approaches
- Explain the reasoning behind creative suggestions
- Maintain appropriateness and usefulness

Answer:`,
}

const fallbackPromptTemplate = `You are ZeroRAG, a helpful AI assistant. The user has asked a question, but no relevant context was found in the available documents.

Question: {query}

Instructions:
- Provide a helpful response based on your general knowledge
- Clearly state that you don't have access to specific document information
- Offer general guidance or suggestions if appropriate
- Maintain a helpful and professional tone
- Encourage the user to rephrase or ask about available topics

Answer:`

var safetyGuidelines = map[models.SafetyLevel][]string{
	models.SafetyLevelStandard: {
		"Avoid harmful, dangerous, or illegal content",
		"Respect privacy and confidentiality",
		"Provide accurate information only",
		"Maintain professional and respectful tone",
		"Avoid bias and discrimination",
	},
	models.SafetyLevelConservative: {
		"Strictly avoid any potentially harmful content",
		"Be extra cautious with medical, legal, or financial advice",
		"Require explicit disclaimers for sensitive topics",
		"Prioritize safety over completeness",
		"Avoid controversial or polarizing topics",
	},
	models.SafetyLevelPermissive: {
		"Allow broader range of topics and discussions",
		"Provide more detailed and comprehensive responses",
		"Include more creative and exploratory content",
		"Maintain basic safety standards",
		"Allow for more nuanced discussions",
	},
}

var responseFormatHints = map[models.ResponseFormat]string{
	models.ResponseFormatText:         "Provide a natural, flowing text response.",
	models.ResponseFormatBulletPoints: "Organize your response as a list of bullet points for clarity.",
	models.ResponseFormatNumberedList: "Present your response as a numbered list for structured information.",
	models.ResponseFormatTable:        "Format your response as a table when comparing multiple items or data points.",
	models.ResponseFormatJSON:         "Provide your response in JSON format for structured data.",
	models.ResponseFormatSummary:      "Provide a concise summary with key points highlighted.",
}

// Keyword cues checked in order; the first list with a hit wins.
var queryTypeCues = []struct {
	queryType models.QueryType
	cues      []string
}{
	{models.QueryTypeFactual, []string{"what is", "when", "where", "who", "how many", "how much", "facts", "data"}},
	{models.QueryTypeAnalytical, []string{"analyze", "explain", "why", "how does", "what causes", "implications", "trends", "analysis"}},
	{models.QueryTypeComparative, []string{"compare", "difference", "similar", "versus", "vs", "contrast", "better", "worse"}},
	{models.QueryTypeSummarization, []string{"summarize", "summary", "overview", "brief", "key points", "main points"}},
	{models.QueryTypeCreative, []string{"creative", "innovative", "ideas", "suggestions", "brainstorm", "imagine", "create", "design"}},
}

var harmfulContentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`how to (harm|hurt|kill|injure)`),
	regexp.MustCompile(`illegal (activities|methods|procedures)`),
	regexp.MustCompile(`dangerous (chemicals|substances|methods)`),
	regexp.MustCompile(`hack(ing|er)`),
	regexp.MustCompile(`exploit(ing|s)`),
	regexp.MustCompile(`bypass(ing)? (security|protection)`),
}

var genericAnswerPhrases = []string{
	"i don't have enough information",
	"i cannot answer",
	"i don't know",
	"no information available",
}

var (
	answerWordRe   = regexp.MustCompile(`\w+`)
	bulletLineRe   = regexp.MustCompile(`(?m)^\s*[-*•]\s+\S`)
	numberedLineRe = regexp.MustCompile(`(?m)^\s*\d+[.)]\s+\S`)
)

// minContextAdherence is the fraction of answer words that must appear in the
// packed context before the answer is considered grounded.
const minContextAdherence = 0.15

// PromptEngine selects and fills prompt templates, classifies queries, and
// validates generated answers. All methods are pure and safe for concurrent
// use.
type PromptEngine struct {
	templates map[models.QueryType]string
	safety    map[models.SafetyLevel][]string
	formats   map[models.ResponseFormat]string
	harmful   []*regexp.Regexp
	stopWords map[string]bool
}

// NewPromptEngine creates a prompt engine with the built-in template set.
func NewPromptEngine() *PromptEngine {
	stopWords := map[string]bool{
		"the": true, "a": true, "an": true, "and": true, "or": true, "but": true,
		"in": true, "on": true, "at": true, "to": true, "for": true, "of": true,
		"with": true, "by": true, "is": true, "are": true, "was": true, "were": true,
		"be": true, "been": true, "have": true, "has": true, "had": true, "do": true,
		"does": true, "did": true, "will": true, "would": true, "could": true, "should": true,
		"may": true, "might": true, "can": true, "this": true, "that": true, "these": true,
		"those": true, "i": true, "you": true, "he": true, "she": true, "it": true,
		"we": true, "they": true, "me": true, "him": true, "her": true, "us": true,
		"them": true,
	}

	return &PromptEngine{
		templates: promptTemplates,
		safety:    safetyGuidelines,
		formats:   responseFormatHints,
		harmful:   harmfulContentPatterns,
		stopWords: stopWords,
	}
}

// Classify picks a query type from keyword cues. An explicit type on the
// request should be honored by the caller instead of calling this.
func (e *PromptEngine) Classify(query string) models.QueryType {
	lower := strings.ToLower(query)
	for _, group := range queryTypeCues {
		for _, cue := range group.cues {
			if strings.Contains(lower, cue) {
				return group.queryType
			}
		}
	}
	return models.QueryTypeGeneral
}

// Build assembles the final prompt. An empty context block switches to the
// fallback template regardless of query type. Unknown safety levels default
// to standard; an unknown or empty response format adds no format block.
func (e *PromptEngine) Build(queryType models.QueryType, safetyLevel models.SafetyLevel, format models.ResponseFormat, contextBlock, query string) string {
	template, ok := e.templates[queryType]
	if !ok {
		template = e.templates[models.QueryTypeGeneral]
	}
	if strings.TrimSpace(contextBlock) == "" {
		template = fallbackPromptTemplate
	}

	prompt := strings.NewReplacer("{context}", contextBlock, "{query}", query).Replace(template)

	guidelines, ok := e.safety[safetyLevel]
	if !ok {
		guidelines = e.safety[models.SafetyLevelStandard]
	}
	var block strings.Builder
	for _, guideline := range guidelines {
		block.WriteString("- ")
		block.WriteString(guideline)
		block.WriteString("\n")
	}
	prompt += "\n\nSafety Guidelines:\n" + strings.TrimRight(block.String(), "\n")

	if hint, ok := e.formats[format]; ok {
		prompt += "\n\nResponse Format: " + hint
	}
	return prompt
}

// ResponseValidation is the outcome of post-generation answer checks.
type ResponseValidation struct {
	Status      models.ValidationStatus `json:"status"`
	SafetyScore float64                 `json:"safety_score"`
	Issues      []string                `json:"issues,omitempty"`
}

// Validate scores a generated answer for safety, context adherence, and
// quality. The checks are cumulative: each finding lowers the safety score
// toward its own floor, and the status is the worst across all checks.
func (e *PromptEngine) Validate(answer, contextBlock string, format models.ResponseFormat) *ResponseValidation {
	result := &ResponseValidation{Status: models.ValidationStatusValid, SafetyScore: 1.0}

	if issues := e.safetyIssues(answer); len(issues) > 0 {
		result.Status = result.Status.Worst(models.ValidationStatusWarning)
		result.SafetyScore = math.Max(0.5, result.SafetyScore-float64(len(issues))*0.1)
		result.Issues = append(result.Issues, issues...)
	}

	if strings.TrimSpace(contextBlock) != "" {
		if ratio := e.contextAdherence(answer, contextBlock); ratio < minContextAdherence {
			result.Status = result.Status.Worst(models.ValidationStatusWarning)
			result.SafetyScore = math.Max(0.7, result.SafetyScore-0.2)
			result.Issues = append(result.Issues, fmt.Sprintf("answer shares only %.0f%% of its terms with the retrieved context", ratio*100))
		}
	}

	if issues := e.qualityIssues(answer, format); len(issues) > 0 {
		result.Status = result.Status.Worst(models.ValidationStatusWarning)
		result.SafetyScore = math.Max(0.6, result.SafetyScore-float64(len(issues))*0.1)
		result.Issues = append(result.Issues, issues...)
	}

	return result
}

func (e *PromptEngine) safetyIssues(answer string) []string {
	var issues []string
	lower := strings.ToLower(answer)
	for _, pattern := range e.harmful {
		if pattern.MatchString(lower) {
			issues = append(issues, fmt.Sprintf("potential safety concern: %s", pattern.String()))
		}
	}
	return issues
}

// contextAdherence returns the fraction of the answer's non-stopword terms
// that also occur in the context. An answer with no content words adheres
// trivially.
func (e *PromptEngine) contextAdherence(answer, contextBlock string) float64 {
	contextWords := e.contentWords(contextBlock)
	answerWords := e.contentWords(answer)
	if len(answerWords) == 0 {
		return 1.0
	}

	matched := 0
	for word := range answerWords {
		if contextWords[word] {
			matched++
		}
	}
	return float64(matched) / float64(len(answerWords))
}

func (e *PromptEngine) contentWords(text string) map[string]bool {
	words := make(map[string]bool)
	for _, word := range answerWordRe.FindAllString(strings.ToLower(text), -1) {
		if !e.stopWords[word] {
			words[word] = true
		}
	}
	return words
}

func (e *PromptEngine) qualityIssues(answer string, format models.ResponseFormat) []string {
	var issues []string
	trimmed := strings.TrimSpace(answer)
	lower := strings.ToLower(trimmed)

	if len(trimmed) < 20 {
		issues = append(issues, "response is very short")
	}

	generic := lower == "n/a"
	for _, phrase := range genericAnswerPhrases {
		if strings.Contains(lower, phrase) {
			generic = true
			break
		}
	}
	if generic && len(trimmed) < 100 {
		issues = append(issues, "response appears generic or incomplete")
	}

	if issue := formatIssue(trimmed, format); issue != "" {
		issues = append(issues, issue)
	}
	return issues
}

// formatIssue checks structural expectations for formats that have one.
func formatIssue(answer string, format models.ResponseFormat) string {
	switch format {
	case models.ResponseFormatBulletPoints:
		if len(bulletLineRe.FindAllString(answer, -1)) < 3 {
			return "bullet_points format expects at least 3 bullet items"
		}
	case models.ResponseFormatNumberedList:
		if len(numberedLineRe.FindAllString(answer, -1)) < 2 {
			return "numbered_list format expects a numbered sequence"
		}
	case models.ResponseFormatJSON:
		if !json.Valid([]byte(answer)) {
			return "json format expects a parseable JSON document"
		}
	}
	return ""
}
