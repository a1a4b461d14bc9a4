// internal/engines/types.go
package engines

// SystemPrompt steers every engine toward answers that carry explicit source
// URLs, which the citation extractor depends on downstream.
const SystemPrompt = "You are an AI search assistant specializing in competitive intelligence and market research. " +
	"Provide the most accurate answer and ALWAYS include specific URLs, website addresses, and " +
	"source links when mentioning companies, products, or industry reports. " +
	"Format URLs as: 'Visit https://company.com' or 'Check https://report.com'. " +
	"Include official company websites, industry publication URLs, and source links whenever possible. " +
	"If unsure about a specific URL, be conservative and avoid fabrication, but still provide " +
	"the company name and suggest visiting their official website."

// Response is the normalized shape every provider returns. The core never
// sees an engine-specific wire format.
type Response struct {
	Text         string
	Model        string
	InputTokens  int
	OutputTokens int
	LatencyMS    int
	CostUSD      *float64 // nil when the provider does not report cost
}
