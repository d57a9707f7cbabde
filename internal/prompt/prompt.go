// Package prompt assembles the credit-risk analysis request sent to the model.
package prompt

import (
	"fmt"
	"strings"

	"github.com/klytics/creditkit/internal/statements"
)

// DefaultLanguage is the language the analysis is written in.
const DefaultLanguage = "Vietnamese"

const systemTemplate = `You are a leading corporate credit and financial analyst with deep experience of the lending regulations of the Vietnamese banking sector.
Your task is to analyse in detail the financial statements provided (Balance Sheet, Income Statement, Cash Flow Statement).
Based on that analysis, give an overall assessment of the company's financial position and **identify the 3 to 5 most material risks** the bank must weigh before deciding to lend.
Pay particular attention to liquidity, leverage, profitability and cash-flow indicators.
The response must be written in %s and clearly structured with the sections **1. Overall Assessment** and **2. Material Risks** (use bullet points).`

const leadIn = "Below is the customer's financial statement data. Perform the analysis and identify the risks as instructed:"

// Options configures prompt assembly.
type Options struct {
	Language string
}

// Request is the payload handed to the model client.
type Request struct {
	System string `json:"system"`
	Body   string `json:"body"`
}

// Size returns the body length in characters.
func (r Request) Size() int {
	return len([]rune(r.Body))
}

// SystemInstruction returns the analyst persona for the given language.
func SystemInstruction(language string) string {
	if strings.TrimSpace(language) == "" {
		language = DefaultLanguage
	}
	return fmt.Sprintf(systemTemplate, language)
}

// Build concatenates the lead-in and every block, each followed by a blank line.
func Build(blocks []statements.Block, opts Options) Request {
	var b strings.Builder
	b.WriteString(leadIn)
	b.WriteString("\n\n")
	for _, block := range blocks {
		b.WriteString(block.Text)
		b.WriteString("\n\n")
	}

	return Request{
		System: SystemInstruction(opts.Language),
		Body:   b.String(),
	}
}
