// Package statements finds the required financial statements in a workbook
// and renders them as prompt-ready markdown blocks.
package statements

import (
	"fmt"
	"strings"

	"github.com/klytics/creditkit/internal/formats/xlsx"
)

// Requirement is one of the financial statements every workbook must provide.
type Requirement struct {
	Key         string `json:"key"`
	Description string `json:"description"`
}

// Required lists the statements in the order they appear in the prompt.
var Required = []Requirement{
	{Key: "CDKT", Description: "Bảng Cân đối Kế toán (Balance Sheet)"},
	{Key: "KQHDKD", Description: "Báo cáo Kết quả Hoạt động Kinh doanh (Income Statement)"},
	{Key: "BCLCTT", Description: "Báo cáo Lưu chuyển Tiền tệ (Cash Flow Statement)"},
}

// Matcher decides whether a worksheet name satisfies a requirement.
type Matcher interface {
	Match(sheetName string, req Requirement) bool
}

// SubstringMatcher matches when the lowercased sheet name contains the
// lowercased requirement key.
type SubstringMatcher struct{}

// Match implements Matcher.
func (SubstringMatcher) Match(sheetName string, req Requirement) bool {
	return strings.Contains(strings.ToLower(sheetName), strings.ToLower(req.Key))
}

// Match pairs a requirement with the worksheet chosen for it.
type Match struct {
	Requirement Requirement
	Sheet       *xlsx.Sheet
}

// Located is the result of a successful lookup: one match per requirement,
// in requirement order.
type Located struct {
	Matches []Match
}

// MissingError reports requirements with no matching worksheet.
type MissingError struct {
	Missing []Requirement
}

func (e *MissingError) Error() string {
	return fmt.Sprintf("missing required sheets: %s — check the sheet names", strings.Join(e.Descriptions(), ", "))
}

// Descriptions returns the descriptions of the missing requirements, in order.
func (e *MissingError) Descriptions() []string {
	out := make([]string, len(e.Missing))
	for i, r := range e.Missing {
		out[i] = r.Description
	}
	return out
}

// Locator finds requirement sheets in a workbook.
type Locator struct {
	Requirements []Requirement
	Matcher      Matcher
}

// NewLocator returns a Locator for the standard requirements using substring matching.
func NewLocator() *Locator {
	return &Locator{Requirements: Required, Matcher: SubstringMatcher{}}
}

// Locate scans worksheets in workbook order for each requirement; the first
// matching sheet wins. A *MissingError is returned if any requirement is unmatched.
func (l *Locator) Locate(wb *xlsx.Workbook) (*Located, error) {
	matcher := l.Matcher
	if matcher == nil {
		matcher = SubstringMatcher{}
	}

	located := &Located{}
	var missing []Requirement

	for _, req := range l.Requirements {
		sheet := firstMatch(wb, req, matcher)
		if sheet == nil {
			missing = append(missing, req)
			continue
		}
		located.Matches = append(located.Matches, Match{Requirement: req, Sheet: sheet})
	}

	if len(missing) > 0 {
		return nil, &MissingError{Missing: missing}
	}
	return located, nil
}

// Locate is shorthand for NewLocator().Locate.
func Locate(wb *xlsx.Workbook) (*Located, error) {
	return NewLocator().Locate(wb)
}

func firstMatch(wb *xlsx.Workbook, req Requirement, m Matcher) *xlsx.Sheet {
	for i := range wb.Sheets {
		if m.Match(wb.Sheets[i].Name, req) {
			return &wb.Sheets[i]
		}
	}
	return nil
}
