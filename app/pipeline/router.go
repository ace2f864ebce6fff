package pipeline

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"intranet/types"

	"go.uber.org/zap"
)

// Keyword-first routing resolves the high-volume cases deterministically and
// keeps the model out of the hot path. The model breaks ties for ambiguous
// phrasing only.
var (
	auditKeywords = []string{"audit", "risk score", "risk rating"}
	// Queries that mention audit topics together with these usually want a
	// support ticket, not a finance document.
	ticketKeywords = []string{"ticket", "security", "access", "laptop", "system"}

	financeKeywords = []string{
		"invoice", "ap", "ar", "general ledger", "gl", "treasury",
		"reimbursement", "expense", "finance", "payroll", "tax",
		"risk score", "risk rating",
	}
	itKeywords = []string{
		"vpn", "laptop", "wifi", "network", "password", "access",
		"security", "ticket", "system",
	}
	hrKeywords = []string{"leave", "holiday", "attendance", "hr", "benefit", "code of conduct"}

	// Narrower sets used only when the model call itself fails, so routing
	// still degrades to a deterministic decision.
	hrFallbackKeywords      = []string{"payroll", "leave", "benefit", "holiday", "policy", "hr"}
	itFallbackKeywords      = []string{"vpn", "laptop", "email", "network", "wifi", "password", "access", "it"}
	financeFallbackKeywords = []string{"invoice", "expense", "reimbursement", "budget", "finance", "payment"}
)

// Router classifies a query into a department. It never fails: every path,
// including model unavailability, ends in a department.
type Router struct {
	llm    TextGenerator
	logger *zap.Logger
}

func NewRouter(llm TextGenerator, logger *zap.Logger) *Router {
	return &Router{llm: llm, logger: logger}
}

func (r *Router) Classify(ctx context.Context, query string) types.Department {
	q := newQueryText(query)

	// Audit/risk wording is finance territory unless the query also talks
	// about tickets, access or hardware.
	if q.containsAny(auditKeywords) && !q.containsAny(ticketKeywords) {
		return types.DepartmentFinance
	}
	if q.containsAny(financeKeywords) {
		return types.DepartmentFinance
	}
	if q.containsAny(itKeywords) {
		return types.DepartmentIT
	}
	if q.containsAny(hrKeywords) {
		return types.DepartmentHR
	}

	reply, err := r.llm.Complete(ctx, routingPrompt(query))
	if err != nil {
		r.logger.Warn("routing model unavailable, using keyword fallback", zap.Error(err))
		return q.fallbackDepartment()
	}

	switch normalizeRoutingReply(reply) {
	case "FINANCE":
		return types.DepartmentFinance
	case "HR":
		return types.DepartmentHR
	case "IT":
		return types.DepartmentIT
	}
	return types.DepartmentGeneral
}

func routingPrompt(query string) string {
	return fmt.Sprintf(`You are an enterprise AI router.

Classify the following user query into ONE category only:
- HR
- IT
- Finance
- General

User Query:
%q

Reply with only one word.`, query)
}

// normalizeRoutingReply reduces a model reply to the alphabetic characters of
// its first word, upper-cased. Anything unrecognizable maps to GENERAL
// upstream.
func normalizeRoutingReply(reply string) string {
	fields := strings.Fields(reply)
	if len(fields) == 0 {
		return ""
	}
	var b strings.Builder
	for _, c := range fields[0] {
		if unicode.IsLetter(c) {
			b.WriteRune(c)
		}
	}
	return strings.ToUpper(b.String())
}

// queryText wraps the lowered query with a word index so single-word keywords
// match on word boundaries ("ap", "gl", "it") while phrases match as
// substrings.
type queryText struct {
	lowered string
	words   map[string]struct{}
}

func newQueryText(query string) queryText {
	lowered := strings.ToLower(query)
	words := make(map[string]struct{})
	for _, w := range strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		words[w] = struct{}{}
	}
	return queryText{lowered: lowered, words: words}
}

func (q queryText) contains(keyword string) bool {
	if strings.ContainsRune(keyword, ' ') {
		return strings.Contains(q.lowered, keyword)
	}
	_, ok := q.words[keyword]
	return ok
}

func (q queryText) containsAny(keywords []string) bool {
	for _, k := range keywords {
		if q.contains(k) {
			return true
		}
	}
	return false
}

func (q queryText) fallbackDepartment() types.Department {
	switch {
	case q.containsAny(hrFallbackKeywords):
		return types.DepartmentHR
	case q.containsAny(itFallbackKeywords):
		return types.DepartmentIT
	case q.containsAny(financeFallbackKeywords):
		return types.DepartmentFinance
	}
	return types.DepartmentGeneral
}
