// ABOUTME: Department router mapping a triage category to a department id
// ABOUTME: An explicit override always wins; other goes to the general queue

package routing

import "github.com/2389/coven-desk/internal/classify"

// GeneralQueue is the empty department id: no specific department.
const GeneralQueue = ""

// DefaultTable is the built-in category to department mapping.
func DefaultTable() map[classify.Category]string {
	return map[classify.Category]string{
		classify.CourseInquiry:     "courses",
		classify.FinancialInquiry:  "finance",
		classify.EnrollmentInquiry: "enrollment",
		classify.ContactRequest:    "support",
		classify.Complaint:         "ombudsman",
		classify.Compliment:        "support",
		classify.Greeting:          "support",
	}
}

// Router resolves departments. It is immutable after construction.
type Router struct {
	table map[classify.Category]string
}

// NewRouter builds a router from the default table with overrides applied.
// An override with an empty department sends that category to the general queue.
func NewRouter(overrides map[string]string) *Router {
	table := DefaultTable()
	for category, dept := range overrides {
		table[classify.Category(category)] = dept
	}
	return &Router{table: table}
}

// Route returns override when it is non-empty, otherwise the table entry
// for category. Unknown categories and other resolve to GeneralQueue.
func (r *Router) Route(category classify.Category, override string) string {
	if override != "" {
		return override
	}
	if category == classify.Other {
		return GeneralQueue
	}
	return r.table[category]
}
