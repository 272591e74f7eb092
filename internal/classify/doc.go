// Package classify triages visitor messages with a fixed keyword table.
//
// Rules are evaluated in priority order: greeting, course_inquiry,
// financial_inquiry, enrollment_inquiry, contact_request, complaint,
// compliment. The first rule with a whole-word keyword hit wins; otherwise
// the category is other.
//
// RequiresHuman is set when the category escalates by default (complaint,
// contact_request), when the text is longer than LongMessageRunes, or when
// it contains an explicit request for a human.
package classify
