package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Severity grades a validation issue. Only errors block persistence.
type Severity string

const (
	SeverityError      Severity = "error"
	SeverityWarning    Severity = "warning"
	SeveritySuggestion Severity = "suggestion"
)

// IssueCode identifies the rule that produced an issue.
type IssueCode string

// Error codes
const (
	CodeInvalidRelationType   IssueCode = "invalid_relation_type"
	CodeMembersNotFound       IssueCode = "members_not_found"
	CodeSelfRelationship      IssueCode = "self_relationship"
	CodeDuplicateRelationship IssueCode = "duplicate_relationship"
	CodeConflictingReverse    IssueCode = "conflicting_reverse"
	CodeParentNotOlder        IssueCode = "parent_not_older"
	CodeCircularRelationship  IssueCode = "circular_relationship"
)

// Warning codes
const (
	CodeMissingBirthDates      IssueCode = "missing_birth_dates"
	CodeUnusualParentAgeGap    IssueCode = "unusual_parent_age_gap"
	CodeLargeSpouseAgeGap      IssueCode = "large_spouse_age_gap"
	CodeSameGenderSpouse       IssueCode = "same_gender_spouse"
	CodeLargeSiblingAgeGap     IssueCode = "large_sibling_age_gap"
	CodeAncestryCheckTruncated IssueCode = "ancestry_check_truncated"
	CodeMetadataNotPersisted   IssueCode = "metadata_not_persisted"
)

// Suggestion codes
const (
	CodeSwapDirection IssueCode = "swap_direction"
)

// Issue is a structured validation finding. Params carry the values the
// message refers to (member names, birth years, age gaps) so that callers
// can test or localize without parsing text.
type Issue struct {
	Code     IssueCode              `json:"code"`
	Severity Severity               `json:"severity"`
	Params   map[string]interface{} `json:"params,omitempty"`
}

func newIssue(code IssueCode, severity Severity, kv ...interface{}) Issue {
	issue := Issue{Code: code, Severity: severity}
	if len(kv) > 0 {
		issue.Params = make(map[string]interface{}, len(kv)/2)
		for i := 0; i+1 < len(kv); i += 2 {
			key, _ := kv[i].(string)
			issue.Params[key] = kv[i+1]
		}
	}
	return issue
}

func (i Issue) param(key string) interface{} {
	return i.Params[key]
}

// Message renders the issue as English text.
func (i Issue) Message() string {
	p := i.param
	switch i.Code {
	case CodeInvalidRelationType:
		return fmt.Sprintf("Unknown relationship type %q", p("type"))
	case CodeMembersNotFound:
		return "Could not find both family members"
	case CodeSelfRelationship:
		return "A family member cannot have a relationship with themselves"
	case CodeDuplicateRelationship:
		return fmt.Sprintf("A %v relationship already exists from %v to %v", p("existing_type"), p("from_name"), p("to_name"))
	case CodeConflictingReverse:
		return fmt.Sprintf("%v is already recorded as %v of %v, which conflicts with a %v relationship",
			p("to_name"), p("existing_type"), p("from_name"), p("type"))
	case CodeParentNotOlder:
		return fmt.Sprintf("%v (born %v) cannot be the parent of %v (born %v): a parent must be born before their child",
			p("parent_name"), p("parent_year"), p("child_name"), p("child_year"))
	case CodeCircularRelationship:
		return fmt.Sprintf("%v is already a descendant of %v; making %v a parent of %v would create a circular relationship",
			p("parent_name"), p("child_name"), p("parent_name"), p("child_name"))
	case CodeMissingBirthDates:
		return "Birth dates are missing for one or both members; the parent/child direction could not be verified"
	case CodeUnusualParentAgeGap:
		return fmt.Sprintf("An age gap of %v years between %v and %v is unusual for a parent and child",
			p("gap"), p("parent_name"), p("child_name"))
	case CodeLargeSpouseAgeGap:
		return fmt.Sprintf("There is an age gap of %v years between these spouses", p("gap"))
	case CodeSameGenderSpouse:
		return fmt.Sprintf("Both spouses are recorded as %v", p("gender"))
	case CodeLargeSiblingAgeGap:
		return fmt.Sprintf("There is an age gap of %v years between these siblings", p("gap"))
	case CodeAncestryCheckTruncated:
		return fmt.Sprintf("The ancestry check stopped early (%v); a longer circular chain may not have been detected", p("reason"))
	case CodeMetadataNotPersisted:
		return "Relationship details were not saved because the database does not support them"
	case CodeSwapDirection:
		return fmt.Sprintf("Did you mean %v is the parent of %v? Try swapping the two members", p("parent_name"), p("child_name"))
	default:
		return string(i.Code)
	}
}

// RenderIssues joins issue messages into one sentence list.
func RenderIssues(issues []Issue) string {
	msgs := make([]string, 0, len(issues))
	for _, issue := range issues {
		msgs = append(msgs, issue.Message())
	}
	return strings.Join(msgs, "; ")
}

// ValidationResult is the outcome of validating a relationship request.
// Warnings and suggestions never block persistence.
type ValidationResult struct {
	IsValid     bool    `json:"is_valid"`
	Errors      []Issue `json:"errors"`
	Warnings    []Issue `json:"warnings"`
	Suggestions []Issue `json:"suggestions"`
}

func (r *ValidationResult) add(issue Issue) {
	switch issue.Severity {
	case SeverityError:
		r.Errors = append(r.Errors, issue)
	case SeverityWarning:
		r.Warnings = append(r.Warnings, issue)
	default:
		r.Suggestions = append(r.Suggestions, issue)
	}
}

func (r *ValidationResult) finish() *ValidationResult {
	r.IsValid = len(r.Errors) == 0
	return r
}

// HasError reports whether the result contains an error with the given code.
func (r *ValidationResult) HasError(code IssueCode) bool {
	for _, issue := range r.Errors {
		if issue.Code == code {
			return true
		}
	}
	return false
}

var (
	// ErrRelationNotFound is returned when the identified edge does not exist.
	ErrRelationNotFound = errors.New("relationship not found")

	// ErrNotSibling is returned when a sibling-only update targets another edge type.
	ErrNotSibling = errors.New("sibling type can only be set on sibling relationships")

	// ErrMemberNotFound is returned when a member id does not resolve.
	ErrMemberNotFound = errors.New("family member not found")

	// ErrInvalidSiblingType is returned for a sibling type outside full, half and unknown.
	ErrInvalidSiblingType = errors.New("invalid sibling type")
)

// ValidationError reports a rejected request. It is always recoverable and
// its message is safe to show to end users.
type ValidationError struct {
	Errors      []Issue
	Suggestions []Issue
}

// Error combines the error messages and suggestions into one message.
func (e *ValidationError) Error() string {
	msg := RenderIssues(e.Errors)
	if len(e.Suggestions) > 0 {
		msg += ". " + RenderIssues(e.Suggestions)
	}
	return msg
}

// Has reports whether the error contains an issue with the given code.
func (e *ValidationError) Has(code IssueCode) bool {
	for _, issue := range e.Errors {
		if issue.Code == code {
			return true
		}
	}
	return false
}

// StoreError reports a failed backing-store call. The user-facing message
// is generic; the cause is available through errors.Unwrap for logging.
type StoreError struct {
	Op  string // create, update, delete, list, validate, suggest
	Err error
}

func (e *StoreError) Error() string {
	switch e.Op {
	case "list":
		return "Failed to load relationships"
	case "validate":
		return "Failed to validate relationship"
	case "suggest":
		return "Failed to load relationship suggestions"
	default:
		return "Failed to " + e.Op + " relationship"
	}
}

func (e *StoreError) Unwrap() error {
	return e.Err
}
