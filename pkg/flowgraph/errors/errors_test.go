package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestCategoryString(t *testing.T) {
	tests := []struct {
		category Category
		expected string
	}{
		{CategoryTransient, "transient"},
		{CategoryPermanent, "permanent"},
		{CategoryMalformed, "malformed"},
		{CategoryCanceled, "canceled"},
		{Category(99), "unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.category.String(); got != tt.expected {
				t.Errorf("Category(%d).String() = %s, want %s", tt.category, got, tt.expected)
			}
		})
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected Category
	}{
		{"nil error", nil, CategoryPermanent},
		{"HTTP 408", &HTTPError{StatusCode: 408}, CategoryTransient},
		{"HTTP 429", &HTTPError{StatusCode: 429}, CategoryTransient},
		{"HTTP 503", &HTTPError{StatusCode: 503}, CategoryTransient},
		{"HTTP 500", &HTTPError{StatusCode: 500}, CategoryTransient},
		{"HTTP 401", &HTTPError{StatusCode: 401}, CategoryPermanent},
		{"HTTP 400", &HTTPError{StatusCode: 400}, CategoryPermanent},
		{"HTTP 404", &HTTPError{StatusCode: 404}, CategoryPermanent},
		{"JSON parse error", &JSONParseError{Message: "unexpected token"}, CategoryMalformed},
		{"Validation error", &ValidationError{Message: "missing field"}, CategoryMalformed},
		{"Timeout error", &TimeoutError{Operation: "api call", Duration: "30s"}, CategoryTransient},
		{"Deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), CategoryTransient},
		{"Canceled", fmt.Errorf("call: %w", context.Canceled), CategoryCanceled},
		{"Categorized error", &CategorizedError{Category: CategoryMalformed}, CategoryMalformed},
		{"Wrapped HTTP", fmt.Errorf("search: %w", &HTTPError{StatusCode: 502}), CategoryTransient},
		{"Unknown error", errors.New("unknown"), CategoryPermanent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Categorize(tt.err); got != tt.expected {
				t.Errorf("Categorize() = %s, want %s", got, tt.expected)
			}
		})
	}
}

func TestCategorizedError(t *testing.T) {
	t.Run("error message with context", func(t *testing.T) {
		err := NewCategorized(errors.New("failed"), CategoryTransient, "api call")
		expected := "api call: failed (category: transient)"
		if got := err.Error(); got != expected {
			t.Errorf("Error() = %q, want %q", got, expected)
		}
	})

	t.Run("error message without context", func(t *testing.T) {
		err := &CategorizedError{Err: errors.New("failed"), Category: CategoryMalformed}
		if got := err.Error(); got != "failed (category: malformed)" {
			t.Errorf("Error() = %q", got)
		}
	})

	t.Run("unwrap", func(t *testing.T) {
		inner := errors.New("inner error")
		err := NewCategorized(inner, CategoryPermanent, "test")
		if !errors.Is(err, inner) {
			t.Error("Unwrap should return inner error")
		}
	})

	t.Run("explicit category wins over wrapped type", func(t *testing.T) {
		err := Permanent(&HTTPError{StatusCode: 503}, "search")
		if got := Categorize(err); got != CategoryPermanent {
			t.Errorf("Categorize() = %s, want permanent", got)
		}
	})
}

func TestErrorConstructors(t *testing.T) {
	inner := errors.New("test error")

	tests := []struct {
		name string
		err  *CategorizedError
		want Category
	}{
		{"Transient", Transient(inner, "context"), CategoryTransient},
		{"Permanent", Permanent(inner, "context"), CategoryPermanent},
		{"Malformed", Malformed(inner, "context"), CategoryMalformed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Category != tt.want {
				t.Errorf("Category = %s, want %s", tt.err.Category, tt.want)
			}
			if tt.err.Context != "context" {
				t.Errorf("Context = %q", tt.err.Context)
			}
		})
	}
}

func TestPredicates(t *testing.T) {
	if !IsTransient(&HTTPError{StatusCode: 429}) {
		t.Error("429 should be transient")
	}
	if IsTransient(&HTTPError{StatusCode: 401}) {
		t.Error("401 should not be transient")
	}
	if !IsMalformed(&JSONParseError{Message: "bad"}) {
		t.Error("parse error should be malformed")
	}
}

func TestTypedErrorMessages(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{&HTTPError{StatusCode: 500, Message: "boom"}, "HTTP 500: boom"},
		{&HTTPError{StatusCode: 502, Message: "bad gateway", Endpoint: "/search"}, "HTTP 502 at /search: bad gateway"},
		{&JSONParseError{Message: "unexpected EOF"}, "JSON parse error: unexpected EOF"},
		{&ValidationError{Field: "route", Message: "required"}, "validation error on route: required"},
		{&ValidationError{Message: "empty"}, "validation error: empty"},
		{&TimeoutError{Operation: "complete", Duration: "30s"}, "timeout after 30s: complete"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}
