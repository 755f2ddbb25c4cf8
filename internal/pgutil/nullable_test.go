/*
Copyright 2026.

SPDX-License-Identifier: Apache-2.0
*/

package pgutil

import (
	"testing"
)

func TestNullString(t *testing.T) {
	if got := NullString(""); got != nil {
		t.Errorf("expected nil for empty string, got %v", got)
	}
	if got := NullString("hello"); got == nil || *got != "hello" {
		t.Errorf("expected pointer to %q, got %v", "hello", got)
	}
}

func TestDerefString(t *testing.T) {
	if got := DerefString(nil); got != "" {
		t.Errorf("expected empty string for nil, got %q", got)
	}
	s := "world"
	if got := DerefString(&s); got != "world" {
		t.Errorf("expected %q, got %q", "world", got)
	}
}

func TestNullInt32(t *testing.T) {
	if got := NullInt32(0); got != nil {
		t.Errorf("expected nil for zero, got %v", got)
	}
	if got := NullInt32(7); got == nil || *got != 7 {
		t.Errorf("expected pointer to 7, got %v", got)
	}
}

func TestInt32OrZero(t *testing.T) {
	if got := Int32OrZero(nil); got != 0 {
		t.Errorf("expected 0 for nil, got %d", got)
	}
	v := int32(7)
	if got := Int32OrZero(&v); got != 7 {
		t.Errorf("expected 7, got %d", got)
	}
}

func TestNullInt64(t *testing.T) {
	if got := NullInt64(0); got != nil {
		t.Errorf("expected nil for zero, got %v", got)
	}
	if got := NullInt64(99); got == nil || *got != 99 {
		t.Errorf("expected pointer to 99, got %v", got)
	}
}

func TestInt64OrZero(t *testing.T) {
	if got := Int64OrZero(nil); got != 0 {
		t.Errorf("expected 0 for nil, got %d", got)
	}
	v := int64(99)
	if got := Int64OrZero(&v); got != 99 {
		t.Errorf("expected 99, got %d", got)
	}
}

func TestFloat64OrZero(t *testing.T) {
	if got := Float64OrZero(nil); got != 0 {
		t.Errorf("expected 0 for nil, got %v", got)
	}
	v := 0.811
	if got := Float64OrZero(&v); got != 0.811 {
		t.Errorf("expected 0.811, got %v", got)
	}
}
