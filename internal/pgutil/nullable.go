/*
Copyright 2026.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package pgutil

// NullString returns nil when s is empty, otherwise a pointer to s.
// Useful for mapping Go strings to nullable TEXT/VARCHAR columns.
func NullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// DerefString returns the empty string when s is nil, otherwise *s.
func DerefString(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// NullInt32 returns nil when v is zero, otherwise a pointer to v.
func NullInt32(v int32) *int32 {
	if v == 0 {
		return nil
	}
	return &v
}

// Int32OrZero returns zero when v is nil, otherwise *v.
func Int32OrZero(v *int32) int32 {
	if v == nil {
		return 0
	}
	return *v
}

// NullInt64 returns nil when v is zero, otherwise a pointer to v.
func NullInt64(v int64) *int64 {
	if v == 0 {
		return nil
	}
	return &v
}

// Int64OrZero returns zero when v is nil, otherwise *v.
func Int64OrZero(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}

// Float64OrZero returns zero when v is nil, otherwise *v.
func Float64OrZero(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}
