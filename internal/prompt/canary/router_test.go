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

package canary

import (
	"context"
	"testing"

	"github.com/canarylabs/promptcanary/internal/prompt"
)

func TestRouterUnknownPrompt(t *testing.T) {
	store := newMockStore()
	r := NewRouter(store)

	sel, err := r.ChooseVersion(context.Background(), 99)
	if err != nil {
		t.Fatalf("ChooseVersion failed: %v", err)
	}
	if sel != (Selection{}) {
		t.Errorf("selection = %+v, want zero for unknown prompt", sel)
	}
}

func TestRouterBootstrapsRelease(t *testing.T) {
	store := newMockStore()
	store.addPrompt(1, "hello world")

	r := NewRouter(store)

	sel, err := r.ChooseVersion(context.Background(), 1)
	if err != nil {
		t.Fatalf("ChooseVersion failed: %v", err)
	}
	if sel.IsCanary {
		t.Error("bootstrapped release routed to canary")
	}
	if sel.Text != "hello world" {
		t.Errorf("Text = %q, want the prompt text", sel.Text)
	}

	release, err := store.GetRelease(context.Background(), 1)
	if err != nil {
		t.Fatalf("release not bootstrapped: %v", err)
	}
	if release.ActiveVersionID != sel.VersionID {
		t.Errorf("VersionID = %d, want active version %d", sel.VersionID, release.ActiveVersionID)
	}
}

func TestRouterDrawBoundary(t *testing.T) {
	tests := []struct {
		name       string
		percent    int32
		draw       int32
		wantCanary bool
	}{
		{name: "draw at percent serves canary", percent: 10, draw: 10, wantCanary: true},
		{name: "draw above percent serves active", percent: 10, draw: 11, wantCanary: false},
		{name: "draw of one serves canary", percent: 10, draw: 1, wantCanary: true},
		{name: "full canary always serves canary", percent: 100, draw: 100, wantCanary: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMockStore()
			stageLiveCanary(t, store, 1, tt.percent)

			r := NewRouter(store, WithDraw(func() int32 { return tt.draw }))

			sel, err := r.ChooseVersion(context.Background(), 1)
			if err != nil {
				t.Fatalf("ChooseVersion failed: %v", err)
			}
			if sel.IsCanary != tt.wantCanary {
				t.Errorf("IsCanary = %v, want %v", sel.IsCanary, tt.wantCanary)
			}
			wantText := "original text"
			if tt.wantCanary {
				wantText = "canary text"
			}
			if sel.Text != wantText {
				t.Errorf("Text = %q, want %q", sel.Text, wantText)
			}
		})
	}
}

func TestRouterZeroPercentNeverServesCanary(t *testing.T) {
	store := newMockStore()
	store.addPrompt(1, "original text")
	if _, err := store.InitRelease(context.Background(), 1); err != nil {
		t.Fatalf("InitRelease: %v", err)
	}

	// Lowest possible draw; with no live canary the draw must not matter.
	r := NewRouter(store, WithDraw(func() int32 { return 1 }))

	for range 10 {
		sel, err := r.ChooseVersion(context.Background(), 1)
		if err != nil {
			t.Fatalf("ChooseVersion failed: %v", err)
		}
		if sel.IsCanary {
			t.Fatal("canary served with no canary staged")
		}
	}
}

func TestRouterTrafficSplit(t *testing.T) {
	store := newMockStore()
	stageLiveCanary(t, store, 1, 10)

	// Cycle the draw through 1..100 so each value appears exactly once per
	// hundred calls; percent 10 must then serve the canary exactly 10% of
	// the time.
	var i int32
	r := NewRouter(store, WithDraw(func() int32 {
		i++
		return (i-1)%100 + 1
	}))

	const calls = 10_000
	canaryServed := 0
	for range calls {
		sel, err := r.ChooseVersion(context.Background(), 1)
		if err != nil {
			t.Fatalf("ChooseVersion failed: %v", err)
		}
		if sel.IsCanary {
			canaryServed++
		}
	}
	if canaryServed != calls/10 {
		t.Errorf("canary served %d of %d, want exactly %d", canaryServed, calls, calls/10)
	}
}

func TestRouterPropagatesVersionError(t *testing.T) {
	store := newMockStore()
	stageLiveCanary(t, store, 1, 100)

	// Remove the canary version to simulate a dangling id.
	store.mu.Lock()
	release := store.releases[1]
	delete(store.versions, release.CanaryVersionID)
	store.mu.Unlock()

	r := NewRouter(store, WithDraw(func() int32 { return 1 }))

	if _, err := r.ChooseVersion(context.Background(), 1); err == nil {
		t.Fatal("expected error for dangling version id")
	}
}

func TestClampPercent(t *testing.T) {
	tests := []struct {
		in   int32
		want int32
	}{
		{-5, 0},
		{0, 0},
		{50, 50},
		{100, 100},
		{101, 100},
	}
	for _, tt := range tests {
		if got := prompt.ClampPercent(tt.in); got != tt.want {
			t.Errorf("ClampPercent(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
