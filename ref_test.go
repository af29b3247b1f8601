package spantree

import (
	"context"
	"encoding/json"
	"testing"
)

func TestRefJSONRoundTrip(t *testing.T) {
	ref := Ref{ID: NewID(), Locator: "sqlite:/tmp/trace.db"}
	raw, err := json.Marshal(ref)
	if err != nil {
		t.Fatal(err)
	}
	var back Ref
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatal(err)
	}
	if back != ref {
		t.Errorf("round trip mismatch: %+v != %+v", back, ref)
	}
}

func TestResolveRegisteredScheme(t *testing.T) {
	span := newFakeSpan("resolved")
	RegisterResolver("reftest", func(ctx context.Context, ref Ref) (Span, error) {
		return span, nil
	})

	got, err := (Ref{ID: span.ID(), Locator: "reftest:somewhere"}).Resolve(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if got.ID() != span.ID() {
		t.Error("resolver returned a different span")
	}
}

func TestResolveUnknownScheme(t *testing.T) {
	if _, err := (Ref{ID: NewID(), Locator: "nosuch:x"}).Resolve(context.Background()); err == nil {
		t.Error("unknown scheme must error")
	}
	if _, err := (Ref{ID: NewID(), Locator: "noscheme"}).Resolve(context.Background()); err == nil {
		t.Error("locator without scheme must error")
	}
}

func TestRegisterResolverPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("duplicate registration must panic")
		}
	}()
	RegisterResolver("refdup", func(ctx context.Context, ref Ref) (Span, error) { return nil, nil })
	RegisterResolver("refdup", func(ctx context.Context, ref Ref) (Span, error) { return nil, nil })
}
