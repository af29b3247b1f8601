package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/mvailla/spantree"
)

func TestTreeShape(t *testing.T) {
	// root -> A -> B -> (C, D)
	ctx := context.Background()
	tracing := New("root")
	ctx, err := tracing.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	defer tracing.End(ctx)

	ctxA, a, _ := spantree.StartSpan(ctx, "A", nil)
	ctxB, b, _ := spantree.StartSpan(ctxA, "B", nil)
	_, c, _ := spantree.StartSpan(ctxB, "C", nil)
	_ = c.End(ctxB)
	_, d, _ := spantree.StartSpan(ctxB, "D", nil)
	_ = d.End(ctxB)
	_ = b.End(ctxA)
	_ = a.End(ctx)

	tree, err := tracing.Tree(ctx)
	if err != nil {
		t.Fatal(err)
	}
	rootChildren, _ := tree.Children(ctx)
	if len(rootChildren) != 1 {
		t.Fatalf("root should have 1 child, got %d", len(rootChildren))
	}
	aChildren, _ := rootChildren[0].Children(ctx)
	if len(aChildren) != 1 {
		t.Fatalf("A should have 1 child, got %d", len(aChildren))
	}
	bChildren, _ := aChildren[0].Children(ctx)
	if len(bChildren) != 2 {
		t.Fatalf("B should have 2 children, got %d", len(bChildren))
	}
	leaves := map[string]bool{}
	for _, leaf := range bChildren {
		name, _ := leaf.Name(ctx)
		leaves[name] = true
		kids, _ := leaf.Children(ctx)
		if len(kids) != 0 {
			t.Errorf("%s should be a leaf", name)
		}
	}
	if !leaves["C"] || !leaves["D"] {
		t.Errorf("leaf set should be {C, D}, got %v", leaves)
	}
}

func TestParentNavigation(t *testing.T) {
	ctx := context.Background()
	tracing := New("root")
	ctx, _ = tracing.Start(ctx)

	child, _ := tracing.Root().NewChild(ctx, "child", nil)

	parent, err := child.(*Span).Parent(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if parent.ID() != tracing.Root().ID() {
		t.Error("child's parent should be the root")
	}
	rootParent, err := tracing.Root().(*Span).Parent(ctx)
	if err != nil || rootParent != nil {
		t.Errorf("root parent should be nil, nil; got %v, %v", rootParent, err)
	}
}

func TestUpdateDataMergePatch(t *testing.T) {
	ctx := context.Background()
	tracing := New("root")
	root := tracing.Root()

	if err := root.UpdateData(ctx, map[string]any{"a": "b", "c": map[string]any{"d": "e", "f": "g"}}); err != nil {
		t.Fatal(err)
	}
	if err := root.UpdateData(ctx, map[string]any{"a": "z", "c": map[string]any{"f": nil}}); err != nil {
		t.Fatal(err)
	}

	data, _ := root.Data(ctx)
	if data["a"] != "z" {
		t.Errorf("a = %v, want z", data["a"])
	}
	nested := data["c"].(map[string]any)
	if nested["d"] != "e" {
		t.Error("untouched nested key lost")
	}
	if _, ok := nested["f"]; ok {
		t.Error("nil patch value should delete the key")
	}
}

func TestDataReturnsCopy(t *testing.T) {
	ctx := context.Background()
	root := New("root").Root()
	_ = root.UpdateData(ctx, map[string]any{"k": "v"})

	data, _ := root.Data(ctx)
	data["k"] = "mutated"

	again, _ := root.Data(ctx)
	if again["k"] != "v" {
		t.Error("Data must return a copy, not the live map")
	}
}

func TestThreadPropagationSameIdentity(t *testing.T) {
	ctx := context.Background()
	tracing := New("root")
	ctx, _ = tracing.Start(ctx)

	got := make(chan spantree.Span, 1)
	go func(ctx context.Context) {
		span, _ := spantree.SpanFromContext(ctx)
		got <- span
	}(ctx)

	inChild := <-got
	if inChild != tracing.Root() {
		t.Error("goroutine should see the same span (reference-equal)")
	}
}

func TestTracingLifecycle(t *testing.T) {
	ctx := context.Background()
	tracing := New("root")

	ctx2, err := tracing.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := spantree.SpanFromContext(ctx2); !ok {
		t.Error("root should be current after Start")
	}
	if err := tracing.End(ctx2); err != nil {
		t.Fatal(err)
	}
	if _, err := tracing.Start(ctx); !errors.Is(err, spantree.ErrTracingEnded) {
		t.Errorf("restart after End should fail, got %v", err)
	}
	if err := tracing.End(ctx); !errors.Is(err, spantree.ErrTracingEnded) {
		t.Errorf("double End should fail, got %v", err)
	}
}
