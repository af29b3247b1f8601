package propagate

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/mvailla/spantree"
	"github.com/mvailla/spantree/memory"
	"github.com/mvailla/spantree/store/sqlite"
)

func TestGoCarriesSpan(t *testing.T) {
	ctx := context.Background()
	tr := memory.New("root")
	tctx, err := tr.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	cancelable, cancel := context.WithCancel(tctx)
	done := make(chan struct{})
	var gotID spantree.ID
	var gotErr error
	Go(cancelable, func(ctx context.Context) {
		<-done
		if sp, ok := spantree.SpanFromContext(ctx); ok {
			gotID = sp.ID()
		}
		gotErr = ctx.Err()
	})

	// Cancel before the goroutine reads its context: identity must survive,
	// cancellation must not.
	cancel()
	close(done)
	time.Sleep(50 * time.Millisecond)

	if gotID != tr.Root().ID() {
		t.Errorf("goroutine saw span %v, want root %v", gotID, tr.Root().ID())
	}
	if gotErr != nil {
		t.Errorf("goroutine context canceled: %v", gotErr)
	}
}

func TestGoWithoutSpanIsPlain(t *testing.T) {
	ran := make(chan bool, 1)
	Go(context.Background(), func(ctx context.Context) {
		_, ok := spantree.SpanFromContext(ctx)
		ran <- ok
	})
	if ok := <-ran; ok {
		t.Error("goroutine should have no span")
	}
}

func TestPoolCapturesSpanAtSubmission(t *testing.T) {
	ctx := context.Background()
	tr1 := memory.New("one")
	tr2 := memory.New("two")
	ctx1, _ := tr1.Start(ctx)
	ctx2, _ := tr2.Start(ctx)

	pool := NewPool(2)
	var mu sync.Mutex
	seen := map[string]spantree.ID{}
	record := func(label string) func(ctx context.Context) {
		return func(ctx context.Context) {
			sp, _ := spantree.SpanFromContext(ctx)
			mu.Lock()
			seen[label] = sp.ID()
			mu.Unlock()
		}
	}

	// Interleave submissions from both traces through the same workers.
	for i := 0; i < 5; i++ {
		if err := pool.Submit(ctx1, record(fmt.Sprintf("one-%d", i))); err != nil {
			t.Fatalf("Submit: %v", err)
		}
		if err := pool.Submit(ctx2, record(fmt.Sprintf("two-%d", i))); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	pool.Close()
	pool.Wait()

	for label, id := range seen {
		want := tr1.Root().ID()
		if label[:3] == "two" {
			want = tr2.Root().ID()
		}
		if id != want {
			t.Errorf("task %s ran under span %v, want %v", label, id, want)
		}
	}
	if len(seen) != 10 {
		t.Errorf("ran %d tasks, want 10", len(seen))
	}
}

func TestPoolBlockedSubmitIsCancelable(t *testing.T) {
	pool := NewPool(1)
	release := make(chan struct{})
	if err := pool.Submit(context.Background(), func(context.Context) { <-release }); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// The single worker is busy. Concurrent submitters must stay
	// responsive to their own contexts while they wait.
	cancelCtx, cancel := context.WithCancel(context.Background())
	canceled := make(chan error, 1)
	go func() {
		canceled <- pool.Submit(cancelCtx, func(context.Context) {})
	}()
	closed := make(chan error, 1)
	go func() {
		closed <- pool.Submit(context.Background(), func(context.Context) {})
	}()
	time.Sleep(20 * time.Millisecond)

	cancel()
	select {
	case err := <-canceled:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("canceled Submit did not unblock")
	}

	pool.Close()
	select {
	case err := <-closed:
		if err != ErrPoolClosed {
			t.Errorf("expected ErrPoolClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock the waiting Submit")
	}

	close(release)
	pool.Wait()
}

func TestPoolSubmitAfterClose(t *testing.T) {
	pool := NewPool(1)
	pool.Close()
	pool.Wait()
	err := pool.Submit(context.Background(), func(context.Context) {})
	if err != ErrPoolClosed {
		t.Errorf("expected ErrPoolClosed, got %v", err)
	}
}

func TestCommandWithoutSpan(t *testing.T) {
	cmd := Command(context.Background(), "true")
	for _, kv := range cmd.Env {
		if len(kv) > len(EnvVar) && kv[:len(EnvVar)] == EnvVar {
			t.Errorf("env should not carry %s: %s", EnvVar, kv)
		}
	}
}

func TestFromEnvMissingIsNoop(t *testing.T) {
	t.Setenv(EnvVar, "")
	ctx, err := FromEnv(context.Background())
	if err != nil {
		t.Fatalf("FromEnv: %v", err)
	}
	if _, ok := spantree.SpanFromContext(ctx); ok {
		t.Error("no span expected")
	}
}

func TestFromEnvBadPayload(t *testing.T) {
	t.Setenv(EnvVar, "{not json")
	if _, err := FromEnv(context.Background()); err == nil {
		t.Error("expected parse error")
	}
}

// TestCommandCrossProcess re-runs the test binary as a traced child and
// checks that the span the child created through the env ref shows up in the
// parent's tree.
func TestCommandCrossProcess(t *testing.T) {
	ctx := context.Background()
	tr, err := sqlite.NewTracing(filepath.Join(t.TempDir(), "trace.db"), "parent")
	if err != nil {
		t.Fatalf("NewTracing: %v", err)
	}
	defer tr.End(ctx)

	tctx, err := tr.Start(ctx)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	cmd := Command(tctx, os.Args[0], "-test.run=TestHelperProcessChildSpan")
	cmd.Env = append(cmd.Env, "GO_WANT_HELPER_PROCESS=1")
	out, err := cmd.CombinedOutput()
	if err != nil {
		t.Fatalf("child process failed: %v\n%s", err, out)
	}

	tree, err := tr.Tree(ctx)
	if err != nil {
		t.Fatalf("Tree: %v", err)
	}
	kids, err := tree.Children(ctx)
	if err != nil {
		t.Fatalf("Children: %v", err)
	}
	if len(kids) != 1 {
		t.Fatalf("root children = %d, want 1", len(kids))
	}
	name, err := kids[0].Name(ctx)
	if err != nil || name != "child-work" {
		t.Errorf("child span name = %q, %v", name, err)
	}
}

// TestHelperProcessChildSpan is not a real test: TestCommandCrossProcess
// re-executes the binary with GO_WANT_HELPER_PROCESS set and this becomes
// the child's main.
func TestHelperProcessChildSpan(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	ctx, err := FromEnv(context.Background())
	if err != nil {
		fmt.Fprintln(os.Stderr, "FromEnv:", err)
		os.Exit(1)
	}
	span, err := spantree.SpanFromContextSafe(ctx)
	if err != nil {
		fmt.Fprintln(os.Stderr, "no span in child:", err)
		os.Exit(1)
	}
	if _, err := span.NewChild(ctx, "child-work", map[string]any{"pid": os.Getpid()}); err != nil {
		fmt.Fprintln(os.Stderr, "NewChild:", err)
		os.Exit(1)
	}
	os.Exit(0)
}
