package propagate

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"

	"github.com/mvailla/spantree"
)

// EnvVar carries the serialized span ref into a child process.
const EnvVar = "SPANTREE_SPAN"

// Command builds an *exec.Cmd with the caller's current span ref injected
// into the environment. The child picks it up with FromEnv. Without a
// current span this is plain exec.CommandContext.
func Command(ctx context.Context, name string, arg ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, arg...)
	span, ok := spantree.SpanFromContext(ctx)
	if !ok {
		return cmd
	}
	raw, err := json.Marshal(span.Ref())
	if err != nil {
		// A Ref is two plain string-encodable fields; Marshal cannot fail.
		return cmd
	}
	cmd.Env = append(os.Environ(), EnvVar+"="+string(raw))
	return cmd
}

// FromEnv installs the span named by the EnvVar ref as current, resolving it
// through the registered backends. Run once at child start-up. A missing
// variable means the parent was not tracing; that is a no-op, not an error.
func FromEnv(ctx context.Context) (context.Context, error) {
	raw, ok := os.LookupEnv(EnvVar)
	if !ok || raw == "" {
		return ctx, nil
	}
	var ref spantree.Ref
	if err := json.Unmarshal([]byte(raw), &ref); err != nil {
		return ctx, fmt.Errorf("parse %s: %w", EnvVar, err)
	}
	span, err := ref.Resolve(ctx)
	if err != nil {
		return ctx, err
	}
	return spantree.ContextWithSpan(ctx, span), nil
}
