package filewatch_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/tencentblueking/bkpaas-core/pkg/utils/filewatch"
)

func waitCanceled(t *testing.T, ctx context.Context) {
	t.Helper()
	deadlineCh := make(<-chan time.Time)
	if dl, ok := t.Deadline(); ok {
		deadlineCh = time.After(time.Until(dl) - 1*time.Second)
	}
	select {
	case <-ctx.Done():
	case <-deadlineCh:
		t.Fatal("context was not canceled")
	}
}

func TestUntilModifyContext(t *testing.T) {
	t.Run("when a file is created in a watched directory, it cancels context", func(t *testing.T) {
		dir := t.TempDir()

		ctx, cancel, err := filewatch.UntilModifyContext(context.Background(), dir)
		if err != nil {
			t.Fatal(err)
		}
		defer cancel()

		if err := ctx.Err(); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		f, err := os.Create(filepath.Join(dir, "config.yaml"))
		if err != nil {
			t.Fatal(err)
		}
		f.Close()

		waitCanceled(t, ctx)
	})

	t.Run("when a watched file is written, it cancels context", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(file, []byte("port: 8080\n"), 0o644); err != nil {
			t.Fatal(err)
		}

		ctx, cancel, err := filewatch.UntilModifyContext(context.Background(), file)
		if err != nil {
			t.Fatal(err)
		}
		defer cancel()

		if err := os.WriteFile(file, []byte("port: 9090\n"), 0o644); err != nil {
			t.Fatal(err)
		}

		waitCanceled(t, ctx)
	})

	t.Run("missing targets are errors", func(t *testing.T) {
		_, _, err := filewatch.UntilModifyContext(
			context.Background(), filepath.Join(t.TempDir(), "no-such-file"),
		)
		if err == nil {
			t.Fatal("expected an error")
		}
	})

	t.Run("cancel releases the watch without canceling by modification", func(t *testing.T) {
		dir := t.TempDir()
		ctx, cancel, err := filewatch.UntilModifyContext(context.Background(), dir)
		if err != nil {
			t.Fatal(err)
		}
		cancel()

		select {
		case <-ctx.Done():
		case <-time.After(3 * time.Second):
			t.Fatal("cancel should close the context")
		}
		if cause := context.Cause(ctx); cause != context.Canceled {
			t.Errorf("unexpected cause: %v", cause)
		}
	})
}
