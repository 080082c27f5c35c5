package timeouts_test

import (
	"context"
	"testing"
	"time"

	"github.com/dalemusser/collabhub/internal/app/system/timeouts"
	"go.uber.org/zap"
)

func TestConfigure_IgnoresZeroValues(t *testing.T) {
	t.Cleanup(timeouts.Reset)

	timeouts.Configure(timeouts.Config{Short: 7 * time.Second})

	got := timeouts.Current()
	if got.Short != 7*time.Second {
		t.Errorf("Short = %v, want 7s", got.Short)
	}
	if got.Long != timeouts.DefaultLong {
		t.Errorf("Long = %v, want default %v", got.Long, timeouts.DefaultLong)
	}
}

func TestReset(t *testing.T) {
	timeouts.Configure(timeouts.Config{Medium: time.Minute})
	timeouts.Reset()
	if timeouts.Medium() != timeouts.DefaultMedium {
		t.Errorf("Medium = %v, want default after Reset", timeouts.Medium())
	}
}

func TestDetached_SurvivesParentCancel(t *testing.T) {
	parent, cancelParent := context.WithCancel(context.Background())
	ctx, cancel := timeouts.Detached(parent, zap.NewNop(), "test")
	defer cancel()

	cancelParent()

	if err := ctx.Err(); err != nil {
		t.Fatalf("detached context should survive parent cancel, got %v", err)
	}
	if _, ok := ctx.Deadline(); !ok {
		t.Error("detached context should carry a deadline")
	}
}

func TestWithTimeout_Expires(t *testing.T) {
	ctx, cancel := timeouts.WithTimeout(context.Background(), time.Millisecond, zap.NewNop(), "test")
	defer cancel()

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("context did not expire")
	}
	if ctx.Err() != context.DeadlineExceeded {
		t.Errorf("Err = %v, want DeadlineExceeded", ctx.Err())
	}
}
