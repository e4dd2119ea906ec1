package orderlyerr

import (
	"errors"
	"testing"
)

func TestIsClassifiesKind(t *testing.T) {
	err := ProcFailed()
	if !Is(err, KindProcFailed) {
		t.Fatalf("expected ProcFailed to classify as KindProcFailed")
	}
	if Is(err, KindShutdown) {
		t.Fatalf("did not expect ProcFailed to classify as KindShutdown")
	}
}

func TestIsRejectsPlainErrors(t *testing.T) {
	if Is(errors.New("boom"), KindIOError) {
		t.Fatalf("a plain error must never classify as any Kind")
	}
}

func TestWrapNilReturnsNil(t *testing.T) {
	if Wrap(KindIOError, nil) != nil {
		t.Fatalf("expected Wrap(kind, nil) to return nil")
	}
}

func TestErrorStringIncludesCause(t *testing.T) {
	cause := errors.New("disk full")
	err := IOError(cause)
	if got := err.Error(); got != "IOError: disk full" {
		t.Fatalf("unexpected error string: %q", got)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected Unwrap to expose the cause via errors.Is")
	}
}

func TestSentinelsHaveNoCause(t *testing.T) {
	if got := Shutdown().Error(); got != "Shutdown" {
		t.Fatalf("unexpected sentinel error string: %q", got)
	}
}
