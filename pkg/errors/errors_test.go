package errors

import (
	"errors"
	"strings"
	"testing"

	"github.com/lib/pq"
)

func TestAsUnwrapsNestedTypedError(t *testing.T) {
	inner := New(CodeConflict, "abonnement déjà actif")
	wrapped := Wrap(CodeDependency, inner, "persist subscription")

	typed := As(wrapped)
	if typed == nil {
		t.Fatal("expected typed error")
	}
	if typed.Code() != CodeDependency {
		t.Fatalf("expected outer code, got %s", typed.Code())
	}

	if As(errors.New("plain")) != nil {
		t.Fatal("plain error should not convert")
	}
}

func TestMetadataForUnknownCodeFallsBackToInternal(t *testing.T) {
	meta := MetadataFor(Code("NOPE"))
	if meta.HTTPStatus != 500 {
		t.Fatalf("expected 500, got %d", meta.HTTPStatus)
	}
}

func TestWrapUpstreamTruncatesProviderMessage(t *testing.T) {
	long := strings.Repeat("x", 500)
	err := WrapUpstream(errors.New(long), "create shipment")

	if err.Code() != CodeDependency {
		t.Fatalf("expected dependency code, got %s", err.Code())
	}
	if len(err.Message()) > 170 {
		t.Fatalf("message not truncated: %d chars", len(err.Message()))
	}
	if !strings.HasPrefix(err.Message(), "create shipment: ") {
		t.Fatalf("unexpected message %q", err.Message())
	}
	if !errors.Is(err, err.Unwrap()) {
		t.Fatal("cause should be preserved")
	}
}

func TestInspectLiftsPostgresDiagnostics(t *testing.T) {
	cause := &pq.Error{Code: "23505", Constraint: "orders_number_key", Message: "duplicate key value"}
	err := Wrap(CodeDependency, cause, "persist order")

	rep := Inspect(err)
	if rep.Code != CodeDependency {
		t.Fatalf("expected dependency code, got %s", rep.Code)
	}
	if rep.SQLState != "23505" || rep.Constraint != "orders_number_key" {
		t.Fatalf("driver diagnostics not lifted: %+v", rep)
	}
	if len(rep.Chain) < 2 {
		t.Fatalf("expected the full chain, got %v", rep.Chain)
	}
}

func TestInspectNilError(t *testing.T) {
	rep := Inspect(nil)
	if rep.Message != "" || rep.Chain != nil {
		t.Fatalf("expected an empty report, got %+v", rep)
	}
}
