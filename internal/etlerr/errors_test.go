package etlerr

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"testing"
)

func TestNew_ClassifiesAndUnwraps(t *testing.T) {
	t.Parallel()

	base := fs.ErrNotExist
	err := New(KindStorageUnavailable, "objectstore.download", base)

	if !errors.Is(err, ErrStorageUnavailable) {
		t.Fatalf("errors.Is(err, ErrStorageUnavailable) = false; err=%v", err)
	}
	if errors.Is(err, ErrFetch) {
		t.Fatalf("storage error must not match ErrFetch")
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("wrapped cause lost: %v", err)
	}
	if got := KindOf(err); got != KindStorageUnavailable {
		t.Fatalf("KindOf = %v, want %v", got, KindStorageUnavailable)
	}
	if !strings.Contains(err.Error(), "StorageUnavailableError: objectstore.download") {
		t.Fatalf("unexpected message %q", err.Error())
	}
}

func TestNew_InnermostClassificationWins(t *testing.T) {
	t.Parallel()

	inner := New(KindAuth, "blocks.credentials", errors.New("no such block"))
	outer := New(KindLoad, "warehouse.open", fmt.Errorf("open: %w", inner))

	if !errors.Is(outer, ErrAuth) {
		t.Fatalf("want auth classification, got %v", outer)
	}
	if errors.Is(outer, ErrLoad) {
		t.Fatalf("outer classification must not override inner one")
	}
}

func TestNew_NilIsNil(t *testing.T) {
	t.Parallel()

	if err := New(KindIO, "x", nil); err != nil {
		t.Fatalf("New(nil) = %v, want nil", err)
	}
}

func TestKind_String(t *testing.T) {
	t.Parallel()

	tests := map[Kind]string{
		KindFetch:              "FetchError",
		KindStorageUnavailable: "StorageUnavailableError",
		KindIO:                 "IOError",
		KindAuth:               "AuthError",
		KindLoad:               "LoadError",
		KindTransform:          "TransformError",
		KindUnknown:            "UnknownError",
	}
	for k, want := range tests {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}
