package fscache

import (
	"errors"
	"fmt"
	"testing"
)

func Test_Error_Formats_Cause_Then_Context(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{name: "All", err: &Error{Op: "get", Key: "k", Path: "/c/k.dat", Err: ErrNotFound}, want: "fscache: not found (op=get key=k path=/c/k.dat)"},
		{name: "OpOnly", err: &Error{Op: "flush", Err: ErrIO}, want: "fscache: io failure (op=flush)"},
		{name: "NoContext", err: &Error{Err: ErrClosed}, want: "fscache: closed"},
		{name: "NoCause", err: &Error{Op: "set"}, want: "(op=set)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := tt.err.Error(); got != tt.want {
				t.Fatalf("Error()=%q, want %q", got, tt.want)
			}
		})
	}

	var nilErr *Error
	if nilErr.Error() != "" || nilErr.Unwrap() != nil {
		t.Fatal("nil *Error must format empty and unwrap to nil")
	}
}

func Test_WithContext_Fills_Missing_Fields_When_Already_Wrapped(t *testing.T) {
	t.Parallel()

	inner := withContext(ErrNotFound, "", "k", "")
	outer := withContext(fmt.Errorf("wrapped: %w", inner), "get-many", "other", "/p")

	var cErr *Error
	if !errors.As(outer, &cErr) {
		t.Fatalf("errors.As failed for %v", outer)
	}

	if cErr.Op != "get-many" || cErr.Key != "k" || cErr.Path != "/p" {
		t.Fatalf("fields=%+v, want op=get-many key=k path=/p", cErr)
	}

	if !errors.Is(outer, ErrNotFound) {
		t.Fatalf("errors.Is(%v, ErrNotFound)=false", outer)
	}

	if withContext(nil, "op", "k", "") != nil {
		t.Fatal("withContext(nil) must be nil")
	}
}

func Test_IoError_Wraps_Once(t *testing.T) {
	t.Parallel()

	base := errors.New("disk full")
	once := ioError(base)
	twice := ioError(once)

	if !errors.Is(twice, ErrIO) || !errors.Is(twice, base) {
		t.Fatalf("ioError lost the chain: %v", twice)
	}

	if twice != once {
		t.Fatalf("ioError wrapped twice: %q", twice)
	}
}
