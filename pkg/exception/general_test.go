package exception

import (
	stderrors "errors"
	"testing"

	"github.com/yanun0323/errors"
)

func TestWrappedClassesUnwrap(t *testing.T) {
	classes := []error{ErrConfig, ErrRouting, ErrIO, ErrProtocol, ErrNotImplemented, ErrRiskRejected}

	for _, class := range classes {
		t.Run(class.Error(), func(t *testing.T) {
			wrapped := errors.Wrapf(errors.Wrap(class, "inner"), "outer %d", 1)
			if !stderrors.Is(wrapped, class) {
				t.Fatalf("expected %+v to unwrap to %v", wrapped, class)
			}
			for _, other := range classes {
				if other != class && stderrors.Is(wrapped, other) {
					t.Fatalf("%v must not match %v", class, other)
				}
			}
		})
	}
}
