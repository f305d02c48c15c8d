package error

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindNotInitialized, KindOf(ErrNotInitialized))
	assert.Equal(t, KindNotInitialized, KindOf(fmt.Errorf("stackTrace: %w", ErrNotInitialized)))
	assert.Equal(t, KindEngine, KindOf(NewEngineError(errors.New("no such file"))))
	assert.Equal(t, KindUser, KindOf(NewUserError("bad glob %q", "[")))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestDebugErrorMessage(t *testing.T) {
	err := NewEngineError(errors.New("No symbol table is loaded."))
	assert.Equal(t, "No symbol table is loaded.", err.Error())
	assert.Nil(t, NewEngineError(nil))

	wrapped := &DebugError{Kind: KindInternal, Message: "dispatch", Err: ErrNotImplemented}
	assert.Equal(t, "dispatch: not implemented", wrapped.Error())
	assert.True(t, errors.Is(wrapped, ErrNotImplemented))
}
