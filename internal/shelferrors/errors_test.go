package shelferrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewAndError(t *testing.T) {
	err := New(AuthFailed, "login required")
	assert.Equal(t, "auth_failed: login required", err.Error())
}

func TestWrapIncludesCause(t *testing.T) {
	cause := errors.New("connection reset by peer")
	err := Wrap(TransportError, "fetching page 3", cause)
	assert.Equal(t, "transport_error: fetching page 3: connection reset by peer", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestClassify(t *testing.T) {
	assert.Equal(t, AuthFailed, Classify(New(AuthFailed, "x")))
	assert.Equal(t, Kind(""), Classify(errors.New("plain error")))
	assert.Equal(t, Kind(""), Classify(nil))
}

func TestClassifyThroughWrappedChain(t *testing.T) {
	base := New(AssetMissing, "cover download failed")
	wrapped := fmt.Errorf("downloading book 42: %w", base)
	assert.Equal(t, AssetMissing, Classify(wrapped))
}

func TestIs(t *testing.T) {
	err := New(ResumeConflict, "schema too new")
	assert.True(t, Is(err, ResumeConflict))
	assert.False(t, Is(err, AuthFailed))
	assert.False(t, Is(nil, AuthFailed))
}

func TestFatal(t *testing.T) {
	assert.True(t, Fatal(AuthFailed))
	assert.True(t, Fatal(ResumeConflict))
	assert.False(t, Fatal(TransportError))
	assert.False(t, Fatal(ParseError))
	assert.False(t, Fatal(AssetMissing))
	assert.False(t, Fatal(ValidationRejected))
}
