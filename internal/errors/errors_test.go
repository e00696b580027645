package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsCode(t *testing.T) {
	base := ConfigInvalid("target_idx out of range")
	err := Wrap(base, "load run config")

	assert.Equal(t, CodeConfigInvalid, GetCode(err))
	assert.Equal(t, "load run config: target_idx out of range", err.Error())
	assert.True(t, stderrors.Is(err, base))
}

func TestWrapPlainErrorIsInternal(t *testing.T) {
	err := Wrapf(stderrors.New("disk full"), "write %s", "out.csv")
	assert.Equal(t, CodeInternalError, GetCode(err))
	assert.Nil(t, Wrap(nil, "nothing"))
}

func TestGetCodeThroughFmtWrapping(t *testing.T) {
	err := fmt.Errorf("instance 3: %w", ClassifierError(stderrors.New("model not trained")))
	assert.True(t, IsAppError(err))
	assert.Equal(t, CodeClassifierError, GetCode(err))
	assert.Equal(t, "UNKNOWN", GetCode(stderrors.New("plain")))
}

func TestHasCode(t *testing.T) {
	err := WithCode(CodePersistenceError, Wrap(DatasetError(nil, "empty table"), "save"))
	assert.True(t, HasCode(err, CodePersistenceError))
	assert.False(t, HasCode(err, CodeNotFound))
	assert.False(t, HasCode(stderrors.New("x"), CodeNotFound))
}
