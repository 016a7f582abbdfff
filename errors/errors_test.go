package errors_test

import (
	stderrors "errors"
	"testing"

	"github.com/dosimage/fatimage/errors"
	"github.com/stretchr/testify/assert"
)

func TestKindWithMessage(t *testing.T) {
	err := errors.NoSpace.WithMessage("cluster scan exhausted")
	assert.Equal(t, "cluster scan exhausted", err.Error())
	assert.ErrorIs(t, err, errors.NoSpace)
}

func TestKindWrap(t *testing.T) {
	original := stderrors.New("short read")
	err := errors.IoError.Wrap(original)

	assert.ErrorIs(t, err, errors.IoError)
	assert.ErrorIs(t, err, original)
}

func TestIsMatchesAnyKind(t *testing.T) {
	err := errors.AlreadyExists.WithMessage("B")
	assert.True(t, errors.Is(err, errors.NameError, errors.AlreadyExists))
	assert.False(t, errors.Is(err, errors.NameError, errors.Conflict))
}

func TestBareKindSatisfiesErrorsIs(t *testing.T) {
	var err error = errors.BadImage
	assert.ErrorIs(t, err, errors.BadImage)
}
