package errors_test

import (
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/wyrmwood-systems/vfscore/errors"
)

func TestKindWithMessage(t *testing.T) {
	err := errors.NotFound.WithMessage("/tmp/missing")
	assert.Equal(t, "not found: /tmp/missing", err.Error())
	assert.ErrorIs(t, err, errors.NotFound)
}

func TestKindWrap(t *testing.T) {
	cause := stderrors.New("disk exploded")
	err := errors.IoError.Wrap(cause)
	assert.Equal(t, "I/O error: disk exploded", err.Error())
	assert.ErrorIs(t, err, cause)
}

func TestBareKindComparableWithErrorsIs(t *testing.T) {
	var err error = errors.AlreadyExists
	assert.ErrorIs(t, err, errors.AlreadyExists)
	assert.NotErrorIs(t, err, errors.NotFound)
}

func TestErrnoMapping(t *testing.T) {
	cases := []struct {
		kind errors.Kind
	}{
		{errors.NotFound}, {errors.AlreadyExists}, {errors.NotADirectory},
		{errors.IsADirectory}, {errors.DirectoryNotEmpty}, {errors.ReadOnly},
		{errors.PermissionDenied}, {errors.NoSpace}, {errors.CrossDevice},
		{errors.InvalidOperation}, {errors.InvalidArgument}, {errors.InvalidPath},
		{errors.IoError}, {errors.DeviceError}, {errors.NotSupported},
	}
	for _, c := range cases {
		assert.NotZero(t, c.kind.Errno(), "kind %q must map to a nonzero errno", c.kind)
	}
}

func TestWithMessageChaining(t *testing.T) {
	err := errors.NotFound.WithMessage("outer")
	chained := err.WithMessage("inner")
	assert.Contains(t, chained.Error(), "outer")
	assert.Contains(t, chained.Error(), "inner")
	assert.ErrorIs(t, chained, errors.NotFound)
}
