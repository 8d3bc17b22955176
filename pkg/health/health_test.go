package health

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

type pingFunc func(ctx context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestChecks(t *testing.T) {
	ok := pingFunc(func(context.Context) error { return nil })
	down := func(msg string) Pinger {
		return pingFunc(func(context.Context) error { return errors.New(msg) })
	}

	all := Checks{"db": ok, "redis": ok, "pubsub": nil}
	assert.Empty(t, all.Failures(context.Background()))
	assert.NoError(t, all.Err(context.Background()))

	broken := Checks{"redis": down("refused"), "db": down("timeout"), "pubsub": ok}
	assert.Equal(t, map[string]string{"db": "timeout", "redis": "refused"}, broken.Failures(context.Background()))

	err := broken.Err(context.Background())
	require.Error(t, err)
	errs := multierr.Errors(err)
	require.Len(t, errs, 2)
	assert.Equal(t, "db: timeout", errs[0].Error())
	assert.Equal(t, "redis: refused", errs[1].Error())
}
