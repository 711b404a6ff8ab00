package shutdown

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShutdownRunsLIFOOnce(t *testing.T) {
	m := New(time.Second, nil)
	var order []string
	m.Register("first", func(context.Context) error { order = append(order, "first"); return nil })
	m.Register("second", func(context.Context) error { order = append(order, "second"); return errors.New("ignored") })
	m.Register("third", func(context.Context) error { order = append(order, "third"); return nil })

	m.Shutdown()
	m.Shutdown()
	assert.Equal(t, []string{"third", "second", "first"}, order)
}

func TestShutdownDeadline(t *testing.T) {
	m := New(50*time.Millisecond, nil)
	var deadline bool
	m.Register("check", func(ctx context.Context) error {
		_, deadline = ctx.Deadline()
		return nil
	})
	m.Shutdown()
	assert.True(t, deadline)
}

type closer struct{ closed bool }

func (c *closer) Close() error { c.closed = true; return nil }

func TestCloseResource(t *testing.T) {
	c := &closer{}
	require.NoError(t, CloseResource(c)(context.Background()))
	assert.True(t, c.closed)
}

func TestContextCancelledByParent(t *testing.T) {
	m := New(time.Second, nil)
	parent, cancelParent := context.WithCancel(context.Background())
	ctx, cancel := m.Context(parent)
	defer cancel()

	cancelParent()
	<-ctx.Done()
	assert.Nil(t, m.Signal())
}
