package opctx_test

import (
	"testing"
	"time"

	"github.com/brianvoe/gofakeit"
	"github.com/stretchr/testify/require"
	"github.com/weisbartb/opctx"
)

func TestContext_LazyID(t *testing.T) {
	factory := newTestFactory(t, opctx.Config{FactoryIdentifier: "ctx"})
	ctx := factory.Start("ids")
	defer ctx.Close()
	ctx2 := factory.Start("ids")
	defer ctx2.Close()
	require.NotEmpty(t, ctx.ID())
	require.Equal(t, ctx.ID(), ctx.ID())
	require.NotEqual(t, ctx.ID(), ctx2.ID())
}

func TestContext_DeadlineInheritance(t *testing.T) {
	factory := newTestFactory(t, opctx.Config{FactoryIdentifier: "ctx"})
	t.Run("Tighter parent wins", func(t *testing.T) {
		parent := factory.StartTimeout("parent", 100*time.Millisecond)
		defer parent.Close()
		child := factory.StartTimeout("child", time.Second)
		defer child.Close()
		require.Equal(t, parent, child.Parent())
		require.Equal(t, parent.DeadlineNanos(), child.DeadlineNanos())
	})
	t.Run("Tighter child wins", func(t *testing.T) {
		parent := factory.StartTimeout("parent", time.Second)
		defer parent.Close()
		child := factory.StartTimeout("child", 10*time.Millisecond)
		defer child.Close()
		require.Less(t, child.DeadlineNanos(), parent.DeadlineNanos())
	})
	t.Run("No timeout inherits", func(t *testing.T) {
		parent := factory.StartTimeout("parent", 100*time.Millisecond)
		defer parent.Close()
		child := factory.Start("child")
		defer child.Close()
		require.Equal(t, parent.DeadlineNanos(), child.DeadlineNanos())
	})
	t.Run("Root gets the default", func(t *testing.T) {
		before := opctx.NowNanos()
		ctx := factory.Start("root")
		defer ctx.Close()
		require.GreaterOrEqual(t, ctx.DeadlineNanos(), before+int64(7*time.Hour))
	})
}

func TestContext_Relations(t *testing.T) {
	factory := newTestFactory(t, opctx.Config{FactoryIdentifier: "ctx"})
	parent := factory.Start("parent")
	defer parent.Close()
	follower := factory.StartFollowing("follower", parent)
	require.Equal(t, opctx.FollowsFrom, follower.Relation())
	require.Equal(t, "FOLLOWS_FROM", follower.Relation().String())
	require.Equal(t, "CHILD_OF", parent.Relation().String())
	follower.Close()
}

func TestContext_CloseIsIdempotent(t *testing.T) {
	factory := newTestFactory(t, opctx.Config{FactoryIdentifier: "ctx"})
	ctx := factory.Start("close-twice")
	ctx.Close()
	ctx.Close()
	require.True(t, ctx.Closed())
	require.ErrorIs(t, ctx.Err(), opctx.ErrClosed)
	<-ctx.Done()
}

func TestContext_CloseCascades(t *testing.T) {
	factory := newTestFactory(t, opctx.Config{FactoryIdentifier: "ctx"})
	parent := factory.StartDetached("parent", nil, time.Second)
	child := factory.StartDetached("child", parent, time.Second)
	grandchild := factory.StartDetached("grandchild", child, time.Second)
	parent.Close()
	require.True(t, grandchild.Closed())
	require.True(t, child.Closed())
	require.True(t, parent.Closed())
	<-grandchild.Done()
}

func TestContext_Attachments(t *testing.T) {
	factory := newTestFactory(t, opctx.Config{FactoryIdentifier: "ctx"})
	ctx := factory.Start("tags")
	defer ctx.Close()
	tag := gofakeit.Word()
	require.False(t, ctx.HasAttachment(tag))
	ctx.AddAttachment(tag)
	ctx.AddAttachment(tag)
	require.True(t, ctx.HasAttachment(tag))
	require.Len(t, ctx.Attachments(), 1)
	ctx.AddAttachment(42)
	require.Len(t, ctx.Attachments(), 2)
}

func TestContext_AttachmentsAfterClose(t *testing.T) {
	factory := newTestFactory(t, opctx.Config{FactoryIdentifier: "ctx"})
	ctx := factory.Start("tags-closed")
	ctx.Close()
	ctx.AddAttachment("late")
	require.False(t, ctx.HasAttachment("late"))
}

func TestContext_Expired(t *testing.T) {
	factory := newTestFactory(t, opctx.Config{FactoryIdentifier: "ctx"})
	ctx := factory.StartTimeout("short", time.Millisecond)
	defer ctx.Close()
	require.False(t, ctx.Closed())
	time.Sleep(5 * time.Millisecond)
	require.True(t, ctx.Expired())
	// Expiry is cooperative, the context stays open until closed.
	require.NoError(t, ctx.Err())
}

func TestContext_StdContextSurface(t *testing.T) {
	factory := newTestFactory(t, opctx.Config{FactoryIdentifier: "ctx"})
	ctx := factory.StartTimeout("std", time.Second)
	defer ctx.Close()
	deadline, ok := ctx.Deadline()
	require.True(t, ok)
	require.True(t, deadline.After(time.Now()))
	require.Nil(t, ctx.Value("unknown"))
	require.Equal(t, ctx.ID(), ctx.Value(opctx.ContextIDKey{}))
}

func TestCurrent_FollowsStartAndClose(t *testing.T) {
	factory := newTestFactory(t, opctx.Config{FactoryIdentifier: "ctx"})
	require.Nil(t, opctx.Current())
	outer := factory.Start("outer")
	require.Equal(t, outer, opctx.Current())
	inner := factory.Start("inner")
	require.Equal(t, inner, opctx.Current())
	require.Equal(t, outer, inner.Parent())
	inner.Close()
	require.Equal(t, outer, opctx.Current())
	outer.Close()
	require.Nil(t, opctx.Current())
}
