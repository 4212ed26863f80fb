package encoders_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"github.com/weisbartb/opctx"
	"github.com/weisbartb/opctx/encoders"
	"github.com/weisbartb/tsbuffer"
)

func TestEncodeJSON(t *testing.T) {
	buf := tsbuffer.New()
	factory, err := opctx.NewFactory(opctx.Config{
		FactoryIdentifier: "encoders",
		LogOutput:         zerolog.New(buf),
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		require.True(t, factory.Shutdown(time.Second))
	})
	parent := factory.Start("ingest")
	defer parent.Close()
	ctx := factory.Start("ingest-batch")
	defer ctx.Close()
	ctx.AddAttachment("sampled")

	var out bytes.Buffer
	require.NoError(t, encoders.EncodeJSON(&out, ctx))
	encoded := out.String()
	require.Contains(t, encoded, ctx.ID())
	require.Contains(t, encoded, "ingest-batch")
	require.Contains(t, encoded, "CHILD_OF")
	require.Contains(t, encoded, "sampled")
	require.Contains(t, encoded, parent.ID())
}

func TestCapture_ClosedRoot(t *testing.T) {
	buf := tsbuffer.New()
	factory, err := opctx.NewFactory(opctx.Config{
		FactoryIdentifier: "encoders",
		LogOutput:         zerolog.New(buf),
	})
	require.NoError(t, err)
	ctx := factory.StartDetached("done", nil, time.Second)
	ctx.Close()
	snapshot := encoders.Capture(ctx)
	require.True(t, snapshot.Closed)
	require.Equal(t, "", snapshot.ParentID)
	require.Equal(t, "done", snapshot.Name)
	require.True(t, factory.Shutdown(time.Second))
}
