package llm

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/aiorch/types"
)

type fakeClient struct {
	name  string
	resp  Response
	err   error
	calls atomic.Int32
}

func (f *fakeClient) Name() string { return f.name }

func (f *fakeClient) Complete(context.Context, Request) (Response, error) {
	f.calls.Add(1)
	return f.resp, f.err
}

func TestModelSet_Resolve(t *testing.T) {
	m := ModelSet{Fast: "small", Balanced: "mid", Quality: "large"}

	assert.Equal(t, "small", m.Resolve(types.ModelFast))
	assert.Equal(t, "mid", m.Resolve(types.ModelBalanced))
	assert.Equal(t, "large", m.Resolve(types.ModelQuality))
	assert.Equal(t, "mid", m.Resolve(types.ModelAuto))
	assert.Equal(t, "mid", m.Resolve(""))

	partial := ModelSet{Balanced: "mid"}
	assert.Equal(t, "mid", partial.Resolve(types.ModelFast))
}

func TestProviderConfig_MaxTokens(t *testing.T) {
	assert.EqualValues(t, 100, ProviderConfig{}.MaxTokens(100))
	assert.EqualValues(t, 2048, ProviderConfig{DefaultMaxTokens: 2048}.MaxTokens(0))
	assert.EqualValues(t, 4096, ProviderConfig{}.MaxTokens(0))
	assert.False(t, ProviderConfig{}.Enabled())
	assert.True(t, ProviderConfig{APIKey: "k"}.Enabled())
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		kind   types.ErrorKind
	}{
		{http.StatusTooManyRequests, types.KindTransient},
		{http.StatusInternalServerError, types.KindTransient},
		{http.StatusBadGateway, types.KindTransient},
		{529, types.KindTransient},
		{http.StatusRequestTimeout, types.KindTransient},
		{http.StatusBadRequest, types.KindPermanent},
		{http.StatusUnauthorized, types.KindPermanent},
		{http.StatusForbidden, types.KindPermanent},
		{http.StatusNotFound, types.KindPermanent},
	}
	for _, tt := range tests {
		err := ClassifyStatus("anthropic", tt.status, errors.New("upstream"))
		assert.Equal(t, tt.kind, types.KindOf(err), "status %d", tt.status)
	}
	assert.Equal(t, types.ErrRateLimited, types.Translate(ClassifyStatus("x", 429, nil)).Code)
}

func TestClassifyTransport(t *testing.T) {
	assert.Nil(t, ClassifyTransport("x", nil))
	assert.ErrorIs(t, ClassifyTransport("x", context.Canceled), context.Canceled)
	assert.ErrorIs(t, ClassifyTransport("x", context.DeadlineExceeded), context.DeadlineExceeded)

	netErr := &net.OpError{Op: "dial", Net: "tcp", Err: errors.New("connection refused")}
	assert.Equal(t, types.KindTransient, types.KindOf(ClassifyTransport("x", netErr)))
	assert.Equal(t, types.KindTransient, types.KindOf(ClassifyTransport("x", io.ErrUnexpectedEOF)))
	assert.Equal(t, types.KindPermanent, types.KindOf(ClassifyTransport("x", errors.New("bad json"))))
}

func TestFallbackClient(t *testing.T) {
	ctx := context.Background()
	primaryErr := types.NewTransientError("overloaded")

	t.Run("primary succeeds", func(t *testing.T) {
		p := &fakeClient{name: "p", resp: Response{Content: "from p"}}
		f := &fakeClient{name: "f", resp: Response{Content: "from f"}}
		c := NewFallbackClient(p, f, zap.NewNop())

		resp, err := c.Complete(ctx, Request{})
		require.NoError(t, err)
		assert.Equal(t, "from p", resp.Content)
		assert.Zero(t, f.calls.Load())
		assert.Equal(t, "p>f", c.Name())
	})

	t.Run("fallback used", func(t *testing.T) {
		p := &fakeClient{name: "p", err: primaryErr}
		f := &fakeClient{name: "f", resp: Response{Content: "from f"}}
		resp, err := NewFallbackClient(p, f, nil).Complete(ctx, Request{})
		require.NoError(t, err)
		assert.Equal(t, "from f", resp.Content)
	})

	t.Run("both fail returns primary error", func(t *testing.T) {
		p := &fakeClient{name: "p", err: primaryErr}
		f := &fakeClient{name: "f", err: types.NewPermanentError("bad key")}
		_, err := NewFallbackClient(p, f, nil).Complete(ctx, Request{})
		assert.Same(t, primaryErr, err)
	})

	t.Run("cancelled context skips fallback", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		p := &fakeClient{name: "p", err: context.Canceled}
		f := &fakeClient{name: "f"}
		_, err := NewFallbackClient(p, f, nil).Complete(cctx, Request{})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Zero(t, f.calls.Load())
	})

	t.Run("nil members", func(t *testing.T) {
		only := &fakeClient{name: "only"}
		assert.Nil(t, NewFallbackClient(nil, nil, nil))
		assert.Same(t, only, NewFallbackClient(only, nil, nil))
		assert.Same(t, only, NewFallbackClient(nil, only, nil))
	})
}

func TestRateLimited(t *testing.T) {
	inner := &fakeClient{name: "inner"}
	assert.Same(t, inner, NewRateLimited(inner, 0, 0))

	limited := NewRateLimited(inner, 1, 1)
	assert.Equal(t, "inner", limited.Name())

	_, err := limited.Complete(context.Background(), Request{})
	require.NoError(t, err)

	// bucket now empty; a deadline shorter than the refill is rejected without waiting
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err = limited.Complete(ctx, Request{})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.EqualValues(t, 1, inner.calls.Load())
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("a"))
	assert.Equal(t, 25, EstimateTokens(string(make([]byte, 100))))
	assert.Equal(t, 2, EstimateTokens("竞品分析"))
	assert.Equal(t, 3, EstimateCounter{}.CountTokens("hello world!"))
}
