package policy

import (
	"context"
	"errors"
	"testing"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type scriptCall struct {
	keys []string
	args []interface{}
}

// fakeScripter satisfies redis.Scripter with canned replies so the bucket
// store can be exercised without a server.
type fakeScripter struct {
	result interface{}
	err    error
	calls  []scriptCall
}

func (f *fakeScripter) reply(ctx context.Context, keys []string, args []interface{}) *redis.Cmd {
	f.calls = append(f.calls, scriptCall{keys: keys, args: args})
	cmd := redis.NewCmd(ctx)
	if f.err != nil {
		cmd.SetErr(f.err)
	} else {
		cmd.SetVal(f.result)
	}
	return cmd
}

func (f *fakeScripter) Eval(ctx context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.reply(ctx, keys, args)
}

func (f *fakeScripter) EvalSha(ctx context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.reply(ctx, keys, args)
}

func (f *fakeScripter) EvalRO(ctx context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.reply(ctx, keys, args)
}

func (f *fakeScripter) EvalShaRO(ctx context.Context, _ string, keys []string, args ...interface{}) *redis.Cmd {
	return f.reply(ctx, keys, args)
}

func (f *fakeScripter) ScriptExists(ctx context.Context, _ ...string) *redis.BoolSliceCmd {
	cmd := redis.NewBoolSliceCmd(ctx)
	cmd.SetVal([]bool{true})
	return cmd
}

func (f *fakeScripter) ScriptLoad(ctx context.Context, _ string) *redis.StringCmd {
	cmd := redis.NewStringCmd(ctx)
	cmd.SetVal("fake-sha")
	return cmd
}

func newRedisStore(f *fakeScripter) *RedisLimiterStore {
	return &RedisLimiterStore{
		scripts: f,
		policy:  LimiterPolicy{PerSecond: 1, Burst: 5},
	}
}

func TestRedisLimiter_Allowed(t *testing.T) {
	fake := &fakeScripter{result: int64(1)}
	store := newRedisStore(fake)

	ok, err := store.Allow(context.Background(), "fp-1", 1)
	require.NoError(t, err)
	assert.True(t, ok)

	require.Len(t, fake.calls, 1)
	call := fake.calls[0]
	assert.Equal(t, []string{"sentinel:write_budget:fp-1"}, call.keys)
	// rate, capacity, cost, now
	require.Len(t, call.args, 4)
	assert.Equal(t, float64(1), call.args[0])
	assert.Equal(t, 5, call.args[1])
	assert.Equal(t, 1, call.args[2])
}

func TestRedisLimiter_Exhausted(t *testing.T) {
	store := newRedisStore(&fakeScripter{result: int64(0)})

	ok, err := store.Allow(context.Background(), "fp-1", 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRedisLimiter_PerFingerprintKeys(t *testing.T) {
	fake := &fakeScripter{result: int64(1)}
	store := newRedisStore(fake)

	_, err := store.Allow(context.Background(), "fp-a", 1)
	require.NoError(t, err)
	_, err = store.Allow(context.Background(), "fp-b", 1)
	require.NoError(t, err)

	require.Len(t, fake.calls, 2)
	assert.Equal(t, []string{"sentinel:write_budget:fp-a"}, fake.calls[0].keys)
	assert.Equal(t, []string{"sentinel:write_budget:fp-b"}, fake.calls[1].keys)
}

// A broken limiter must surface an error so the engine throttles instead of
// minting write capacity.
func TestRedisLimiter_ErrorPropagates(t *testing.T) {
	store := newRedisStore(&fakeScripter{err: errors.New("connection reset")})

	ok, err := store.Allow(context.Background(), "fp-1", 1)
	require.Error(t, err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "redis limiter")
}

func TestRedisLimiter_UnexpectedReply(t *testing.T) {
	store := newRedisStore(&fakeScripter{result: "OK"})

	ok, err := store.Allow(context.Background(), "fp-1", 1)
	require.Error(t, err)
	assert.False(t, ok)
}

func TestRedisLimiter_CloseWithoutClient(t *testing.T) {
	store := newRedisStore(&fakeScripter{result: int64(1)})
	assert.NoError(t, store.Close())
}
