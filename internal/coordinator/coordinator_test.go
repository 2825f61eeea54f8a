package coordinator

import (
	"context"
	"testing"

	"github.com/ChuLiYu/store-resolver/pkg/types"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestStaticClient(t *testing.T) {
	c, err := NewStaticClient([]types.Store{
		{ID: 1, State: types.StateUp, Address: "127.0.0.1:1"},
		{ID: 1, State: types.StateOffline, Address: "127.0.0.1:2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	s, err := c.GetStore(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, types.StateOffline, s.State, "later entries should replace earlier ones")
	assert.Equal(t, "127.0.0.1:2", s.Address)

	// Returned records are copies.
	s.Address = "mutated"
	s, err = c.GetStore(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:2", s.Address)
}

func TestStaticClientNotFound(t *testing.T) {
	c, err := NewStaticClient(nil)
	require.NoError(t, err)

	_, err = c.GetStore(context.Background(), 7)
	assert.True(t, errors.Is(err, ErrStoreNotFound))
}

func TestStaticClientRejectsUnknownState(t *testing.T) {
	_, err := NewStaticClient([]types.Store{{ID: 1, State: "gone", Address: "127.0.0.1:1"}})
	assert.Error(t, err)
}

func TestStaticClientCanceledContext(t *testing.T) {
	c, err := NewStaticClient([]types.Store{{ID: 1, State: types.StateUp, Address: "127.0.0.1:1"}})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = c.GetStore(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStoreStructCodec(t *testing.T) {
	in := &types.Store{ID: 18446744073709551615, State: types.StateTombstone, Address: "10.0.0.1:20160"}

	out, err := StoreFromStruct(StoreToStruct(in))
	require.NoError(t, err)
	assert.Equal(t, in, out)
}

func TestStoreFromStructRejectsBadFields(t *testing.T) {
	_, err := StoreFromStruct(&structpb.Struct{})
	assert.Error(t, err, "missing id")

	st := StoreToStruct(&types.Store{ID: 1, State: types.StateUp})
	st.Fields[FieldState] = structpb.NewStringValue("exploded")
	_, err = StoreFromStruct(st)
	assert.Error(t, err, "unknown state")
}
