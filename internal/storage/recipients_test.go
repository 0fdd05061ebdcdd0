package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	logx "castbot/pkg/logx"
)

type brokenRegistry struct{}

func (brokenRegistry) Add(context.Context, int64) (bool, error) {
	return false, errors.New("disk full")
}
func (brokenRegistry) All(context.Context) ([]int64, error) { return nil, errors.New("disk full") }

func TestRecipientsDegradeOnError(t *testing.T) {
	r := NewRecipients(brokenRegistry{}, logx.Nop())
	ctx := context.Background()

	assert.False(t, r.Register(ctx, 1))
	assert.Nil(t, r.ListAll(ctx))
	assert.Equal(t, 0, r.Count(ctx))
}

func TestRecipientsRegister(t *testing.T) {
	r := NewRecipients(NewMemory(), logx.Nop())
	ctx := context.Background()

	assert.True(t, r.Register(ctx, 10))
	assert.False(t, r.Register(ctx, 10))
	assert.True(t, r.Register(ctx, 11))
	assert.Equal(t, []int64{10, 11}, r.ListAll(ctx))
	assert.Equal(t, 2, r.Count(ctx))
}

func TestRecipientsNilSafe(t *testing.T) {
	var r *Recipients
	assert.False(t, r.Register(context.Background(), 1))
	assert.Nil(t, r.ListAll(context.Background()))
}
