package kafka

import (
	"context"
	"errors"
	"testing"

	pkgerrors "github.com/honeynil/LandEscrowService/pkg/errors"
	"github.com/stretchr/testify/assert"
)

type recordingFundings struct {
	confirmed []string
	failed    []string
	err       error
}

func (c *recordingFundings) ConfirmFunding(_ context.Context, ref string) error {
	c.confirmed = append(c.confirmed, ref)
	return c.err
}

func (c *recordingFundings) FailFunding(_ context.Context, ref string) error {
	c.failed = append(c.failed, ref)
	return c.err
}

func TestHandlePaymentEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("Confirmed", func(t *testing.T) {
		c := &recordingFundings{}
		err := handlePaymentEvent(ctx, c, []byte(`{"reference":"PAY-1","status":"CONFIRMED"}`))
		assert.NoError(t, err)
		assert.Equal(t, []string{"PAY-1"}, c.confirmed)
		assert.Empty(t, c.failed)
	})

	t.Run("LowercaseSuccess", func(t *testing.T) {
		c := &recordingFundings{}
		err := handlePaymentEvent(ctx, c, []byte(`{"reference":"PAY-2","status":"success"}`))
		assert.NoError(t, err)
		assert.Equal(t, []string{"PAY-2"}, c.confirmed)
	})

	t.Run("FailedAndDeclined", func(t *testing.T) {
		c := &recordingFundings{}
		assert.NoError(t, handlePaymentEvent(ctx, c, []byte(`{"reference":"PAY-3","status":"FAILED"}`)))
		assert.NoError(t, handlePaymentEvent(ctx, c, []byte(`{"reference":"PAY-6","status":"declined"}`)))
		assert.Equal(t, []string{"PAY-3", "PAY-6"}, c.failed)
		assert.Empty(t, c.confirmed)
	})

	t.Run("InterimStatusIgnored", func(t *testing.T) {
		c := &recordingFundings{}
		err := handlePaymentEvent(ctx, c, []byte(`{"reference":"PAY-7","status":"PENDING"}`))
		assert.NoError(t, err)
		assert.Empty(t, c.confirmed)
		assert.Empty(t, c.failed)
	})

	t.Run("MalformedPayload", func(t *testing.T) {
		c := &recordingFundings{}
		err := handlePaymentEvent(ctx, c, []byte(`not json`))
		assert.Error(t, err)
		assert.Empty(t, c.confirmed)
	})

	t.Run("MissingReference", func(t *testing.T) {
		err := handlePaymentEvent(ctx, &recordingFundings{}, []byte(`{"status":"CONFIRMED"}`))
		assert.ErrorIs(t, err, pkgerrors.ErrInvalidInput)
	})

	t.Run("UnknownPaymentDropped", func(t *testing.T) {
		c := &recordingFundings{err: pkgerrors.ErrPaymentNotFound}
		assert.NoError(t, handlePaymentEvent(ctx, c, []byte(`{"reference":"PAY-4","status":"CONFIRMED"}`)))
		assert.NoError(t, handlePaymentEvent(ctx, c, []byte(`{"reference":"PAY-4","status":"FAILED"}`)))
	})

	t.Run("ConfirmationFailure", func(t *testing.T) {
		c := &recordingFundings{err: errors.New("db down")}
		err := handlePaymentEvent(ctx, c, []byte(`{"reference":"PAY-5","status":"CONFIRMED"}`))
		assert.EqualError(t, err, "db down")
	})
}
