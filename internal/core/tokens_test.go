package core_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cafeteria/internal/core"
)

func TestTokenService_IssueAndValidate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tok, err := f.tokens.Issue(ctx, core.SubjectSupplier, supplierSur, 11, "")
	require.NoError(t, err)
	assert.NotEmpty(t, tok.ID)
	assert.Equal(t, tok.IssuedAt.Add(core.TokenTTL), tok.ExpiresAt)

	got, err := f.tokens.Validate(ctx, tok.Token, core.SubjectSupplier)
	require.NoError(t, err)
	assert.Equal(t, tok.ID, got.ID)
	assert.Equal(t, 11, got.ScopeID)
	assert.Nil(t, got.UsedAt)
}

func TestTokenService_Rejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tok, err := f.tokens.Issue(ctx, core.SubjectSupplier, supplierSur, 11, "")
	require.NoError(t, err)

	t.Run("empty", func(t *testing.T) {
		_, err := f.tokens.Validate(ctx, "", core.SubjectSupplier)
		var inv *core.TokenInvalidError
		assert.True(t, errors.As(err, &inv))
	})

	t.Run("tampered signature", func(t *testing.T) {
		parts := strings.Split(tok.Token, ".")
		require.Len(t, parts, 3)
		sig := []byte(parts[2])
		if sig[0] == 'A' {
			sig[0] = 'B'
		} else {
			sig[0] = 'A'
		}
		_, err := f.tokens.Validate(ctx, parts[0]+"."+parts[1]+"."+string(sig), core.SubjectSupplier)
		var inv *core.TokenInvalidError
		assert.True(t, errors.As(err, &inv), "want TokenInvalidError, got %v", err)
	})

	t.Run("other secret", func(t *testing.T) {
		other := core.NewTokenService(f.store, core.NewTokenSigner("another-secret"), f.clock)
		forged, err := other.New(core.SubjectSupplier, supplierSur, 11, "")
		require.NoError(t, err)
		_, err = f.tokens.Validate(ctx, forged.Token, core.SubjectSupplier)
		var inv *core.TokenInvalidError
		assert.True(t, errors.As(err, &inv), "want TokenInvalidError, got %v", err)
	})

	t.Run("signed but never stored", func(t *testing.T) {
		unsaved, err := f.tokens.New(core.SubjectSupplier, supplierSur, 11, "")
		require.NoError(t, err)
		_, err = f.tokens.Validate(ctx, unsaved.Token, core.SubjectSupplier)
		var inv *core.TokenInvalidError
		assert.True(t, errors.As(err, &inv), "want TokenInvalidError, got %v", err)
	})

	t.Run("wrong subject type", func(t *testing.T) {
		_, err := f.tokens.Validate(ctx, tok.Token, core.SubjectTeacher)
		var scope *core.TokenScopeError
		assert.True(t, errors.As(err, &scope), "want TokenScopeError, got %v", err)
	})
}

func TestTokenService_ExpiryWinsOverReuse(t *testing.T) {
	f := newFixture(t)
	o, raw := f.approvedOrder(t)
	_, err := f.lifecycle.Confirm(context.Background(), o.ID, raw, allAvailable(o))
	require.NoError(t, err)

	_, err = f.tokens.Validate(context.Background(), raw, core.SubjectSupplier)
	var reused *core.TokenReusedError
	require.True(t, errors.As(err, &reused), "want TokenReusedError, got %v", err)

	f.clock.Advance(25 * time.Hour)
	_, err = f.tokens.Validate(context.Background(), raw, core.SubjectSupplier)
	var expired *core.TokenExpiredError
	assert.True(t, errors.As(err, &expired), "want TokenExpiredError, got %v", err)
}
