package webhooks

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"udl-core/udlerrors"
)

func noopHandler(ctx context.Context, hc HandlerContext) error { return nil }

func TestValidatePluginName(t *testing.T) {
	valid := []string{"demo", "cms-sync", "plugin_1", "@acme/cms"}
	invalid := []string{"", "-bad", "@/missing", "bad plugin", "@acme/"}

	for _, name := range valid {
		assert.True(t, ValidatePluginName(name), name)
	}
	for _, name := range invalid {
		assert.False(t, ValidatePluginName(name), name)
	}
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.Register("demo", Registration{Handler: noopHandler}))

	err := r.Register("demo", Registration{Handler: noopHandler})
	require.Error(t, err)
	assert.True(t, udlerrors.Is(err, udlerrors.KindAlreadyExists))
}

func TestRegisterDefaultOnlyInstallsOnce(t *testing.T) {
	r := NewRegistry()
	installed := false
	r.RegisterDefault("demo", Registration{Handler: func(ctx context.Context, hc HandlerContext) error {
		installed = true
		return nil
	}})

	// A real registration for the same plugin still wins if it came first.
	r2 := NewRegistry()
	require.NoError(t, r2.Register("demo", Registration{Handler: noopHandler}))
	r2.RegisterDefault("demo", Registration{Handler: func(ctx context.Context, hc HandlerContext) error {
		t.Fatal("default handler must not override an explicit registration")
		return nil
	}})

	reg, ok := r2.Lookup("demo")
	require.True(t, ok)
	require.NoError(t, reg.Handler(context.Background(), HandlerContext{}))

	reg1, ok := r.Lookup("demo")
	require.True(t, ok)
	require.NoError(t, reg1.Handler(context.Background(), HandlerContext{}))
	assert.True(t, installed)
}

func TestRegisterInvalidName(t *testing.T) {
	r := NewRegistry()
	err := r.Register("bad plugin", Registration{Handler: noopHandler})
	require.Error(t, err)
	assert.True(t, udlerrors.Is(err, udlerrors.KindValidation))
}
