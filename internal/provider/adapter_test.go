package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryOrderAndLookup(t *testing.T) {
	r := DefaultRegistry()

	assert.Equal(t, []string{"calcom", "typeform", "stripe"}, r.Names())

	a, err := r.Get("stripe")
	require.NoError(t, err)
	assert.Equal(t, "stripe", a.Name())

	_, err = r.Get("zapier")
	require.ErrorIs(t, err, ErrUnknownProvider)
}

func TestRegistryReRegisterKeepsPosition(t *testing.T) {
	r := NewRegistry()
	r.Register(NewCalcom())
	r.Register(NewStripe())
	r.Register(NewCalcom())

	assert.Equal(t, []string{"calcom", "stripe"}, r.Names())
}

func TestFirstAttributionKeyOrder(t *testing.T) {
	m := map[string]string{
		"ref_id":   "clk_ref",
		"click_id": "clk_click",
	}

	id, ok := firstAttributionKey(m)
	require.True(t, ok)
	assert.Equal(t, "clk_click", id)

	_, ok = firstAttributionKey(map[string]string{"unrelated": "x"})
	assert.False(t, ok)
}
