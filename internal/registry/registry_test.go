package registry

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPutAndEndpoint(t *testing.T) {
	r := New()
	r.Put("5001", "http://localhost:5001")

	ep, err := r.Endpoint("5001")
	assert.NoError(t, err)
	assert.Equal(t, "http://localhost:5001", ep)
}

func TestEndpointMissing(t *testing.T) {
	r := New()
	_, err := r.Endpoint("no-such")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemove(t *testing.T) {
	r := New()
	r.Put("5001", "http://localhost:5001")
	r.Remove("5001")

	assert.False(t, r.Has("5001"))
	_, err := r.Endpoint("5001")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRemoveUnknownIsNoop(t *testing.T) {
	r := New()
	assert.NotPanics(t, func() { r.Remove("absent") })
}

func TestLen(t *testing.T) {
	r := New()
	r.Put("5001", "a")
	r.Put("5002", "b")
	assert.Equal(t, 2, r.Len())
}
