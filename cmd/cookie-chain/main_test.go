package main

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

type closeCounter struct {
	closed int
	err    error
}

func (c *closeCounter) Close() error {
	c.closed++
	return c.err
}

func TestCloseAfterClosesBeforeExit(t *testing.T) {
	c := &closeCounter{}
	assert.Equal(t, 1, closeAfter(c, 1))
	assert.Equal(t, 1, c.closed)

	failing := &closeCounter{err: errors.New("busy")}
	assert.Equal(t, 0, closeAfter(failing, 0), "close errors keep the exit code")
	assert.Equal(t, 1, failing.closed)
}
