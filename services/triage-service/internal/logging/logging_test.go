package logging

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		logger, err := New("debug", format)
		require.NoError(t, err)
		assert.NotNil(t, logger)
	}

	_, err := New("loud", "json")
	assert.Error(t, err)
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abc", ShortID("abc"))
	long := strings.Repeat("A", 40)
	assert.Equal(t, strings.Repeat("A", 20)+"...", ShortID(long))
}
