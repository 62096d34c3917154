package utility

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestContains(t *testing.T) {
	assert.True(t, Contains([]string{"a", "b"}, "b"))
	assert.False(t, Contains([]string{"a", "b"}, "c"))
	assert.False(t, Contains(nil, "a"))
}

func TestToInt(t *testing.T) {
	assert.Equal(t, 25, ToInt("25", 50))
	assert.Equal(t, 50, ToInt("", 50))
	assert.Equal(t, 50, ToInt("x1", 50))
}

func TestIntAsPrice(t *testing.T) {
	assert.Equal(t, "102.34", IntAsPrice(10234))
	assert.Equal(t, "0.05", IntAsPrice(5))
}

func TestMask(t *testing.T) {
	assert.Equal(t, "*******8901", Mask("12345678901"))
	assert.Equal(t, "abc", Mask("abc"))
}

func TestTimeAgo(t *testing.T) {
	assert.Equal(t, "just now", TimeAgo(time.Now()))
	assert.Equal(t, "5 minutes ago", TimeAgo(time.Now().Add(-5*time.Minute)))
	assert.Equal(t, "3 hours ago", TimeAgo(time.Now().Add(-3*time.Hour)))
}
