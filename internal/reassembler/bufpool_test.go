package reassembler

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScratchPoolBucketing(t *testing.T) {
	small := getScratch(10)
	assert.Equal(t, size64, cap(small))
	putScratch(small)

	mid := getScratch(100)
	assert.Equal(t, size256, cap(mid))
	putScratch(mid)

	large := getScratch(900)
	assert.Equal(t, size1k, cap(large))
	putScratch(large)
}

func TestScratchPoolReuse(t *testing.T) {
	buf := getScratch(10)
	buf = append(buf, []byte("hello")...)
	putScratch(buf)

	reused := getScratch(10)
	assert.Equal(t, 0, len(reused), "returned buffer must be reset to zero length")
}
