package image

import "sync"

// Pool recycles plane and level buffers of the software device.
//
// A flush destroys every slot image and the next frames recreate them
// with the same sizes, so buffers are kept per shape and handed out
// again zeroed. Pool is safe for concurrent use.
type Pool struct {
	mu    sync.Mutex
	free  map[shape][]*ImageBuf
	limit int
}

type shape struct {
	w, h   int
	format Format
}

// NewPool returns a pool keeping at most limit free buffers per shape;
// limit <= 0 keeps all of them.
func NewPool(limit int) *Pool {
	return &Pool{free: make(map[shape][]*ImageBuf), limit: limit}
}

func (p *Pool) take(s shape) *ImageBuf {
	p.mu.Lock()
	defer p.mu.Unlock()
	list := p.free[s]
	if len(list) == 0 {
		return nil
	}
	buf := list[len(list)-1]
	list[len(list)-1] = nil
	p.free[s] = list[:len(list)-1]
	return buf
}

// Get returns a zeroed buffer of the given shape, or nil when the shape
// is invalid.
func (p *Pool) Get(width, height int, format Format) *ImageBuf {
	if buf := p.take(shape{width, height, format}); buf != nil {
		buf.Clear()
		return buf
	}
	buf, err := NewImageBuf(width, height, format)
	if err != nil {
		return nil
	}
	return buf
}

// Put hands buf back. It is dropped when its shape already has limit
// free buffers.
func (p *Pool) Put(buf *ImageBuf) {
	if buf == nil {
		return
	}
	s := shape{buf.width, buf.height, buf.format}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.limit > 0 && len(p.free[s]) >= p.limit {
		return
	}
	p.free[s] = append(p.free[s], buf)
}

// Len returns the number of free buffers of the given shape.
func (p *Pool) Len(width, height int, format Format) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.free[shape{width, height, format}])
}

// levelPool holds the mip levels released by MipmapChain.Release.
var levelPool = NewPool(16)
