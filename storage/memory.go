package storage

import (
	"bytes"
	"context"
	"sync"

	"github.com/ipfs/go-cid"
)

// Memory is an in-process Store. The zero value is not usable; call NewMemory.
type Memory struct {
	mu   sync.RWMutex
	objs map[cid.Cid][]byte
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{objs: make(map[cid.Cid][]byte)}
}

func (m *Memory) Put(ctx context.Context, data []byte) (cid.Cid, error) {
	if err := ctx.Err(); err != nil {
		return cid.Undef, err
	}
	id, err := Sum(data)
	if err != nil {
		return cid.Undef, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.objs[id]; ok {
		if !bytes.Equal(existing, data) {
			return cid.Undef, ErrImmutable
		}
		return id, nil
	}
	m.objs[id] = append([]byte(nil), data...)
	return id, nil
}

func (m *Memory) Get(ctx context.Context, id cid.Cid) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !id.Defined() {
		return nil, ErrInvalidCID
	}
	m.mu.RLock()
	b, ok := m.objs[id]
	m.mu.RUnlock()
	if !ok {
		return nil, NotFound(id)
	}
	return append([]byte(nil), b...), nil
}

func (m *Memory) Has(ctx context.Context, id cid.Cid) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if !id.Defined() {
		return false, nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objs[id]
	return ok, nil
}

func (m *Memory) Keys(ctx context.Context) ([]cid.Cid, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	out := make([]cid.Cid, 0, len(m.objs))
	for id := range m.objs {
		out = append(out, id)
	}
	m.mu.RUnlock()
	return SortKeys(out), nil
}
