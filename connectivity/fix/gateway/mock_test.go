package gateway

import (
	"context"
	"sync"
)

type published struct {
	key, value string
}

// mockPublisher 记录发布的消息，err 非空时每次返回该错误.
type mockPublisher struct {
	mu     sync.Mutex
	msgs   []published
	err    error
	closed bool
}

func (p *mockPublisher) Publish(_ context.Context, key, value []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, published{key: string(key), value: string(value)})
	return nil
}

func (p *mockPublisher) Close() error {
	p.closed = true
	return nil
}

func (p *mockPublisher) sent() []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]published(nil), p.msgs...)
}
