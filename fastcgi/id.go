package fastcgi

import (
	"sync"

	"github.com/pkg/errors"
)

//idPool hands out small positive identifiers for the requests of one
//connection. Released ids are reused smallest-first, and the pool shrinks
//its ceiling when the largest id in use is released, so every free id stays
//below the current in-use maximum.
type idPool struct {
	mu    sync.Mutex
	limit uint16
	max   uint16
	free  map[uint16]struct{}
}

func newIDs(limit uint16) *idPool {
	if limit == 0 {
		limit = 65535
	}

	return &idPool{
		limit: limit,
		free:  make(map[uint16]struct{}),
	}
}

func (p *idPool) Alloc() (uint16, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.free) > 0 {
		var min uint16
		for id := range p.free {
			if min == 0 || id < min {
				min = id
			}
		}

		delete(p.free, min)

		return min, nil
	}

	if p.max == p.limit {
		return 0, errors.New("fastcgi: id pool exhausted")
	}

	p.max++

	return p.max, nil
}

func (p *idPool) Release(id uint16) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if id == 0 || id > p.max {
		return errors.Errorf("fastcgi: release of unallocated id %d", id)
	}

	if _, ok := p.free[id]; ok {
		return errors.Errorf("fastcgi: double release of id %d", id)
	}

	if id == p.max {
		p.max--

		//pull any freed ids off the top so free ids stay below the maximum
		for p.max > 0 {
			if _, ok := p.free[p.max]; !ok {
				break
			}

			delete(p.free, p.max)
			p.max--
		}

		return nil
	}

	p.free[id] = struct{}{}

	return nil
}
