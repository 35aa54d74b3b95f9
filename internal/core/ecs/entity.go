package ecs

import (
	"fmt"
	"strconv"
	"strings"
)

// EntityID encodes a 32-bit slot index in the lower bits and a 32-bit generation
// in the upper bits. Generation increments on destroy to invalidate stale refs.
// Generations start at 1 so the zero value never names a live entity.
type EntityID uint64

func NewEntityID(index uint32, generation uint32) EntityID {
	return EntityID(uint64(generation)<<32 | uint64(index))
}

func (id EntityID) Index() uint32      { return uint32(id) }
func (id EntityID) Generation() uint32 { return uint32(id >> 32) }
func (id EntityID) IsZero() bool       { return id == 0 }

// String renders the handle as "index:generation".
func (id EntityID) String() string {
	return strconv.FormatUint(uint64(id.Index()), 10) + ":" + strconv.FormatUint(uint64(id.Generation()), 10)
}

// ParseEntityID accepts either "index:generation" or the raw 64-bit value.
func ParseEntityID(s string) (EntityID, error) {
	s = strings.TrimSpace(s)
	if idx, gen, ok := strings.Cut(s, ":"); ok {
		i, err := strconv.ParseUint(idx, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("parse handle index %q: %w", idx, err)
		}
		g, err := strconv.ParseUint(gen, 10, 32)
		if err != nil {
			return 0, fmt.Errorf("parse handle generation %q: %w", gen, err)
		}
		return NewEntityID(uint32(i), uint32(g)), nil
	}
	raw, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse handle %q: %w", s, err)
	}
	return EntityID(raw), nil
}

func (id EntityID) MarshalText() ([]byte, error) { return []byte(id.String()), nil }

func (id *EntityID) UnmarshalText(b []byte) error {
	v, err := ParseEntityID(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}

// EntityPool manages entity allocation with generational indices and a free list.
type EntityPool struct {
	generations []uint32
	freeList    []uint32
	nextIndex   uint32
	live        int
}

func NewEntityPool() *EntityPool {
	return &EntityPool{
		generations: make([]uint32, 0, 1024),
		freeList:    make([]uint32, 0, 256),
	}
}

func (p *EntityPool) Create() EntityID {
	p.live++
	if len(p.freeList) > 0 {
		idx := p.freeList[len(p.freeList)-1]
		p.freeList = p.freeList[:len(p.freeList)-1]
		return NewEntityID(idx, p.generations[idx])
	}
	idx := p.nextIndex
	p.nextIndex++
	if int(idx) >= len(p.generations) {
		p.generations = append(p.generations, 1)
	}
	return NewEntityID(idx, p.generations[idx])
}

func (p *EntityPool) Alive(id EntityID) bool {
	idx := id.Index()
	if idx >= p.nextIndex {
		return false
	}
	return p.generations[idx] == id.Generation()
}

// Destroy invalidates id. Returns false for stale or unknown handles.
func (p *EntityPool) Destroy(id EntityID) bool {
	idx := id.Index()
	if idx >= p.nextIndex {
		return false
	}
	if p.generations[idx] != id.Generation() {
		return false // already destroyed (stale reference)
	}
	p.generations[idx]++
	if p.generations[idx] == 0 {
		// wrapped; skip the reserved zero generation
		p.generations[idx] = 1
	}
	p.freeList = append(p.freeList, idx)
	p.live--
	return true
}

// Live returns the number of allocated entities.
func (p *EntityPool) Live() int { return p.live }

// Pooled returns the number of freed slots waiting for reuse.
func (p *EntityPool) Pooled() int { return len(p.freeList) }

// Capacity returns the number of slots ever handed out.
func (p *EntityPool) Capacity() int { return int(p.nextIndex) }
