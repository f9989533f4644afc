package server

// Handle 槽位下标 + 代数。槽位复用后旧 Handle 自动失效。
type Handle struct {
	index int
	gen   uint32
}

type slot struct {
	peer *Peer
	gen  uint32
}

// Registry 连接表：稠密槽位 + 空闲链表。删除只清空槽位不移动元素，
// 所以遍历中删除既不会跳过也不会重复。只在循环协程内访问。
type Registry struct {
	slots []slot
	free  []int
	n     int
}

func NewRegistry(capacity int) *Registry {
	return &Registry{slots: make([]slot, 0, capacity)}
}

func (r *Registry) Insert(p *Peer) Handle {
	var i int
	if n := len(r.free); n > 0 {
		i = r.free[n-1]
		r.free = r.free[:n-1]
	} else {
		r.slots = append(r.slots, slot{})
		i = len(r.slots) - 1
	}
	r.slots[i].peer = p
	r.n++
	h := Handle{index: i, gen: r.slots[i].gen}
	p.handle = h
	return h
}

// Get 失效的 Handle 返回 nil
func (r *Registry) Get(h Handle) *Peer {
	if h.index < 0 || h.index >= len(r.slots) {
		return nil
	}
	s := r.slots[h.index]
	if s.peer == nil || s.gen != h.gen {
		return nil
	}
	return s.peer
}

func (r *Registry) Remove(h Handle) bool {
	if r.Get(h) == nil {
		return false
	}
	r.slots[h.index].peer = nil
	r.slots[h.index].gen++
	r.free = append(r.free, h.index)
	r.n--
	return true
}

func (r *Registry) Len() int { return r.n }

// Each 按槽位顺序遍历；fn 内可以 Remove 当前或其他条目
func (r *Registry) Each(fn func(h Handle, p *Peer)) {
	for i := range r.slots {
		s := r.slots[i]
		if s.peer == nil {
			continue
		}
		fn(Handle{index: i, gen: s.gen}, s.peer)
	}
}
