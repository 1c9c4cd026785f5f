package bot

import (
	"math/rand"
	"sync"
)

// Profile 机器人身份只来自配置
type Profile struct {
	Name       string     `json:"name" mapstructure:"name"`
	Avatar     string     `json:"avatar" mapstructure:"avatar"`
	Difficulty Difficulty `json:"difficulty" mapstructure:"difficulty"`
}

// Registry 全局唯一的机器人名册，由启动时注入协调器
type Registry struct {
	mu       sync.Mutex
	profiles []Profile
	inUse    map[string]bool
}

func NewRegistry(profiles []Profile) *Registry {
	return &Registry{
		profiles: append([]Profile(nil), profiles...),
		inUse:    make(map[string]bool),
	}
}

func (r *Registry) Len() int {
	return len(r.profiles)
}

// Acquire 取一个未被占用的机器人；policy 为固定难度时覆盖配置，mixed 时随机
func (r *Registry) Acquire(rnd *rand.Rand, policy Difficulty) (Profile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var free []int
	for i, p := range r.profiles {
		if !r.inUse[p.Name] {
			free = append(free, i)
		}
	}
	if len(free) == 0 {
		return Profile{}, false
	}
	p := r.profiles[free[rnd.Intn(len(free))]]
	r.inUse[p.Name] = true

	switch {
	case policy != "" && policy != Mixed:
		p.Difficulty = policy
	case p.Difficulty == "" || p.Difficulty == Mixed:
		p.Difficulty = tiers[rnd.Intn(len(tiers))]
	}
	return p, true
}

func (r *Registry) Release(name string) {
	r.mu.Lock()
	delete(r.inUse, name)
	r.mu.Unlock()
}
