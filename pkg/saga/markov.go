package saga

import (
	"fmt"
	"math"
	"sort"
)

// Planning defaults.
const (
	DefaultDiscount  = 0.9
	DefaultLookahead = 5
	DefaultMaxHops   = 10
)

// Edge is one weighted transition of a MarkovChain.
type Edge struct {
	From        State   `yaml:"from"`
	To          State   `yaml:"to"`
	Probability float64 `yaml:"probability"`
}

// MarkovChain stores transition probabilities and state rewards. It is a
// planning aid only; no saga consults it to decide whether a transition is
// allowed.
type MarkovChain struct {
	edges     []Edge
	index     map[[2]State]int
	rewards   map[State]float64
	discount  float64
	lookahead int
	maxHops   int
}

// NewMarkovChain creates an empty chain with the default discount,
// lookahead and hop limit.
func NewMarkovChain() *MarkovChain {
	return &MarkovChain{
		index:     make(map[[2]State]int),
		rewards:   make(map[State]float64),
		discount:  DefaultDiscount,
		lookahead: DefaultLookahead,
		maxHops:   DefaultMaxHops,
	}
}

// AddTransition sets the probability of moving from one state to another.
// Setting an existing edge replaces its probability and keeps its position.
func (c *MarkovChain) AddTransition(from, to State, probability float64) {
	key := [2]State{from, to}
	if i, ok := c.index[key]; ok {
		c.edges[i].Probability = probability
		return
	}
	c.index[key] = len(c.edges)
	c.edges = append(c.edges, Edge{From: from, To: to, Probability: probability})
}

// SetReward sets the reward for reaching state.
func (c *MarkovChain) SetReward(state State, reward float64) {
	c.rewards[state] = reward
}

// Probability returns the transition probability, zero for unknown edges.
func (c *MarkovChain) Probability(from, to State) float64 {
	if i, ok := c.index[[2]State{from, to}]; ok {
		return c.edges[i].Probability
	}
	return 0
}

// Reward returns the reward of state, zero when unset.
func (c *MarkovChain) Reward(state State) float64 {
	return c.rewards[state]
}

// Discount returns the per-step discount factor.
func (c *MarkovChain) Discount() float64 {
	return c.discount
}

// Edges returns the transitions in insertion order.
func (c *MarkovChain) Edges() []Edge {
	out := make([]Edge, len(c.edges))
	copy(out, c.edges)
	return out
}

// ExpectedValue is the discounted reward of state over horizon steps:
//
//	V(s, 0) = R(s)
//	V(s, h) = R(s) + Σ P(s, n) · discount · V(n, h-1)
func (c *MarkovChain) ExpectedValue(state State, horizon int) float64 {
	value := c.rewards[state]
	if horizon <= 0 {
		return value
	}
	for _, e := range c.edges {
		if e.From == state {
			value += e.Probability * c.discount * c.ExpectedValue(e.To, horizon-1)
		}
	}
	return value
}

// Ranked is a candidate next state with its planning score.
type Ranked struct {
	State       State
	Probability float64
	Value       float64
}

// Rank orders the states reachable from state by probability times expected
// value, best first. Ties keep insertion order.
func (c *MarkovChain) Rank(state State) []Ranked {
	var out []Ranked
	for _, e := range c.edges {
		if e.From != state {
			continue
		}
		out = append(out, Ranked{
			State:       e.To,
			Probability: e.Probability,
			Value:       e.Probability * c.ExpectedValue(e.To, c.lookahead),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Value > out[j].Value })
	return out
}

// OptimalPath walks greedily from one state toward another, at each step
// taking the successor with the best score as computed by Rank. The walk
// stops at the goal, at a state with no successors, or after the hop
// limit. The path starts with from.
func (c *MarkovChain) OptimalPath(from, to State) []State {
	path := []State{from}
	current := from
	for hop := 0; hop < c.maxHops && current != to; hop++ {
		best := math.Inf(-1)
		var next State
		found := false
		for _, e := range c.edges {
			if e.From != current {
				continue
			}
			if v := e.Probability * c.ExpectedValue(e.To, c.lookahead); v > best {
				best, next, found = v, e.To, true
			}
		}
		if !found {
			break
		}
		path = append(path, next)
		current = next
	}
	return path
}

// ChainConfig overrides a default chain. Zero fields keep the default.
type ChainConfig struct {
	Discount    float64           `yaml:"discount"`
	Lookahead   int               `yaml:"lookahead"`
	MaxHops     int               `yaml:"max_hops"`
	Transitions []Edge            `yaml:"transitions"`
	Rewards     map[State]float64 `yaml:"rewards"`
}

// Validate checks probabilities are in [0, 1] and the discount in (0, 1].
func (cfg ChainConfig) Validate() error {
	if cfg.Discount < 0 || cfg.Discount > 1 {
		return fmt.Errorf("discount must be in (0, 1], got %g", cfg.Discount)
	}
	if cfg.Lookahead < 0 || cfg.MaxHops < 0 {
		return fmt.Errorf("lookahead and max_hops must be non-negative")
	}
	for _, e := range cfg.Transitions {
		if e.From == "" || e.To == "" {
			return fmt.Errorf("transition requires from and to states")
		}
		if e.Probability < 0 || e.Probability > 1 {
			return fmt.Errorf("transition %s -> %s: probability must be in [0, 1], got %g", e.From, e.To, e.Probability)
		}
	}
	return nil
}

// Apply merges cfg into the chain.
func (c *MarkovChain) Apply(cfg ChainConfig) {
	if cfg.Discount > 0 {
		c.discount = cfg.Discount
	}
	if cfg.Lookahead > 0 {
		c.lookahead = cfg.Lookahead
	}
	if cfg.MaxHops > 0 {
		c.maxHops = cfg.MaxHops
	}
	for _, e := range cfg.Transitions {
		c.AddTransition(e.From, e.To, e.Probability)
	}
	for s, r := range cfg.Rewards {
		c.SetReward(s, r)
	}
}
