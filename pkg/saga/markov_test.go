package saga

import (
	"math"
	"slices"
	"testing"
)

func approxEqual(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func TestMarkovChain_ExpectedValue(t *testing.T) {
	c := DefaultApprovalChain()

	tests := []struct {
		state   State
		horizon int
		want    float64
	}{
		{StateApproved, 0, 50},
		// 50 + 0.95·0.9·100 + 0.05·0.9·(-50)
		{StateApproved, 1, 133.25},
		{StateApproved, 4, 133.25},
		{StateActive, 3, 100},
		{StateFailed, 2, -50},
		{State("unknown"), 3, 0},
	}

	for _, tt := range tests {
		if got := c.ExpectedValue(tt.state, tt.horizon); !approxEqual(got, tt.want) {
			t.Errorf("ExpectedValue(%s, %d) = %v, want %v", tt.state, tt.horizon, got, tt.want)
		}
	}
}

func TestMarkovChain_OptimalPath(t *testing.T) {
	tests := []struct {
		name  string
		chain *MarkovChain
		from  State
		to    State
		want  []State
	}{
		{
			name:  "approval",
			chain: DefaultApprovalChain(),
			from:  StateDraft,
			to:    StateActive,
			want:  []State{StateDraft, StateUnderReview, StateApproved, StateActive},
		},
		{
			name:  "composite",
			chain: DefaultCompositeChain(),
			from:  StateInitiated,
			to:    StateCompleted,
			want:  []State{StateInitiated, StateInProgress, StateCompleted},
		},
		{
			name:  "already at goal",
			chain: DefaultApprovalChain(),
			from:  StateActive,
			to:    StateActive,
			want:  []State{StateActive},
		},
		{
			name:  "no successors",
			chain: DefaultApprovalChain(),
			from:  State("nowhere"),
			to:    StateActive,
			want:  []State{State("nowhere")},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.chain.OptimalPath(tt.from, tt.to); !slices.Equal(got, tt.want) {
				t.Errorf("OptimalPath() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMarkovChain_OptimalPathTieKeepsFirstEdge(t *testing.T) {
	c := NewMarkovChain()
	c.AddTransition("a", "b", 0.5)
	c.AddTransition("a", "c", 0.5)

	got := c.OptimalPath("a", "z")
	if !slices.Equal(got, []State{"a", "b"}) {
		t.Errorf("OptimalPath() = %v, want [a b]", got)
	}
}

func TestMarkovChain_OptimalPathHopLimit(t *testing.T) {
	c := NewMarkovChain()
	c.AddTransition("a", "b", 1)
	c.AddTransition("b", "a", 1)

	if got := c.OptimalPath("a", "z"); len(got) != DefaultMaxHops+1 {
		t.Errorf("len(OptimalPath()) = %d, want %d", len(got), DefaultMaxHops+1)
	}

	c.Apply(ChainConfig{MaxHops: 3})
	if got := c.OptimalPath("a", "z"); !slices.Equal(got, []State{"a", "b", "a", "b"}) {
		t.Errorf("OptimalPath() = %v, want [a b a b]", got)
	}
}

func TestMarkovChain_Rank(t *testing.T) {
	ranked := DefaultApprovalChain().Rank(StateUnderReview)

	var got []State
	for _, r := range ranked {
		got = append(got, r.State)
	}
	want := []State{StateApproved, StateDraft, StateRejected}
	if !slices.Equal(got, want) {
		t.Fatalf("Rank() = %v, want %v", got, want)
	}
	if !approxEqual(ranked[0].Value, 0.6*133.25) {
		t.Errorf("Rank()[0].Value = %v, want %v", ranked[0].Value, 0.6*133.25)
	}
}

func TestMarkovChain_AddTransitionReplaces(t *testing.T) {
	c := NewMarkovChain()
	c.AddTransition("a", "b", 0.2)
	c.AddTransition("a", "c", 0.8)
	c.AddTransition("a", "b", 0.4)

	if got := c.Probability("a", "b"); got != 0.4 {
		t.Errorf("Probability(a, b) = %v, want 0.4", got)
	}
	edges := c.Edges()
	if len(edges) != 2 || edges[0].To != "b" {
		t.Errorf("Edges() = %+v, want b then c", edges)
	}
	if got := c.Probability("b", "a"); got != 0 {
		t.Errorf("Probability(b, a) = %v, want 0", got)
	}
}

func TestChainConfig(t *testing.T) {
	tests := []struct {
		name    string
		cfg     ChainConfig
		wantErr bool
	}{
		{name: "empty", cfg: ChainConfig{}},
		{name: "valid", cfg: ChainConfig{Discount: 0.5, Transitions: []Edge{{From: "a", To: "b", Probability: 1}}}},
		{name: "discount above one", cfg: ChainConfig{Discount: 1.5}, wantErr: true},
		{name: "negative lookahead", cfg: ChainConfig{Lookahead: -1}, wantErr: true},
		{name: "probability above one", cfg: ChainConfig{Transitions: []Edge{{From: "a", To: "b", Probability: 2}}}, wantErr: true},
		{name: "missing state", cfg: ChainConfig{Transitions: []Edge{{From: "a", Probability: 1}}}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestWithChainConfig(t *testing.T) {
	s := NewApprovalSaga(newID(), "alice", WithChainConfig(ChainConfig{
		Discount:    0.5,
		Transitions: []Edge{{From: StateUnderReview, To: StateRejected, Probability: 0.9}},
		Rewards:     map[State]float64{StateActive: 10},
	}))

	c := s.Chain()
	if c.Discount() != 0.5 {
		t.Errorf("Discount() = %v, want 0.5", c.Discount())
	}
	if got := s.TransitionProbability(StateUnderReview, StateRejected); got != 0.9 {
		t.Errorf("TransitionProbability() = %v, want 0.9", got)
	}
	if c.Reward(StateActive) != 10 {
		t.Errorf("Reward(Active) = %v, want 10", c.Reward(StateActive))
	}
	// Defaults are untouched.
	if DefaultApprovalChain().Reward(StateActive) != 100 {
		t.Error("default chain was modified")
	}
}
