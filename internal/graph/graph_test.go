package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasCycle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		edges [][2]string
		want  bool
	}{
		{
			name:  "empty graph",
			edges: nil,
			want:  false,
		},
		{
			name:  "chain",
			edges: [][2]string{{"A", "B"}, {"B", "C"}},
			want:  false,
		},
		{
			name:  "self loop",
			edges: [][2]string{{"A", "A"}},
			want:  true,
		},
		{
			name:  "two node cycle",
			edges: [][2]string{{"A", "B"}, {"B", "A"}},
			want:  true,
		},
		{
			name:  "three node cycle",
			edges: [][2]string{{"A", "B"}, {"B", "C"}, {"C", "A"}},
			want:  true,
		},
		{
			name:  "diamond without cycle",
			edges: [][2]string{{"A", "B"}, {"A", "C"}, {"B", "D"}, {"C", "D"}},
			want:  false,
		},
		{
			name:  "cycle in disconnected component",
			edges: [][2]string{{"A", "B"}, {"X", "Y"}, {"Y", "X"}},
			want:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := New()
			for _, e := range tt.edges {
				g.AddEdge(e[0], e[1])
			}
			assert.Equal(t, tt.want, g.HasCycle())
		})
	}
}

func TestAddEdges(t *testing.T) {
	t.Parallel()

	g := New()
	g.AddEdges([]string{"in1", "in2"}, []string{"out"})
	g.AddEdges([]string{"out"}, []string{"in1"})
	assert.True(t, g.HasCycle())

	g2 := New()
	g2.AddEdges([]string{"in1", "in2"}, []string{"out1", "out2"})
	assert.False(t, g2.HasCycle())
}
