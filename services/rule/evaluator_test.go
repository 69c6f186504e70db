package rule

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEvaluate(t *testing.T) {
	e := NewEvaluator()

	cases := []struct {
		name       string
		expression string
		context    map[string]any
		want       bool
		wantErr    bool
	}{
		{
			name:       "empty expression matches",
			expression: "",
			context:    map[string]any{"score": 100},
			want:       true,
		},
		{
			name:       "comparison true",
			expression: "score >= 90",
			context:    map[string]any{"score": 95},
			want:       true,
		},
		{
			name:       "comparison false",
			expression: "score >= 90",
			context:    map[string]any{"score": 42},
			want:       false,
		},
		{
			name:       "compound condition",
			expression: "event_type == 'quiz_perfect' && user_level >= 3",
			context:    map[string]any{"event_type": "quiz_perfect", "user_level": 5},
			want:       true,
		},
		{
			name:       "string match",
			expression: "streak_id != ''",
			context:    map[string]any{"streak_id": "s-9"},
			want:       true,
		},
		{
			name:       "nil context with empty expression",
			expression: "",
			context:    nil,
			want:       true,
		},
		{
			name:       "undeclared variable fails",
			expression: "missing > 1",
			context:    map[string]any{"score": 1},
			wantErr:    true,
		},
		{
			name:       "non-boolean result fails",
			expression: "score + 1",
			context:    map[string]any{"score": 1},
			wantErr:    true,
		},
		{
			name:       "invalid syntax fails",
			expression: "score >>> 1",
			context:    map[string]any{"score": 1},
			wantErr:    true,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := e.Evaluate(tc.expression, tc.context)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}
