package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildPrompt(t *testing.T) {
	tests := []struct {
		name     string
		visual   string
		dialogue string
		camera   string
		want     string
	}{
		{name: "visual only", visual: "A lighthouse at dusk", want: "A lighthouse at dusk"},
		{
			name:     "with dialogue",
			visual:   "A lighthouse at dusk",
			dialogue: "We made it",
			want:     `A lighthouse at dusk. A woman says, "We made it" (no subtitles)`,
		},
		{
			name:   "with camera",
			visual: "A lighthouse at dusk",
			camera: "Slow dolly in",
			want:   "A lighthouse at dusk. Slow dolly in",
		},
		{
			name:     "all parts",
			visual:   "A lighthouse at dusk",
			dialogue: "We made it",
			camera:   "Slow dolly in",
			want:     `A lighthouse at dusk. A woman says, "We made it" (no subtitles). Slow dolly in`,
		},
		{name: "blank dialogue ignored", visual: "Rain", dialogue: "   ", want: "Rain"},
		{name: "empty visual passed through", camera: "Pan left", want: ". Pan left"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, BuildPrompt(tt.visual, tt.dialogue, tt.camera))
		})
	}
}
