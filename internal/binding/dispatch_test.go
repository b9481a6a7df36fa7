package binding

import (
	"testing"

	"github.com/nadzzz/htsbridge/internal/engine"
	"github.com/nadzzz/htsbridge/internal/params"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name string
		p    params.List
		want engine.Version
	}{
		{"empty", params.List{}, engine.V2_1},
		{"nil", nil, engine.V2_1},
		{"third window only", params.List{"-dm3": "hts/mgc.win3"}, engine.V2_1_1},
		{"voice file", params.List{"-m": "voice.htsvoice"}, engine.V2_2},
		{"voice file beats third window", params.List{"-m": "v", "-dm3": "w"}, engine.V2_2},
		{"tag 2.1", params.List{"-htsversion": "2.1", "-m": "v"}, engine.V2_1},
		{"tag 2.1.1", params.List{"-htsversion": "2.1.1"}, engine.V2_1_1},
		{"tag 2.2 beats everything", params.List{"-htsversion": "2.2", "-dm3": "w"}, engine.V2_2},
		{"unknown tag falls through", params.List{"-htsversion": "3.0", "-dm3": "w"}, engine.V2_1_1},
		{"unknown tag default", params.List{"-htsversion": "banana"}, engine.V2_1},
		{"only 2.1 keys", params.List{"-md": "dur.pdf", "-dm1": "w1", "-dm2": "w2"}, engine.V2_1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Resolve(tt.p); got != tt.want {
				t.Errorf("Resolve() = %s, want %s", got, tt.want)
			}
		})
	}
}
