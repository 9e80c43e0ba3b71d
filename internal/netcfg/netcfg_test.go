package netcfg

import (
	"testing"

	"github.com/hopboxdev/meshbox/internal/routes"
)

func TestRecorder(t *testing.T) {
	var r Recorder
	if _, ok := r.Last(); ok {
		t.Fatal("Last reports applied before Apply")
	}
	s := routes.Settings{Address: "100.64.0.5", MTU: routes.MTU}
	if err := r.Apply(t.Context(), s); err != nil {
		t.Fatal(err)
	}
	got, ok := r.Last()
	if !ok || got.Address != s.Address {
		t.Errorf("Last = %+v, %v", got, ok)
	}
	if r.Count() != 1 {
		t.Errorf("Count = %d, want 1", r.Count())
	}
	if err := r.Reset(t.Context()); err != nil {
		t.Fatal(err)
	}
	if _, ok := r.Last(); ok {
		t.Error("Last reports applied after Reset")
	}
}
