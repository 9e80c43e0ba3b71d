package ipc

import (
	"errors"
	"testing"

	"github.com/hopboxdev/meshbox/internal/tunnel"
)

func TestParseMessage(t *testing.T) {
	tests := []struct {
		in   string
		want Message
	}{
		{"Login", Message{Command: CmdLogin}},
		{"LoginTV", Message{Command: CmdLoginTV}},
		{"IsLoginComplete", Message{Command: CmdIsLoginComplete}},
		{"Status", Message{Command: CmdStatus}},
		{"GetRoutes", Message{Command: CmdGetRoutes}},
		{"Select-route-1", Message{Command: CmdSelect, Arg: "route-1"}},
		{"Deselect-abc", Message{Command: CmdDeselect, Arg: "abc"}},
		{`SetConfig:{"a":"b:c"}`, Message{Command: CmdSetConfig, Arg: `{"a":"b:c"}`}},
		{"SetConfig:", Message{Command: CmdSetConfig}},
		{"ClearConfig", Message{Command: CmdClearConfig}},
		{"InitializeConfig", Message{Command: CmdInitializeConfig}},
	}
	for _, tt := range tests {
		got, err := ParseMessage(tt.in)
		if err != nil {
			t.Errorf("ParseMessage(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseMessage(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
		if got.String() != tt.in {
			t.Errorf("String() = %q, want %q", got.String(), tt.in)
		}
	}
}

func TestParseMessageUnknown(t *testing.T) {
	for _, in := range []string{"", "Restart", "Select-", "status"} {
		if _, err := ParseMessage(in); !errors.Is(err, ErrUnknownCommand) {
			t.Errorf("ParseMessage(%q) error = %v, want ErrUnknownCommand", in, err)
		}
	}
}

func peer(id string, rx int64) PeerRecord {
	return PeerRecord{
		ID:         id,
		IP:         "100.64.0." + id,
		FQDN:       "peer-" + id + ".mesh",
		ConnStatus: "Connected",
		BytesRx:    rx,
		Routes:     []string{"10.0.0.0/8", "192.168.1.0/24"},
	}
}

func TestSnapshotEqualIgnoresPeerOrder(t *testing.T) {
	a := StatusSnapshot{
		IP:               "100.64.0.1",
		FQDN:             "me.mesh",
		ManagementStatus: tunnel.StateConnected,
		Peers:            []PeerRecord{peer("2", 10), peer("3", 20)},
	}
	b := a
	b.Peers = []PeerRecord{peer("3", 20), peer("2", 10)}
	b.Peers[0].Selected = true
	b.Peers[1].Routes = []string{"192.168.1.0/24", "10.0.0.0/8"}

	if !a.Equal(b) {
		t.Fatal("snapshots with reordered peers compare unequal")
	}
}

func TestSnapshotEqualDetectsChanges(t *testing.T) {
	base := StatusSnapshot{
		IP:               "100.64.0.1",
		FQDN:             "me.mesh",
		ManagementStatus: tunnel.StateConnected,
		Peers:            []PeerRecord{peer("2", 10)},
	}
	changes := map[string]func(*StatusSnapshot){
		"ip":    func(s *StatusSnapshot) { s.IP = "100.64.0.9" },
		"fqdn":  func(s *StatusSnapshot) { s.FQDN = "other.mesh" },
		"state": func(s *StatusSnapshot) { s.ManagementStatus = tunnel.StateConnecting },
		"peer":  func(s *StatusSnapshot) { s.Peers = []PeerRecord{peer("2", 11)} },
		"count": func(s *StatusSnapshot) { s.Peers = append(s.Peers, peer("4", 0)) },
		"route": func(s *StatusSnapshot) { s.Peers = []PeerRecord{peer("2", 10)}; s.Peers[0].Routes = nil },
	}
	for name, mutate := range changes {
		other := base
		other.Peers = append([]PeerRecord(nil), base.Peers...)
		mutate(&other)
		if base.Equal(other) {
			t.Errorf("%s: change not detected", name)
		}
	}
}

func TestSnapshotEqualDuplicatePeers(t *testing.T) {
	a := StatusSnapshot{Peers: []PeerRecord{peer("1", 0), peer("1", 0)}}
	b := StatusSnapshot{Peers: []PeerRecord{peer("1", 0), peer("2", 0)}}
	if a.Equal(b) || b.Equal(a) {
		t.Error("duplicate peer matched twice")
	}
}
