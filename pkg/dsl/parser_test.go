package dsl

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const heathenID = "4uLU6hMCjMI75M1A2tKUQC"

func TestParseCommands(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  Command
	}{
		{"play by name", `play track "Heathen"`, Command{Action: ActionPlay, Kind: KindTrack, Target: "Heathen"}},
		{"play by id keeps case", "play track " + heathenID, Command{Action: ActionPlay, Kind: KindTrack, Target: heathenID}},
		{"play with context", `play track "Heathen" in playlist "Road Trip"`, Command{
			Action: ActionPlay, Kind: KindTrack, Target: "Heathen", ContextKind: KindPlaylist, Context: "Road Trip",
		}},
		{"play album context", `PLAY Track "x" IN Album "y"`, Command{
			Action: ActionPlay, Kind: KindTrack, Target: "x", ContextKind: KindAlbum, Context: "y",
		}},
		{"pause", "pause", Command{Action: ActionPause}},
		{"resume", "resume", Command{Action: ActionResume}},
		{"skip default", "skip", Command{Action: ActionSkip, N: Int(1)}},
		{"skip back", "skip -2", Command{Action: ActionSkip, N: Int(-2)}},
		{"seek seconds", "seek 30", Command{Action: ActionSeek, PositionSeconds: Float(30)}},
		{"seek fractional", "seek 1.5", Command{Action: ActionSeek, PositionSeconds: Float(1.5)}},
		{"queue many", `queue track "a" ` + heathenID + ` "b"`, Command{
			Action: ActionQueue, Kind: KindTrack, Targets: []string{"a", heathenID, "b"},
		}},
		{"library add", `library add track "Karma Police"`, Command{
			Action: ActionLibraryAdd, Kind: KindTrack, Targets: []string{"Karma Police"},
		}},
		{"library add to playlist", `library add track "a" "b" in playlist "Road Trip"`, Command{
			Action: ActionLibraryAdd, Kind: KindTrack, Targets: []string{"a", "b"}, ContextKind: KindPlaylist, Context: "Road Trip",
		}},
		{"library remove", `library remove artist "Radiohead"`, Command{
			Action: ActionLibraryRemove, Kind: KindArtist, Targets: []string{"Radiohead"},
		}},
		{"library create", `library create playlist "Mix"`, Command{Action: ActionLibraryCreate, Kind: KindPlaylist, Target: "Mix"}},
		{"library delete", `library delete playlist "Mix"`, Command{Action: ActionLibraryDelete, Kind: KindPlaylist, Target: "Mix"}},
		{"library list", "library list album limit 10 offset 20", Command{
			Query: QueryLibraryList, Kind: KindAlbum, Limit: Int(10), Offset: Int(20),
		}},
		{"search", `search track "x"`, Command{Query: QuerySearch, Kind: KindTrack, Terms: []string{"x"}}},
		{"search many terms", `search artist "a" "b" limit 5`, Command{
			Query: QuerySearch, Kind: KindArtist, Terms: []string{"a", "b"}, Limit: Int(5),
		}},
		{"info", `info album "OK Computer"`, Command{Query: QueryInfo, Kind: KindAlbum, Target: "OK Computer"}},
		{"recommend", `recommend track in playlist "Road Trip"`, Command{
			Query: QueryRecommend, Kind: KindTrack, ContextKind: KindPlaylist, Context: "Road Trip",
		}},
		{"recommend count", `recommend track 5 in playlist "Road Trip"`, Command{
			Query: QueryRecommend, Kind: KindTrack, N: Int(5), ContextKind: KindPlaylist, Context: "Road Trip",
		}},
		{"status", "status", Command{Query: QueryStatus}},
		{"status limit", "status limit 3", Command{Query: QueryStatus, Limit: Int(3)}},
		{"composed modifiers", `play track "Heathen" volume 50 mode shuffle`, Command{
			Action: ActionPlay, Kind: KindTrack, Target: "Heathen", Volume: Int(50), Mode: ModeShuffle,
		}},
		{"modifiers only", `volume 70 mode SHUFFLE device "Living Room"`, Command{
			Action: ActionSet, Volume: Int(70), Mode: ModeShuffle, Device: "Living Room",
		}},
		{"relative volume", "volume +10", Command{Action: ActionSet, VolumeRel: Int(10)}},
		{"relative volume down", "pause volume -5", Command{Action: ActionPause, VolumeRel: Int(-5)}},
		{"last modifier wins", "volume 10 volume 20", Command{Action: ActionSet, Volume: Int(20)}},
		{"escaped quote", `play track "say \"hi\""`, Command{Action: ActionPlay, Kind: KindTrack, Target: `say "hi"`}},
		{"skip then volume", "skip 2 volume 80", Command{Action: ActionSkip, N: Int(2), Volume: Int(80)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("parse %q: %v", tt.input, err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Fatalf("parse %q mismatch (-want +got):\n%s", tt.input, diff)
			}
		})
	}
}

func TestParseRejects(t *testing.T) {
	inputs := []string{
		"",
		"   ",
		`play "X"`,
		"play track spotify:track:" + heathenID,
		`search "x"`,
		`search tracks "x"`,
		`search "x" track`,
		`search track x`,
		`recommend track for playlist "x"`,
		`recommend track`,
		`play track "X" in "Y"`,
		`library add track "X" in album "Y"`,
		`like track "x"`,
		"follow artist " + heathenID,
		`save playlist "x"`,
		"now playing",
		"get queue",
		`add track "x" to "y"`,
		"explode everything",
		`search track "x" volume 5`,
		`status mode shuffle`,
		`play track "x" limit 5`,
		`limit 5`,
		`pause offset 2`,
		`mode loud`,
		`device Kitchen`,
		`volume loud`,
		`seek -3`,
		`play track "unterminated`,
		`library create track "x"`,
		`queue track`,
		`pause pause`,
		`volume 99999999999999999999999`,
		`seek 99999999999999999999`,
		`seek 9300000000000000`,
		`seek 1000000000000001`,
	}
	for _, input := range inputs {
		if cmd, err := Parse(input); err == nil {
			t.Fatalf("expected %q to be rejected, got %+v", input, cmd)
		}
	}
}

func TestSyntaxErrorPosition(t *testing.T) {
	_, err := Parse(`play track "x" limit 5`)
	var syntaxErr *SyntaxError
	if !errors.As(err, &syntaxErr) {
		t.Fatalf("expected syntax error, got %v", err)
	}
	if syntaxErr.Token != "limit" {
		t.Fatalf("expected error at limit, got %q", syntaxErr.Token)
	}
	if syntaxErr.Pos != 15 {
		t.Fatalf("expected position 15, got %d", syntaxErr.Pos)
	}
}

func TestParseTreeShape(t *testing.T) {
	tree, err := ParseTree(`library add track "a" in playlist "b" volume 10`)
	if err != nil {
		t.Fatalf("parse tree: %v", err)
	}
	if tree.Head == nil || tree.Head.Rule != "library_add" {
		t.Fatalf("unexpected head %+v", tree.Head)
	}
	if tree.Head.Child("context") == nil {
		t.Fatalf("expected context child")
	}
	if len(tree.Modifiers) != 1 || tree.Modifiers[0].Rule != "volume" {
		t.Fatalf("unexpected modifiers %+v", tree.Modifiers)
	}
}

func TestTransformUnknownRule(t *testing.T) {
	if _, err := Transform(&Tree{Head: &Node{Rule: "explode"}}); err == nil {
		t.Fatalf("expected error")
	}
}
