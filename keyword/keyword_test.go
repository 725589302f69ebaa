package keyword

import "testing"

func TestRegistryExactMatch(t *testing.T) {
	reg := NewRegistry()
	called := false
	reg.Register(HandlerFunc{Word: "goto", Fn: func(keyword string, session, conn, pacer interface{}) error {
		called = true
		return nil
	}})

	p := &Processor{Registry: reg}
	p.Process("GOTO", nil, nil, nil)
	if !called {
		t.Fatal("expected exact-match (case-insensitive) handler to be invoked")
	}
}

func TestRegistryPrefixBeforeSpaceFallback(t *testing.T) {
	reg := NewRegistry()
	var gotCmd string
	reg.Register(HandlerFunc{Word: "whisper", Fn: func(keyword string, session, conn, pacer interface{}) error {
		gotCmd = keyword
		return nil
	}})

	p := &Processor{Registry: reg}
	p.Process("whisper <bob> hello there", nil, nil, nil)
	if gotCmd != "whisper <bob> hello there" {
		t.Fatalf("handler received %q", gotCmd)
	}
}

func TestProcessIgnoresEmptyCommand(t *testing.T) {
	reg := NewRegistry()
	called := false
	reg.Register(HandlerFunc{Word: "x", Fn: func(string, interface{}, interface{}, interface{}) error {
		called = true
		return nil
	}})

	p := &Processor{Registry: reg}
	p.Process("   ", nil, nil, nil)
	if called {
		t.Fatal("empty command must not invoke any handler")
	}
}

func TestProcessReportsMissOnUnknownKeyword(t *testing.T) {
	reg := NewRegistry()
	var missed string
	p := &Processor{Registry: reg, OnMiss: func(k string) { missed = k }}

	p.Process("nosuchcommand", nil, nil, nil)
	if missed != "nosuchcommand" {
		t.Fatalf("OnMiss got %q, want nosuchcommand", missed)
	}
}

func TestProcessRecoversHandlerPanic(t *testing.T) {
	reg := NewRegistry()
	reg.Register(HandlerFunc{Word: "boom", Fn: func(string, interface{}, interface{}, interface{}) error {
		panic("kaboom")
	}})

	var errored string
	p := &Processor{Registry: reg, OnError: func(k string, err error) { errored = k }}

	p.Process("boom", nil, nil, nil)
	if errored != "boom" {
		t.Fatalf("OnError got %q, want boom (panic should be recovered, not crash the test)", errored)
	}
}

func TestRegisterReplacesPriorHandler(t *testing.T) {
	reg := NewRegistry()
	first := HandlerFunc{Word: "dup", Fn: func(string, interface{}, interface{}, interface{}) error { return nil }}
	second := HandlerFunc{Word: "dup", Fn: func(string, interface{}, interface{}, interface{}) error { return nil }}

	replaced := reg.Register(first)
	if replaced != nil {
		t.Fatalf("first registration should replace nothing, got %v", replaced)
	}
	replaced = reg.Register(second)
	if replaced == nil {
		t.Fatal("second registration should report the replaced handler")
	}
}

func TestExtractParameter(t *testing.T) {
	p, ok := ExtractParameter("goto <lobby>")
	if !ok || p != "lobby" {
		t.Fatalf("ExtractParameter = (%q, %v), want (lobby, true)", p, ok)
	}

	_, ok = ExtractParameter("goto lobby")
	if ok {
		t.Fatal("bare-space parameters must not be extracted (bracketed only)")
	}
}

func TestExtractAllParameters(t *testing.T) {
	got := ExtractAllParameters("move <north> then <east> then <north>")
	want := []string{"north", "east", "north"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
