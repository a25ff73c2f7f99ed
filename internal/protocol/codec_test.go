package protocol

import (
	"bytes"
	"errors"
	"reflect"
	"testing"
)

func TestEncodeCommand(t *testing.T) {
	tests := []struct {
		name    string
		verb    Verb
		arg     string
		want    string
		wantErr bool
	}{
		{name: "scan", verb: VerbScan, want: "scan"},
		{name: "list", verb: VerbList, want: "list"},
		{name: "add path", verb: VerbAdd, arg: "/tmp/x", want: "add /tmp/x"},
		{name: "remove path with spaces", verb: VerbRemove, arg: "/home/me/My Documents", want: "remove /home/me/My Documents"},
		{name: "unknown verb", verb: Verb("delete"), arg: "/tmp", wantErr: true},
		{name: "scan with argument", verb: VerbScan, arg: "/tmp", wantErr: true},
		{name: "add without path", verb: VerbAdd, wantErr: true},
		{name: "add blank path", verb: VerbAdd, arg: "   ", wantErr: true},
		{name: "path with newline", verb: VerbAdd, arg: "/tmp/a\nlist", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeCommand(tt.verb, tt.arg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("EncodeCommand() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidCommand) {
					t.Errorf("want ErrInvalidCommand, got %v", err)
				}
				return
			}
			if got != tt.want {
				t.Errorf("EncodeCommand() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Command
		wantErr bool
	}{
		{name: "scan", line: "scan\n", want: Command{Verb: VerbScan}},
		{name: "list crlf", line: "list\r\n", want: Command{Verb: VerbList}},
		{name: "add", line: "add /tmp/x\n", want: Command{Verb: VerbAdd, Arg: "/tmp/x"}},
		{name: "remove without newline", line: "remove /tmp/x", want: Command{Verb: VerbRemove, Arg: "/tmp/x"}},
		{name: "path keeps interior spaces", line: "add /a b/c\n", want: Command{Verb: VerbAdd, Arg: "/a b/c"}},
		{name: "empty", line: "\n", wantErr: true},
		{name: "unknown", line: "rescan\n", wantErr: true},
		{name: "add missing path", line: "add\n", wantErr: true},
		{name: "list with argument", line: "list /tmp\n", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseCommand(tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseCommand() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseCommand() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestCommandRoundTripNoTrailingWhitespace(t *testing.T) {
	line, err := EncodeCommand(VerbAdd, "/tmp/x")
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// The worker handle terminates the line; simulate what the worker reads.
	cmd, err := ParseCommand(line + "\n")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if cmd.Verb != VerbAdd {
		t.Errorf("verb = %q, want add", cmd.Verb)
	}
	if cmd.Arg != "/tmp/x" {
		t.Errorf("arg = %q, want /tmp/x", cmd.Arg)
	}
}

func TestEncodeFrame(t *testing.T) {
	got, err := EncodeFrame(TagList, "/a\n/b")
	if err != nil {
		t.Fatalf("EncodeFrame: %v", err)
	}
	if got != ".LIST./a\n/b.END.\n" {
		t.Errorf("EncodeFrame() = %q", got)
	}

	if _, err := EncodeFrame(TagList, "evil.END.path"); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("payload with sentinel: want ErrMalformedFrame, got %v", err)
	}
	if _, err := EncodeFrame("list", "x"); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("lowercase tag: want ErrMalformedFrame, got %v", err)
	}
	if _, err := EncodeFrame("END", "x"); !errors.Is(err, ErrMalformedFrame) {
		t.Errorf("END tag: want ErrMalformedFrame, got %v", err)
	}
}

func TestWriteFrameDecodes(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteFrame(&buf, TagScanResults, "/a/new.txt"); err != nil {
		t.Fatalf("WriteFrame: %v", err)
	}
	frames, err := NewDecoder(0).Feed(buf.Bytes())
	if err != nil {
		t.Fatalf("Feed: %v", err)
	}
	want := []Frame{{Tag: TagScanResults, Payload: "/a/new.txt"}}
	if !reflect.DeepEqual(frames, want) {
		t.Errorf("frames = %+v, want %+v", frames, want)
	}
}

func TestParseList(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    []string
		wantErr bool
	}{
		{name: "newline delimited", payload: "/a\n/b\n", want: []string{"/a", "/b"}},
		{name: "blank lines dropped", payload: "\n /a \n\n/b", want: []string{"/a", "/b"}},
		{name: "empty", payload: "", want: nil},
		{name: "json array", payload: `["/a", "/b c"]`, want: []string{"/a", "/b c"}},
		{name: "bad json", payload: `["/a",`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseList(tt.payload)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseList() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ParseList() = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestResponseTag(t *testing.T) {
	if VerbScan.ResponseTag(false) != TagScanResults {
		t.Error("scan should expect SCAN_RESULTS")
	}
	if VerbList.ResponseTag(true) != TagList {
		t.Error("list should expect LIST")
	}
	if VerbAdd.ResponseTag(false) != "" || VerbRemove.ResponseTag(false) != "" {
		t.Error("add/remove should be fire-and-forget without acks")
	}
	if VerbAdd.ResponseTag(true) != TagAddOK || VerbRemove.ResponseTag(true) != TagRemoveOK {
		t.Error("add/remove should expect ack tags with acks enabled")
	}
}
