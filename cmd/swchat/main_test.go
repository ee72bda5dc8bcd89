package main

import (
	"reflect"
	"testing"

	"github.com/nzlov/roomsync/chat"
)

func TestParseMembers(t *testing.T) {
	got := parseMembers("u1:bob@x.io, u2:alice@x.io,broken,:x@y,u3:")
	want := []chat.Member{{ID: "u1", Email: "bob@x.io"}, {ID: "u2", Email: "alice@x.io"}}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("members = %#v, want %#v", got, want)
	}
	if got := parseMembers(""); len(got) != 0 {
		t.Fatalf("empty flag = %#v", got)
	}
}
