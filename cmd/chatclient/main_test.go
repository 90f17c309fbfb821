package main

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		line, defaultTo string
		to, text        string
	}{
		{line: "hello", defaultTo: "u2", to: "u2", text: "hello"},
		{line: "  @u3 hi there ", defaultTo: "u2", to: "u3", text: "hi there"},
		{line: "@u3", defaultTo: "u2", to: "u3", text: ""},
		{line: "   ", defaultTo: "u2", to: "u2", text: ""},
	}

	for _, tt := range tests {
		to, text := parseLine(tt.line, tt.defaultTo)
		require.Equal(t, tt.to, to, tt.line)
		require.Equal(t, tt.text, text, tt.line)
	}
}
