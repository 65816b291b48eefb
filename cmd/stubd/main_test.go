package main

import (
	"os"
	"testing"

	"github.com/rogpeppe/go-internal/testscript"

	"github.com/stubd/stubd/pkg/cli"
)

// TestMain registers stubd as a testscript command so the scripts in
// testdata can exec it without building a binary first.
func TestMain(m *testing.M) {
	os.Exit(testscript.RunMain(m, map[string]func() int{
		"stubd": func() int {
			cli.Execute()
			return 0
		},
	}))
}

func TestScripts(t *testing.T) {
	testscript.Run(t, testscript.Params{
		Dir: "testdata",
	})
}
