// stubd CLI - command-line interface for the stubd mock server
package main

import "github.com/stubd/stubd/pkg/cli"

func main() {
	cli.Execute()
}
