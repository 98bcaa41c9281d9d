// main package for the lbcmut command-line tool
// Package main is the entry point for the lbcmut CLI.
package main

import "lbcmut.dev/pkg/lbcmut/cmd"

func main() {
	cmd.Execute()
}
