// Command kincore drives the KinCore session, level and membership services
// from a terminal, or serves them to a browser UI over a local JSON API.
package main

import "os"

func main() {
	os.Exit(execute(os.Args[1:], os.Stdout, os.Stderr))
}
