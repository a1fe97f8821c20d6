// spanfix repairs span identity in Chrome Trace Event files: it assigns
// unique ids and parent ids to Begin/End events and merges spans that
// duplicated instrumentation recorded several times.
package main

import "github.com/ppiankov/spanfix/internal/cli"

func main() {
	cli.Execute()
}
