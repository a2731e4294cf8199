// Command keepstate inspects and edits persisted registry state.
package main

import "github.com/mesh-intelligence/keepstate/internal/cli"

func main() {
	cli.Execute()
}
