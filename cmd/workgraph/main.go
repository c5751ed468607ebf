// Command workgraph is a local issue tracker whose issues are linked by
// typed relations such as blocks and precedes.
package main

import "os"

func main() {
	os.Exit(Execute())
}
