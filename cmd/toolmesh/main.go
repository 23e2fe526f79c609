// Command toolmesh runs a coordinator with a small set of demo tools and
// agents from the terminal.
package main

func main() {
	Execute()
}
