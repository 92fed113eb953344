// Command identity is the CLI surface for the identity runtime governance
// engine: contract validation, drift-driven upgrade execution, install
// safety, and CI evidence enforcement over a catalog of identity packs.
package main

func main() {
	Execute()
}
