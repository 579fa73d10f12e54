// Package main provides the alertflow CLI.
package main

func main() {
	Execute()
}
