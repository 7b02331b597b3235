// Package main is the entry point for the gameadvisor application: batch
// ingestion and asynchronous processing of game rulebook images, with
// multi-modal vector search over the extracted content.
package main

import "github.com/shini559/Gaming-advisor-sub000/cmd"

func main() {
	cmd.Execute()
}
