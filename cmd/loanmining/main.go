package main

import "github.com/opfromthestart/loan-mining/internal/cli"

func main() {
	cli.Execute()
}
