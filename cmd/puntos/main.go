// Package main is the single-binary entrypoint for puntos, the points and
// rewards engine behind the promotions app.
package main

import "github.com/puntos-app/puntos/internal/cli"

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	cli.Execute(version)
}
